package handlers

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/ctmsgb/booking-backend/internal/models"
	phonevalidator "github.com/ctmsgb/booking-backend/pkg/validator"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators adds the booking binding tags to gin's validator engine
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding engine %T", binding.Validator.Engine())
	}

	// Report json names in validation errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	checks := map[string]validator.Func{
		"booking_status": func(fl validator.FieldLevel) bool {
			return models.BookingStatus(fl.Field().String()).IsValid()
		},
		"payment_status": func(fl validator.FieldLevel) bool {
			return models.PaymentStatus(fl.Field().String()).IsValid()
		},
		"pk_phone": phonevalidator.PKPhone,
	}
	for tag, fn := range checks {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return nil
}
