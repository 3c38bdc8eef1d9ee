package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidLength indicates phone number length is not 11 digits
	ErrInvalidLength = errors.New("phone number must be exactly 11 digits")

	// ErrInvalidPrefix indicates phone number doesn't start with a Pakistani mobile prefix
	ErrInvalidPrefix = errors.New("phone number must start with 030, 031, 032, 033, 034 or 035")

	// ErrInvalidFormat indicates phone number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits")

	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")
)

// operators keyed by the first three digits of the national number
var operators = map[string]string{
	"030": "Jazz",
	"031": "Zong",
	"032": "Jazz",
	"033": "Ufone",
	"034": "Telenor",
	"035": "SCOM",
}

var digitsOnly = regexp.MustCompile(`^\d+$`)

// PhoneValidator handles Pakistani mobile number validation
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Validate accepts 03001234567, 0300 1234567, 0300-1234567 and +923001234567.
// Returns the national form (digits only).
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.Sanitize(phone)
	if !digitsOnly.MatchString(sanitized) {
		return "", ErrInvalidFormat
	}
	if len(sanitized) != 11 {
		return "", ErrInvalidLength
	}
	if _, ok := operators[sanitized[:3]]; !ok {
		return "", ErrInvalidPrefix
	}
	return sanitized, nil
}

// Sanitize strips separators and rewrites the 92 country code to a leading 0
func (v *PhoneValidator) Sanitize(phone string) string {
	phone = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "", ".", "").Replace(phone)

	if strings.HasPrefix(phone, "0092") && len(phone) == 14 {
		phone = "0" + phone[4:]
	} else if strings.HasPrefix(phone, "92") && len(phone) == 12 {
		phone = "0" + phone[2:]
	}
	return phone
}

// Format formats a phone number for display: 03XX XXXXXXX
func (v *PhoneValidator) Format(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s", sanitized[:4], sanitized[4:]), nil
}

// International returns the E.164 form: +923XXXXXXXXX
func (v *PhoneValidator) International(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}
	return "+92" + sanitized[1:], nil
}

// GetOperator returns the mobile operator name based on prefix
func (v *PhoneValidator) GetOperator(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}
	return operators[sanitized[:3]], nil
}

// IsValid is a convenience method that returns true if phone is valid
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}

// PKPhone is a validator/v10 field check for the "pk_phone" tag
func PKPhone(fl validator.FieldLevel) bool {
	return NewPhoneValidator().IsValid(fl.Field().String())
}
