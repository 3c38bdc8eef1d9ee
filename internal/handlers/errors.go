package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ctmsgb/booking-backend/internal/middleware"
	"github.com/ctmsgb/booking-backend/internal/models"
	"github.com/ctmsgb/booking-backend/internal/services"
	"github.com/ctmsgb/booking-backend/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// respondError writes the response for an error returned by a service.
// Domain errors carry their own status; anything else is a 500.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var de *models.DomainError
	if errors.As(err, &de) {
		body := gin.H{"detail": de.Detail}
		if de.Kind == models.ErrKindSeatConflict {
			body["seats"] = de.Seats
		}
		status := de.HTTPStatus()
		if status >= http.StatusInternalServerError {
			logger.WithError(err).WithFields(logrus.Fields{
				"path": c.Request.URL.Path,
				"kind": de.Kind,
			}).Error("Request failed")
		}
		c.JSON(status, body)
		return
	}

	switch {
	case errors.Is(err, services.ErrNoOTPFound):
		c.JSON(http.StatusBadRequest, gin.H{"detail": "No OTP found or OTP expired.", "code": "OTP_NOT_FOUND"})
		return
	case errors.Is(err, services.ErrOTPInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid OTP code.", "code": "INVALID_OTP"})
		return
	case errors.Is(err, services.ErrMaxAttemptsExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"detail": "Maximum OTP attempts exceeded. Request a new code.", "code": "MAX_ATTEMPTS_EXCEEDED"})
		return
	case errors.Is(err, services.ErrResetTokenInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Reset token is invalid or expired.", "code": "INVALID_RESET_TOKEN"})
		return
	}

	logger.WithError(err).WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
	}).Error("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error."})
}

// respondBindError reports a body that failed to decode or validate
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Missing required fields", "fields": fields})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body."})
}

// actorFromContext builds the service actor from the authenticated user.
// Writes a 401 and returns false when the request carries no user.
func actorFromContext(c *gin.Context) (services.Actor, bool) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		de := models.NewUnauthorized("Authentication credentials were not provided.")
		c.JSON(de.HTTPStatus(), gin.H{"detail": de.Detail})
		return services.Actor{}, false
	}

	actor := services.Actor{
		UserID:  userCtx.UserID,
		IsAdmin: userCtx.IsAdmin(),
		Client:  utils.ClientMeta(c),
	}
	if userCtx.IsCompanyStaff() {
		companyID := *userCtx.CompanyID
		actor.CompanyID = &companyID
	}
	return actor, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid " + name + "."})
		return uuid.Nil, false
	}
	return id, true
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid " + name + "."})
		return 0, false
	}
	return id, true
}

// listFilter reads limit, offset and status from the query string
func listFilter(c *gin.Context) (models.BookingListFilter, bool) {
	var filter models.BookingListFilter

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "limit must be between 1 and 200."})
			return filter, false
		}
		filter.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "offset must be a non-negative integer."})
			return filter, false
		}
		filter.Offset = offset
	}
	if raw := c.Query("status"); raw != "" {
		status := models.BookingStatus(strings.ToUpper(raw))
		if !status.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid booking status filter."})
			return filter, false
		}
		filter.Status = &status
	}
	return filter, true
}
