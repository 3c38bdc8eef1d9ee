package handlers

import (
	"net/http"
	"strconv"

	"github.com/ctmsgb/booking-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PasswordResetHandler exposes the reset OTP store to the identity service.
// Delivering the OTP and changing the password happen there.
type PasswordResetHandler struct {
	store  *services.PasswordResetStore
	logger *logrus.Logger
}

// NewPasswordResetHandler creates a new PasswordResetHandler
func NewPasswordResetHandler(store *services.PasswordResetStore, logger *logrus.Logger) *PasswordResetHandler {
	return &PasswordResetHandler{
		store:  store,
		logger: logger,
	}
}

// IssueOTPRequest asks for a reset OTP for a user
type IssueOTPRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// VerifyOTPRequest exchanges an OTP for a reset token
type VerifyOTPRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	OTP    string    `json:"otp" binding:"required,numeric,min=4,max=8"`
}

// ConsumeTokenRequest redeems a reset token
type ConsumeTokenRequest struct {
	ResetToken string `json:"reset_token" binding:"required,uuid"`
}

// IssueOTP creates a reset OTP, replacing any live one
// @Summary Issue password reset OTP
// @Tags Password Reset
// @Accept json
// @Produce json
// @Param request body IssueOTPRequest true "User"
// @Success 201 {object} map[string]interface{}
// @Security BearerAuth
// @Router /api/v1/auth/password-reset/otp [post]
func (h *PasswordResetHandler) IssueOTP(c *gin.Context) {
	var req IssueOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	otp, expiresAt, err := h.store.IssueOTP(c.Request.Context(), req.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user_id":    req.UserID,
		"otp":        otp,
		"expires_at": expiresAt,
	})
}

// VerifyOTP checks a code and returns a single-use reset token
// @Summary Verify password reset OTP
// @Tags Password Reset
// @Accept json
// @Produce json
// @Param request body VerifyOTPRequest true "OTP"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{} "Invalid or expired OTP"
// @Failure 429 {object} map[string]interface{} "Too many attempts"
// @Security BearerAuth
// @Router /api/v1/auth/password-reset/verify [post]
func (h *PasswordResetHandler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	token, err := h.store.VerifyOTP(c.Request.Context(), req.UserID, req.OTP)
	if err != nil {
		if remaining, rerr := h.store.RemainingAttempts(c.Request.Context(), req.UserID); rerr == nil {
			c.Header("X-Attempts-Remaining", strconv.Itoa(remaining))
		}
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reset_token": token})
}

// ConsumeToken validates and burns a reset token
// @Summary Consume password reset token
// @Tags Password Reset
// @Accept json
// @Produce json
// @Param request body ConsumeTokenRequest true "Token"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{} "Invalid or expired token"
// @Security BearerAuth
// @Router /api/v1/auth/password-reset/consume [post]
func (h *PasswordResetHandler) ConsumeToken(c *gin.Context) {
	var req ConsumeTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	userID, err := h.store.ConsumeResetToken(c.Request.Context(), req.ResetToken)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "valid": true})
}
