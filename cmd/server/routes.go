package main

import (
	"net/http"
	"time"

	"github.com/ctmsgb/booking-backend/internal/config"
	"github.com/ctmsgb/booking-backend/internal/handlers"
	"github.com/ctmsgb/booking-backend/internal/middleware"
	"github.com/ctmsgb/booking-backend/internal/scheduler"
	"github.com/ctmsgb/booking-backend/pkg/jwt"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type routerDeps struct {
	cfg        *config.Config
	db         *sqlx.DB
	logger     *logrus.Logger
	jwtService *jwt.Service

	booking       *handlers.BookingHandler
	adminBooking  *handlers.AdminBookingHandler
	webhook       *handlers.PaymentWebhookHandler
	ticket        *handlers.TicketHandler
	passwordReset *handlers.PasswordResetHandler // nil without Redis
}

func setupRouter(d routerDeps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(d.logger))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     d.cfg.CORS.AllowedOrigins,
		AllowMethods:     d.cfg.CORS.AllowedMethods,
		AllowHeaders:     d.cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(d.db))

	auth := middleware.AuthMiddleware(d.jwtService)
	staffOnly := middleware.RequireRole(middleware.RoleAdmin, middleware.RoleCompany)

	if d.cfg.Redis.Enabled() {
		monitor := scheduler.MonitorHandler(d.cfg.Redis)
		router.Any(scheduler.MonitoringPath+"/*path", auth, middleware.RequireRole(middleware.RoleAdmin), gin.WrapH(monitor))
	}

	v1 := router.Group("/api/v1")
	{
		// Provider callbacks authenticate by signature, not JWT
		v1.POST("/payments/webhook", d.webhook.HandleWebhook)

		bookings := v1.Group("/bookings")
		{
			bookings.GET("/occupied-seats", d.booking.GetOccupiedSeats)

			protected := bookings.Group("")
			protected.Use(auth)
			{
				protected.POST("", d.booking.CreateSeatBooking)
				protected.POST("/full-vehicle", d.booking.CreateFullVehicleBooking)
				protected.GET("/my", d.booking.ListMyBookings)
				protected.POST("/:id/checkout-session", d.booking.CreateCheckoutSession)
			}
		}

		tickets := v1.Group("/tickets")
		tickets.Use(auth)
		{
			tickets.GET("/my", d.ticket.ListMyTickets)
			tickets.GET("/:id", d.ticket.GetTicket)
			tickets.GET("/:id/pdf", d.ticket.DownloadTicketPDF)
			tickets.POST("/:id/cancel", d.ticket.CancelTicket)
		}

		admin := v1.Group("/admin")
		admin.Use(auth, staffOnly)
		{
			admin.GET("/bookings", d.adminBooking.ListBookings)
			admin.PATCH("/bookings/:id/status", d.adminBooking.UpdateStatus)
			admin.POST("/bookings/:id/confirm-payment", d.adminBooking.ConfirmPayment)
			admin.GET("/bookings/:id/transactions", d.adminBooking.ListTransactions)

			admin.GET("/manual-bookings", d.adminBooking.ListManualBookings)
			admin.PATCH("/manual-bookings/:id/status", d.adminBooking.UpdateManualStatus)
		}

		// Called by the identity service with an admin token
		if d.passwordReset != nil {
			reset := v1.Group("/auth/password-reset")
			reset.Use(auth, middleware.RequireRole(middleware.RoleAdmin))
			{
				reset.POST("/otp", d.passwordReset.IssueOTP)
				reset.POST("/verify", d.passwordReset.VerifyOTP)
				reset.POST("/consume", d.passwordReset.ConsumeToken)
			}
		}
	}

	return router
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
