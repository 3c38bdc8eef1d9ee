package main

import (
	"fmt"
	"log"

	"github.com/ctmsgb/booking-backend/internal/utils"
)

func main() {
	jwtSecret, webhookSecret, err := utils.GenerateDevSecrets()
	if err != nil {
		log.Fatalf("Failed to generate secrets: %v", err)
	}

	fmt.Println("# Add these to your local .env file")
	fmt.Printf("JWT_SECRET=%s\n", jwtSecret)
	fmt.Printf("STRIPE_WEBHOOK_SECRET=%s\n", webhookSecret)
	fmt.Println("# The JWT secret must match the identity service.")
}
