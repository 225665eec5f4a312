package main

import (
	"fmt"
	"log"

	"github.com/smarttransit/ticket-bot/internal/utils"
)

func main() {
	fmt.Println("===========================================")
	fmt.Println("Secret generator for the ticket bot")
	fmt.Println("===========================================")
	fmt.Println()

	jwtSecret, webhookSecret, err := utils.GenerateBotSecrets()
	if err != nil {
		log.Fatalf("Failed to generate secrets: %v", err)
	}

	fmt.Println("Add these to your .env file or deployment secrets:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", jwtSecret)
	fmt.Printf("WEBHOOK_SECRET=%s\n", webhookSecret)
	fmt.Println()
	fmt.Println("Keep these secrets safe and never commit them to version control.")
	fmt.Println("===========================================")
}
