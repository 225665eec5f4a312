package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/smarttransit/ticket-bot/pkg/jwt"
)

// Issues a bearer token for the admin REST API. The admin id must also be listed
// in ADMIN_IDS of the running server or the token is refused.
func main() {
	var adminID int64
	var expiry time.Duration
	flag.Int64Var(&adminID, "admin", 0, "admin chat id the token is issued for")
	flag.DurationVar(&expiry, "expiry", 24*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	if adminID == 0 {
		log.Fatal("-admin is required")
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	service := jwt.NewService(secret, expiry)
	token, err := service.GenerateAdminToken(adminID)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	expiresAt, err := service.GetTokenExpiry(token)
	if err != nil {
		log.Fatalf("Failed to read token expiry: %v", err)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format(time.RFC3339))
}
