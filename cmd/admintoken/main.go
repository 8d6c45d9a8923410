package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/utils"
)

// Prints a bearer token for the /api/admin endpoints.
func main() {
	subject := flag.String("subject", "operator", "token subject")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.AdminJWTSecret == "" {
		log.Fatal("ADMIN_JWT_SECRET is not set")
	}

	token, err := utils.GenerateJWT(*subject, utils.RoleAdmin, cfg.AdminJWTSecret, *ttl)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
