package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/imyashkale/provisioner/internal/config"
	"github.com/imyashkale/provisioner/internal/logger"
	"github.com/imyashkale/provisioner/internal/middleware"
)

// token mints a bearer token for the API, signed with JWT_SECRET.
// Operators use it to bootstrap admin access and to hand tokens to clients.
func main() {
	userId := flag.String("user", "", "user id placed in the token subject (required)")
	role := flag.String("role", middleware.RoleClient, "token role (admin|client)")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Init(cfg.LogLevel)

	token, err := mintToken(cfg.JWTSecret, *userId, *role, *ttl)
	if err != nil {
		logger.Fatalf("Failed to mint token: %v", err)
	}

	logger.WithFields(map[string]interface{}{
		"user_id": *userId,
		"role":    *role,
		"ttl":     ttl.String(),
	}).Info("Token issued")
	fmt.Fprintln(os.Stdout, token)
}

func mintToken(secret, userId, role string, ttl time.Duration) (string, error) {
	if userId == "" {
		return "", errors.New("-user is required")
	}
	if role != middleware.RoleAdmin && role != middleware.RoleClient {
		return "", fmt.Errorf("unknown role %q, want %s or %s", role, middleware.RoleAdmin, middleware.RoleClient)
	}
	if ttl <= 0 {
		return "", errors.New("-ttl must be positive")
	}
	return middleware.IssueToken(secret, userId, role, ttl)
}
