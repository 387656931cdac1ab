//go:build ignore

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/acectf/registration/internal/auth"
	"github.com/acectf/registration/internal/database"
	"github.com/acectf/registration/internal/database/models"
	"github.com/acectf/registration/pkg/config"
	"github.com/acectf/registration/pkg/util"
)

// Creates the admin account from ADMIN_EMAIL / ADMIN_PASSWORD. Run once
// after the database is up: go run scripts/seed.go

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	email := cfg.Admin.Email
	password := cfg.Admin.Password
	if email == "" {
		email = "admin@ace-ctf.fr"
	}
	if password == "" {
		log.Fatal("ADMIN_PASSWORD must be set")
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService, nil, logger)

	user, err := authService.Register(context.Background(), auth.RegisterInput{
		Email:     email,
		Password:  password,
		FirstName: "Admin",
		LastName:  "ACE",
	})
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			fmt.Printf("Admin user already exists: %s\n", email)
			return
		}
		log.Fatalf("failed to create admin user: %v", err)
	}

	// Promote and verify in place; no verification email goes out for this
	// account.
	now := time.Now()
	if err := db.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"is_admin":           true,
		"email_verified":     true,
		"verification_token": nil,
	}).Error; err != nil {
		log.Fatalf("failed to promote admin user: %v", err)
	}
	if err := db.Model(&models.Registration{}).Where("user_id = ?", user.ID).Updates(map[string]interface{}{
		"status":      models.StatusVerified,
		"verified_at": now,
	}).Error; err != nil {
		log.Fatalf("failed to update admin registration: %v", err)
	}

	fmt.Printf("Admin user created: %s\n", email)
}
