package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/afanelli-PAM/il-mondo-di-lulz/database"
	"github.com/afanelli-PAM/il-mondo-di-lulz/giveaway"
	"github.com/afanelli-PAM/il-mondo-di-lulz/middleware"
	"github.com/afanelli-PAM/il-mondo-di-lulz/models"
	"github.com/afanelli-PAM/il-mondo-di-lulz/routes"
	"github.com/afanelli-PAM/il-mondo-di-lulz/utils"
)

func main() {
	// Load .env if present, without overwriting already-set variables.
	if envMap, err := godotenv.Read(); err == nil {
		for k, v := range envMap {
			if os.Getenv(k) == "" {
				os.Setenv(k, v)
			}
		}
	}

	for _, envVar := range []string{"DB_HOST", "DB_USER", "DB_PASS", "DB_NAME", "JWT_SECRET"} {
		if os.Getenv(envVar) == "" {
			log.Fatalf("Required environment variable %s is not set", envVar)
		}
	}

	db, err := database.Connect()
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	// Auto-migrate only in development to avoid accidental production
	// schema changes.
	if strings.ToLower(os.Getenv("ENV")) == "development" {
		log.Println("Running in development mode - performing auto-migration")
		if err := db.AutoMigrate(
			&models.User{},
			&models.Admin{},
			&models.Setting{},
			&models.GiveawaySpin{},
			&models.GiveawayWinner{},
			&models.RevokedToken{},
		); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
	} else {
		log.Println("Running in production mode - skipping auto-migration")
	}

	seedAdmin(db)

	store := database.NewGiveawayStore(db)
	rounds := giveaway.NewRoundState(store)
	engine := giveaway.NewEngine(store, rounds, store, store, utils.WinMailer{})

	router := routes.InitRouter(db, store, rounds, engine)

	// Logging -> Security headers -> Request ID -> Max body -> Timeout -> Recovery
	handler := middleware.RequestLogMiddleware(
		middleware.SecurityHeadersMiddleware(
			middleware.RequestIDMiddleware(
				middleware.MaxBodyMiddleware(
					middleware.TimeoutMiddleware(
						middleware.RecoveryMiddleware(router),
					),
				),
			),
		),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
}

// seedAdmin creates the bootstrap admin account from ADMIN_USERNAME and
// ADMIN_PASSWORD when no account with that username exists yet.
func seedAdmin(db *gorm.DB) {
	username := os.Getenv("ADMIN_USERNAME")
	password := os.Getenv("ADMIN_PASSWORD")
	if username == "" || password == "" {
		return
	}

	var n int64
	if err := db.Model(&models.Admin{}).Where("username = ?", username).Count(&n).Error; err != nil {
		log.Printf("[admin] verifica account bootstrap fallita: %v", err)
		return
	}
	if n > 0 {
		return
	}

	admin := models.Admin{Username: username, Name: "Amministratore", IsActive: true}
	if err := admin.SetPassword(password); err != nil {
		log.Printf("[admin] hash password bootstrap fallito: %v", err)
		return
	}
	if err := db.Create(&admin).Error; err != nil {
		log.Printf("[admin] creazione account bootstrap fallita: %v", err)
		return
	}
	log.Printf("[admin] account amministratore %s creato", username)
}
