package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"collabdoc.org/internal/auth"
	"collabdoc.org/internal/config"
	"collabdoc.org/internal/document"
	"collabdoc.org/internal/email"
	"collabdoc.org/internal/httpapi"
	"collabdoc.org/internal/identity"
	"collabdoc.org/internal/obs"
	"collabdoc.org/internal/token"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := sql.Open("pgx", cfg.PGDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	users := identity.NewPGStore(db)
	docs := document.NewPGStore(db)
	perms := document.NewPGPermissionStore(db)

	tokens, err := token.NewEngine(users, cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience,
		cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	if err != nil {
		log.Fatalf("token engine: %v", err)
	}
	mailer := email.NewSendGridClient(cfg.Email.APIKey, cfg.Email.FromEmail, cfg.Email.FromName,
		cfg.Email.RetryCount, cfg.Email.RetryDelay, cfg.Email.Sandbox)
	accounts := auth.NewService(users, tokens, mailer, cfg.BaseURL)
	docSvc := document.NewService(docs, perms, users)

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, accounts, docSvc, tokens)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting collabdoc-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
