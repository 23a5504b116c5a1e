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

	"qrdine.org/internal/auth"
	"qrdine.org/internal/httpapi"
	"qrdine.org/internal/obs"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("QRDINE_COMMIT"))

	dsn := os.Getenv("QRDINE_PG_DSN")
	if dsn == "" {
		log.Fatal("missing DSN: set QRDINE_PG_DSN")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	secret := os.Getenv("QRDINE_AUTH_SECRET")
	if secret == "" {
		log.Fatal("missing signing secret: set QRDINE_AUTH_SECRET")
	}

	opts := []auth.ServiceOption{auth.WithIssuer("qrdine")}
	if ttl := os.Getenv("QRDINE_ACCESS_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			log.Fatalf("invalid QRDINE_ACCESS_TTL: %v", err)
		}
		opts = append(opts, auth.WithAccessTTL(d))
	}
	if ttl := os.Getenv("QRDINE_REFRESH_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			log.Fatalf("invalid QRDINE_REFRESH_TTL: %v", err)
		}
		opts = append(opts, auth.WithRefreshTTL(d))
	}

	svc, err := auth.NewService(auth.NewPGStore(db), []byte(secret), opts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(svc, httpapi.ReadyProbe{DB: db}, version)

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting qrdine-api %s on %s", version, srv.Addr)

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
