package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cbodonnell/gridlock/pkg/api"
	authproviders "github.com/cbodonnell/gridlock/pkg/auth/providers"
	"github.com/cbodonnell/gridlock/pkg/feed"
	"github.com/cbodonnell/gridlock/pkg/log"
	"github.com/cbodonnell/gridlock/pkg/repositories"
	"github.com/cbodonnell/gridlock/pkg/workers"
	"github.com/joho/godotenv"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	logLevel := flag.String("log-level", "info", "Log level")
	sqlitePath := flag.String("sqlite-path", "gridlock.db", "Path to the SQLite database, used when DATABASE_URL is not set")
	migrations := flag.String("migrations", "migrations/sqlite", "Path to the SQLite migrations directory")
	janitorInterval := flag.Duration("janitor-interval", 1*time.Minute, "How often stale matches are swept")
	matchTTL := flag.Duration("match-ttl", 24*time.Hour, "How long a match may go without an update before cleanup")
	firebaseProjectID := flag.String("firebase-project-id", "", "Firebase project ID for token verification")
	firebaseAPIKey := flag.String("firebase-api-key", "", "Firebase API key for token verification")
	insecureAuth := flag.Bool("insecure-auth", false, "Treat bearer tokens as user ids (local development only)")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, reading environment variables directly")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	hub := feed.NewHub()

	var repository repositories.Repository
	if connStr := os.Getenv("DATABASE_URL"); connStr != "" {
		repository, err = repositories.NewPostgresRepository(ctx, connStr)
		if err != nil {
			panic(fmt.Sprintf("Failed to create postgres repository: %v", err))
		}

		listener := repositories.NewPostgresListener(repositories.NewPostgresListenerOptions{
			ConnStr:  connStr,
			Notifier: hub,
		})
		go listener.Start(ctx)
	} else {
		repository, err = repositories.NewSQLiteRepository(ctx, *sqlitePath, *migrations, hub)
		if err != nil {
			panic(fmt.Sprintf("Failed to create sqlite repository: %v", err))
		}
	}
	defer repository.Close(ctx)

	var authProvider authproviders.AuthProvider
	if *insecureAuth {
		log.Warn("Using insecure static auth, bearer tokens are trusted as user ids")
		authProvider = authproviders.NewStaticAuthProvider()
	} else {
		authProvider, err = authproviders.NewFirebaseAuthProvider(ctx, *firebaseProjectID, *firebaseAPIKey)
		if err != nil {
			panic(fmt.Sprintf("Failed to create firebase auth provider: %v", err))
		}
	}

	janitor, err := workers.NewJanitorWorker(workers.NewJanitorWorkerOptions{
		Repository: repository,
		Interval:   *janitorInterval,
		TTL:        *matchTTL,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to create janitor worker: %v", err))
	}
	go func() {
		if err := janitor.Start(ctx); err != nil {
			log.Error("Janitor worker error: %v", err)
		}
	}()

	apiServer := api.NewAPIServer(api.NewAPIServerOptions{
		Port:         *port,
		AuthProvider: authProvider,
		Repository:   repository,
		ChangeFeed:   hub,
	})
	go apiServer.Start()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop API server: %v", err)
	}
}
