package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-teamsession/internal/api"
	"github.com/npezzotti/go-teamsession/internal/config"
	"github.com/npezzotti/go-teamsession/internal/coordinator"
	"github.com/npezzotti/go-teamsession/internal/database"
	"github.com/npezzotti/go-teamsession/internal/server"
	"github.com/npezzotti/go-teamsession/internal/stats"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func main() {
	logger := log.New(os.Stderr, "[go-teamsession] ", log.LstdFlags)

	// flags override TEAMSESSION_* variables, which override the defaults
	env, err := config.LoadEnv(".env")
	if err != nil {
		logger.Fatal("env:", err)
	}
	if env.SigningSecret == "" {
		env.SigningSecret = defaultSigningKey
	}

	var (
		addr           string
		dsn            string
		signingKey     string
		migrate        bool
		idleRoom       time.Duration
		allowedOrigins stringSliceFlag
	)
	flag.StringVar(&addr, "addr", env.ServerAddr, "server address")
	flag.StringVar(&dsn, "dsn", env.DatabaseDSN, "database connection string")
	flag.StringVar(&signingKey, "signing-key", env.SigningSecret, "base64 encoded signing key")
	flag.BoolVar(&migrate, "migrate", env.MigrationsEnabled, "apply database migrations on startup")
	flag.DurationVar(&idleRoom, "idle-room-timeout", env.IdleRoomTimeout, "unload rooms with no subscribers after this long")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		allowedOrigins = env.AllowedOrigins
	}

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}
	cfg.MigrationsEnabled = migrate
	cfg.IdleRoomTimeout = idleRoom

	dbConn, err := database.NewPgSessionRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	if cfg.MigrationsEnabled {
		if err := dbConn.Migrate(); err != nil {
			logger.Fatal("db migrate:", err)
		}
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	coord := coordinator.New(logger, dbConn, statsUpdater)
	hub := server.NewHub(logger, dbConn, statsUpdater)
	hub.SetIdleRoomTimeout(cfg.IdleRoomTimeout)
	coord.SetNotifier(hub)

	srv := api.NewTeamSessionApp(mux, logger, coord, hub, dbConn, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go hub.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down session hub...")
	if err := hub.Shutdown(shutDownCtx); err != nil {
		logger.Println("session hub shutdown:", err)
	}

	logger.Println("shutdown complete")
}
