// Command mailvault runs the local mail cache service: OAuth sign-in
// against Gmail, synchronization into a local SQLite cache, and the
// HTTP boundary the UI shell talks to.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/jiwoolab/mailvault/internal/api"
	"github.com/jiwoolab/mailvault/internal/app"
	"github.com/jiwoolab/mailvault/internal/auth"
	"github.com/jiwoolab/mailvault/internal/callback"
	"github.com/jiwoolab/mailvault/internal/credential"
	"github.com/jiwoolab/mailvault/internal/model"
	"github.com/jiwoolab/mailvault/internal/provider"
	"github.com/jiwoolab/mailvault/internal/store"
	appsync "github.com/jiwoolab/mailvault/internal/sync"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "mailvault:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to the configuration file")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(*configPath); errors.Is(err, os.ErrNotExist) {
		// First run: write the resolved defaults so there is a file to edit.
		if err := model.SaveConfig(*configPath, cfg); err != nil {
			return err
		}
		log.Info().Str("path", *configPath).Msg("wrote default config")
	}
	if cfg.OAuth.ClientID == "" || cfg.OAuth.ClientSecret == "" {
		return errors.New("OAuth client credentials are not configured (set CLIENT_ID and CLIENT_SECRET or fill the config file)")
	}

	creds, err := credential.Open()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	st, err := store.NewEmailStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	log.Info().Str("path", cfg.DBPath).Msg("database ready")

	manager := auth.NewManager(auth.Options{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
	}, creds, log.With().Str("component", "auth").Logger())
	if err := manager.Load(); err != nil {
		return err
	}

	listener := callback.New(
		time.Duration(cfg.Listener.TimeoutSec)*time.Second,
		time.Duration(cfg.Listener.GraceSec)*time.Second,
		log.With().Str("component", "callback").Logger(),
	)
	defer listener.Close()

	clients := func(ctx context.Context) (provider.Client, error) {
		ts, err := manager.TokenSource()
		if err != nil {
			return nil, err
		}
		return provider.NewGmail(ctx, ts, manager)
	}
	engine := appsync.NewEngine(clients, st, cfg.Sync.FetchConcurrency,
		log.With().Str("component", "sync").Logger())

	svc := app.NewService(cfg, manager, listener, engine, st, creds,
		log.With().Str("component", "app").Logger())
	server := api.NewServer(svc, log.With().Str("component", "api").Logger())

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("serving UI boundary")
		if err := server.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
