package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/joshp123/kumocloud/internal/config"
	"github.com/joshp123/kumocloud/internal/coordinator"
	"github.com/joshp123/kumocloud/internal/kumo"
	"github.com/joshp123/kumocloud/internal/logging"
	"github.com/joshp123/kumocloud/internal/mqtt"
	"github.com/joshp123/kumocloud/internal/rate"
	"github.com/joshp123/kumocloud/internal/server"
	"github.com/joshp123/kumocloud/internal/tokens"
)

func main() {
	configPath := flag.String("config", "/etc/kumocloud/config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Output)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	keeper, err := newKeeper(cfg, log)
	if err != nil {
		return err
	}

	client := kumo.NewClient(kumo.Config{
		BaseURL: cfg.API.BaseURL,
		Sink: func(username, access, refresh string) error {
			return keeper.Save(ctx, tokens.State{
				SchemaVersion: tokens.SchemaVersion,
				Username:      username,
				AccessToken:   access,
				RefreshToken:  refresh,
			})
		},
	}, log)

	if err := authenticate(ctx, cfg, client, keeper, log); err != nil {
		return err
	}

	siteID, err := resolveSite(ctx, cfg, client)
	if err != nil {
		return err
	}
	log.Info().Str("site", siteID).Msg("site resolved")

	coord := coordinator.New(client, coordinator.Config{
		SiteID:   siteID,
		Interval: cfg.ScanInterval(),
		Settle:   cfg.Settle(),
	}, log)

	if err := coord.RefreshAll(ctx); err != nil {
		return fmt.Errorf("initial poll: %w", err)
	}

	var collectors []prometheus.Collector
	collectors = append(collectors, kumo.MetricsCollectors()...)
	collectors = append(collectors, rate.MetricsCollectors()...)
	collectors = append(collectors, coordinator.MetricsCollectors()...)
	collectors = append(collectors, tokens.MetricsCollectors()...)
	collectors = append(collectors, mqtt.MetricsCollectors()...)
	registry := server.NewRegistry(collectors...)

	mux := server.NewMux(coord, client, registry, log)
	httpServer := server.NewHTTPServer(cfg.HTTPAddr, mux)

	if cfg.MQTT != nil {
		bridge, err := mqtt.Connect(cfg.MQTT, siteID, log)
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		defer bridge.Close()
		detach := bridge.Attach(coord)
		defer detach()
		// Push the state we already have instead of waiting a full
		// poll interval.
		if snap := coord.Snapshot(); snap != nil {
			bridge.PublishSnapshot(snap)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()
	go func() {
		if err := coord.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("poll loop: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newKeeper(cfg *config.Config, log zerolog.Logger) (*tokens.Keeper, error) {
	var blob tokens.BlobStore
	if cfg.Tokens.Blob != nil {
		store, err := tokens.NewS3Store(*cfg.Tokens.Blob)
		if err != nil {
			return nil, fmt.Errorf("token blob store: %w", err)
		}
		blob = store
	}
	return tokens.NewKeeper(cfg.Tokens.StatePath, blob, log)
}

// authenticate restores persisted tokens when available, verifying
// them with one cheap call, and falls back to a fresh credential login.
func authenticate(ctx context.Context, cfg *config.Config, client *kumo.Client, keeper *tokens.Keeper, log zerolog.Logger) error {
	state, err := keeper.Load(ctx)
	switch {
	case err == nil:
		client.RestoreTokens(state.Username, state.AccessToken, state.RefreshToken)
		if _, err := client.AccountInfo(ctx); err == nil {
			log.Info().Msg("restored persisted tokens")
			return nil
		} else if !kumo.IsAuth(err) {
			return fmt.Errorf("verify restored tokens: %w", err)
		}
		log.Info().Msg("persisted tokens rejected, logging in")
	case errors.Is(err, tokens.ErrStateNotFound):
		log.Info().Msg("no persisted tokens, logging in")
	default:
		return fmt.Errorf("load token state: %w", err)
	}

	creds, err := config.LoadCredentials(cfg.CredentialsFile)
	if err != nil {
		return err
	}
	if _, err := client.Login(ctx, creds.Username, creds.Password); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	log.Info().Msg("logged in")
	return nil
}

// resolveSite uses the configured site id, or the account's only site.
func resolveSite(ctx context.Context, cfg *config.Config, client *kumo.Client) (string, error) {
	if cfg.SiteID != "" {
		return cfg.SiteID, nil
	}
	sites, err := client.Sites(ctx)
	if err != nil {
		return "", fmt.Errorf("list sites: %w", err)
	}
	switch len(sites) {
	case 0:
		return "", fmt.Errorf("account has no sites")
	case 1:
		return sites[0].ID, nil
	default:
		return "", fmt.Errorf("account has %d sites, set site_id in the config", len(sites))
	}
}
