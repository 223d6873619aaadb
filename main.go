// webexsync mirrors Webex workspaces and their environmental readings into
// a device graph.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/vesaa/webexsync/internal/config"
	"github.com/vesaa/webexsync/internal/logging"
	"github.com/vesaa/webexsync/internal/pull"
	"github.com/vesaa/webexsync/internal/server"
	"github.com/vesaa/webexsync/internal/store"
	"github.com/vesaa/webexsync/internal/webex"
)

const (
	version   = "v0.1.0"
	organName = "webexsync"
)

func main() {
	root := &cobra.Command{
		Use:          "webexsync",
		Short:        "Sync Webex workspaces and metrics into the device graph",
		SilenceUsage: true,
	}

	root.AddCommand(runCmd(), refreshTokenCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var createContext bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the sync loop and the status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, createContext)
		},
	}
	cmd.Flags().BoolVar(&createContext, "create-context", false, "Create the network context when it does not exist")
	return cmd
}

func refreshTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-token",
		Short: "Force one access token refresh and print its expiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			tokens := newTokenManager(cfg, &http.Client{Timeout: cfg.HTTPTimeout()})
			if _, err := tokens.Refresh(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("Token refreshed, expires at %s\n", tokens.ExpiresAt().Format(time.RFC3339))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print webexsync version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("webexsync %s\n", version)
		},
	}
}

func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	return cfg, nil
}

func newTokenManager(cfg *config.Config, httpClient *http.Client) *webex.TokenManager {
	return webex.NewTokenManager(webex.OAuthConfig{
		TokenURL:     strings.TrimSuffix(cfg.APIURL, "/") + "/access_token",
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RefreshToken: cfg.RefreshToken,
	}, httpClient, webex.NewFileCache(cfg.TokenFile))
}

func run(parent context.Context, cfg *config.Config, createContext bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer st.Close()

	if createContext {
		if _, err := st.CreateContext(ctx, cfg.NetworkName); err != nil {
			return fmt.Errorf("creating context: %w", err)
		}
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout()}
	tokens := newTokenManager(cfg, httpClient)
	client := webex.NewClient(cfg.APIURL, httpClient, tokens,
		webex.WithRateLimit(cfg.APIRateLimit, cfg.APIRateBurst))

	var selector pull.MetricSelector = pull.FixedCatalog{}
	if cfg.MetricStrategy == config.StrategyCapabilities {
		selector = pull.CapabilityCatalog{API: client}
	}
	reconciler := pull.NewReconciler(client, st, st, st, selector)
	loop := pull.NewLoop(pull.LoopConfig{
		NetworkName: cfg.NetworkName,
		Interval:    cfg.PullInterval(),
		Penalty:     cfg.PenaltyDelay(),
	}, st, reconciler, st.NewStatusRecorder(organName, cfg.PullInterval()), nil)

	if err := loop.Init(ctx); err != nil {
		return err
	}

	srv, err := server.New(server.Options{
		OrganName: organName,
		JWTSecret: cfg.JWTSecret,
		AdminUser: cfg.AdminUser,
		AdminPass: cfg.AdminPass,
	}, st, loop, tokens)
	if err != nil {
		return fmt.Errorf("building status API: %w", err)
	}
	gin.SetMode(gin.ReleaseMode)
	httpSrv := &http.Server{Addr: cfg.ServerAddr(), Handler: srv.Engine()}

	srvErr := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()
	logging.Info().Str("addr", cfg.ServerAddr()).Msg("Status API listening")

	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()

	var runErr error
	select {
	case runErr = <-srvErr:
		stop()
	case <-ctx.Done():
		logging.Info().Msg("Shutting down")
	}
	loop.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("Status API shutdown")
	}

	if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) {
		return errors.Join(runErr, err)
	}
	return runErr
}
