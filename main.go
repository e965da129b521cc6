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

	"github.com/bellapacxx/bingo-live/broadcast"
	"github.com/bellapacxx/bingo-live/client"
	"github.com/bellapacxx/bingo-live/config"
	"github.com/bellapacxx/bingo-live/controllers"
	"github.com/bellapacxx/bingo-live/events"
	"github.com/bellapacxx/bingo-live/routes"
	"github.com/bellapacxx/bingo-live/services"
	"github.com/bellapacxx/bingo-live/utils/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const releaseVersion = "1.0.0"

func main() {
	config.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "[FATAL]", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config.Config{}
	var envErr error

	root := &cobra.Command{
		Use:           "bingo",
		Short:         "Live bingo game-state server.",
		Args:          cobra.NoArgs,
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return envErr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return logger.Configure(cfg.Verbose, cfg.LogFormat)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
	envErr = config.BindFlags(root, cfg)

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the game server (default).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	})
	root.AddCommand(newTokenCmd(cfg), newWatchCmd())

	root.CompletionOptions.HiddenDefaultCmd = true
	root.SetHelpCommand(&cobra.Command{Hidden: true})
	root.SetVersionTemplate("bingo v{{.Version}}\n")
	return root
}

func newTokenCmd(cfg *config.Config) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a coordinator token signed with --coordinator-secret.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := controllers.MintToken(cfg.CoordinatorSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var clientID string
	cmd := &cobra.Command{
		Use:   "watch <server-url>",
		Short: "Follow a running game and print what a participant sees.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimRight(args[0], "/") + "/api/events"
			if clientID != "" {
				url += "?clientId=" + clientID
			}
			out := cmd.OutOrStdout()
			view := client.NewView("")
			err := client.Follow(cmd.Context(), url, func(ev events.Event) {
				if !view.Apply(ev) {
					return
				}
				s := view.State()
				switch p := ev.Payload.(type) {
				case events.NumberDrawn:
					fmt.Fprintf(out, "drawn %2d  (%d so far)\n", p.Number, len(s.Drawn))
				case events.GameStateChanged:
					fmt.Fprintf(out, "session %s is %s, modes %s\n", s.SessionID, s.Status, s.Modes)
				case events.PlayerJoined:
					fmt.Fprintf(out, "%s joined (%d players)\n", p.Name, p.PlayerCount)
				case events.PlayerDisconnected:
					fmt.Fprintf(out, "player left (%d players)\n", p.PlayerCount)
				case events.Bingo:
					fmt.Fprintf(out, "BINGO! %s with %s\n", p.PlayerName, p.Pattern)
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&clientID, "client-id", "", "device token to watch as")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Log
	defer logger.Sync()

	if cfg.JoinSecret == "" && cfg.Mesh() {
		cfg.JoinSecret = strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		log.Infof("[Main] generated mesh join secret %s", cfg.JoinSecret)
	}
	if cfg.CoordinatorSecret == "" {
		log.Warn("[Main] no coordinator secret set, coordinator routes are open")
	}

	st, err := config.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	hubOpts := []broadcast.HubOption{broadcast.WithSilenceTimeout(cfg.SilenceTimeout)}
	if cfg.NATSURL != "" {
		sink, err := broadcast.ConnectNATS(cfg.NATSURL, cfg.NATSSubject, log.Named("nats"))
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer sink.Close()
		hubOpts = append(hubOpts, broadcast.WithSink(sink))
	}
	hub := broadcast.NewHub(hubOpts...)
	engine := services.NewEngine(st, services.WithEmitter(hub.Publish), services.WithPresence(hub))

	if !cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	opts := routes.Options{CoordinatorSecret: cfg.CoordinatorSecret, SSE: cfg.SSE()}
	if cfg.Mesh() {
		opts.Mesh = broadcast.NewMesh(hub, engine, cfg.JoinSecret, originChecker(cfg.AllowedOrigins))
	}
	routes.SetupRoutes(r, controllers.NewAPI(engine, hub), hub, opts)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go hub.Run(hubCtx, cfg.SweepInterval, cfg.HeartbeatInterval)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		// streams stay open; no WriteTimeout
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("🚀 Bingo server starting on %s (storage=%s, transport=%s)", cfg.Addr(), cfg.Storage, cfg.Transport)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("[Main] shutting down")
	stopHub()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// originChecker limits mesh upgrades to the CORS origins. Requests without
// an Origin header come from non-browser peers and are allowed.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}
