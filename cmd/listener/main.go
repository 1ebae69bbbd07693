package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/clk-66/spectrus-realtime/internal/auth"
	"github.com/clk-66/spectrus-realtime/internal/chat"
	"github.com/clk-66/spectrus-realtime/internal/client"
	"github.com/clk-66/spectrus-realtime/internal/config"
	"github.com/clk-66/spectrus-realtime/internal/db"
	"github.com/clk-66/spectrus-realtime/internal/events"
)

const version = "0.1.0"

const usage = `Realtime listener.

Connects to the chat backend as one user, logs every published event and
serves the connection status locally.

Usage:
    listener run [--config=<path>] [--watch=<cid>]... [--debug]
    listener token [--config=<path>]
    listener -h | --help
    listener --version

Options:
    -h --help          Show this screen.
    --version          Show version.
    --config=<path>    YAML config file [default: ./realtime.yaml].
    --watch=<cid>      Channel to watch once connected, as type:id.
    --debug            Log suppressed events and state internals.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	path, _ := opts.String("--config")
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	if token, _ := opts.Bool("token"); token {
		printToken(cfg)
		return
	}

	level := slog.LevelInfo
	if debug, _ := opts.Bool("--debug"); debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	var watch []chat.ChannelID
	if raw, ok := opts["--watch"].([]string); ok {
		for _, s := range raw {
			cid, err := chat.ParseChannelID(s)
			if err != nil {
				slog.Error("invalid --watch", "value", s, "err", err)
				os.Exit(1)
			}
			watch = append(watch, cid)
		}
	}

	if err := run(cfg, watch); err != nil {
		slog.Error("listener stopped", "err", err)
		os.Exit(1)
	}
}

func printToken(cfg *config.Config) {
	if cfg.UserID == "" || cfg.DevSecret == "" {
		fmt.Fprintln(os.Stderr, "user_id and dev_secret must be set")
		os.Exit(1)
	}
	token, err := auth.GenerateDevToken(cfg.UserID, cfg.DevSecret, cfg.TokenTTL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func tokenProvider(cfg *config.Config) auth.TokenProvider {
	if cfg.DevSecret != "" {
		return auth.DevTokenProvider(cfg.UserID, cfg.DevSecret, cfg.TokenTTL)
	}
	return auth.StaticToken(cfg.Token)
}

func run(cfg *config.Config, watch []chat.ChannelID) error {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	c := client.New(client.Options{
		APIKey:            cfg.APIKey,
		WSURL:             cfg.WSURL,
		APIURL:            cfg.APIURL,
		User:              chat.User{ID: cfg.UserID, Name: cfg.UserName},
		Tokens:            tokenProvider(cfg),
		RecoveryBatchSize: cfg.RecoveryBatchSize,
		DedupWindow:       cfg.DedupWindow,
		ReconnectBase:     cfg.ReconnectBase,
		ReconnectMax:      cfg.ReconnectMax,
	}, database)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var once sync.Once
	c.Subscribe(func(ev events.Event) {
		cid, _ := ev.ChannelID()
		slog.Info("event", "kind", ev.Kind(), "cid", cid.String(), "notification", events.IsNotification(ev))

		// The first connection watches the requested channels; later ones
		// are restored by recovery.
		if cc, ok := ev.(*events.ConnectionChangedEvent); ok && cc.State.IsConnected() {
			once.Do(func() { go watchAll(ctx, c, watch) })
		}
	})

	srv := &http.Server{
		Addr:              cfg.StatusAddr,
		Handler:           statusRouter(c),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("status server listening", "addr", cfg.StatusAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func watchAll(ctx context.Context, c *client.Client, cids []chat.ChannelID) {
	for _, cid := range cids {
		if _, err := c.Watch(ctx, cid); err != nil {
			slog.Warn("watch failed", "cid", cid.String(), "err", err)
		}
	}
}

func statusRouter(c *client.Client) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
		state := c.State()
		var userID string
		if u := c.CurrentUser(); u != nil {
			userID = u.ID
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":           state.Status,
			"connection_id":    state.ConnectionID,
			"user_id":          userID,
			"unread":           c.Unread(),
			"watched_channels": c.WatchedChannels(),
			"requests_held":    c.RequestsHeld(),
		})
	})

	r.Get("/channels", func(w http.ResponseWriter, r *http.Request) {
		list, err := c.Channels(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list channels"})
			return
		}
		writeJSON(w, http.StatusOK, list)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
