package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/kalambet/wterm/internal/config"
	"github.com/kalambet/wterm/internal/lifecycle"
	"github.com/kalambet/wterm/internal/locale"
	"github.com/kalambet/wterm/internal/remote"
	"github.com/kalambet/wterm/internal/schema"
	"github.com/kalambet/wterm/internal/settings"
	"github.com/kalambet/wterm/internal/storage"
)

// app is the wired terminal: storage, catalog, schema and the settings store
// with its transport to the peer.
type app struct {
	cfg     config.Config
	db      *storage.Store
	catalog *locale.Catalog
	reg     *schema.Registry
	store   *settings.Store
	hooks   lifecycle.Hooks

	stopDispatch context.CancelFunc
	dispatchDone chan struct{}
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// openApp loads the app config and wires the settings store. The caller must
// Close the result.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log.Level)
	return newApp(ctx, cfg, titleFor(os.Stdout))
}

func titleFor(f *os.File) settings.TitleSetter {
	if !term.IsTerminal(int(f.Fd())) {
		return nil
	}
	return termTitle{w: f}
}

func newApp(ctx context.Context, cfg config.Config, title settings.TitleSetter) (*app, error) {
	db, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	a := &app{
		cfg:     cfg,
		db:      db,
		catalog: locale.New(),
	}

	a.reg, err = schema.Terminal(a.catalog)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("building schema: %w", err)
	}

	var transport settings.Transport = remote.Loopback{}
	if cfg.Remote.URL != "" {
		client := remote.NewClient(cfg.Remote.URL, cfg.Remote.Token, cfg.Remote.Timeout)
		d := remote.NewDispatcher(client, cfg.Remote.QueueSize)
		runCtx, cancel := context.WithCancel(ctx)
		a.stopDispatch = cancel
		a.dispatchDone = make(chan struct{})
		go func() {
			defer close(a.dispatchDone)
			d.Run(runCtx)
		}()
		transport = d
	}

	a.store = settings.New(a.reg, settings.Deps{
		Storage:   db,
		Locale:    a.catalog,
		Transport: transport,
		Title:     title,
		Recorder:  db,
		Logger:    slog.Default(),
		Highlight: highlight,
		Rollback:  func(msg string) { printWarning("%s", msg) },
	})

	a.hooks.OnInit(a.store.ApplyLocale)
	a.hooks.Init()
	return a, nil
}

// Close waits for outstanding confirmations, stops the dispatcher and closes
// storage. Confirmations still pending after the remote timeout are rejected
// and rolled back.
func (a *app) Close() error {
	if a.dispatchDone != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Remote.Timeout+time.Second)
		if err := a.store.Wait(ctx); err != nil {
			slog.Warn("confirmations still pending at exit", "pending", a.store.Pending())
		}
		cancel()
		a.stopDispatch()
		<-a.dispatchDone
	}
	return a.db.Close()
}

// withApp runs fn against a freshly opened app and closes it afterwards.
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	fnErr := fn(a)
	if err := a.Close(); err != nil && fnErr == nil {
		return fmt.Errorf("closing: %w", err)
	}
	return fnErr
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprint(v)
}
