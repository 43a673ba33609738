package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rayattack/amebo/internal/catalog"
	"github.com/rayattack/amebo/internal/config"
	"github.com/rayattack/amebo/internal/dispatcher"
	"github.com/rayattack/amebo/internal/httpapi"
	"github.com/rayattack/amebo/internal/launcher"
	"github.com/rayattack/amebo/internal/mlog"
	"github.com/rayattack/amebo/internal/publisher"
	"github.com/rayattack/amebo/internal/replay"
	"github.com/rayattack/amebo/internal/schemacache"
	"github.com/rayattack/amebo/internal/store"
	"github.com/rayattack/amebo/internal/vault"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := openStore(ctx, cfg)
	if err != nil {
		logger.Errorf("failed to open store: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	cat := catalog.New(db)

	if err := bootstrapAdmin(ctx, db, cfg); err != nil {
		logger.Errorf("failed to bootstrap administrator credentials: %v", err)
		os.Exit(1)
	}

	v := vault.New(cfg.Secret, adminLookup(db), cat.SecretOf)

	schemas := schemacache.New()
	pub := publisher.New(db, cat, schemas)
	rep := replay.New(db, time.Duration(cfg.RequestTimeoutSeconds)*time.Second)

	api := httpapi.New(cat, pub, rep, v, logger, cfg.MaxPagination)

	disp := dispatcher.New(db, dispatcher.Config{
		EnvelopeSize:   cfg.EnvelopeSize,
		RestWhen:       cfg.RestWhen,
		IdleSeconds:    cfg.IdleSeconds,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
	}, logger)

	l := launcher.New(logger)

	l.Add("http", func(ctx context.Context) error {
		app := api.Router()

		go func() {
			<-ctx.Done()
			_ = app.ShutdownWithTimeout(5 * time.Second)
		}()

		if err := app.Listen(cfg.ServerAddress); err != nil && err != http.ErrServerClosed {
			return err
		}

		return nil
	})

	l.Add("dispatcher", func(ctx context.Context) error {
		disp.Run(ctx)
		return nil
	})

	logger.Infof("amebo listening on %s (engine=%s)", cfg.ServerAddress, cfg.Engine)

	l.Run(ctx)
}

func newLogger(cfg *config.Config) (mlog.Logger, error) {
	if cfg.EnvName == "local" {
		return &mlog.StdLogger{}, nil
	}

	return mlog.NewZapLogger(cfg.EnvName, cfg.LogLevel)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Engine {
	case config.EngineNetworked:
		return store.NewPostgresStore(ctx, cfg.DSN, cfg.SchemaName, "migrations/postgres")
	default:
		return store.NewSQLiteStore(ctx, cfg.DSN, "migrations/sqlite")
	}
}

func adminLookup(db store.Store) vault.AdminLookup {
	return func(ctx context.Context, username string) (string, error) {
		return lookupAdminHash(ctx, db, username)
	}
}
