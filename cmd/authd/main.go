package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/notify"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store/memstore"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store/pgstore"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/thirdparty"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	lg, err := utilities.Init(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, sugar); err != nil {
		sugar.Errorw("service-auth-go stopped", "error", err)
		os.Exit(1)
	}
	sugar.Info("goodbye")
}

// services is everything a transport layer mounts.
type services struct {
	Auth       *auth.Service
	ThirdParty *thirdparty.Service
}

// run wires the services and blocks until ctx is done.
func run(ctx context.Context, cfg config.Config, sugar *zap.SugaredLogger) error {
	sugar.Infow("starting service-auth-go", "env", cfg.Env, "store", cfg.StoreDriver)

	st, closeStore, err := openStore(ctx, cfg, sugar)
	if err != nil {
		return err
	}
	defer closeStore()

	svcs, err := build(cfg, st, sugar)
	if err != nil {
		return err
	}
	sugar.Infow("service is running; press Ctrl+C to stop", "providers", svcs.ThirdParty.Providers())

	<-ctx.Done()
	sugar.Info("shutting down")
	return nil
}

func openStore(ctx context.Context, cfg config.Config, sugar *zap.SugaredLogger) (store.Store, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		sugar.Warn("using in-memory store; data is lost on exit")
		return memstore.New(), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Database.Timeout)
	defer cancel()
	db, err := database.Connect(connectCtx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("db connect: %w", err)
	}
	pg := pgstore.New(db)
	if err := pg.EnsureSchema(connectCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return pg, func() {
		doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(doneCtx); err != nil {
			sugar.Warnf("db ping on shutdown failed: %v", err)
		}
		db.Close()
	}, nil
}

func build(cfg config.Config, st store.Store, sugar *zap.SugaredLogger) (*services, error) {
	ids, err := utilities.NewIDGenerator(cfg.SnowflakeNode)
	if err != nil {
		return nil, err
	}

	logOnly := notify.LogDispatcher{Logger: sugar}
	router := notify.Router{"email": logOnly, "sms": logOnly}
	if cfg.Postmark.Enabled() {
		pm, err := notify.NewPostmarkDispatcher(cfg.Postmark)
		if err != nil {
			return nil, err
		}
		router["email"] = pm
	}

	authSvc, err := auth.NewService(cfg.Auth, auth.Deps{
		Store:    st,
		IDs:      ids,
		Logger:   sugar,
		Notifier: router,
	})
	if err != nil {
		return nil, err
	}

	var providers []thirdparty.IdentityProvider
	p := cfg.Providers
	if p.Wechat.Enabled() {
		providers = append(providers, thirdparty.NewWechatProvider(p.Wechat, nil))
	}
	if p.Apple.Enabled() {
		providers = append(providers, thirdparty.NewAppleProvider(p.Apple, nil, nil))
	}
	if p.Google.Enabled() {
		providers = append(providers, thirdparty.NewGoogleProvider(p.Google))
	}
	if p.Facebook.Enabled() {
		providers = append(providers, thirdparty.NewFacebookProvider(p.Facebook))
	}
	tp := thirdparty.NewService(authSvc, st, thirdparty.NewRegistry(providers...), sugar, nil)
	return &services{Auth: authSvc, ThirdParty: tp}, nil
}
