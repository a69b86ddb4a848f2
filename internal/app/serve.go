// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cristalhq/acmd"
	"golang.org/x/sync/errgroup"

	"codeberg.org/readeck/authzbridge/configs"
	"codeberg.org/readeck/authzbridge/internal/auth"
	"codeberg.org/readeck/authzbridge/internal/metrics"
	"codeberg.org/readeck/authzbridge/internal/server"
	"codeberg.org/readeck/authzbridge/pkg/kvstore"
)

func init() {
	commands = append(commands, acmd.Command{
		Name:        "serve",
		Description: "Start the HTTP server",
		ExecFunc:    runServe,
	})
}

func runServe(ctx context.Context, args []string) error {
	var flags appFlags
	fs := flags.Flags()
	host := fs.String("host", "", "server host")
	port := fs.Int("port", 0, "server port")

	if ok, err := parseFlags(fs, args); !ok {
		return err
	}

	if err := appPreRun(&flags); err != nil {
		return err
	}
	// Flags override the loaded configuration.
	if *host != "" {
		configs.Config.Server.Host = *host
	}
	if *port > 0 {
		configs.Config.Server.Port = *port
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close() // nolint:errcheck

	registry, err := buildRegistry()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	authenticator, err := withAuthCache(ctx, store)
	if err != nil {
		return err
	}

	providers := []auth.Provider{
		&auth.BasicAuthProvider{Users: authenticator},
	}
	if h := configs.Config.Users.AuthHeader; h != "" {
		providers = append(providers, &auth.HeaderProvider{Header: h, Users: store})
	}

	s := server.New(server.Options{
		Registry:       registry,
		Providers:      providers,
		Prefix:         configs.Config.Server.Prefix,
		TrustedProxies: configs.TrustedProxies(),
		Metrics:        metrics.New(),
	})
	s.Init()

	return listenAndServe(ctx, s)
}

// withAuthCache wraps a with an authentication cache, when enabled.
// The memory cache is purged until ctx is done.
func withAuthCache(ctx context.Context, a auth.Authenticator) (auth.Authenticator, error) {
	ttl := time.Duration(configs.Config.Users.CacheTTL)
	if ttl == 0 {
		return a, nil
	}

	if url := configs.Config.Users.CacheRedis; url != "" {
		store, err := kvstore.OpenRedis(ctx, url, "authzbridge")
		if err != nil {
			return nil, err
		}
		context.AfterFunc(ctx, func() { store.Close() }) // nolint:errcheck
		slog.Debug("authentication cache", slog.String("store", "redis"), slog.Duration("ttl", ttl))
		return auth.NewCachedAuthenticator(a, store, ttl), nil
	}

	store := kvstore.NewMemStore()
	go func() {
		t := time.NewTicker(ttl)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				store.Purge()
			}
		}
	}()
	slog.Debug("authentication cache", slog.String("store", "memory"), slog.Duration("ttl", ttl))
	return auth.NewCachedAuthenticator(a, store, ttl), nil
}

// listenAndServe runs the HTTP server until ctx is done, then shuts it
// down gracefully.
func listenAndServe(ctx context.Context, handler http.Handler) error {
	srv := &http.Server{
		Addr:              configs.Config.Server.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server started",
			slog.String("url", fmt.Sprintf("http://%s%s", srv.Addr, configs.Config.Server.Prefix)),
			slog.String("version", configs.Version()),
		)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("stopping server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}
