package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/platinummonkey/rolesync/pkg/async"
	"github.com/platinummonkey/rolesync/pkg/config"
	"github.com/platinummonkey/rolesync/pkg/httputil"
	"github.com/platinummonkey/rolesync/pkg/notify"
	"github.com/platinummonkey/rolesync/pkg/observability"
	"github.com/platinummonkey/rolesync/pkg/rbac"
)

// Version is reported by the health endpoints.
var Version = "dev"

func newWatchCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "watch",
		Description: "Keep a synchronized mirror and serve /metrics, /health and /effective",
		Flags:       flagSet("watch", out),
		out:         out,
	}

	conn := addConnFlags(cmd.Flags)
	addr := cmd.Flags.String("addr", "", "Listen address (default ROLESYNC_METRICS_ADDR)")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		a, err := conn.open()
		if err != nil {
			return err
		}
		listen := *addr
		if listen == "" {
			listen = a.cfg.Observability.MetricsAddr
		}

		ctx, stop := observability.SignalContext(context.Background())
		defer stop()
		return runWatch(ctx, out, a, listen, nil)
	}

	return cmd
}

// runWatch serves until ctx is done. The bound address is sent on ready once the server
// is listening.
func runWatch(ctx context.Context, out io.Writer, a *app, addr string, ready chan<- string) error {
	logger := a.logger.Component("watch")
	ctx = observability.WithLogger(ctx, logger)

	obs := a.cfg.Observability
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        obs.OTelEnabled,
		Endpoint:       obs.OTelEndpoint,
		ServiceName:    obs.OTelServiceName,
		ServiceVersion: obs.OTelServiceVersion,
		Insecure:       obs.OTelInsecure,
	}, logger)
	if err != nil {
		return err
	}
	if providers != nil {
		om, err := observability.NewOTelMetrics(providers.MeterProvider)
		if err != nil {
			return err
		}
		a.metrics.WithOTel(om)
	}

	health := observability.NewHealthChecker(Version)
	health.AddCheck("authority", true, func(ctx context.Context) error {
		_, err := a.client.ListRoles(ctx)
		return err
	})

	var relay *notify.RedisRelay
	if a.cfg.Notify.RedisURL != "" {
		relay, err = notify.NewRedisRelay(ctx, a.cfg.Notify.RedisURL, a.cfg.Notify.RedisChannel, a.logger)
		if err != nil {
			return err
		}
		a.notifier.AddBroadcaster("redis", relay)
		relay.Start(ctx, a.notifier)
		health.AddCheck("redis", false, observability.RedisCheck(relay.Client()))
	}

	a.notifier.Handle(func(e rbac.Event) {
		logger.WithFields(map[string]interface{}{
			"kind":    string(e.Kind),
			"role_id": e.RoleID,
			"remote":  e.Remote,
		}).Info("change event")
	})

	if err := a.engine.Bootstrap(ctx); err != nil {
		logger.WithError(err).Warn("initial load incomplete, the refresher will retry")
	}

	if path := a.cfg.Sync.LabelsFile; path != "" {
		async.SafeGo(ctx, 0, "labels watch", func(ctx context.Context) error {
			return config.WatchLabels(ctx, path, a.engine.Catalog.SetLabels, a.logger, nil)
		})
	}

	refresher, err := rbac.NewRefresher(a.engine, a.notifier, a.cfg.Sync.RefreshSchedule, a.cfg.Authority.Timeout*4, a.logger)
	if err != nil {
		return err
	}
	refresher.Start()

	resolver := rbac.NewCachedResolver(a.engine.Resolver(nil), a.cfg.Sync.ResolverCacheSize, a.cfg.Sync.ResolverCacheTTL, a.notifier, a.metrics)

	// Another instance changed roles or permissions: reload now instead of waiting for the
	// next scheduled run, so /effective stops serving the old sets.
	a.notifier.Handle(func(e rbac.Event) {
		if !e.Remote {
			return
		}
		async.SafeGo(ctx, a.cfg.Authority.Timeout*4, "remote change reload", func(ctx context.Context) error {
			if _, err := refresher.RunOnce(ctx); err != nil {
				return err
			}
			resolver.Purge()
			return nil
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.Handle("/effective", effectiveHandler(resolver.Resolve))
	observability.RegisterHealthRoutes(mux, health)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		<-refresher.Stop().Done()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
	)(mux)
	server := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	async.SafeGo(ctx, 0, "http server", func(context.Context) error {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	fmt.Fprintf(out, "watching %s, serving on %s\n", a.cfg.Authority.URL, ln.Addr())
	if ready != nil {
		ready <- ln.Addr().String()
	}

	sm := observability.NewShutdownManager(a.logger, server, 10*time.Second)
	sm.Register("refresher", func(ctx context.Context) error {
		select {
		case <-refresher.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	sm.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, a.logger)
	})
	if relay != nil {
		sm.Register("redis relay", func(context.Context) error { return relay.Close() })
	}

	return sm.Wait(ctx)
}
