package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/rolesync/pkg/authority"
	"github.com/platinummonkey/rolesync/pkg/config"
	"github.com/platinummonkey/rolesync/pkg/observability"
	"github.com/platinummonkey/rolesync/pkg/rbac"
)

// connFlags are accepted by every subcommand.
type connFlags struct {
	authority string
	token     string
	envFile   string
}

func addConnFlags(fs *flag.FlagSet) *connFlags {
	c := &connFlags{}
	fs.StringVar(&c.authority, "authority", "", "Authority base URL (overrides ROLESYNC_AUTHORITY_URL)")
	fs.StringVar(&c.token, "token", "", "Bearer token (overrides ROLESYNC_AUTHORITY_TOKEN)")
	fs.StringVar(&c.envFile, "env-file", "", "dotenv file to load before reading the environment")
	return c
}

// app is the wiring shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *observability.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
	client   *authority.Client
	notifier *rbac.Notifier
	engine   *rbac.Engine
}

func (c *connFlags) open() (*app, error) {
	if err := config.LoadEnvFile(c.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfigWith(func(cfg *config.Config) {
		if c.authority != "" {
			cfg.Authority.URL = c.authority
		}
		if c.token != "" {
			cfg.Authority.Token = c.token
		}
	})
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stderr)
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	client, err := authority.NewClient(authority.Config{
		BaseURL:  cfg.Authority.URL,
		Token:    cfg.Authority.Token,
		Timeout:  cfg.Authority.Timeout,
		RetryMax: cfg.Authority.RetryMax,
	}, logger, metrics)
	if err != nil {
		return nil, err
	}

	notifier := rbac.NewNotifier(cfg.NotifierConfig(), logger, metrics)
	engine := rbac.NewEngine(client,
		rbac.WithLogger(logger),
		rbac.WithMetrics(metrics),
		rbac.WithNotifier(notifier),
		rbac.WithRefreshConcurrency(cfg.Sync.RefreshConcurrency),
		rbac.WithPermissionQuery(cfg.PermissionQuery()),
	)

	if cfg.Sync.LabelsFile != "" {
		labels, err := config.LoadLabels(cfg.Sync.LabelsFile)
		if err != nil {
			return nil, err
		}
		engine.Catalog.SetLabels(labels)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  metrics,
		client:   client,
		notifier: notifier,
		engine:   engine,
	}, nil
}

// findRole loads the role list and returns role id.
func (a *app) findRole(ctx context.Context, id int64) (rbac.Role, error) {
	if _, err := a.engine.Roles.LoadAll(ctx); err != nil {
		return rbac.Role{}, friendly(err)
	}
	role, ok := a.engine.Roles.Get(id)
	if !ok {
		return rbac.Role{}, fmt.Errorf("role %d not found", id)
	}
	return role, nil
}

// userError renders the wrapped error the way the role screen shows it.
type userError struct {
	err error
}

func (e *userError) Error() string { return rbac.UserMessage(e.err) }

func (e *userError) Unwrap() error { return e.err }

func friendly(err error) error {
	if err == nil {
		return nil
	}
	var ue *userError
	if errors.As(err, &ue) {
		return err
	}
	return &userError{err: err}
}

// parseIDs parses a comma separated id list. Empty input gives an empty list.
func parseIDs(value string) ([]int64, error) {
	ids := []int64{}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// flagSet returns a flag set that reports errors instead of exiting.
func flagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

// visited reports which flags were set on the command line.
func visited(fs *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
