package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/platinummonkey/rolesync/pkg/notify"
	"github.com/platinummonkey/rolesync/pkg/rbac"
)

// checkedBroadcaster remembers the last failure, since the notifier only logs them.
type checkedBroadcaster struct {
	rbac.Broadcaster

	mu  sync.Mutex
	err error
}

func (b *checkedBroadcaster) Broadcast(ctx context.Context, n rbac.Notification) error {
	err := b.Broadcaster.Broadcast(ctx, n)
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
	return err
}

func (b *checkedBroadcaster) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func newNotifyCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "notify",
		Description: "Ask connected users to refresh their permissions",
		Flags:       flagSet("notify", out),
		out:         out,
	}

	conn := addConnFlags(cmd.Flags)
	title := cmd.Flags.String("title", "", "Notification title (default ROLESYNC_NOTIFY_TITLE)")
	message := cmd.Flags.String("message", "", "Notification message (default ROLESYNC_NOTIFY_MESSAGE)")
	audience := cmd.Flags.String("audience", "", "Comma separated system roles to notify")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		a, err := conn.open()
		if err != nil {
			return err
		}

		nc := a.cfg.NotifierConfig()
		if *title != "" {
			nc.Title = *title
		}
		if *message != "" {
			nc.Message = *message
		}
		if *audience != "" {
			nc.Audience = nil
			for _, r := range splitList(*audience) {
				role := rbac.SystemRole(strings.ToLower(r))
				if !role.Valid() {
					return fmt.Errorf("unknown system role %q", r)
				}
				nc.Audience = append(nc.Audience, role)
			}
		}

		ctx := context.Background()
		notifier := rbac.NewNotifier(nc, a.logger, a.metrics)
		authorityChannel := &checkedBroadcaster{Broadcaster: a.client}
		notifier.AddBroadcaster("authority", authorityChannel)

		var redisChannel *checkedBroadcaster
		if a.cfg.Notify.RedisURL != "" {
			relay, err := notify.NewRedisRelay(ctx, a.cfg.Notify.RedisURL, a.cfg.Notify.RedisChannel, a.logger)
			if err != nil {
				return err
			}
			defer relay.Close()
			redisChannel = &checkedBroadcaster{Broadcaster: relay}
			notifier.AddBroadcaster("redis", redisChannel)
		}

		notifier.NotifyPermissionsChanged(ctx)

		// Broadcasting is best-effort: failed channels are reported, not returned.
		if err := authorityChannel.Err(); err != nil {
			fmt.Fprintf(out, "warning: authority broadcast failed: %s\n", rbac.UserMessage(err))
		}
		if redisChannel != nil {
			if err := redisChannel.Err(); err != nil {
				fmt.Fprintf(out, "warning: redis relay failed: %v\n", err)
			}
		}
		fmt.Fprintf(out, "notified %s\n", joinRoles(nc.Audience))
		return nil
	}

	return cmd
}

func joinRoles(roles []rbac.SystemRole) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}
