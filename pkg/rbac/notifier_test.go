package rbac

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/rolesync/pkg/observability"
)

type recordingBroadcaster struct {
	err  error
	sent []Notification
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, n Notification) error {
	b.sent = append(b.sent, n)
	return b.err
}

func TestNotifier_SubscribeAndHandle(t *testing.T) {
	n := NewNotifier(DefaultNotifierConfig(), nil, nil)
	sub := n.Subscribe(2)
	var handled []EventKind
	n.Handle(func(e Event) { handled = append(handled, e.Kind) })

	n.Publish(Event{Kind: EventRoleUpdated, RoleID: 4})

	ev := <-sub.C
	assert.Equal(t, EventRoleUpdated, ev.Kind)
	assert.Equal(t, int64(4), ev.RoleID)
	assert.False(t, ev.At.IsZero())
	assert.Equal(t, []EventKind{EventRoleUpdated}, handled)

	sub.Close()
	sub.Close()
	_, open := <-sub.C
	assert.False(t, open)

	n.Publish(Event{Kind: EventRoleDeleted})
	assert.Len(t, handled, 2)
}

func TestNotifier_SlowSubscriberDrops(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	n := NewNotifier(DefaultNotifierConfig(), nil, metrics)
	sub := n.Subscribe(1)
	defer sub.Close()

	n.Publish(Event{Kind: EventRoleCreated, RoleID: 1})
	n.Publish(Event{Kind: EventRoleCreated, RoleID: 2})

	ev := <-sub.C
	assert.Equal(t, int64(1), ev.RoleID)
	assert.Len(t, sub.C, 0)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.NotifierDroppedTotal))
}

func TestNotifier_NotifyPermissionsChanged(t *testing.T) {
	var logs bytes.Buffer
	n := NewNotifier(DefaultNotifierConfig(), observability.NewLogger(observability.DebugLevel, &logs), nil)
	ok := &recordingBroadcaster{}
	broken := &recordingBroadcaster{err: errors.New("connection refused")}
	n.AddBroadcaster("broken", broken)
	n.AddBroadcaster("authority", ok)

	var order []string
	n.Handle(func(e Event) {
		order = append(order, string(e.Kind))
		assert.Empty(t, ok.sent, "local event is published before any broadcast")
	})

	n.NotifyPermissionsChanged(context.Background())

	assert.Equal(t, []string{string(EventPermissionsChanged)}, order)
	require.Len(t, ok.sent, 1, "a failing channel does not stop the others")
	msg := ok.sent[0]
	assert.Equal(t, "Actualización de Permisos", msg.Title)
	assert.Equal(t, "info", msg.Type)
	assert.Equal(t, []SystemRole{SystemRoleSupervisor, SystemRoleTrainer, SystemRoleEmployee}, msg.TargetRoles)
	assert.Contains(t, logs.String(), "remote broadcast failed")
}
