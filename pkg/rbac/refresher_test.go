package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefresher_RunOnce(t *testing.T) {
	notifier := NewNotifier(DefaultNotifierConfig(), nil, nil)
	sub := notifier.Subscribe(4)
	defer sub.Close()
	e, fa := newTestEngine(t, WithNotifier(notifier))

	r, err := NewRefresher(e, notifier, "", 0, nil)
	require.NoError(t, err)

	changed, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, sub.C, 0)

	fa.SetAssigned(2, 30)
	changed, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)

	ev := <-sub.C
	assert.Equal(t, EventAssignmentsChanged, ev.Kind)

	perms, _ := e.Assignments.Get(2)
	assert.Equal(t, []int64{30}, PermissionIDs(perms))
}

func TestRefresher_ReloadFailure(t *testing.T) {
	e, fa := newTestEngine(t)
	r, err := NewRefresher(e, nil, "@every 1h", time.Second, nil)
	require.NoError(t, err)

	fa.SetFail("ListRoles", remoteErr("list roles", 0, ""))
	changed, err := r.RunOnce(context.Background())

	assert.ErrorIs(t, err, ErrFetch)
	assert.False(t, changed)
}

func TestRefresher_InvalidSchedule(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := NewRefresher(e, nil, "every now and then", 0, nil)

	assert.Error(t, err)
}

func TestRefresher_StartStop(t *testing.T) {
	e, _ := newTestEngine(t)
	r, err := NewRefresher(e, nil, "@every 1h", 0, nil)
	require.NoError(t, err)

	r.Start()
	ctx := r.Stop()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("refresher did not stop")
	}
}
