package rbac

import (
	"context"
	"sync"
	"time"

	"github.com/platinummonkey/rolesync/pkg/observability"
)

// EventKind identifies what changed.
type EventKind string

const (
	// EventPermissionsChanged asks every session to refresh its cached permissions.
	EventPermissionsChanged EventKind = "permissions_changed"
	EventRoleCreated        EventKind = "role_created"
	EventRoleUpdated        EventKind = "role_updated"
	EventRoleDeleted        EventKind = "role_deleted"
	// EventAssignmentsChanged is raised when a scheduled refresh sees different assignments.
	EventAssignmentsChanged EventKind = "assignments_changed"
)

// Event is delivered to every subscriber of a Notifier.
type Event struct {
	Kind   EventKind `json:"kind"`
	RoleID int64     `json:"role_id,omitempty"`
	Remote bool      `json:"-"`
	At     time.Time `json:"at"`
}

// NotifierConfig holds the text of the remote broadcast.
type NotifierConfig struct {
	Title    string
	Message  string
	Audience []SystemRole
}

// DefaultNotifierConfig returns the broadcast sent after permissions are updated.
func DefaultNotifierConfig() NotifierConfig {
	return NotifierConfig{
		Title:    "Actualización de Permisos",
		Message:  "Se han actualizado los permisos del sistema. Por favor, actualiza tu sesión para aplicar los cambios.",
		Audience: []SystemRole{SystemRoleSupervisor, SystemRoleTrainer, SystemRoleEmployee},
	}
}

// Subscription is a channel subscriber. Close it to stop delivery.
type Subscription struct {
	C <-chan Event

	ch       chan Event
	id       uint64
	notifier *Notifier
	once     sync.Once
}

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.notifier.mu.Lock()
		delete(s.notifier.subs, s.id)
		close(s.ch)
		s.notifier.mu.Unlock()
	})
}

type namedBroadcaster struct {
	name string
	b    Broadcaster
}

// Notifier is a process-local publish/subscribe hub for permission changes, with
// best-effort forwarding to remote broadcasters.
type Notifier struct {
	cfg     NotifierConfig
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu           sync.RWMutex
	subs         map[uint64]chan Event
	handlers     []func(Event)
	nextID       uint64
	broadcasters []namedBroadcaster
}

// NewNotifier creates a notifier with no subscribers and no broadcasters.
func NewNotifier(cfg NotifierConfig, logger *observability.Logger, metrics *observability.Metrics) *Notifier {
	return &Notifier{
		cfg:     cfg,
		logger:  observability.OrNop(logger).Component("notifier"),
		metrics: metrics,
		now:     time.Now,
		subs:    make(map[uint64]chan Event),
	}
}

// AddBroadcaster registers a remote channel used by NotifyPermissionsChanged.
func (n *Notifier) AddBroadcaster(name string, b Broadcaster) {
	n.mu.Lock()
	n.broadcasters = append(n.broadcasters, namedBroadcaster{name: name, b: b})
	n.mu.Unlock()
}

// Subscribe returns a buffered channel subscription. Events that do not fit in the buffer
// are dropped for that subscriber.
func (n *Notifier) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subs[id] = ch
	n.mu.Unlock()

	return &Subscription{C: ch, ch: ch, id: id, notifier: n}
}

// Handle registers fn to be called synchronously for every published event.
func (n *Notifier) Handle(fn func(Event)) {
	n.mu.Lock()
	n.handlers = append(n.handlers, fn)
	n.mu.Unlock()
}

// Publish delivers e to local subscribers only.
func (n *Notifier) Publish(e Event) {
	if e.At.IsZero() {
		e.At = n.now()
	}

	n.mu.RLock()
	handlers := make([]func(Event), len(n.handlers))
	copy(handlers, n.handlers)
	for _, ch := range n.subs {
		select {
		case ch <- e:
		default:
			n.metrics.EventDropped()
			n.logger.WithField("kind", string(e.Kind)).Warn("subscriber full, event dropped")
		}
	}
	n.mu.RUnlock()

	for _, fn := range handlers {
		fn(e)
	}
}

// NotifyPermissionsChanged publishes EventPermissionsChanged locally, then informs every
// remote broadcaster. Remote failures are logged and counted, never returned: the local
// event is the primary signal.
func (n *Notifier) NotifyPermissionsChanged(ctx context.Context) {
	n.Publish(Event{Kind: EventPermissionsChanged})

	n.mu.RLock()
	broadcasters := make([]namedBroadcaster, len(n.broadcasters))
	copy(broadcasters, n.broadcasters)
	n.mu.RUnlock()

	msg := Notification{
		Title:       n.cfg.Title,
		Message:     n.cfg.Message,
		Type:        "info",
		TargetRoles: n.cfg.Audience,
	}
	for _, nb := range broadcasters {
		if err := nb.b.Broadcast(ctx, msg); err != nil {
			n.metrics.BroadcastFailed(nb.name)
			n.logger.WithField("channel", nb.name).WithError(err).Warn("remote broadcast failed")
		}
	}
}
