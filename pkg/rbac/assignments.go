package rbac

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"sync"

	"github.com/platinummonkey/rolesync/pkg/async"
	"github.com/platinummonkey/rolesync/pkg/observability"
)

// DefaultRefreshConcurrency bounds the per-role fan-out of RefreshAll.
const DefaultRefreshConcurrency = 8

// AssignmentMap maps role id to its assigned permissions. A missing key means "not loaded";
// a present key is always a complete (possibly empty) set.
type AssignmentMap struct {
	authority   Authority
	concurrency int
	logger      *observability.Logger
	metrics     *observability.Metrics

	mu      sync.RWMutex
	entries map[int64][]Permission
	started uint64 // generation handed to the latest RefreshAll
	applied uint64 // generation of the refresh currently in entries
}

// NewAssignmentMap creates an empty map. concurrency <= 0 uses DefaultRefreshConcurrency.
func NewAssignmentMap(authority Authority, concurrency int, logger *observability.Logger, metrics *observability.Metrics) *AssignmentMap {
	if concurrency <= 0 {
		concurrency = DefaultRefreshConcurrency
	}
	return &AssignmentMap{
		authority:   authority,
		concurrency: concurrency,
		logger:      observability.OrNop(logger).Component("assignments"),
		metrics:     metrics,
		entries:     make(map[int64][]Permission),
	}
}

// LoadFor fetches and stores the permissions of one role. A failed fetch stores an empty
// set for the role; the error is returned for reporting only.
func (m *AssignmentMap) LoadFor(ctx context.Context, roleID int64) ([]Permission, error) {
	perms, err := m.fetch(ctx, roleID)

	m.mu.Lock()
	m.entries[roleID] = perms
	m.mu.Unlock()

	return clonePermissions(perms), err
}

// RefreshAll reloads the permissions of every role concurrently and swaps the whole map
// in one step. Per-role failures degrade to an empty set and are returned keyed by role.
// A refresh that started before the one already applied is discarded.
func (m *AssignmentMap) RefreshAll(ctx context.Context, roles []Role) map[int64]error {
	m.mu.Lock()
	m.started++
	gen := m.started
	m.mu.Unlock()

	ids := make([]int64, 0, len(roles))
	for _, r := range roles {
		ids = append(ids, r.ID)
	}

	results := async.Settle(ctx, ids, m.concurrency, m.fetch)

	next := make(map[int64][]Permission, len(results))
	failures := make(map[int64]error)
	for _, res := range results {
		if res.Value == nil {
			res.Value = []Permission{}
		}
		next[res.Key] = res.Value
		if res.Err != nil {
			failures[res.Key] = res.Err
		}
	}

	m.mu.Lock()
	applied := gen > m.applied
	if applied {
		m.entries = next
		m.applied = gen
	}
	m.mu.Unlock()

	m.metrics.RefreshCompleted(applied)
	if !applied {
		m.logger.WithField("generation", gen).Debug("discarding superseded refresh")
	}
	return failures
}

// fetch never returns a nil slice so an entry always reads as a definite set.
func (m *AssignmentMap) fetch(ctx context.Context, roleID int64) ([]Permission, error) {
	perms, err := m.authority.ListRolePermissions(ctx, roleID)
	if err != nil {
		m.metrics.AssignmentFetchFailed()
		m.logger.WithField("role_id", roleID).WithError(err).Warn("role permissions unavailable, using empty set")
		return []Permission{}, &FetchError{Op: "load role permissions", Err: err}
	}
	if perms == nil {
		perms = []Permission{}
	}
	return perms, nil
}

// Get returns the loaded set for roleID; ok is false when it was never loaded.
func (m *AssignmentMap) Get(roleID int64) ([]Permission, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	perms, ok := m.entries[roleID]
	if !ok {
		return nil, false
	}
	return clonePermissions(perms), true
}

// Drop forgets the entry for roleID.
func (m *AssignmentMap) Drop(roleID int64) {
	m.mu.Lock()
	delete(m.entries, roleID)
	m.mu.Unlock()
}

// Snapshot copies the whole map.
func (m *AssignmentMap) Snapshot() map[int64][]Permission {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64][]Permission, len(m.entries))
	for id, perms := range m.entries {
		out[id] = clonePermissions(perms)
	}
	return out
}

// Fingerprint hashes the role ids and their permission ids, independent of order.
func (m *AssignmentMap) Fingerprint() string {
	snapshot := m.Snapshot()

	roleIDs := make([]int64, 0, len(snapshot))
	for id := range snapshot {
		roleIDs = append(roleIDs, id)
	}
	sort.Slice(roleIDs, func(i, j int) bool { return roleIDs[i] < roleIDs[j] })

	h := sha256.New()
	var buf [8]byte
	for _, roleID := range roleIDs {
		binary.BigEndian.PutUint64(buf[:], uint64(roleID))
		h.Write(buf[:])
		permIDs := PermissionIDs(snapshot[roleID])
		sort.Slice(permIDs, func(i, j int) bool { return permIDs[i] < permIDs[j] })
		binary.BigEndian.PutUint64(buf[:], uint64(len(permIDs)))
		h.Write(buf[:])
		for _, id := range permIDs {
			binary.BigEndian.PutUint64(buf[:], uint64(id))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// PermissionIDs extracts the ids of perms in order.
func PermissionIDs(perms []Permission) []int64 {
	ids := make([]int64, 0, len(perms))
	for _, p := range perms {
		ids = append(ids, p.ID)
	}
	return ids
}
