package gateway

import (
	"context"
	"sync"
	"time"

	"MedLink/logger"
	"MedLink/service/storage"
)

// ThreadSource resolves the "interested parties" of a presence
// transition: the users that share an inbox thread with the subject.
type ThreadSource interface {
	Counterparts(ctx context.Context, userID string) ([]string, error)
}

// LastSeenStore persists the last-seen timestamp on the durable user
// record. Written only on the transition to fully offline.
type LastSeenStore interface {
	SetLastSeen(ctx context.Context, userID string, at time.Time) error
}

type RegistryConf struct {
	NodeID         string
	PresenceTTL    time.Duration
	MirrorPresence bool             // mirror online state into redis for the REST tier
	Clock          func() time.Time // injectable for tests; nil => time.Now
}

func (c *RegistryConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.PresenceTTL <= 0 {
		c.PresenceTTL = 90 * time.Second
	}
}

// Registry tracks every live connection by user. It is the only
// cross-connection shared state besides the call-session map; every
// mutation holds the mutex. A user is online iff it has at least one
// registered connection.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]Conn // user -> conn_id -> conn

	conf    RegistryConf
	threads ThreadSource
	users   LastSeenStore
}

func NewRegistry(conf RegistryConf, threads ThreadSource, users LastSeenStore) *Registry {
	conf.norm()
	return &Registry{
		byUser:  make(map[string]map[string]Conn),
		conf:    conf,
		threads: threads,
		users:   users,
	}
}

// Register adds the connection to its user's set. On the empty ->
// non-empty transition the user goes online: the redis mirror is
// refreshed and interested parties get a userStatus event.
func (r *Registry) Register(ctx context.Context, c Conn) {
	r.mu.Lock()
	m := r.byUser[c.UserID()]
	wentOnline := len(m) == 0
	if m == nil {
		m = make(map[string]Conn)
		r.byUser[c.UserID()] = m
	}
	m[c.ID()] = c
	r.mu.Unlock()

	if !wentOnline {
		return
	}
	if r.conf.MirrorPresence {
		if err := storage.PresenceOnline(c.UserID(), r.conf.NodeID, r.conf.PresenceTTL); err != nil {
			logger.Warnf("[presence] mirror online failed user=%s err=%v", c.UserID(), err)
		}
	}
	r.broadcastStatus(ctx, c.UserID(), "online", time.Time{})
}

// Deregister removes one connection. On the last removal the user goes
// offline: last_seen is persisted to the durable user record, the
// mirror key is dropped, and interested parties are told exactly once.
func (r *Registry) Deregister(ctx context.Context, userID, connID string) {
	r.mu.Lock()
	m := r.byUser[userID]
	if m == nil {
		r.mu.Unlock()
		return
	}
	if _, ok := m[connID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(m, connID)
	wentOffline := len(m) == 0
	if wentOffline {
		delete(r.byUser, userID)
	}
	r.mu.Unlock()

	if !wentOffline {
		return
	}
	lastSeen := r.conf.Clock()
	if err := r.users.SetLastSeen(ctx, userID, lastSeen); err != nil {
		logger.Errorf("[presence] persist last_seen failed user=%s err=%v", userID, err)
	}
	if r.conf.MirrorPresence {
		if err := storage.PresenceOffline(userID); err != nil {
			logger.Warnf("[presence] mirror offline failed user=%s err=%v", userID, err)
		}
	}
	r.broadcastStatus(ctx, userID, "offline", lastSeen)
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// ConnsOf returns the user's live connections.
func (r *Registry) ConnsOf(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byUser[userID]
	if len(m) == 0 {
		return nil
	}
	out := make([]Conn, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

// ConnCount reports how many live connections a user holds.
func (r *Registry) ConnCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

// PushUser delivers an event to every live connection of the user and
// reports how many connections were targeted.
func (r *Registry) PushUser(userID string, evt Outbound) int {
	conns := r.ConnsOf(userID)
	for _, c := range conns {
		c.Push(evt)
	}
	return len(conns)
}

// broadcastStatus is scoped to thread counterparts, not the whole
// process, which bounds the fan-out cost of every transition.
func (r *Registry) broadcastStatus(ctx context.Context, userID, status string, lastSeen time.Time) {
	peers, err := r.threads.Counterparts(ctx, userID)
	if err != nil {
		logger.Warnf("[presence] counterpart lookup failed user=%s err=%v", userID, err)
		return
	}
	evt := BuildUserStatus(userID, status, lastSeen)
	for _, peer := range peers {
		r.PushUser(peer, evt)
	}
}
