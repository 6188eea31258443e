package gateway

import (
	"context"
	"sync"
	"time"

	"MedLink/module/messaging"
	"MedLink/module/messaging/model"
	"MedLink/service/appointment"
)

// fakeConn records every pushed event instead of writing a socket.
type fakeConn struct {
	id   string
	user string
	role string

	mu     sync.Mutex
	events []Outbound
}

func newFakeConn(id, user, role string) *fakeConn {
	return &fakeConn{id: id, user: user, role: role}
}

func (f *fakeConn) ID() string     { return f.id }
func (f *fakeConn) UserID() string { return f.user }
func (f *fakeConn) Role() string   { return f.role }

func (f *fakeConn) Push(evt Outbound) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
}

func (f *fakeConn) CloseWith(evt Outbound) { f.Push(evt) }

func (f *fakeConn) countType(typ string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (f *fakeConn) lastOfType(typ string) (Outbound, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].Type == typ {
			return f.events[i], true
		}
	}
	return Outbound{}, false
}

// fakeStore is an in-memory stand-in for the mongo-backed store. It
// implements MessageStore, UserDirectory, ThreadSource and
// LastSeenStore.
type fakeStore struct {
	mu           sync.Mutex
	messages     map[string]*model.Message
	users        map[string]bool
	counterparts map[string][]string
	lastSeen     map[string]time.Time
	seenWrites   int
	failInsert   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages:     make(map[string]*model.Message),
		users:        make(map[string]bool),
		counterparts: make(map[string][]string),
		lastSeen:     make(map[string]time.Time),
	}
}

func (s *fakeStore) InsertMessage(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert {
		return messaging.ErrNotFound // any error works; the router wraps it
	}
	cp := *m
	cp.UnreadBy = append([]string(nil), m.UnreadBy...)
	s.messages[m.ID] = &cp
	return nil
}

func (s *fakeStore) GetMessage(_ context.Context, id string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, messaging.ErrNotFound
	}
	cp := *m
	cp.UnreadBy = append([]string(nil), m.UnreadBy...)
	return &cp, nil
}

func (s *fakeStore) MarkRead(_ context.Context, messageID, readerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return messaging.ErrNotFound
	}
	out := m.UnreadBy[:0]
	for _, id := range m.UnreadBy {
		if id != readerID {
			out = append(out, id)
		}
	}
	m.UnreadBy = out
	return nil
}

func (s *fakeStore) DeleteMessage(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[messageID]; !ok {
		return messaging.ErrNotFound
	}
	delete(s.messages, messageID)
	return nil
}

func (s *fakeStore) UserExists(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID], nil
}

func (s *fakeStore) Counterparts(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counterparts[userID], nil
}

func (s *fakeStore) SetLastSeen(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen[userID] = at
	s.seenWrites++
	return nil
}

// thread mimics the inbox fetch the REST tier performs.
func (s *fakeStore) thread(a, b string) []*model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Message
	for _, m := range s.messages {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			cp := *m
			cp.UnreadBy = append([]string(nil), m.UnreadBy...)
			out = append(out, &cp)
		}
	}
	return out
}

// fakeAppts serves a fixed window per appointment id.
type fakeAppts struct {
	windows map[string]appointment.Window
}

func (f *fakeAppts) Window(_ context.Context, id string) (appointment.Window, error) {
	w, ok := f.windows[id]
	if !ok {
		return appointment.Window{}, appointment.ErrNotFound
	}
	return w, nil
}

func newTestRegistry(store *fakeStore) *Registry {
	return NewRegistry(RegistryConf{NodeID: "gw-test"}, store, store)
}
