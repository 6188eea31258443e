package gateway

import (
	"context"
	"sync"
	"time"

	"MedLink/logger"
	"MedLink/service/appointment"
	"MedLink/tools/errs"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// CallState is the per-room state machine:
//
//	Ringing -> Connecting -> Active -> Ended
//	Ringing -> Declined | TimedOut
//
// Terminal states are unrecoverable; a later startCall makes a new room.
type CallState int32

const (
	StateRinging CallState = iota + 1
	StateConnecting
	StateActive
	StateEnded
	StateDeclined
	StateTimedOut
)

func (s CallState) String() string {
	switch s {
	case StateRinging:
		return "ringing"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	case StateDeclined:
		return "declined"
	case StateTimedOut:
		return "timed_out"
	}
	return "unknown"
}

func (s CallState) terminal() bool {
	return s == StateEnded || s == StateDeclined || s == StateTimedOut
}

// CallSession is ephemeral, in-memory only. callerConnID/receiverConnID
// pin the session to the connections that actually started and accepted
// it, so a disconnect of either one force-ends the room.
type CallSession struct {
	RoomID        string
	CallerID      string
	ReceiverID    string
	AppointmentID string
	State         CallState
	StartedAt     time.Time

	callerConnID   string
	receiverConnID string
	ringTimer      *time.Timer
}

func (s *CallSession) participant(userID string) bool {
	return userID == s.CallerID || userID == s.ReceiverID
}

func (s *CallSession) otherParty(userID string) string {
	if userID == s.CallerID {
		return s.ReceiverID
	}
	return s.CallerID
}

type tripleKey struct {
	caller      string
	receiver    string
	appointment string
}

// AppointmentSource loads an appointment's scheduled window.
type AppointmentSource interface {
	Window(ctx context.Context, appointmentID string) (appointment.Window, error)
}

type CoordinatorConf struct {
	RingingTimeout time.Duration    // server enforced; the client countdown is cosmetic
	Clock          func() time.Time // injectable for tests; nil => time.Now
}

func (c *CoordinatorConf) norm() {
	if c.RingingTimeout <= 0 {
		c.RingingTimeout = 30 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Coordinator owns every call session. Rooms are independent; one
// mutex guards the two indexes and the per-session state, and every
// relay re-checks participant identity against the session, never
// against ad hoc payload fields.
type Coordinator struct {
	mu       sync.Mutex
	byRoom   map[string]*CallSession
	byTriple map[tripleKey]string // -> room id

	registry *Registry
	appts    AppointmentSource
	conf     CoordinatorConf
}

func NewCoordinator(conf CoordinatorConf, registry *Registry, appts AppointmentSource) *Coordinator {
	conf.norm()
	return &Coordinator{
		byRoom:   make(map[string]*CallSession),
		byTriple: make(map[tripleKey]string),
		registry: registry,
		appts:    appts,
		conf:     conf,
	}
}

// StartCall creates a room and rings the receiver. It re-validates the
// appointment window and the caller/receiver pairing, and fails fast
// when the receiver has no live connection instead of ringing a void.
func (c *Coordinator) StartCall(ctx context.Context, caller Conn, receiverID, appointmentID string) (string, error) {
	if receiverID == "" || appointmentID == "" {
		return "", errs.ErrValidation.WrapMsg("startCall needs receiverId and appointmentId")
	}

	w, err := c.appts.Window(ctx, appointmentID)
	if errors.Is(err, appointment.ErrNotFound) {
		return "", errs.ErrValidation.WrapMsg("unknown appointment", "id", appointmentID)
	}
	if err != nil {
		return "", errs.ErrPersistence.WrapMsg("appointment lookup", "id", appointmentID)
	}
	pair := map[string]bool{w.PatientID: true, w.DoctorID: true}
	if !pair[caller.UserID()] || !pair[receiverID] {
		return "", errs.ErrNotAuthorized.WrapMsg("not an appointment participant")
	}
	now := c.conf.Clock()
	if !w.Contains(now) {
		return "", errs.ErrCallState.WrapMsg("outside appointment window", "id", appointmentID)
	}
	if !c.registry.IsOnline(receiverID) {
		return "", errs.ErrCallState.WrapMsg("receiver offline", "receiver", receiverID)
	}

	key := tripleKey{caller: caller.UserID(), receiver: receiverID, appointment: appointmentID}

	c.mu.Lock()
	if _, busy := c.byTriple[key]; busy {
		c.mu.Unlock()
		return "", errs.ErrDuplicateCall.WrapMsg("triple busy", "appointment", appointmentID)
	}
	sess := &CallSession{
		RoomID:        uuid.NewString(),
		CallerID:      caller.UserID(),
		ReceiverID:    receiverID,
		AppointmentID: appointmentID,
		State:         StateRinging,
		StartedAt:     now,
		callerConnID:  caller.ID(),
	}
	roomID := sess.RoomID
	sess.ringTimer = time.AfterFunc(c.conf.RingingTimeout, func() { c.timeoutRoom(roomID) })
	c.byRoom[roomID] = sess
	c.byTriple[key] = roomID
	c.mu.Unlock()

	c.registry.PushUser(receiverID, BuildIncomingCall(caller.UserID(), roomID, appointmentID))
	logger.Infof("[call] ringing room=%s caller=%s receiver=%s appt=%s", roomID, caller.UserID(), receiverID, appointmentID)
	return roomID, nil
}

// AcceptCall moves Ringing -> Connecting. A second accept on the same
// room is a no-op, so the caller only ever sees one callAccepted.
func (c *Coordinator) AcceptCall(receiver Conn, roomID string) error {
	c.mu.Lock()
	sess, ok := c.byRoom[roomID]
	if !ok {
		c.mu.Unlock()
		return errs.ErrCallState.WrapMsg("no such room", "room", roomID)
	}
	if sess.ReceiverID != receiver.UserID() {
		c.mu.Unlock()
		return errs.ErrNotAuthorized.WrapMsg("accept by non-receiver")
	}
	switch sess.State {
	case StateConnecting, StateActive:
		// idempotent accept
		c.mu.Unlock()
		return nil
	case StateRinging:
	default:
		c.mu.Unlock()
		return errs.ErrCallState.WrapMsg("accept in state "+sess.State.String(), "room", roomID)
	}
	sess.State = StateConnecting
	sess.receiverConnID = receiver.ID()
	if sess.ringTimer != nil {
		sess.ringTimer.Stop()
	}
	callerID, apptID := sess.CallerID, sess.AppointmentID
	c.mu.Unlock()

	c.registry.PushUser(callerID, BuildCallAccepted(receiver.UserID(), roomID, apptID))
	logger.Infof("[call] accepted room=%s receiver=%s", roomID, receiver.UserID())
	return nil
}

// DeclineCall is valid only while Ringing.
func (c *Coordinator) DeclineCall(receiver Conn, roomID string) error {
	c.mu.Lock()
	sess, ok := c.byRoom[roomID]
	if !ok {
		c.mu.Unlock()
		return errs.ErrCallState.WrapMsg("no such room", "room", roomID)
	}
	if sess.ReceiverID != receiver.UserID() {
		c.mu.Unlock()
		return errs.ErrNotAuthorized.WrapMsg("decline by non-receiver")
	}
	if sess.State != StateRinging {
		c.mu.Unlock()
		return errs.ErrCallState.WrapMsg("decline in state "+sess.State.String(), "room", roomID)
	}
	c.finishLocked(sess, StateDeclined)
	callerID := sess.CallerID
	c.mu.Unlock()

	c.registry.PushUser(callerID, BuildCallEnded(roomID, "declined"))
	logger.Infof("[call] declined room=%s", roomID)
	return nil
}

// Relay forwards an offer/answer/iceCandidate verbatim to the other
// participant. Anything from a non-participant, or outside
// Connecting/Active, is dropped and logged, never surfaced: an error
// reply would leak room existence.
func (c *Coordinator) Relay(from Conn, kind, roomID string, payload any) {
	c.mu.Lock()
	sess, ok := c.byRoom[roomID]
	if !ok {
		c.mu.Unlock()
		logger.Warnf("[call] relay to unknown room=%s from=%s kind=%s", roomID, from.UserID(), kind)
		return
	}
	if !sess.participant(from.UserID()) {
		c.mu.Unlock()
		logger.Warnf("[call] relay from non-participant room=%s from=%s", roomID, from.UserID())
		return
	}
	if sess.State != StateConnecting && sess.State != StateActive {
		c.mu.Unlock()
		logger.Warnf("[call] relay in state %s room=%s", sess.State, roomID)
		return
	}
	// the server never observes media; the first relayed exchange is
	// as close to "call is up" as it gets
	if sess.State == StateConnecting {
		sess.State = StateActive
	}
	target := sess.otherParty(from.UserID())
	apptID := sess.AppointmentID
	c.mu.Unlock()

	c.registry.PushUser(target, BuildVideoCallSignal(kind, payload, from.UserID(), apptID))
}

// End terminates a room on behalf of a participant. Non-participants
// are dropped silently, same policy as Relay.
func (c *Coordinator) End(by Conn, roomID string) {
	c.mu.Lock()
	sess, ok := c.byRoom[roomID]
	if !ok || !sess.participant(by.UserID()) {
		c.mu.Unlock()
		if ok {
			logger.Warnf("[call] end from non-participant room=%s from=%s", roomID, by.UserID())
		}
		return
	}
	c.finishLocked(sess, StateEnded)
	target := sess.otherParty(by.UserID())
	c.mu.Unlock()

	c.registry.PushUser(target, BuildCallEnded(roomID, "ended"))
	logger.Infof("[call] ended room=%s by=%s", roomID, by.UserID())
}

// ConnectionClosed force-ends every session the closing connection
// started or accepted, and times out rings whose receiver just lost
// their last connection. Exactly one callEnded reaches the counterpart
// because the session leaves the maps under the same lock.
func (c *Coordinator) ConnectionClosed(userID, connID string) {
	type note struct {
		target string
		roomID string
		reason string
	}
	var notes []note

	c.mu.Lock()
	for _, sess := range c.byRoom {
		owned := sess.callerConnID == connID || sess.receiverConnID == connID
		ringingReceiverGone := sess.State == StateRinging &&
			sess.ReceiverID == userID && !c.registry.IsOnline(userID)
		if !owned && !ringingReceiverGone {
			continue
		}
		c.finishLocked(sess, StateEnded)
		notes = append(notes, note{
			target: sess.otherParty(userID),
			roomID: sess.RoomID,
			reason: "peer_disconnected",
		})
	}
	c.mu.Unlock()

	for _, n := range notes {
		c.registry.PushUser(n.target, BuildCallEnded(n.roomID, n.reason))
		logger.Infof("[call] force-ended room=%s user=%s conn=%s", n.roomID, userID, connID)
	}
}

// SessionState exposes a room's state for diagnostics and tests.
func (c *Coordinator) SessionState(roomID string) (CallState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.byRoom[roomID]
	if !ok {
		return 0, false
	}
	return sess.State, true
}

func (c *Coordinator) timeoutRoom(roomID string) {
	c.mu.Lock()
	sess, ok := c.byRoom[roomID]
	if !ok || sess.State != StateRinging {
		c.mu.Unlock()
		return
	}
	c.finishLocked(sess, StateTimedOut)
	callerID, receiverID := sess.CallerID, sess.ReceiverID
	c.mu.Unlock()

	// caller learns the ring expired; receiver devices stop ringing
	c.registry.PushUser(callerID, BuildCallEnded(roomID, "timeout"))
	c.registry.PushUser(receiverID, BuildCallEnded(roomID, "timeout"))
	logger.Infof("[call] ring timeout room=%s", roomID)
}

// finishLocked moves the session to a terminal state and removes it
// from both indexes. Caller holds c.mu.
func (c *Coordinator) finishLocked(sess *CallSession, terminal CallState) {
	sess.State = terminal
	if sess.ringTimer != nil {
		sess.ringTimer.Stop()
	}
	delete(c.byRoom, sess.RoomID)
	delete(c.byTriple, tripleKey{
		caller:      sess.CallerID,
		receiver:    sess.ReceiverID,
		appointment: sess.AppointmentID,
	})
}
