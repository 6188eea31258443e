package gateway

import (
	"context"
	"testing"
	"time"

	"MedLink/service/appointment"
	"MedLink/tools/errs"

	"github.com/stretchr/testify/require"
)

const testAppt = "appt-100"

func newTestCoordinator(t *testing.T, ringTimeout time.Duration) (*Coordinator, *Registry) {
	t.Helper()
	store := newFakeStore()
	reg := newTestRegistry(store)
	now := time.Now()
	appts := &fakeAppts{windows: map[string]appointment.Window{
		testAppt: {
			AppointmentID: testAppt,
			PatientID:     "patient-1",
			DoctorID:      "doctor-1",
			Start:         now.Add(-10 * time.Minute),
			End:           now.Add(20 * time.Minute),
		},
	}}
	c := NewCoordinator(CoordinatorConf{RingingTimeout: ringTimeout}, reg, appts)
	return c, reg
}

func ringingCall(t *testing.T, c *Coordinator, reg *Registry) (roomID string, caller, receiver *fakeConn) {
	t.Helper()
	ctx := context.Background()
	caller = newFakeConn("d1", "doctor-1", "doctor")
	receiver = newFakeConn("p1", "patient-1", "patient")
	reg.Register(ctx, caller)
	reg.Register(ctx, receiver)

	roomID, err := c.StartCall(ctx, caller, "patient-1", testAppt)
	require.NoError(t, err)
	return roomID, caller, receiver
}

func TestStartCallRingsEveryReceiverDevice(t *testing.T) {
	c, reg := newTestCoordinator(t, time.Minute)
	ctx := context.Background()

	caller := newFakeConn("d1", "doctor-1", "doctor")
	phone := newFakeConn("p1", "patient-1", "patient")
	tablet := newFakeConn("p2", "patient-1", "patient")
	for _, cn := range []*fakeConn{caller, phone, tablet} {
		reg.Register(ctx, cn)
	}

	roomID, err := c.StartCall(ctx, caller, "patient-1", testAppt)
	require.NoError(t, err)
	require.NotEmpty(t, roomID)

	require.Equal(t, 1, phone.countType(EvIncomingCall))
	require.Equal(t, 1, tablet.countType(EvIncomingCall))

	state, ok := c.SessionState(roomID)
	require.True(t, ok)
	require.Equal(t, StateRinging, state)
}

func TestStartCallDuplicateTripleRejected(t *testing.T) {
	c, reg := newTestCoordinator(t, time.Minute)
	roomID, caller, receiver := ringingCall(t, c, reg)

	_, err := c.StartCall(context.Background(), caller, "patient-1", testAppt)
	require.ErrorIs(t, err, errs.ErrDuplicateCall)

	// still exactly one ring, same single room
	require.Equal(t, 1, receiver.countType(EvIncomingCall))
	_, ok := c.SessionState(roomID)
	require.True(t, ok)
}

func TestStartCallOfflineReceiverFailsFast(t *testing.T) {
	c, reg := newTestCoordinator(t, time.Minute)
	ctx := context.Background()
	caller := newFakeConn("d1", "doctor-1", "doctor")
	reg.Register(ctx, caller)

	_, err := c.StartCall(ctx, caller, "patient-1", testAppt)
	require.ErrorIs(t, err, errs.ErrCallState)
}

func TestStartCallOutsideWindow(t *testing.T) {
	c, reg := newTestCoordinator(t, time.Minute)
	ctx := context.Background()
	c.conf.Clock = func() time.Time { return time.Now().Add(2 * time.Hour) }

	caller := newFakeConn("d1", "doctor-1", "doctor")
	receiver := newFakeConn("p1", "patient-1", "patient")
	reg.Register(ctx, caller)
	reg.Register(ctx, receiver)

	_, err := c.StartCall(ctx, caller, "patient-1", testAppt)
	require.ErrorIs(t, err, errs.ErrCallState)
}

func TestStartCallRequiresAppointmentParticipants(t *testing.T) {
	c, reg := newTestCoordinator(t, time.Minute)
	ctx := context.Background()
	stranger := newFakeConn("s1", "doctor-9", "doctor")
	receiver := newFakeConn("p1", "patient-1", "patient")
	reg.Register(ctx, stranger)
	reg.Register(ctx, receiver)

	_, err := c.StartCall(ctx, stranger, "patient-1", testAppt)
	require.ErrorIs(t, err, errs.ErrNotAuthorized)

	_, err = c.StartCall(ctx, stranger, "patient-1", "appt-unknown")
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestAcceptCallIsIdempotent(t *testing.T) {
	c, reg := newTestCoordinator(t, time.Minute)
	roomID, caller, receiver := ringingCall(t, c, reg)

	require.NoError(t, c.AcceptCall(receiver, roomID))
	require.NoError(t, c.AcceptCall(receiver, roomID))

	// only one callAccepted ever reaches the caller
	require.Equal(t, 1, caller.countType(EvCallAccepted))

	state, _ := c.SessionState(roomID)
	require.Equal(t, StateConnecting, state)
}

func TestAcceptCallByNonReceiver(t *testing.T) {
	c, reg := newTestCoordinator(t, time.Minute)
	roomID, caller, _ := ringingCall(t, c, reg)

	err := c.AcceptCall(caller, roomID)
	require.ErrorIs(t, err, errs.ErrNotAuthorized)

	err = c.AcceptCall(caller, "no-such-room")
	require.ErrorIs(t, err, errs.ErrCallState)
}

func TestRelayFromNonParticipantIsDropped(t *testing.T) {
	c, reg := newTestCoordinator(t, time.Minute)
	roomID, caller, receiver := ringingCall(t, c, reg)
	require.NoError(t, c.AcceptCall(receiver, roomID))

	intruder := newFakeConn("x1", "admin-7", "admin")
	reg.Register(context.Background(), intruder)

	c.Relay(intruder, "offer", roomID, map[string]any{"sdp": "evil"})

	require.Zero(t, caller.countType(EvVideoCallSignal))
	require.Zero(t, receiver.countType(EvVideoCallSignal))
	// and no error event leaks the room's existence
	require.Zero(t, intruder.countType(EvError))
}

func TestRelayLifecycle(t *testing.T) {
	c, reg := newTestCoordinator(t, time.Minute)
	roomID, caller, receiver := ringingCall(t, c, reg)

	// signaling before accept is dropped
	c.Relay(caller, "offer", roomID, map[string]any{"sdp": "early"})
	require.Zero(t, receiver.countType(EvVideoCallSignal))

	require.NoError(t, c.AcceptCall(receiver, roomID))

	c.Relay(caller, "offer", roomID, map[string]any{"sdp": "v=0"})
	require.Equal(t, 1, receiver.countType(EvVideoCallSignal))
	require.Zero(t, caller.countType(EvVideoCallSignal))

	c.Relay(receiver, "answer", roomID, map[string]any{"sdp": "v=0"})
	require.Equal(t, 1, caller.countType(EvVideoCallSignal))

	state, _ := c.SessionState(roomID)
	require.Equal(t, StateActive, state)
}

func TestDisconnectMidActiveEndsExactlyOnce(t *testing.T) {
	c, reg := newTestCoordinator(t, time.Minute)
	roomID, caller, receiver := ringingCall(t, c, reg)
	require.NoError(t, c.AcceptCall(receiver, roomID))
	c.Relay(caller, "offer", roomID, map[string]any{"sdp": "v=0"})

	// receiver's transport dies
	reg.Deregister(context.Background(), receiver.UserID(), receiver.ID())
	c.ConnectionClosed(receiver.UserID(), receiver.ID())

	require.Equal(t, 1, caller.countType(EvCallEnded))
	_, ok := c.SessionState(roomID)
	require.False(t, ok)

	// a second close of the same connection changes nothing
	c.ConnectionClosed(receiver.UserID(), receiver.ID())
	require.Equal(t, 1, caller.countType(EvCallEnded))
}

func TestCallerDisconnectWhileRinging(t *testing.T) {
	c, reg := newTestCoordinator(t, time.Minute)
	roomID, caller, receiver := ringingCall(t, c, reg)

	reg.Deregister(context.Background(), caller.UserID(), caller.ID())
	c.ConnectionClosed(caller.UserID(), caller.ID())

	require.Equal(t, 1, receiver.countType(EvCallEnded))
	_, ok := c.SessionState(roomID)
	require.False(t, ok)
}

func TestRingingTimeoutIsServerEnforced(t *testing.T) {
	c, reg := newTestCoordinator(t, 30*time.Millisecond)
	roomID, caller, receiver := ringingCall(t, c, reg)

	require.Eventually(t, func() bool {
		_, ok := c.SessionState(roomID)
		return !ok
	}, time.Second, 10*time.Millisecond)

	require.Equal(t, 1, caller.countType(EvCallEnded))
	require.Equal(t, 1, receiver.countType(EvCallEnded))

	// the room is gone for good; accepting now fails
	err := c.AcceptCall(receiver, roomID)
	require.ErrorIs(t, err, errs.ErrCallState)

	// but a fresh startCall opens a brand new room
	newRoom, err := c.StartCall(context.Background(), caller, "patient-1", testAppt)
	require.NoError(t, err)
	require.NotEqual(t, roomID, newRoom)
}

func TestDeclineCall(t *testing.T) {
	c, reg := newTestCoordinator(t, time.Minute)
	roomID, caller, receiver := ringingCall(t, c, reg)

	require.NoError(t, c.DeclineCall(receiver, roomID))

	evt, ok := caller.lastOfType(EvCallEnded)
	require.True(t, ok)
	require.Equal(t, "declined", evt.Payload.(map[string]any)["reason"])

	_, live := c.SessionState(roomID)
	require.False(t, live)

	err := c.DeclineCall(receiver, roomID)
	require.ErrorIs(t, err, errs.ErrCallState)
}

func TestEndCallNotifiesCounterpartOnly(t *testing.T) {
	c, reg := newTestCoordinator(t, time.Minute)
	roomID, caller, receiver := ringingCall(t, c, reg)
	require.NoError(t, c.AcceptCall(receiver, roomID))

	c.End(caller, roomID)
	require.Equal(t, 1, receiver.countType(EvCallEnded))
	require.Zero(t, caller.countType(EvCallEnded))

	// ending an already-gone room from a stranger is silent
	intruder := newFakeConn("x1", "admin-7", "admin")
	c.End(intruder, roomID)
	require.Zero(t, intruder.countType(EvError))
}
