package gateway

import (
	"encoding/json"
	"time"

	"MedLink/module/messaging/model"
	"MedLink/tools/decode"
	"MedLink/tools/errs"
)

// ===== inbound =====

// Envelope is the wire form of every client frame: a type tag plus a
// free-form payload decoded per event kind.
type Envelope struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Inbound is the closed set of client events. Decoding produces one of
// these variants; the supervisor switches over them, so an unhandled
// kind is a compile-time hole, not a silent string mismatch.
type Inbound interface{ isInbound() }

type SendMessage struct {
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
}

type MarkRead struct {
	MessageID string `json:"messageId"`
}

type DeleteMessage struct {
	MessageID string `json:"messageId"`
}

type StartCall struct {
	ReceiverID    string `json:"receiverId"`
	AppointmentID string `json:"appointmentId"`
}

type AcceptCall struct {
	RoomID string `json:"roomId"`
}

type DeclineCall struct {
	RoomID string `json:"roomId"`
}

// Signal carries offer/answer/iceCandidate payloads. The payload is
// relayed verbatim; the gateway never inspects it.
type Signal struct {
	Kind    string
	RoomID  string
	Payload any
}

type EndCall struct {
	RoomID string `json:"roomId"`
}

func (SendMessage) isInbound()   {}
func (MarkRead) isInbound()      {}
func (DeleteMessage) isInbound() {}
func (StartCall) isInbound()     {}
func (AcceptCall) isInbound()    {}
func (DeclineCall) isInbound()   {}
func (Signal) isInbound()        {}
func (EndCall) isInbound()       {}

const (
	evSendMessage   = "sendMessage"
	evMarkRead      = "markRead"
	evDeleteMessage = "deleteMessage"
	evStartCall     = "startCall"
	evAcceptCall    = "acceptCall"
	evDeclineCall   = "declineCall"
	evOffer         = "offer"
	evAnswer        = "answer"
	evIceCandidate  = "iceCandidate"
	evEndCall       = "endCall"
)

// DecodeInbound parses a raw text frame into its typed variant.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.ErrValidation.WrapMsg("malformed frame")
	}

	switch env.Type {
	case evSendMessage:
		p, err := decode.DecodeMap[SendMessage](env.Payload)
		if err != nil {
			return nil, errs.ErrValidation.WrapMsg("sendMessage payload")
		}
		return *p, nil
	case evMarkRead:
		p, err := decode.DecodeMap[MarkRead](env.Payload)
		if err != nil {
			return nil, errs.ErrValidation.WrapMsg("markRead payload")
		}
		return *p, nil
	case evDeleteMessage:
		p, err := decode.DecodeMap[DeleteMessage](env.Payload)
		if err != nil {
			return nil, errs.ErrValidation.WrapMsg("deleteMessage payload")
		}
		return *p, nil
	case evStartCall:
		p, err := decode.DecodeMap[StartCall](env.Payload)
		if err != nil {
			return nil, errs.ErrValidation.WrapMsg("startCall payload")
		}
		return *p, nil
	case evAcceptCall:
		p, err := decode.DecodeMap[AcceptCall](env.Payload)
		if err != nil {
			return nil, errs.ErrValidation.WrapMsg("acceptCall payload")
		}
		return *p, nil
	case evDeclineCall:
		p, err := decode.DecodeMap[DeclineCall](env.Payload)
		if err != nil {
			return nil, errs.ErrValidation.WrapMsg("declineCall payload")
		}
		return *p, nil
	case evOffer, evAnswer, evIceCandidate:
		roomID, _ := env.Payload["roomId"].(string)
		if roomID == "" {
			return nil, errs.ErrValidation.WrapMsg("signal without roomId")
		}
		return Signal{Kind: env.Type, RoomID: roomID, Payload: env.Payload["payload"]}, nil
	case evEndCall:
		p, err := decode.DecodeMap[EndCall](env.Payload)
		if err != nil {
			return nil, errs.ErrValidation.WrapMsg("endCall payload")
		}
		return *p, nil
	default:
		return nil, errs.ErrValidation.WrapMsg("unknown event type", "type", env.Type)
	}
}

// ===== outbound =====

type Outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

func (o Outbound) Marshal() ([]byte, error) { return json.Marshal(o) }

const (
	EvReceiveMessage      = "receiveMessage"
	EvMessageDeleted      = "messageDeleted"
	EvUserStatus          = "userStatus"
	EvIncomingCall        = "incomingCall"
	EvCallAccepted        = "callAccepted"
	EvVideoCallSignal     = "videoCallSignal"
	EvCallEnded           = "callEnded"
	EvReceiveNotification = "receiveNotification"
	EvError               = "error"
)

type receiveMessagePayload struct {
	*model.Message
	IsSender bool `json:"isSender"`
}

func BuildReceiveMessage(m *model.Message, isSender bool) Outbound {
	return Outbound{Type: EvReceiveMessage, Payload: receiveMessagePayload{Message: m, IsSender: isSender}}
}

func BuildMessageDeleted(messageID, peerID string) Outbound {
	return Outbound{Type: EvMessageDeleted, Payload: map[string]any{
		"messageId": messageID,
		"userId":    peerID,
	}}
}

type userStatusPayload struct {
	UserID   string `json:"userId"`
	Status   string `json:"status"` // online | offline
	LastSeen int64  `json:"lastSeen,omitempty"`
}

func BuildUserStatus(userID, status string, lastSeen time.Time) Outbound {
	p := userStatusPayload{UserID: userID, Status: status}
	if !lastSeen.IsZero() {
		p.LastSeen = lastSeen.UnixMilli()
	}
	return Outbound{Type: EvUserStatus, Payload: p}
}

func BuildIncomingCall(callerID, roomID, appointmentID string) Outbound {
	return Outbound{Type: EvIncomingCall, Payload: map[string]any{
		"caller":        callerID,
		"roomId":        roomID,
		"appointmentId": appointmentID,
	}}
}

func BuildCallAccepted(receiverID, roomID, appointmentID string) Outbound {
	return Outbound{Type: EvCallAccepted, Payload: map[string]any{
		"receiver":      receiverID,
		"roomId":        roomID,
		"appointmentId": appointmentID,
	}}
}

func BuildVideoCallSignal(kind string, payload any, fromID, appointmentID string) Outbound {
	return Outbound{Type: EvVideoCallSignal, Payload: map[string]any{
		"signal":        map[string]any{"kind": kind, "data": payload},
		"from":          fromID,
		"appointmentId": appointmentID,
	}}
}

func BuildCallEnded(roomID, reason string) Outbound {
	return Outbound{Type: EvCallEnded, Payload: map[string]any{
		"roomId": roomID,
		"reason": reason,
	}}
}

func BuildReceiveNotification(n *model.NotificationRecord) Outbound {
	return Outbound{Type: EvReceiveNotification, Payload: n}
}

func BuildError(err error) Outbound {
	var codeErr *errs.CodeError
	if e, ok := errs.Unwrap(err).(*errs.CodeError); ok {
		codeErr = e
	} else {
		codeErr = errs.ErrInternal
	}
	return Outbound{Type: EvError, Payload: map[string]any{
		"code":    codeErr.Code,
		"message": codeErr.Msg,
	}}
}
