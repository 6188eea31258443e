package gateway

import (
	"context"
	"strings"
	"time"

	"MedLink/logger"
	"MedLink/module/messaging"
	"MedLink/module/messaging/model"
	"MedLink/tools/errs"
	"MedLink/tools/ids"

	"github.com/pkg/errors"
)

// MessageStore is the slice of the durable store the router needs.
type MessageStore interface {
	InsertMessage(ctx context.Context, m *model.Message) error
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	MarkRead(ctx context.Context, messageID, readerID string) error
	DeleteMessage(ctx context.Context, messageID string) error
}

// UserDirectory answers whether a receiver id is a known user.
type UserDirectory interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// MessageRouter persists chat messages and relays them to live
// connections. Durability wins over delivery: nothing is pushed until
// the write has succeeded, and an offline receiver is a success, not
// an error.
type MessageRouter struct {
	store    MessageStore
	users    UserDirectory
	registry *Registry
	clock    func() time.Time
}

func NewMessageRouter(store MessageStore, users UserDirectory, registry *Registry) *MessageRouter {
	return &MessageRouter{
		store:    store,
		users:    users,
		registry: registry,
		clock:    time.Now,
	}
}

// Send validates, persists and then relays. origin is the connection
// the event arrived on; the sender's other devices get an echo so
// multi-device clients stay consistent, the origin itself does not.
func (r *MessageRouter) Send(ctx context.Context, origin Conn, receiverID, text string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errs.ErrValidation.WrapMsg("empty message text")
	}
	if receiverID == "" || receiverID == origin.UserID() {
		return nil, errs.ErrValidation.WrapMsg("bad receiver", "receiver", receiverID)
	}
	known, err := r.users.UserExists(ctx, receiverID)
	if err != nil {
		return nil, errs.ErrPersistence.WrapMsg("receiver lookup", "receiver", receiverID)
	}
	if !known {
		return nil, errs.ErrValidation.WrapMsg("unknown receiver", "receiver", receiverID)
	}

	msg := &model.Message{
		ID:         ids.GenerateString(),
		SenderID:   origin.UserID(),
		ReceiverID: receiverID,
		Text:       text,
		CreatedAt:  r.clock(),
		UnreadBy:   []string{receiverID},
	}

	// persist first; a store failure means no delivery attempt at all
	if err := r.store.InsertMessage(ctx, msg); err != nil {
		return nil, errs.ErrPersistence.WrapMsg("insert message", "id", msg.ID)
	}

	n := r.registry.PushUser(receiverID, BuildReceiveMessage(msg, false))
	logger.Debugf("[router] message relayed id=%s receiver=%s conns=%d", msg.ID, receiverID, n)

	// echo to the sender's other devices
	for _, c := range r.registry.ConnsOf(origin.UserID()) {
		if c.ID() == origin.ID() {
			continue
		}
		c.Push(BuildReceiveMessage(msg, true))
	}
	return msg, nil
}

// MarkRead removes readerID from the message's unread set. Re-marking
// an already-read message is a no-op, not an error.
func (r *MessageRouter) MarkRead(ctx context.Context, messageID, readerID string) error {
	if messageID == "" {
		return errs.ErrValidation.WrapMsg("empty messageId")
	}
	err := r.store.MarkRead(ctx, messageID, readerID)
	if errors.Is(err, messaging.ErrNotFound) {
		return errs.ErrNotFound.WrapMsg("message", "id", messageID)
	}
	if err != nil {
		return errs.ErrPersistence.WrapMsg("mark read", "id", messageID)
	}
	return nil
}

// Delete hard-removes a message. Only the original sender or receiver
// may delete; the surviving peer gets a live removal event if online,
// otherwise it reconciles on its next inbox fetch.
func (r *MessageRouter) Delete(ctx context.Context, messageID, requesterID string) error {
	if messageID == "" {
		return errs.ErrValidation.WrapMsg("empty messageId")
	}
	msg, err := r.store.GetMessage(ctx, messageID)
	if errors.Is(err, messaging.ErrNotFound) {
		return errs.ErrNotFound.WrapMsg("message", "id", messageID)
	}
	if err != nil {
		return errs.ErrPersistence.WrapMsg("load message", "id", messageID)
	}
	if !msg.IsParticipant(requesterID) {
		return errs.ErrNotAuthorized.WrapMsg("delete", "id", messageID)
	}
	if err := r.store.DeleteMessage(ctx, messageID); err != nil {
		if errors.Is(err, messaging.ErrNotFound) {
			return errs.ErrNotFound.WrapMsg("message", "id", messageID)
		}
		return errs.ErrPersistence.WrapMsg("delete message", "id", messageID)
	}

	peer := msg.SenderID
	if requesterID == msg.SenderID {
		peer = msg.ReceiverID
	}
	r.registry.PushUser(peer, BuildMessageDeleted(messageID, requesterID))
	return nil
}
