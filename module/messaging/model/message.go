package model

import "time"

const MessageTableName = "messages"

// Message is one durable chat message between a patient and a doctor.
// UnreadBy starts as {receiver} and only ever shrinks: removing an id
// is a one-way transition, an id is never re-added.
type Message struct {
	ID         string    `bson:"_id" json:"id"`
	SenderID   string    `bson:"sender_id" json:"senderId"`
	ReceiverID string    `bson:"receiver_id" json:"receiverId"`
	Text       string    `bson:"text" json:"text"`
	CreatedAt  time.Time `bson:"created_at" json:"createdAt"`
	UnreadBy   []string  `bson:"unread_by" json:"unreadBy"`
}

// IsParticipant reports whether uid is the sender or the receiver.
func (m *Message) IsParticipant(uid string) bool {
	return uid == m.SenderID || uid == m.ReceiverID
}
