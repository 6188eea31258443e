package model

import "time"

const NotificationTableName = "notifications"

// NotificationRecord is persisted by the REST tier before it ever
// reaches the gateway. The gateway delivers it to live connections and
// never mutates it beyond the read flag.
type NotificationRecord struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"user_id" json:"userId"`
	Kind      string    `bson:"kind" json:"kind"` // appointment|message|payment|system
	Title     string    `bson:"title" json:"title"`
	Body      string    `bson:"body" json:"body"`
	Read      bool      `bson:"read" json:"read"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}
