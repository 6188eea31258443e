package gateway

import (
	"encoding/json"

	"MedLink/logger"
	"MedLink/module/messaging/model"
	"MedLink/service/kafka"
)

// NotificationFanout pushes already-persisted notification records to
// a user's live connections. Best effort by design: no queue, no
// retry — the authoritative copy sits in the durable store and the
// client fetches it on next load.
type NotificationFanout struct {
	registry *Registry
}

func NewNotificationFanout(registry *Registry) *NotificationFanout {
	return &NotificationFanout{registry: registry}
}

// Deliver returns how many live connections were targeted; zero when
// the user is offline, which is not an error.
func (f *NotificationFanout) Deliver(n *model.NotificationRecord) int {
	if n == nil || n.UserID == "" {
		return 0
	}
	count := f.registry.PushUser(n.UserID, BuildReceiveNotification(n))
	if count > 0 {
		logger.Debugf("[fanout] notification delivered id=%s user=%s conns=%d", n.ID, n.UserID, count)
	}
	return count
}

// IntakeHandler adapts Deliver to the kafka consumer: the REST tier
// publishes each persisted record to the notifications topic and the
// gateway fans it out.
func (f *NotificationFanout) IntakeHandler() kafka.MessageHandler {
	return func(topic string, key, value []byte) error {
		var n model.NotificationRecord
		if err := json.Unmarshal(value, &n); err != nil {
			logger.Warnf("[fanout] bad notification payload topic=%s err=%v", topic, err)
			return nil // poison records are dropped, not redelivered
		}
		f.Deliver(&n)
		return nil
	}
}
