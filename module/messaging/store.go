package messaging

import (
	"context"
	"time"

	"MedLink/module/messaging/model"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when a document does not exist. Callers map
// it onto their own taxonomy instead of leaking mongo.ErrNoDocuments.
var ErrNotFound = errors.New("messaging: not found")

// Store bundles the collections of the durable chat state.
type Store struct {
	MsgColl    *mongo.Collection
	UserColl   *mongo.Collection
	NotifyColl *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		MsgColl:    db.Collection(model.MessageTableName),
		UserColl:   db.Collection(model.UserTableName),
		NotifyColl: db.Collection(model.NotificationTableName),
	}
}

// ===== messages =====

func (s *Store) InsertMessage(ctx context.Context, m *model.Message) error {
	if _, err := s.MsgColl.InsertOne(ctx, m); err != nil {
		return errors.Wrap(err, "insert message")
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	err := s.MsgColl.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get message")
	}
	return &m, nil
}

// MarkRead pulls readerID out of unread_by. Pulling an id that is
// already gone matches zero array elements, which is what makes the
// operation idempotent.
func (s *Store) MarkRead(ctx context.Context, messageID, readerID string) error {
	res, err := s.MsgColl.UpdateOne(ctx,
		bson.M{"_id": messageID},
		bson.M{"$pull": bson.M{"unread_by": readerID}},
	)
	if err != nil {
		return errors.Wrap(err, "mark read")
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteMessage(ctx context.Context, messageID string) error {
	res, err := s.MsgColl.DeleteOne(ctx, bson.M{"_id": messageID})
	if err != nil {
		return errors.Wrap(err, "delete message")
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Thread returns the newest messages between a and b, oldest first.
func (s *Store) Thread(ctx context.Context, a, b string, limit int64) ([]*model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": a, "receiver_id": b},
		bson.M{"sender_id": b, "receiver_id": a},
	}}
	opts := options.Find().SetSort(bson.M{"created_at": -1}).SetLimit(limit)
	cur, err := s.MsgColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "thread query")
	}
	var out []*model.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "thread decode")
	}
	// reverse into chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Counterparts returns the distinct users that share a thread with
// userID. Presence transitions are broadcast only to this set.
func (s *Store) Counterparts(ctx context.Context, userID string) ([]string, error) {
	sent, err := s.MsgColl.Distinct(ctx, "receiver_id", bson.M{"sender_id": userID})
	if err != nil {
		return nil, errors.Wrap(err, "counterparts sent")
	}
	recv, err := s.MsgColl.Distinct(ctx, "sender_id", bson.M{"receiver_id": userID})
	if err != nil {
		return nil, errors.Wrap(err, "counterparts recv")
	}
	seen := make(map[string]struct{}, len(sent)+len(recv))
	out := make([]string, 0, len(sent)+len(recv))
	for _, v := range append(sent, recv...) {
		id, ok := v.(string)
		if !ok || id == "" || id == userID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// ===== users =====

func (s *Store) GetUser(ctx context.Context, userID string) (*model.UserRecord, error) {
	var u model.UserRecord
	err := s.UserColl.FindOne(ctx, bson.M{"_id": userID}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get user")
	}
	return &u, nil
}

func (s *Store) UserExists(ctx context.Context, userID string) (bool, error) {
	n, err := s.UserColl.CountDocuments(ctx, bson.M{"_id": userID}, options.Count().SetLimit(1))
	if err != nil {
		return false, errors.Wrap(err, "user exists")
	}
	return n > 0, nil
}

func (s *Store) SetLastSeen(ctx context.Context, userID string, at time.Time) error {
	_, err := s.UserColl.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"last_seen": at}},
	)
	return errors.Wrap(err, "set last seen")
}

// ===== notifications =====

func (s *Store) InsertNotification(ctx context.Context, n *model.NotificationRecord) error {
	if _, err := s.NotifyColl.InsertOne(ctx, n); err != nil {
		return errors.Wrap(err, "insert notification")
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, limit int64) ([]*model.NotificationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().SetSort(bson.M{"created_at": -1}).SetLimit(limit)
	cur, err := s.NotifyColl.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	var out []*model.NotificationRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "decode notifications")
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	_, err := s.NotifyColl.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"read": true}})
	return errors.Wrap(err, "mark notification read")
}
