package storage

import (
	"encoding/binary"
	"fmt"
	"time"

	"wavelength/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketMessages      = []byte("messages")
	bucketSubscriptions = []byte("push_subscriptions")
)

// BboltStorage holds chat history and push subscriptions. Messages live in
// a sub-bucket per room, keyed by the bucket sequence so iteration order is
// append order.
type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMessages); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketSubscriptions); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// AppendMessage stores one delivered message under its room.
func (s *BboltStorage) AppendMessage(msg models.ChatMessage) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		rooms := tx.Bucket(bucketMessages)
		room, err := rooms.CreateBucketIfNotExists([]byte(msg.Room))
		if err != nil {
			return err
		}

		seq, err := room.NextSequence()
		if err != nil {
			return err
		}

		dbMsg := &DBMessage{
			ID:        msg.ID,
			SenderID:  msg.SenderID,
			Username:  msg.Username,
			AvatarURL: msg.AvatarURL,
			Content:   msg.Content,
			Room:      msg.Room,
			IsGIF:     msg.IsGIF,
			Timestamp: msg.Timestamp,
		}
		data, err := dbMsg.MarshalBinary()
		if err != nil {
			return err
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return room.Put(key, data)
	})
}

// RecentMessages returns up to limit messages for a room, oldest first.
func (s *BboltStorage) RecentMessages(roomID string, limit int) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	err := s.db.View(func(tx *bbolt.Tx) error {
		room := tx.Bucket(bucketMessages).Bucket([]byte(roomID))
		if room == nil {
			return nil
		}

		c := room.Cursor()
		collected := 0
		for k, v := c.Last(); k != nil && collected < limit; k, v = c.Prev() {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, models.ChatMessage{
				ID:        dbMsg.ID,
				SenderID:  dbMsg.SenderID,
				Username:  dbMsg.Username,
				AvatarURL: dbMsg.AvatarURL,
				Content:   dbMsg.Content,
				Room:      dbMsg.Room,
				IsGIF:     dbMsg.IsGIF,
				Timestamp: dbMsg.Timestamp,
			})
			collected++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Cursor walks newest to oldest; flip to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// SaveSubscription stores or replaces a push subscription for a user,
// keyed by endpoint.
func (s *BboltStorage) SaveSubscription(sub DBPushSubscription) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		users := tx.Bucket(bucketSubscriptions)
		user, err := users.CreateBucketIfNotExists([]byte(sub.UserID))
		if err != nil {
			return err
		}
		data, err := sub.MarshalBinary()
		if err != nil {
			return err
		}
		return user.Put(sub.Key(), data)
	})
}

// Subscriptions returns all push subscriptions registered for a user.
func (s *BboltStorage) Subscriptions(userID string) ([]DBPushSubscription, error) {
	var subs []DBPushSubscription
	err := s.db.View(func(tx *bbolt.Tx) error {
		user := tx.Bucket(bucketSubscriptions).Bucket([]byte(userID))
		if user == nil {
			return nil
		}
		return user.ForEach(func(k, v []byte) error {
			var sub DBPushSubscription
			if err := sub.UnmarshalBinary(v); err != nil {
				return err
			}
			subs = append(subs, sub)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// DeleteSubscription removes one subscription by endpoint.
func (s *BboltStorage) DeleteSubscription(userID, endpoint string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		user := tx.Bucket(bucketSubscriptions).Bucket([]byte(userID))
		if user == nil {
			return models.ErrNotFound
		}
		return user.Delete([]byte(endpoint))
	})
}
