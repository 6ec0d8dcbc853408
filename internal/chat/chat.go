// Package chat persists per-room chat messages alongside the room records.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/videomesh/signal-relay/internal/rooms"
)

// ErrNotParticipant rejects messages from users who never joined the room.
var ErrNotParticipant = errors.New("user is not a participant in this room")

// Message is one stored chat line.
type Message struct {
	ID        string    `json:"id"`
	RoomCode  string    `json:"roomCode"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type Service struct {
	db     *badger.DB
	rooms  *rooms.Service
	logger *slog.Logger
}

func NewService(db *badger.DB, roomSvc *rooms.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, rooms: roomSvc, logger: logger}
}

// Send validates that the room exists and that username has joined it, then
// appends the message to the room's history.
func (s *Service) Send(roomCode, username, text string) (Message, error) {
	room, err := s.rooms.Get(roomCode)
	if err != nil {
		return Message{}, err
	}
	participant := false
	for _, p := range room.Participants {
		if p == username {
			participant = true
			break
		}
	}
	if !participant {
		return Message{}, ErrNotParticipant
	}

	msg := Message{
		ID:        uuid.NewString(),
		RoomCode:  roomCode,
		Username:  username,
		Message:   text,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("encoding chat message: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg), data)
	})
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

// History returns the room's messages in timestamp order.
func (s *Service) History(roomCode string) ([]Message, error) {
	if _, err := s.rooms.Get(roomCode); err != nil {
		return nil, err
	}

	var out []Message
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := historyPrefix(roomCode)
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return fmt.Errorf("decoding chat message: %w", err)
			}
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the room's entire chat history.
func (s *Service) Delete(roomCode string) error {
	if _, err := s.rooms.Get(roomCode); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := historyPrefix(roomCode)
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("chat history deleted", "room", roomCode)
	return nil
}

func historyPrefix(roomCode string) []byte {
	return []byte("chat:" + roomCode + ":")
}

// messageKey orders messages by timestamp within a room. The fixed-width
// nanosecond stamp keeps Badger's key order equal to chronological order; the
// ID suffix disambiguates same-nanosecond sends.
func messageKey(msg Message) []byte {
	return []byte(fmt.Sprintf("chat:%s:%020d:%s", msg.RoomCode, msg.Timestamp.UnixNano(), msg.ID))
}
