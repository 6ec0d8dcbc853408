// Package rooms manages the meeting room records that gate access to the
// signaling relay: creation with a password, membership, and the
// active/inactive lifecycle controlled by the room's creator.
package rooms

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var (
	ErrRoomExists      = errors.New("room code already exists")
	ErrRoomNotFound    = errors.New("room not found")
	ErrInvalidPassword = errors.New("invalid password")
	ErrRoomInactive    = errors.New("room is not active; only the creator can reactivate it")
	ErrNotCreator      = errors.New("only the room creator may perform this action")
)

const keyPrefix = "room:"

// Room is the stored record for one meeting room. Password is persisted but
// must never be serialized into API responses; response mapping happens at
// the HTTP layer.
type Room struct {
	RoomCode     string    `json:"roomCode"`
	Password     string    `json:"password"`
	RoomName     string    `json:"roomName"`
	Creator      string    `json:"creator"`
	CreatedAt    time.Time `json:"createdAt"`
	Participants []string  `json:"participants"`
	Active       bool      `json:"active"`
}

func (r *Room) hasParticipant(username string) bool {
	for _, p := range r.Participants {
		if p == username {
			return true
		}
	}
	return false
}

func (r *Room) addParticipant(username string) {
	if r.hasParticipant(username) {
		return
	}
	r.Participants = append(r.Participants, username)
	sort.Strings(r.Participants)
}

func (r *Room) removeParticipant(username string) {
	out := r.Participants[:0]
	for _, p := range r.Participants {
		if p != username {
			out = append(out, p)
		}
	}
	r.Participants = out
}

// CreateRequest carries the fields accepted when creating a room. RoomCode is
// optional; an empty value gets a generated code.
type CreateRequest struct {
	RoomCode string
	Password string
	RoomName string
	Creator  string
}

type Service struct {
	db     *badger.DB
	logger *slog.Logger
}

func NewService(db *badger.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, logger: logger}
}

// Create stores a new room with the creator as its first participant. The
// room starts active.
func (s *Service) Create(req CreateRequest) (Room, error) {
	code := strings.TrimSpace(req.RoomCode)
	if code == "" {
		code = generateRoomCode()
	}

	name := req.RoomName
	if name == "" {
		name = "Meeting Room"
	}

	room := Room{
		RoomCode:     code,
		Password:     req.Password,
		RoomName:     name,
		Creator:      req.Creator,
		CreatedAt:    time.Now().UTC(),
		Participants: []string{req.Creator},
		Active:       true,
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		key := roomKey(code)
		if _, err := txn.Get(key); err == nil {
			return ErrRoomExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return putRoom(txn, room)
	})
	if err != nil {
		return Room{}, err
	}

	s.logger.Info("room created", "room", code, "creator", req.Creator)
	return room, nil
}

// Join checks the password and the room's active flag, then records username
// as a participant.
func (s *Service) Join(roomCode, password, username string) (Room, error) {
	var room Room
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		room, err = getRoom(txn, roomCode)
		if err != nil {
			return err
		}
		if room.Password != password {
			return ErrInvalidPassword
		}
		if !room.Active {
			return ErrRoomInactive
		}
		room.addParticipant(username)
		return putRoom(txn, room)
	})
	if err != nil {
		return Room{}, err
	}

	s.logger.Info("participant joined room", "room", roomCode, "user", username)
	return room, nil
}

// Leave removes username from the room's participant list. When the creator
// leaves, the room is deactivated; others may no longer join until the
// creator reactivates it.
func (s *Service) Leave(roomCode, username string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		room, err := getRoom(txn, roomCode)
		if err != nil {
			return err
		}
		room.removeParticipant(username)
		if room.Creator == username {
			room.Active = false
			s.logger.Info("deactivating room, creator left", "room", roomCode)
		}
		return putRoom(txn, room)
	})
	if err != nil {
		return err
	}

	s.logger.Info("participant left room", "room", roomCode, "user", username)
	return nil
}

// Reactivate flips an inactive room back to active. Creator only.
func (s *Service) Reactivate(roomCode, username string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		room, err := getRoom(txn, roomCode)
		if err != nil {
			return err
		}
		if room.Creator != username {
			return ErrNotCreator
		}
		if room.Active {
			return nil
		}
		room.Active = true
		s.logger.Info("room reactivated by creator", "room", roomCode, "user", username)
		return putRoom(txn, room)
	})
}

// Delete removes the room record. Creator only.
func (s *Service) Delete(roomCode, username string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		room, err := getRoom(txn, roomCode)
		if err != nil {
			return err
		}
		if room.Creator != username {
			return ErrNotCreator
		}
		return txn.Delete(roomKey(roomCode))
	})
	if err != nil {
		return err
	}

	s.logger.Info("room deleted", "room", roomCode, "user", username)
	return nil
}

// Get returns the stored room record.
func (s *Service) Get(roomCode string) (Room, error) {
	var room Room
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		room, err = getRoom(txn, roomCode)
		return err
	})
	if err != nil {
		return Room{}, err
	}
	return room, nil
}

func roomKey(code string) []byte {
	return []byte(keyPrefix + code)
}

func getRoom(txn *badger.Txn, code string) (Room, error) {
	item, err := txn.Get(roomKey(code))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Room{}, ErrRoomNotFound
	}
	if err != nil {
		return Room{}, err
	}

	var room Room
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &room)
	}); err != nil {
		return Room{}, fmt.Errorf("decoding room %q: %w", code, err)
	}
	return room, nil
}

func putRoom(txn *badger.Txn, room Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encoding room %q: %w", room.RoomCode, err)
	}
	return txn.Set(roomKey(room.RoomCode), data)
}

// generateRoomCode returns a short shareable code, eight upper-case hex
// characters taken from a fresh UUID.
func generateRoomCode() string {
	return strings.ToUpper(uuid.NewString()[:8])
}
