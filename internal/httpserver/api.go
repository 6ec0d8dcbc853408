package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/videomesh/signal-relay/internal/chat"
	"github.com/videomesh/signal-relay/internal/rooms"
)

// API exposes the room and chat services over REST. Every service failure
// maps to 400 with an {"error": ...} body; clients distinguish cases by
// message, not status code.
type API struct {
	Rooms *rooms.Service
	Chat  *chat.Service
}

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/rooms/create", a.handleCreateRoom)
	mux.HandleFunc("POST /api/rooms/join", a.handleJoinRoom)
	mux.HandleFunc("POST /api/rooms/leave", a.handleLeaveRoom)
	mux.HandleFunc("POST /api/rooms/reactivate", a.handleReactivateRoom)
	mux.HandleFunc("POST /api/rooms/end-meeting", a.handleEndMeeting)

	mux.HandleFunc("POST /api/rooms/chat/send", a.handleSendChatMessage)
	mux.HandleFunc("GET /api/rooms/chat/history/{roomCode}", a.handleChatHistory)
	mux.HandleFunc("DELETE /api/rooms/chat/history/{roomCode}", a.handleDeleteChatHistory)
}

// roomResponse is the public view of a room record. The password never
// leaves the store.
type roomResponse struct {
	RoomCode     string    `json:"roomCode"`
	RoomName     string    `json:"roomName"`
	Creator      string    `json:"creator"`
	CreatedAt    time.Time `json:"createdAt"`
	Participants []string  `json:"participants"`
	Active       bool      `json:"active"`
}

func toRoomResponse(room rooms.Room) roomResponse {
	return roomResponse{
		RoomCode:     room.RoomCode,
		RoomName:     room.RoomName,
		Creator:      room.Creator,
		CreatedAt:    room.CreatedAt,
		Participants: room.Participants,
		Active:       room.Active,
	}
}

type createRoomRequest struct {
	RoomCode string `json:"roomCode"`
	Password string `json:"password"`
	RoomName string `json:"roomName"`
	Creator  string `json:"creator"`
}

func (a *API) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Password == "" || req.Creator == "" {
		writeError(w, "password and creator are required")
		return
	}

	room, err := a.Rooms.Create(rooms.CreateRequest{
		RoomCode: req.RoomCode,
		Password: req.Password,
		RoomName: req.RoomName,
		Creator:  req.Creator,
	})
	if err != nil {
		writeError(w, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, toRoomResponse(room))
}

type joinRoomRequest struct {
	RoomCode string `json:"roomCode"`
	Password string `json:"password"`
	Username string `json:"username"`
}

func (a *API) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.RoomCode == "" || req.Username == "" {
		writeError(w, "roomCode and username are required")
		return
	}

	room, err := a.Rooms.Join(req.RoomCode, req.Password, req.Username)
	if err != nil {
		writeError(w, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, toRoomResponse(room))
}

type roomActionRequest struct {
	RoomCode string `json:"roomCode"`
	Username string `json:"username"`
}

func (a *API) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	var req roomActionRequest
	if !a.decode(w, r, &req) {
		return
	}

	if err := a.Rooms.Leave(req.RoomCode, req.Username); err != nil {
		writeError(w, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Left room successfully"})
}

func (a *API) handleReactivateRoom(w http.ResponseWriter, r *http.Request) {
	var req roomActionRequest
	if !a.decode(w, r, &req) {
		return
	}

	if err := a.Rooms.Reactivate(req.RoomCode, req.Username); err != nil {
		writeError(w, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Room reactivated successfully"})
}

// handleEndMeeting deletes the chat history and the room itself. The creator
// check runs before anything is deleted so a rejected call leaves the history
// intact.
func (a *API) handleEndMeeting(w http.ResponseWriter, r *http.Request) {
	var req roomActionRequest
	if !a.decode(w, r, &req) {
		return
	}

	room, err := a.Rooms.Get(req.RoomCode)
	if err != nil {
		writeError(w, err.Error())
		return
	}
	if room.Creator != req.Username {
		writeError(w, rooms.ErrNotCreator.Error())
		return
	}

	if err := a.Chat.Delete(req.RoomCode); err != nil {
		writeError(w, err.Error())
		return
	}
	if err := a.Rooms.Delete(req.RoomCode, req.Username); err != nil {
		writeError(w, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Meeting ended successfully"})
}

type chatMessageRequest struct {
	RoomCode string `json:"roomCode"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

type chatMessageResponse struct {
	ID        string    `json:"id"`
	RoomCode  string    `json:"roomCode"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func toChatMessageResponse(msg chat.Message) chatMessageResponse {
	return chatMessageResponse{
		ID:        msg.ID,
		RoomCode:  msg.RoomCode,
		Username:  msg.Username,
		Message:   msg.Message,
		Timestamp: msg.Timestamp,
	}
}

func (a *API) handleSendChatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeError(w, "message is required")
		return
	}

	msg, err := a.Chat.Send(req.RoomCode, req.Username, req.Message)
	if err != nil {
		writeError(w, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, toChatMessageResponse(msg))
}

func (a *API) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.Chat.History(r.PathValue("roomCode"))
	if err != nil {
		writeError(w, err.Error())
		return
	}

	out := make([]chatMessageResponse, 0, len(history))
	for _, msg := range history {
		out = append(out, toChatMessageResponse(msg))
	}
	WriteJSON(w, http.StatusOK, out)
}

func (a *API) handleDeleteChatHistory(w http.ResponseWriter, r *http.Request) {
	if err := a.Chat.Delete(r.PathValue("roomCode")); err != nil {
		writeError(w, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Chat history deleted successfully"})
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		writeError(w, "invalid request body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}
