package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"community-chat/internal/chat"
	"community-chat/internal/middleware"
	"community-chat/internal/models"
	"community-chat/internal/repository"
)

// Handler serves the REST surface around the chat core: the room
// directory and the persisted message history clients refetch after a
// reconnect.
type Handler struct {
	rooms    repository.RoomRepository
	messages repository.MessageRepository
	server   *chat.Server
}

func NewHandler(rooms repository.RoomRepository, messages repository.MessageRepository, server *chat.Server) *Handler {
	return &Handler{rooms: rooms, messages: messages, server: server}
}

type createRoomRequest struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Type        models.RoomType      `json:"type"`
	MaxUsers    int                  `json:"max_users"`
	Settings    *models.RoomSettings `json:"settings,omitempty"`
}

func (h *Handler) ListPublicRooms(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithDBTimeout(r)
	defer cancel()

	rooms, err := h.rooms.ListPublicRooms(ctx)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (h *Handler) ListMyRooms(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	ctx, cancel := contextWithDBTimeout(r)
	defer cancel()

	rooms, err := h.rooms.ListRoomsForUser(ctx, user.ID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var payload createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Printf("[API] Create room decode error: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	payload.Name = strings.TrimSpace(payload.Name)
	if payload.Name == "" {
		http.Error(w, "Room name is required", http.StatusBadRequest)
		return
	}

	switch payload.Type {
	case "":
		payload.Type = models.RoomPublic
	case models.RoomPublic, models.RoomPrivate, models.RoomDirect:
	default:
		http.Error(w, "Room type must be public, private or direct", http.StatusBadRequest)
		return
	}

	if payload.MaxUsers <= 0 {
		payload.MaxUsers = 100
	}

	settings := models.DefaultRoomSettings()
	if payload.Settings != nil {
		settings = *payload.Settings
	}

	room := &models.Room{
		ID:          uuid.New(),
		Name:        payload.Name,
		Description: payload.Description,
		Type:        payload.Type,
		IsActive:    true,
		MaxUsers:    payload.MaxUsers,
		CreatedBy:   user.ID,
		Moderators:  []uuid.UUID{user.ID},
		BannedUsers: []models.BanRecord{},
		Settings:    settings,
	}

	ctx, cancel := contextWithDBTimeout(r)
	defer cancel()

	if err := h.rooms.CreateRoom(ctx, room); err != nil {
		http.Error(w, "Failed to create room", http.StatusInternalServerError)
		return
	}

	log.Printf("[API] Room %q created by %s", room.Name, user.Username)
	writeJSON(w, http.StatusCreated, room)
}

func (h *Handler) RoomHistory(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid room ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := contextWithDBTimeout(r)
	defer cancel()

	if _, err := h.rooms.GetRoom(ctx, roomID); err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			http.Error(w, "Room not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var before time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		before, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "Invalid before timestamp", http.StatusBadRequest)
			return
		}
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
	}

	messages, err := h.messages.FetchRoomMessages(ctx, roomID, before, limit)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) RoomOnlineUsers(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid room ID", http.StatusBadRequest)
		return
	}

	users := h.server.OnlineUsers(&roomID)
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(users),
		"users": users,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[API] Response encode error: %v", err)
	}
}

func contextWithDBTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 5*time.Second)
}
