package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/RichardoC/convostore/internal/chat"
	"github.com/RichardoC/convostore/internal/db"
	"github.com/RichardoC/convostore/internal/models"
	"go.uber.org/zap"
)

const (
	defaultOffset = 0
	defaultLimit  = 100

	detailNotFound = "Conversation not found"
	detailInternal = "Internal server error"
)

type Handler struct {
	db     *db.Database
	chat   *chat.Service
	logger *zap.Logger
}

func NewHandler(database *db.Database, chatService *chat.Service, logger *zap.Logger) *Handler {
	return &Handler{
		db:     database,
		chat:   chatService,
		logger: logger,
	}
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type deleteResponse struct {
	OK bool `json:"ok"`
}

func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req models.ConversationCreate
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	conv, err := h.db.CreateConversation(r.Context(), req.Title)
	if err != nil {
		h.internalError(w, r, "Failed to create conversation", err)
		return
	}

	h.writeJSON(w, http.StatusOK, conv.Detail(nil))
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", defaultOffset)
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, "offset must be a non-negative integer")
		return
	}
	limit, err := queryInt(r, "limit", defaultLimit)
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, "limit must be a non-negative integer")
		return
	}

	conversations, err := h.db.ListConversations(r.Context(), offset, limit)
	if err != nil {
		h.internalError(w, r, "Failed to list conversations", err)
		return
	}

	reads := make([]models.ConversationRead, 0, len(conversations))
	for _, c := range conversations {
		reads = append(reads, c.Read())
	}

	h.logger.Debug("Retrieved conversations",
		zap.Int("count", len(reads)),
		zap.Int("offset", offset),
		zap.Int("limit", limit))

	h.writeJSON(w, http.StatusOK, reads)
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	conv, err := h.db.GetConversation(r.Context(), id)
	if err != nil {
		h.storeError(w, r, "Failed to get conversation", err)
		return
	}
	messages, err := h.db.ListMessages(r.Context(), id)
	if err != nil {
		h.storeError(w, r, "Failed to get messages", err)
		return
	}

	h.writeJSON(w, http.StatusOK, conv.Detail(messages))
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	existed, err := h.db.DeleteConversation(r.Context(), id)
	if err != nil {
		h.internalError(w, r, "Failed to delete conversation", err)
		return
	}
	if !existed {
		h.writeError(w, http.StatusNotFound, detailNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, deleteResponse{OK: true})
}

// CreateMessage stores the posted message and answers with the assistant's reply.
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	var req models.MessageCreate
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		h.writeError(w, http.StatusUnprocessableEntity, "content is required")
		return
	}

	reply, err := h.chat.Exchange(r.Context(), id, req.Role, req.Content)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, detailNotFound)
			return
		}
		h.internalError(w, r, "Failed to process message", err)
		return
	}

	h.writeJSON(w, http.StatusOK, reply.Read())
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) conversationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, "Invalid conversation ID")
		return 0, false
	}
	return id, true
}

func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, detailNotFound)
		return
	}
	h.internalError(w, r, msg, err)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg,
		zap.Error(err),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path))
	h.writeError(w, http.StatusInternalServerError, detailInternal)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, errorResponse{Detail: detail})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// decodeBody decodes a JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("negative")
	}
	return n, nil
}
