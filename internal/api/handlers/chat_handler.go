package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/markdave123-py/documind/internal/services"
)

type ChatHandler struct {
	chat    *services.ChatService
	suggest *services.SuggestService
	log     *zap.Logger
}

func NewChatHandler(chat *services.ChatService, suggest *services.SuggestService, log *zap.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, suggest: suggest, log: log.Named("chat-handler")}
}

// Chat answers the latest user message about one document.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req services.AnswerRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ans, err := h.chat.Answer(r.Context(), userID, req)
	if err != nil {
		respondErr(w, h.log, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"content": ans.Content})
}

type suggestRequest struct {
	DocID   string `json:"docId"`
	Summary string `json:"summary"`
}

// Suggest always answers 200 with three questions once the request is well formed.
func (h *ChatHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req suggestRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.DocID) == "" {
		RespondError(w, http.StatusBadRequest, "docId is required")
		return
	}

	questions := h.suggest.Suggest(r.Context(), userID, req.DocID, req.Summary)
	RespondJSON(w, http.StatusOK, map[string][]string{"questions": questions})
}

func (h *ChatHandler) AllHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	groups, err := h.chat.AllHistory(r.Context(), userID)
	if err != nil {
		respondErr(w, h.log, err)
		return
	}
	RespondJSON(w, http.StatusOK, groups)
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	msgs, err := h.chat.History(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, h.log, err)
		return
	}
	RespondJSON(w, http.StatusOK, msgs)
}

func (h *ChatHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.chat.ClearHistory(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		respondErr(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type saveMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (h *ChatHandler) SaveMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req saveMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	msg, err := h.chat.SaveMessage(r.Context(), userID, chi.URLParam(r, "id"), req.Role, req.Content)
	if err != nil {
		respondErr(w, h.log, err)
		return
	}
	RespondJSON(w, http.StatusCreated, msg)
}
