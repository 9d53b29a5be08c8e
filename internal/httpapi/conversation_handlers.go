package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/lukasbauer/kaskada/internal/store"
)

const (
	defaultConversationTitle = "New Chat"
	maxConversationTitle     = 200
	conversationListLimit    = 100
)

func (r *Router) handleListConversations(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	convs, err := r.store.ListConversations(req.Context(), user.ID, conversationListLimit)
	if err != nil {
		r.logger.Printf("conversations: failed to list for %q: %v", user.ID, err)
		captureError(req, err, "list conversations")
		writeError(w, http.StatusInternalServerError, "failed to fetch conversations")
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (r *Router) handleCreateConversation(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())

	var body struct {
		Title string `json:"title"`
	}
	// An empty body creates an untitled conversation.
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil && req.ContentLength > 0 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	title := strings.TrimSpace(body.Title)
	if title == "" {
		title = defaultConversationTitle
	}
	if len(title) > maxConversationTitle {
		writeError(w, http.StatusBadRequest, "title too long")
		return
	}

	conv, err := r.store.CreateConversation(req.Context(), user.ID, title)
	if err != nil {
		r.logger.Printf("conversations: failed to create: %v", err)
		captureError(req, err, "create conversation")
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (r *Router) handleGetConversation(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	id := req.PathValue("id")

	detail, err := r.store.GetConversationDetail(req.Context(), user.ID, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		r.logger.Printf("conversations: failed to get %s: %v", id, err)
		captureError(req, err, "get conversation")
		writeError(w, http.StatusInternalServerError, "failed to fetch conversation")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (r *Router) handleDeleteConversation(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	id := req.PathValue("id")

	err := r.store.DeleteConversation(req.Context(), user.ID, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		r.logger.Printf("conversations: failed to delete %s: %v", id, err)
		captureError(req, err, "delete conversation")
		writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
