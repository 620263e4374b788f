package handlers

import (
	"net/http"

	"github.com/rohits-web03/nimbus/internal/models"
	"github.com/rohits-web03/nimbus/internal/utils"
)

// Chat godoc
// @Summary Send a message to the assistant
// @Tags Chat
// @Accept json
// @Produce json
// @Success 200 {object} utils.Payload
// @Failure 403 {object} utils.Payload
// @Failure 502 {object} utils.Payload
// @Router /api/v1/chat [post]
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	reply, err := h.AI.Chat(r.Context(), user, input.Message)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "OK",
		Data:    reply,
	})
}

// POST /api/v1/chat/turns
func (h *Handler) AppendTurn(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var turn models.Turn
	if err := decodeJSON(w, r, &turn); err != nil {
		h.fail(w, r, err)
		return
	}
	conv, err := h.Chats.Append(r.Context(), user.ID, turn)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Turn saved",
		Data:    map[string]any{"conversation": conv},
	})
}

// SaveChat godoc
// @Summary Merge turns into the stored conversation
// @Tags Chat
// @Accept json
// @Produce json
// @Success 200 {object} utils.Payload
// @Success 201 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Router /api/v1/chat/save [post]
func (h *Handler) SaveChat(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input struct {
		Conversation []models.Turn `json:"conversation"`
	}
	if err := decodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.Chats.Merge(r.Context(), user.ID, input.Conversation)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status, msg := http.StatusOK, "Chat session updated"
	if created {
		status, msg = http.StatusCreated, "Chat session created"
	}
	utils.JSONResponse(w, status, utils.Payload{Success: true, Message: msg})
}

// GET /api/v1/chat/history
func (h *Handler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	conv, err := h.Chats.Load(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "OK",
		Data:    map[string]any{"conversation": conv},
	})
}

// DELETE /api/v1/chat/reset
func (h *Handler) ResetChat(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Chats.Reset(r.Context(), user.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Chat session reset",
	})
}
