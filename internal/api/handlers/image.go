package handlers

import (
	"net/http"

	"github.com/rohits-web03/nimbus/internal/utils"
)

type promptInput struct {
	Prompt string `json:"prompt"`
}

// GenerateImage godoc
// @Summary Generate an image and wait for it
// @Description Blocks until the image is ready; prefer /img/jobs for long generations
// @Tags Images
// @Accept json
// @Produce json
// @Success 200 {object} utils.Payload
// @Failure 403 {object} utils.Payload
// @Failure 502 {object} utils.Payload
// @Router /api/v1/img/gen [post]
func (h *Handler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input promptInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	img, err := h.AI.GenerateImage(r.Context(), user, input.Prompt)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "OK",
		Data:    map[string]string{"image_base64": img},
	})
}

// POST /api/v1/img/jobs
func (h *Handler) StartImageJob(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input promptInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	job, err := h.Jobs.Start(user, input.Prompt)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusAccepted, utils.Payload{
		Success: true,
		Message: "Image generation started",
		Data:    job,
	})
}

// GET /api/v1/img/jobs/{id}
func (h *Handler) GetImageJob(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	job, err := h.Jobs.Get(user.ID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "OK",
		Data:    job,
	})
}
