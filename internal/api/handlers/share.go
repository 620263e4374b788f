package handlers

import (
	"net/http"

	"github.com/rohits-web03/nimbus/internal/apperr"
	"go.uber.org/zap"
)

// SharedFolder godoc
// @Summary Download a shared folder as zip
// @Tags Share
// @Produce application/zip
// @Param link path string true "Folder share link"
// @Success 200 {file} binary
// @Failure 404 {object} utils.Payload
// @Router /api/v1/share/folders/{link} [get]
func (h *Handler) SharedFolder(w http.ResponseWriter, r *http.Request) {
	link, err := pathUUID(r, "link")
	if err != nil {
		h.fail(w, r, apperr.NotFound("Folder not found"))
		return
	}
	folder, err := h.Storage.FolderByLink(r.Context(), link)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", attachment(folder.Name+".zip"))
	w.WriteHeader(http.StatusOK)
	// headers are gone once streaming starts, failures can only be logged
	if err := h.Storage.WriteFolderArchive(r.Context(), folder, w); err != nil {
		h.Log.Warn("archive stream failed", zap.String("folder_id", folder.ID.String()), zap.Error(err))
	}
}

// SharedFile godoc
// @Summary Download a shared file
// @Tags Share
// @Produce octet-stream
// @Param link path string true "File share link"
// @Success 200 {file} binary
// @Success 302 {string} string "Redirect to a presigned URL"
// @Failure 404 {object} utils.Payload
// @Router /api/v1/share/files/{link} [get]
func (h *Handler) SharedFile(w http.ResponseWriter, r *http.Request) {
	link, err := pathUUID(r, "link")
	if err != nil {
		h.fail(w, r, apperr.NotFound("File not found"))
		return
	}
	file, err := h.Storage.FileByLink(r.Context(), link)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.serveFile(w, r, file)
}
