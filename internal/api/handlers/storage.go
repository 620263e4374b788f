package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rohits-web03/nimbus/internal/apperr"
	"github.com/rohits-web03/nimbus/internal/models"
	"github.com/rohits-web03/nimbus/internal/services"
	"github.com/rohits-web03/nimbus/internal/utils"
	"go.uber.org/zap"
)

const (
	// multipartMemory is how much of a multipart form is kept in memory
	// before spilling to temp files.
	multipartMemory = 32 << 20
	// multipartOverhead covers boundaries and form fields around the file.
	multipartOverhead = 1 << 20
)

// ListStorage godoc
// @Summary List folders and root files
// @Tags Storage
// @Produce json
// @Success 200 {object} utils.Payload
// @Router /api/v1/storage [get]
func (h *Handler) ListStorage(w http.ResponseWriter, r *http.Request) {
	id, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	listing, err := h.Storage.ListRoot(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	folders := make([]folderView, 0, len(listing.Folders))
	for i := range listing.Folders {
		folders = append(folders, h.newFolderView(&listing.Folders[i]))
	}
	files := make([]fileView, 0, len(listing.Files))
	for i := range listing.Files {
		files = append(files, h.newFileView(&listing.Files[i]))
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "OK",
		Data:    map[string]any{"folders": folders, "files": files},
	})
}

// GET /api/v1/storage/usage
func (h *Handler) StorageUsage(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	usage, err := h.Quota.Usage(r.Context(), user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "OK",
		Data:    newUsageView(usage),
	})
}

// POST /api/v1/storage/folders
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	id, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	folder, err := h.Storage.CreateFolder(r.Context(), id, input.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusCreated, utils.Payload{
		Success: true,
		Message: "Folder created",
		Data:    h.newFolderView(folder),
	})
}

// DELETE /api/v1/storage/folders/{id}
func (h *Handler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	folderID, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.Storage.DeleteFolder(r.Context(), userID, folderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.deleted(w, "Folder deleted", res)
}

// UploadFile godoc
// @Summary Upload a file
// @Description Stores one file, optionally inside a folder, within the package quota
// @Tags Storage
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File to upload"
// @Param folder_id formData string false "Target folder"
// @Success 201 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Failure 413 {object} utils.Payload
// @Router /api/v1/storage/files [post]
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, services.Limit(user)+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.fail(w, r, apperr.QuotaExceeded("single file exceeds package limit"))
			return
		}
		h.fail(w, r, apperr.Validation("Invalid file upload form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, apperr.Validation("No file provided"))
		return
	}
	defer file.Close()

	in := services.UploadInput{
		Name:         header.Filename,
		Body:         file,
		DeclaredSize: header.Size,
	}
	if raw := r.FormValue("folder_id"); raw != "" {
		folderID, err := uuid.Parse(raw)
		if err != nil {
			h.fail(w, r, apperr.NotFound("Folder not found"))
			return
		}
		in.FolderID = &folderID
	}

	stored, err := h.Storage.UploadFile(r.Context(), user, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusCreated, utils.Payload{
		Success: true,
		Message: "File uploaded",
		Data:    h.newFileView(stored),
	})
}

// GET /api/v1/storage/files/{id}
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	fileID, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	file, err := h.Storage.FileForOwner(r.Context(), userID, fileID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.serveFile(w, r, file)
}

// DELETE /api/v1/storage/files/{id}
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	fileID, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.Storage.DeleteFile(r.Context(), userID, fileID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.deleted(w, "File deleted", res)
}

func (h *Handler) deleted(w http.ResponseWriter, msg string, res *services.DeleteResult) {
	data := map[string]any{"files_removed": res.FilesRemoved}
	if res.Warning != nil {
		data["warning"] = "Some stored content could not be removed"
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: msg,
		Data:    data,
	})
}

// serveFile redirects to a presigned URL when the blob store supports it
// and streams the blob otherwise.
func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, file *models.File) {
	if url, ok, err := h.Storage.PresignDownload(r.Context(), file); err != nil {
		h.Log.Warn("presign failed, streaming instead", zap.String("file_id", file.ID.String()), zap.Error(err))
	} else if ok {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	rc, err := h.Storage.OpenFile(r.Context(), file)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer rc.Close()

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", attachment(file.Filename))
	w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.Log.Warn("download interrupted", zap.String("file_id", file.ID.String()), zap.Error(err))
	}
}

func attachment(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}

func (h *Handler) userID(r *http.Request) (uuid.UUID, error) {
	user, err := h.currentUser(r)
	if err != nil {
		return uuid.Nil, err
	}
	return user.ID, nil
}
