// Package handlers holds the HTTP handlers of the API.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rohits-web03/nimbus/internal/api/middleware"
	"github.com/rohits-web03/nimbus/internal/apperr"
	"github.com/rohits-web03/nimbus/internal/auth"
	"github.com/rohits-web03/nimbus/internal/config"
	"github.com/rohits-web03/nimbus/internal/models"
	"github.com/rohits-web03/nimbus/internal/services"
	"github.com/rohits-web03/nimbus/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// maxJSONBody bounds JSON request bodies. Chat transcripts are the largest.
const maxJSONBody = 1 << 20

// Deps is everything the handlers need.
type Deps struct {
	Config  *config.Config
	Log     *zap.Logger
	Issuer  *auth.Issuer
	Google  *oauth2.Config
	Users   *services.Users
	Catalog *services.Catalog
	Quota   *services.Quota
	Storage *services.Storage
	Chats   *services.ChatStore
	Ledger  *services.Ledger
	AI      *services.AIProxy
	Jobs    *services.ImageJobs
}

type Handler struct {
	Deps
}

func New(d Deps) *Handler {
	return &Handler{Deps: d}
}

// currentUser loads the authenticated user with its package.
func (h *Handler) currentUser(r *http.Request) (*models.User, error) {
	id, ok := middleware.UserID(r.Context())
	if !ok {
		return nil, apperr.Unauthorized("Unauthorized")
	}
	user, err := h.Users.Get(r.Context(), id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Unauthorized("Unauthorized")
	}
	return user, err
}

// fail writes err to the client and logs it when it is a server fault.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		h.Log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	utils.ErrorResponse(w, err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("Request body is required")
		}
		return apperr.Validation("Invalid input")
	}
	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, apperr.NotFound("Not found")
	}
	return id, nil
}
