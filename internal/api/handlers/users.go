package handlers

import (
	"net/http"

	"github.com/rohits-web03/nimbus/internal/services"
	"github.com/rohits-web03/nimbus/internal/utils"
)

// GetSelf godoc
// @Summary Current user profile
// @Tags Users
// @Produce json
// @Success 200 {object} utils.Payload
// @Failure 401 {object} utils.Payload
// @Router /api/v1/users/self [get]
func (h *Handler) GetSelf(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "OK",
		Data:    newUserView(user),
	})
}

// UpdateSelf godoc
// @Summary Partially update the current user
// @Tags Users
// @Accept json
// @Produce json
// @Param body body services.UpdateInput true "Fields to change"
// @Success 200 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Router /api/v1/users/self [put]
func (h *Handler) UpdateSelf(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input services.UpdateInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.Users.Update(r.Context(), user.ID, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Profile updated",
		Data:    newUserView(updated),
	})
}

// GET /api/v1/users/self/package
func (h *Handler) GetSelfPackage(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "OK",
		Data:    map[string]any{"package": newPackageView(user.Package)},
	})
}

// GET /api/v1/users/self/permissions
func (h *Handler) GetPermissions(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v := newUserView(user)
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "OK",
		Data:    map[string]bool{"chat": v.Chat, "img_gen": v.ImgGen},
	})
}

// ListPackages godoc
// @Summary List the package tiers
// @Tags Packages
// @Produce json
// @Success 200 {object} utils.Payload
// @Router /api/v1/packages [get]
func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	pkgs, err := h.Catalog.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]*packageView, 0, len(pkgs))
	for i := range pkgs {
		views = append(views, newPackageView(&pkgs[i]))
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "OK",
		Data:    views,
	})
}
