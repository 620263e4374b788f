package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/rohits-web03/nimbus/internal/apperr"
	"github.com/rohits-web03/nimbus/internal/auth"
	"github.com/rohits-web03/nimbus/internal/models"
	"github.com/rohits-web03/nimbus/internal/services"
	"github.com/rohits-web03/nimbus/internal/utils"
	"go.uber.org/zap"
)

// RegisterUser godoc
// @Summary Register a new account
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body services.RegisterInput true "Registration"
// @Success 201 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Router /api/v1/auth/sign-up [post]
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var input services.RegisterInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.Users.Register(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	utils.JSONResponse(w, http.StatusCreated, utils.Payload{
		Success: true,
		Message: "User registered successfully",
		Data:    newUserView(user),
	})
}

// LoginUser godoc
// @Summary Log in with username and password
// @Description Sets the session cookie and returns the token for bearer clients
// @Tags Auth
// @Accept json
// @Produce json
// @Success 200 {object} utils.Payload
// @Failure 401 {object} utils.Payload
// @Router /api/v1/auth/login [post]
func (h *Handler) LoginUser(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.Users.Authenticate(r.Context(), input.Username, input.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	token, expiration, err := h.setSession(w, user)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Login successful",
		Data: map[string]any{
			"token":     token,
			"expiresAt": expiration,
		},
	})
}

// POST /api/v1/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	isProd := h.Config.IsProduction()

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   isProd,
		HttpOnly: true,
		SameSite: sameSite(isProd),
	})

	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Logged out successfully",
	})
}

// setSession issues a token for user and sets it as the session cookie.
func (h *Handler) setSession(w http.ResponseWriter, user *models.User) (string, time.Time, error) {
	token, expiration, err := h.Issuer.Issue(user)
	if err != nil {
		return "", time.Time{}, err
	}
	isProd := h.Config.IsProduction()
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(time.Until(expiration).Seconds()),
		Secure:   isProd,
		HttpOnly: true,
		SameSite: sameSite(isProd),
	})
	return token, expiration, nil
}

const (
	oauthStateCookie = "oauth_state"
	oauthStateTTL    = 10 * time.Minute
)

// Cross-site cookies need SameSite=None, which browsers only accept over TLS.
func sameSite(isProd bool) http.SameSite {
	if isProd {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// GET /api/v1/auth/google/login?redirect=login|register
func (h *Handler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	redirectType := r.URL.Query().Get("redirect")
	if redirectType != "register" {
		redirectType = "login"
	}

	state, err := auth.GenerateState(map[string]string{"flow": redirectType})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/v1/auth/google",
		MaxAge:   int(oauthStateTTL.Seconds()),
		Secure:   h.Config.IsProduction(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.Google.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// GET /api/v1/auth/google/callback
func (h *Handler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.FormValue("state")
	c, err := r.Cookie(oauthStateCookie)
	if err != nil || c.Value == "" || subtle.ConstantTimeCompare([]byte(c.Value), []byte(state)) != 1 {
		utils.JSONResponse(w, http.StatusBadRequest, utils.Payload{
			Success: false,
			Message: "Invalid OAuth state",
		})
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Path: "/api/v1/auth/google", MaxAge: -1})

	stateData, err := auth.DecodeState(state)
	if err != nil {
		utils.JSONResponse(w, http.StatusBadRequest, utils.Payload{
			Success: false,
			Message: "Invalid OAuth state",
		})
		return
	}
	register := stateData["flow"] == "register"

	googleUser, err := auth.FetchGoogleUser(r.Context(), h.Google, r.FormValue("code"))
	if err != nil {
		h.Log.Warn("google login failed", zap.Error(err))
		h.frontendRedirect(w, r, "/login", url.Values{"error": {"google_failed"}})
		return
	}

	user, err := h.Users.FindOrCreateGoogle(r.Context(), googleUser.Email, googleUser.Name, register)
	switch {
	case errors.Is(err, apperr.ErrConflict):
		h.frontendRedirect(w, r, "/login", url.Values{"error": {"user_already_exists"}})
		return
	case errors.Is(err, apperr.ErrNotFound):
		h.frontendRedirect(w, r, "/register", url.Values{"error": {"user_not_found"}})
		return
	case err != nil:
		h.fail(w, r, err)
		return
	}

	if _, _, err := h.setSession(w, user); err != nil {
		h.fail(w, r, err)
		return
	}

	status := "success_login"
	if register {
		status = "success_register"
	}
	h.frontendRedirect(w, r, "/dashboard", url.Values{"status": {status}})
}

func (h *Handler) frontendRedirect(w http.ResponseWriter, r *http.Request, path string, q url.Values) {
	target := h.Config.FrontendURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}
