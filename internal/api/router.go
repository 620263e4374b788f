package api

import (
	"fmt"
	"net/http"

	_ "github.com/rohits-web03/nimbus/docs"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/rohits-web03/nimbus/internal/api/handlers"
	"github.com/rohits-web03/nimbus/internal/api/middleware"
	"github.com/rohits-web03/nimbus/internal/auth"
	"github.com/rohits-web03/nimbus/internal/config"
	"github.com/rohits-web03/nimbus/internal/observability"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// RouterDeps carries what the router wires around the handlers.
type RouterDeps struct {
	Config  *config.Config
	Log     *zap.Logger
	Metrics *observability.Metrics
	Issuer  *auth.Issuer
	Limiter *middleware.RateLimiter
}

func SetupRouter(h *handlers.Handler, d RouterDeps) http.Handler {
	mainMux := http.NewServeMux()
	c := cors.New(d.Config.CorsConfig)

	protected := middleware.Auth(d.Issuer)
	limited := func(fn http.HandlerFunc) http.Handler {
		return protected(d.Limiter.Limit(fn))
	}
	handle := func(pattern string, fn http.HandlerFunc) {
		mainMux.Handle(pattern, protected(fn))
	}

	// ---------- PUBLIC ROUTES ----------
	mainMux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	mainMux.Handle("GET /metrics", d.Metrics.Handler())
	mainMux.HandleFunc("GET /docs/", httpSwagger.WrapHandler)

	mainMux.HandleFunc("POST /api/v1/auth/sign-up", h.RegisterUser)
	mainMux.HandleFunc("POST /api/v1/auth/login", h.LoginUser)
	mainMux.HandleFunc("GET /api/v1/auth/google/login", h.HandleGoogleLogin)
	mainMux.HandleFunc("GET /api/v1/auth/google/callback", h.HandleGoogleCallback)

	mainMux.HandleFunc("GET /api/v1/share/folders/{link}", h.SharedFolder)
	mainMux.HandleFunc("GET /api/v1/share/files/{link}", h.SharedFile)

	// ---------- PROTECTED ROUTES ----------
	handle("POST /api/v1/auth/logout", h.Logout)

	handle("GET /api/v1/users/self", h.GetSelf)
	handle("PUT /api/v1/users/self", h.UpdateSelf)
	handle("GET /api/v1/users/self/package", h.GetSelfPackage)
	handle("GET /api/v1/users/self/permissions", h.GetPermissions)
	handle("GET /api/v1/packages", h.ListPackages)

	handle("GET /api/v1/storage", h.ListStorage)
	handle("GET /api/v1/storage/usage", h.StorageUsage)
	handle("POST /api/v1/storage/folders", h.CreateFolder)
	handle("DELETE /api/v1/storage/folders/{id}", h.DeleteFolder)
	handle("POST /api/v1/storage/files", h.UploadFile)
	handle("GET /api/v1/storage/files/{id}", h.DownloadFile)
	handle("DELETE /api/v1/storage/files/{id}", h.DeleteFile)

	handle("POST /api/v1/payments", h.InitiatePayment)
	handle("POST /api/v1/payments/status", h.PaymentStatus)
	handle("GET /api/v1/payments/{orderID}/qrcode", h.PaymentQRCode)

	mainMux.Handle("POST /api/v1/chat", limited(h.Chat))
	handle("POST /api/v1/chat/turns", h.AppendTurn)
	handle("POST /api/v1/chat/save", h.SaveChat)
	handle("GET /api/v1/chat/history", h.ChatHistory)
	handle("DELETE /api/v1/chat/reset", h.ResetChat)

	mainMux.Handle("POST /api/v1/img/gen", limited(h.GenerateImage))
	mainMux.Handle("POST /api/v1/img/jobs", limited(h.StartImageJob))
	handle("GET /api/v1/img/jobs/{id}", h.GetImageJob)

	d.Log.Info("Router initialized")
	handler := c.Handler(mainMux)
	handler = middleware.Logger(d.Log, d.Metrics)(handler)
	return handler
}
