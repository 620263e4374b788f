package handlers

import (
	"net/http"
	"strconv"

	"github.com/rohits-web03/nimbus/internal/utils"
)

// InitiatePayment godoc
// @Summary Start a package purchase
// @Tags Payments
// @Accept json
// @Produce json
// @Success 201 {object} utils.Payload
// @Failure 404 {object} utils.Payload
// @Router /api/v1/payments [post]
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input struct {
		PackageID uint `json:"package_id"`
	}
	if err := decodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	started, err := h.Ledger.Initiate(r.Context(), user.ID, input.PackageID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusCreated, utils.Payload{
		Success: true,
		Message: "Payment initiated",
		Data:    started,
	})
}

// PaymentStatus godoc
// @Summary Report the outcome of a payment
// @Description status is success or failed; repeating the stored outcome is a no-op
// @Tags Payments
// @Accept json
// @Produce json
// @Success 200 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Failure 409 {object} utils.Payload
// @Router /api/v1/payments/status [post]
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	}
	if err := decodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.Ledger.Resolve(r.Context(), user.ID, input.OrderID, input.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Payment " + string(res.Transaction.Status),
		Data:    res,
	})
}

// GET /api/v1/payments/{orderID}/qrcode
func (h *Handler) PaymentQRCode(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	png, err := h.Ledger.QRCode(r.Context(), user.ID, r.PathValue("orderID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
