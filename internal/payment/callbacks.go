package payment

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/comeback-ar/backend/internal/common"
	"github.com/comeback-ar/backend/internal/freedompay"
	"github.com/comeback-ar/backend/internal/obs"
)

// CallbackHandler serves the four gateway-facing endpoints. The gateway expects
// plain-text "OK"/"ERROR" bodies from check and result, and the success/fail
// endpoints double as browser landing pages, so they must render 200 even when
// the referenced transaction is unknown.
type CallbackHandler struct {
	Store  Store
	Signer freedompay.Signer
	Log    zerolog.Logger
}

func (h *CallbackHandler) writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// verifySignature applies the merchant signature policy to an inbound payload.
// A payload that omits pg_sig entirely is let through with a warning; a payload
// that carries a signature which does not verify is rejected.
func (h *CallbackHandler) verifySignature(params map[string]string, callbackType CallbackType) bool {
	received, ok := params[freedompay.FieldSignature]
	if !ok || received == "" {
		h.Log.Warn().
			Str("callback", string(callbackType)).
			Str("order_id", params[freedompay.FieldOrderID]).
			Msg("callback without signature accepted")
		return true
	}
	if h.Signer.Verify(params, received) {
		return true
	}
	h.Log.Error().
		Str("callback", string(callbackType)).
		Str("order_id", params[freedompay.FieldOrderID]).
		Msg("callback signature mismatch")
	return false
}

func callbackMetric(callbackType CallbackType, result string) {
	if obs.PaymentCallbackTotal != nil {
		obs.PaymentCallbackTotal.WithLabelValues(string(callbackType), result).Inc()
	}
}

func statusMetric(status Status) {
	if obs.TransactionStatusTotal != nil {
		obs.TransactionStatusTotal.WithLabelValues(string(status)).Inc()
	}
}

// Check handles the pre-payment validation probe. The gateway sends it before
// charging the customer; answering ERROR aborts the payment.
func (h *CallbackHandler) Check(w http.ResponseWriter, r *http.Request) {
	params := common.FormValues(r)
	if !h.verifySignature(params, CallbackCheck) {
		callbackMetric(CallbackCheck, "rejected")
		h.writeText(w, http.StatusBadRequest, "ERROR")
		return
	}

	orderID := params[freedompay.FieldOrderID]
	tx, err := h.Store.GetByOrderID(r.Context(), orderID)
	if err != nil {
		h.Log.Warn().Err(err).Str("order_id", orderID).Msg("check callback for unknown order")
		callbackMetric(CallbackCheck, "unknown_order")
		h.writeText(w, http.StatusBadRequest, "ERROR")
		return
	}

	h.appendAudit(r.Context(), tx.OrderID, CallbackCheck, params)
	callbackMetric(CallbackCheck, "ok")
	h.writeText(w, http.StatusOK, "OK")
}

// Result handles the authoritative server-to-server payment outcome. The audit
// row is written before the status change so a crash between the two leaves
// evidence of the attempt.
func (h *CallbackHandler) Result(w http.ResponseWriter, r *http.Request) {
	params := common.FormValues(r)
	if !h.verifySignature(params, CallbackResult) {
		callbackMetric(CallbackResult, "rejected")
		h.writeText(w, http.StatusBadRequest, "ERROR")
		return
	}

	orderID := params[freedompay.FieldOrderID]
	if _, err := h.Store.GetByOrderID(r.Context(), orderID); err != nil {
		h.Log.Warn().Err(err).Str("order_id", orderID).Msg("result callback for unknown order")
		callbackMetric(CallbackResult, "unknown_order")
		h.writeText(w, http.StatusBadRequest, "ERROR")
		return
	}

	paid := params[freedompay.FieldResult] == "1"
	h.appendAudit(r.Context(), orderID, CallbackResult, params)

	var err error
	if paid {
		_, err = h.Store.MarkPaid(r.Context(), orderID, params[freedompay.FieldPaymentID])
	} else {
		_, err = h.Store.MarkFailed(r.Context(), orderID)
	}
	if err != nil {
		h.Log.Error().Err(err).Str("order_id", orderID).Bool("paid", paid).Msg("result callback state change failed")
		callbackMetric(CallbackResult, "error")
		h.writeText(w, http.StatusBadRequest, "ERROR")
		return
	}

	if paid {
		statusMetric(StatusSuccess)
	} else {
		statusMetric(StatusFailed)
	}
	h.Log.Info().Str("order_id", orderID).Bool("paid", paid).Msg("result callback processed")
	callbackMetric(CallbackResult, "ok")
	h.writeText(w, http.StatusOK, "OK")
}

// Success handles the customer redirect after a successful charge. Browsers
// arrive with GET and must always see the landing page; the gateway may also
// POST here, which gets the plain OK acknowledgement.
func (h *CallbackHandler) Success(w http.ResponseWriter, r *http.Request) {
	params := common.FormValues(r)
	orderID := params[freedompay.FieldOrderID]

	if r.Method == http.MethodPost {
		h.appendAudit(r.Context(), orderID, CallbackSuccess, params)
		if _, err := h.Store.MarkPaid(r.Context(), orderID, params[freedompay.FieldPaymentID]); err != nil {
			h.Log.Warn().Err(err).Str("order_id", orderID).Msg("success notification for unknown order")
		} else {
			statusMetric(StatusSuccess)
		}
		callbackMetric(CallbackSuccess, "ok")
		h.writeText(w, http.StatusOK, "OK")
		return
	}

	// Redirect landing: only a pending transaction moves to success here, the
	// server-to-server result callback remains authoritative for everything
	// else.
	tx, err := h.Store.GetByOrderID(r.Context(), orderID)
	if err == nil && tx.Status == StatusPending {
		if _, err := h.Store.MarkPaid(r.Context(), orderID, params[freedompay.FieldPaymentID]); err == nil {
			h.appendAudit(r.Context(), orderID, CallbackSuccess, params)
			statusMetric(StatusSuccess)
		}
	}
	callbackMetric(CallbackSuccess, "ok")
	renderPage(w, successPage)
}

// Fail handles the customer redirect after a declined or abandoned charge.
func (h *CallbackHandler) Fail(w http.ResponseWriter, r *http.Request) {
	params := common.FormValues(r)
	orderID := params[freedompay.FieldOrderID]

	if r.Method == http.MethodPost {
		h.appendAudit(r.Context(), orderID, CallbackFail, params)
		if _, err := h.Store.MarkFailed(r.Context(), orderID); err != nil {
			h.Log.Warn().Err(err).Str("order_id", orderID).Msg("fail notification for unknown order")
		} else {
			statusMetric(StatusFailed)
		}
		callbackMetric(CallbackFail, "ok")
		h.writeText(w, http.StatusOK, "OK")
		return
	}

	tx, err := h.Store.GetByOrderID(r.Context(), orderID)
	if err == nil && tx.Status == StatusPending {
		if _, err := h.Store.MarkFailed(r.Context(), orderID); err == nil {
			h.appendAudit(r.Context(), orderID, CallbackFail, params)
			statusMetric(StatusFailed)
		}
	}
	callbackMetric(CallbackFail, "ok")
	renderPage(w, failPage)
}

// appendAudit records a callback row. The trail is append-only and best
// effort: failing to record never changes the response to the gateway beyond
// a log line.
func (h *CallbackHandler) appendAudit(ctx context.Context, orderID string, callbackType CallbackType, raw map[string]string) {
	if _, err := h.Store.AppendCallback(ctx, orderID, callbackType, raw); err != nil && !errors.Is(err, ErrNotFound) {
		h.Log.Error().Err(err).Str("order_id", orderID).Str("callback", string(callbackType)).Msg("append callback audit failed")
	}
}
