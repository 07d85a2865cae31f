package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dua-platform/credits-backend/internal/api/httpx"
	"github.com/dua-platform/credits-backend/internal/api/validate"
	"github.com/dua-platform/credits-backend/internal/apperr"
	"github.com/dua-platform/credits-backend/internal/middleware"
	"github.com/dua-platform/credits-backend/internal/services"
)

type Handlers struct {
	Credits *services.CreditService
	Redeem  *services.RedeemService
	Runner  *services.PaidActionRunner
}

// writeDomainError maps the error taxonomy onto HTTP. InsufficientFunds gets
// the 402 envelope callers key on (required/current/deficit); claims get the
// claimed:false shape.
func writeDomainError(w http.ResponseWriter, err error) {
	var ife *apperr.InsufficientFundsError
	if errors.As(err, &ife) {
		httpx.WriteJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":     "insufficient_credits",
			"required":  ife.Required,
			"current":   ife.Current,
			"deficit":   ife.Deficit(),
			"operation": ife.Operation,
		})
		return
	}
	var ue *apperr.UpstreamError
	if errors.As(err, &ue) {
		status := ue.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		httpx.WriteError(w, status, "upstream_failed", ue.Message, nil)
		return
	}
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", ve.Message, []validate.ErrField{{Field: ve.Field, Msg: ve.Message}})
		return
	}
	var ves validate.Errs
	if errors.As(err, &ves) {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", ves.Error(), ves)
		return
	}
	switch {
	case errors.Is(err, apperr.ErrInsufficientFunds):
		httpx.WriteError(w, http.StatusPaymentRequired, "insufficient_credits", err.Error(), nil)
	case errors.Is(err, apperr.ErrCodeAlreadyClaimed):
		httpx.WriteJSON(w, http.StatusConflict, map[string]any{"claimed": false, "reason": "already_used"})
	case errors.Is(err, apperr.ErrCodeNotFound):
		httpx.WriteJSON(w, http.StatusNotFound, map[string]any{"claimed": false, "reason": "not_found"})
	case apperr.IsNotFound(err):
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "undecodable request body", nil)
		return false
	}
	return true
}

// ---------- credits ----------

func (h *Handlers) CheckCredits(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("user_id")
	op := r.URL.Query().Get("operation")

	var errs validate.Errs
	if e := validate.Required("user_id", uid); e != nil {
		errs = append(errs, *e)
	}
	if e := validate.Required("operation", op); e != nil {
		errs = append(errs, *e)
	}
	if len(errs) > 0 {
		writeDomainError(w, errs)
		return
	}

	res, err := h.Credits.Check(r.Context(), uid, op)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *Handlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("user_id")
	if e := validate.Required("user_id", uid); e != nil {
		writeDomainError(w, validate.Errs{*e})
		return
	}
	b, err := h.Credits.Balance(r.Context(), uid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

func (h *Handlers) DeductCredits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string         `json:"user_id"`
		Operation string         `json:"operation"`
		Metadata  map[string]any `json:"metadata"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Credits.Deduct(r.Context(), req.UserID, req.Operation, req.Metadata)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"new_balance":    res.NewBalance,
		"transaction_id": res.TransactionID,
	})
}

func (h *Handlers) RefundCredits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID        string `json:"user_id"`
		TransactionID string `json:"transaction_id"`
		Amount        int64  `json:"amount"`
		Reason        string `json:"reason"`
	}
	if !decode(w, r, &req) {
		return
	}
	var errs validate.Errs
	if e := validate.Required("user_id", req.UserID); e != nil {
		errs = append(errs, *e)
	}
	if e := validate.Required("transaction_id", req.TransactionID); e != nil {
		errs = append(errs, *e)
	}
	if e := validate.MinInt("amount", req.Amount, 1); e != nil {
		errs = append(errs, *e)
	}
	if len(errs) > 0 {
		writeDomainError(w, errs)
		return
	}
	res, err := h.Credits.Refund(r.Context(), req.UserID, req.TransactionID, req.Amount, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"new_balance": res.NewBalance,
		"duplicate":   res.Duplicate,
	})
}

// ---------- transactions ----------

func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("user_id")
	if e := validate.Required("user_id", uid); e != nil {
		writeDomainError(w, validate.Errs{*e})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	txs, err := h.Credits.History(r.Context(), uid, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, txs)
}

func (h *Handlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Credits.Transaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tx)
}

// ---------- codes ----------

func (h *Handlers) ClaimCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code     string `json:"code"`
		Claimant string `json:"claimant"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Redeem.ClaimOnce(r.Context(), req.Code, req.Claimant)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

// ---------- paid actions ----------

func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	var req services.PaidActionRequest
	if !decode(w, r, &req) {
		return
	}
	req.RequestID = middleware.RequestIDFrom(r.Context())
	res, err := h.Runner.Run(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

// ---------- admin ----------

func (h *Handlers) GrantBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserIDs []string `json:"user_ids"`
		Amount  int64    `json:"amount"`
		Reason  string   `json:"reason"`
	}
	if !decode(w, r, &req) {
		return
	}
	var errs validate.Errs
	if e := validate.NonEmptyList("user_ids", len(req.UserIDs)); e != nil {
		errs = append(errs, *e)
	}
	if e := validate.MinInt("amount", req.Amount, 1); e != nil {
		errs = append(errs, *e)
	}
	if len(errs) > 0 {
		writeDomainError(w, errs)
		return
	}
	actor, _ := middleware.UserID(r.Context())
	report, err := h.Credits.GrantBatch(r.Context(), req.UserIDs, req.Amount, req.Reason, actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}

func (h *Handlers) ProvisionAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	b, created, err := h.Credits.Provision(r.Context(), req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpx.WriteJSON(w, status, b)
}

// CreateCodes accepts either explicit codes or a count of random codes to
// mint (with an optional prefix).
func (h *Handlers) CreateCodes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Codes  []string `json:"codes"`
		Count  int      `json:"count"`
		Prefix string   `json:"prefix"`
	}
	if !decode(w, r, &req) {
		return
	}

	if req.Count > 0 {
		codes, err := h.Redeem.GenerateCodes(r.Context(), req.Count, req.Prefix)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, map[string]any{"codes": codes})
		return
	}

	if e := validate.NonEmptyList("codes", len(req.Codes)); e != nil {
		writeDomainError(w, validate.Errs{*e})
		return
	}
	created := make([]string, 0, len(req.Codes))
	for _, code := range req.Codes {
		c, err := h.Redeem.CreateCode(r.Context(), code)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		created = append(created, c.Code)
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"codes": created})
}
