package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/ledger"
)

// admitRequest is the request body for POST /v1/admit.
type admitRequest struct {
	Subject string `json:"subject"`
	Action  string `json:"action,omitempty"`
	Feature string `json:"feature,omitempty"`
}

// admitResponse is the response body for POST /v1/admit.
type admitResponse struct {
	Allowed         bool   `json:"allowed"`
	Reason          string `json:"reason,omitempty"`
	RetryAfterMs    int64  `json:"retry_after_ms,omitempty"`
	Remaining       *int64 `json:"remaining,omitempty"`
	BudgetRemaining *int64 `json:"budget_remaining,omitempty"`
	BalanceCents    *int64 `json:"balance_cents,omitempty"`
}

// chargeRequest is the request body for POST /v1/charge.
type chargeRequest struct {
	Subject        string            `json:"subject"`
	Feature        string            `json:"feature"`
	AmountCents    int64             `json:"amount_cents,omitempty"`
	Quantity       int64             `json:"quantity,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// chargeResponse is the response body for POST /v1/charge.
type chargeResponse struct {
	ReceiptID    string `json:"receipt_id"`
	WriteOff     bool   `json:"write_off"`
	BalanceCents int64  `json:"balance_cents"`
}

// creditRequest is the request body for POST /v1/credit.
type creditRequest struct {
	Subject     string            `json:"subject"`
	AmountCents int64             `json:"amount_cents"`
	Reason      string            `json:"reason,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// creditResponse is the response body for POST /v1/credit.
type creditResponse struct {
	TransactionID string `json:"transaction_id"`
	BalanceCents  int64  `json:"balance_cents"`
}

// balanceResponse is the response body for GET /v1/balance/{subject}.
type balanceResponse struct {
	Subject      string `json:"subject"`
	BalanceCents int64  `json:"balance_cents"`
	Balance      string `json:"balance"`
}

// transactionEntry is one element of the transactions listing.
type transactionEntry struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	AmountCents int64             `json:"amount_cents"`
	Reason      string            `json:"reason,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// usageEntry is one element of the usage listing.
type usageEntry struct {
	ID        string            `json:"id"`
	Feature   string            `json:"feature"`
	Quantity  int64             `json:"quantity"`
	CostCents int64             `json:"cost_cents"`
	WriteOff  bool              `json:"write_off,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// reconcileResponse is the response body for GET /v1/reconcile/{subject}.
type reconcileResponse struct {
	Subject             string `json:"subject"`
	BalanceCents        int64  `json:"balance_cents"`
	TransactionSumCents int64  `json:"transaction_sum_cents"`
	Consistent          bool   `json:"consistent"`
}

// errorResponse is the body of all error responses.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleAdmit(w http.ResponseWriter, r *http.Request) {
	var req admitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	decision, err := s.meter.Admit(r.Context(), &metering.AdmitRequest{
		Subject: req.Subject,
		Action:  req.Action,
		Feature: req.Feature,
	})
	if err != nil {
		if errors.Is(err, metering.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "admission check failed")
		return
	}

	resp := admitResponse{
		Allowed: decision.Allowed,
		Reason:  string(decision.Reason),
	}
	if decision.RetryAfter > 0 {
		resp.RetryAfterMs = decision.RetryAfter.Milliseconds()
	}
	if decision.RateLimit != nil {
		remaining := decision.RateLimit.Remaining
		resp.Remaining = &remaining
	}
	if decision.Budget != nil {
		budgetRemaining := decision.Budget.Remaining
		resp.BudgetRemaining = &budgetRemaining
	}
	if decision.BalanceChecked {
		balance := decision.Balance.Cents()
		resp.BalanceCents = &balance
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCharge(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	receipt, err := s.meter.Charge(r.Context(), &metering.ChargeRequest{
		Subject:        req.Subject,
		Feature:        req.Feature,
		Amount:         ledger.Money(req.AmountCents),
		Quantity:       req.Quantity,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, metering.ErrInvalidRequest), errors.Is(err, ledger.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, metering.ErrStoreUnavailable):
			writeError(w, http.StatusServiceUnavailable, "store unavailable, retry the charge")
		default:
			writeError(w, http.StatusInternalServerError, "charge failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, chargeResponse{
		ReceiptID:    receipt.ReceiptID,
		WriteOff:     receipt.WriteOff,
		BalanceCents: receipt.Balance.Cents(),
	})
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Subject == "" {
		writeError(w, http.StatusBadRequest, "subject is required")
		return
	}

	receipt, err := s.meter.Credit(r.Context(), req.Subject, ledger.Money(req.AmountCents), req.Reason, req.Metadata)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidAmount) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "credit failed")
		return
	}

	writeJSON(w, http.StatusOK, creditResponse{
		TransactionID: receipt.TransactionID,
		BalanceCents:  receipt.Balance.Cents(),
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	subject := r.PathValue("subject")

	balance, err := s.meter.Balance(r.Context(), subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Subject:      subject,
		BalanceCents: balance.Cents(),
		Balance:      balance.String(),
	})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	subject := r.PathValue("subject")
	limit := queryLimit(r, 100)

	transactions, err := s.meter.Transactions(r.Context(), subject, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	entries := make([]transactionEntry, 0, len(transactions))
	for _, tx := range transactions {
		entries = append(entries, transactionEntry{
			ID:          tx.ID,
			Kind:        string(tx.Kind),
			AmountCents: tx.Amount.Cents(),
			Reason:      tx.Reason,
			Metadata:    tx.Metadata,
			CreatedAt:   tx.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"subject":      subject,
		"transactions": entries,
	})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	subject := r.PathValue("subject")
	limit := queryLimit(r, 100)

	records, err := s.meter.Usage(r.Context(), subject, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list usage")
		return
	}

	entries := make([]usageEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, usageEntry{
			ID:        rec.ID,
			Feature:   rec.Feature,
			Quantity:  rec.Quantity,
			CostCents: rec.CostCents,
			WriteOff:  rec.WriteOff,
			Metadata:  rec.Metadata,
			CreatedAt: rec.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"subject": subject,
		"records": entries,
	})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	subject := r.PathValue("subject")

	balance, sum, ok, err := s.meter.Reconcile(r.Context(), subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}

	writeJSON(w, http.StatusOK, reconcileResponse{
		Subject:             subject,
		BalanceCents:        balance.Cents(),
		TransactionSumCents: sum.Cents(),
		Consistent:          ok,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// queryLimit parses the optional limit query parameter.
func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
