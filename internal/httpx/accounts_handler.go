package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ariefcatur/go-commerce-core/internal/commerce"
	"github.com/ariefcatur/go-commerce-core/internal/store"
)

// AccountsHandler serves account, payout and SKU administration.
type AccountsHandler struct {
	Store   store.Store
	Manager *commerce.Manager
}

func (h *AccountsHandler) Register(r *chi.Mux) {
	r.Post("/accounts", h.createAccount)
	r.Get("/accounts/{id}", h.getAccount)
	r.Post("/accounts/{id}/payouts", h.payout)
	r.Post("/accounts/{id}/payouts/cancel", h.payoutCancel)
	r.Post("/skus", h.createSKU)
	r.Get("/skus/{id}", h.getSKU)
}

type createAccountReq struct {
	ID      string `json:"id,omitempty"`
	Country string `json:"country,omitempty"`
}

func (h *AccountsHandler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	acct := &commerce.Account{ID: req.ID, Country: req.Country}
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	if err := commerce.CreateAccount(ctx, h.Store, acct); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (h *AccountsHandler) getAccount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	acct, err := commerce.GetAccount(ctx, h.Store, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

type payoutReq struct {
	RequestID string            `json:"request_id"`
	Currency  commerce.Currency `json:"currency"`
	Amount    int64             `json:"amount"`
}

func (h *AccountsHandler) payout(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	var req payoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.RequestID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing request_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.Manager.Payout(ctx, accountID, req.Currency, req.Amount, req.RequestID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": accountID,
		"currency":   req.Currency,
		"amount":     req.Amount,
	})
}

func (h *AccountsHandler) payoutCancel(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	var req payoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.RequestID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing request_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.Manager.PayoutCancel(ctx, accountID, req.Currency, req.Amount, req.RequestID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": accountID,
		"currency":   req.Currency,
		"amount":     req.Amount,
	})
}

type createSKUReq struct {
	ID             string             `json:"id,omitempty"`
	ProductID      string             `json:"product_id"`
	SellerID       string             `json:"seller_id"`
	Currency       commerce.Currency  `json:"currency"`
	Amount         int64              `json:"amount"`
	Inventory      commerce.Inventory `json:"inventory"`
	NumberOfShards int                `json:"number_of_shards,omitempty"`
}

func (h *AccountsHandler) createSKU(w http.ResponseWriter, r *http.Request) {
	var req createSKUReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ProductID == "" || req.SellerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sku := &commerce.SKU{
		ID:             req.ID,
		ProductID:      req.ProductID,
		SellerID:       req.SellerID,
		CreatedBy:      req.SellerID,
		Currency:       req.Currency,
		Amount:         req.Amount,
		Inventory:      req.Inventory,
		NumberOfShards: req.NumberOfShards,
		IsPublished:    true,
		IsActive:       true,
	}
	if sku.ID == "" {
		sku.ID = uuid.NewString()
	}
	if err := commerce.CreateSKU(ctx, h.Store, sku); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sku)
}

func (h *AccountsHandler) getSKU(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	skuID := chi.URLParam(r, "id")
	sku, err := commerce.GetSKU(ctx, h.Store, skuID)
	if err != nil {
		writeError(w, err)
		return
	}
	reserved, err := commerce.ReservedUnits(ctx, h.Store, skuID, sku.Shards())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sku": sku, "reserved": reserved})
}
