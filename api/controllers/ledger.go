package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zonecraft/portal-backend/api/middleware"
	"github.com/zonecraft/portal-backend/api/responses"
	"github.com/zonecraft/portal-backend/api/validators"
	ledgersvc "github.com/zonecraft/portal-backend/internal/ledger"
	"github.com/zonecraft/portal-backend/pkg/db/models"
	pkgerrors "github.com/zonecraft/portal-backend/pkg/errors"
	"github.com/zonecraft/portal-backend/pkg/logger"
	"github.com/zonecraft/portal-backend/pkg/pagination"
)

type ledgerTransactionResponse struct {
	ID          uuid.UUID `json:"id"`
	Amount      string    `json:"amount"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type ledgerPageResponse struct {
	Transactions []ledgerTransactionResponse `json:"transactions"`
	NextCursor   string                      `json:"next_cursor,omitempty"`
}

// LedgerList returns the caller's transaction history, newest first,
// with opaque cursor pagination.
func LedgerList(svc ledgersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		userID, err := middleware.ResolveUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListByUser(r.Context(), userID, pagination.Params{
			Cursor: r.URL.Query().Get("cursor"),
			Limit:  limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := ledgerPageResponse{
			Transactions: make([]ledgerTransactionResponse, 0, len(page.Transactions)),
			NextCursor:   page.NextCursor,
		}
		for i := range page.Transactions {
			out.Transactions = append(out.Transactions, newLedgerTransactionResponse(&page.Transactions[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func newLedgerTransactionResponse(txn *models.LedgerTransaction) ledgerTransactionResponse {
	return ledgerTransactionResponse{
		ID:          txn.ID,
		Amount:      txn.Amount.StringFixed(2),
		Type:        string(txn.Type),
		Status:      string(txn.Status),
		Description: txn.Description,
		CreatedAt:   txn.CreatedAt,
	}
}
