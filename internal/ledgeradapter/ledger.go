// Package ledgeradapter is the narrow account/transaction-posting
// interface the credit, deposit, and custody domains consume from the
// external double-entry ledger. The ledger itself (balances, chart of
// accounts, transaction templates) is out of scope per spec.md §1/§6 —
// this package only has to let domain code post entries and get back a
// transaction id to store on its own events.
package ledgeradapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/apptrace"
	"github.com/northstarcredit/core/pkg/money"
)

// Direction is which side of a ledger entry an amount posts to.
type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
)

// Entry is one leg of a double-entry posting.
type Entry struct {
	AccountID string
	Direction Direction
	Amount    money.UsdCents
}

// TransactionRequest is a full, balanced posting: debits must equal
// credits, though that invariant is the ledger's to enforce, not ours.
type TransactionRequest struct {
	ExternalID string
	Entries    []Entry
	Metadata   map[string]string
}

// Ledger is the capability credit/deposit/custody code depends on.
// Idempotent on ExternalID: posting the same ExternalID twice must return
// the original transaction id rather than double-post.
type Ledger interface {
	PostTransaction(ctx context.Context, req TransactionRequest) (transactionID string, err error)
}

// HTTPLedger posts transactions to an external ledger service over a
// single JSON endpoint. The teacher's own `common/net/http` package only
// implements server-side middleware, not an outbound client, and nothing
// else in the retrieval pack offers a generic REST client library, so
// this narrow single-endpoint poster is built directly on
// `net/http` — the one stdlib use in the credit domain, justified because
// no pack library fits a need this small.
type HTTPLedger struct {
	baseURL string
	client  *http.Client
}

func NewHTTPLedger(baseURL string, client *http.Client) *HTTPLedger {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &HTTPLedger{baseURL: baseURL, client: client}
}

type postTransactionResponse struct {
	TransactionID string `json:"transaction_id"`
}

func (l *HTTPLedger) PostTransaction(ctx context.Context, req TransactionRequest) (string, error) {
	ctx, span := apptrace.Start(ctx, "ledgeradapter", "post_transaction")
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		return "", apperr.InvariantViolation("LedgerTransaction", "marshal request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/transactions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(httpReq)
	if err != nil {
		apptrace.HandleSpanError(span, "post transaction", err)
		return "", apperr.TransientExternal("LedgerTransaction", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", apperr.TransientExternal("LedgerTransaction", fmt.Errorf("ledger returned %d", resp.StatusCode))
	}

	if resp.StatusCode >= 400 {
		return "", apperr.FatalExternal("LedgerTransaction", fmt.Errorf("ledger rejected transaction: %d", resp.StatusCode))
	}

	var out postTransactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperr.FatalExternal("LedgerTransaction", err)
	}

	return out.TransactionID, nil
}
