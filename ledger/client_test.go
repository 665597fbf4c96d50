package ledger_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/credit-engine/ledger"
	"github.com/warp/credit-engine/reward"
)

func TestClient_Credit(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		require.NoError(t, dec.Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"transaction_id": "tx-42"})
	}))
	defer srv.Close()

	c := ledger.NewClient(srv.URL)
	id, err := c.Credit(context.Background(), "bob", 5, "Kudos received", reward.TransferDetails{
		RewardType: "kudos", ForID: "post-1", ByUserID: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, reward.TransactionID("tx-42"), id)
	assert.Equal(t, "/api/accounts/bob/credits", gotPath)

	amount, err := decimal.NewFromString(gotBody["amount"].(json.Number).String())
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(5)))

	details := gotBody["details"].(map[string]any)
	assert.Equal(t, "kudos", details["reward_type"])
}

func TestClient_CreditUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := ledger.NewClient(srv.URL)
	_, err := c.Credit(context.Background(), "bob", 5, "x", reward.TransferDetails{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status: 502")
}

func TestClient_Refund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/transactions/tx-42/refund", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"transaction_id": "tx-43"})
	}))
	defer srv.Close()

	c := ledger.NewClient(srv.URL)
	id, err := c.Refund(context.Background(), "tx-42", "settlement rollback")
	require.NoError(t, err)
	assert.Equal(t, reward.TransactionID("tx-43"), id)
}

func TestRecorder_CreditRefundBalance(t *testing.T) {
	r := ledger.NewRecorder()
	ctx := context.Background()

	id1, err := r.Credit(ctx, "bob", 5, "a", reward.TransferDetails{})
	require.NoError(t, err)
	_, err = r.Credit(ctx, "bob", 3, "b", reward.TransferDetails{})
	require.NoError(t, err)

	assert.Equal(t, int64(8), r.Balance("bob"))

	_, err = r.Refund(ctx, id1, "dup")
	require.NoError(t, err)
	assert.Equal(t, int64(3), r.Balance("bob"))

	_, err = r.Refund(ctx, id1, "again")
	assert.Error(t, err, "double refund must be rejected")
}
