package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/internal/apperror"
	"github.com/smallbiznis/franchisefund/internal/token/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPClientMint(t *testing.T) {
	var gotPath, gotKey, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{BaseURL: srv.URL + "/", APIKey: "secret"}, zap.NewNop())
	err := c.Mint(context.Background(), domain.MintRequest{
		FranchiseID:    "42",
		InvestorID:     "inv-1",
		Amount:         10,
		TotalValue:     decimal.NewFromInt(1000),
		IdempotencyKey: "mint:1",
	})
	require.NoError(t, err)
	require.Equal(t, "/v1/tokens/mint", gotPath)
	require.Equal(t, "mint:1", gotKey)
	require.Equal(t, "Bearer secret", gotAuth)
	require.Equal(t, "inv-1", gotBody["investor_id"])
	require.NotContains(t, gotBody, "IdempotencyKey")
}

func TestHTTPClientFailureIsExternal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chain congested", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{BaseURL: srv.URL}, zap.NewNop())
	err := c.Burn(context.Background(), domain.BurnRequest{FranchiseID: "42", Amount: 1})
	require.Error(t, err)
	require.True(t, apperror.IsExternalServiceFailure(err))
	require.Contains(t, err.Error(), "chain congested")
}
