package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/internal/config"
	"github.com/smallbiznis/franchisefund/internal/observability"
	"github.com/smallbiznis/franchisefund/internal/ratelimit"
	"github.com/smallbiznis/franchisefund/internal/testing/fixture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *errorPayload   `json:"error"`
}

func newTestServer(t *testing.T) (*fixture.Env, *gin.Engine) {
	t.Helper()
	return newTestServerWithLimiter(t, nil)
}

func newTestServerWithLimiter(t *testing.T, limiter *ratelimit.PurchaseLimiter) (*fixture.Env, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := fixture.New(t)
	engine := NewEngine(observability.Config{Environment: "test"}, nil)
	NewServer(ServerParams{
		Gin:           engine,
		Cfg:           config.Config{Environment: "test"},
		Log:           zap.NewNop(),
		FranchiseSvc:  env.Franchises,
		InvestmentSvc: env.Investments,
		ShareSvc:      env.Shares,
		LifecycleSvc:  env.Lifecycle,
		WalletSvc:     env.Wallets,
		TokenSvc:      env.TokenOps,

		PurchaseLimiter: limiter,
	})
	return env, engine
}

func doJSON(t *testing.T, r http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBuffer(nil)
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var out envelope
	if resp.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out), resp.Body.String())
	}
	return resp, out
}

func decodeData(t *testing.T, env envelope, v any) {
	t.Helper()
	require.NotEmpty(t, env.Data)
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func createFranchiseOverHTTP(t *testing.T, r http.Handler) (string, string) {
	t.Helper()
	resp, out := doJSON(t, r, http.MethodPost, "/v1/franchisers", `{"name":"Acme Coffee"}`, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var franchiser struct {
		ID   string `json:"id"`
		Slug string `json:"slug"`
	}
	decodeData(t, out, &franchiser)
	assert.Equal(t, "acme-coffee", franchiser.Slug)

	body := `{
		"franchiser_id": "` + franchiser.ID + `",
		"name": "Acme Coffee Kemang",
		"escrow_address": "escrow-acme",
		"total_investment": "100000",
		"franchise_fee": "20000",
		"setup_cost": "50000",
		"working_capital": "30000",
		"share_price": "100"
	}`
	resp, out = doJSON(t, r, http.MethodPost, "/v1/franchises", body, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var created struct {
		Franchise struct {
			ID    string `json:"id"`
			Slug  string `json:"slug"`
			Stage string `json:"stage"`
		} `json:"franchise"`
	}
	decodeData(t, out, &created)
	assert.Equal(t, "acme-coffee-01", created.Franchise.Slug)
	assert.Equal(t, "funding", created.Franchise.Stage)
	return franchiser.ID, created.Franchise.ID
}

func TestHealth(t *testing.T) {
	_, r := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
}

func TestFullFundingOverHTTP(t *testing.T) {
	_, r := newTestServer(t)
	franchiserID, franchiseID := createFranchiseOverHTTP(t, r)

	purchase := `{"investor_id":"inv-1","shares":1000,"price_per_share":"100","total_amount":"100000"}`
	resp, out := doJSON(t, r, http.MethodPost, "/v1/franchises/"+franchiseID+"/shares", purchase, map[string]string{HeaderIdempotencyKey: "buy-1"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var result struct {
		Replayed   bool   `json:"replayed"`
		StageAfter string `json:"stage_after"`
		Share      struct {
			ID string `json:"id"`
		} `json:"share"`
	}
	decodeData(t, out, &result)
	assert.False(t, result.Replayed)
	assert.Equal(t, "launching", result.StageAfter)

	resp, out = doJSON(t, r, http.MethodPost, "/v1/franchises/"+franchiseID+"/shares", purchase, map[string]string{HeaderIdempotencyKey: "buy-1"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	decodeData(t, out, &result)
	assert.True(t, result.Replayed)

	resp, out = doJSON(t, r, http.MethodGet, "/v1/franchisers/"+franchiserID+"/treasury", "", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var treasury struct {
		Balance decimal.Decimal `json:"balance"`
	}
	decodeData(t, out, &treasury)
	assert.True(t, treasury.Balance.Equal(decimal.NewFromInt(70000)), treasury.Balance.String())

	resp, out = doJSON(t, r, http.MethodGet, "/v1/franchises/"+franchiseID+"/stages/current", "", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var current struct {
		Stage    string  `json:"stage"`
		Progress float64 `json:"progress"`
	}
	decodeData(t, out, &current)
	assert.Equal(t, "launching", current.Stage)
	assert.Equal(t, float64(25), current.Progress)

	resp, out = doJSON(t, r, http.MethodGet, "/v1/franchises/"+franchiseID+"/funding", "", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var progress struct {
		FullyFunded bool `json:"fully_funded"`
	}
	decodeData(t, out, &progress)
	assert.True(t, progress.FullyFunded)

	resp, _ = doJSON(t, r, http.MethodPost, "/v1/shares/"+result.Share.ID+"/refund", "", nil)
	require.Equal(t, http.StatusConflict, resp.Code, resp.Body.String())
}

func TestOperatingWalletMovementsOverHTTP(t *testing.T) {
	_, r := newTestServer(t)
	_, franchiseID := createFranchiseOverHTTP(t, r)

	purchase := `{"investor_id":"inv-1","shares":1000,"price_per_share":"100","total_amount":"100000"}`
	resp, _ := doJSON(t, r, http.MethodPost, "/v1/franchises/"+franchiseID+"/shares", purchase, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp, out := doJSON(t, r, http.MethodGet, "/v1/franchises/"+franchiseID+"/wallets", "", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var wallets []struct {
		ID     string `json:"id"`
		Kind   string `json:"kind"`
		Status string `json:"status"`
	}
	decodeData(t, out, &wallets)
	var operatingID string
	for _, w := range wallets {
		if w.Kind == "operating" {
			operatingID = w.ID
		}
	}
	require.NotEmpty(t, operatingID)

	resp, _ = doJSON(t, r, http.MethodPost, "/v1/wallets/"+operatingID+"/debit", `{"amount":"40000"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())

	resp, _ = doJSON(t, r, http.MethodPost, "/v1/wallets/"+operatingID+"/debit", `{"amount":"30000","description":"rent"}`, map[string]string{HeaderIdempotencyKey: "rent-1"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp, out = doJSON(t, r, http.MethodPost, "/v1/franchises/"+franchiseID+"/closure-check", "", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var closure struct {
		Closed bool `json:"closed"`
	}
	decodeData(t, out, &closure)
	assert.True(t, closure.Closed)
}

func TestRefundOverHTTP(t *testing.T) {
	_, r := newTestServer(t)
	_, franchiseID := createFranchiseOverHTTP(t, r)

	purchase := `{"investor_id":"inv-1","shares":50,"price_per_share":"100","total_amount":"5000"}`
	resp, out := doJSON(t, r, http.MethodPost, "/v1/franchises/"+franchiseID+"/shares", purchase, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var bought struct {
		Share struct {
			ID string `json:"id"`
		} `json:"share"`
	}
	decodeData(t, out, &bought)

	resp, out = doJSON(t, r, http.MethodPost, "/v1/shares/"+bought.Share.ID+"/refund", `{"external_ref":"bank-1"}`, map[string]string{HeaderIdempotencyKey: "rf-1"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var refund struct {
		Share struct {
			Status string `json:"status"`
		} `json:"share"`
		Investment struct {
			TotalInvested decimal.Decimal `json:"total_invested"`
		} `json:"investment"`
	}
	decodeData(t, out, &refund)
	assert.Equal(t, "refunded", refund.Share.Status)
	assert.True(t, refund.Investment.TotalInvested.IsZero())

	resp, out = doJSON(t, r, http.MethodPost, "/v1/shares/"+bought.Share.ID+"/refund", "", nil)
	require.Equal(t, http.StatusConflict, resp.Code, resp.Body.String())
	require.NotNil(t, out.Error)
	assert.Equal(t, "share_already_refunded", out.Error.Code)
	assert.Equal(t, "invalid_state", out.Error.Type)
}

func TestErrorMapping(t *testing.T) {
	_, r := newTestServer(t)
	_, franchiseID := createFranchiseOverHTTP(t, r)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{name: "unknown franchise", method: http.MethodGet, path: "/v1/franchises/1234", status: http.StatusNotFound, code: "franchise_not_found"},
		{name: "malformed id", method: http.MethodGet, path: "/v1/franchises/abc", status: http.StatusBadRequest},
		{name: "malformed body", method: http.MethodPost, path: "/v1/franchisers", body: `{`, status: http.StatusBadRequest},
		{name: "oversell", method: http.MethodPost, path: "/v1/franchises/" + franchiseID + "/shares", body: `{"investor_id":"x","shares":2000,"price_per_share":"100","total_amount":"200000"}`, status: http.StatusBadRequest, code: "oversell"},
		{name: "bad status", method: http.MethodPatch, path: "/v1/franchises/" + franchiseID + "/status", body: `{"status":"paused"}`, status: http.StatusBadRequest, code: "invalid_status"},
		{name: "no route", method: http.MethodGet, path: "/v1/nothing", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := doJSON(t, r, tt.method, tt.path, tt.body, nil)
			require.Equal(t, tt.status, resp.Code, resp.Body.String())
			require.NotNil(t, out.Error)
			if tt.code != "" {
				assert.Equal(t, tt.code, out.Error.Code)
			}
		})
	}
}

func TestListFranchisesFiltersByStage(t *testing.T) {
	_, r := newTestServer(t)
	_, franchiseID := createFranchiseOverHTTP(t, r)

	resp, out := doJSON(t, r, http.MethodGet, "/v1/franchises?stage=funding", "", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var list struct {
		Franchises []struct {
			ID string `json:"id"`
		} `json:"franchises"`
	}
	decodeData(t, out, &list)
	require.Len(t, list.Franchises, 1)
	assert.Equal(t, franchiseID, list.Franchises[0].ID)

	resp, out = doJSON(t, r, http.MethodGet, "/v1/franchises?stage=closed", "", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	decodeData(t, out, &list)
	assert.Empty(t, list.Franchises)
}

func TestOversizedIdempotencyKeyIsRejected(t *testing.T) {
	_, r := newTestServer(t)
	_, franchiseID := createFranchiseOverHTTP(t, r)

	key := string(bytes.Repeat([]byte("k"), maxIdempotencyKeyLength+1))
	resp, out := doJSON(t, r, http.MethodPost, "/v1/franchises/"+franchiseID+"/shares", `{}`, map[string]string{HeaderIdempotencyKey: key})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.NotNil(t, out.Error)
	require.Len(t, out.Error.Errors, 1)
	assert.Equal(t, "idempotency_key", out.Error.Errors[0].Field)
}

func TestPurchaseRateLimitPerInvestor(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := ratelimit.NewPurchaseLimiter(ratelimit.Params{
		Cfg: config.Config{RateLimit: config.RateLimitConfig{Enabled: true, PurchaseRate: 0.01, PurchaseBurst: 1}},
		Log:   zap.NewNop(),
		Redis: client,
	})
	require.NotNil(t, limiter)

	_, r := newTestServerWithLimiter(t, limiter)
	_, franchiseID := createFranchiseOverHTTP(t, r)

	purchase := `{"investor_id":"inv-1","shares":10,"price_per_share":"100","total_amount":"1000"}`
	resp, _ := doJSON(t, r, http.MethodPost, "/v1/franchises/"+franchiseID+"/shares", purchase, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp, out := doJSON(t, r, http.MethodPost, "/v1/franchises/"+franchiseID+"/shares", purchase, nil)
	require.Equal(t, http.StatusTooManyRequests, resp.Code, resp.Body.String())
	require.NotNil(t, out.Error)
	assert.Equal(t, "rate_limited", out.Error.Type)
	assert.NotEmpty(t, resp.Header().Get("Retry-After"))

	other := `{"investor_id":"inv-2","shares":10,"price_per_share":"100","total_amount":"1000"}`
	resp, _ = doJSON(t, r, http.MethodPost, "/v1/franchises/"+franchiseID+"/shares", other, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
}
