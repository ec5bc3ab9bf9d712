package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "visitorbook/internal/jwt_token"
	"visitorbook/internal/platform/config"
	"visitorbook/internal/visitorbook/handler"
	dErrors "visitorbook/pkg/domain-errors"
	"visitorbook/pkg/testutil"
)

var visitor = common.HexToAddress("0x00000000000000000000000000000000000A11CE")

// defaultEnv clears every variable build reads so FromEnv yields the
// development defaults.
func defaultEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"STORE_DRIVER", "DATABASE_URL", "REDIS_URL", "KAFKA_BROKERS",
		"ARCHIVE_BUCKET", "ARCHIVE_INTERVAL", "CONTRACT_ADDRESS", "OWNER_ADDRESS",
		"JWT_SIGNING_KEY", "JWT_ISSUER",
	} {
		t.Setenv(key, "")
	}
}

func buildApp(t *testing.T) (*app, config.Server) {
	t.Helper()
	cfg, err := config.FromEnv()
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	a, err := build(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), reg, reg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })
	return a, cfg
}

func token(t *testing.T, cfg config.Server, caller common.Address) string {
	t.Helper()
	tok, err := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer).GenerateCallerToken(caller, time.Minute)
	require.NoError(t, err)
	return tok
}

func totalVisitors(t *testing.T, a *app) uint64 {
	t.Helper()
	rr := testutil.DoRequest(a.router, testutil.NewRequest(t, http.MethodGet, "/v1/visitors/count"))
	testutil.AssertStatusOK(t, rr)
	return testutil.UnmarshalResponse[handler.TotalVisitorsResponse](t, rr).TotalVisitors
}

func balance(t *testing.T, a *app, addr common.Address) string {
	t.Helper()
	rr := testutil.DoRequest(a.router, testutil.NewRequest(t, http.MethodGet, "/v1/accounts/"+addr.Hex()+"/balance"))
	testutil.AssertStatusOK(t, rr)
	return testutil.UnmarshalResponse[handler.BalanceResponse](t, rr).Balance
}

func TestDefaultDeploymentRegistersVisitors(t *testing.T) {
	defaultEnv(t)
	a, cfg := buildApp(t)
	ownerToken := token(t, cfg, *cfg.Owner)
	visitorToken := token(t, cfg, visitor)

	testutil.Scenario(t, "a visitor funded by the development owner", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/admin/accounts/"+visitor.Hex()+"/mint", map[string]string{"amount": "100"})
		testutil.AssertStatus(t, testutil.DoRequest(a.router, testutil.AsCaller(req, ownerToken)), http.StatusNoContent)
		require.Equal(t, "100", balance(t, a, visitor))

		testutil.When(t, "they pay half the fee", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/visits", map[string]string{"message": "hi", "payment": "50"})
			rr := testutil.DoRequest(a.router, testutil.AsCaller(req, visitorToken))

			testutil.Then(t, "the payment check rejects them and nothing is recorded", func(t *testing.T) {
				testutil.AssertRevert(t, rr, http.StatusPaymentRequired, string(dErrors.CodeInsufficientPayment))
				assert.Zero(t, totalVisitors(t, a))
				assert.Equal(t, "100", balance(t, a, visitor))
			})
		})

		testutil.When(t, "they pay the fee", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/visits", map[string]string{"message": "hi", "payment": "100"})
			rr := testutil.DoRequest(a.router, testutil.AsCaller(req, visitorToken))

			testutil.Then(t, "they are registered first and rewarded with the fee", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusNoContent)
				assert.Equal(t, uint64(1), totalVisitors(t, a))

				at := testutil.DoRequest(a.router, testutil.NewRequest(t, http.MethodGet, "/v1/visitors/0"))
				testutil.AssertStatusOK(t, at)
				assert.Equal(t, visitor.Hex(), testutil.UnmarshalResponse[handler.VisitorResponse](t, at).Visitor)

				visited := testutil.DoRequest(a.router, testutil.NewRequest(t, http.MethodGet, "/v1/addresses/"+visitor.Hex()+"/visited"))
				testutil.AssertStatusOK(t, visited)
				assert.True(t, testutil.UnmarshalResponse[handler.VisitedResponse](t, visited).Visited)

				assert.Equal(t, "100", balance(t, a, visitor))
				assert.Equal(t, "0", balance(t, a, cfg.Contract))
			})
		})

		testutil.When(t, "they sign again", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/visits", map[string]string{"message": "again", "payment": "100"})
			rr := testutil.DoRequest(a.router, testutil.AsCaller(req, visitorToken))

			testutil.Then(t, "the repeat is refused and the count holds", func(t *testing.T) {
				testutil.AssertRevert(t, rr, http.StatusConflict, string(dErrors.CodeAlreadyVisited))
				assert.Equal(t, uint64(1), totalVisitors(t, a))
				assert.Equal(t, "100", balance(t, a, visitor))
			})
		})

		testutil.Then(t, "an index past the end is out of bounds", func(t *testing.T) {
			rr := testutil.DoRequest(a.router, testutil.NewRequest(t, http.MethodGet, "/v1/visitors/5"))
			testutil.AssertRevert(t, rr, http.StatusNotFound, string(dErrors.CodeIndexOutOfBounds))
		})
	})
}

func TestDefaultDeploymentUnderpaymentWithoutFunds(t *testing.T) {
	defaultEnv(t)
	a, cfg := buildApp(t)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/visits", map[string]string{"message": "hi", "payment": "50"})
	rr := testutil.DoRequest(a.router, testutil.AsCaller(req, token(t, cfg, visitor)))

	testutil.AssertRevert(t, rr, http.StatusPaymentRequired, string(dErrors.CodeInsufficientPayment))
	body := testutil.UnmarshalErrorResponse(t, rr)
	assert.Equal(t, "50", body["payment"])
}

func TestMemoryStoreIgnoresRedisCache(t *testing.T) {
	defaultEnv(t)
	// Nothing listens here; opening the cache would fail the build.
	t.Setenv("REDIS_URL", "redis://127.0.0.1:1/0")
	a, _ := buildApp(t)

	rr := testutil.DoRequest(a.router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	testutil.AssertStatusOK(t, rr)
	checks := *testutil.UnmarshalResponse[map[string]string](t, rr)
	assert.NotContains(t, checks, "redis")
}
