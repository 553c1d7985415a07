package issuer_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/aretw0/mintline/internal/adapters/issuer"
	"github.com/aretw0/mintline/pkg/domain"
	"github.com/aretw0/mintline/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.IssuanceService = (*issuer.Client)(nil)

type backend struct {
	statusCalls atomic.Int32
	lastPrepare map[string]any
	lastAuth    string
	lastAPIKey  string
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (b *backend) router() http.Handler {
	r := chi.NewRouter()
	r.Post("/prepare-token", func(w http.ResponseWriter, r *http.Request) {
		b.lastAuth = r.Header.Get("Authorization")
		b.lastAPIKey = r.Header.Get("apikey")
		_ = json.NewDecoder(r.Body).Decode(&b.lastPrepare)
		writeJSON(w, http.StatusOK, map[string]any{
			"distributionAccount": "GDIST",
			"warning":             "trustline pending",
		})
	})
	r.Post("/check-token-status", func(w http.ResponseWriter, r *http.Request) {
		if b.statusCalls.Add(1) < 2 {
			writeJSON(w, http.StatusOK, map[string]any{"status": "pending"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "trustline_created", "trustlineTxHash": "tl-hash"})
	})
	r.Post("/get-emission-xdr", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, map[string]any{"xdr": "AAAA-" + body["tokenCode"] + "-" + body["totalSupply"]})
	})
	r.Post("/submit-signed-transaction", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["signedXdr"] == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Missing signed transaction"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"txHash": "emit-hash"})
	})
	r.Post("/execute-distribution", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"transactionHash": "dist-hash",
			"artistAmount":    900000,
			"platformAmount":  "100000",
			"transactionUrl":  "https://explorer/tx/dist-hash",
			"message":         "Distribution completed",
		})
	})
	return r
}

func newClient(t *testing.T, h http.Handler, opts ...issuer.Option) *issuer.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]issuer.Option{issuer.WithHTTPClient(srv.Client()), issuer.WithRateLimit(0, 0)}, opts...)
	return issuer.New(srv.URL+"/", opts...)
}

func TestClient_Lifecycle(t *testing.T) {
	b := &backend{}
	c := newClient(t, b.router(), issuer.WithAPIKey("anon-key"))
	ctx := context.Background()

	prep, err := c.Prepare(ctx, domain.PrepareParams{
		Creator:     "GCREATOR",
		AssetCode:   "SONG",
		DisplayName: "Song Token",
		TotalSupply: "1000000",
		FeeBps:      1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "GDIST", prep.DistributionAccount)
	assert.Empty(t, prep.TrustlineTxRef)
	assert.Equal(t, "trustline pending", prep.Warning)

	assert.Equal(t, "Bearer anon-key", b.lastAuth)
	assert.Equal(t, "anon-key", b.lastAPIKey)
	assert.Equal(t, "GCREATOR", b.lastPrepare["artistPublicKey"])
	assert.Equal(t, "SONG", b.lastPrepare["tokenCode"])
	assert.Equal(t, "Song Token", b.lastPrepare["tokenName"])
	assert.Equal(t, "1000000", b.lastPrepare["totalSupply"])
	assert.EqualValues(t, 1000, b.lastPrepare["platformFeeBps"])
	assert.NotContains(t, b.lastPrepare, "description")

	st, err := c.CheckStatus(ctx, "SONG", "GCREATOR")
	require.NoError(t, err)
	assert.Equal(t, domain.TrustlinePending, st.Status)

	st, err = c.CheckStatus(ctx, "SONG", "GCREATOR")
	require.NoError(t, err)
	assert.Equal(t, domain.TrustlineConfirmed, st.Status)
	assert.Equal(t, "tl-hash", st.TrustlineTxRef)

	xdr, err := c.GetEmissionPayload(ctx, "GCREATOR", "SONG", "1000000")
	require.NoError(t, err)
	assert.Equal(t, "AAAA-SONG-1000000", xdr)

	hash, err := c.SubmitSigned(ctx, "signed-xdr", "SONG", "GCREATOR")
	require.NoError(t, err)
	assert.Equal(t, "emit-hash", hash)

	dist, err := c.ExecuteDistribution(ctx, "GCREATOR", "SONG")
	require.NoError(t, err)
	assert.Equal(t, "dist-hash", dist.DistributionTxRef)
	assert.Equal(t, "900000", dist.CreatorShare)
	assert.Equal(t, "100000", dist.PlatformShare)
	assert.Equal(t, "https://explorer/tx/dist-hash", dist.TransactionURL)
	assert.Equal(t, "Distribution completed", dist.Message)
}

func TestClient_ErrorMessageIsVerbatim(t *testing.T) {
	b := &backend{}
	c := newClient(t, b.router())

	_, err := c.SubmitSigned(context.Background(), "", "SONG", "GCREATOR")
	require.Error(t, err)

	var apiErr *issuer.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, issuer.FnSubmit, apiErr.Function)
	assert.Equal(t, "Missing signed transaction", err.Error())
	assert.NotErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, domain.KindCollaborator, domain.Classify(domain.StageSubmitting, err, false).Kind)
}

func TestClient_ErrorShapes(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		body      string
		want      string
		transient bool
	}{
		{"nested error", http.StatusInternalServerError, `{"error":{"message":"Horizon rejected"}}`, "Horizon rejected", false},
		{"message field", http.StatusUnprocessableEntity, `{"message":"Token already exists"}`, "Token already exists", false},
		{"plain text", http.StatusBadRequest, "bad token code", "bad token code", false},
		{"empty gateway", http.StatusServiceUnavailable, "", "prepare-token failed: Service Unavailable", true},
		{"error in 200", http.StatusOK, `{"error":"Issuer account not funded"}`, "Issuer account not funded", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			})
			c := newClient(t, h)

			_, err := c.Prepare(context.Background(), domain.PrepareParams{Creator: "G", AssetCode: "A", TotalSupply: "1"})
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
			assert.Equal(t, tt.transient, errors.Is(err, domain.ErrTransient))
		})
	}
}

func TestClient_TransportFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := issuer.New(url, issuer.WithRateLimit(0, 0))
	_, err := c.CheckStatus(context.Background(), "SONG", "GCREATOR")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, domain.KindTransient, domain.Classify(domain.StageWaitingForTrustline, err, false).Kind)
}

func TestClient_UnknownStatusIsPending(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "creating"})
	})
	c := newClient(t, h)

	st, err := c.CheckStatus(context.Background(), "SONG", "GCREATOR")
	require.NoError(t, err)
	assert.Equal(t, domain.TrustlinePending, st.Status)
}

func TestClient_EmptyResultsAreFaults(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	c := newClient(t, h)
	ctx := context.Background()

	_, err := c.Prepare(ctx, domain.PrepareParams{Creator: "G", AssetCode: "A", TotalSupply: "1"})
	assert.Error(t, err)
	_, err = c.GetEmissionPayload(ctx, "G", "A", "1")
	assert.Error(t, err)
	_, err = c.SubmitSigned(ctx, "x", "A", "G")
	assert.Error(t, err)
}
