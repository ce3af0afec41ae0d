package httpapi

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hetu-project/validator-coordinator/internal/blockclock"
	"github.com/hetu-project/validator-coordinator/internal/core"
	"github.com/hetu-project/validator-coordinator/internal/identity"
	"github.com/hetu-project/validator-coordinator/internal/principal"
	"github.com/hetu-project/validator-coordinator/internal/store"
	"github.com/hetu-project/validator-coordinator/internal/store/storetest"
	"github.com/hetu-project/validator-coordinator/internal/verifier"
)

type staticOracle struct{ block int64 }

func (s staticOracle) CurrentBlock(context.Context) (int64, error) { return s.block, nil }

type staticMetagraph struct {
	miners     []string
	validators []string
}

func (m staticMetagraph) Miners(context.Context) ([]string, error)     { return m.miners, nil }
func (m staticMetagraph) Validators(context.Context) ([]string, error) { return m.validators, nil }

type alwaysValidVerifier struct{}

func (alwaysValidVerifier) Verify(context.Context, verifier.Post) (bool, *verifier.VerificationError) {
	return true, nil
}

func discardEntry() *logrus.Entry {
	log := logrus.New()
	log.Out = discardWriter{}
	return logrus.NewEntry(log)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

type testServer struct {
	server        *Server
	minerAddr     string
	minerKey      *ecdsa.PrivateKey
	validatorAddr string
	validatorKey  *ecdsa.PrivateKey
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	minerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	validatorKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	// identity.Verifier hands the gate lowercase addresses, so the
	// whitelists hold the same form.
	minerAddr := strings.ToLower(crypto.PubkeyToAddress(minerKey.PublicKey).Hex())
	validatorAddr := strings.ToLower(crypto.PubkeyToAddress(validatorKey.PublicKey).Hex())

	gate := principal.New(staticMetagraph{
		miners:     []string{minerAddr},
		validators: []string{validatorAddr},
	}, time.Minute, nil, discardEntry())

	clock := blockclock.New(staticOracle{block: 50}, 12.0, discardEntry())
	coordinator := core.New(core.Params{
		Clock:                 clock,
		Gate:                  gate,
		Store:                 storetest.New(),
		Verifier:              alwaysValidVerifier{},
		Memo:                  store.NewScoreMemo(""),
		Log:                   discardEntry(),
		BlocksPerWindow:       100,
		SecondsPerBlock:       12.0,
		MaxSubmissionRate:     5,
		ValidationsPerRequest: 5,
		ValidationProbability: 0,
	})

	auth := identity.New(5 * time.Minute)
	return &testServer{
		server:        NewServer(coordinator, auth, nil, discardEntry()),
		minerAddr:     minerAddr,
		minerKey:      minerKey,
		validatorAddr: validatorAddr,
		validatorKey:  validatorKey,
	}
}

// authHeaders signs the canonical coordinator-auth message with key and
// returns the four signed-request headers identity.Verifier expects.
func authHeaders(t *testing.T, key *ecdsa.PrivateKey, address string) map[string]string {
	t.Helper()
	ts := time.Now().Unix()
	message := identity.CanonicalMessage(ts)
	digest := crypto.Keccak256([]byte(message))
	sig, err := crypto.Sign(digest, key)
	require.NoError(t, err)
	return map[string]string{
		"X-Identity-Address": address,
		"X-Signature":        "0x" + hex.EncodeToString(sig),
		"X-Auth-Message":     message,
		"X-Auth-Timestamp":   strconv.FormatInt(ts, 10),
	}
}

func TestHandleStatus_NoAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest("GET", "/v2/status", nil)
	w := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	var body statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(50), body.CurrentBlock)
}

func TestHandleSubmit_RequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	body, _ := json.Marshal(submitRequest{PostID: "p1", Content: "hi", Author: "a", Tokens: map[string]float64{"BTC": 1}})
	req := httptest.NewRequest("POST", "/v2/submit", bytes.NewReader(body))
	w := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(w, req)

	assert.Equal(t, 401, w.Code)
}

func TestHandleSubmit_Authenticated(t *testing.T) {
	ts := newTestServer(t)

	body, _ := json.Marshal(submitRequest{PostID: "p1", Content: "hi", Author: "a", Tokens: map[string]float64{"BTC": 1}})
	req := httptest.NewRequest("POST", "/v2/submit", bytes.NewReader(body))
	for k, v := range authHeaders(t, ts.minerKey, ts.minerAddr) {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(w, req)

	require.Equal(t, 200, w.Code, w.Body.String())
	var resp submitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "new", resp.Status)
}

func TestHandleSubmit_RejectsNonMinerPrincipal(t *testing.T) {
	ts := newTestServer(t)

	body, _ := json.Marshal(submitRequest{PostID: "p1", Content: "hi", Author: "a", Tokens: map[string]float64{"BTC": 1}})
	req := httptest.NewRequest("POST", "/v2/submit", bytes.NewReader(body))
	for k, v := range authHeaders(t, ts.validatorKey, ts.validatorAddr) {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(w, req)

	assert.Equal(t, 403, w.Code, "a validator principal must not pass a miner-only gate")
}

func TestHandleGetScores_RequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest("GET", "/v2/scores", nil)
	w := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(w, req)

	assert.Equal(t, 401, w.Code)
}

func TestHandleGetScores_Authenticated(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest("GET", "/v2/scores", nil)
	for k, v := range authHeaders(t, ts.validatorKey, ts.validatorAddr) {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code, w.Body.String())
}
