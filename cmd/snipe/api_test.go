package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-snipe-engine/internal/config"
	"solana-snipe-engine/internal/domain"
	"solana-snipe-engine/internal/fabric"
	"solana-snipe-engine/internal/solana/stub"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		RPCURL:            "http://127.0.0.1:1",
		Chain:             "solana",
		Shards:            2,
		PollInterval:      10 * time.Millisecond,
		SimulateTimeout:   time.Second,
		SendTimeout:       time.Second,
		BlockDelayTimeout: time.Second,
		GuardTTL:          30 * time.Second,
		WalletKeyring:     writeKeyring(t),
	}
}

func writeKeyring(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wallets.json")
	body := fmt.Sprintf(`{"42": [%q]}`, solana.NewWallet().PrivateKey.String())
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	a, err := openApp(context.Background(), testConfig(t), logger, true)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func newTestServer(t *testing.T, a *app) (*httptest.Server, *detector) {
	t.Helper()
	d := a.detectorWith(stub.NewWSClient())
	t.Cleanup(d.Close)
	srv := httptest.NewServer(newAPI(a, d).Handler())
	t.Cleanup(srv.Close)
	return srv, d
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	a := newTestApp(t)
	srv, _ := newTestServer(t, a)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	a.metrics.RecordDispatch(1)
	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "snipe_dispatch_messages_total")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestAPI_RegisterAndClear(t *testing.T) {
	a := newTestApp(t)
	srv, _ := newTestServer(t, a)
	token := solana.NewWallet().PublicKey().String()

	body := fmt.Sprintf(`{"userId": 42, "token": %q, "params": {"amount": "0.5", "slippageBps": 300}}`, token)
	resp, out := postJSON(t, srv.URL+"/snipes", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id, _ := out["orderId"].(string)
	require.NotEmpty(t, id)

	// A second registration returns the same order.
	_, again := postJSON(t, srv.URL+"/snipes", body)
	assert.Equal(t, id, again["orderId"])

	o, err := a.orders.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, o.State)
	assert.Equal(t, domain.AmountNative, o.Params.AmountMode)
	assert.Equal(t, uint32(300), o.Params.SlippageBps)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/users/42/snipes", nil)
	require.NoError(t, err)
	dresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer dresp.Body.Close()
	var deleted map[string]int
	require.NoError(t, json.NewDecoder(dresp.Body).Decode(&deleted))
	assert.Equal(t, 1, deleted["deleted"])
}

func TestAPI_RejectsInvalidInput(t *testing.T) {
	a := newTestApp(t)
	srv, _ := newTestServer(t, a)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"bad json", "/snipes", `{`},
		{"bad token", "/snipes", `{"userId": 1, "token": "nope", "params": {"amount": "1"}}`},
		{"zero amount", "/snipes", fmt.Sprintf(`{"userId": 1, "token": %q, "params": {"amount": "0"}}`, solana.NewWallet().PublicKey())},
		{"poke without pool", "/poke", `{"slot": 5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := postJSON(t, srv.URL+tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, out["error"])
		})
	}

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/users/abc/snipes", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_PokeDispatchesToShard(t *testing.T) {
	a := newTestApp(t)
	srv, _ := newTestServer(t, a)

	sub, err := a.fabric.Subscribe(context.Background(), a.names.ShardChannel(0))
	require.NoError(t, err)
	defer sub.Close()

	resp, out := postJSON(t, srv.URL+"/poke", `{"poolId": "poolA", "slot": 99}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 0.0, out["shard"])

	select {
	case payload := <-sub.Messages():
		msg, err := fabric.Decode(payload)
		require.NoError(t, err)
		assert.Equal(t, fabric.CheckMessage{PoolID: "poolA", Slot: 99}, msg)
	case <-time.After(time.Second):
		t.Fatal("check not published")
	}
}

func TestAPI_ExecutorOnlyHasNoRegistration(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(newAPI(a, nil).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/snipes", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestValidateFlags(t *testing.T) {
	assert.NoError(t, validateFlags(roleAll, 0, 4, true))
	assert.NoError(t, validateFlags(roleDetector, 0, 4, false))
	assert.NoError(t, validateFlags(roleExecutor, 3, 4, false))
	assert.Error(t, validateFlags(roleExecutor, 4, 4, false))
	assert.Error(t, validateFlags("sniper", 0, 4, false))
	assert.Error(t, validateFlags(roleExecutor, 0, 4, true))
}

func TestRun_AllRoleInMemory(t *testing.T) {
	a := newTestApp(t)
	d := a.detectorWith(stub.NewWSClient())
	defer d.Close()

	workers := make([]interface{ Run(context.Context) error }, 0, a.cfg.Shards)
	for shard := 0; shard < a.cfg.Shards; shard++ {
		w, err := a.newWorker(shard)
		require.NoError(t, err)
		workers = append(workers, w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, len(workers)+1)
	for _, w := range workers {
		go func() { errs <- w.Run(ctx) }()
	}
	go func() { errs <- d.Run(ctx) }()

	// Both shards announce, so the detector passes its barrier too.
	waitCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	require.NoError(t, a.barrier().WaitForShards(waitCtx, a.cfg.Shards))

	cancel()
	for i := 0; i < len(workers)+1; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("component did not stop")
		}
	}
}
