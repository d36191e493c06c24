package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// newRPCServer serves JSON-RPC responses built by result. A returned *RPCError
// is sent as the error member.
func newRPCServer(t *testing.T, result func(req rpcRequest) interface{}) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		switch v := result(req).(type) {
		case *RPCError:
			resp["error"] = v
		default:
			resp["result"] = v
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPClient_GetTransaction(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		if req.Method != "getTransaction" {
			t.Errorf("expected method getTransaction, got %s", req.Method)
		}
		return map[string]interface{}{
			"slot":      int64(123456),
			"blockTime": int64(1700000000),
			"meta": map[string]interface{}{
				"err":         nil,
				"logMessages": []string{"Program log: initialize2: InitializeInstruction2"},
			},
			"transaction": map[string]interface{}{
				"message": map[string]interface{}{
					"accountKeys": []string{"payer", "amm", "market"},
				},
			},
		}
	})

	tx, err := NewHTTPClient(server.URL).GetTransaction(context.Background(), "testsig123")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx == nil {
		t.Fatal("expected transaction, got nil")
	}
	if tx.Slot != 123456 || tx.BlockTime != 1700000000 {
		t.Errorf("unexpected slot/blockTime: %d/%d", tx.Slot, tx.BlockTime)
	}
	if tx.Meta == nil || len(tx.Meta.LogMessages) != 1 {
		t.Errorf("unexpected meta: %+v", tx.Meta)
	}
	if tx.Message == nil || len(tx.Message.AccountKeys) != 3 {
		t.Errorf("unexpected message: %+v", tx.Message)
	}
}

func TestHTTPClient_GetTransaction_NotFound(t *testing.T) {
	server := newRPCServer(t, func(rpcRequest) interface{} { return nil })

	tx, err := NewHTTPClient(server.URL).GetTransaction(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx != nil {
		t.Errorf("expected nil for not found, got %+v", tx)
	}
}

func TestHTTPClient_GetSignaturesForAddress(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		if req.Method != "getSignaturesForAddress" {
			t.Errorf("expected method getSignaturesForAddress, got %s", req.Method)
		}
		return []map[string]interface{}{
			{"signature": "sig1", "slot": int64(100), "err": nil},
			{"signature": "sig2", "slot": int64(101), "err": nil},
		}
	})

	sigs, err := NewHTTPClient(server.URL).GetSignaturesForAddress(context.Background(), "testaddr", &SignaturesOpts{Until: "sig0", Limit: 10})
	if err != nil {
		t.Fatalf("GetSignaturesForAddress: %v", err)
	}
	if len(sigs) != 2 || sigs[0].Signature != "sig1" || sigs[1].Slot != 101 {
		t.Errorf("unexpected signatures: %+v", sigs)
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": int64(999)})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(10*time.Millisecond),
	)

	slot, err := client.GetSlot(context.Background())
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	if slot != 999 {
		t.Errorf("expected slot 999, got %d", slot)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_SendTransactionNotRetried(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(time.Millisecond),
	)

	if _, err := client.SendTransaction(context.Background(), "AQID"); err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestHTTPClient_RPCError(t *testing.T) {
	var attempts atomic.Int32
	server := newRPCServer(t, func(rpcRequest) interface{} {
		attempts.Add(1)
		return &RPCError{Code: -32600, Message: "Invalid Request"}
	})

	_, err := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond)).GetSlot(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError, got %T", err)
	}
	if rpcErr.Code != -32600 {
		t.Errorf("expected code -32600, got %d", rpcErr.Code)
	}
	if attempts.Load() != 1 {
		t.Errorf("RPC error was retried: %d attempts", attempts.Load())
	}
}

func TestHTTPClient_GetAccountInfo(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		if req.Method != "getAccountInfo" {
			t.Errorf("expected method getAccountInfo, got %s", req.Method)
		}
		if req.Params[0] == "missing" {
			return map[string]interface{}{"value": nil}
		}
		return map[string]interface{}{
			"value": map[string]interface{}{
				"lamports":   uint64(1000000),
				"owner":      "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8",
				"data":       []string{"SGVsbG8gV29ybGQ=", "base64"},
				"executable": false,
				"rentEpoch":  uint64(100),
			},
		}
	})

	client := NewHTTPClient(server.URL)
	ctx := context.Background()

	info, err := client.GetAccountInfo(ctx, "testpubkey")
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info == nil {
		t.Fatal("expected account info, got nil")
	}
	if info.Lamports != 1000000 || info.Owner != "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8" {
		t.Errorf("unexpected account: %+v", info)
	}
	data, err := info.DecodeData()
	if err != nil {
		t.Fatalf("DecodeData: %v", err)
	}
	if string(data) != "Hello World" {
		t.Errorf("unexpected data: %q", data)
	}

	info, err = client.GetAccountInfo(ctx, "missing")
	if err != nil {
		t.Fatalf("GetAccountInfo missing: %v", err)
	}
	if info != nil {
		t.Errorf("expected nil for not found, got %+v", info)
	}
}

func TestHTTPClient_SimulateTransaction(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		if req.Method != "simulateTransaction" {
			t.Errorf("expected method simulateTransaction, got %s", req.Method)
		}
		cfg, _ := req.Params[1].(map[string]interface{})
		if cfg["encoding"] != "base64" || cfg["sigVerify"] != false {
			t.Errorf("unexpected simulate config: %v", cfg)
		}

		value := map[string]interface{}{
			"err":           nil,
			"logs":          []string{"Program log: ok"},
			"unitsConsumed": 41000,
		}
		if req.Params[0] == "fail" {
			value["err"] = map[string]interface{}{"InstructionError": []interface{}{3, map[string]interface{}{"Custom": 30}}}
		}
		return map[string]interface{}{"value": value}
	})

	client := NewHTTPClient(server.URL)
	ctx := context.Background()

	ok, err := client.SimulateTransaction(ctx, "ok")
	if err != nil {
		t.Fatalf("SimulateTransaction: %v", err)
	}
	if ok.Failed() || ok.UnitsConsumed != 41000 || len(ok.Logs) != 1 {
		t.Errorf("unexpected result: %+v", ok)
	}

	failed, err := client.SimulateTransaction(ctx, "fail")
	if err != nil {
		t.Fatalf("SimulateTransaction: %v", err)
	}
	if !failed.Failed() || failed.Reason() == "" {
		t.Errorf("expected failed simulation, got %+v", failed)
	}
}

func TestHTTPClient_BlockhashBalanceSend(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		switch req.Method {
		case "getLatestBlockhash":
			return map[string]interface{}{
				"value": map[string]interface{}{"blockhash": "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N", "lastValidBlockHeight": 3090},
			}
		case "getTokenAccountBalance":
			return map[string]interface{}{
				"value": map[string]interface{}{"amount": "9864", "decimals": 2, "uiAmountString": "98.64"},
			}
		case "sendTransaction":
			return "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"
		}
		t.Errorf("unexpected method %s", req.Method)
		return nil
	})

	client := NewHTTPClient(server.URL)
	ctx := context.Background()

	bh, err := client.GetLatestBlockhash(ctx)
	if err != nil {
		t.Fatalf("GetLatestBlockhash: %v", err)
	}
	if bh.Blockhash != "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N" || bh.LastValidBlockHeight != 3090 {
		t.Errorf("unexpected blockhash: %+v", bh)
	}

	bal, err := client.GetTokenAccountBalance(ctx, "vault")
	if err != nil {
		t.Fatalf("GetTokenAccountBalance: %v", err)
	}
	if bal.Amount != "9864" || bal.Decimals != 2 {
		t.Errorf("unexpected balance: %+v", bal)
	}

	sig, err := client.SendTransaction(ctx, "AQID")
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if sig == "" {
		t.Error("expected signature")
	}
}

func TestHTTPClient_Observer(t *testing.T) {
	server := newRPCServer(t, func(rpcRequest) interface{} { return int64(5) })

	var observed []string
	client := NewHTTPClient(server.URL, WithObserver(func(method string, _ time.Duration, err error) {
		if err != nil {
			t.Errorf("unexpected error for %s: %v", method, err)
		}
		observed = append(observed, method)
	}))

	if _, err := client.GetSlot(context.Background()); err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	if len(observed) != 1 || observed[0] != "getSlot" {
		t.Errorf("observed %v, want [getSlot]", observed)
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.GetSlot(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
