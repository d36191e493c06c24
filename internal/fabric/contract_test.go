package fabric

import (
	"context"
	"testing"
	"time"
)

// runFabricContract exercises behavior every Fabric implementation shares.
// prefix keeps keys of concurrent runs apart on a shared backend.
func runFabricContract(t *testing.T, f Fabric, prefix string) {
	ctx := context.Background()

	t.Run("publish reaches subscriber", func(t *testing.T) {
		channel := prefix + ":ch:1"
		sub, err := f.Subscribe(ctx, channel)
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		defer sub.Close()

		if err := Publish(ctx, f, channel, CheckMessage{PoolID: "pool", Slot: 9}); err != nil {
			t.Fatalf("Publish: %v", err)
		}

		select {
		case payload := <-sub.Messages():
			msg, err := Decode(payload)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if msg != (CheckMessage{PoolID: "pool", Slot: 9}) {
				t.Errorf("got %#v", msg)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("other channels are not delivered", func(t *testing.T) {
		sub, err := f.Subscribe(ctx, prefix+":ch:a")
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		defer sub.Close()

		if err := f.Publish(ctx, prefix+":ch:b", []byte("x")); err != nil {
			t.Fatalf("Publish: %v", err)
		}

		select {
		case payload := <-sub.Messages():
			t.Fatalf("unexpected delivery %q", payload)
		case <-time.After(200 * time.Millisecond):
		}
	})

	t.Run("messages closed after close", func(t *testing.T) {
		sub, err := f.Subscribe(ctx, prefix+":ch:close")
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		if err := sub.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		select {
		case _, ok := <-sub.Messages():
			if ok {
				t.Error("expected closed channel")
			}
		case <-time.After(5 * time.Second):
			t.Fatal("channel not closed")
		}
	})

	t.Run("keys and expiry", func(t *testing.T) {
		k1, k2, k3 := prefix+":k1", prefix+":k2", prefix+":k3"
		if err := f.SetKey(ctx, k1, "a", 0); err != nil {
			t.Fatalf("SetKey: %v", err)
		}
		if err := f.SetKey(ctx, k2, "b", 100*time.Millisecond); err != nil {
			t.Fatalf("SetKey: %v", err)
		}

		n, err := f.CountKeys(ctx, k1, k2, k3)
		if err != nil || n != 2 {
			t.Fatalf("CountKeys = %d, %v; want 2", n, err)
		}

		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			n, err = f.CountKeys(ctx, k1, k2, k3)
			if err == nil && n == 1 {
				return
			}
			time.Sleep(50 * time.Millisecond)
		}
		t.Fatalf("expired key still counted: %d, %v", n, err)
	})

	t.Run("incr", func(t *testing.T) {
		key := prefix + ":rr"
		for want := int64(1); want <= 3; want++ {
			got, err := f.Incr(ctx, key)
			if err != nil {
				t.Fatalf("Incr: %v", err)
			}
			if got != want {
				t.Errorf("Incr = %d, want %d", got, want)
			}
		}
	})
}
