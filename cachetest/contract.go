package cachetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goforj/nscache/cachecore"
)

// Options configures shared backend contract checks.
type Options struct {
	// CaseName is used to namespace keys. Defaults to t.Name().
	CaseName string
	// NullSemantics enables relaxed expectations for the null backend.
	NullSemantics bool
	// SkipCloneCheck disables the "get returns a cloned value" assertion.
	SkipCloneCheck bool
	// SkipTTL disables the expiry check for backends whose clock cannot be
	// driven from the test.
	SkipTTL bool
	// TTL controls the expiry duration used in TTL tests.
	TTL time.Duration
	// TTLWait is how long the harness waits for expiry to occur.
	TTLWait time.Duration
	// SkipClear disables the clear assertion for backends where it is
	// expensive or destructive.
	SkipClear bool
	// KeysUnsupported expects Keys to fail with cachecore.ErrNotImplemented.
	KeysUnsupported bool
}

// Backend is the contract exercised by RunBackendContract.
type Backend = cachecore.Backend

// RunBackendContract runs a backend-agnostic contract suite.
func RunBackendContract(t *testing.T, backend Backend, opts Options) {
	t.Helper()

	caseName := opts.CaseName
	if caseName == "" {
		caseName = t.Name()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 50 * time.Millisecond
	}
	wait := opts.TTLWait
	if wait <= 0 {
		wait = 120 * time.Millisecond
	}

	ctx := context.Background()
	prefix := sanitize(caseName) + ":"
	key := func(s string) string { return prefix + s }

	// Set/Get round-trip with binary data.
	blob := []byte{'v', 0x00, 0xff, 'e'}
	if err := backend.Set(ctx, key("alpha"), blob, 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body, ok, err := backend.Get(ctx, key("alpha"))
	if err != nil {
		t.Fatalf("get failed: ok=%v err=%v", ok, err)
	}
	if opts.NullSemantics {
		if ok {
			t.Fatalf("expected miss for null semantics")
		}
	} else {
		if !ok || string(body) != string(blob) {
			t.Fatalf("unexpected get result: ok=%v body=%q err=%v", ok, string(body), err)
		}
		if !opts.SkipCloneCheck {
			body[0] = 'X'
			body2, ok2, err2 := backend.Get(ctx, key("alpha"))
			if err2 != nil || !ok2 || string(body2) != string(blob) {
				t.Fatalf("expected stored value unchanged, got ok=%v body=%q err=%v", ok2, string(body2), err2)
			}
		}
	}

	// Contains.
	has, err := backend.Contains(ctx, key("alpha"))
	if err != nil {
		t.Fatalf("contains failed: %v", err)
	}
	if has == opts.NullSemantics {
		t.Fatalf("unexpected contains result %v", has)
	}
	if has, err := backend.Contains(ctx, key("missing")); err != nil || has {
		t.Fatalf("expected missing key absent: has=%v err=%v", has, err)
	}

	// Overwrite.
	if err := backend.Set(ctx, key("alpha"), []byte("second"), 0); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if !opts.NullSemantics {
		if body, ok, err := backend.Get(ctx, key("alpha")); err != nil || !ok || string(body) != "second" {
			t.Fatalf("expected overwritten value, got ok=%v body=%q err=%v", ok, string(body), err)
		}
	}

	// TTL expiry.
	if !opts.SkipTTL {
		if err := backend.Set(ctx, key("ttl"), []byte("v"), ttl); err != nil {
			t.Fatalf("set ttl failed: %v", err)
		}
		if err := waitForMiss(ctx, backend, key("ttl"), wait); err != nil {
			t.Fatalf("expected ttl expiry: %v", err)
		}
	}

	// Delete is idempotent.
	if err := backend.Set(ctx, key("a"), []byte("1"), 0); err != nil {
		t.Fatalf("set a failed: %v", err)
	}
	if err := backend.Delete(ctx, key("a")); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := backend.Delete(ctx, key("a")); err != nil {
		t.Fatalf("delete of absent key failed: %v", err)
	}
	if has, err := backend.Contains(ctx, key("a")); err != nil || has {
		t.Fatalf("expected key a deleted; has=%v err=%v", has, err)
	}

	// Keys.
	keys, err := backend.Keys(ctx)
	switch {
	case opts.KeysUnsupported:
		if !errors.Is(err, cachecore.ErrNotImplemented) {
			t.Fatalf("expected keys to be unsupported, got %v", err)
		}
	case err != nil:
		t.Fatalf("keys failed: %v", err)
	case !opts.NullSemantics && !contains(keys, key("alpha")):
		t.Fatalf("expected %q in keys %v", key("alpha"), keys)
	}

	// Clear.
	if !opts.SkipClear {
		if err := backend.Set(ctx, key("clear"), []byte("x"), 0); err != nil {
			t.Fatalf("set clear failed: %v", err)
		}
		if err := backend.Clear(ctx); err != nil {
			t.Fatalf("clear failed: %v", err)
		}
		if _, ok, err := backend.Get(ctx, key("clear")); err != nil || ok {
			t.Fatalf("expected clear to remove key; ok=%v err=%v", ok, err)
		}
	}
}

func waitForMiss(ctx context.Context, backend Backend, key string, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		has, err := backend.Contains(ctx, key)
		if err != nil {
			return err
		}
		if !has {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	_, ok, err := backend.Get(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("key %q still present after %s", key, wait)
	}
	return nil
}

func contains(keys []string, want string) bool {
	for _, k := range keys {
		if k == want {
			return true
		}
	}
	return false
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
