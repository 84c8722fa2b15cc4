package dashboard

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func openTestStore(t *testing.T, deviceKey string) *Store {
	t.Helper()
	key, err := DeriveStoreKey(deviceKey)
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}
	store, err := OpenStore(filepath.Join(t.TempDir(), "sellerdesk.db"), key)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, "device-one")

	if _, err := store.LoadSession(ctx); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected auth error for missing session, got %v", err)
	}

	in := StoredSession{Token: "tok", Principal: alice, Email: "a@example.com"}
	if err := store.SaveSession(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := store.LoadSession(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.Token != "tok" || out.Principal != alice || out.Email != "a@example.com" || out.SavedAt.IsZero() {
		t.Fatalf("unexpected session %+v", out)
	}

	if err := store.ClearSession(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := store.LoadSession(ctx); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected auth error after clear, got %v", err)
	}
}

func TestStoreSessionIsSealed(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sealed.db")
	k1, _ := DeriveStoreKey("device-one")
	k2, _ := DeriveStoreKey("device-two")

	s1, err := OpenStore(path, k1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s1.SaveSession(ctx, StoredSession{Token: "secret", Principal: alice}); err != nil {
		t.Fatalf("save: %v", err)
	}
	var ct string
	if err := s1.db.QueryRowContext(ctx, `SELECT ct_b64 FROM session`).Scan(&ct); err != nil {
		t.Fatalf("query: %v", err)
	}
	if strings.Contains(ct, "secret") {
		t.Fatal("session token stored in clear")
	}
	_ = s1.Close()

	s2, err := OpenStore(path, k2)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s2.Close() }()
	if _, err := s2.LoadSession(ctx); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected auth error with the wrong key, got %v", err)
	}
}

func TestStoreSnapshots(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, "device-one")

	if _, _, err := store.LoadSnapshot(ctx, CollectionOrders, alice); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	rows := []Record{{"id": "o1", "number": "ORD-1"}, {"id": "o2", "number": "ORD-2"}}
	if err := store.SaveSnapshot(ctx, CollectionOrders, alice, rows); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, savedAt, err := store.LoadSnapshot(ctx, CollectionOrders, alice)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[1].String("number") != "ORD-2" || savedAt.IsZero() {
		t.Fatalf("unexpected snapshot %v at %s", got, savedAt)
	}
	if _, _, err := store.LoadSnapshot(ctx, CollectionOrders, bob); !errors.Is(err, ErrNotFound) {
		t.Fatal("snapshot leaked across principals")
	}

	if err := store.ClearSnapshots(ctx, alice); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, _, err := store.LoadSnapshot(ctx, CollectionOrders, alice); !errors.Is(err, ErrNotFound) {
		t.Fatal("expected snapshot removed")
	}
}

func TestStoreState(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, "device-one")
	if v, err := store.GetState(ctx, "missing", "default"); err != nil || v != "default" {
		t.Fatalf("GetState default: %v %q", err, v)
	}
	if err := store.SetState(ctx, "email", "a@example.com"); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if v, err := store.GetState(ctx, "email", ""); err != nil || v != "a@example.com" {
		t.Fatalf("GetState stored: %v %q", err, v)
	}
}

func TestSealedSessionRoundTripAndTamper(t *testing.T) {
	key, err := DeriveStoreKey("device")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	want := StoredSession{Token: "tok", Principal: alice, Email: "a@example.com"}
	sealed, err := sealSession(key, want)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if got, err := openSession(key, sealed); err != nil || got.Token != want.Token || got.Principal != want.Principal || got.Email != want.Email {
		t.Fatalf("open: %+v %v", got, err)
	}

	other, err := sealSession(key, StoredSession{Token: "other"})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	spliced := sealedSession{nonce: other.nonce, ct: sealed.ct}
	if _, err := openSession(key, spliced); !errors.Is(err, ErrAuth) {
		t.Fatalf("spliced nonce opened: %v", err)
	}
	if _, err := openSession(key, sealedSession{nonce: "short", ct: sealed.ct}); !errors.Is(err, ErrAuth) {
		t.Fatalf("bad nonce opened: %v", err)
	}
	if _, err := DeriveStoreKey("  "); err == nil {
		t.Fatal("expected error for empty device key")
	}
}
