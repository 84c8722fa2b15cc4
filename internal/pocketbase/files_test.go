package pocketbase

import (
	"context"
	"errors"
	"io"
	"net"
	"slices"
	"testing"
	"time"

	"github.com/design2deploy2025/inventory-management-sub000/dashboard"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

func TestUploadFileSendsMultipart(t *testing.T) {
	f := newFakePB(t)
	alice, tok := f.login("alice@example.com")
	prof := f.seed(dashboard.CollectionProfiles, dashboard.Record{"business_name": "Shop", "owner": alice.id})
	c := f.client(t)
	c.SetToken(tok)

	stored, err := c.UploadFile(context.Background(), dashboard.CollectionProfiles, prof.ID(), "logo", "logo.png", pngBytes, dashboard.Principal(alice.id))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if stored.String("logo") != "stored_logo.png" {
		t.Fatalf("stored = %v", stored)
	}
	f.mu.Lock()
	uploads := append([]string(nil), f.uploads...)
	f.mu.Unlock()
	if len(uploads) != 1 || uploads[0] != "logo:logo.png:72" {
		t.Fatalf("uploads = %v", uploads)
	}
	if got := c.FileURL(dashboard.CollectionProfiles, prof.ID(), "stored_logo.png"); got != f.srv.URL+"/api/files/profiles/"+prof.ID()+"/stored_logo.png" {
		t.Fatalf("file url = %q", got)
	}
}

func TestUploadFileRejectsBeforeNetwork(t *testing.T) {
	f := newFakePB(t)
	alice, tok := f.login("alice@example.com")
	c := f.client(t)
	c.SetToken(tok)

	_, err := c.UploadFile(context.Background(), dashboard.CollectionProfiles, "rec1", "logo", "notes.txt", []byte("hello there"), dashboard.Principal(alice.id))
	if !errors.Is(err, dashboard.ErrUpload) {
		t.Fatalf("err = %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.uploads) != 0 {
		t.Fatalf("uploads = %v", f.uploads)
	}
}

func TestUploadFileForeignRecord(t *testing.T) {
	f := newFakePB(t)
	alice, tok := f.login("alice@example.com")
	bob, _ := f.login("bob@example.com")
	prof := f.seed(dashboard.CollectionProfiles, dashboard.Record{"owner": bob.id})
	c := f.client(t)
	c.SetToken(tok)

	_, err := c.UploadFile(context.Background(), dashboard.CollectionProfiles, prof.ID(), "logo", "logo.png", pngBytes, dashboard.Principal(alice.id))
	if !errors.Is(err, dashboard.ErrScopeMismatch) {
		t.Fatalf("err = %v", err)
	}
}

func TestProfilesUploadLogoOverHTTP(t *testing.T) {
	f := newFakePB(t)
	alice, tok := f.login("alice@example.com")
	c := f.client(t)
	c.SetToken(tok)
	profiles := dashboard.NewProfiles(c, c, nil)
	owner := dashboard.Principal(alice.id)

	if _, err := profiles.Ensure(context.Background(), owner); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	prof, err := profiles.UploadLogo(context.Background(), owner, "logo.png", pngBytes)
	if err != nil {
		t.Fatalf("upload logo: %v", err)
	}
	if prof.Logo != "stored_logo.png" {
		t.Fatalf("logo = %q", prof.Logo)
	}
}

func TestContactValidation(t *testing.T) {
	cases := []struct {
		name string
		msg  ContactMessage
		want string
	}{
		{"ok", ContactMessage{Name: "Ada", Email: "ada@example.com", Message: "Hi"}, ""},
		{"no name", ContactMessage{Email: "ada@example.com", Message: "Hi"}, "name"},
		{"bad email", ContactMessage{Name: "Ada", Email: "ada", Message: "Hi"}, "email"},
		{"blank message", ContactMessage{Name: "Ada", Email: "ada@example.com", Message: "  "}, "message"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *dashboard.ValidationError
			if !errors.As(err, &ve) || !slices.Equal(ve.Fields, []string{tc.want}) {
				t.Fatalf("err = %v, want validation error for %q", err, tc.want)
			}
			if !errors.Is(err, dashboard.ErrValidation) {
				t.Fatalf("err = %v does not match ErrValidation", err)
			}
		})
	}
}

func TestSendContact(t *testing.T) {
	f := newFakePB(t)
	c := f.client(t)
	msg := ContactMessage{Name: "Ada", Email: "ada@example.com", Message: "Do you ship abroad?"}
	if err := c.SendContact(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := c.SendContact(context.Background(), ContactMessage{}); err == nil {
		t.Fatal("expected validation error")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.contacts) != 1 || f.contacts[0] != msg {
		t.Fatalf("contacts = %+v", f.contacts)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", &APIError{Status: 503}, true},
		{"rate limited", &APIError{Status: 429}, true},
		{"unauthorized", &APIError{Status: 401}, false},
		{"forbidden", &APIError{Status: 403}, false},
		{"network", timeoutErr{}, true},
		{"stream ended", io.ErrUnexpectedEOF, true},
		{"canceled", context.Canceled, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Retryable(tc.err); got != tc.want {
				t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := newBackoff(RetryConfig{InitialWait: 100 * time.Millisecond, MaxWait: 300 * time.Millisecond, Multiplier: 2})
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for i, w := range want {
		if got := b.next(); got != w {
			t.Fatalf("step %d = %v, want %v", i, got, w)
		}
	}
	b.reset()
	if got := b.next(); got != 100*time.Millisecond {
		t.Fatalf("after reset = %v", got)
	}
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleep(ctx, time.Hour) {
		t.Fatal("sleep ignored canceled context")
	}
	if !sleep(context.Background(), time.Millisecond) {
		t.Fatal("short sleep did not complete")
	}
}
