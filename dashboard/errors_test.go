// ABOUTME: Tests for typed dashboard errors.
// ABOUTME: Verifies wrapping, unwrapping, and Is() matching.
package dashboard

import (
	"context"
	"errors"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{ErrFetch, ErrWrite, ErrValidation, ErrAuth, ErrUpload, ErrScopeMismatch, ErrNotFound}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Errorf("sentinel errors should be distinct: %v matches %v", a, b)
			}
		}
	}
}

func TestWriteErrorWrapsCause(t *testing.T) {
	err := &WriteError{Op: "update", Collection: "orders", ID: "o1", Err: ErrScopeMismatch}
	if !errors.Is(err, ErrWrite) {
		t.Error("errors.Is should match ErrWrite")
	}
	if !errors.Is(err, ErrScopeMismatch) {
		t.Error("errors.Is should match wrapped ErrScopeMismatch")
	}
	if errors.Is(err, ErrFetch) {
		t.Error("errors.Is should not match ErrFetch")
	}
}

func TestFetchErrorWrapsCause(t *testing.T) {
	err := &FetchError{Collection: "products", Err: context.DeadlineExceeded}
	if !errors.Is(err, ErrFetch) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("unexpected matching for %v", err)
	}
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Collection != "products" {
		t.Fatal("errors.As should extract FetchError")
	}
}

func TestAuthAndUploadErrors(t *testing.T) {
	ae := &AuthError{Reason: "expired", Err: errors.New("401")}
	if !errors.Is(ae, ErrAuth) {
		t.Error("AuthError should match ErrAuth")
	}
	ue := &UploadError{Reason: "too large"}
	if !errors.Is(ue, ErrUpload) || ue.Error() != "upload: too large" {
		t.Errorf("unexpected upload error %q", ue.Error())
	}
	ve := &ValidationError{Fields: []string{"name", "price"}}
	if !errors.Is(ve, ErrValidation) || ve.Error() != "missing required fields: name, price" {
		t.Errorf("unexpected validation error %q", ve.Error())
	}
}
