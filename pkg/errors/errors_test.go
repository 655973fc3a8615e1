package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("row not updated")
	err := Wrap(CodeRaceLost, cause, "listing already claimed")

	typed := As(err)
	if typed == nil {
		t.Fatal("expected typed error")
	}
	if typed.Code() != CodeRaceLost {
		t.Fatalf("unexpected code: %s", typed.Code())
	}
	if typed.Unwrap() != cause {
		t.Fatal("cause not preserved")
	}
}

func TestMetadataForDomainCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code   Code
		status int
	}{
		{CodeInsufficientStock, http.StatusConflict},
		{CodeInvalidQuantity, http.StatusUnprocessableEntity},
		{CodeRaceLost, http.StatusConflict},
		{CodeStateConflict, http.StatusUnprocessableEntity},
		{Code("UNKNOWN"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := MetadataFor(tc.code).HTTPStatus; got != tc.status {
			t.Errorf("%s: got %d, want %d", tc.code, got, tc.status)
		}
	}

	if MetadataFor(CodeRaceLost).Retryable {
		t.Fatal("race lost is a final outcome, not retryable")
	}
}

func TestHasCode(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("outer: %w", New(CodeInsufficientStock, "central too low"))
	if !HasCode(err, CodeInsufficientStock) {
		t.Fatal("expected code match through wrapping")
	}
	if HasCode(err, CodeNotFound) {
		t.Fatal("unexpected code match")
	}
	if HasCode(nil, CodeNotFound) {
		t.Fatal("nil error must not match")
	}
}
