package relayerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestRetryable(t *testing.T) {
	cases := []struct {
		code Code
		want bool
	}{
		{CodeUnauthorized, false},
		{CodeMissingField, false},
		{CodeContentTooLong, false},
		{CodeRateLimitExceeded, false},
		{CodeUnknownMessageType, false},
		{CodeInvalidJSON, false},
		{CodeDependencyFailure, true},
	}
	for _, tc := range cases {
		if got := E(tc.code, "x").Retryable(); got != tc.want {
			t.Errorf("Retryable(%s) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestFrom_PassesThroughClassified(t *testing.T) {
	orig := E(CodeUnauthorized, "not a participant")
	wrapped := fmt.Errorf("dispatch: %w", orig)

	got := From(wrapped)
	if got.Code != CodeUnauthorized {
		t.Fatalf("code = %s, want %s", got.Code, CodeUnauthorized)
	}
}

func TestFrom_MapsUnknownToDependencyFailure(t *testing.T) {
	got := From(errors.New("connection refused"))
	if got.Code != CodeDependencyFailure {
		t.Fatalf("code = %s, want %s", got.Code, CodeDependencyFailure)
	}
	if !got.Retryable() {
		t.Error("dependency failure should be retryable")
	}
}

func TestDependency_Unwraps(t *testing.T) {
	inner := errors.New("dial tcp: timeout")
	err := Dependency("create message", inner)
	if !errors.Is(err, inner) {
		t.Error("Dependency should wrap the underlying error")
	}
}
