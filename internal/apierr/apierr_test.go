package apierr

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestMissingField(t *testing.T) {
	err := MissingField("to")
	if err.Status != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if !strings.Contains(err.Message, `"to"`) {
		t.Errorf("Message = %q, want field name included", err.Message)
	}
}

func TestUpstreamWrapsCause(t *testing.T) {
	cause := errors.New("throttled")
	err := Upstream("send message", cause)
	if err.Status != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", err.Status)
	}
	if !errors.Is(err, cause) {
		t.Error("Upstream() should wrap its cause")
	}
}

func TestFromError(t *testing.T) {
	structured := NotFound("no such conversation")
	if got := FromError(structured); got != structured {
		t.Error("FromError() should pass structured errors through")
	}

	plain := errors.New("boom")
	got := FromError(plain)
	if got.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", got.Status)
	}
	if strings.Contains(got.Message, "boom") {
		t.Error("internal error message must not leak the cause text")
	}
}
