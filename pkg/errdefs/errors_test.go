package errdefs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"not found", NotFound("role not found: %d", 7), KindNotFound},
		{"conflict", Conflict("duplicate job name: %s", "nightly-sync"), KindConflict},
		{"validation", Validation("invalid cron expression"), KindValidation},
		{"internal", Internal("policy store failure", errors.New("boom")), KindInternal},
		{"rollback failed", RollbackFailed("re-add failed", errors.New("down")), KindRollbackFailed},
		{"plain error", errors.New("plain"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf() = %v, want %v", got, tt.kind)
			}
		})
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("saving permissions: %w", NotFound("role not found: 42"))
	if !IsNotFound(err) {
		t.Error("expected wrapped error to remain not-found")
	}
	if HTTPStatus(err) != http.StatusNotFound {
		t.Errorf("HTTPStatus() = %d, want 404", HTTPStatus(err))
	}
}

func TestHTTPStatus(t *testing.T) {
	if got := HTTPStatus(Conflict("dup")); got != http.StatusConflict {
		t.Errorf("conflict status = %d", got)
	}
	if got := HTTPStatus(Validation("bad")); got != http.StatusBadRequest {
		t.Errorf("validation status = %d", got)
	}
	if got := HTTPStatus(errors.New("x")); got != http.StatusInternalServerError {
		t.Errorf("internal status = %d", got)
	}
}

func TestUserMessageHidesInternalDetail(t *testing.T) {
	err := Internal("permission update failed", errors.New("pq: connection refused"))
	if msg := UserMessage(err); msg != "internal error" {
		t.Errorf("UserMessage() leaked detail: %q", msg)
	}

	err = Validation("cannot assign inherited permission: docs:read")
	if msg := UserMessage(err); msg != "cannot assign inherited permission: docs:read" {
		t.Errorf("UserMessage() = %q", msg)
	}
}
