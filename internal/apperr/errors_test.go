package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	t.Parallel()

	err := WithMetadata(CodeNotFound, "entry 12 not found", map[string]string{"entry_id": "12"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("expected errors.Is to match ErrNotFound")
	}
	if errors.Is(err, ErrNotMember) {
		t.Fatal("did not expect errors.Is to match ErrNotMember")
	}
}

func TestWrappedChain(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := fmt.Errorf("add entry: %w", Wrap(CodeUntrackedTotal, "member total", cause))

	if !errors.Is(err, ErrUntrackedTotal) {
		t.Fatal("expected wrapped domain error to match")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to stay reachable")
	}
	if got := CodeOf(err); got != CodeUntrackedTotal {
		t.Fatalf("CodeOf() = %q, want %q", got, CodeUntrackedTotal)
	}
	if got := CodeOf(cause); got != CodeUnknown {
		t.Fatalf("CodeOf(plain) = %q, want %q", got, CodeUnknown)
	}
}

func TestRecoverable(t *testing.T) {
	t.Parallel()

	if CodeUnknown.Recoverable() {
		t.Fatal("unknown code must not be recoverable")
	}
	if !CodeInvalidDate.Recoverable() {
		t.Fatal("validation code must be recoverable")
	}
}
