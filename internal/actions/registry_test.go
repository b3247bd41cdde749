package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	calls := 0
	fn := func(context.Context) error { calls++; return nil }

	if err := r.Register("b", fn); err != nil {
		t.Fatalf("Register(b) error = %v", err)
	}
	if err := r.Register("a", fn); err != nil {
		t.Fatalf("Register(a) error = %v", err)
	}
	if err := r.Register("a", fn); !errors.Is(err, ErrDuplicateAction) {
		t.Errorf("Register(a) twice error = %v, want ErrDuplicateAction", err)
	}
	if err := r.Register("", fn); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("Register(\"\") error = %v, want ErrInvalidAction", err)
	}
	if err := r.Register("nil", nil); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("Register(nil func) error = %v, want ErrInvalidAction", err)
	}

	got, ok := r.Lookup("a")
	if !ok {
		t.Fatal("Lookup(a) ok = false")
	}
	if err := got(context.Background()); err != nil || calls != 1 {
		t.Errorf("registered func returned %v after %d calls", err, calls)
	}

	if _, ok := r.Lookup("missing"); ok {
		t.Error("Lookup(missing) ok = true")
	}

	if diff := cmp.Diff([]string{"a", "b"}, r.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}
