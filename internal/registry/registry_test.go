// ABOUTME: Tests for the boot-time method registry
// ABOUTME: Covers duplicate registration, lookup failure, and introspection order

package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/harper/rpcbridge/internal/rpc"
)

func noopHandler(ctx context.Context, inv Invocation) (rpc.Value, error) {
	return rpc.Null(), nil
}

func TestRegisterAndGet(t *testing.T) {
	reg := New()

	d := &Descriptor{Name: "math.add", Handler: noopHandler}
	if err := reg.Register(d); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	got, err := reg.Get("math.add")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != d {
		t.Error("get returned a different descriptor")
	}
}

func TestRegisterDuplicateFails(t *testing.T) {
	reg := New()

	if err := reg.Register(&Descriptor{Name: "m", Handler: noopHandler}); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	err := reg.Register(&Descriptor{Name: "m", Handler: noopHandler})
	var already *AlreadyRegisteredError
	if !errors.As(err, &already) {
		t.Fatalf("expected AlreadyRegisteredError, got %v", err)
	}
	if already.Name != "m" {
		t.Errorf("error names %q, want m", already.Name)
	}
}

func TestGetMissingIsMethodNotFound(t *testing.T) {
	reg := New()

	_, err := reg.Get("missing")
	var rpcErr *rpc.Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected rpc error, got %v", err)
	}
	if rpcErr.Code != rpc.CodeMethodNotFound {
		t.Errorf("code = %d, want %d", rpcErr.Code, rpc.CodeMethodNotFound)
	}
}

func TestRegisterValidation(t *testing.T) {
	reg := New()

	if err := reg.Register(&Descriptor{Handler: noopHandler}); err == nil {
		t.Error("expected error for empty name")
	}
	if err := reg.Register(&Descriptor{Name: "x"}); err == nil {
		t.Error("expected error for nil handler")
	}
}

func TestAllPreservesRegistrationOrder(t *testing.T) {
	reg := New()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := reg.Register(&Descriptor{Name: name, Handler: noopHandler}); err != nil {
			t.Fatal(err)
		}
	}

	all := reg.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 descriptors, got %d", len(all))
	}
	want := []string{"zeta", "alpha", "mid"}
	for i, d := range all {
		if d.Name != want[i] {
			t.Errorf("all[%d] = %s, want %s", i, d.Name, want[i])
		}
	}
}

func TestMustRegisterPanicsOnDuplicate(t *testing.T) {
	reg := New()
	reg.MustRegister(&Descriptor{Name: "m", Handler: noopHandler})

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate MustRegister")
		}
	}()
	reg.MustRegister(&Descriptor{Name: "m", Handler: noopHandler})
}

func TestInvocationAccessors(t *testing.T) {
	id := rpc.Int(1)
	req := &rpc.Request{Version: rpc.Version, ID: &id, Method: "m"}
	inv := NewInvocation(req, []string{"a", "b"}, []rpc.Value{rpc.Int(10), rpc.String("x")}, nil)

	if inv.Arg(0).Int() != 10 {
		t.Error("Arg(0) wrong")
	}
	if inv.Named("b").Text() != "x" {
		t.Error("Named(b) wrong")
	}
	if !inv.Named("missing").IsNull() {
		t.Error("Named(missing) should be null")
	}
	if !inv.Arg(5).IsNull() {
		t.Error("out of range Arg should be null")
	}
	if inv.Request != req {
		t.Error("request not carried")
	}
}
