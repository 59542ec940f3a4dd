package registry

import (
	"context"
	"testing"

	"github.com/ocochard/abyssrpc/internal/rpcvalue"
	"github.com/ocochard/abyssrpc/internal/rpcxml"
)

func newIntrospectableRegistry() *Registry {
	r := NewRegistry(rpcxml.DialectOriginal)
	r.Register("alpha", "the alpha method", "string:none", func(ctx context.Context, p *rpcvalue.Value) (*rpcvalue.Value, *rpcvalue.Fault) {
		return nil, nil
	})
	RegisterIntrospection(r)
	return r
}

func TestSystemListMethodsIncludesRegisteredAndIntrospectionMethods(t *testing.T) {
	r := newIntrospectableRegistry()
	f := rpcvalue.NewFault()
	result, fault := systemListMethods(r)(context.Background(), rpcvalue.NewArray())
	if fault != nil && fault.Fail {
		t.Fatalf("unexpected fault: %v", fault)
	}

	n := rpcvalue.ArraySize(result, f)
	names := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		names[string(rpcvalue.AsString(rpcvalue.ArrayGet(result, i, f), f))] = true
	}
	for _, want := range []string{"alpha", "system.listMethods", "system.methodHelp", "system.methodSignature"} {
		if !names[want] {
			t.Fatalf("system.listMethods result %v missing %q", names, want)
		}
	}
}

func TestSystemMethodHelpReturnsRegisteredHelp(t *testing.T) {
	r := newIntrospectableRegistry()
	f := rpcvalue.NewFault()
	params := rpcvalue.NewArrayFrom(rpcvalue.NewString("alpha"))
	result, fault := systemMethodHelp(r)(context.Background(), params)
	if fault != nil && fault.Fail {
		t.Fatalf("unexpected fault: %v", fault)
	}
	if got := string(rpcvalue.AsString(result, f)); got != "the alpha method" {
		t.Fatalf("methodHelp = %q, want %q", got, "the alpha method")
	}
}

func TestSystemMethodHelpUnknownMethodFaults(t *testing.T) {
	r := newIntrospectableRegistry()
	params := rpcvalue.NewArrayFrom(rpcvalue.NewString("ghost"))
	_, fault := systemMethodHelp(r)(context.Background(), params)
	if fault == nil || !fault.Fail || fault.Code != rpcvalue.CodeNoSuchMember {
		t.Fatalf("fault = %+v, want Fail with CodeNoSuchMember", fault)
	}
}

func TestSystemMethodSignatureDefaultsToUndef(t *testing.T) {
	r := newIntrospectableRegistry()
	r.Register("noSig", "no signature declared", "", func(ctx context.Context, p *rpcvalue.Value) (*rpcvalue.Value, *rpcvalue.Fault) {
		return nil, nil
	})
	f := rpcvalue.NewFault()
	params := rpcvalue.NewArrayFrom(rpcvalue.NewString("noSig"))
	result, fault := systemMethodSignature(r)(context.Background(), params)
	if fault != nil && fault.Fail {
		t.Fatalf("unexpected fault: %v", fault)
	}
	if got := string(rpcvalue.AsString(result, f)); got != "undef" {
		t.Fatalf("methodSignature = %q, want undef", got)
	}
}
