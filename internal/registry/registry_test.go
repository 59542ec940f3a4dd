package registry

import (
	"context"
	"strings"
	"testing"

	"github.com/ocochard/abyssrpc/internal/rpcvalue"
	"github.com/ocochard/abyssrpc/internal/rpcxml"
)

func echoMethod(ctx context.Context, params *rpcvalue.Value) (*rpcvalue.Value, *rpcvalue.Fault) {
	f := rpcvalue.NewFault()
	elem := rpcvalue.ArrayGet(params, 0, f)
	if f.Fail {
		return nil, f
	}
	return rpcvalue.Acquire(elem), nil
}

func callXML(t *testing.T, method string, args ...*rpcvalue.Value) []byte {
	t.Helper()
	f := rpcvalue.NewFault()
	buf := rpcvalue.NewBuffer()
	params := rpcvalue.NewArrayFrom(args...)
	rpcxml.SerializeCall2(f, buf, method, params, rpcxml.DialectOriginal)
	if f.Fail {
		t.Fatalf("failed to build call: %v", f)
	}
	return buf.Bytes()
}

func TestDispatchSuccessfulCall(t *testing.T) {
	r := NewRegistry(rpcxml.DialectOriginal)
	r.Register("echo", "echoes its argument", "string:string", echoMethod)

	resp := r.Dispatch(context.Background(), "127.0.0.1", callXML(t, "echo", rpcvalue.NewString("hi")))

	f := rpcvalue.NewFault()
	result, isFault, _ := rpcxml.ParseResponse(f, resp, rpcxml.DialectOriginal)
	if f.Fail || isFault {
		t.Fatalf("unexpected fault response: f=%v isFault=%v", f, isFault)
	}
	if got := string(rpcvalue.AsString(result, f)); got != "hi" {
		t.Fatalf("result = %q, want hi", got)
	}
}

func TestDispatchUnknownMethodReturnsFault(t *testing.T) {
	r := NewRegistry(rpcxml.DialectOriginal)
	resp := r.Dispatch(context.Background(), "127.0.0.1", callXML(t, "nonexistent"))

	f := rpcvalue.NewFault()
	_, isFault, fault := rpcxml.ParseResponse(f, resp, rpcxml.DialectOriginal)
	if f.Fail {
		t.Fatalf("unexpected parse error: %v", f)
	}
	if !isFault {
		t.Fatalf("expected a fault response for an unregistered method")
	}
	if fault.Code != rpcvalue.CodeNoSuchMember {
		t.Fatalf("fault code = %v, want CodeNoSuchMember", fault.Code)
	}
}

func TestDispatchMalformedBodyReturnsParseFault(t *testing.T) {
	r := NewRegistry(rpcxml.DialectOriginal)
	resp := r.Dispatch(context.Background(), "127.0.0.1", []byte("not xml at all"))

	f := rpcvalue.NewFault()
	_, isFault, fault := rpcxml.ParseResponse(f, resp, rpcxml.DialectOriginal)
	if f.Fail {
		t.Fatalf("unexpected parse error on the dispatch's own response: %v", f)
	}
	if !isFault || fault.Code != rpcvalue.CodeParseError {
		t.Fatalf("fault = %+v, want isFault with CodeParseError", fault)
	}
}

func TestRegisterReplacesExistingMethod(t *testing.T) {
	r := NewRegistry(rpcxml.DialectOriginal)
	r.Register("m", "first", "", func(ctx context.Context, p *rpcvalue.Value) (*rpcvalue.Value, *rpcvalue.Fault) {
		return rpcvalue.NewInt32(1), nil
	})
	r.Register("m", "second", "", func(ctx context.Context, p *rpcvalue.Value) (*rpcvalue.Value, *rpcvalue.Fault) {
		return rpcvalue.NewInt32(2), nil
	})

	resp := r.Dispatch(context.Background(), "peer", callXML(t, "m"))
	f := rpcvalue.NewFault()
	result, isFault, _ := rpcxml.ParseResponse(f, resp, rpcxml.DialectOriginal)
	if isFault || f.Fail {
		t.Fatalf("unexpected fault: f=%v isFault=%v", f, isFault)
	}
	if got := rpcvalue.AsInt32(result, f); got != 2 {
		t.Fatalf("result = %d, want 2 (the replacement registration)", got)
	}

	docs := r.Methods()
	if len(docs) != 1 || docs[0].Help != "second" {
		t.Fatalf("Methods() = %+v, want single entry with Help=second", docs)
	}
}

func TestMethodCatalogMarkdownListsRegisteredMethods(t *testing.T) {
	r := NewRegistry(rpcxml.DialectOriginal)
	r.Register("sum", "adds numbers", "int:array", func(ctx context.Context, p *rpcvalue.Value) (*rpcvalue.Value, *rpcvalue.Fault) {
		return nil, nil
	})
	md := r.MethodCatalogMarkdown()
	if !strings.Contains(md, "sum") || !strings.Contains(md, "adds numbers") {
		t.Fatalf("catalog missing expected content: %q", md)
	}
}
