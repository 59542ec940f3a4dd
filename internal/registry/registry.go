// Package registry implements a method-dispatch registry: it sits above the
// connection engine, consuming a decoded XML-RPC call and a body and
// producing a response body. Methods are added with Register and invoked
// through Dispatch.
package registry

import (
	"context"
	"log"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ocochard/abyssrpc/internal/rpcvalue"
	"github.com/ocochard/abyssrpc/internal/rpcxml"
)

// MethodFunc is one registered XML-RPC method. It receives the call's
// params array and returns either a result value or a fault, never both.
type MethodFunc func(ctx context.Context, params *rpcvalue.Value) (*rpcvalue.Value, *rpcvalue.Fault)

// MethodDoc is the introspection metadata methodHelp/methodSignature serve.
type MethodDoc struct {
	Name      string
	Help      string
	Signature string
}

// Registry dispatches XML-RPC calls to registered Go functions. DebugTraces
// gates the [DEBUG] dispatch trace line below.
type Registry struct {
	Dialect rpcxml.Dialect

	methods map[string]MethodFunc
	docs    map[string]MethodDoc
	cache   *lru.Cache[string, MethodFunc]

	Audit       *AuditLog
	DebugTraces bool
}

// NewRegistry returns an empty registry using the given wire dialect. A
// bounded LRU resolves recently-called method names to their handler
// without a full map lookup once a registry carries many methods.
func NewRegistry(dialect rpcxml.Dialect) *Registry {
	cache, _ := lru.New[string, MethodFunc](128)
	return &Registry{
		Dialect: dialect,
		methods: make(map[string]MethodFunc),
		docs:    make(map[string]MethodDoc),
		cache:   cache,
	}
}

// Register adds a method under name, replacing any prior registration of
// the same name and invalidating its cache entry.
func (r *Registry) Register(name, help, signature string, fn MethodFunc) {
	r.methods[name] = fn
	r.docs[name] = MethodDoc{Name: name, Help: help, Signature: signature}
	r.cache.Remove(name)
}

// Methods returns the registered method documentation, for introspection
// and the status dashboard.
func (r *Registry) Methods() []MethodDoc {
	out := make([]MethodDoc, 0, len(r.docs))
	for _, d := range r.docs {
		out = append(out, d)
	}
	return out
}

func (r *Registry) resolve(name string) (MethodFunc, bool) {
	if fn, ok := r.cache.Get(name); ok {
		return fn, true
	}
	fn, ok := r.methods[name]
	if ok {
		r.cache.Add(name, fn)
	}
	return fn, ok
}

// Dispatch decodes an XML-RPC methodCall body, invokes the matching
// method, and serializes the result or fault back to XML. It never
// returns an error: any failure becomes a well-formed
// <methodResponse><fault>...</fault></methodResponse> document.
func (r *Registry) Dispatch(ctx context.Context, peerIP string, body []byte) []byte {
	start := time.Now()
	f := rpcvalue.NewFault()
	methodName, params := rpcxml.ParseCall(f, body, r.Dialect)

	var result *rpcvalue.Value
	var callFault *rpcvalue.Fault

	if f.Fail {
		callFault = f
	} else {
		fn, ok := r.resolve(methodName)
		if !ok {
			callFault = &rpcvalue.Fault{}
			callFault.Set(rpcvalue.CodeNoSuchMember, "no such method %q", methodName)
		} else {
			result, callFault = fn(ctx, params)
		}
	}

	if r.DebugTraces {
		log.Printf("[DEBUG] registry: peer=%s method=%s dur=%s fault=%v",
			peerIP, methodName, time.Since(start), callFault != nil && callFault.Fail)
	}

	out := rpcvalue.NewBuffer()
	sf := rpcvalue.NewFault()
	if callFault != nil && callFault.Fail {
		rpcxml.SerializeFault2(sf, out, callFault, r.Dialect)
	} else if result == nil {
		sf.Set(rpcvalue.CodeInternalError, "method %q returned no result", methodName)
	} else {
		rpcxml.SerializeResponse2(sf, out, result, r.Dialect)
	}
	if sf.Fail {
		callFault = sf
		out.Reset()
		rpcxml.SerializeFault2(rpcvalue.NewFault(), out, callFault, r.Dialect)
	}

	if r.Audit != nil {
		code := int32(0)
		msg := ""
		failed := callFault != nil && callFault.Fail
		if failed {
			code = int32(callFault.Code)
			msg = callFault.Message
		}
		if err := r.Audit.RecordCall(CallRecord{
			Method:   methodName,
			PeerIP:   peerIP,
			Failed:   failed,
			FaultNo:  code,
			FaultMsg: msg,
			Duration: time.Since(start),
			At:       time.Now(),
		}); err != nil {
			log.Printf("[ERROR] registry: failed to record call audit: %v", err)
		}
	}

	return out.Bytes()
}
