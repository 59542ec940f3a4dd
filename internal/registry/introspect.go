package registry

import (
	"context"
	"sort"

	"github.com/ocochard/abyssrpc/internal/rpcvalue"
)

// RegisterIntrospection adds the standard system.* introspection methods:
// listMethods, methodHelp, methodSignature. Any client written against a
// real XML-RPC registry expects these to be present.
func RegisterIntrospection(r *Registry) {
	r.Register("system.listMethods", "Returns an array of all method names registered on this server.",
		"array:none", systemListMethods(r))
	r.Register("system.methodHelp", "Returns the help string for the named method.",
		"string:string", systemMethodHelp(r))
	r.Register("system.methodSignature", "Returns the method's declared signature string, or \"undef\" if none is recorded.",
		"string:string", systemMethodSignature(r))
}

func systemListMethods(r *Registry) MethodFunc {
	return func(ctx context.Context, params *rpcvalue.Value) (*rpcvalue.Value, *rpcvalue.Fault) {
		f := rpcvalue.NewFault()
		names := make([]string, 0, len(r.docs))
		for name := range r.docs {
			names = append(names, name)
		}
		sort.Strings(names)

		arr := rpcvalue.NewArray()
		for _, name := range names {
			v := rpcvalue.NewString(name)
			rpcvalue.ArrayAppend(arr, v, f)
			rpcvalue.Release(v)
			if f.Fail {
				rpcvalue.Release(arr)
				return nil, f
			}
		}
		return arr, nil
	}
}

func methodNameArg(params *rpcvalue.Value, f *rpcvalue.Fault) string {
	n := rpcvalue.ArraySize(params, f)
	if f.Fail {
		return ""
	}
	if n != 1 {
		f.Set(rpcvalue.CodeTypeError, "expected exactly one string argument, got %d", n)
		return ""
	}
	elem := rpcvalue.ArrayGet(params, 0, f)
	if f.Fail {
		return ""
	}
	return string(rpcvalue.AsString(elem, f))
}

func systemMethodHelp(r *Registry) MethodFunc {
	return func(ctx context.Context, params *rpcvalue.Value) (*rpcvalue.Value, *rpcvalue.Fault) {
		f := rpcvalue.NewFault()
		name := methodNameArg(params, f)
		if f.Fail {
			return nil, f
		}
		doc, ok := r.docs[name]
		if !ok {
			f.Set(rpcvalue.CodeNoSuchMember, "no such method %q", name)
			return nil, f
		}
		return rpcvalue.NewString(doc.Help), nil
	}
}

func systemMethodSignature(r *Registry) MethodFunc {
	return func(ctx context.Context, params *rpcvalue.Value) (*rpcvalue.Value, *rpcvalue.Fault) {
		f := rpcvalue.NewFault()
		name := methodNameArg(params, f)
		if f.Fail {
			return nil, f
		}
		doc, ok := r.docs[name]
		if !ok {
			f.Set(rpcvalue.CodeNoSuchMember, "no such method %q", name)
			return nil, f
		}
		sig := doc.Signature
		if sig == "" {
			sig = "undef"
		}
		return rpcvalue.NewString(sig), nil
	}
}
