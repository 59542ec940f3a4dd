package rpcxml

import (
	"strings"
	"testing"

	"github.com/ocochard/abyssrpc/internal/rpcvalue"
)

func serialize(t *testing.T, v *rpcvalue.Value, dialect Dialect) string {
	t.Helper()
	f := rpcvalue.NewFault()
	buf := rpcvalue.NewBuffer()
	SerializeValue2(f, buf, v, dialect)
	if f.Fail {
		t.Fatalf("unexpected fault: %v", f)
	}
	return buf.String()
}

func TestSerializeInt32(t *testing.T) {
	v := rpcvalue.NewInt32(-17)
	got := serialize(t, v, DialectOriginal)
	if got != "<value><i4>-17</i4></value>" {
		t.Fatalf("got %q", got)
	}
}

func TestSerializeStringEscaping(t *testing.T) {
	v := rpcvalue.NewString("a & b < c > d")
	got := serialize(t, v, DialectOriginal)
	want := "<value><string>a &amp; b &lt; c &gt; d</string></value>"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSerializeCRPreservedAsCharRef(t *testing.T) {
	v := rpcvalue.NewStringLPCR([]byte("a\rb"))
	got := serialize(t, v, DialectOriginal)
	want := "<value><string>a&#x0d;b</string></value>"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSerializeBoolean(t *testing.T) {
	if got := serialize(t, rpcvalue.NewBool(true), DialectOriginal); got != "<value><boolean>1</boolean></value>" {
		t.Fatalf("got %q", got)
	}
	if got := serialize(t, rpcvalue.NewBool(false), DialectOriginal); got != "<value><boolean>0</boolean></value>" {
		t.Fatalf("got %q", got)
	}
}

func TestSerializeBase64LineWrapping(t *testing.T) {
	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}
	v := rpcvalue.NewBase64(data)
	got := serialize(t, v, DialectOriginal)
	if !strings.HasPrefix(got, "<value><base64>\r\n") || !strings.HasSuffix(got, "</base64></value>") {
		t.Fatalf("unexpected base64 envelope: %q", got)
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(got, "<value><base64>\r\n"), "</base64></value>")
	for _, line := range strings.Split(strings.TrimSuffix(inner, "\r\n"), "\r\n") {
		if len(line) > 76 {
			t.Fatalf("base64 line too long: %d chars", len(line))
		}
	}
}

func TestSerializeInt64RequiresApacheDialect(t *testing.T) {
	v := rpcvalue.NewInt64(1 << 40)
	f := rpcvalue.NewFault()
	buf := rpcvalue.NewBuffer()
	SerializeValue2(f, buf, v, DialectOriginal)
	if !f.Fail || f.Code != rpcvalue.CodeTypeError {
		t.Fatalf("fault = %+v, want Fail with CodeTypeError for int64 under original dialect", f)
	}

	got := serialize(t, v, DialectApache)
	if got != "<value><ex:i8>1099511627776</ex:i8></value>" {
		t.Fatalf("got %q", got)
	}
}

func TestSerializeNilRequiresApacheDialect(t *testing.T) {
	v := rpcvalue.NewNil()
	f := rpcvalue.NewFault()
	buf := rpcvalue.NewBuffer()
	SerializeValue2(f, buf, v, DialectOriginal)
	if !f.Fail {
		t.Fatalf("expected fault serializing nil under original dialect")
	}

	got := serialize(t, v, DialectApache)
	if got != "<value><ex:nil/></value>" {
		t.Fatalf("got %q", got)
	}
}

func TestSerializeArray(t *testing.T) {
	arr := rpcvalue.NewArrayFrom(rpcvalue.NewInt32(1), rpcvalue.NewInt32(2))
	got := serialize(t, arr, DialectOriginal)
	want := "<value><array><data>\r\n<value><i4>1</i4></value>\r\n<value><i4>2</i4></value>\r\n</data></array></value>"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSerializeStruct(t *testing.T) {
	f := rpcvalue.NewFault()
	st := rpcvalue.NewStruct()
	rpcvalue.StructSet(st, "a", rpcvalue.NewInt32(1), f)
	got := serialize(t, st, DialectOriginal)
	want := "<value><struct>\r\n<member><name>a</name>\r\n<value><i4>1</i4></value></member>\r\n</struct></value>"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSerializeCallEnvelope(t *testing.T) {
	f := rpcvalue.NewFault()
	buf := rpcvalue.NewBuffer()
	params := rpcvalue.NewArrayFrom(rpcvalue.NewString("x"))
	SerializeCall2(f, buf, "echo", params, DialectOriginal)
	if f.Fail {
		t.Fatalf("unexpected fault: %v", f)
	}
	got := buf.String()
	if !strings.HasPrefix(got, xmlProlog) {
		t.Fatalf("missing XML prolog: %q", got)
	}
	if !strings.Contains(got, "<methodName>echo</methodName>") {
		t.Fatalf("missing method name: %q", got)
	}
	if !strings.Contains(got, "<param><value><string>x</string></value></param>") {
		t.Fatalf("missing param: %q", got)
	}
}

func TestSerializeFaultEnvelope(t *testing.T) {
	f := rpcvalue.NewFault()
	buf := rpcvalue.NewBuffer()
	fault := &rpcvalue.Fault{Fail: true, Code: rpcvalue.CodeTypeError, Message: "bad type"}
	SerializeFault2(f, buf, fault, DialectOriginal)
	if f.Fail {
		t.Fatalf("unexpected fault serializing fault: %v", f)
	}
	got := buf.String()
	if !strings.Contains(got, "<name>faultCode</name>") {
		t.Fatalf("missing faultCode member: %q", got)
	}
	if !strings.Contains(got, "bad type") {
		t.Fatalf("missing fault message: %q", got)
	}
}
