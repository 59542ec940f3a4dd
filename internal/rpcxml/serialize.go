package rpcxml

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/ocochard/abyssrpc/internal/rpcvalue"
)

// base64LineLen is the MIME line length for Base64-encoded output: lines
// of 76 characters, CRLF-terminated.
const base64LineLen = 76

// escapeText escapes &, < and > as entity references, and turns any
// literal CR (which can only reach here via the CR-preserving string
// constructor, since the normal constructors already normalize CR/CRLF to
// LF) into the numeric character reference &#x0d;. Every other byte,
// including NUL, passes through verbatim — the string element is
// byte-transparent otherwise.
func escapeText(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		switch c {
		case '&':
			sb.WriteString("&amp;")
		case '<':
			sb.WriteString("&lt;")
		case '>':
			sb.WriteString("&gt;")
		case '\r':
			sb.WriteString("&#x0d;")
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// formatDouble renders f in a locale-independent decimal form with at
// least 6 significant digits. The exact textual form is unspecified by the
// wire format; callers and tests should compare values numerically, not
// textually.
func formatDouble(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if significantDigits(s) < 6 {
		s = strconv.FormatFloat(f, 'g', 6, 64)
	}
	return s
}

func significantDigits(s string) int {
	n := 0
	for _, c := range s {
		if c >= '0' && c <= '9' {
			n++
		}
	}
	return n
}

func wrapBase64(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	if encoded == "" {
		return ""
	}
	var sb strings.Builder
	for len(encoded) > 0 {
		n := base64LineLen
		if n > len(encoded) {
			n = len(encoded)
		}
		sb.WriteString(encoded[:n])
		sb.WriteString("\r\n")
		encoded = encoded[n:]
	}
	return sb.String()
}

// SerializeValue writes "<value>...</value>" for v into buf using the
// original dialect (no trailing newline).
func SerializeValue(f *rpcvalue.Fault, buf *rpcvalue.Buffer, v *rpcvalue.Value) {
	SerializeValue2(f, buf, v, DialectOriginal)
}

// SerializeValue2 is SerializeValue with an explicit dialect.
func SerializeValue2(f *rpcvalue.Fault, buf *rpcvalue.Buffer, v *rpcvalue.Value, dialect Dialect) {
	if f.Fail {
		return
	}
	buf.AppendString("<value>")
	writeValueBody(f, buf, v, dialect)
	if f.Fail {
		return
	}
	buf.AppendString("</value>")
}

func writeValueBody(f *rpcvalue.Fault, buf *rpcvalue.Buffer, v *rpcvalue.Value, dialect Dialect) {
	switch rpcvalue.TypeOf(v) {
	case rpcvalue.KindInt32:
		n := rpcvalue.AsInt32(v, f)
		buf.AppendString("<i4>")
		buf.AppendString(strconv.FormatInt(int64(n), 10))
		buf.AppendString("</i4>")
	case rpcvalue.KindInt64:
		if dialect != DialectApache {
			f.Set(rpcvalue.CodeTypeError, "value not serializable in this dialect")
			return
		}
		n := rpcvalue.AsInt64(v, f)
		buf.AppendString("<ex:i8>")
		buf.AppendString(strconv.FormatInt(n, 10))
		buf.AppendString("</ex:i8>")
	case rpcvalue.KindBool:
		b := rpcvalue.AsBool(v, f)
		if b {
			buf.AppendString("<boolean>1</boolean>")
		} else {
			buf.AppendString("<boolean>0</boolean>")
		}
	case rpcvalue.KindDouble:
		d := rpcvalue.AsDouble(v, f)
		buf.AppendString("<double>")
		buf.AppendString(formatDouble(d))
		buf.AppendString("</double>")
	case rpcvalue.KindString:
		s := rpcvalue.AsString(v, f)
		buf.AppendString("<string>")
		buf.AppendString(escapeText(s))
		buf.AppendString("</string>")
	case rpcvalue.KindDateTime:
		s := rpcvalue.AsDateTime(v, f)
		buf.AppendString("<dateTime.iso8601>")
		buf.AppendString(s)
		buf.AppendString("</dateTime.iso8601>")
	case rpcvalue.KindBase64:
		p := rpcvalue.AsBase64(v, f)
		buf.AppendString("<base64>\r\n")
		buf.AppendString(wrapBase64(p))
		buf.AppendString("</base64>")
	case rpcvalue.KindArray:
		writeArrayBody(f, buf, v, dialect)
	case rpcvalue.KindStruct:
		writeStructBody(f, buf, v, dialect)
	case rpcvalue.KindNil:
		if dialect != DialectApache {
			f.Set(rpcvalue.CodeTypeError, "value not serializable in this dialect")
			return
		}
		buf.AppendString("<ex:nil/>")
	default:
		f.Set(rpcvalue.CodeTypeError, "unrecognized value kind")
	}
}

func writeArrayBody(f *rpcvalue.Fault, buf *rpcvalue.Buffer, v *rpcvalue.Value, dialect Dialect) {
	n := rpcvalue.ArraySize(v, f)
	if f.Fail {
		return
	}
	buf.AppendString("<array><data>\r\n")
	for i := 0; i < n; i++ {
		elem := rpcvalue.ArrayGet(v, i, f)
		if f.Fail {
			return
		}
		SerializeValue2(f, buf, elem, dialect)
		if f.Fail {
			return
		}
		buf.AppendString("\r\n")
	}
	buf.AppendString("</data></array>")
}

func writeStructBody(f *rpcvalue.Fault, buf *rpcvalue.Buffer, v *rpcvalue.Value, dialect Dialect) {
	n := rpcvalue.StructSize(v, f)
	if f.Fail {
		return
	}
	buf.AppendString("<struct>\r\n")
	for i := 0; i < n; i++ {
		m := rpcvalue.StructMemberAt(v, i, f)
		if f.Fail {
			return
		}
		buf.AppendString("<member><name>")
		buf.AppendString(escapeText([]byte(m.Name)))
		buf.AppendString("</name>\r\n")
		SerializeValue2(f, buf, m.Value, dialect)
		if f.Fail {
			return
		}
		buf.AppendString("</member>\r\n")
	}
	buf.AppendString("</struct>")
}

// SerializeParams writes "<params>...</params>" for arrayValue (which must
// be an Array) using the original dialect.
func SerializeParams(f *rpcvalue.Fault, buf *rpcvalue.Buffer, arrayValue *rpcvalue.Value) {
	SerializeParams2(f, buf, arrayValue, DialectOriginal)
}

// SerializeParams2 is SerializeParams with an explicit dialect.
func SerializeParams2(f *rpcvalue.Fault, buf *rpcvalue.Buffer, arrayValue *rpcvalue.Value, dialect Dialect) {
	if f.Fail {
		return
	}
	if rpcvalue.TypeOf(arrayValue) != rpcvalue.KindArray {
		f.Set(rpcvalue.CodeTypeError, "params value must be an array")
		return
	}
	n := rpcvalue.ArraySize(arrayValue, f)
	if f.Fail {
		return
	}
	buf.AppendString("<params>\r\n")
	for i := 0; i < n; i++ {
		elem := rpcvalue.ArrayGet(arrayValue, i, f)
		if f.Fail {
			return
		}
		buf.AppendString("<param>")
		SerializeValue2(f, buf, elem, dialect)
		if f.Fail {
			return
		}
		buf.AppendString("</param>\r\n")
	}
	buf.AppendString("</params>\r\n")
}

// SerializeCall writes a full methodCall document using the original
// dialect.
func SerializeCall(f *rpcvalue.Fault, buf *rpcvalue.Buffer, methodName string, paramsArray *rpcvalue.Value) {
	SerializeCall2(f, buf, methodName, paramsArray, DialectOriginal)
}

// SerializeCall2 is SerializeCall with an explicit dialect.
func SerializeCall2(f *rpcvalue.Fault, buf *rpcvalue.Buffer, methodName string, paramsArray *rpcvalue.Value, dialect Dialect) {
	if f.Fail {
		return
	}
	buf.AppendString(xmlProlog)
	buf.AppendString("<methodCall>\r\n<methodName>")
	buf.AppendString(escapeText([]byte(methodName)))
	buf.AppendString("</methodName>\r\n")
	SerializeParams2(f, buf, paramsArray, dialect)
	if f.Fail {
		return
	}
	buf.AppendString("</methodCall>\r\n")
}

// SerializeResponse writes a full methodResponse document for a successful
// call result, using the original dialect.
func SerializeResponse(f *rpcvalue.Fault, buf *rpcvalue.Buffer, result *rpcvalue.Value) {
	SerializeResponse2(f, buf, result, DialectOriginal)
}

// SerializeResponse2 is SerializeResponse with an explicit dialect.
func SerializeResponse2(f *rpcvalue.Fault, buf *rpcvalue.Buffer, result *rpcvalue.Value, dialect Dialect) {
	if f.Fail {
		return
	}
	buf.AppendString(xmlProlog)
	buf.AppendString("<methodResponse>\r\n<params>\r\n<param>")
	SerializeValue2(f, buf, result, dialect)
	if f.Fail {
		return
	}
	buf.AppendString("</param>\r\n</params>\r\n</methodResponse>\r\n")
}

// SerializeFault writes a full methodResponse/fault document, using the
// original dialect.
func SerializeFault(f *rpcvalue.Fault, buf *rpcvalue.Buffer, fault *rpcvalue.Fault) {
	SerializeFault2(f, buf, fault, DialectOriginal)
}

// SerializeFault2 is SerializeFault with an explicit dialect.
func SerializeFault2(f *rpcvalue.Fault, buf *rpcvalue.Buffer, fault *rpcvalue.Fault, dialect Dialect) {
	if f.Fail {
		return
	}
	buf.AppendString(xmlProlog)
	buf.AppendString("<methodResponse>\r\n<fault>\r\n<value>")
	st := rpcvalue.NewStruct()
	rpcvalue.StructSet(st, "faultCode", rpcvalue.NewInt32(int32(fault.Code)), f)
	rpcvalue.StructSet(st, "faultString", rpcvalue.NewString(fault.Message), f)
	writeValueBody(f, buf, st, dialect)
	rpcvalue.Release(st)
	if f.Fail {
		return
	}
	buf.AppendString("</value>\r\n</fault>\r\n</methodResponse>\r\n")
}
