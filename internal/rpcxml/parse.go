package rpcxml

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/ocochard/abyssrpc/internal/rpcvalue"
)

// parser wraps an xml.Decoder with one token of lookahead. It is symmetric
// to the serializer: every element Serialize* writes, Parse* below can
// read back.
type parser struct {
	dec  *xml.Decoder
	peek xml.Token
	f    *rpcvalue.Fault
}

func newParser(f *rpcvalue.Fault, data []byte) *parser {
	return &parser{dec: xml.NewDecoder(bytes.NewReader(data)), f: f}
}

func (p *parser) next() xml.Token {
	if p.peek != nil {
		t := p.peek
		p.peek = nil
		return t
	}
	t, err := p.dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		p.f.Set(rpcvalue.CodeParseError, "xml read error: %v", err)
		return nil
	}
	return xml.CopyToken(t)
}

func (p *parser) unread(t xml.Token) {
	p.peek = t
}

// nextSignificant skips chardata/comments/procinst/directive tokens that
// can legally appear between elements (e.g. the \r\n this codec's own
// serializer writes between structural elements).
func (p *parser) nextSignificant() xml.Token {
	for {
		t := p.next()
		if t == nil || p.f.Fail {
			return t
		}
		switch t.(type) {
		case xml.CharData, xml.Comment, xml.ProcInst, xml.Directive:
			continue
		default:
			return t
		}
	}
}

func (p *parser) expectStart(name string) (xml.StartElement, bool) {
	t := p.nextSignificant()
	se, ok := t.(xml.StartElement)
	if !ok {
		if t != nil {
			p.unread(t)
		}
		if name != "" {
			p.f.Set(rpcvalue.CodeParseError, "expected <%s>", name)
		}
		return xml.StartElement{}, false
	}
	if name != "" && se.Name.Local != name {
		p.f.Set(rpcvalue.CodeParseError, "expected <%s>, found <%s>", name, se.Name.Local)
		return se, false
	}
	return se, true
}

func (p *parser) expectEnd(name string) {
	t := p.nextSignificant()
	ee, ok := t.(xml.EndElement)
	if !ok || (name != "" && ee.Name.Local != name) {
		p.f.Set(rpcvalue.CodeParseError, "expected </%s>", name)
	}
}

// readCharData accumulates CharData until the matching EndElement for a
// leaf element (no further nested elements expected).
func (p *parser) readCharData() string {
	var sb strings.Builder
	for {
		t := p.next()
		if t == nil || p.f.Fail {
			return sb.String()
		}
		switch tok := t.(type) {
		case xml.CharData:
			sb.Write(tok)
		case xml.EndElement:
			p.unread(tok)
			return sb.String()
		default:
			// ignore nested comments/procinst inside text content
		}
	}
}

// ParseValue decodes a single "<value>...</value>" document into a Value,
// symmetric to SerializeValue2. dialect controls whether ex:i8/ex:nil are
// accepted.
func ParseValue(f *rpcvalue.Fault, data []byte, dialect Dialect) *rpcvalue.Value {
	p := newParser(f, data)
	se, ok := p.expectStart("value")
	if !ok {
		return nil
	}
	v := p.parseValueBody(se, dialect)
	if f.Fail {
		return nil
	}
	p.expectEnd("value")
	if f.Fail {
		return nil
	}
	return v
}

func (p *parser) parseValueBody(outer xml.StartElement, dialect Dialect) *rpcvalue.Value {
	_ = outer
	t := p.nextSignificant()
	se, ok := t.(xml.StartElement)
	if !ok {
		// A bare <value></value> with no child element is an empty string,
		// per the XML-RPC spec's informal string-is-default rule.
		if ee, isEnd := t.(xml.EndElement); isEnd {
			p.unread(ee)
			return rpcvalue.NewString("")
		}
		p.f.Set(rpcvalue.CodeParseError, "expected a value element")
		return nil
	}

	switch {
	case se.Name.Local == "i4" || se.Name.Local == "int":
		text := p.readCharData()
		p.expectEnd(se.Name.Local)
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 32)
		if err != nil {
			p.f.Set(rpcvalue.CodeParseError, "invalid int %q: %v", text, err)
			return nil
		}
		return rpcvalue.NewInt32(int32(n))
	case se.Name.Local == "i8":
		if dialect != DialectApache {
			p.f.Set(rpcvalue.CodeTypeError, "ex:i8 not allowed in this dialect")
			return nil
		}
		text := p.readCharData()
		p.expectEnd("i8")
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			p.f.Set(rpcvalue.CodeParseError, "invalid i8 %q: %v", text, err)
			return nil
		}
		return rpcvalue.NewInt64(n)
	case se.Name.Local == "nil":
		p.expectEnd("nil")
		if dialect != DialectApache {
			p.f.Set(rpcvalue.CodeTypeError, "ex:nil not allowed in this dialect")
			return nil
		}
		return rpcvalue.NewNil()
	case se.Name.Local == "boolean":
		text := strings.TrimSpace(p.readCharData())
		p.expectEnd("boolean")
		return rpcvalue.NewBool(text == "1" || text == "true")
	case se.Name.Local == "double":
		text := strings.TrimSpace(p.readCharData())
		p.expectEnd("double")
		d, err := strconv.ParseFloat(text, 64)
		if err != nil {
			p.f.Set(rpcvalue.CodeParseError, "invalid double %q: %v", text, err)
			return nil
		}
		return rpcvalue.NewDouble(d)
	case se.Name.Local == "string":
		text := p.readCharData()
		p.expectEnd("string")
		return rpcvalue.NewStringLPCR([]byte(text))
	case se.Name.Local == "dateTime.iso8601":
		text := strings.TrimSpace(p.readCharData())
		p.expectEnd("dateTime.iso8601")
		return rpcvalue.NewDateTime(text)
	case se.Name.Local == "base64":
		text := p.readCharData()
		p.expectEnd("base64")
		cleaned := strings.Map(func(r rune) rune {
			if r == '\r' || r == '\n' || r == ' ' || r == '\t' {
				return -1
			}
			return r
		}, text)
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			p.f.Set(rpcvalue.CodeParseError, "invalid base64: %v", err)
			return nil
		}
		return rpcvalue.NewBase64(decoded)
	case se.Name.Local == "array":
		return p.parseArray(dialect)
	case se.Name.Local == "struct":
		return p.parseStruct(dialect)
	default:
		p.f.Set(rpcvalue.CodeParseError, "unrecognized value element <%s>", se.Name.Local)
		return nil
	}
}

func (p *parser) parseArray(dialect Dialect) *rpcvalue.Value {
	if _, ok := p.expectStart("data"); !ok {
		return nil
	}
	arr := rpcvalue.NewArray()
	for {
		t := p.nextSignificant()
		if ee, ok := t.(xml.EndElement); ok && ee.Name.Local == "data" {
			break
		}
		se, ok := t.(xml.StartElement)
		if !ok || se.Name.Local != "value" {
			p.f.Set(rpcvalue.CodeParseError, "expected <value> inside array data")
			return nil
		}
		elem := p.parseValueBody(se, dialect)
		if p.f.Fail {
			return nil
		}
		p.expectEnd("value")
		if p.f.Fail {
			return nil
		}
		rpcvalue.ArrayAppend(arr, elem, p.f)
		rpcvalue.Release(elem)
	}
	p.expectEnd("array")
	if p.f.Fail {
		return nil
	}
	return arr
}

func (p *parser) parseStruct(dialect Dialect) *rpcvalue.Value {
	st := rpcvalue.NewStruct()
	for {
		t := p.nextSignificant()
		if ee, ok := t.(xml.EndElement); ok && ee.Name.Local == "struct" {
			break
		}
		se, ok := t.(xml.StartElement)
		if !ok || se.Name.Local != "member" {
			p.f.Set(rpcvalue.CodeParseError, "expected <member> inside struct")
			return nil
		}
		if _, ok := p.expectStart("name"); !ok {
			return nil
		}
		name := p.readCharData()
		p.expectEnd("name")
		if p.f.Fail {
			return nil
		}
		vse, ok := p.expectStart("value")
		if !ok {
			return nil
		}
		val := p.parseValueBody(vse, dialect)
		if p.f.Fail {
			return nil
		}
		p.expectEnd("value")
		p.expectEnd("member")
		if p.f.Fail {
			return nil
		}
		rpcvalue.StructSet(st, name, val, p.f)
		rpcvalue.Release(val)
	}
	return st
}

// ParseCall decodes a full methodCall document into a method name and its
// params array.
func ParseCall(f *rpcvalue.Fault, data []byte, dialect Dialect) (string, *rpcvalue.Value) {
	p := newParser(f, data)
	if _, ok := p.expectStart("methodCall"); !ok {
		return "", nil
	}
	if _, ok := p.expectStart("methodName"); !ok {
		return "", nil
	}
	name := p.readCharData()
	p.expectEnd("methodName")
	if f.Fail {
		return "", nil
	}
	params := p.parseParams(dialect)
	if f.Fail {
		return "", nil
	}
	p.expectEnd("methodCall")
	if f.Fail {
		return "", nil
	}
	return name, params
}

func (p *parser) parseParams(dialect Dialect) *rpcvalue.Value {
	if _, ok := p.expectStart("params"); !ok {
		return nil
	}
	arr := rpcvalue.NewArray()
	for {
		t := p.nextSignificant()
		if ee, ok := t.(xml.EndElement); ok && ee.Name.Local == "params" {
			break
		}
		se, ok := t.(xml.StartElement)
		if !ok || se.Name.Local != "param" {
			p.f.Set(rpcvalue.CodeParseError, "expected <param> inside params")
			return nil
		}
		vse, ok := p.expectStart("value")
		if !ok {
			return nil
		}
		elem := p.parseValueBody(vse, dialect)
		if p.f.Fail {
			return nil
		}
		p.expectEnd("value")
		p.expectEnd("param")
		if p.f.Fail {
			return nil
		}
		rpcvalue.ArrayAppend(arr, elem, p.f)
		rpcvalue.Release(elem)
	}
	return arr
}

// ParseResponse decodes a full methodResponse document. If the response is
// a fault, isFault is true and fault is populated; otherwise isFault is
// false and result holds the single return value.
func ParseResponse(f *rpcvalue.Fault, data []byte, dialect Dialect) (result *rpcvalue.Value, isFault bool, fault rpcvalue.Fault) {
	p := newParser(f, data)
	if _, ok := p.expectStart("methodResponse"); !ok {
		return nil, false, rpcvalue.Fault{}
	}
	t := p.nextSignificant()
	se, ok := t.(xml.StartElement)
	if !ok {
		f.Set(rpcvalue.CodeParseError, "expected <params> or <fault>")
		return nil, false, rpcvalue.Fault{}
	}
	switch se.Name.Local {
	case "params":
		p.unread(se)
		arr := p.parseParams(dialect)
		if f.Fail {
			return nil, false, rpcvalue.Fault{}
		}
		n := rpcvalue.ArraySize(arr, f)
		if f.Fail || n < 1 {
			f.Set(rpcvalue.CodeParseError, "methodResponse params must have exactly one value")
			return nil, false, rpcvalue.Fault{}
		}
		result = rpcvalue.Acquire(rpcvalue.ArrayGet(arr, 0, f))
		rpcvalue.Release(arr)
		p.expectEnd("methodResponse")
		return result, false, rpcvalue.Fault{}
	case "fault":
		vse, ok := p.expectStart("value")
		if !ok {
			return nil, false, rpcvalue.Fault{}
		}
		st := p.parseValueBody(vse, dialect)
		if f.Fail {
			return nil, false, rpcvalue.Fault{}
		}
		p.expectEnd("value")
		p.expectEnd("fault")
		p.expectEnd("methodResponse")
		if f.Fail {
			return nil, false, rpcvalue.Fault{}
		}
		var code int32
		var msg string
		codeVal := rpcvalue.StructFindByName(st, "faultCode", f)
		if !f.Fail {
			code = rpcvalue.AsInt32(codeVal, f)
		}
		f.Clear()
		msgVal := rpcvalue.StructFindByName(st, "faultString", f)
		if !f.Fail {
			msg = string(rpcvalue.AsString(msgVal, f))
		}
		f.Clear()
		rpcvalue.Release(st)
		return nil, true, rpcvalue.Fault{Fail: true, Code: rpcvalue.Code(code), Message: msg}
	default:
		f.Set(rpcvalue.CodeParseError, "unexpected element <%s> in methodResponse", se.Name.Local)
		return nil, false, rpcvalue.Fault{}
	}
}
