package rpcvalue

import (
	"strings"
	"sync/atomic"
)

// Kind is the tag of a Value's tagged variant.
type Kind int

const (
	KindInt32 Kind = iota
	KindInt64
	KindBool
	KindDouble
	KindString
	KindDateTime
	KindBase64
	KindArray
	KindStruct
	KindNil
)

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindBool:
		return "bool"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindDateTime:
		return "dateTime"
	case KindBase64:
		return "base64"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	case KindNil:
		return "nil"
	default:
		return "unknown"
	}
}

// Member is one (name, Value) pair of a Struct. Names may repeat; lookup
// returns the first match.
type Member struct {
	Name  string
	Value *Value
}

// Value is a tagged variant covering every XML-RPC scalar and container
// kind. Values form a DAG with shared ownership: the same *Value may be
// referenced from more than one container. refcount tracks that sharing;
// because release can race across threads, it is manipulated with atomic
// ops only. Values are built bottom-up, so cycles cannot occur.
type Value struct {
	kind refcountedKind
}

type refcountedKind struct {
	Kind Kind

	i32 int32
	i64 int64
	b   bool
	f64 float64

	// str holds the payload for String, DateTime and Base64.
	// - String: the final (already EOL-normalized, unless CR-preserving)
	//   UTF-8 bytes, NUL permitted.
	// - DateTime: the canonical YYYYMMDDThh:mm:ss bytes.
	// - Base64: the decoded opaque bytes.
	str []byte

	arr []*Value
	st  []Member

	refs int32
}

func newValue(rk refcountedKind) *Value {
	rk.refs = 1
	return &Value{kind: rk}
}

// Acquire increments the shared-ownership refcount and returns v, so callers
// can write `held := rpcvalue.Acquire(v)`.
func Acquire(v *Value) *Value {
	atomic.AddInt32(&v.kind.refs, 1)
	return v
}

// Release decrements the shared-ownership refcount. The last release is
// where a real implementation would free payload memory; Go's GC makes
// that automatic once refs reaches zero and no reference survives, so
// Release here exists to preserve the acquire/release discipline callers
// must follow: never release a Value while another holder still expects
// it to be alive.
func Release(v *Value) {
	atomic.AddInt32(&v.kind.refs, -1)
}

// RefCount reports the current shared-ownership count, chiefly for tests.
func RefCount(v *Value) int32 {
	return atomic.LoadInt32(&v.kind.refs)
}

// TypeOf returns v's variant tag.
func TypeOf(v *Value) Kind {
	return v.kind.Kind
}

// --- Constructors ---

func NewInt32(n int32) *Value { return newValue(refcountedKind{Kind: KindInt32, i32: n}) }
func NewInt64(n int64) *Value { return newValue(refcountedKind{Kind: KindInt64, i64: n}) }
func NewBool(b bool) *Value   { return newValue(refcountedKind{Kind: KindBool, b: b}) }
func NewDouble(f float64) *Value {
	return newValue(refcountedKind{Kind: KindDouble, f64: f})
}
func NewNil() *Value { return newValue(refcountedKind{Kind: KindNil}) }

// normalizeEOL converts bare CR and CRLF to LF at construction time. LF
// alone passes through unchanged.
func normalizeEOL(s string) string {
	if !strings.ContainsRune(s, '\r') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\r' {
			b.WriteByte('\n')
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// NewString constructs a string value (the normal, normalizing
// constructor): bare CR and CRLF collapse to LF.
func NewString(s string) *Value {
	return newValue(refcountedKind{Kind: KindString, str: []byte(normalizeEOL(s))})
}

// NewStringLP is the length-prefixed flavor of NewString: the payload may
// contain embedded NUL bytes, which NewString (a Go string, already 8-bit
// clean) also supports, so the two behave identically in this port. It
// exists to preserve a two-constructor surface for callers that build from
// a raw byte slice rather than a string.
func NewStringLP(p []byte) *Value {
	return newValue(refcountedKind{Kind: KindString, str: []byte(normalizeEOL(string(p)))})
}

// NewStringLPCR is the CR-preserving constructor: no EOL normalization is
// performed. Any CR that survives into serialization is emitted as the
// numeric character reference &#x0d;.
func NewStringLPCR(p []byte) *Value {
	cp := make([]byte, len(p))
	copy(cp, p)
	return newValue(refcountedKind{Kind: KindString, str: cp})
}

// NewDateTime constructs a DateTime value holding s exactly as given. The
// canonical form is YYYYMMDDThh:mm:ss, but s is not checked against it and
// other ISO-8601 forms are not normalized, here or in rpcxml's parser
// (which passes the element text through with surrounding space trimmed).
func NewDateTime(s string) *Value {
	return newValue(refcountedKind{Kind: KindDateTime, str: []byte(s)})
}

// NewBase64 constructs a Base64 value from already-decoded opaque bytes:
// the payload is stored decoded, and re-encoded only at serialization.
func NewBase64(p []byte) *Value {
	cp := make([]byte, len(p))
	copy(cp, p)
	return newValue(refcountedKind{Kind: KindBase64, str: cp})
}

// NewArray constructs an empty array. Use ArrayAppend to populate it.
func NewArray() *Value {
	return newValue(refcountedKind{Kind: KindArray})
}

// NewArrayFrom constructs an array from pre-built elements, acquiring a
// reference to each (the DAG now shares ownership with the caller).
func NewArrayFrom(elems ...*Value) *Value {
	arr := make([]*Value, len(elems))
	for i, e := range elems {
		arr[i] = Acquire(e)
	}
	return newValue(refcountedKind{Kind: KindArray, arr: arr})
}

// NewStruct constructs an empty struct. Use StructSet to populate it.
func NewStruct() *Value {
	return newValue(refcountedKind{Kind: KindStruct})
}

// --- Accessors ---

// AsInt32 returns the Int32 payload, or sets TYPE_ERROR on f.
func AsInt32(v *Value, f *Fault) int32 {
	if v.kind.Kind != KindInt32 {
		f.Set(CodeTypeError, "value is of type %s, not int32", v.kind.Kind)
		return 0
	}
	return v.kind.i32
}

// AsInt64 returns the Int64 payload, or sets TYPE_ERROR on f.
func AsInt64(v *Value, f *Fault) int64 {
	if v.kind.Kind != KindInt64 {
		f.Set(CodeTypeError, "value is of type %s, not int64", v.kind.Kind)
		return 0
	}
	return v.kind.i64
}

// AsBool returns the Bool payload, or sets TYPE_ERROR on f.
func AsBool(v *Value, f *Fault) bool {
	if v.kind.Kind != KindBool {
		f.Set(CodeTypeError, "value is of type %s, not bool", v.kind.Kind)
		return false
	}
	return v.kind.b
}

// AsDouble returns the Double payload, or sets TYPE_ERROR on f.
func AsDouble(v *Value, f *Fault) float64 {
	if v.kind.Kind != KindDouble {
		f.Set(CodeTypeError, "value is of type %s, not double", v.kind.Kind)
		return 0
	}
	return v.kind.f64
}

// AsString returns the String payload as a borrowed view bounded by v's
// lifetime, or sets TYPE_ERROR on f.
func AsString(v *Value, f *Fault) []byte {
	if v.kind.Kind != KindString {
		f.Set(CodeTypeError, "value is of type %s, not string", v.kind.Kind)
		return nil
	}
	return v.kind.str
}

// AsDateTime returns the canonical YYYYMMDDThh:mm:ss payload, or sets
// TYPE_ERROR on f.
func AsDateTime(v *Value, f *Fault) string {
	if v.kind.Kind != KindDateTime {
		f.Set(CodeTypeError, "value is of type %s, not dateTime", v.kind.Kind)
		return ""
	}
	return string(v.kind.str)
}

// AsBase64 returns the decoded payload bytes, or sets TYPE_ERROR on f.
func AsBase64(v *Value, f *Fault) []byte {
	if v.kind.Kind != KindBase64 {
		f.Set(CodeTypeError, "value is of type %s, not base64", v.kind.Kind)
		return nil
	}
	return v.kind.str
}

// --- Array operations ---

// ArraySize returns the number of elements, or sets TYPE_ERROR on f.
func ArraySize(v *Value, f *Fault) int {
	if v.kind.Kind != KindArray {
		f.Set(CodeTypeError, "value is of type %s, not array", v.kind.Kind)
		return 0
	}
	return len(v.kind.arr)
}

// ArrayGet returns the element at index i, or sets INDEX_ERROR/TYPE_ERROR.
func ArrayGet(v *Value, i int, f *Fault) *Value {
	if v.kind.Kind != KindArray {
		f.Set(CodeTypeError, "value is of type %s, not array", v.kind.Kind)
		return nil
	}
	if i < 0 || i >= len(v.kind.arr) {
		f.Set(CodeIndexError, "array index %d out of range [0,%d)", i, len(v.kind.arr))
		return nil
	}
	return v.kind.arr[i]
}

// ArrayAppend appends elem to v's array, acquiring a reference to it.
func ArrayAppend(v *Value, elem *Value, f *Fault) {
	if v.kind.Kind != KindArray {
		f.Set(CodeTypeError, "value is of type %s, not array", v.kind.Kind)
		return
	}
	v.kind.arr = append(v.kind.arr, Acquire(elem))
}

// --- Struct operations ---

// StructSize returns the number of members, or sets TYPE_ERROR on f.
func StructSize(v *Value, f *Fault) int {
	if v.kind.Kind != KindStruct {
		f.Set(CodeTypeError, "value is of type %s, not struct", v.kind.Kind)
		return 0
	}
	return len(v.kind.st)
}

// StructFindByName returns the first member's value with the given name,
// or sets NO_SUCH_MEMBER/TYPE_ERROR.
func StructFindByName(v *Value, name string, f *Fault) *Value {
	if v.kind.Kind != KindStruct {
		f.Set(CodeTypeError, "value is of type %s, not struct", v.kind.Kind)
		return nil
	}
	for _, m := range v.kind.st {
		if m.Name == name {
			return m.Value
		}
	}
	f.Set(CodeNoSuchMember, "struct has no member %q", name)
	return nil
}

// StructMemberAt returns the i'th (name, value) pair in insertion order, or
// sets INDEX_ERROR/TYPE_ERROR.
func StructMemberAt(v *Value, i int, f *Fault) Member {
	if v.kind.Kind != KindStruct {
		f.Set(CodeTypeError, "value is of type %s, not struct", v.kind.Kind)
		return Member{}
	}
	if i < 0 || i >= len(v.kind.st) {
		f.Set(CodeIndexError, "struct index %d out of range [0,%d)", i, len(v.kind.st))
		return Member{}
	}
	return v.kind.st[i]
}

// StructSet appends a new member, or replaces the value of the first
// existing member with that name. The name must be non-empty with no
// XML-forbidden control characters; violations set TYPE_ERROR.
func StructSet(v *Value, name string, val *Value, f *Fault) {
	if v.kind.Kind != KindStruct {
		f.Set(CodeTypeError, "value is of type %s, not struct", v.kind.Kind)
		return
	}
	if !validMemberName(name) {
		f.Set(CodeTypeError, "invalid struct member name %q", name)
		return
	}
	for i, m := range v.kind.st {
		if m.Name == name {
			Release(m.Value)
			v.kind.st[i].Value = Acquire(val)
			return
		}
	}
	v.kind.st = append(v.kind.st, Member{Name: name, Value: Acquire(val)})
}

// validMemberName enforces a non-empty name with no XML-forbidden control
// characters (the C0 control range other than tab/LF/CR, which XML 1.0
// cannot represent even escaped).
func validMemberName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x20 && c != '\t' && c != '\n' && c != '\r' {
			return false
		}
	}
	return true
}
