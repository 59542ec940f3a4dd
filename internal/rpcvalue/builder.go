package rpcvalue

// Builder / accessor: a compact, format-string-driven API for constructing
// and decomposing value graphs. Recognized format characters:
//
//	i  int32            I  int64             b  bool
//	d  double           s  string            8  dateTime string
//	6  base64 ([]byte)  n  nil (no arg)
//	( ... )  array      { s:X, s:X, ... }  struct
//	A  pre-built array  S  pre-built struct  V  any pre-built value
//
// Build consumes args in format order; Decode binds outs (pointers) in the
// same order. Both set a fault and stop at the first mismatch. Decode does
// not roll back: outputs bound before the mismatch keep their decoded
// values, and only the outputs after it are left untouched.

type builder struct {
	f      *Fault
	format string
	pos    int
	args   []any
	argPos int
}

// Build constructs a Value graph from format and args. On mismatch it sets
// f and returns nil.
func Build(f *Fault, format string, args ...any) *Value {
	b := &builder{f: f, format: format, args: args}
	v := b.parseOne()
	if f.Fail {
		return nil
	}
	b.skipSeparators()
	if b.pos != len(b.format) {
		f.Set(CodeTypeError, "trailing characters in build format %q", format)
		return nil
	}
	if b.argPos != len(args) {
		f.Set(CodeTypeError, "build format %q did not consume all arguments", format)
		return nil
	}
	return v
}

func (b *builder) skipSeparators() {
	for b.pos < len(b.format) {
		switch b.format[b.pos] {
		case ' ', ',', '\t', '\n':
			b.pos++
		default:
			return
		}
	}
}

func (b *builder) nextArg() any {
	if b.argPos >= len(b.args) {
		b.f.Set(CodeTypeError, "build format %q expects more arguments than given", b.format)
		return nil
	}
	a := b.args[b.argPos]
	b.argPos++
	return a
}

func (b *builder) parseOne() *Value {
	b.skipSeparators()
	if b.f.Fail || b.pos >= len(b.format) {
		b.f.Set(CodeTypeError, "build format %q ended unexpectedly", b.format)
		return nil
	}
	c := b.format[b.pos]
	b.pos++
	switch c {
	case 'i':
		n, ok := b.nextArg().(int32)
		if !ok {
			b.f.Set(CodeTypeError, "build format 'i' expects int32 argument")
			return nil
		}
		return NewInt32(n)
	case 'I':
		n, ok := b.nextArg().(int64)
		if !ok {
			b.f.Set(CodeTypeError, "build format 'I' expects int64 argument")
			return nil
		}
		return NewInt64(n)
	case 'b':
		v, ok := b.nextArg().(bool)
		if !ok {
			b.f.Set(CodeTypeError, "build format 'b' expects bool argument")
			return nil
		}
		return NewBool(v)
	case 'd':
		v, ok := b.nextArg().(float64)
		if !ok {
			b.f.Set(CodeTypeError, "build format 'd' expects float64 argument")
			return nil
		}
		return NewDouble(v)
	case 's':
		s, ok := b.nextArg().(string)
		if !ok {
			b.f.Set(CodeTypeError, "build format 's' expects string argument")
			return nil
		}
		return NewString(s)
	case '8':
		s, ok := b.nextArg().(string)
		if !ok {
			b.f.Set(CodeTypeError, "build format '8' expects dateTime string argument")
			return nil
		}
		return NewDateTime(s)
	case '6':
		p, ok := b.nextArg().([]byte)
		if !ok {
			b.f.Set(CodeTypeError, "build format '6' expects []byte argument")
			return nil
		}
		return NewBase64(p)
	case 'n':
		return NewNil()
	case 'A':
		v, ok := b.nextArg().(*Value)
		if !ok || v.kind.Kind != KindArray {
			b.f.Set(CodeTypeError, "build format 'A' expects a pre-built array value")
			return nil
		}
		return Acquire(v)
	case 'S':
		v, ok := b.nextArg().(*Value)
		if !ok || v.kind.Kind != KindStruct {
			b.f.Set(CodeTypeError, "build format 'S' expects a pre-built struct value")
			return nil
		}
		return Acquire(v)
	case 'V':
		v, ok := b.nextArg().(*Value)
		if !ok {
			b.f.Set(CodeTypeError, "build format 'V' expects a pre-built value")
			return nil
		}
		return Acquire(v)
	case '(':
		arr := NewArray()
		for {
			b.skipSeparators()
			if b.pos < len(b.format) && b.format[b.pos] == ')' {
				b.pos++
				return arr
			}
			elem := b.parseOne()
			if b.f.Fail {
				return nil
			}
			ArrayAppend(arr, elem, b.f)
			Release(elem)
		}
	case '{':
		st := NewStruct()
		for {
			b.skipSeparators()
			if b.pos < len(b.format) && b.format[b.pos] == '}' {
				b.pos++
				return st
			}
			if b.pos+1 >= len(b.format) || b.format[b.pos] != 's' || b.format[b.pos+1] != ':' {
				b.f.Set(CodeTypeError, "build format %q: struct member must start with 's:'", b.format)
				return nil
			}
			b.pos += 2
			name, ok := b.nextArg().(string)
			if !ok {
				b.f.Set(CodeTypeError, "build format 's:' expects a string member name argument")
				return nil
			}
			val := b.parseOne()
			if b.f.Fail {
				return nil
			}
			StructSet(st, name, val, b.f)
			Release(val)
		}
	default:
		b.f.Set(CodeTypeError, "unrecognized build format character %q", string(c))
		return nil
	}
}

// Decode walks format against v, binding each placeholder to the pointer in
// outs at the matching position. Supported output pointer types mirror
// Build's argument types: *int32, *int64, *bool, *float64, *string (for
// both 's' and '8'), *[]byte (for '6'), and **Value (for 'A', 'S', 'V').
// On mismatch it sets f and stops. Outputs bound before the mismatch keep
// their decoded values, a scalar output whose value has the wrong kind is
// set to its zero value, and outputs after the mismatch are untouched.
func Decode(f *Fault, format string, v *Value, outs ...any) {
	d := &decoder{f: f, format: format, outs: outs}
	d.decodeOne(v)
	if f.Fail {
		return
	}
	d.skipSeparators()
	if d.pos != len(d.format) {
		f.Set(CodeTypeError, "trailing characters in decode format %q", format)
		return
	}
	if d.outPos != len(outs) {
		f.Set(CodeTypeError, "decode format %q did not bind all outputs", format)
	}
}

type decoder struct {
	f      *Fault
	format string
	pos    int
	outs   []any
	outPos int
}

func (d *decoder) skipSeparators() {
	for d.pos < len(d.format) {
		switch d.format[d.pos] {
		case ' ', ',', '\t', '\n':
			d.pos++
		default:
			return
		}
	}
}

func (d *decoder) nextOut() any {
	if d.outPos >= len(d.outs) {
		d.f.Set(CodeTypeError, "decode format %q expects more outputs than given", d.format)
		return nil
	}
	o := d.outs[d.outPos]
	d.outPos++
	return o
}

func (d *decoder) decodeOne(v *Value) {
	d.skipSeparators()
	if d.f.Fail || d.pos >= len(d.format) {
		d.f.Set(CodeTypeError, "decode format %q ended unexpectedly", d.format)
		return
	}
	c := d.format[d.pos]
	d.pos++
	switch c {
	case 'i':
		out, ok := d.nextOut().(*int32)
		if !ok {
			d.f.Set(CodeTypeError, "decode format 'i' expects *int32 output")
			return
		}
		*out = AsInt32(v, d.f)
	case 'I':
		out, ok := d.nextOut().(*int64)
		if !ok {
			d.f.Set(CodeTypeError, "decode format 'I' expects *int64 output")
			return
		}
		*out = AsInt64(v, d.f)
	case 'b':
		out, ok := d.nextOut().(*bool)
		if !ok {
			d.f.Set(CodeTypeError, "decode format 'b' expects *bool output")
			return
		}
		*out = AsBool(v, d.f)
	case 'd':
		out, ok := d.nextOut().(*float64)
		if !ok {
			d.f.Set(CodeTypeError, "decode format 'd' expects *float64 output")
			return
		}
		*out = AsDouble(v, d.f)
	case 's':
		out, ok := d.nextOut().(*string)
		if !ok {
			d.f.Set(CodeTypeError, "decode format 's' expects *string output")
			return
		}
		*out = string(AsString(v, d.f))
	case '8':
		out, ok := d.nextOut().(*string)
		if !ok {
			d.f.Set(CodeTypeError, "decode format '8' expects *string output")
			return
		}
		*out = AsDateTime(v, d.f)
	case '6':
		out, ok := d.nextOut().(*[]byte)
		if !ok {
			d.f.Set(CodeTypeError, "decode format '6' expects *[]byte output")
			return
		}
		*out = AsBase64(v, d.f)
	case 'n':
		if v.kind.Kind != KindNil {
			d.f.Set(CodeTypeError, "value is of type %s, not nil", v.kind.Kind)
		}
	case 'A', 'S', 'V':
		out, ok := d.nextOut().(**Value)
		if !ok {
			d.f.Set(CodeTypeError, "decode format %q expects **Value output", string(c))
			return
		}
		*out = v
	case '(':
		if v.kind.Kind != KindArray {
			d.f.Set(CodeTypeError, "value is of type %s, not array", v.kind.Kind)
			return
		}
		idx := 0
		for {
			d.skipSeparators()
			if d.pos < len(d.format) && d.format[d.pos] == ')' {
				d.pos++
				return
			}
			elem := ArrayGet(v, idx, d.f)
			if d.f.Fail {
				return
			}
			d.decodeOne(elem)
			if d.f.Fail {
				return
			}
			idx++
		}
	case '{':
		if v.kind.Kind != KindStruct {
			d.f.Set(CodeTypeError, "value is of type %s, not struct", v.kind.Kind)
			return
		}
		idx := 0
		for {
			d.skipSeparators()
			if d.pos < len(d.format) && d.format[d.pos] == '}' {
				d.pos++
				return
			}
			if d.pos+1 >= len(d.format) || d.format[d.pos] != 's' || d.format[d.pos+1] != ':' {
				d.f.Set(CodeTypeError, "decode format %q: struct member must start with 's:'", d.format)
				return
			}
			d.pos += 2
			nameOut, ok := d.nextOut().(*string)
			if !ok {
				d.f.Set(CodeTypeError, "decode format 's:' expects *string member-name output")
				return
			}
			member := StructMemberAt(v, idx, d.f)
			if d.f.Fail {
				return
			}
			idx++
			*nameOut = member.Name
			d.decodeOne(member.Value)
			if d.f.Fail {
				return
			}
		}
	default:
		d.f.Set(CodeTypeError, "unrecognized decode format character %q", string(c))
	}
}
