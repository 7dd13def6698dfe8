package codec

import (
	"fmt"

	"github.com/Nasdaq/nasdaq-protocols/common"
)

// Field describes one member of a RecordDef: its wire name, its TypeDef,
// and the value substituted when the record's builder never set it.
type Field struct {
	Name    string
	Type    TypeDef
	Default any
}

// RecordDef is the ordered list of fields that make up a record: a single
// Go type describes the shape, and Record instances hold the values.
type RecordDef struct {
	Name   string
	Fields []Field

	indexed map[string]Field
}

// NewRecordDef builds a RecordDef and indexes its fields by name.
func NewRecordDef(name string, fields ...Field) *RecordDef {
	rd := &RecordDef{Name: name, Fields: fields, indexed: make(map[string]Field, len(fields))}
	for _, f := range fields {
		rd.indexed[f.Name] = f
	}
	return rd
}

// AsType adapts this definition to the TypeDef interface so records can
// nest inside other records or sit as array elements.
func (rd *RecordDef) AsType() TypeDef { return RecordType{Def: rd} }

// New builds a zero-valued Record for this definition, with every field set
// to its declared default.
func (rd *RecordDef) New() *Record {
	r := &Record{def: rd, values: make(map[string]any, len(rd.Fields))}
	for _, f := range rd.Fields {
		if f.Default != nil {
			r.values[f.Name] = f.Default
		}
	}
	return r
}

// Decode reads one record from the front of data, defensively copying any
// field value that aliases the input (currently just RawBytes fields).
func (rd *RecordDef) Decode(data []byte) (int, *Record, error) {
	return rd.decode(data, false)
}

// DecodeAlt is the zero-copy counterpart of Decode: RawBytes fields alias
// data instead of copying it. Callers must not retain data past the
// current read.
func (rd *RecordDef) DecodeAlt(data []byte) (int, *Record, error) {
	return rd.decode(data, true)
}

func (rd *RecordDef) decode(data []byte, alt bool) (int, *Record, error) {
	r := rd.New()
	offset := 0
	for _, f := range rd.Fields {
		if offset > len(data) {
			return 0, nil, common.Wrap(common.KindInvalidMessage, rd.Name+"."+f.Name+": short buffer", nil)
		}
		n, v, err := decodeField(f.Type, data[offset:], alt)
		if err != nil {
			return 0, nil, common.Wrap(common.KindInvalidMessage, rd.Name+"."+f.Name, err)
		}
		offset += n
		r.values[f.Name] = v
	}
	return offset, r, nil
}

func decodeField(t TypeDef, data []byte, alt bool) (int, any, error) {
	if alt {
		if ad, ok := t.(AltDecoder); ok {
			return ad.DecodeAlt(data)
		}
	}
	return t.Decode(data)
}

// Encode renders r to wire bytes in field-declaration order.
func (rd *RecordDef) Encode(r *Record) (int, []byte, error) {
	var out []byte
	total := 0
	for _, f := range rd.Fields {
		v := r.Get(f.Name)
		n, b, err := f.Type.Encode(v)
		if err != nil {
			return 0, nil, common.Wrap(common.KindTypeMismatch, rd.Name+"."+f.Name, err)
		}
		total += n
		out = append(out, b...)
	}
	return total, out, nil
}

// Record is a decoded or in-progress instance of a RecordDef. Field access
// goes through Get/Set rather than Go struct fields, since a RecordDef's
// field set is only known at runtime.
type Record struct {
	def    *RecordDef
	values map[string]any
}

// Def returns the RecordDef this Record was built from.
func (r *Record) Def() *RecordDef { return r.def }

// Get returns a field's current value, or nil if it was never set and has
// no declared default.
func (r *Record) Get(name string) any {
	if v, ok := r.values[name]; ok {
		return v
	}
	return nil
}

// Set assigns a field by name. It fails with TypeMismatch if name is not
// part of the record's definition.
func (r *Record) Set(name string, v any) error {
	if _, ok := r.def.indexed[name]; !ok {
		return common.Wrap(common.KindTypeMismatch, fmt.Sprintf("%s: no such field %q", r.def.Name, name), nil)
	}
	r.values[name] = v
	return nil
}

// RecordType adapts a RecordDef to the TypeDef interface.
type RecordType struct{ Def *RecordDef }

func (t RecordType) Name() string { return t.Def.Name }

func (t RecordType) Encode(v any) (int, []byte, error) {
	r, ok := v.(*Record)
	if !ok {
		return 0, nil, common.Wrap(common.KindTypeMismatch, t.Def.Name+": expected *Record", nil)
	}
	return t.Def.Encode(r)
}

func (t RecordType) Decode(data []byte) (int, any, error) {
	n, r, err := t.Def.Decode(data)
	return n, r, err
}

func (t RecordType) DecodeAlt(data []byte) (int, any, error) {
	n, r, err := t.Def.DecodeAlt(data)
	return n, r, err
}

// RecordWithPresentBitDef wraps a RecordDef with a leading presence byte:
// absent records encode as a single 0x00 byte and decode as a nil
// *Record.
type RecordWithPresentBitDef struct {
	*RecordDef
}

// NewRecordWithPresentBitDef wraps an existing RecordDef.
func NewRecordWithPresentBitDef(rd *RecordDef) *RecordWithPresentBitDef {
	return &RecordWithPresentBitDef{RecordDef: rd}
}

// AsType adapts this definition to the TypeDef interface.
func (rd *RecordWithPresentBitDef) AsType() TypeDef { return RecordWithPresentBitType{Def: rd} }

// Decode reads the presence byte, then the record if present.
func (rd *RecordWithPresentBitDef) Decode(data []byte) (int, *Record, error) {
	return rd.decode(data, false)
}

// DecodeAlt is the zero-copy counterpart of Decode.
func (rd *RecordWithPresentBitDef) DecodeAlt(data []byte) (int, *Record, error) {
	return rd.decode(data, true)
}

func (rd *RecordWithPresentBitDef) decode(data []byte, alt bool) (int, *Record, error) {
	n, present, err := Bool.Decode(data)
	if err != nil {
		return 0, nil, common.Wrap(common.KindInvalidMessage, rd.Name+": present-bit", err)
	}
	if !present.(bool) {
		return n, nil, nil
	}
	n1, rec, err := rd.RecordDef.decode(data[n:], alt)
	if err != nil {
		return 0, nil, err
	}
	return n + n1, rec, nil
}

// Encode writes the presence byte, then the record if non-nil.
func (rd *RecordWithPresentBitDef) Encode(r *Record) (int, []byte, error) {
	if r == nil {
		n, b, _ := Bool.Encode(false)
		return n, b, nil
	}
	n0, b0, _ := Bool.Encode(true)
	n1, b1, err := rd.RecordDef.Encode(r)
	if err != nil {
		return 0, nil, err
	}
	return n0 + n1, append(b0, b1...), nil
}

// RecordWithPresentBitType adapts a RecordWithPresentBitDef to the TypeDef
// interface. A nil *Record (or a nil any) encodes as absent.
type RecordWithPresentBitType struct{ Def *RecordWithPresentBitDef }

func (t RecordWithPresentBitType) Name() string { return t.Def.Name }

func (t RecordWithPresentBitType) Encode(v any) (int, []byte, error) {
	if v == nil {
		return t.Def.Encode(nil)
	}
	r, ok := v.(*Record)
	if !ok {
		return 0, nil, common.Wrap(common.KindTypeMismatch, t.Def.Name+": expected *Record", nil)
	}
	return t.Def.Encode(r)
}

func (t RecordWithPresentBitType) Decode(data []byte) (int, any, error) {
	n, r, err := t.Def.Decode(data)
	if err != nil {
		return 0, nil, err
	}
	if r == nil {
		return n, nil, nil
	}
	return n, r, nil
}

func (t RecordWithPresentBitType) DecodeAlt(data []byte) (int, any, error) {
	n, r, err := t.Def.DecodeAlt(data)
	if err != nil {
		return 0, nil, err
	}
	if r == nil {
		return n, nil, nil
	}
	return n, r, nil
}

// ArrayDef is a length-prefixed homogeneous array. LengthType defaults to
// Uint16BE if left nil.
type ArrayDef struct {
	Elem       TypeDef
	LengthType TypeDef

	// unwrapped is set when Elem is a RecordWithPresentBitType: array
	// elements are always present (the count already says how many there
	// are), so the presence bit is skipped for array elements too.
	unwrapped TypeDef
}

// NewArrayDef builds an ArrayDef over elem, resolving the
// RecordWithPresentBitType special case once up front.
func NewArrayDef(elem TypeDef, lengthType TypeDef) *ArrayDef {
	if lengthType == nil {
		lengthType = Uint16BE
	}
	ad := &ArrayDef{Elem: elem, LengthType: lengthType}
	if rwp, ok := elem.(RecordWithPresentBitType); ok {
		ad.unwrapped = RecordType{Def: rwp.Def.RecordDef}
	}
	return ad
}

func (a *ArrayDef) elemCodec() TypeDef {
	if a.unwrapped != nil {
		return a.unwrapped
	}
	return a.Elem
}

func (a *ArrayDef) Name() string { return "array<" + a.elemCodec().Name() + ">" }

// Encode writes the length prefix followed by each element in order.
func (a *ArrayDef) Encode(v any) (int, []byte, error) {
	items, ok := v.([]any)
	if !ok {
		return 0, nil, common.Wrap(common.KindTypeMismatch, a.Name()+": expected []any", nil)
	}
	n0, b0, err := a.LengthType.Encode(len(items))
	if err != nil {
		return 0, nil, err
	}
	out := append([]byte{}, b0...)
	total := n0
	elem := a.elemCodec()
	for i, it := range items {
		n, b, err := elem.Encode(it)
		if err != nil {
			return 0, nil, common.Wrap(common.KindTypeMismatch, fmt.Sprintf("%s[%d]", a.Name(), i), err)
		}
		total += n
		out = append(out, b...)
	}
	return total, out, nil
}

// Decode reads the length prefix, then that many elements.
func (a *ArrayDef) Decode(data []byte) (int, any, error) {
	return a.decode(data, false)
}

// DecodeAlt is the zero-copy counterpart of Decode for RawBytes elements.
func (a *ArrayDef) DecodeAlt(data []byte) (int, any, error) {
	return a.decode(data, true)
}

func (a *ArrayDef) decode(data []byte, alt bool) (int, any, error) {
	n, lv, err := a.LengthType.Decode(data)
	if err != nil {
		return 0, nil, err
	}
	length, err := asInt(lv)
	if err != nil {
		return 0, nil, common.Wrap(common.KindInvalidMessage, a.Name()+": bad length", err)
	}
	if length < 0 {
		return 0, nil, common.Wrap(common.KindInvalidMessage, a.Name()+": negative length", nil)
	}
	offset := n
	elem := a.elemCodec()
	out := make([]any, 0, length)
	for i := 0; i < length; i++ {
		if offset > len(data) {
			return 0, nil, common.Wrap(common.KindInvalidMessage, fmt.Sprintf("%s[%d]: short buffer", a.Name(), i), nil)
		}
		en, ev, err := decodeField(elem, data[offset:], alt)
		if err != nil {
			return 0, nil, err
		}
		offset += en
		out = append(out, ev)
	}
	return offset, out, nil
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		return int(n), nil
	}
	return 0, fmt.Errorf("not an integer: %T", v)
}
