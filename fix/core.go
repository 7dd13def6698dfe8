package fix

import (
	"bytes"
	"fmt"
	"strconv"
	"sync"

	"github.com/Nasdaq/nasdaq-protocols/common"
)

// Wire constants shared by the framing and message layers.
const (
	SOH byte = 0x01

	BeginStringTag = 8
	BodyLengthTag  = 9
	ChecksumTag    = 10
	MsgTypeTag     = 35

	HeartbeatMsgType = "0"
	LogonMsgType     = "A"
	LogoutMsgType    = "5"
)

// EntryDef is one indexed member of a SegmentDef: a field or a repeating
// group container, both addressable by tag or name.
type EntryDef interface {
	Tag() int
	Name() string
	EncodeValue(v any) (int, []byte, error)
	DecodeValue(data []byte) (int, any, error)
}

// FieldDef is a single tag/name/type triple. Encoding produces `tag=value`
// with no separator; decoding reads up to the next SOH or end-of-buffer.
type FieldDef struct {
	Tag_  int
	Name_ string
	Type  Type
}

func (f *FieldDef) Tag() int    { return f.Tag_ }
func (f *FieldDef) Name() string { return f.Name_ }

// EncodeValue renders `tag=value` with no trailing separator.
func (f *FieldDef) EncodeValue(v any) (int, []byte, error) {
	n, vb, err := f.Type.ToBytes(v)
	if err != nil {
		return 0, nil, common.Wrap(common.KindTypeMismatch, fmt.Sprintf("%s[%d]", f.Name_, f.Tag_), err)
	}
	prefix := strconv.Itoa(f.Tag_) + "="
	out := append([]byte(prefix), vb[:n]...)
	return len(out), out, nil
}

// DecodeValue parses a `tag=value<SOH>` span at the front of data, where
// data begins exactly at the tag digits. It consumes through the trailing
// SOH if present, or the rest of data if this is the last field in the
// buffer.
func (f *FieldDef) DecodeValue(data []byte) (int, any, error) {
	eq := bytes.IndexByte(data, '=')
	if eq == -1 {
		return 0, nil, common.Wrap(common.KindInvalidMessage, fmt.Sprintf("field %d: missing '='", f.Tag_), nil)
	}
	soh := bytes.IndexByte(data, SOH)
	valueEnd := soh
	total := soh + 1
	if soh == -1 {
		valueEnd = len(data)
		total = valueEnd
	}
	_, v, err := f.Type.FromBytes(data[eq+1 : valueEnd])
	if err != nil {
		return 0, nil, err
	}
	return total, v, nil
}

// GroupContainerDef pairs a count field with the repeating element segment
// definition.
type GroupContainerDef struct {
	Name_     string
	CountTag_ int
	CountName string
	Elem      *SegmentDef
}

func (g *GroupContainerDef) Tag() int    { return g.CountTag_ }
func (g *GroupContainerDef) Name() string { return g.Name_ }

func (g *GroupContainerDef) countField() *FieldDef {
	return &FieldDef{Tag_: g.CountTag_, Name_: g.CountName, Type: Int}
}

// EncodeValue renders the count field followed by each group, SOH-joined.
func (g *GroupContainerDef) EncodeValue(v any) (int, []byte, error) {
	groups, ok := v.([]*Segment)
	if !ok {
		return 0, nil, common.Wrap(common.KindTypeMismatch, g.Name_+": expected []*Segment", nil)
	}
	_, countBytes, err := g.countField().EncodeValue(len(groups))
	if err != nil {
		return 0, nil, err
	}
	parts := [][]byte{countBytes}
	for i, grp := range groups {
		_, gb, err := g.Elem.Encode(grp)
		if err != nil {
			return 0, nil, common.Wrap(common.KindTypeMismatch, fmt.Sprintf("%s[%d]", g.Name_, i), err)
		}
		parts = append(parts, gb)
	}
	out := bytes.Join(parts, []byte{SOH})
	return len(out), out, nil
}

// DecodeValue reads the count, then exactly that many groups. Fewer
// available groups than the count is an error.
func (g *GroupContainerDef) DecodeValue(data []byte) (int, any, error) {
	n, cv, err := g.countField().DecodeValue(data)
	if err != nil {
		return 0, nil, err
	}
	count := cv.(int)
	consumed := n
	data = data[n:]

	groups := make([]*Segment, 0, count)
	for i := 0; i < count && len(data) > 0; i++ {
		gn, grp, err := g.Elem.Decode(data)
		if err != nil {
			return 0, nil, err
		}
		if gn == 0 {
			break // no group fields here: fewer groups than the count
		}
		groups = append(groups, grp)
		data = data[gn:]
		consumed += gn
	}
	if len(groups) != count {
		return 0, nil, common.Wrap(common.KindInvalidMessage,
			fmt.Sprintf("%s: expected %d groups, got %d", g.Name_, count, len(groups)), nil)
	}
	return consumed, groups, nil
}

// SegmentDef is an ordered, tag/name-indexed collection of entries.
// GroupElement marks a definition used as a repeating-group element: its
// Encode iterates Entries in declared order rather than the segment's
// insertion order.
type SegmentDef struct {
	Name        string
	Entries     []EntryDecl
	GroupElement bool

	byTag  map[int]EntryDef
	byName map[string]EntryDef
	required []int
}

// EntryDecl pairs an entry definition with whether it is mandatory.
type EntryDecl struct {
	Def      EntryDef
	Required bool
}

// NewSegmentDef indexes entries by tag and name and records which tags are
// mandatory.
func NewSegmentDef(name string, groupElement bool, entries ...EntryDecl) *SegmentDef {
	sd := &SegmentDef{
		Name:         name,
		Entries:      entries,
		GroupElement: groupElement,
		byTag:        make(map[int]EntryDef, len(entries)),
		byName:       make(map[string]EntryDef, len(entries)),
	}
	for _, e := range entries {
		sd.byTag[e.Def.Tag()] = e.Def
		sd.byName[e.Def.Name()] = e.Def
		if e.Required {
			sd.required = append(sd.required, e.Def.Tag())
		}
	}
	return sd
}

// Lookup resolves an int tag, a string name, or a string-digit subscript
// to its entry definition.
func (sd *SegmentDef) Lookup(tagOrName any) (EntryDef, bool) {
	switch k := tagOrName.(type) {
	case int:
		e, ok := sd.byTag[k]
		return e, ok
	case string:
		if n, err := strconv.Atoi(k); err == nil {
			if e, ok := sd.byTag[n]; ok {
				return e, true
			}
		}
		e, ok := sd.byName[k]
		return e, ok
	}
	return nil, false
}

// Contains reports whether tagOrName names a declared entry.
func (sd *SegmentDef) Contains(tagOrName any) bool {
	_, ok := sd.Lookup(tagOrName)
	return ok
}

// New builds an empty Segment of this definition.
func (sd *SegmentDef) New() *Segment {
	return &Segment{def: sd, values: make(map[int]any)}
}

// Decode reads entries off the front of data until a repeated tag, an
// unknown tag, or end-of-buffer. It never consumes bytes belonging to the
// next segment.
func (sd *SegmentDef) Decode(data []byte) (int, *Segment, error) {
	seg := sd.New()
	consumed := 0
	for len(data) > 0 {
		eq := bytes.IndexByte(data, '=')
		if eq == -1 {
			break
		}
		tag, err := strconv.Atoi(string(data[:eq]))
		if err != nil {
			break
		}
		if _, seen := seg.values[tag]; seen {
			break // repeated tag: end of this segment
		}
		entry, ok := sd.byTag[tag]
		if !ok {
			break // unknown tag: belongs to the next segment
		}
		n, v, err := entry.DecodeValue(data)
		if err != nil {
			return 0, nil, err
		}
		seg.order = append(seg.order, tag)
		seg.values[tag] = v
		data = data[n:]
		consumed += n
	}
	return consumed, seg, nil
}

// Encode renders seg's set fields. A plain segment encodes in the order
// its fields were set; a GroupElement segment encodes in the definition's
// declared order instead.
func (sd *SegmentDef) Encode(seg *Segment) (int, []byte, error) {
	var parts [][]byte
	if sd.GroupElement {
		for _, e := range sd.Entries {
			v, ok := seg.values[e.Def.Tag()]
			if !ok {
				continue
			}
			_, b, err := e.Def.EncodeValue(v)
			if err != nil {
				return 0, nil, err
			}
			parts = append(parts, b)
		}
	} else {
		for _, tag := range seg.order {
			_, b, err := sd.byTag[tag].EncodeValue(seg.values[tag])
			if err != nil {
				return 0, nil, err
			}
			parts = append(parts, b)
		}
	}
	out := bytes.Join(parts, []byte{SOH})
	return len(out), out, nil
}

// Segment is a decoded or in-progress instance of a SegmentDef: an
// insertion-ordered set of tag->value entries.
type Segment struct {
	def    *SegmentDef
	order  []int
	values map[int]any
}

func (s *Segment) Def() *SegmentDef { return s.def }

// Get returns a field or group value by tag or name, or nil if unset.
func (s *Segment) Get(tagOrName any) any {
	entry, ok := s.def.Lookup(tagOrName)
	if !ok {
		return nil
	}
	return s.values[entry.Tag()]
}

// Set assigns a field or group value by tag or name. It fails with
// TypeMismatch if tagOrName is not part of the segment's definition.
func (s *Segment) Set(tagOrName any, v any) error {
	entry, ok := s.def.Lookup(tagOrName)
	if !ok {
		return common.Wrap(common.KindTypeMismatch, fmt.Sprintf("%s: no such tag %v", s.def.Name, tagOrName), nil)
	}
	tag := entry.Tag()
	if _, seen := s.values[tag]; !seen {
		s.order = append(s.order, tag)
	}
	s.values[tag] = v
	return nil
}

// Contains reports whether tag is present in this instance (not merely
// declared in the definition).
func (s *Segment) Contains(tagOrName any) bool {
	entry, ok := s.def.Lookup(tagOrName)
	if !ok {
		return false
	}
	_, present := s.values[entry.Tag()]
	return present
}

// Len returns the number of fields currently set.
func (s *Segment) Len() int { return len(s.values) }

// Validate checks that every required tag is present.
func (s *Segment) Validate() error {
	var missing []string
	for _, tag := range s.def.required {
		if _, ok := s.values[tag]; !ok {
			missing = append(missing, s.def.byTag[tag].Name())
		}
	}
	if len(missing) > 0 {
		return common.Wrap(common.KindMandatoryFieldMissing, fmt.Sprintf("%s: missing %v", s.def.Name, missing), nil)
	}
	return nil
}

// MessageClass describes one registered FIX message: its type code and
// the three segment definitions that make it up.
type MessageClass struct {
	AppName   string
	Name      string
	MsgType   string
	Category  string
	HeaderDef *SegmentDef
	BodyDef   *SegmentDef
	TrailerDef *SegmentDef
}

// New builds an empty Message of this class.
func (mc *MessageClass) New() *Message {
	return &Message{
		class:   mc,
		header:  mc.HeaderDef.New(),
		body:    mc.BodyDef.New(),
		trailer: mc.TrailerDef.New(),
	}
}

// Message is a decoded or in-progress three-segment FIX message.
// Get/Set delegate to the body segment; Header/Body/Trailer give direct
// segment access.
type Message struct {
	class   *MessageClass
	header  *Segment
	body    *Segment
	trailer *Segment
}

func (m *Message) Class() *MessageClass { return m.class }
func (m *Message) Header() *Segment     { return m.header }
func (m *Message) Body() *Segment       { return m.body }
func (m *Message) Trailer() *Segment    { return m.trailer }

func (m *Message) Get(tagOrName any) any          { return m.body.Get(tagOrName) }
func (m *Message) Set(tagOrName any, v any) error { return m.body.Set(tagOrName, v) }

func (m *Message) IsHeartbeat() bool { return m.class.MsgType == HeartbeatMsgType }
func (m *Message) IsLogout() bool    { return m.class.MsgType == LogoutMsgType }

// Validate checks every segment's required tags.
func (m *Message) Validate() error {
	for _, seg := range []*Segment{m.header, m.body, m.trailer} {
		if err := seg.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Encode joins the three segments' bytes with SOH (skipping any that
// produced no bytes) and ensures the result ends with a trailing SOH. The
// result is what a session wraps in its BeginString/BodyLength/MsgType/
// CheckSum framing. Values set on the Header's BeginString/BodyLength/
// MsgType or the Trailer's CheckSum tags are encoded here like any other
// field; the session's framing does not remove them. Direct callers
// that need the fully-framed wire bytes should go through a Session's
// Send, not this method.
func (m *Message) Encode() (int, []byte, error) {
	var nonEmpty [][]byte
	for _, seg := range []*Segment{m.header, m.body, m.trailer} {
		_, b, err := seg.def.Encode(seg)
		if err != nil {
			return 0, nil, err
		}
		if len(b) > 0 {
			nonEmpty = append(nonEmpty, b)
		}
	}
	out := bytes.Join(nonEmpty, []byte{SOH})
	if len(out) == 0 || out[len(out)-1] != SOH {
		out = append(out, SOH)
	}
	return len(out), out, nil
}

// Decode decodes data's Header, Body, and Trailer segments in order for
// an already-resolved class.
func (mc *MessageClass) Decode(data []byte) (int, *Message, error) {
	total := 0
	hn, hdr, err := mc.HeaderDef.Decode(data)
	if err != nil {
		return 0, nil, err
	}
	total += hn
	data = data[hn:]

	bn, body, err := mc.BodyDef.Decode(data)
	if err != nil {
		return 0, nil, err
	}
	total += bn
	data = data[bn:]

	tn, trailer, err := mc.TrailerDef.Decode(data)
	if err != nil {
		return 0, nil, err
	}
	total += tn

	return total, &Message{class: mc, header: hdr, body: body, trailer: trailer}, nil
}

// Registry is a message-type -> MessageClass table. One Registry is
// constructed per application/protocol instance rather than kept as a
// shared package global; see SPEC_FULL.md's "Global mutable registries" note.
type Registry struct {
	mtx sync.Mutex
	byType map[string]*MessageClass
	byName map[string]*MessageClass
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]*MessageClass), byName: make(map[string]*MessageClass)}
}

// Register adds a message class, failing with DuplicateMessage if a
// different class already claims the same message type.
func (r *Registry) Register(mc *MessageClass) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if existing, ok := r.byType[mc.MsgType]; ok && existing.Name != mc.Name {
		return common.Wrap(common.KindDuplicateMessage,
			fmt.Sprintf("fix: type %q already registered to %s, cannot register %s", mc.MsgType, existing.Name, mc.Name), nil)
	}
	r.byType[mc.MsgType] = mc
	r.byName[mc.Name] = mc
	return nil
}

// ByType looks up a registered class by its message type code.
func (r *Registry) ByType(msgType string) (*MessageClass, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	mc, ok := r.byType[msgType]
	return mc, ok
}

// ByName looks up a registered class by its declared name.
func (r *Registry) ByName(name string) (*MessageClass, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	mc, ok := r.byName[name]
	return mc, ok
}

// msgTypeTag locates the `35=` marker and returns its value.
func msgTypeTag(data []byte) (string, bool) {
	marker := []byte("35=")
	idx := bytes.Index(data, marker)
	if idx == -1 {
		return "", false
	}
	start := idx + len(marker)
	end := bytes.IndexByte(data[start:], SOH)
	if end == -1 {
		return "", false
	}
	return string(data[start : start+end]), true
}

// Decode resolves data's concrete message class via the 35= marker and
// decodes it.
func (r *Registry) Decode(data []byte) (int, *Message, error) {
	msgType, ok := msgTypeTag(data)
	if !ok {
		return 0, nil, common.Wrap(common.KindInvalidMessage, "fix: no 35= message type found", nil)
	}
	mc, ok := r.ByType(msgType)
	if !ok {
		return 0, nil, common.Wrap(common.KindUnknownMessage, fmt.Sprintf("fix: unknown message type %q", msgType), nil)
	}
	return mc.Decode(data)
}

// Checksum computes sum(data) mod 256, zero-padded to three ASCII digits.
func Checksum(data []byte) string {
	var sum int
	for _, b := range data {
		sum += int(b)
	}
	return fmt.Sprintf("%03d", sum%256)
}
