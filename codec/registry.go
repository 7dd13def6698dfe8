package codec

import (
	"fmt"
	"sync"

	"github.com/Nasdaq/nasdaq-protocols/common"
)

// Direction distinguishes messages a client sends from messages it
// receives. Direction does not participate in the duplicate-registration
// check or decode dispatch -- both key on (app, indicator) alone -- it
// exists so callers can enumerate "every outgoing class of this
// application" separately from incoming ones.
type Direction int

const (
	Incoming Direction = iota
	Outgoing
)

func (d Direction) String() string {
	if d == Outgoing {
		return "outgoing"
	}
	return "incoming"
}

// MessageClass is a registered message type within an application
// namespace: its wire id, the TypeDef that reads/writes that id, and the
// RecordDef describing its body.
type MessageClass struct {
	AppName   string
	Name      string
	MsgID     any
	IDType    TypeDef
	BodyDef   *RecordDef
	Direction Direction
}

// New builds a zero-valued Message of this class.
func (mc *MessageClass) New() *Message {
	return &Message{class: mc, record: mc.BodyDef.New()}
}

// Message is a decoded or in-progress instance of a MessageClass: a message
// id plus a body record, with Get/Set delegating straight to the body.
type Message struct {
	class  *MessageClass
	record *Record
}

func (m *Message) Class() *MessageClass         { return m.class }
func (m *Message) Record() *Record              { return m.record }
func (m *Message) Get(name string) any          { return m.record.Get(name) }
func (m *Message) Set(name string, v any) error { return m.record.Set(name, v) }

// Encode renders the message id followed by its body.
func (m *Message) Encode() (int, []byte, error) {
	n0, b0, err := m.class.IDType.Encode(m.class.MsgID)
	if err != nil {
		return 0, nil, err
	}
	n1, b1, err := m.class.BodyDef.Encode(m.record)
	if err != nil {
		return 0, nil, err
	}
	return n0 + n1, append(b0, b1...), nil
}

// Registry is the (app, id) -> MessageClass lookup table. A fresh
// Registry is constructed per application/protocol instance rather than
// kept as a package global; see SPEC_FULL.md's "Global mutable registries"
// note.
type Registry struct {
	mtx    sync.Mutex
	byID   map[string]map[any]*MessageClass
	byName map[string]map[string]*MessageClass
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]map[any]*MessageClass),
		byName: make(map[string]map[string]*MessageClass),
	}
}

// Register adds a message class to the app namespace appName. It fails
// with DuplicateMessage if a different class already claims the same
// (app, id) key -- duplication is keyed on id alone, independent of
// direction.
func (r *Registry) Register(appName, name string, msgID any, idType TypeDef, bodyDef *RecordDef, dir Direction) (*MessageClass, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if r.byID[appName] == nil {
		r.byID[appName] = make(map[any]*MessageClass)
		r.byName[appName] = make(map[string]*MessageClass)
	}
	if existing, ok := r.byID[appName][msgID]; ok && existing.Name != name {
		return nil, common.Wrap(common.KindDuplicateMessage,
			fmt.Sprintf("%s: id %v already registered to %s, cannot register %s", appName, msgID, existing.Name, name), nil)
	}
	mc := &MessageClass{AppName: appName, Name: name, MsgID: msgID, IDType: idType, BodyDef: bodyDef, Direction: dir}
	r.byID[appName][msgID] = mc
	r.byName[appName][name] = mc
	return mc, nil
}

// ByName looks up a registered class by its declared name.
func (r *Registry) ByName(appName, name string) (*MessageClass, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	mc, ok := r.byName[appName][name]
	return mc, ok
}

// ByID looks up a registered class by its wire id.
func (r *Registry) ByID(appName string, id any) (*MessageClass, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	mc, ok := r.byID[appName][id]
	return mc, ok
}

// Classes returns every class registered under appName.
func (r *Registry) Classes(appName string) []*MessageClass {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	out := make([]*MessageClass, 0, len(r.byName[appName]))
	for _, mc := range r.byName[appName] {
		out = append(out, mc)
	}
	return out
}

// ClassesByDirection returns every class registered under appName matching
// dir.
func (r *Registry) ClassesByDirection(appName string, dir Direction) []*MessageClass {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	out := make([]*MessageClass, 0, len(r.byName[appName]))
	for _, mc := range r.byName[appName] {
		if mc.Direction == dir {
			out = append(out, mc)
		}
	}
	return out
}

// Decode reads a message id with idType, looks the class up in appName's
// namespace, and decodes its body. It fails with UnknownMessage if no class
// claims the decoded id.
func (r *Registry) Decode(appName string, idType TypeDef, data []byte) (int, *Message, error) {
	n, idv, err := idType.Decode(data)
	if err != nil {
		return 0, nil, err
	}
	mc, ok := r.ByID(appName, idv)
	if !ok {
		return 0, nil, common.Wrap(common.KindUnknownMessage, fmt.Sprintf("%s: unknown message id %v", appName, idv), nil)
	}
	n1, rec, err := mc.BodyDef.Decode(data[n:])
	if err != nil {
		return 0, nil, err
	}
	return n + n1, &Message{class: mc, record: rec}, nil
}
