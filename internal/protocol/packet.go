package protocol

import (
	"fmt"

	"github.com/danmuck/rfsensor/internal/protocol/schema"
)

// FieldValue is one populated field in registry order.
type FieldValue struct {
	Name  string
	Kind  schema.Kind
	Value any
}

// Packet is a message value tagged by a registered specification. Values are
// stored with the exact Go type of their kind: int, float64, bool, string or
// uint8 for enums.
type Packet struct {
	spec     *schema.Specification
	values   map[string]any
	Sequence uint32
}

func New() *Packet {
	return &Packet{values: make(map[string]any)}
}

// NewPacket returns a packet with its specification already selected.
func NewPacket(specification string) (*Packet, error) {
	p := New()
	if err := p.SetSpecification(specification); err != nil {
		return nil, err
	}
	return p, nil
}

// MustPacket is NewPacket for registry names known at compile time.
func MustPacket(specification string) *Packet {
	p, err := NewPacket(specification)
	if err != nil {
		panic(err)
	}
	return p
}

// SetSpecification selects the packet's specification. Fields set under a
// previous specification are discarded.
func (p *Packet) SetSpecification(name string) error {
	spec, ok := schema.Lookup(name)
	if !ok {
		return &SchemaError{Specification: name, Reason: "unknown specification"}
	}
	p.spec = spec
	p.values = make(map[string]any, len(spec.Fields))
	return nil
}

// Specification returns the selected specification name or "".
func (p *Packet) Specification() string {
	if p.spec == nil {
		return ""
	}
	return p.spec.Name
}

func (p *Packet) IsPrivate() bool {
	return p.spec != nil && p.spec.Private
}

// Set stores value under field. The specification must be selected first and
// must declare the field; the value must have the field's exact kind.
func (p *Packet) Set(field string, value any) error {
	if p.spec == nil {
		return &SchemaError{Field: field, Reason: "specification not set"}
	}
	fs, ok := p.spec.Field(field)
	if !ok {
		return &SchemaError{Specification: p.spec.Name, Field: field, Reason: "field not declared"}
	}
	if !kindMatches(fs.Kind, value) {
		return &SchemaError{
			Specification: p.spec.Name,
			Field:         field,
			Reason:        fmt.Sprintf("want %s value, got %T", fs.Kind, value),
		}
	}
	p.values[field] = value
	return nil
}

// MustSet panics on a schema violation. It is meant for packets whose fields
// are fixed by the calling code.
func (p *Packet) MustSet(field string, value any) *Packet {
	if err := p.Set(field, value); err != nil {
		panic(err)
	}
	return p
}

func kindMatches(kind schema.Kind, value any) bool {
	switch kind {
	case schema.KindInt:
		_, ok := value.(int)
		return ok
	case schema.KindFloat:
		_, ok := value.(float64)
		return ok
	case schema.KindBool:
		_, ok := value.(bool)
		return ok
	case schema.KindString:
		_, ok := value.(string)
		return ok
	case schema.KindEnum:
		_, ok := value.(uint8)
		return ok
	default:
		return false
	}
}

func (p *Packet) Get(field string) (any, error) {
	if p.spec == nil {
		return nil, &NotSetError{Field: field}
	}
	v, ok := p.values[field]
	if !ok {
		return nil, &NotSetError{Field: field}
	}
	return v, nil
}

func (p *Packet) Int(field string) (int, error) {
	v, err := p.Get(field)
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (p *Packet) Float(field string) (float64, error) {
	v, err := p.Get(field)
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (p *Packet) Bool(field string) (bool, error) {
	v, err := p.Get(field)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Text returns a string field.
func (p *Packet) Text(field string) (string, error) {
	v, err := p.Get(field)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *Packet) Enum(field string) (uint8, error) {
	v, err := p.Get(field)
	if err != nil {
		return 0, err
	}
	return v.(uint8), nil
}

// Missing lists declared fields that have no value.
func (p *Packet) Missing() []string {
	if p.spec == nil {
		return nil
	}
	var missing []string
	for _, f := range p.spec.Fields {
		if _, ok := p.values[f.Name]; !ok {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// GetAll returns every declared field in registry order. It fails unless the
// packet is complete.
func (p *Packet) GetAll() ([]FieldValue, error) {
	if p.spec == nil {
		return nil, &SchemaError{Reason: "specification not set"}
	}
	if missing := p.Missing(); len(missing) > 0 {
		return nil, &IncompleteError{Specification: p.spec.Name, Missing: missing}
	}
	out := make([]FieldValue, 0, len(p.spec.Fields))
	for _, f := range p.spec.Fields {
		out = append(out, FieldValue{Name: f.Name, Kind: f.Kind, Value: p.values[f.Name]})
	}
	return out, nil
}

// Map returns the populated fields keyed by name.
func (p *Packet) Map() map[string]any {
	out := make(map[string]any, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

func (p *Packet) Clone() *Packet {
	c := &Packet{spec: p.spec, Sequence: p.Sequence, values: make(map[string]any, len(p.values))}
	for k, v := range p.values {
		c.values[k] = v
	}
	return c
}
