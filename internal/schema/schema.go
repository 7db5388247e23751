// Package schema loads and validates declarative register definitions for a
// Modbus device. A schema document is a JSON array of register entries, one
// document per register kind. Loading is strict: unknown fields, unknown
// type tokens, duplicate names and overlapping address ranges all reject the
// whole document.
package schema

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/modmetrics/modmetrics/internal/errors"
	"github.com/modmetrics/modmetrics/internal/types"
)

// RegisterKind distinguishes the protocol read function used for a register.
type RegisterKind int

const (
	// Input registers are read-only (function code 0x04).
	Input RegisterKind = iota
	// Holding registers are read/write (function code 0x03).
	Holding
)

func (k RegisterKind) String() string {
	switch k {
	case Input:
		return "input"
	case Holding:
		return "holding"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DataType determines how raw register words are reinterpreted and how many
// 16-bit words a register spans.
type DataType int

const (
	Uint16 DataType = iota
	Int16
	Uint32
	Int32
	Float32
)

var dataTypeTokens = map[string]DataType{
	"uint16":  Uint16,
	"int16":   Int16,
	"uint32":  Uint32,
	"int32":   Int32,
	"float32": Float32,
}

func (t DataType) String() string {
	switch t {
	case Uint16:
		return "uint16"
	case Int16:
		return "int16"
	case Uint32:
		return "uint32"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Span returns the number of 16-bit words the data type occupies.
func (t DataType) Span() uint16 {
	switch t {
	case Uint32, Int32, Float32:
		return 2
	default:
		return 1
	}
}

// RegisterDefinition describes one register of the device. Definitions are
// loaded once at startup and immutable thereafter.
type RegisterDefinition struct {
	Name    types.RegisterName
	Address uint16
	Kind    RegisterKind
	Type    DataType
	Scale   float64
	Unit    types.Unit
}

// Span returns the number of words this definition occupies.
func (d RegisterDefinition) Span() uint16 {
	return d.Type.Span()
}

// End returns the first address past this definition's range.
func (d RegisterDefinition) End() uint32 {
	return uint32(d.Address) + uint32(d.Span())
}

// rawRegister is the wire format of one schema entry. Scale is a pointer so
// an absent field defaults to 1 while an explicit 0 is rejected.
type rawRegister struct {
	Name    string   `json:"name"`
	Address int64    `json:"address"`
	Type    string   `json:"type"`
	Scale   *float64 `json:"scale,omitempty"`
	Unit    string   `json:"unit,omitempty"`
}

// Load parses one schema document for the given register kind. It returns
// the full definition list or a *errors.SchemaError; a document is never
// partially accepted.
func Load(r io.Reader, document string, kind RegisterKind) ([]RegisterDefinition, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var raw []rawRegister
	if err := dec.Decode(&raw); err != nil {
		return nil, &errors.SchemaError{Document: document, Underlying: fmt.Errorf("malformed document: %w", err)}
	}

	defs := make([]RegisterDefinition, 0, len(raw))
	for _, rr := range raw {
		def, err := fromRaw(rr)
		if err != nil {
			return nil, &errors.SchemaError{Document: document, Register: rr.Name, Underlying: err}
		}
		def.Kind = kind
		defs = append(defs, def)
	}

	if err := validate(defs); err != nil {
		return nil, &errors.SchemaError{Document: document, Underlying: err}
	}
	return defs, nil
}

// LoadFile loads one schema document from disk.
func LoadFile(path string, kind RegisterKind) ([]RegisterDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errors.SchemaError{Document: path, Underlying: err}
	}
	defer f.Close()
	return Load(f, path, kind)
}

func fromRaw(rr rawRegister) (RegisterDefinition, error) {
	if rr.Name == "" {
		return RegisterDefinition{}, errors.ErrEmptyName
	}
	name, err := types.NewRegisterName(rr.Name)
	if err != nil {
		return RegisterDefinition{}, err
	}
	if rr.Address < 0 {
		return RegisterDefinition{}, fmt.Errorf("%w: %d", errors.ErrNegativeAddress, rr.Address)
	}
	if rr.Address > 0xFFFF {
		return RegisterDefinition{}, fmt.Errorf("address %d out of register space", rr.Address)
	}
	dt, ok := dataTypeTokens[rr.Type]
	if !ok {
		return RegisterDefinition{}, fmt.Errorf("%w: %q", errors.ErrUnknownDataType, rr.Type)
	}
	scale := 1.0
	if rr.Scale != nil {
		scale = *rr.Scale
		if scale == 0 {
			return RegisterDefinition{}, fmt.Errorf("scale must be non-zero")
		}
	}
	def := RegisterDefinition{
		Name:    name,
		Address: uint16(rr.Address),
		Type:    dt,
		Scale:   scale,
		Unit:    types.Unit(rr.Unit),
	}
	if def.End() > 0x10000 {
		return RegisterDefinition{}, fmt.Errorf("register spans past end of address space")
	}
	return def, nil
}

// validate rejects duplicate names and overlapping address ranges within one
// kind. The input is not mutated.
func validate(defs []RegisterDefinition) error {
	names := make(map[types.RegisterName]struct{}, len(defs))
	for _, d := range defs {
		if _, dup := names[d.Name]; dup {
			return fmt.Errorf("%w: %q", errors.ErrDuplicateName, d.Name)
		}
		names[d.Name] = struct{}{}
	}

	byAddr := make([]RegisterDefinition, len(defs))
	copy(byAddr, defs)
	// Sorting by kind first keeps same-kind definitions adjacent, so the
	// pairwise scan cannot miss an overlap when both kinds share addresses.
	sort.Slice(byAddr, func(i, j int) bool {
		if byAddr[i].Kind != byAddr[j].Kind {
			return byAddr[i].Kind < byAddr[j].Kind
		}
		return byAddr[i].Address < byAddr[j].Address
	})
	for i := 1; i < len(byAddr); i++ {
		prev, cur := byAddr[i-1], byAddr[i]
		if prev.Kind == cur.Kind && uint32(cur.Address) < prev.End() {
			return fmt.Errorf("%w: %q [%d,%d) and %q [%d,%d)",
				errors.ErrAddressOverlap,
				prev.Name, prev.Address, prev.End(),
				cur.Name, cur.Address, cur.End())
		}
	}
	return nil
}

// Marshal serializes definitions back into the document format, ordered by
// address. Load(Marshal(defs)) yields a definition set equal to defs.
func Marshal(defs []RegisterDefinition) ([]byte, error) {
	sorted := make([]RegisterDefinition, len(defs))
	copy(sorted, defs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })

	raw := make([]rawRegister, 0, len(sorted))
	for _, d := range sorted {
		scale := d.Scale
		raw = append(raw, rawRegister{
			Name:    d.Name.String(),
			Address: int64(d.Address),
			Type:    d.Type.String(),
			Scale:   &scale,
			Unit:    d.Unit.String(),
		})
	}
	return json.MarshalIndent(raw, "", "  ")
}

// Set is the validated union of all register definitions the poller works
// from, across both kinds.
type Set struct {
	defs []RegisterDefinition
}

// NewSet merges per-kind definition lists into one schema. Name uniqueness
// is enforced across the whole set; address overlap is enforced per kind.
func NewSet(lists ...[]RegisterDefinition) (*Set, error) {
	var all []RegisterDefinition
	for _, l := range lists {
		all = append(all, l...)
	}
	if err := validate(all); err != nil {
		return nil, &errors.SchemaError{Document: "merged schema", Underlying: err}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Kind != all[j].Kind {
			return all[i].Kind < all[j].Kind
		}
		return all[i].Address < all[j].Address
	})
	return &Set{defs: all}, nil
}

// Definitions returns the definitions ordered by kind, then address. The
// returned slice must not be mutated.
func (s *Set) Definitions() []RegisterDefinition {
	return s.defs
}

// Len returns the number of definitions in the set.
func (s *Set) Len() int {
	return len(s.defs)
}
