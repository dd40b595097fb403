// Package entity enumerates the structure types a layout plan places.
// The set is closed; per-type metadata lives in a fixed array indexed by Type.
package entity

import "fmt"

// Type is a structure type code.
type Type uint8

const (
	Empty Type = iota
	// Reserved keeps a cell clear for traffic; planning only.
	Reserved
	// Feature marks a controller or source cell; planning only.
	Feature
	Road
	// Container is a resource buffer next to a point of interest.
	Container
	// Link is an energy transfer node.
	Link
	// Extension is the extensible energy store, the bulk of the plan.
	Extension
	Spawn
	// Tower is spread along the perimeter for defence.
	Tower
	Storage
	Terminal
	Factory
	Lab
	PowerSpawn
	Nuker
	// Observer is the one-off converted from the worst extension.
	Observer
	// Extractor sits on the mineral node.
	Extractor

	Count = iota
)

type info struct {
	name string
	char byte // token stream character, always lowercase
	hard bool
}

var table = [Count]info{
	Empty:      {"empty", 'a', false},
	Reserved:   {"reserved", 'q', false},
	Feature:    {"feature", 'g', false},
	Road:       {"road", 'r', false},
	Container:  {"container", 'c', true},
	Link:       {"link", 'l', true},
	Extension:  {"extension", 'e', true},
	Spawn:      {"spawn", 's', true},
	Tower:      {"tower", 't', true},
	Storage:    {"storage", 'o', true},
	Terminal:   {"terminal", 'm', true},
	Factory:    {"factory", 'f', true},
	Lab:        {"lab", 'b', true},
	PowerSpawn: {"powerspawn", 'p', true},
	Nuker:      {"nuker", 'n', true},
	Observer:   {"observer", 'v', true},
	Extractor:  {"extractor", 'x', true},
}

var byChar [256]Type
var byName = map[string]Type{}

func init() {
	for i := range byChar {
		byChar[i] = Count
	}
	for t := Type(0); t < Count; t++ {
		byChar[table[t].char] = t
		byName[table[t].name] = t
	}
}

func (t Type) String() string {
	if t >= Count {
		return fmt.Sprintf("entity(%d)", uint8(t))
	}
	return table[t].name
}

// Char returns the token stream character for t.
func (t Type) Char() byte {
	return table[t].char
}

// Hard reports whether t is a real structure that blocks movement and
// clearance.
func (t Type) Hard() bool {
	return t < Count && table[t].hard
}

// Planned reports whether t belongs in finished output.
func (t Type) Planned() bool {
	return t != Empty && t != Reserved && t != Feature && t < Count
}

// Protected reports whether t is inside the defended region. Links,
// containers and the extractor sit at remote points and are left outside.
func (t Type) Protected() bool {
	switch t {
	case Link, Container, Extractor:
		return false
	}
	return t.Hard()
}

// FromChar maps a lowercase token character back to its type.
func FromChar(c byte) (Type, bool) {
	t := byChar[c]
	return t, t < Count
}

// Parse maps a type name such as "extension" to its type.
func Parse(name string) (Type, error) {
	t, ok := byName[name]
	if !ok {
		return Empty, fmt.Errorf("unknown entity type %q", name)
	}
	return t, nil
}

// Buildable lists every type that may appear in finished output, in code order.
func Buildable() []Type {
	out := make([]Type, 0, Count)
	for t := Type(0); t < Count; t++ {
		if t.Planned() {
			out = append(out, t)
		}
	}
	return out
}
