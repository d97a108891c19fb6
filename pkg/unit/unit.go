// Package unit is the battle unit that recolor scripts read from.
//
// Register binds every field below to a compiler.Parser so scripts can name
// them, together with the faction, gender and body part constants and the
// two custom registers the sprite blitter fills per draw.
package unit

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zurustar/palscript/pkg/compiler"
	"github.com/zurustar/palscript/pkg/compiler/parser"
	"github.com/zurustar/palscript/pkg/program"
)

// Faction values.
const (
	FactionPlayer = iota
	FactionHostile
	FactionNeutral
)

// Gender values.
const (
	GenderMale = iota
	GenderFemale
)

// Body parts drawn separately. The blitter stores the current one in custom
// register CustomBlitPart.
const (
	BlitTorso = iota
	BlitLeftArm
	BlitRightArm
	BlitLegs
	BlitCollapse
	BlitInventory
)

// Custom register indexes.
const (
	CustomBlitPart  = 0
	CustomAnimFrame = 1
)

// Unit is a battle unit.
type Unit struct {
	ID          int
	Health      int
	MaxHealth   int
	Stun        int
	Morale      int
	Armor       int
	Faction     int
	Gender      int
	Rank        int
	Kills       int
	FatalWounds int
	Floating    bool
	AnimFrame   int
}

type field struct {
	name string
	get  program.Accessor[*Unit]
	set  func(*Unit, int)
}

var fields = []field{
	{"id", func(u *Unit) int { return u.ID }, func(u *Unit, v int) { u.ID = v }},
	{"health", func(u *Unit) int { return u.Health }, func(u *Unit, v int) { u.Health = v }},
	{"max_health", func(u *Unit) int { return u.MaxHealth }, func(u *Unit, v int) { u.MaxHealth = v }},
	{"stun", func(u *Unit) int { return u.Stun }, func(u *Unit, v int) { u.Stun = v }},
	{"morale", func(u *Unit) int { return u.Morale }, func(u *Unit, v int) { u.Morale = v }},
	{"armor", func(u *Unit) int { return u.Armor }, func(u *Unit, v int) { u.Armor = v }},
	{"faction", func(u *Unit) int { return u.Faction }, func(u *Unit, v int) { u.Faction = v }},
	{"gender", func(u *Unit) int { return u.Gender }, func(u *Unit, v int) { u.Gender = v }},
	{"rank", func(u *Unit) int { return u.Rank }, func(u *Unit, v int) { u.Rank = v }},
	{"kills", func(u *Unit) int { return u.Kills }, func(u *Unit, v int) { u.Kills = v }},
	{"fatal_wounds", func(u *Unit) int { return u.FatalWounds }, func(u *Unit, v int) { u.FatalWounds = v }},
	{"floating", func(u *Unit) int {
		if u.Floating {
			return 1
		}
		return 0
	}, func(u *Unit, v int) { u.Floating = v != 0 }},
	{"anim_frame", func(u *Unit) int { return u.AnimFrame }, func(u *Unit, v int) { u.AnimFrame = v }},
}

var constants = []struct {
	name  string
	value int
}{
	{"faction_player", FactionPlayer},
	{"faction_hostile", FactionHostile},
	{"faction_neutral", FactionNeutral},
	{"gender_male", GenderMale},
	{"gender_female", GenderFemale},
	{"blit_torso", BlitTorso},
	{"blit_leftarm", BlitLeftArm},
	{"blit_rightarm", BlitRightArm},
	{"blit_legs", BlitLegs},
	{"blit_collapse", BlitCollapse},
	{"blit_inventory", BlitInventory},
}

// Register adds the unit fields, constants and custom registers to p.
func Register(p *compiler.Parser[*Unit]) error {
	for _, f := range fields {
		if err := p.AddFunction(f.name, f.get); err != nil {
			return fmt.Errorf("register unit field: %w", err)
		}
	}
	for _, c := range constants {
		if err := p.AddConst(c.name, c.value); err != nil {
			return fmt.Errorf("register unit constant: %w", err)
		}
	}
	if err := p.AddCustom(CustomBlitPart, "blit_part"); err != nil {
		return fmt.Errorf("register unit custom register: %w", err)
	}
	if err := p.AddCustom(CustomAnimFrame, "anim_frame_custom"); err != nil {
		return fmt.Errorf("register unit custom register: %w", err)
	}
	return nil
}

// NewParser returns a parser with the unit names registered.
func NewParser(name string) (*compiler.Parser[*Unit], error) {
	p := compiler.NewParser[*Unit](name)
	if err := Register(p); err != nil {
		return nil, err
	}
	return p, nil
}

// FieldNames returns the script names of the unit fields.
func FieldNames() []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.name
	}
	return out
}

// Get reads a field by script name.
func (u *Unit) Get(name string) (int, bool) {
	for _, f := range fields {
		if f.name == name {
			return f.get(u), true
		}
	}
	return 0, false
}

// Set writes a field by script name.
func (u *Unit) Set(name string, value int) error {
	for _, f := range fields {
		if f.name == name {
			f.set(u, value)
			return nil
		}
	}
	return fmt.Errorf("unknown unit field %q", name)
}

// Apply parses "field=value" assignments and sets them on u. Values may be
// numbers or constant names such as faction_hostile.
func (u *Unit) Apply(assignments []string) error {
	return u.ApplyWith(assignments, nil)
}

// ApplyWith is Apply with extra constants, such as a ruleset's, looked up
// through constant after the built-in ones.
func (u *Unit) ApplyWith(assignments []string, constant func(name string) (int, bool)) error {
	for _, a := range assignments {
		name, raw, ok := strings.Cut(a, "=")
		if !ok {
			return fmt.Errorf("invalid assignment %q: expected field=value", a)
		}
		name, raw = strings.TrimSpace(name), strings.TrimSpace(raw)
		v, err := parseValue(raw, constant)
		if err != nil {
			return fmt.Errorf("invalid assignment %q: %w", a, err)
		}
		if err := u.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

// parseValue accepts the same number syntax as scripts.
func parseValue(s string, constant func(string) (int, bool)) (int, error) {
	for _, c := range constants {
		if c.name == s {
			return c.value, nil
		}
	}
	switch s {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	if constant != nil {
		if v, ok := constant(s); ok {
			return v, nil
		}
	}
	v, err := parser.ParseNumber(s)
	if err != nil {
		return 0, fmt.Errorf("not a number or constant: %s", s)
	}
	return v, nil
}

// String lists the non-zero fields.
func (u *Unit) String() string {
	var parts []string
	for _, f := range fields {
		if v := f.get(u); v != 0 {
			parts = append(parts, f.name+"="+strconv.Itoa(v))
		}
	}
	sort.Strings(parts)
	return "unit{" + strings.Join(parts, " ") + "}"
}
