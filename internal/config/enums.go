package config

import (
	"fmt"
	"strconv"
)

// System selects which solver a run drives.
type System int

const (
	SystemRing System = iota
	SystemParticle
)

var systemNames = []string{"ring", "particle"}

func (s System) String() string { return enumString(systemNames, int(s)) }

// UnmarshalText parses a system name
func (s *System) UnmarshalText(text []byte) error {
	v, err := parseEnum("system", systemNames, string(text))
	*s = System(v)
	return err
}

func (s System) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Boundary is the boundary regime of the domain.
type Boundary int

const (
	Periodic Boundary = iota
	OpenFlow
	Invagination
)

var boundaryNames = []string{"periodic", "open_flow", "invagination"}

func (b Boundary) String() string { return enumString(boundaryNames, int(b)) }

// UnmarshalText parses a boundary name
func (b *Boundary) UnmarshalText(text []byte) error {
	v, err := parseEnum("boundary", boundaryNames, string(text))
	*b = Boundary(v)
	return err
}

func (b Boundary) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// AreaPotential selects the ring shape potential.
type AreaPotential int

const (
	Format AreaPotential = iota
	TargetPerimeter
	TargetArea
	TargetAreaAndFormat
)

var areaPotentialNames = []string{"format", "target_perimeter", "target_area", "target_area_and_format"}

func (a AreaPotential) String() string { return enumString(areaPotentialNames, int(a)) }

// UnmarshalText parses an area potential name
func (a *AreaPotential) UnmarshalText(text []byte) error {
	v, err := parseEnum("area potential", areaPotentialNames, string(text))
	*a = AreaPotential(v)
	return err
}

func (a AreaPotential) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// HasFormat reports whether the format term is active.
func (a AreaPotential) HasFormat() bool { return a == Format || a == TargetAreaAndFormat }

// HasTargetArea reports whether the target area term is active.
func (a AreaPotential) HasTargetArea() bool { return a == TargetArea || a == TargetAreaAndFormat }

// Integration is the time integration scheme.
type Integration int

const (
	Euler Integration = iota
	Verlet
	RK4
)

var integrationNames = []string{"euler", "verlet", "rk4"}

func (i Integration) String() string { return enumString(integrationNames, int(i)) }

// UnmarshalText parses an integration name
func (i *Integration) UnmarshalText(text []byte) error {
	v, err := parseEnum("integration", integrationNames, string(text))
	*i = Integration(v)
	return err
}

func (i Integration) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

// KInvasion is the invasion correction magnitude. Auto means it is derived
// from the spring and diameter parameters during validation.
type KInvasion struct {
	Auto  bool
	Value float64
}

// UnmarshalText accepts "auto" or a number
func (k *KInvasion) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "auto" {
		*k = KInvasion{Auto: true}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%w: k_invasion %q is neither \"auto\" nor a number", ErrInvalid, s)
	}
	*k = KInvasion{Value: v}
	return nil
}

func (k KInvasion) MarshalText() ([]byte, error) {
	if k.Auto {
		return []byte("auto"), nil
	}
	return []byte(strconv.FormatFloat(k.Value, 'g', -1, 64)), nil
}

func enumString(names []string, v int) string {
	if v < 0 || v >= len(names) {
		return "unknown(" + strconv.Itoa(v) + ")"
	}
	return names[v]
}

func parseEnum(kind string, names []string, s string) (int, error) {
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s %q not in %v", ErrInvalid, kind, s, names)
}
