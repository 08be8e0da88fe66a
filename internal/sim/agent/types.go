package agent

import (
	"fmt"
	"strings"
)

type Type int

const (
	Adult Type = iota
	Child
	Robot
	Elder
)

var typeNames = [...]string{"ADULT", "CHILD", "ROBOT", "ELDER"}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

func ParseType(s string) (Type, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, n := range typeNames {
		if n == s {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("unknown agent type %q", s)
}

func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// TypeNames lists the accepted type spellings.
func TypeNames() []string { return append([]string(nil), typeNames[:]...) }

// WaypointMode is the policy an agent applies after reaching its last waypoint.
type WaypointMode int

const (
	Loop WaypointMode = iota
	Once
	Random
)

var modeNames = [...]string{"LOOP", "ONCE", "RANDOM"}

func (m WaypointMode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("WaypointMode(%d)", int(m))
	}
	return modeNames[m]
}

func ParseWaypointMode(s string) (WaypointMode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, n := range modeNames {
		if n == s {
			return WaypointMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown waypoint mode %q", s)
}

func (m WaypointMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *WaypointMode) UnmarshalText(b []byte) error {
	v, err := ParseWaypointMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func WaypointModeNames() []string { return append([]string(nil), modeNames[:]...) }
