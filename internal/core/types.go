package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Side is the direction of a position
type Side int

const (
	SideLong Side = iota + 1
	SideShort
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "LONG"
	case SideShort:
		return "SHORT"
	default:
		return "UNKNOWN"
	}
}

// Direction returns +1 for LONG and -1 for SHORT
func (s Side) Direction() int64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// Valid reports whether s is a known side
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// ParseSide parses "long"/"short" (also "buy"/"sell"), case-insensitive
func ParseSide(v string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "LONG", "BUY":
		return SideLong, nil
	case "SHORT", "SELL":
		return SideShort, nil
	default:
		return 0, fmt.Errorf("unknown side %q", v)
	}
}

func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Side) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSide(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarginMode selects how collateral backs a position
type MarginMode int

const (
	MarginCross MarginMode = iota + 1
	MarginIsolated
)

func (m MarginMode) String() string {
	switch m {
	case MarginCross:
		return "CROSS"
	case MarginIsolated:
		return "ISOLATED"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether m is a known margin mode
func (m MarginMode) Valid() bool {
	return m == MarginCross || m == MarginIsolated
}

// ParseMarginMode parses "cross"/"isolated", case-insensitive
func ParseMarginMode(v string) (MarginMode, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "CROSS":
		return MarginCross, nil
	case "ISOLATED":
		return MarginIsolated, nil
	default:
		return 0, fmt.Errorf("unknown margin mode %q", v)
	}
}

func (m MarginMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *MarginMode) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseMarginMode(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// PositionStatus is the lifecycle state of a position
type PositionStatus int

const (
	StatusOpen PositionStatus = iota + 1
	StatusClosed
)

func (s PositionStatus) String() string {
	switch s {
	case StatusOpen:
		return "OPEN"
	case StatusClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

func (s PositionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *PositionStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch strings.ToUpper(raw) {
	case "OPEN":
		*s = StatusOpen
	case "CLOSED":
		*s = StatusClosed
	default:
		return fmt.Errorf("unknown position status %q", raw)
	}
	return nil
}
