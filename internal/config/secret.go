package config

import "strconv"

const redacted = "[REDACTED]"

// Secret holds a credential. Every printing and marshaling path shows a
// placeholder; only Reveal returns the value.
type Secret string

func (s Secret) mask() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) String() string { return s.mask() }

// GoString covers %#v
func (s Secret) GoString() string { return strconv.Quote(s.mask()) }

func (s Secret) MarshalYAML() (interface{}, error) { return s.mask(), nil }

func (s Secret) MarshalJSON() ([]byte, error) { return []byte(strconv.Quote(s.mask())), nil }

// Reveal returns the raw value for the client that sends it
func (s Secret) Reveal() string {
	return string(s)
}
