package conf

import (
	"strconv"
)

// OptionalBool, OptionalInt and OptionalString are kingpin values
// that stay nil until the flag or its environment variable is set:
//
//	debug := &conf.OptionalBool{}
//	kingpin.Flag("debug", "enable debug mode").Envar("FIRMWARE_DEBUG").SetValue(debug)
//
// debug.Value then goes into Overrides.Debug.
type OptionalBool struct {
	Value *bool
}

func (b *OptionalBool) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	b.Value = &v
	return nil
}

func (b *OptionalBool) String() string {
	if b.Value == nil {
		return ""
	}
	return strconv.FormatBool(*b.Value)
}

// IsBoolFlag makes kingpin accept --flag and --no-flag.
func (b *OptionalBool) IsBoolFlag() bool {
	return true
}

type OptionalInt struct {
	Value *int
}

func (i *OptionalInt) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	i.Value = &v
	return nil
}

func (i *OptionalInt) String() string {
	if i.Value == nil {
		return ""
	}
	return strconv.Itoa(*i.Value)
}

type OptionalString struct {
	Value *string
}

func (s *OptionalString) Set(v string) error {
	s.Value = &v
	return nil
}

func (s *OptionalString) String() string {
	if s.Value == nil {
		return ""
	}
	return *s.Value
}
