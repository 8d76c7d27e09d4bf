package feature

import (
	"strconv"
)

// Type is the storage type of a feature
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeDouble  Type = "double"
	TypeEnum    Type = "enum"
)

// Valid reports whether t is one of the four storage types
func (t Type) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeDouble, TypeEnum:
		return true
	}
	return false
}

// Value is a typed feature value: StringValue, IntValue, DoubleValue or EnumValue
type Value interface {
	Kind() Type
	// Native returns the plain Go value, used for JSON and SQL arguments
	Native() any
	String() string
	isValue()
}

type StringValue string

func (StringValue) Kind() Type       { return TypeString }
func (v StringValue) Native() any    { return string(v) }
func (v StringValue) String() string { return string(v) }
func (StringValue) isValue()         {}

type IntValue int64

func (IntValue) Kind() Type       { return TypeInteger }
func (v IntValue) Native() any    { return int64(v) }
func (v IntValue) String() string { return strconv.FormatInt(int64(v), 10) }
func (IntValue) isValue()         {}

type DoubleValue float64

func (DoubleValue) Kind() Type       { return TypeDouble }
func (v DoubleValue) Native() any    { return float64(v) }
func (v DoubleValue) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (DoubleValue) isValue()         {}

type EnumValue string

func (EnumValue) Kind() Type       { return TypeEnum }
func (v EnumValue) Native() any    { return string(v) }
func (v EnumValue) String() string { return string(v) }
func (EnumValue) isValue()         {}

// Feature is a validated name/value pair
type Feature struct {
	Name  string
	Value Value
}

// Set is the features of one item or product, keyed by name
type Set map[string]Value

// Natives flattens the set for JSON output
func (s Set) Natives() map[string]any {
	out := make(map[string]any, len(s))
	for name, v := range s {
		out[name] = v.Native()
	}
	return out
}
