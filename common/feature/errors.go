package feature

import "fmt"

// UnknownFeatureError is returned for names outside the catalog
type UnknownFeatureError struct {
	Name string
}

func (e *UnknownFeatureError) Error() string {
	return fmt.Sprintf("unknown feature: %s", e.Name)
}

// InvalidFeatureValueError is returned when a value does not fit its feature
type InvalidFeatureValueError struct {
	Name   string
	Value  any
	Reason string
}

func (e *InvalidFeatureValueError) Error() string {
	return fmt.Sprintf("invalid value %v for feature %s: %s", e.Value, e.Name, e.Reason)
}

// UnsupportedOperatorError is returned when an operator cannot compare a feature's type
type UnsupportedOperatorError struct {
	Name     string
	Type     Type
	Operator Operator
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("operator %s not supported for %s feature %s", e.Operator, e.Type, e.Name)
}
