package models

import (
	"errors"
	"fmt"

	"github.com/weeeopen/tarallo/common/feature"
)

// NotFoundError means the referenced item, product or search is absent or not accessible
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ItemNotFound is the common case
func ItemNotFound(code string) *NotFoundError {
	return &NotFoundError{Kind: "item", ID: code}
}

// DuplicateCodeError means an explicit code is already taken
type DuplicateCodeError struct {
	Code string
}

func (e *DuplicateCodeError) Error() string {
	return fmt.Sprintf("item code already exists: %s", e.Code)
}

// ValidationError is a structural rule violation, such as deleting an item that has contents
type ValidationError struct {
	Code   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Code == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// InvalidArgumentError rejects malformed parameters such as a zero page number
type InvalidArgumentError struct {
	Argument string
	Reason   string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Argument, e.Reason)
}

// DatabaseError wraps a storage failure that maps to no domain condition
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// Error kinds, used as metric labels and in error responses
const (
	KindNotFound        = "not_found"
	KindDuplicate       = "duplicate_code"
	KindValidation      = "validation"
	KindInvalidArgument = "invalid_argument"
	KindUnknownFeature  = "unknown_feature"
	KindInvalidValue    = "invalid_feature_value"
	KindUnsupportedOp   = "unsupported_operator"
	KindDatabase        = "database"
	KindInternal        = "internal"
)

// ErrorKind classifies err by the first domain error in its chain
func ErrorKind(err error) string {
	var (
		notFound    *NotFoundError
		duplicate   *DuplicateCodeError
		validation  *ValidationError
		invalidArg  *InvalidArgumentError
		dbErr       *DatabaseError
		unknown     *feature.UnknownFeatureError
		invalidVal  *feature.InvalidFeatureValueError
		unsupported *feature.UnsupportedOperatorError
	)
	switch {
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &duplicate):
		return KindDuplicate
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &invalidArg):
		return KindInvalidArgument
	case errors.As(err, &unknown):
		return KindUnknownFeature
	case errors.As(err, &invalidVal):
		return KindInvalidValue
	case errors.As(err, &unsupported):
		return KindUnsupportedOp
	case errors.As(err, &dbErr):
		return KindDatabase
	}
	return KindInternal
}
