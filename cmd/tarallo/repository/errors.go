package repository

import (
	"errors"

	"github.com/weeeopen/tarallo/cmd/tarallo/models"
	"github.com/weeeopen/tarallo/common/db"
	"github.com/weeeopen/tarallo/common/feature"
)

// translate passes domain errors through and wraps storage failures.
// Serialization failures stay unwrapped enough for db.WithTx to retry them.
func translate(op string, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	return &models.DatabaseError{Op: op, Err: err}
}

func isDomainError(err error) bool {
	var (
		notFound    *models.NotFoundError
		duplicate   *models.DuplicateCodeError
		validation  *models.ValidationError
		invalidArg  *models.InvalidArgumentError
		dbErr       *models.DatabaseError
		unknown     *feature.UnknownFeatureError
		invalidVal  *feature.InvalidFeatureValueError
		unsupported *feature.UnsupportedOperatorError
	)
	return errors.As(err, &notFound) ||
		errors.As(err, &duplicate) ||
		errors.As(err, &validation) ||
		errors.As(err, &invalidArg) ||
		errors.As(err, &dbErr) ||
		errors.As(err, &unknown) ||
		errors.As(err, &invalidVal) ||
		errors.As(err, &unsupported)
}

func isUniqueViolation(err error) bool {
	return db.PgErrorCode(err) == db.CodeUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return db.PgErrorCode(err) == db.CodeForeignKeyViolation
}
