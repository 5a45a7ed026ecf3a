package database

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

func constraintCode(err error) (sqlite3.ErrNoExtended, bool) {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return se.ExtendedCode, true
	}
	return 0, false
}

// isUniqueViolation reports a UNIQUE index violation (not a primary key clash).
func isUniqueViolation(err error) bool {
	code, ok := constraintCode(err)
	return ok && code == sqlite3.ErrConstraintUnique
}

func isPrimaryKeyViolation(err error) bool {
	code, ok := constraintCode(err)
	return ok && code == sqlite3.ErrConstraintPrimaryKey
}
