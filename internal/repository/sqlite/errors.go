package sqlite

import (
	"errors"
	"strings"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// constraintKind classifies a constraint failure reported by the driver.
type constraintKind int

const (
	constraintNone constraintKind = iota
	constraintUnique
	constraintForeignKey
	constraintOther
)

// classify inspects err for a SQLite constraint violation. The driver reports
// extended result codes; the message check covers builds that only report the
// primary SQLITE_CONSTRAINT code.
func classify(err error) constraintKind {
	var se *moderncsqlite.Error
	if !errors.As(err, &se) {
		return constraintNone
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return constraintUnique
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return constraintForeignKey
	}
	if se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return constraintNone
	}
	msg := se.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return constraintUnique
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return constraintForeignKey
	}
	return constraintOther
}
