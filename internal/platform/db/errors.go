package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicrecords/records/internal/platform/apperr"
)

// SQLSTATE codes the repositories translate.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeInvalidText         = "22P02"
	codeInvalidDatetime     = "22007"
	codeDatetimeOverflow    = "22008"
)

// ConstraintMessages maps constraint or index names to client-facing messages
// used when that constraint is violated.
type ConstraintMessages map[string]string

// Classify converts a pgx error into a typed apperr.Error. notFound is the
// message used for pgx.ErrNoRows.
func Classify(err error, notFound string, constraints ConstraintMessages) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Wrap(apperr.KindNotFound, notFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return apperr.Internal(err)
	}

	msg := constraints[pgErr.ConstraintName]
	switch pgErr.Code {
	case codeUniqueViolation:
		if msg == "" {
			msg = "resource already exists"
		}
		return apperr.Wrap(apperr.KindConflict, msg, err)
	case codeForeignKeyViolation:
		// Constraint messages describe the inserting side. A RESTRICT hit on
		// delete means the row is still referenced.
		if strings.HasPrefix(pgErr.Message, "update or delete on table") {
			return apperr.Wrap(apperr.KindConflict, "resource is still referenced by other records", err)
		}
		if msg == "" {
			msg = "referenced resource does not exist"
		}
		return apperr.Wrap(apperr.KindNotFound, msg, err)
	case codeCheckViolation:
		if msg == "" {
			msg = "value violates a check constraint"
		}
		return apperr.Wrap(apperr.KindValidation, msg, err)
	case codeInvalidText, codeInvalidDatetime, codeDatetimeOverflow:
		return apperr.Wrap(apperr.KindValidation, "malformed value", err)
	}
	return apperr.Internal(err)
}
