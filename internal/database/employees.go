package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// Employee is a row from the externally managed public.employee directory.
type Employee struct {
	ID    int64
	Name  string
	Email string
}

// ErrEmployeeNotFound is returned when no active employee matches.
var ErrEmployeeNotFound = errors.New("employee not found")

// GetEmployeeByEmail looks up an active employee by email,
// case-insensitively.
func (db *DB) GetEmployeeByEmail(ctx context.Context, email string) (*Employee, error) {
	var e Employee
	err := db.Pool.QueryRow(ctx, `
		SELECT id, employeename, email
		FROM public.employee
		WHERE lower(email) = lower($1) AND isactive
	`, email).Scan(&e.ID, &e.Name, &e.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEmployeeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
