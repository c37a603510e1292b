// Package secretstore provides the fetch-by-name secret port the credential
// pool reads credential-set documents from, with in-memory, SQL (SQLite or
// Postgres), and DynamoDB backends.
package secretstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no secret exists under the requested name.
var ErrNotFound = errors.New("secret not found")

// Store is a read-only key/value secret service. Fetch returns the raw
// document bytes stored under name, or ErrNotFound.
type Store interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// Writer is implemented by backends that also support provisioning secrets.
// The operator CLI uses it; the proxy itself only ever reads.
type Writer interface {
	Put(ctx context.Context, name string, value []byte) error
}

// Config selects and parameterizes a backend.
type Config struct {
	// Driver is one of "memory", "sqlite", "postgres", "dynamodb".
	Driver string `json:"driver" yaml:"driver"`
	// DSN is the SQLite path or Postgres connection string.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	// Table is the DynamoDB table name.
	Table string `json:"table,omitempty" yaml:"table,omitempty"`
	// Region overrides the AWS region for the DynamoDB backend.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
}

// New constructs the backend named by cfg.Driver.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres":
		return NewPostgres(cfg.DSN)
	case "dynamodb":
		return NewDynamo(ctx, cfg.Table, cfg.Region)
	default:
		return nil, fmt.Errorf("unknown secret store driver %q", cfg.Driver)
	}
}
