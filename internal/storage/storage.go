// Package storage opens a catalog store from a location string.
package storage

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/radutopala/toolcat/internal/catalog"
	"github.com/radutopala/toolcat/internal/catalog/memory"
	"github.com/radutopala/toolcat/internal/catalog/postgres"
	"github.com/radutopala/toolcat/internal/catalog/sqlite"
)

// Backend names reported by Kind.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Kind returns the backend a location resolves to.
func Kind(location string) string {
	switch {
	case location == "memory:" || location == "memory":
		return BackendMemory
	case strings.HasPrefix(location, "postgres://"), strings.HasPrefix(location, "postgresql://"):
		return BackendPostgres
	default:
		return BackendSQLite
	}
}

// Open opens the store at location. Any failure to connect, ping or
// initialise the backend is returned as a *catalog.ConnectionError.
func Open(ctx context.Context, location string, dim int, logger *slog.Logger) (catalog.Store, error) {
	if location == "" {
		return nil, &catalog.ConnectionError{Location: location, Err: errors.New("no store location configured")}
	}

	var (
		store catalog.Store
		err   error
	)
	switch Kind(location) {
	case BackendMemory:
		store = memory.New(dim, logger)
	case BackendPostgres:
		store, err = postgres.Open(ctx, location, dim, logger)
	default:
		store, err = sqlite.Open(ctx, strings.TrimPrefix(location, "sqlite://"), dim, logger)
	}
	if err != nil {
		return nil, &catalog.ConnectionError{Location: Redact(location), Err: err}
	}
	return store, nil
}

// Redact hides the password of a URL-style location.
func Redact(location string) string {
	u, err := url.Parse(location)
	if err != nil || u.User == nil {
		return location
	}
	if _, ok := u.User.Password(); !ok {
		return location
	}
	return u.Redacted()
}
