package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	// BackendBadger persists values on disk through badger.
	BackendBadger = "badger"
	// BackendMemory keeps values for the lifetime of the process.
	BackendMemory = "memory"
)

var (
	// ErrUnavailable indicates the configured backend could not be opened.
	ErrUnavailable = errors.New("storage: backend unavailable")
	// ErrInvalidKey is returned for blank keys.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// Store is the key-value capability used for cart persistence. Values are JSON encoded.
type Store interface {
	// Get decodes the value stored at key into dest. It reports false when the key is absent.
	Get(ctx context.Context, key string, dest any) (bool, error)
	// Set replaces the value stored at key.
	Set(ctx context.Context, key string, value any) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend string
	Path    string
	Logger  *zap.Logger
}

// Open returns the configured backend. When badger cannot be opened the memory backend is
// returned instead, together with an error wrapping ErrUnavailable so callers can report it.
func Open(ctx context.Context, opts Options) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	switch backend {
	case "", BackendBadger:
		store, err := OpenBadger(opts.Path, logger)
		if err == nil {
			return store, nil
		}
		logger.Warn("persistent storage unavailable; falling back to memory",
			zap.String("backend", BackendBadger),
			zap.String("path", opts.Path),
			zap.Error(err),
		)
		return NewMemoryStore(), fmt.Errorf("%w: %v", ErrUnavailable, err)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("storage: unsupported backend %q", opts.Backend)
	}
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrInvalidKey
	}
	return key, nil
}
