package driver

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound returned by KeyValueDB.Get when the key is absent
var ErrKeyNotFound = errors.New("key not found")

// KeyValueDB define a key-value storage interface
//
// expiration of 0 means the key never expires
type KeyValueDB interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
}

// Updater implemented by backends that can read-modify-write one key
// atomically, also across processes sharing the storage.
//
// fn receives the current value, found is false when the key is absent.
// Nothing is written when fn returns an error.
type Updater interface {
	Update(ctx context.Context, key string, fn func(value string, found bool) (string, error)) error
}

// IsKeyNotFound reports whether err is caused by a missing key
func IsKeyNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}
