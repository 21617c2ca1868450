package kv

import "errors"

// ErrNotFound is returned by Get for a key with no stored value.
var ErrNotFound = errors.New("key not found")

// ErrExists is returned by Create when the key already holds a value.
var ErrExists = errors.New("key already exists")

// Store is the key-value client used to persist framework identity across
// coordinator restarts. Keys and values are plain strings.
type Store interface {
	Exists(key string) (bool, error)
	Get(key string) (string, error)
	Create(key, value string) error
	Set(key, value string) error
	Delete(key string) error
	Close() error
}
