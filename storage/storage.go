package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Driver identifies a storage backend.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverFile   Driver = "file"
	DriverSQLite Driver = "sqlite"
	DriverRedis  Driver = "redis"
)

// Store saves and loads blobs by name.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines.
// - Errors: a missing name is (nil, false, nil), never an error.
// - Ownership: returned blobs are owned by the caller.
type Store interface {
	Save(ctx context.Context, name string, blob []byte) error
	Load(ctx context.Context, name string) ([]byte, bool, error)
	Driver() Driver
	Close() error
}

const defaultPrefix = "querykit"

// Pinger is implemented by stores backed by a remote or on-disk service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config selects and configures a driver.
type Config struct {
	Driver Driver

	// FileDir is the directory of the file driver.
	FileDir string

	// SQLitePath is the database file of the sqlite driver.
	SQLitePath string

	// RedisClient is required by the redis driver.
	RedisClient RedisClient

	// Prefix namespaces keys in shared backends.
	Prefix string
}

func (c Config) withDefaults() Config {
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if c.FileDir == "" {
		c.FileDir = filepath.Join(os.TempDir(), "querykit")
	}
	if c.Prefix == "" {
		c.Prefix = defaultPrefix
	}
	return c
}

// New returns the store selected by cfg.Driver.
func New(ctx context.Context, cfg Config) (Store, error) {
	cfg = cfg.withDefaults()
	switch cfg.Driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverFile:
		return NewFile(cfg.FileDir)
	case DriverSQLite:
		s, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverRedis:
		return NewRedis(cfg.RedisClient, cfg.Prefix)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

var nameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateName reports whether name can be stored by every driver.
func ValidateName(name string) error {
	if !nameRE.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
