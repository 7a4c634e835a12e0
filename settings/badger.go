package settings

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "global-settings/"

// BadgerStore keeps each field under its own key so a partially written
// store still loads.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens or creates the store in dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	if dir == "" {
		return nil, errors.New("settings: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create settings directory %s: %w", dir, err)
	}

	opts := badger.DefaultOptions(dir).
		WithNumVersionsToKeep(1).
		WithLoggingLevel(badger.WARNING).
		WithCompression(0)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open settings database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// OpenInMemory returns a store that forgets everything on Close.
func OpenInMemory() (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open in-memory settings database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) fields(s *Settings) map[string]*string {
	return map[string]*string{
		"deviceName": &s.DeviceName,
		"ssid":       &s.SSID,
		"password":   &s.Password,
	}
}

func (b *BadgerStore) Load(ctx context.Context) (Settings, error) {
	s := Default()
	if err := ctx.Err(); err != nil {
		return s, err
	}

	err := b.db.View(func(txn *badger.Txn) error {
		for name, field := range b.fields(&s) {
			item, err := txn.Get([]byte(keyPrefix + name))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			*field = string(val)
		}
		return nil
	})
	if err != nil {
		return Default(), fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}

func (b *BadgerStore) Save(ctx context.Context, s Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		for name, field := range b.fields(&s) {
			if err := txn.Set([]byte(keyPrefix+name), []byte(*field)); err != nil {
				return fmt.Errorf("write %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

var _ Store = (*BadgerStore)(nil)
