// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const (
	sequenceLease        = 100
	maxConflictRetries   = 16
	defaultDirPermission = 0o755
)

// Backend owns the Badger handle shared by the graph, vector and
// checkpoint stores.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
}

// slogSink routes Badger's printf-style logging into slog.
type slogSink struct {
	logger *slog.Logger
}

var _ badger.Logger = slogSink{}

func (s slogSink) Errorf(format string, args ...any) {
	s.logger.Error(fmt.Sprintf(format, args...))
}

func (s slogSink) Warningf(format string, args ...any) {
	s.logger.Warn(fmt.Sprintf(format, args...))
}

// Infof is demoted to debug; badger reports every compaction at info.
func (s slogSink) Infof(format string, args ...any) {
	s.logger.Debug(fmt.Sprintf(format, args...))
}

func (s slogSink) Debugf(format string, args ...any) {
	s.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBackend opens the database directory at path, creating it when
// missing. With inMemory set, path is ignored and nothing touches disk.
func OpenBackend(path string, inMemory bool) (*Backend, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	if !inMemory {
		if err := ensureDir(path); err != nil {
			return nil, err
		}
		opts = badger.DefaultOptions(path)
	}

	logger := slog.Default().With("component", "badger")
	opts = opts.WithLogger(slogSink{logger: logger}).WithCompression(options.None)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return &Backend{db: db, logger: logger}, nil
}

func ensureDir(path string) error {
	if err := os.MkdirAll(path, defaultDirPermission); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx runs fn in a transaction that is always discarded afterwards.
// Writers that need their changes kept call Update instead.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// Update runs fn in a read-write transaction and commits. A commit that
// loses a conflict re-runs fn on a fresh snapshot, so read-modify-write
// merges of entities and edges stay atomic.
func (b *Backend) Update(fn func(tx *badger.Txn) error) error {
	var err error
	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		err = b.WithTx(func(tx *badger.Txn) error {
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit()
		}, true)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		b.logger.Debug("write conflict", "attempt", attempt)
	}
	return err
}

// GetSequence leases a monotonically increasing sequence.
func (b *Backend) GetSequence(name string) (*badger.Sequence, error) {
	return b.db.GetSequence([]byte(name), sequenceLease)
}

// readRecord decodes the value at key. A missing key yields the zero value
// and no error.
func readRecord[T any](tx *badger.Txn, key []byte, decode func([]byte) (T, error)) (T, error) {
	var out T
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	err = item.Value(func(val []byte) error {
		out, err = decode(val)
		return err
	})
	return out, err
}
