// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package profile provides the local character profile cache.
//
// BadgerDB gives the character chat agent low-latency access to profiles it
// has already seen, falling back to the hosted backend on miss. Entries have
// no TTL: a profile stays cached until it is overwritten by an update.
//
// The cache is an explicit store object constructed once at startup and
// passed to the agent, never ambient package state. Badger's transactions
// make concurrent access from simultaneous chat requests safe.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// Character is a named profile: free-form key/value traits the agent uses to
// play (or recognize) a persona.
type Character struct {
	Name    string         `json:"name"`
	Profile map[string]any `json:"profile"`
}

// Store is the badger-backed profile cache.
type Store struct {
	db *badger.DB
}

// Config holds configuration for the profile store.
type Config struct {
	// Path is the directory for the badger files. Ignored when InMemory is set.
	Path string

	// InMemory disables disk persistence. Useful for testing.
	InMemory bool

	// Logger receives badger's internal logging. Nil disables it.
	Logger *slog.Logger
}

// Open creates the cache directory if needed and opens the store.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("profile store path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create profile cache directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile cache: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database. Call once at shutdown.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get looks up a character by name.
//
// # Outputs
//
//   - Character: The cached character when found.
//   - bool: False on a cache miss (the caller falls back to the hosted store).
//   - error: Non-nil only for storage or decode failures, never for a miss.
func (s *Store) Get(name string) (Character, bool, error) {
	var char Character
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &char)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Character{}, false, nil
	}
	if err != nil {
		return Character{}, false, fmt.Errorf("failed to read profile %q: %w", name, err)
	}
	return char, true, nil
}

// Set stores a character under its name, replacing any previous value.
func (s *Store) Set(char Character) error {
	if char.Name == "" {
		return fmt.Errorf("character name is required")
	}
	val, err := json.Marshal(char)
	if err != nil {
		return fmt.Errorf("failed to encode profile %q: %w", char.Name, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(char.Name), val)
	})
	if err != nil {
		return fmt.Errorf("failed to write profile %q: %w", char.Name, err)
	}
	return nil
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
