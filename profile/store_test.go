// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package profile

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore(t *testing.T) {
	store := openTestStore(t)

	t.Run("miss returns found=false without error", func(t *testing.T) {
		_, found, err := store.Get("nobody")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("set then get round-trips the profile", func(t *testing.T) {
		char := Character{
			Name:    "Umi",
			Profile: map[string]any{"species": "otter", "mood": "curious"},
		}
		require.NoError(t, store.Set(char))

		got, found, err := store.Get("Umi")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "Umi", got.Name)
		assert.Equal(t, "otter", got.Profile["species"])
	})

	t.Run("set overwrites an existing profile", func(t *testing.T) {
		require.NoError(t, store.Set(Character{Name: "Umi", Profile: map[string]any{"mood": "sleepy"}}))

		got, found, err := store.Get("Umi")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "sleepy", got.Profile["mood"])
		assert.NotContains(t, got.Profile, "species")
	})

	t.Run("empty name rejected", func(t *testing.T) {
		require.Error(t, store.Set(Character{}))
	})
}

func TestStoreConcurrentAccess(t *testing.T) {
	store := openTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := []string{"Umi", "Kelp", "Brine", "Skua"}[i%4]
			for j := 0; j < 50; j++ {
				_ = store.Set(Character{Name: name, Profile: map[string]any{"turn": j}})
				_, _, _ = store.Get(name)
			}
		}(i)
	}
	wg.Wait()
}
