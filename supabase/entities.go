// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package supabase

import (
	"context"
	"fmt"
)

// GetEntity implements Session. Kind names the hosted table (e.g.
// "character"), name the row key. Absence is reported via the bool, not an
// error.
func (m *Manager) GetEntity(ctx context.Context, kind, name string) (map[string]any, bool, error) {
	var rows []map[string]any
	_, err := m.client.From(kind).
		Select("*", "", false).
		Eq("name", name).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch %s %q: %w", kind, name, err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

// SaveEntity implements Session. The payload is upserted under the name key.
func (m *Manager) SaveEntity(ctx context.Context, kind, name string, payload map[string]any) error {
	row := map[string]any{"name": name}
	for k, v := range payload {
		if k != "name" {
			row[k] = v
		}
	}
	_, _, err := m.client.From(kind).
		Upsert(row, "name", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to save %s %q: %w", kind, name, err)
	}
	return nil
}
