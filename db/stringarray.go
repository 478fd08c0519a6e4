// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package db

import (
	"encoding/json"
	"fmt"
)

// EncodeStringArrayJSON serializes keywords/tags for the SQLite legacy
// backend, which has no native array type and stores a JSON string
// array in a TEXT column instead. The PostgreSQL backend never calls
// this: it binds []string directly through pq.Array into a native
// TEXT[] column.
func EncodeStringArrayJSON(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode string array json: %w", err)
	}
	return string(data), nil
}

// DecodeStringArrayJSON is the inverse of EncodeStringArrayJSON.
func DecodeStringArrayJSON(s string) ([]string, error) {
	if s == "" {
		return []string{}, nil
	}
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("decode string array json: %w", err)
	}
	return v, nil
}
