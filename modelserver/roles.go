// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package modelserver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	mperrors "github.com/memory-palace/core/pkg/errors"
)

// roleCache holds the currently-selected model name for one role plus
// its ordered preference list. probed stays false until a probe has
// succeeded; an empty selected with probed true means no available
// model qualified for the role.
type roleCache struct {
	mu         sync.RWMutex
	preference []string
	selected   string
	probed     bool
}

func newRoleCache(preference []string) *roleCache {
	return &roleCache{preference: preference}
}

func (rc *roleCache) get() (string, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.selected, rc.probed
}

func (rc *roleCache) set(model string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.selected = model
	rc.probed = true
}

func (rc *roleCache) clear() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.selected = ""
	rc.probed = false
}

// modelFor returns the selected model name for role, probing
// /api/tags and running selectModel if the role has not yet been
// resolved. Concurrent calls for the same role while a probe is in
// flight are coalesced onto a single /api/tags request via
// singleflight, so a burst of concurrent remember calls doesn't each
// race their own tags probe.
func (c *Client) modelFor(ctx context.Context, role Role) (string, error) {
	rc := c.roles[role]

	if model, probed := rc.get(); probed {
		if model == "" {
			return "", mperrors.ErrNoModelAvailable
		}
		return model, nil
	}

	result, err, _ := c.sf.Do(string(role), func() (interface{}, error) {
		if model, probed := rc.get(); probed {
			if model == "" {
				return "", mperrors.ErrNoModelAvailable
			}
			return model, nil
		}
		available, listErr := c.ListModels(ctx)
		if listErr != nil {
			return "", listErr
		}

		model := selectModel(role, rc.preference, available)
		rc.set(model)
		if model == "" {
			return "", mperrors.ErrNoModelAvailable
		}
		return model, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// selectModel picks a model for role from the available list: exact
// match against preference first, then a prefix match (an available
// model whose name starts with a preferred entry, covering tagged
// variants like "nomic-embed-text:latest"), then a last resort: for
// embedding, any model with "embed" in its name; for LLM/classification,
// any available model that does not look like an embedding model.
// Returns "" if nothing qualifies.
func selectModel(role Role, preference, available []string) string {
	for _, pref := range preference {
		for _, a := range available {
			if a == pref {
				return a
			}
		}
	}

	for _, pref := range preference {
		for _, a := range available {
			if strings.HasPrefix(a, pref) {
				return a
			}
		}
	}

	for _, a := range available {
		looksEmbedding := strings.Contains(strings.ToLower(a), "embed")
		if role == RoleEmbedding && looksEmbedding {
			return a
		}
		if role != RoleEmbedding && !looksEmbedding {
			return a
		}
	}

	return ""
}

// dimensionFor returns the known embedding dimension for model, or ok=false
// if the model is not in KnownDimensions and the caller must fall back to
// a round-trip probe or an explicitly configured dimension.
func dimensionFor(model string) (int, bool) {
	for name, dim := range KnownDimensions {
		if model == name || strings.HasPrefix(model, name+":") {
			return dim, true
		}
	}
	return 0, false
}

// EmbeddingDimension reports the known dimension of the currently
// selected embedding model, or an error if the role has not been
// resolved yet or the model is unrecognized.
func (c *Client) EmbeddingDimension(ctx context.Context) (int, error) {
	model, err := c.modelFor(ctx, RoleEmbedding)
	if err != nil {
		return 0, err
	}
	dim, ok := dimensionFor(model)
	if !ok {
		return 0, fmt.Errorf("%w: no known dimension for model %q", mperrors.ErrNoModelAvailable, model)
	}
	return dim, nil
}
