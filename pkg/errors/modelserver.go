// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package errors

// Model-server errors.
var (
	ErrModelServerUnavailable = &Error{
		Category: CategoryModelServer,
		Code:     "MODEL_SERVER_UNAVAILABLE",
		Message:  "model server is unavailable",
	}

	ErrNoModelAvailable = &Error{
		Category: CategoryModelServer,
		Code:     "NO_MODEL_AVAILABLE",
		Message:  "no suitable model is available for this role",
	}

	// ErrContextLengthExceeded is non-retryable: truncation should have
	// prevented this from ever firing. Seeing it indicates a bug in the
	// truncation budget, not a transient server condition.
	ErrContextLengthExceeded = &Error{
		Category: CategoryModelServer,
		Code:     "CONTEXT_LENGTH_EXCEEDED",
		Message:  "input exceeds model context length even after truncation",
	}

	ErrEmptyEmbedding = &Error{
		Category: CategoryModelServer,
		Code:     "EMPTY_EMBEDDING",
		Message:  "model server returned an empty embedding vector",
	}

	ErrMaxAttemptsExceeded = &Error{
		Category: CategoryModelServer,
		Code:     "MAX_ATTEMPTS_EXCEEDED",
		Message:  "exceeded maximum retry attempts",
	}
)
