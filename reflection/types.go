// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package reflection

// readErrorKind discriminates transcript read failures so callers can
// report which of the four outcomes occurred rather than a bare error
// string.
type readErrorKind string

const (
	readErrorNotFound   readErrorKind = "not_found"
	readErrorPermission readErrorKind = "permission"
	readErrorDecode     readErrorKind = "decode"
	readErrorGeneric    readErrorKind = "generic"
)

// ReadError is returned by Reflect when the transcript file cannot be
// read, discriminating why: not found, permission denied, not valid
// UTF-8, or some other I/O failure.
type ReadError struct {
	Kind readErrorKind
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return "read transcript " + e.Path + ": " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *ReadError) Unwrap() error { return e.Err }

// ExtractedMemory is one candidate memory parsed from an `M|TYPE|SUBJECT|CONTENT`
// line before it is persisted.
type ExtractedMemory struct {
	MemoryType string   `json:"memory_type"`
	Subject    string   `json:"subject"`
	Content    string   `json:"content"`
	Keywords   []string `json:"keywords,omitempty"`
	Importance int      `json:"importance"`
}

// Params are the arguments to Reflect.
type Params struct {
	InstanceID     string `json:"instance_id"`
	TranscriptPath string `json:"transcript_path"`
	Project        string `json:"project,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	DryRun         bool   `json:"dry_run,omitempty"`
}

// Result is the return value of Reflect.
type Result struct {
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	LLMResponse string            `json:"llm_raw_response,omitempty"`
	Extracted   int               `json:"extracted"`
	Embedded    int               `json:"embedded"`
	ByType      map[string]int    `json:"by_type,omitempty"`
	Memories    []ExtractedMemory `json:"memories,omitempty"`
	MemoryIDs   []int64           `json:"memory_ids,omitempty"`
}
