// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package tools is the thin dispatch layer agents call through: a
// name plus an untyped argument map in, a JSON-serializable value out.
// It owns no domain logic of its own — every call decodes into the
// same typed params struct the owning package (memory, graph, handoff,
// reflection) already validates against, and every failure is turned
// into an ErrorResult rather than propagated as a bare Go error, since
// callers sit at an RPC/HTTP boundary with no error channel to use.
package tools
