// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package handoff implements the inter-instance mailbox: one agent
// instance leaves a note for another (or for "all"), addressed by
// configured instance id. Delivery is pull-based via GetHandoffs; an
// optional Redis publish gives a live-streaming consumer a push signal
// without requiring it to poll.
package handoff
