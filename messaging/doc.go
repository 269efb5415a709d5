// Copyright 2026 The Meetbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the subset of the Matrix client-server API
// that the bot needs.
//
// The package provides two core types. [Client] is an unauthenticated
// Matrix client that handles password login and token-based session
// restore, returning authenticated [Session] values. Client holds the
// homeserver URL and HTTP transport, shared across all Sessions derived
// from it.
//
// [Session] wraps a Client with an access token for authenticated
// operations: identity verification (WhoAmI), room alias resolution,
// joining rooms, sending room messages (idempotent PUT with transaction
// IDs), incremental sync with long-polling, and logout.
//
// The access token is held in mmap-backed secret.Buffer memory, locked
// against swap and excluded from core dumps; callers must call
// Session.Close to release the protected memory.
//
// All API errors are returned as [*MatrixError] with the standard
// Matrix error code (M_FORBIDDEN, M_NOT_FOUND, etc.) and HTTP status
// code. [IsMatrixError] tests for a specific error code. Request URLs
// are built by string concatenation rather than url.URL to avoid
// double-encoding of path segments that contain URL-encoded characters
// (such as room IDs with slashes).
//
// [BuildRoomFilter] constructs the inline /sync filter JSON that scopes
// a sync stream to a single room, which is how the bot avoids receiving
// traffic from rooms it does not serve.
package messaging
