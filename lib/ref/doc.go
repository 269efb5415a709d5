// Copyright 2026 The Meetbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable identity references
// for Matrix identifiers: room IDs, room aliases, and user IDs.
//
// All constructors validate their inputs and return errors for invalid
// identifiers. Once constructed, a ref is immutable. Identifiers arrive
// from configuration files and homeserver API responses and are parsed
// into these types at the boundary; the rest of the code never handles
// a raw identifier string.
//
// JSON marshaling uses the canonical Matrix form (!room:server,
// #alias:server, @user:server) via encoding.TextMarshaler.
package ref
