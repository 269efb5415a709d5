// Copyright 2026 The Meetbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package bot contains the command dispatcher and the sync-driven run
// loop of the meeting bot.
//
// [Dispatcher] maps inbound text messages from the configured room to
// topic-queue operations and chat replies. It holds a narrow [Sender]
// rather than a full Matrix session, so tests exercise the complete
// command surface against an in-memory fake.
//
// [Bot] ties a Matrix session, a Dispatcher, and the /sync long-poll
// loop together: an initial sync establishes the stream position (its
// timeline is not dispatched, so restarts do not replay history), then
// the incremental loop feeds each timeline event to the Dispatcher
// until the context is cancelled. Sync faults are retried indefinitely
// with bounded exponential backoff.
package bot
