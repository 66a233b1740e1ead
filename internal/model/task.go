// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package model // import "newshub.app/internal/model"

import "time"

// FetchTask states.
const (
	TaskQueued        = "queued"
	TaskInFlight      = "in-flight"
	TaskSucceeded     = "succeeded"
	TaskFailed        = "failed"
	TaskSkippedLocked = "skipped-locked"
)

// FetchTask is one attempt to retrieve and parse a single feed source. It
// lives only in memory and is owned by the worker pool.
type FetchTask struct {
	Source      FeedSource
	TriggeredAt time.Time
	State       string
	Attempts    int
	LastErr     error
}
