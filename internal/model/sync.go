// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package model // import "newshub.app/internal/model"

import "time"

// SyncUpdate is one published fetch result propagated between hosts through
// shared object storage. It is written once by a publisher and read, possibly
// many times, by watchers on other hosts.
type SyncUpdate struct {
	ResourceID  string    `json:"resource_id"`
	Payload     []byte    `json:"payload"`
	PublisherID string    `json:"publisher_id"`
	PublishedAt time.Time `json:"published_at"`
}
