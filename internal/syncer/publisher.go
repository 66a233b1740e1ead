// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package syncer // import "newshub.app/internal/syncer"

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"newshub.app/internal/logging"
	"newshub.app/internal/metric"
	"newshub.app/internal/model"
)

// Publisher writes one immutable object per state change into the shared
// bucket. Each publisher carries a unique id so watchers can recognize
// their own updates.
type Publisher struct {
	bucket Bucket
	prefix string
	id     string
	clock  clockwork.Clock
}

func NewPublisher(bucket Bucket, prefix string, clock clockwork.Clock,
) *Publisher {
	return &Publisher{
		bucket: bucket,
		prefix: prefix,
		id:     uuid.NewString(),
		clock:  clock,
	}
}

func (self *Publisher) ID() string { return self.id }

// Publish stores payload as a new update for resourceID. Nothing is ever
// overwritten: the object key embeds the publish time.
func (self *Publisher) Publish(ctx context.Context, resourceID string,
	payload []byte,
) error {
	now := self.clock.Now().UTC()
	update := &model.SyncUpdate{
		ResourceID:  resourceID,
		Payload:     payload,
		PublisherID: self.id,
		PublishedAt: now,
	}

	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("syncer: encode update for %q: %w", resourceID, err)
	}

	key := updateKey(self.prefix, resourceID, now)
	if err := self.bucket.Put(ctx, key, data); err != nil {
		return err
	}
	metric.SyncPublished.Inc()

	logging.FromContext(ctx).Debug("syncer: published update",
		slog.String("resource_id", resourceID), slog.String("key", key))
	return nil
}
