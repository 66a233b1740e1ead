// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package dedup // import "newshub.app/internal/dedup"

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"newshub.app/internal/logging"
	"newshub.app/internal/metric"
	"newshub.app/internal/model"
)

// History is the persisted fingerprint store. Implemented by
// *storage.Storage; tests substitute an in-memory store.
type History interface {
	KnownFingerprints(ctx context.Context, scope string, hashes []string,
		since time.Time) (map[string]struct{}, error)
	RememberFingerprints(ctx context.Context, scope string, hashes []string,
		now time.Time) error
	PruneFingerprints(ctx context.Context, olderThan time.Time,
	) (int64, error)
}

// globalScope is the fingerprint namespace used when dedup runs across all
// sources instead of per source.
const globalScope = "global"

// New returns a Deduper keeping fingerprints for retention. With global set,
// an article seen on any source suppresses the same article everywhere;
// otherwise each source has its own history.
func New(history History, retention time.Duration, global bool,
	clock clockwork.Clock,
) *Deduper {
	return &Deduper{
		history:   history,
		retention: retention,
		global:    global,
		clock:     clock,
	}
}

type Deduper struct {
	history   History
	retention time.Duration
	global    bool
	clock     clockwork.Clock
}

func (self *Deduper) scope(sourceID string) string {
	if self.global {
		return globalScope
	}
	return sourceID
}

// Filter drops articles whose fingerprint is already recorded within the
// retention window and records first sightings of the survivors. Duplicates
// within the batch itself are dropped too, keeping the first occurrence.
func (self *Deduper) Filter(ctx context.Context, sourceID string,
	articles model.Articles,
) (model.Articles, error) {
	if len(articles) == 0 {
		return articles, nil
	}

	hashes := make([]string, len(articles))
	for i := range articles {
		hashes[i] = Fingerprint(&articles[i])
	}

	scope := self.scope(sourceID)
	now := self.clock.Now()
	known, err := self.history.KnownFingerprints(ctx, scope, hashes,
		now.Add(-self.retention))
	if err != nil {
		return nil, fmt.Errorf("dedup: filter %q: %w", sourceID, err)
	}

	surviving := make(model.Articles, 0, len(articles))
	fresh := make([]string, 0, len(articles))
	seen := make(map[string]struct{}, len(articles))

	for i := range articles {
		h := hashes[i]
		if _, ok := known[h]; ok {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		surviving = append(surviving, articles[i])
		fresh = append(fresh, h)
	}

	if dropped := len(articles) - len(surviving); dropped > 0 {
		metric.DedupDropped.Add(float64(dropped))
		logging.FromContext(ctx).Debug("dedup: dropped duplicates",
			slog.String("source", sourceID), slog.Int("dropped", dropped))
	}

	err = self.history.RememberFingerprints(ctx, scope, fresh, now)
	if err != nil {
		return nil, fmt.Errorf("dedup: remember %q: %w", sourceID, err)
	}
	return surviving, nil
}

// Prune drops fingerprints older than the retention window. It runs
// periodically, independent of any single fetch, to bound storage.
func (self *Deduper) Prune(ctx context.Context) (int64, error) {
	olderThan := self.clock.Now().Add(-self.retention)
	n, err := self.history.PruneFingerprints(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("dedup: prune: %w", err)
	}
	return n, nil
}
