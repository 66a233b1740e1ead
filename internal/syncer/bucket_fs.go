// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package syncer // import "newshub.app/internal/syncer"

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FSBucket stores objects as files under a root directory, typically on a
// shared mount. Writes go through a temp file and a rename so readers never
// see partial objects.
type FSBucket struct {
	fs   afero.Fs
	root string
}

func NewFSBucket(fs afero.Fs, root string) *FSBucket {
	return &FSBucket{fs: fs, root: root}
}

func (self *FSBucket) path(key string) string {
	return filepath.Join(self.root, filepath.FromSlash(key))
}

func (self *FSBucket) Put(ctx context.Context, key string, data []byte,
) error {
	name := self.path(key)
	if err := self.fs.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("syncer: create object dir: %w", err)
	}

	tmp := name + ".tmp"
	if err := afero.WriteFile(self.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("syncer: write object %q: %w", key, err)
	}
	if err := self.fs.Rename(tmp, name); err != nil {
		return fmt.Errorf("syncer: publish object %q: %w", key, err)
	}
	return nil
}

func (self *FSBucket) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := afero.ReadFile(self.fs, self.path(key))
	if err != nil {
		return nil, fmt.Errorf("syncer: read object %q: %w", key, err)
	}
	return data, nil
}

func (self *FSBucket) List(ctx context.Context, prefix string,
) ([]string, error) {
	var keys []string
	err := afero.Walk(self.fs, self.root,
		func(name string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return err
			}
			rel, err := filepath.Rel(self.root, name)
			if err != nil {
				return err
			}
			key := path.Clean(filepath.ToSlash(rel))
			if strings.HasSuffix(key, ".tmp") ||
				!strings.HasPrefix(key, prefix) {
				return nil
			}
			keys = append(keys, key)
			return nil
		})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("syncer: list objects %q: %w", prefix, err)
	}
	return keys, nil
}

func (self *FSBucket) Delete(ctx context.Context, key string) error {
	if err := self.fs.Remove(self.path(key)); err != nil &&
		!os.IsNotExist(err) {
		return fmt.Errorf("syncer: delete object %q: %w", key, err)
	}
	return nil
}
