// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package config // import "newshub.app/internal/config"

import (
	"fmt"
	"os"

	yaml "go.yaml.in/yaml/v4"

	"newshub.app/internal/model"
)

type sourcesFile struct {
	Sources []model.FeedSource `yaml:"sources" validate:"required,dive"`
}

// LoadSources reads the list of configured feed sources from a YAML file.
// Source IDs must be unique.
func LoadSources(filename string) ([]model.FeedSource, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: read sources file: %w", err)
	}
	return parseSources(b)
}

func parseSources(b []byte) ([]model.FeedSource, error) {
	var f sourcesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("config: parse sources file: %w", err)
	}

	if err := Validator().Struct(&f); err != nil {
		return nil, fmt.Errorf("config: validate sources: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Sources))
	for i := range f.Sources {
		id := f.Sources[i].ID
		if _, ok := seen[id]; ok {
			return nil, fmt.Errorf("config: duplicate source id %q", id)
		}
		seen[id] = struct{}{}
	}
	return f.Sources, nil
}
