// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianAudit/pkg/validation"
	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
)

// CatalogFile is the on-disk YAML shape of the requirement seed file.
type CatalogFile struct {
	Frameworks []datatypes.Catalog `yaml:"frameworks"`
}

// CatalogStore holds the requirement catalogs loaded at startup.
//
// Catalogs are immutable after load. The pipeline reads them on every
// audit, so they stay in memory rather than in Badger.
type CatalogStore struct {
	mu       sync.RWMutex
	catalogs map[string]datatypes.Catalog
}

// NewCatalogStore creates an empty catalog store.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{catalogs: make(map[string]datatypes.Catalog)}
}

// LoadFile reads and validates a YAML seed file, registering every
// framework it defines. An invalid requirement fails the whole load;
// auditing against a half-loaded catalog would silently skip
// obligations.
func (c *CatalogStore) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog seed file: %w", err)
	}
	return c.Load(data)
}

// Load parses and registers catalogs from YAML bytes.
func (c *CatalogStore) Load(data []byte) error {
	var file CatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse catalog seed: %w", err)
	}
	if len(file.Frameworks) == 0 {
		return fmt.Errorf("catalog seed defines no frameworks")
	}

	for _, catalog := range file.Frameworks {
		if err := validation.ValidateFrameworkName(catalog.Framework.Name); err != nil {
			return fmt.Errorf("catalog seed: %w", err)
		}
		if len(catalog.Requirements) == 0 {
			return fmt.Errorf("framework %q has no requirements", catalog.Framework.Name)
		}
		seen := make(map[string]bool, len(catalog.Requirements))
		for _, req := range catalog.Requirements {
			if err := req.Validate(); err != nil {
				return fmt.Errorf("framework %q: %w", catalog.Framework.Name, err)
			}
			if err := validation.ValidateRequirementID(req.ID); err != nil {
				return fmt.Errorf("framework %q: %w", catalog.Framework.Name, err)
			}
			if seen[req.ID] {
				return fmt.Errorf("framework %q has duplicate requirement %s", catalog.Framework.Name, req.ID)
			}
			seen[req.ID] = true
		}

		c.mu.Lock()
		c.catalogs[catalog.Framework.Name] = catalog
		c.mu.Unlock()
	}
	return nil
}

// Catalog returns the catalog for a framework name.
func (c *CatalogStore) Catalog(name string) (datatypes.Catalog, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	catalog, ok := c.catalogs[name]
	return catalog, ok
}

// Frameworks lists the loaded frameworks, sorted by name.
func (c *CatalogStore) Frameworks() []datatypes.Framework {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]datatypes.Framework, 0, len(c.catalogs))
	for _, catalog := range c.catalogs {
		out = append(out, catalog.Framework)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
