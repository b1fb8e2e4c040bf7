// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateSource validates a Source according to domain rules.
//
// Validation rules:
//   - Name must not be blank
//   - URL must be absolute with an http or https scheme and a host
func ValidateSource(source *Source) error {
	if source == nil {
		return fmt.Errorf("%w: source is nil", ErrInvalidSource)
	}
	if strings.TrimSpace(source.Name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidSource)
	}
	if err := ValidateSourceURL(source.URL); err != nil {
		return err
	}
	return nil
}

// ValidateSourceURL checks that raw is an absolute http(s) URL.
func ValidateSourceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: url must start with http:// or https://", ErrInvalidSource)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url has no host", ErrInvalidSource)
	}
	return nil
}

// ValidateEntry validates an IndexedEntry against the collection dimension.
//
// A zero-norm vector is rejected; any other norm is accepted and normalized by
// the store on write. Metadata is free-form and not validated.
func ValidateEntry(entry *IndexedEntry, dimension int) error {
	if entry == nil {
		return fmt.Errorf("%w: entry is nil", ErrInvalidEntry)
	}
	if entry.ID == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidEntry)
	}
	if entry.Text == "" {
		return fmt.Errorf("%w: text cannot be empty", ErrInvalidEntry)
	}
	if len(entry.Vector) != dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(entry.Vector), dimension)
	}
	if IsZeroVector(entry.Vector) {
		return fmt.Errorf("%w: entry %s has a zero-norm vector", ErrInvalidEntry, entry.ID)
	}
	return nil
}
