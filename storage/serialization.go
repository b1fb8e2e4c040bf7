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


package storage

import (
	"github.com/poiesic/lexrag/core"
)

// recordVersion prefixes every encoded record. Version 2 stores vector
// components as fixed 4-byte floats.
const recordVersion = 2

func checkVersion(d *decoder) {
	if v := d.integer(); d.err == nil && v != recordVersion {
		d.fail(ErrSerializationFailed)
	}
}

// MarshalEntry serializes an IndexedEntry to bytes.
func MarshalEntry(entry *core.IndexedEntry) []byte {
	return encode(func(e *encoder) {
		e.integer(recordVersion)
		e.str(entry.ID)
		e.str(entry.DocumentID)
		e.str(entry.Text)
		e.str(entry.Source)
		e.vector(entry.Vector)
		e.stringMap(entry.Metadata)
		e.timestamp(entry.InsertedAt)
	})
}

// UnmarshalEntry deserializes an IndexedEntry from bytes.
func UnmarshalEntry(data []byte) (*core.IndexedEntry, error) {
	d := &decoder{bs: data}
	checkVersion(d)
	entry := &core.IndexedEntry{
		ID:         d.str(),
		DocumentID: d.str(),
		Text:       d.str(),
		Source:     d.str(),
		Vector:     d.vector(),
		Metadata:   d.stringMap(),
		InsertedAt: d.timestamp(),
	}
	if err := d.done(); err != nil {
		return nil, err
	}
	return entry, nil
}

// MarshalSource serializes a Source to bytes.
func MarshalSource(source *core.Source) []byte {
	return encode(func(e *encoder) {
		e.integer(recordVersion)
		e.str(source.Name)
		e.str(source.URL)
		e.str(source.Selector)
		e.strings(source.ExcludePatterns)
		e.timestamp(source.CreatedAt)
		e.timestamp(source.UpdatedAt)
	})
}

// UnmarshalSource deserializes a Source from bytes.
func UnmarshalSource(data []byte) (*core.Source, error) {
	d := &decoder{bs: data}
	checkVersion(d)
	source := &core.Source{
		Name:            d.str(),
		URL:             d.str(),
		Selector:        d.str(),
		ExcludePatterns: d.strings(),
		CreatedAt:       d.timestamp(),
		UpdatedAt:       d.timestamp(),
	}
	if err := d.done(); err != nil {
		return nil, err
	}
	return source, nil
}

// MarshalRunReport serializes a RunReport to bytes.
func MarshalRunReport(r *core.RunReport) []byte {
	return encode(func(e *encoder) {
		e.integer(recordVersion)
		e.u64(r.ID)
		e.str(r.Trigger)
		e.timestamp(r.StartedAt)
		e.timestamp(r.FinishedAt)
		for _, n := range []int{
			r.Scraped, r.TooShort, r.Failed, r.DocumentsAdded, r.DocumentsUnchanged,
			r.ChunksAdded, r.ChunksSkipped, r.EmbeddingFailures,
		} {
			e.integer(n)
		}
		e.integer(len(r.Errors))
		for _, ue := range r.Errors {
			e.str(ue.Source)
			e.str(ue.Unit)
			e.str(string(ue.Stage))
			e.str(ue.Message)
		}
		e.str(string(r.Status))
		e.boolean(r.Fatal != "")
		if r.Fatal != "" {
			e.str(r.Fatal)
		}
	})
}

// UnmarshalRunReport deserializes a RunReport from bytes.
func UnmarshalRunReport(data []byte) (*core.RunReport, error) {
	d := &decoder{bs: data}
	checkVersion(d)
	r := &core.RunReport{
		ID:                 d.u64(),
		Trigger:            d.str(),
		StartedAt:          d.timestamp(),
		FinishedAt:         d.timestamp(),
		Scraped:            d.integer(),
		TooShort:           d.integer(),
		Failed:             d.integer(),
		DocumentsAdded:     d.integer(),
		DocumentsUnchanged: d.integer(),
		ChunksAdded:        d.integer(),
		ChunksSkipped:      d.integer(),
		EmbeddingFailures:  d.integer(),
	}
	n := d.length()
	for range n {
		r.Errors = append(r.Errors, core.UnitError{
			Source:  d.str(),
			Unit:    d.str(),
			Stage:   core.Stage(d.str()),
			Message: d.str(),
		})
	}
	r.Status = core.RunStatus(d.str())
	if d.boolean() {
		r.Fatal = d.str()
	}
	if err := d.done(); err != nil {
		return nil, err
	}
	return r, nil
}
