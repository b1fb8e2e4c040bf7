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
	"errors"
	"fmt"
)

// Ingestion error taxonomy. Every failure surfaced by the pipeline wraps one of these.
var (
	// ErrFetch indicates a network, timeout or non-2xx failure while fetching a unit.
	ErrFetch = errors.New("fetch failed")

	// ErrExtraction indicates malformed input that could not be turned into text.
	ErrExtraction = errors.New("extraction failed")

	// ErrContentTooShort indicates extracted text below the minimum length.
	// It is a filtering decision, not a failure.
	ErrContentTooShort = errors.New("content too short")

	// ErrChunkConfig indicates an invalid chunk size or overlap.
	ErrChunkConfig = errors.New("invalid chunk configuration")

	// ErrEmbedding indicates the embedding capability failed or returned a bad vector.
	ErrEmbedding = errors.New("embedding failed")

	// ErrStore indicates an I/O failure in the persistent index.
	ErrStore = errors.New("store failure")
)

// Validation errors
var (
	// ErrInvalidSource indicates a Source failed validation.
	ErrInvalidSource = errors.New("invalid source")

	// ErrInvalidEntry indicates an IndexedEntry failed validation.
	ErrInvalidEntry = errors.New("invalid entry")

	// ErrDimensionMismatch indicates a vector whose length differs from the collection dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Stage names the pipeline step where a unit failed.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
	StageChunk   Stage = "chunk"
	StageEmbed   Stage = "embed"
	StageStore   Stage = "store"
)

// StageError attaches the failing stage and unit to an underlying error.
type StageError struct {
	Stage Stage
	Unit  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Unit, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with stage and unit context.
func NewStageError(stage Stage, unit string, err error) *StageError {
	return &StageError{Stage: stage, Unit: unit, Err: err}
}
