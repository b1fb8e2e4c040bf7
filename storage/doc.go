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


// Package storage provides the storage abstraction layer for lexrag.
//
// This package defines the repository interfaces that decouple persistence
// from the ingestion and retrieval logic, plus the binary codec shared by
// every backend.
//
// # Constructor Return Type Pattern
//
// Public constructors in backend packages return these interfaces:
//
//	store, err := badger.NewVectorStore(backend, "legal_documents", 384)  // returns storage.VectorStore
//
// Internal constructors may return concrete types since they're only used
// within the implementation package.
//
// # Architecture
//
//   - VectorStore: chunk embeddings with dedup-on-upsert and similarity search
//   - SourceRepository: the configured websites to crawl
//   - RunLog: audit log of ingestion run reports
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines. VectorStore writes are
// serialized internally.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support.
package storage
