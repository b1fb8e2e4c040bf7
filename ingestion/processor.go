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


package ingestion

import (
	"context"
	"iter"

	"github.com/poiesic/lexrag/core"
	"github.com/poiesic/lexrag/crawler"
)

// PageSource yields the pages of a website. *crawler.Crawler implements it.
type PageSource interface {
	Crawl(ctx context.Context, source *core.Source) iter.Seq[crawler.Page]
}

// processor turns one extracted document into stored entries.
type processor interface {
	// process chunks, embeds and stores doc. The returned error is non-nil
	// only when the run must stop; unit-level failures are reported in the
	// result.
	process(ctx context.Context, unit string, doc *core.ExtractedDocument) (core.UnitResult, error)
}
