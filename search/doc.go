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


// Package search retrieves indexed legal text for a query and turns the hits
// into answer context.
//
// Retrieval embeds the query, asks the vector store for the closest chunks
// above a score threshold, and flags hits containing every query keyword.
// Scores are absolute, so a threshold means the same thing for every query.
//
// BuildPrompt assembles the hits into a bounded context block in front of the
// question, and Searcher.Answer sends that prompt to a Generator.
package search
