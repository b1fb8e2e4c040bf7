// Package ingestion orchestrates ingestion runs.
//
// A run crawls every requested source and reads every uploaded file, then
// pushes each extracted document through chunking, embedding and the vector
// store. Work is spread over two worker pools: one for sources and files,
// one for embedding batches. A unit that fails is recorded in the run report
// and the run continues; a vector store failure aborts the run.
//
// Every finished run, successful or not, is appended to the run log.
package ingestion
