// Package reembed rewrites the vector of every indexed chunk using the
// configured embedder, for example after switching to a retrained model of
// the same dimension.
// Entries are processed in batches with retry and exponential backoff, and
// every new vector is normalized before it is stored.
package reembed
