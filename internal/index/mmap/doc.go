// Package mmap maps read-only index files into memory and manages their
// lifetime.
//
// A Mapping starts with one reference held by its opener. Readers that need
// the bytes to outlive a concurrent Close take their own reference with
// Acquire and drop it with Release; the region is unmapped when the last
// reference goes away.
//
// DeferredCloser replaces "sleep, then close" with an explicit queue: index
// readers hand their mappings to the closer with a grace period, and a single
// goroutine releases them once the period has elapsed.
package mmap
