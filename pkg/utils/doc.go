// Package utils provides helpers shared by the batch pipeline: panic recovery, bounded
// parallel loops and atomic file writes.
package utils
