// Package recorder accumulates asynchronously delivered encoded audio chunks
// from a live stream into a single finished blob, in arrival order.
package recorder
