// Package store maintains the persisted collection of meetings: recording
// metadata, lazily fetched transcripts, and append-only chat histories.
package store
