// Package metrics defines Prometheus instrumentation for the recording,
// transcription, and chat pipeline.
package metrics
