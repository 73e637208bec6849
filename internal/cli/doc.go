// Package cli implements the meetscribe command tree: record, meetings,
// chat, and doctor. It owns configuration loading, logger construction, and
// the wiring of the capture, transcription, storage, and chat subsystems.
package cli
