// Package transcription hands recorded audio files to an external offline
// speech-to-text engine and relays its progress and result events.
package transcription
