// Package transcode converts recorded compressed audio into the canonical
// 16-bit PCM WAV container expected by the transcription engine.
package transcode
