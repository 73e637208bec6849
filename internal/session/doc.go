// Package session owns the recording lifecycle state machine.
//
// A Controller runs one recording attempt at a time through
// Idle -> Recording -> Transcribing -> Idle, entering Error on any stage
// failure. It exclusively owns the capture streams, the mixing graph, and
// the recorder for the active attempt, and releases all of them
// unconditionally on every stop transition. When system-audio capture is
// unavailable the controller falls back to microphone-only capture for the
// rest of the session, surfacing a warning instead of failing.
package session
