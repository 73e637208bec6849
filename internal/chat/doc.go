// Package chat queries a remote chat completion endpoint about meeting
// transcripts and maintains the per-meeting conversation protocol.
package chat
