// Package capture models live media streams and acquires them from the
// platform capture layer. It handles source selection, video-track discard,
// and microphone fallback errors.
package capture
