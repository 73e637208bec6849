// Package media implements the platform media collaborators over ffmpeg:
// PulseAudio device capture, WebM/Opus encoding of live streams, and
// container decoding back to raw PCM. Everything above this package talks to
// interfaces; this is the only package that spawns processes for media work.
package media
