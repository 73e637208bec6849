// Package fsstore is the filesystem persistence layer.
//
// It keeps recordings, transcripts, and chat history under one data
// directory and assigns recording ids at save time. It backs both the
// recording pipeline (saving and registering completed recordings) and the
// meeting store (enumeration, transcript reads, chat history persistence).
package fsstore
