// Package mixer combines two live audio streams into one output stream
// through per-input gain stages and a summing destination node.
package mixer
