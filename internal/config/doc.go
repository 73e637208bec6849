// Package config provides configuration loading and validation for the
// meetscribe recording and chat pipeline.
package config
