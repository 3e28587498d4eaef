// Package api provides an HTTP API server for inspecting refinement runs and
// the turn history behind every answer.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string
}
