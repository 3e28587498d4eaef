package credentials

// KeyFile is the decoded form of credentials.toml: one API key per LLM
// backend that ligandx can refine documents against.
//
//	version = 0
//
//	[backends.openai]
//	api_key = "sk-..."
type KeyFile struct {
	Version  int                   `toml:"version"`
	Backends map[string]BackendKey `toml:"backends"`
}

// BackendKey is the stored secret for a single backend.
type BackendKey struct {
	APIKey string `toml:"api_key"`
}
