package llm

// Inherit returns c with every unset field taken from base. It lets a second
// stage reuse the first stage's provider and credentials while overriding
// only what it names, e.g. a different model for polishing. An explicit
// temperature of 0 is kept.
func (c Config) Inherit(base Config) Config {
	out := c
	if out.Provider == "" {
		out.Provider = base.Provider
	}
	if out.Model == "" && out.Provider == base.Provider {
		out.Model = base.Model
	}
	if out.APIKey == "" && out.Provider == base.Provider {
		out.APIKey = base.APIKey
	}
	if out.BaseURL == "" && out.Provider == base.Provider {
		out.BaseURL = base.BaseURL
	}
	if out.MaxRetries == 0 {
		out.MaxRetries = base.MaxRetries
	}
	if out.Timeout == 0 {
		out.Timeout = base.Timeout
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = base.MaxTokens
	}
	if out.Temperature == nil {
		out.Temperature = base.Temperature
	}
	return out
}
