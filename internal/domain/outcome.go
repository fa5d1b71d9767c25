package domain

// Action is one acted-upon contact extracted from an agent summary.
type Action struct {
	Line    string `json:"line"`
	Contact string `json:"contact"`
	Message string `json:"message,omitempty"`
	// SkipReport is set when the line reports a skip before it mentions
	// the action, as in "Skipped Bob: already wished today".
	SkipReport bool `json:"skip_report,omitempty"`
}

// RunOutcome is the structured view of an agent's free-text summary.
type RunOutcome struct {
	RawSummary string   `json:"raw_summary"`
	Acted      []string `json:"acted"`
	Actions    []Action `json:"actions"`
	Skipped    int      `json:"skipped"`
}

// BrowserContext is a handle to the reusable browsing context the agent
// drives. Endpoint is empty when the agent manages its own browser.
type BrowserContext struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint,omitempty"`
}
