package model

// StageStatus is the outcome of a single pipeline stage.
type StageStatus string

const (
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
)

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	CacheCreationTokens int     `json:"cache_creation_tokens,omitempty"`
	CacheReadTokens     int     `json:"cache_read_tokens,omitempty"`
	Cost                float64 `json:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.CacheCreationTokens += other.CacheCreationTokens
	t.CacheReadTokens += other.CacheReadTokens
	t.Cost += other.Cost
}

// Total returns input plus output tokens.
func (t TokenUsage) Total() int {
	return t.InputTokens + t.OutputTokens
}

// StageResult records the outcome of one pipeline stage.
type StageResult struct {
	Name       string      `json:"name"`
	Status     StageStatus `json:"status"`
	Duration   int64       `json:"duration_ms"`
	Provider   string      `json:"provider,omitempty"`
	Model      string      `json:"model,omitempty"`
	TokenUsage TokenUsage  `json:"token_usage"`
	Error      string      `json:"error,omitempty"`
}
