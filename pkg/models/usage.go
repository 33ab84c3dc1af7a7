package models

// Usage accounts oracle consumption for one call or an aggregate of calls
type Usage struct {
	Calls           int     `json:"calls"`
	InputTokens     int     `json:"input_tokens"`
	OutputTokens    int     `json:"output_tokens"`
	EmbeddingTokens int     `json:"embedding_tokens"`
	CostUSD         float64 `json:"cost_usd"`
}

// Add accumulates other into u
func (u *Usage) Add(other Usage) {
	u.Calls += other.Calls
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.EmbeddingTokens += other.EmbeddingTokens
	u.CostUSD += other.CostUSD
}

// IsZero reports whether nothing was consumed
func (u Usage) IsZero() bool {
	return u == Usage{}
}
