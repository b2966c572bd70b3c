package domain

// AIResult is the outcome of one AI executor call.
type AIResult struct {
	Content          string  `json:"content"`
	Cost             float64 `json:"cost"`
	TotalTokens      int     `json:"total_tokens"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	Model            string  `json:"model"`
}
