package domain

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationRequest is a provider-neutral completion request. MaxTokens
// caps output length; zero means provider default.
type GenerationRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}
