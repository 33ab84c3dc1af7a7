package embeddings

// Known embedding models
const (
	ModelTextEmbedding3Small = "openai/text-embedding-3-small"
	ModelTextEmbedding3Large = "openai/text-embedding-3-large"
	ModelTextEmbeddingAda002 = "openai/text-embedding-ada-002"
	ModelGeminiEmbedding001  = "gemini-embedding-001"

	DefaultModel = ModelTextEmbedding3Small
)

type modelSpec struct {
	dimensions     int
	maxInputTokens int
}

var modelSpecs = map[string]modelSpec{
	ModelTextEmbedding3Small: {dimensions: 1536, maxInputTokens: 8191},
	ModelTextEmbedding3Large: {dimensions: 3072, maxInputTokens: 8191},
	ModelTextEmbeddingAda002: {dimensions: 1536, maxInputTokens: 8191},
	ModelGeminiEmbedding001:  {dimensions: 768, maxInputTokens: 2048},
}

func specFor(model string) modelSpec {
	if s, ok := modelSpecs[model]; ok {
		return s
	}
	return modelSpecs[DefaultModel]
}

// DimensionsOf returns the vector size a model produces.
// Unknown models are assumed to behave like DefaultModel.
func DimensionsOf(model string) int { return specFor(model).dimensions }

// MaxInputTokensOf returns the per-input token ceiling of a model
func MaxInputTokensOf(model string) int { return specFor(model).maxInputTokens }

// OpenAI-compatible /embeddings wire format

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Model string          `json:"model"`
	Usage tokenUsage      `json:"usage"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type tokenUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
