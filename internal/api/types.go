package api

// Content part types understood by OpenAI-compatible chat endpoints
const (
	ContentTypeText     = "text"
	ContentTypeImageURL = "image_url"
)

// ContentPart is one block of a multimodal user message
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an image reference, here always a base64 data URI
type ImageURL struct {
	URL string `json:"url"`
}

// Message represents a single chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ChatRequest is the body posted to every backend
type ChatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

// ChatResponse is the subset of a chat completion the dispatcher reads
type ChatResponse struct {
	Choices []Choice `json:"choices"`
}

// Choice is one completion candidate
type Choice struct {
	Message ChoiceMessage `json:"message"`
}

// ChoiceMessage holds the answer text; nil means the field was absent
type ChoiceMessage struct {
	Content *string `json:"content"`
}

// AggregatedResponse maps each configured backend key to its answer or error text
type AggregatedResponse map[string]string

// BackendInfo is the public view of a configured backend
type BackendInfo struct {
	Key       string `json:"key"`
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
}
