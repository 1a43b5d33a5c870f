package ai

import "context"

// Message is one turn of conversation context handed to a provider.
// Roles follow the Gemini convention: "user" and "model".
type Message struct {
	Role    string
	Content string
}

// Provider generates a reply to prompt given prior conversation history.
type Provider interface {
	Chat(ctx context.Context, history []Message, prompt string) (string, error)
}

// ImageProvider is implemented by providers that accept an image alongside
// the prompt.
type ImageProvider interface {
	ChatImage(ctx context.Context, history []Message, prompt string, image []byte, mimeType string) (string, error)
}

// FunctionDeclaration describes one callable tool exposed to the model.
// Parameters is an OpenAPI-style schema object.
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolDispatcher supplies tool declarations and executes a tool call the
// model requests mid-turn.
type ToolDispatcher interface {
	Declarations() []FunctionDeclaration
	Dispatch(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}
