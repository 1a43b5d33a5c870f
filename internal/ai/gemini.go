package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// GeminiProvider talks to the Gemini generateContent REST API. When a
// ToolDispatcher is set, its declarations are offered on every text turn and
// at most one tool round is executed per turn.
type GeminiProvider struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float64
	Tools       ToolDispatcher
	Client      *http.Client
}

func NewGeminiProvider(baseURL, model, apiKey string, tools ToolDispatcher) *GeminiProvider {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiProvider{
		BaseURL:     baseURL,
		Model:       model,
		APIKey:      apiKey,
		Temperature: 0.5,
		Tools:       tools,
		Client:      &http.Client{Timeout: 90 * time.Second},
	}
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	InlineData       *geminiInlineData       `json:"inlineData,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiTool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

type geminiGenConfig struct {
	Temperature float64 `json:"temperature"`
}

type geminiReq struct {
	Contents         []geminiContent  `json:"contents"`
	Tools            []geminiTool     `json:"tools,omitempty"`
	GenerationConfig *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiResp struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func historyContents(history []Message) []geminiContent {
	out := make([]geminiContent, 0, len(history)+1)
	for _, m := range history {
		out = append(out, geminiContent{
			Role:  m.Role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	return out
}

func (p *GeminiProvider) Chat(ctx context.Context, history []Message, prompt string) (string, error) {
	contents := append(historyContents(history), geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: prompt}},
	})

	resp, err := p.generate(ctx, contents, true)
	if err != nil {
		return "", err
	}

	call := firstFunctionCall(resp)
	if call == nil {
		return candidateText(resp)
	}
	if p.Tools == nil {
		return "", fmt.Errorf("gemini: model requested tool %q but no dispatcher is configured", call.Name)
	}

	result, err := p.Tools.Dispatch(ctx, call.Name, call.Args)
	if err != nil {
		return "", fmt.Errorf("gemini: tool %s: %w", call.Name, err)
	}

	// One tool round: echo the model's call, answer it, ask again.
	contents = append(contents,
		resp.Candidates[0].Content,
		geminiContent{
			Role: "user",
			Parts: []geminiPart{{FunctionResponse: &geminiFunctionResponse{
				Name:     call.Name,
				Response: result,
			}}},
		},
	)

	final, err := p.generate(ctx, contents, true)
	if err != nil {
		return "", err
	}
	return candidateText(final)
}

func (p *GeminiProvider) ChatImage(ctx context.Context, history []Message, prompt string, image []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	contents := append(historyContents(history), geminiContent{
		Role: "user",
		Parts: []geminiPart{
			{Text: prompt},
			{InlineData: &geminiInlineData{
				MimeType: mimeType,
				Data:     base64.StdEncoding.EncodeToString(image),
			}},
		},
	})

	// Image turns go straight to the model, no tool round.
	resp, err := p.generate(ctx, contents, false)
	if err != nil {
		return "", err
	}
	return candidateText(resp)
}

func (p *GeminiProvider) generate(ctx context.Context, contents []geminiContent, withTools bool) (*geminiResp, error) {
	if p.Client == nil {
		return nil, errors.New("gemini: http client is nil")
	}

	reqBody := geminiReq{
		Contents:         contents,
		GenerationConfig: &geminiGenConfig{Temperature: p.Temperature},
	}
	if withTools && p.Tools != nil {
		if decls := p.Tools.Declarations(); len(decls) > 0 {
			reqBody.Tools = []geminiTool{{FunctionDeclarations: decls}}
		}
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.BaseURL, p.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded geminiResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("gemini: api error %d: %s", decoded.Error.Code, decoded.Error.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gemini: status %d", resp.StatusCode)
	}
	return &decoded, nil
}

func firstFunctionCall(r *geminiResp) *geminiFunctionCall {
	if len(r.Candidates) == 0 {
		return nil
	}
	for _, part := range r.Candidates[0].Content.Parts {
		if part.FunctionCall != nil {
			return part.FunctionCall
		}
	}
	return nil
}

func candidateText(r *geminiResp) (string, error) {
	if len(r.Candidates) == 0 {
		return "", errors.New("gemini: empty response")
	}
	var text string
	for _, part := range r.Candidates[0].Content.Parts {
		text += part.Text
	}
	if text == "" {
		return "", errors.New("gemini: response has no text")
	}
	return text, nil
}
