package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxResponseBytes = 1 << 20

const classifyPrompt = `You moderate messages in a marketplace chat between two users who have not yet completed a booking.
Flag the message if it shares personal contact details (phone numbers, emails, addresses, national ids)
or tries to move the conversation to another platform (social media handles, messaging apps).
Return ONLY a JSON object with these fields:
- "filtered": true if the message must be redacted
- "content": the message with every offending part replaced by a bracketed type such as [PHONE_NUMBER] or [SOCIAL_MEDIA]; the original message if not filtered
- "detected": list of detected types
- "confidence": float 0.0-1.0
- "reasoning": one short sentence

Message:
%s`

var errNoVerdict = errors.New("no JSON object in model response")

// llmVerdict is the JSON object the prompt asks the model to return.
type llmVerdict struct {
	Filtered   bool     `json:"filtered"`
	Content    string   `json:"content"`
	Detected   []string `json:"detected"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// parseVerdict extracts the first {...} block from free-form model output.
func parseVerdict(raw, provider string) (Verdict, error) {
	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end <= start {
		return Verdict{}, errNoVerdict
	}

	var lv llmVerdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &lv); err != nil {
		return Verdict{}, fmt.Errorf("verdict parse error: %w", err)
	}
	if lv.Confidence < 0 || lv.Confidence > 1 {
		return Verdict{}, fmt.Errorf("confidence out of range: %v", lv.Confidence)
	}

	return Verdict{
		Filtered:   lv.Filtered,
		Content:    lv.Content,
		Detected:   lv.Detected,
		Confidence: lv.Confidence,
		Reasoning:  lv.Reasoning,
		Provider:   provider,
	}, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("response parse error: %w", err)
	}
	return nil
}

// OllamaProvider classifies with a local Ollama model via /api/generate.
type OllamaProvider struct {
	url    string
	model  string
	client *http.Client
}

func NewOllamaProvider(baseURL, model string, client *http.Client) *OllamaProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &OllamaProvider{url: strings.TrimRight(baseURL, "/") + "/api/generate", model: model, client: client}
}

func (p *OllamaProvider) Name() string { return "ollama:" + p.model }

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

func (p *OllamaProvider) Classify(ctx context.Context, text string) (Verdict, error) {
	var resp ollamaResponse
	err := postJSON(ctx, p.client, p.url, nil, ollamaRequest{
		Model:  p.model,
		Prompt: fmt.Sprintf(classifyPrompt, text),
		Stream: false,
		Format: "json",
	}, &resp)
	if err != nil {
		return Verdict{}, err
	}
	return parseVerdict(resp.Response, p.Name())
}

// OpenAIProvider classifies with any OpenAI compatible chat completions API.
type OpenAIProvider struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

func NewOpenAIProvider(baseURL, apiKey, model string, client *http.Client) *OpenAIProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIProvider{
		url:    strings.TrimRight(baseURL, "/") + "/v1/chat/completions",
		apiKey: apiKey,
		model:  model,
		client: client,
	}
}

func (p *OpenAIProvider) Name() string { return "openai:" + p.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (p *OpenAIProvider) Classify(ctx context.Context, text string) (Verdict, error) {
	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	var resp chatResponse
	err := postJSON(ctx, p.client, p.url, headers, chatRequest{
		Model:    p.model,
		Messages: []chatMessage{{Role: "user", Content: fmt.Sprintf(classifyPrompt, text)}},
	}, &resp)
	if err != nil {
		return Verdict{}, err
	}
	if len(resp.Choices) == 0 {
		return Verdict{}, errNoVerdict
	}
	return parseVerdict(resp.Choices[0].Message.Content, p.Name())
}
