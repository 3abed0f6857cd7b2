package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	historyContentCap = 800
	replyTextCap      = 1200
)

type OpenAIProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

func NewOpenAIProvider(baseURL, apiKey, model string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

type openAIMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatReq struct {
	Model       string      `json:"model"`
	Messages    []openAIMsg `json:"messages"`
	Temperature float64     `json:"temperature"`
}

type openAIChatResp struct {
	Choices []struct {
		Message openAIMsg `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func systemPrompt(patientContext string) string {
	if strings.TrimSpace(patientContext) == "" {
		patientContext = "none"
	}
	return strings.TrimSpace(fmt.Sprintf(`
You are a health assistant for a personal health-companion app.
Be brief, cautious and never diagnose. Always suggest seeing a professional for anything serious.
Respond with a JSON object: {"reply_text": string, "suggested_medication": string or null}.
Only fill suggested_medication with a single over-the-counter medication name when clearly appropriate.
Patient context: %s.`, patientContext))
}

func cap800(s string) string {
	if len(s) > historyContentCap {
		return s[:historyContentCap]
	}
	return s
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, patientContext string) (Reply, error) {
	if p.Client == nil {
		return Reply{}, errors.New("openai: http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return Reply{}, errors.New("openai: api key is required")
	}

	msgs := make([]openAIMsg, 0, len(messages)+1)
	msgs = append(msgs, openAIMsg{Role: "system", Content: systemPrompt(patientContext)})
	for _, m := range messages {
		msgs = append(msgs, openAIMsg{Role: m.Role, Content: cap800(m.Content)})
	}

	b, err := json.Marshal(openAIChatReq{
		Model:       p.Model,
		Messages:    msgs,
		Temperature: 0.3,
	})
	if err != nil {
		return Reply{}, err
	}

	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return Reply{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return Reply{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return Reply{}, fmt.Errorf("openai: %s", msg)
	}

	var decoded openAIChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Reply{}, err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return Reply{}, errors.New(decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return Reply{}, errors.New("openai: empty response")
	}

	return parseReply(decoded.Choices[0].Message.Content), nil
}

// parseReply expects the structured JSON the prompt asks for, but models do
// not always comply; raw text falls back to a plain reply with no suggestion.
func parseReply(raw string) Reply {
	var out Reply
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out.Text == "" {
		out = Reply{Text: raw}
	}
	if len(out.Text) > replyTextCap {
		out.Text = out.Text[:replyTextCap]
	}
	if out.SuggestedMedication != nil && strings.TrimSpace(*out.SuggestedMedication) == "" {
		out.SuggestedMedication = nil
	}
	return out
}
