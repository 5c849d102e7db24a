package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"quizdeck/internal/platform/config"
	dErrors "quizdeck/pkg/domainerrors"
)

// OpenAIGenerator generates questions through the chat completions API. The
// document travels inline as a data URL so no uploaded file is left behind
// on the provider side.
type OpenAIGenerator struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

func NewOpenAIGenerator(cfg config.OpenAI, logger *slog.Logger) *OpenAIGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIGenerator{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

const systemPrompt = "You are an expert in pedagogy and assessment design. " +
	"You generate high-quality quiz questions adapted to the learner's " +
	"education level, covering recall, comprehension, application and analysis."

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate exactly %d multiple-choice questions based on the following document.\n\n", req.QuestionCount)
	fmt.Fprintf(&b, "Document title: %s\n", req.Title)
	if req.EducationLevel != "" {
		fmt.Fprintf(&b, "Education level: %s. Adapt vocabulary and complexity to this audience.\n", req.EducationLevel)
	}
	fmt.Fprintf(&b, "Requested difficulty: %s\n", req.Difficulty)
	if req.Instructions != "" {
		fmt.Fprintf(&b, "Additional instructions: %s\n", req.Instructions)
	}
	b.WriteString(`
Rules:
- Each question has exactly 4 options with a single correct answer.
- Distractors must be plausible but clearly incorrect.
- Vary the cognitive level across questions.

Respond with JSON only, no extra text, in this structure:
{"questions":[{"question_text":"...","difficulty":"...","answers":[{"text":"...","is_correct":true},{"text":"...","is_correct":false},{"text":"...","is_correct":false},{"text":"...","is_correct":false}]}]}
`)
	return b.String()
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) ([]GeneratedQuestion, error) {
	if g.apiKey == "" {
		return nil, dErrors.New(dErrors.CodeUnavailable, "question generator is not configured")
	}

	userContent := []map[string]any{
		{"type": "text", "text": buildPrompt(req)},
	}
	if len(req.Content) > 0 {
		dataURL := fmt.Sprintf("data:%s;base64,%s",
			req.ContentType, base64.StdEncoding.EncodeToString(req.Content))
		userContent = append(userContent, map[string]any{
			"type":      "image_url",
			"image_url": map[string]string{"url": dataURL},
		})
	}

	payload, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
		MaxTokens:   2500,
		Temperature: 0.6,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build generation request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, dErrors.WithAction(
			dErrors.Wrap(err, dErrors.CodeUnavailable, "question generation failed"),
			dErrors.ActionRetryRequired,
		)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read generation response: %w", err)
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "malformed generation response")
	}
	if resp.StatusCode != http.StatusOK {
		msg := "question generation failed"
		if chat.Error != nil && chat.Error.Message != "" {
			msg = chat.Error.Message
		}
		g.logger.ErrorContext(ctx, "generation request rejected",
			"status", resp.StatusCode,
			"message", msg,
		)
		return nil, dErrors.WithAction(
			dErrors.New(dErrors.CodeUnavailable, msg),
			dErrors.ActionRetryRequired,
		)
	}
	if len(chat.Choices) == 0 {
		return nil, dErrors.New(dErrors.CodeUnavailable, "generation returned no choices")
	}

	return ParseQuestions(chat.Choices[0].Message.Content)
}

// ParseQuestions decodes the model's JSON payload, tolerating markdown code
// fences around it.
func ParseQuestions(content string) ([]GeneratedQuestion, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var parsed struct {
		Questions []GeneratedQuestion `json:"questions"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "generation returned invalid JSON")
	}
	if len(parsed.Questions) == 0 {
		return nil, dErrors.New(dErrors.CodeUnavailable, "generation returned no questions")
	}
	return parsed.Questions, nil
}
