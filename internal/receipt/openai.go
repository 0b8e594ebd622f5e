package receipt

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
	"time"

	"github.com/mmynk/splitsession/internal/models"
)

const receiptPrompt = `Extract all items, prices, quantities, and totals from this receipt. ` +
	`Format the response as a JSON object with the following structure: ` +
	`{ "merchant": string, "date": string in YYYY-MM-DD format, "currency": string, ` +
	`"items": [{ "id": string, "name": string, "quantity": number, "unitPrice": number, "totalPrice": number }], ` +
	`"charges": { "subTotal": number, "tax": number, "serviceCharge": number, "discount": number, "total": number } }. ` +
	`Respond with the JSON object only.`

// OpenAIConfig holds configuration for the OpenAI receipt analyzer.
type OpenAIConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int
}

// DefaultOpenAIConfig returns default configuration.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Model:     "gpt-4o",
		BaseURL:   "https://api.openai.com/v1",
		Timeout:   60 * time.Second,
		MaxTokens: 1000,
	}
}

// OpenAIAnalyzer implements Analyzer with the OpenAI chat completions API.
type OpenAIAnalyzer struct {
	cfg        OpenAIConfig
	httpClient *http.Client
	now        func() time.Time
}

var _ Analyzer = (*OpenAIAnalyzer)(nil)

// NewOpenAIAnalyzer creates an analyzer. Zero fields in cfg take their defaults.
func NewOpenAIAnalyzer(cfg OpenAIConfig) *OpenAIAnalyzer {
	def := DefaultOpenAIConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &OpenAIAnalyzer{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze sends the image to the model and returns the normalized bill.
// The call is bounded by the configured timeout and is not retried.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, image []byte, mimeType string) (*models.Bill, error) {
	mimeType, err := ImageType(image, mimeType)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	request := chatRequest{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: receiptPrompt},
				{Type: "image_url", ImageURL: &imageURL{
					URL: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
	}

	content, err := a.complete(ctx, request)
	if err != nil {
		return nil, err
	}

	var bill models.Bill
	if err := json.Unmarshal([]byte(extractJSON(content)), &bill); err != nil {
		slog.Warn("receipt response is not a bill", "error", err, "bytes", len(content))
		return nil, fmt.Errorf("%w: %v", ErrMalformedReceipt, err)
	}

	return Normalize(&bill, a.now())
}

func (a *OpenAIAnalyzer) complete(ctx context.Context, request chatRequest) (string, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/chat/completions", bytes.NewReader(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
			return "", fmt.Errorf("%w: OpenAI API error: %s (type: %s)", ErrUnavailable, errorResp.Error.Message, errorResp.Error.Type)
		}
		return "", fmt.Errorf("%w: OpenAI API returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("%w: failed to parse response: %v", ErrMalformedReceipt, err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrMalformedReceipt)
	}
	return response.Choices[0].Message.Content, nil
}

// extractJSON strips a markdown code fence if the model wrapped its answer in one.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimPrefix(content, "json")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
