// Package insights wraps the external AI summarization service. It never
// surfaces an error to its callers: every failure degrades to a fixed
// human-readable string.
package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"attendx/internal/model"
)

// Degraded outputs when the service is unavailable or misbehaves.
const (
	MsgMissingKey  = "AI Insights unavailable: Missing API Key."
	MsgServiceErr  = "Error generating AI insights."
	MsgNoInsights  = "No insights generated."
	systemPrompt   = "You are an educational consultant. Provide a concise, professional summary and recommendations."
	defaultModelID = "gemini-3-flash-preview"
)

// Summarizer turns eligibility stats into a short prose report.
type Summarizer interface {
	Summarize(ctx context.Context, stats []model.StudentStats) string
}

// Client calls a Gemini-style generative-language endpoint.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	HTTP    *http.Client
}

// New creates a summarizer client. An empty apiKey is allowed; Summarize
// then returns the missing-key message instead of calling out.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   defaultModelID,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

type generateRequest struct {
	SystemInstruction string  `json:"system_instruction"`
	Contents          string  `json:"contents"`
	Temperature       float64 `json:"temperature"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// Summarize asks the service how many students meet the 75% requirement
// and who is at risk. Soft-fails by contract.
func (c *Client) Summarize(ctx context.Context, stats []model.StudentStats) string {
	if c.APIKey == "" {
		return MsgMissingKey
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return MsgServiceErr
	}
	body, err := json.Marshal(generateRequest{
		SystemInstruction: systemPrompt,
		Contents: "Analyze the following student attendance data and provide a brief summary of " +
			"how many students are meeting the 75% requirement and any students at risk. Data: " + string(data),
		Temperature: 0.7,
	})
	if err != nil {
		return MsgServiceErr
	}

	url := fmt.Sprintf("%s/v1/models/%s:generateContent", c.BaseURL, c.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return MsgServiceErr
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return MsgServiceErr
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return MsgServiceErr
	}
	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return MsgServiceErr
	}
	if out.Text == "" {
		return MsgNoInsights
	}
	return out.Text
}
