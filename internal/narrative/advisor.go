package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// summaryPrompt is the fixed system prompt for the executive summary. The
// helper vars give the model the headline numbers without making it parse
// the JSON.
const summaryPrompt = "You are a senior grid-control engineer. Summarise the grid report " +
	"in exactly 5 concise bullets (no greetings or closings). " +
	"Use the helper vars: v_min=%s, v_max=%s, active_outages=%d. " +
	"Focus on impact, root-cause, next actions.\n\nJSON:\n%s"

const emptySummaryPlaceholder = "(model produced an empty summary)"

type Config struct {
	AccountID string
	APIToken  string
	Model     string
	BaseURL   string
}

// Payload is the condensed report sent to the summarization endpoint.
type Payload struct {
	Status  string         `json:"status"`
	Voltage VoltageFigures `json:"voltage"`
	Outages OutageCounts   `json:"outages"`
	Weather []string       `json:"weather"`
	Alerts  []string       `json:"alerts"`
	Actions []string       `json:"actions"`
}

// VoltageFigures carries the stats pre-formatted to 3 decimal places.
type VoltageFigures struct {
	Min string `json:"min"`
	Max string `json:"max"`
	Avg string `json:"avg"`
}

type OutageCounts struct {
	Active   int `json:"active"`
	Resolved int `json:"resolved"`
}

// Advisor is a best-effort remote summarizer. Summarize never returns an
// error: every failure mode degrades to an absent result so that report
// generation cannot be blocked by the advisory endpoint.
type Advisor struct {
	cfg    Config
	client *http.Client
}

func NewAdvisor(cfg Config, client *http.Client) *Advisor {
	if cfg.Model == "" {
		cfg.Model = "@cf/meta/llama-2-7b-chat-int8"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cloudflare.com/client/v4/accounts"
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Advisor{cfg: cfg, client: client}
}

// Enabled reports whether both credentials are configured.
func (a *Advisor) Enabled() bool {
	return a.cfg.AccountID != "" && a.cfg.APIToken != ""
}

type requestBody struct {
	Messages []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseBody struct {
	Result struct {
		Response *string `json:"response"`
	} `json:"result"`
}

// Summarize posts the condensed report and returns the trimmed summary
// text. The second return value is false whenever no summary is available:
// missing credentials, transport failure, non-200 status or an unexpected
// response shape.
func (a *Advisor) Summarize(ctx context.Context, p Payload) (string, bool) {
	if !a.Enabled() {
		log.Println("Narrative credentials not configured - skipping executive summary")
		return "", false
	}

	reportJSON, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		log.Printf("Narrative payload marshal failed: %v", err)
		return "", false
	}

	prompt := fmt.Sprintf(summaryPrompt, p.Voltage.Min, p.Voltage.Max, p.Outages.Active, reportJSON)
	body, err := json.Marshal(requestBody{
		Messages: []message{{Role: "system", Content: prompt}},
	})
	if err != nil {
		log.Printf("Narrative request marshal failed: %v", err)
		return "", false
	}

	endpoint := fmt.Sprintf("%s/%s/ai/run/%s",
		strings.TrimRight(a.cfg.BaseURL, "/"), a.cfg.AccountID, a.cfg.Model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		log.Printf("Narrative request build failed: %v", err)
		return "", false
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		log.Printf("Narrative request failed: %v", err)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("Narrative API error: %s - %s", resp.Status, strings.TrimSpace(string(detail)))
		return "", false
	}

	var payload responseBody
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		log.Printf("Narrative decode failed: %v", err)
		return "", false
	}
	if payload.Result.Response == nil {
		log.Println("Narrative API returned an unexpected response format")
		return "", false
	}

	summary := strings.TrimSpace(*payload.Result.Response)
	if summary == "" {
		return emptySummaryPlaceholder, true
	}
	return summary, true
}
