package redata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the REData API (Red Eléctrica market/demand widgets).
type Client struct {
	baseURL string
	client  *http.Client
}

// Query selects a REData widget and window. Lang is "es" or "en";
// TimeTrunc is "hour", "day", "month" or "year". The Geo fields are
// optional.
type Query struct {
	Lang      string
	Category  string
	Widget    string
	StartDate time.Time
	EndDate   time.Time
	TimeTrunc string
	GeoTrunc  string
	GeoLimit  string
	GeoIDs    string
}

// WidgetData is the JSON:API shaped response body.
type WidgetData struct {
	Data struct {
		Type       string         `json:"type"`
		ID         string         `json:"id"`
		Attributes map[string]any `json:"attributes"`
	} `json:"data"`
	Included []json.RawMessage `json:"included"`
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://apidatos.ree.es"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) WidgetData(ctx context.Context, q Query) (*WidgetData, error) {
	if q.Lang == "" {
		q.Lang = "es"
	}
	if q.TimeTrunc == "" {
		q.TimeTrunc = "hour"
	}

	params := url.Values{}
	params.Set("start_date", q.StartDate.Format("2006-01-02T15:04"))
	params.Set("end_date", q.EndDate.Format("2006-01-02T15:04"))
	params.Set("time_trunc", q.TimeTrunc)
	if q.GeoTrunc != "" {
		params.Set("geo_trunc", q.GeoTrunc)
	}
	if q.GeoLimit != "" {
		params.Set("geo_limit", q.GeoLimit)
	}
	if q.GeoIDs != "" {
		params.Set("geo_ids", q.GeoIDs)
	}

	endpoint := fmt.Sprintf("%s/%s/datos/%s/%s?%s",
		c.baseURL, q.Lang, q.Category, q.Widget, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("redata request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("redata request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("redata bad status: %s", resp.Status)
	}

	var payload WidgetData
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("redata decode: %w", err)
	}
	return &payload, nil
}
