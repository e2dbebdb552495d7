package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// AEMETClient wraps the AEMET OpenData API. Every call performs the
// two-step wrapper -> datos handshake: the first request returns an
// envelope pointing at a second URL that carries the actual payload.
type AEMETClient struct {
	apiKey  string
	baseURL string
	retries int
	client  *http.Client

	stationMu    sync.Mutex
	stationCodes map[string]string
}

func NewAEMETClient(apiKey, baseURL string, timeout time.Duration, retries int) *AEMETClient {
	if baseURL == "" {
		baseURL = "https://opendata.aemet.es/opendata/api"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &AEMETClient{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		retries:      retries,
		client:       &http.Client{Timeout: timeout},
		stationCodes: map[string]string{},
	}
}

type aemetEnvelope struct {
	Estado      int    `json:"estado"`
	Descripcion string `json:"descripcion"`
	Datos       string `json:"datos"`
}

type aemetStation struct {
	Indicativo string `json:"indicativo"`
	Nombre     string `json:"nombre"`
	Operativa  string `json:"operativa"`
}

type aemetRecord struct {
	Temperature   *float64 `json:"ta"`
	Humidity      *float64 `json:"hr"`
	WindSpeed     *float64 `json:"vv"`
	Precipitation *float64 `json:"prec"`
}

// Observe resolves the location to a station code (cached after the first
// inventory lookup) and returns its latest hourly observation.
func (c *AEMETClient) Observe(ctx context.Context, location string) (*Observation, error) {
	code, err := c.stationCode(ctx, location)
	if err != nil {
		return nil, err
	}

	var records []aemetRecord
	endpoint := fmt.Sprintf("/observacion/convencional/datos/estacion/%s", url.PathEscape(code))
	if err := c.call(ctx, endpoint, &records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("aemet returned no observations for %q", location)
	}

	latest := records[len(records)-1]
	obs := &Observation{
		Temperature: latest.Temperature,
		Conditions:  "Clear",
	}
	if latest.Humidity != nil {
		obs.Humidity = *latest.Humidity
	}
	if latest.WindSpeed != nil {
		obs.WindSpeed = *latest.WindSpeed
	}
	if latest.Precipitation != nil {
		obs.Precipitation = *latest.Precipitation
		if obs.Precipitation > 0 {
			obs.Conditions = "Rain"
		}
	}
	return obs, nil
}

func (c *AEMETClient) stationCode(ctx context.Context, location string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(location))
	if key == "" {
		return "", fmt.Errorf("aemet location is empty")
	}

	c.stationMu.Lock()
	code, ok := c.stationCodes[key]
	c.stationMu.Unlock()
	if ok {
		return code, nil
	}

	var inventory []aemetStation
	if err := c.call(ctx, "/valores/climatologicos/inventarioestaciones/todasestaciones", &inventory); err != nil {
		return "", err
	}

	for _, station := range inventory {
		if strings.ToLower(station.Nombre) == key && station.Operativa == "SI" {
			c.stationMu.Lock()
			c.stationCodes[key] = station.Indicativo
			c.stationMu.Unlock()
			return station.Indicativo, nil
		}
	}
	return "", fmt.Errorf("location %q not found in aemet station inventory", location)
}

func (c *AEMETClient) call(ctx context.Context, endpoint string, target any) error {
	var envelope aemetEnvelope
	wrapperURL := fmt.Sprintf("%s%s?api_key=%s", c.baseURL, endpoint, url.QueryEscape(c.apiKey))
	if err := c.getJSON(ctx, wrapperURL, &envelope); err != nil {
		return err
	}
	if envelope.Estado != 200 {
		return fmt.Errorf("aemet error %d: %s", envelope.Estado, envelope.Descripcion)
	}
	return c.getJSON(ctx, envelope.Datos, target)
}

func (c *AEMETClient) getJSON(ctx context.Context, endpoint string, target any) error {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("aemet request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("aemet request failed: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("aemet bad status: %s", resp.Status)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return fmt.Errorf("aemet bad status: %s", resp.Status)
		}

		err = json.NewDecoder(resp.Body).Decode(target)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("aemet decode: %w", err)
		}
		return nil
	}
	return lastErr
}
