package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// EstimateResponse — текущая оценка из API.
type EstimateResponse struct {
	Estimate      float64  `json:"estimate"`
	Multiplier    float64  `json:"multiplier"`
	TotalPoints   int64    `json:"total_points"`
	TotalHits     int64    `json:"total_hits"`
	ScenarioCount int      `json:"scenario_count"`
	Workers       int      `json:"workers"`
	Duplicates    int      `json:"duplicates"`
	Rejected      int      `json:"rejected"`
	AbsError      *float64 `json:"abs_error,omitempty"`
}

// WorkerResponse — активность worker'а из API.
type WorkerResponse struct {
	WorkerID  string  `json:"worker_id"`
	Scenarios int     `json:"scenarios"`
	Share     float64 `json:"share"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для API Aggregator'а.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetEstimate возвращает текущую оценку.
func (c *Client) GetEstimate() (*EstimateResponse, error) {
	var est EstimateResponse
	err := c.get("/api/v1/estimate", &est)
	return &est, err
}

// ListWorkers возвращает активность worker'ов.
func (c *Client) ListWorkers() ([]WorkerResponse, error) {
	var workers []WorkerResponse
	err := c.list("/api/v1/workers", &workers)
	return workers, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	resp, err := c.do(path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return json.Unmarshal(dr.Data, result)
}

func (c *Client) list(path string, result any) error {
	resp, err := c.do(path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return json.Unmarshal(lr.Data, result)
}

func (c *Client) do(path string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
