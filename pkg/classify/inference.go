package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultInferenceBaseURL = "http://127.0.0.1:8081"

// InferenceClient calls a text-classification inference server over HTTP.
// It is the one concrete Backend; the server hosts the actual models.
type InferenceClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewInferenceClient(baseURL string) *InferenceClient {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultInferenceBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &InferenceClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Scores asks the inference server for all class scores of text under model.
func (c *InferenceClient) Scores(ctx context.Context, model, text string) ([]Score, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("classification model required")
	}

	reqBody := classifyRequest{Model: model, Text: text}
	var resp classifyResponse
	if err := c.doJSON(ctx, "/v1/classify", reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Scores) == 0 {
		return nil, fmt.Errorf("inference response missing scores")
	}
	return resp.Scores, nil
}

func (c *InferenceClient) doJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp inferenceErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return fmt.Errorf("inference api error: %s", errResp.Error)
		}
		return fmt.Errorf("inference api error: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type classifyRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type classifyResponse struct {
	Scores []Score `json:"scores"`
}

type inferenceErrorResponse struct {
	Error string `json:"error"`
}
