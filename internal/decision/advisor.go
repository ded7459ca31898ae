package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPAdvisor calls an external strategy-advisor service over HTTP,
// grounded directly on the teacher's evaluation.Client
// (internal/modules/planning/evaluation/client.go): a bounded-timeout
// http.Client, a single JSON POST, and explicit status-code checking
// before decoding the response.
type HTTPAdvisor struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewHTTPAdvisor builds an advisor posting to baseURL + "/advise" with
// the given request timeout.
func NewHTTPAdvisor(baseURL string, timeout time.Duration, log zerolog.Logger) *HTTPAdvisor {
	return &HTTPAdvisor{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "decision_advisor").Logger(),
	}
}

func (a *HTTPAdvisor) Advise(ctx context.Context, req AdvisorRequest) (AdvisorResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return AdvisorResponse{}, fmt.Errorf("marshal advisor request: %w", err)
	}

	url := a.baseURL + "/advise"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return AdvisorResponse{}, fmt.Errorf("build advisor request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return AdvisorResponse{}, fmt.Errorf("send advisor request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return AdvisorResponse{}, fmt.Errorf("advisor service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var out AdvisorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return AdvisorResponse{}, fmt.Errorf("decode advisor response: %w", err)
	}
	return out, nil
}
