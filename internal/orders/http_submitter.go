package orders

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

	"github.com/chicagopizza/pizzeria-backend/pkg/config"
	"github.com/chicagopizza/pizzeria-backend/pkg/enums"
)

const responseBodyReadLimit int64 = 1024

// HTTPSubmitter posts placed orders to an external order API.
type HTTPSubmitter struct {
	httpClient *http.Client
	url        string
}

// HTTPOption configures optional submitter behavior.
type HTTPOption func(*HTTPSubmitter)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPSubmitter) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// NewHTTPSubmitter builds a submitter for the configured order API url.
func NewHTTPSubmitter(url string, timeout time.Duration, opts ...HTTPOption) (*HTTPSubmitter, error) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return nil, errors.New("order api url is required")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	s := &HTTPSubmitter{
		url:        trimmed,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *HTTPSubmitter) Mode() string {
	return config.SubmissionModeHTTP
}

func (s *HTTPSubmitter) Submit(ctx context.Context, snapshot OrderSnapshot) (Result, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return Result{}, newSubmissionError(enums.SubmissionRejected, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, newSubmissionError(enums.SubmissionUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Result{}, newSubmissionError(enums.SubmissionUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 500:
		return Result{}, newSubmissionError(enums.SubmissionUnavailable, statusError(resp))
	case resp.StatusCode >= 400:
		return Result{}, newSubmissionError(enums.SubmissionRejected, statusError(resp))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Result{}, newSubmissionError(enums.SubmissionInvalidResponse, statusError(resp))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, newSubmissionError(enums.SubmissionInvalidResponse, fmt.Errorf("decode response: %w", err))
	}
	if strings.TrimSpace(result.OrderID) == "" {
		return Result{}, newSubmissionError(enums.SubmissionInvalidResponse, errors.New("response missing order_id"))
	}
	return result, nil
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
