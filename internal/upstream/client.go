// Package upstream is the client side of the assessment platform API. The
// engine consumes these four operations and never implements them: the
// platform stays the system of record for attempts and answers.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cognivia/exam-engine/internal/model"
)

var (
	// ErrNotFound means the platform has no such test, question or attempt.
	ErrNotFound = errors.New("upstream: resource not found")
	// ErrRejected means the platform refused the write (4xx other than 404).
	ErrRejected = errors.New("upstream: request rejected")
)

// SectionMetadata describes one section in the attempt's delivery order.
type SectionMetadata struct {
	SectionID      int64   `json:"section_id"`
	SectionName    string  `json:"section_name"`
	TimeBoxMinutes int     `json:"time_box_minutes,omitempty"`
	QuestionIDs    []int64 `json:"question_ids"`
}

// AttemptMetadata is the section/question skeleton for a candidate's attempt.
type AttemptMetadata struct {
	AttemptID          int64             `json:"attempt_id"`
	TestTimeBoxMinutes int               `json:"test_time_box_minutes"`
	StartedAt          time.Time         `json:"started_at"`
	Sections           []SectionMetadata `json:"sections"`
}

// Client is the collaborator API surface the session engine depends on.
type Client interface {
	FetchAttemptMetadata(ctx context.Context, testID, userID int64) (*AttemptMetadata, error)
	FetchQuestion(ctx context.Context, questionID int64) (*model.Question, error)
	SubmitAnswer(ctx context.Context, attemptID, questionID int64, raw string, status model.QuestionStatus) error
	EndAttempt(ctx context.Context, attemptID, userID int64) error
}

// HTTPClient implements Client against the platform's REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPClient creates a client for the given base URL. apiKey may be empty
// when the platform trusts the gateway by network position.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// envelope matches the platform's response wrapper.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *HTTPClient) FetchAttemptMetadata(ctx context.Context, testID, userID int64) (*AttemptMetadata, error) {
	q := url.Values{}
	q.Set("test_id", fmt.Sprintf("%d", testID))
	q.Set("user_id", fmt.Sprintf("%d", userID))

	var meta AttemptMetadata
	if err := c.do(ctx, http.MethodGet, "/api/v1/attempts/metadata?"+q.Encode(), nil, &meta); err != nil {
		return nil, fmt.Errorf("fetch attempt metadata: %w", err)
	}
	return &meta, nil
}

func (c *HTTPClient) FetchQuestion(ctx context.Context, questionID int64) (*model.Question, error) {
	var question model.Question
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/questions/%d", questionID), nil, &question); err != nil {
		return nil, fmt.Errorf("fetch question %d: %w", questionID, err)
	}
	return &question, nil
}

func (c *HTTPClient) SubmitAnswer(ctx context.Context, attemptID, questionID int64, raw string, status model.QuestionStatus) error {
	body := map[string]any{
		"question_id": questionID,
		"raw":         raw,
		"status":      status,
	}
	path := fmt.Sprintf("/api/v1/attempts/%d/answers", attemptID)
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("submit answer for question %d: %w", questionID, err)
	}
	return nil
}

func (c *HTTPClient) EndAttempt(ctx context.Context, attemptID, userID int64) error {
	body := map[string]any{"user_id": userID}
	path := fmt.Sprintf("/api/v1/attempts/%d/end", attemptID)
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("end attempt %d: %w", attemptID, err)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && resp.StatusCode < 300 {
		return fmt.Errorf("decode response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		if env.Error != nil {
			return fmt.Errorf("%w: %s", ErrRejected, env.Error.Message)
		}
		return ErrRejected
	case resp.StatusCode >= 500:
		return fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	}
	return nil
}
