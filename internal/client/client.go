package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/siddharthareddy0/quiz-hosting/internal/model"
)

// APIError is a non-2xx response decoded from the server envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}

// Client is the candidate-side HTTP SDK for one exam session. It attaches
// the bearer token and the device fingerprint to every request.
type Client struct {
	baseURL     string
	token       string
	fingerprint string
	examID      uuid.UUID
	httpClient  *http.Client
}

// New creates a Client bound to one exam.
func New(baseURL, token, fingerprint string, examID uuid.UUID) *Client {
	return &Client{
		baseURL:     baseURL,
		token:       token,
		fingerprint: fingerprint,
		examID:      examID,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

// envelope mirrors the server's response shape.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
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
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.fingerprint != "" {
		req.Header.Set("X-Device-Fingerprint", c.fingerprint)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Code: "UNKNOWN", Message: resp.Status}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	}
	return nil
}

func (c *Client) candidatePath(suffix string) string {
	return fmt.Sprintf("/api/v1/candidate/exams/%s/%s", c.examID, suffix)
}

// SessionStatus fetches the server-authoritative attempt projection.
func (c *Client) SessionStatus(ctx context.Context) (*model.SessionStatus, error) {
	var out struct {
		Session *model.SessionStatus `json:"session"`
	}
	if err := c.do(ctx, http.MethodGet, c.candidatePath("session-status"), nil, &out); err != nil {
		return nil, err
	}
	return out.Session, nil
}

// Paper fetches the sanitized question paper.
func (c *Client) Paper(ctx context.Context) (*model.ExamPaper, error) {
	var out struct {
		Paper *model.ExamPaper `json:"paper"`
	}
	if err := c.do(ctx, http.MethodGet, c.candidatePath("paper"), nil, &out); err != nil {
		return nil, err
	}
	return out.Paper, nil
}

// Start begins (or resumes) the attempt on this device.
func (c *Client) Start(ctx context.Context) (*model.Attempt, error) {
	var out struct {
		Attempt *model.Attempt `json:"attempt"`
	}
	if err := c.do(ctx, http.MethodPost, c.candidatePath("start"), nil, &out); err != nil {
		return nil, err
	}
	return out.Attempt, nil
}

// SaveProgress ships a progress snapshot.
func (c *Client) SaveProgress(ctx context.Context, patch *model.ProgressPatch) (*model.Attempt, error) {
	var out struct {
		Attempt *model.Attempt `json:"attempt"`
	}
	if err := c.do(ctx, http.MethodPut, c.candidatePath("progress"), patch, &out); err != nil {
		return nil, err
	}
	return out.Attempt, nil
}

// Submit finalizes the attempt and returns the score.
func (c *Client) Submit(ctx context.Context, req *model.SubmitRequest) (*model.SubmitResult, error) {
	var out struct {
		Result *model.SubmitResult `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, c.candidatePath("submit"), req, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// Review fetches the post-submission review.
func (c *Client) Review(ctx context.Context) (*model.AttemptReview, error) {
	var out struct {
		Review *model.AttemptReview `json:"review"`
	}
	if err := c.do(ctx, http.MethodGet, c.candidatePath("review"), nil, &out); err != nil {
		return nil, err
	}
	return out.Review, nil
}

// Flush delivers a best-effort snapshot over the unauthenticated beacon
// route. The token rides in the body.
func (c *Client) Flush(ctx context.Context, patch *model.ProgressPatch) error {
	body := map[string]any{
		"token": c.token,
		"patch": patch,
	}
	path := fmt.Sprintf("/api/v1/exams/%s/flush", c.examID)
	return c.do(ctx, http.MethodPost, path, body, nil)
}
