package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tivoli-arcade/gokart/pkg/core"
)

// Client reports finished races to the host page's backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ScoreSubmission is the JSON body posted for each finished race.
type ScoreSubmission struct {
	SessionID string  `json:"sessionId"`
	Player    string  `json:"player"`
	Track     string  `json:"track"`
	TrackHash string  `json:"trackHash"`
	ElapsedMS int64   `json:"elapsedMs"`
	LapsMS    []int64 `json:"lapsMs"`
	NewBest   bool    `json:"newBest"`
}

// NewScoreSubmission builds the body for a finished race.
func NewScoreSubmission(s core.Session, f core.RaceFinished) ScoreSubmission {
	laps := make([]int64, len(f.LapTimes))
	for i, l := range f.LapTimes {
		laps[i] = l.Milliseconds()
	}
	return ScoreSubmission{
		SessionID: s.ID,
		Player:    s.Player,
		Track:     s.Track,
		TrackHash: fmt.Sprintf("%016x", s.TrackHash),
		ElapsedMS: f.Elapsed.Milliseconds(),
		LapsMS:    laps,
		NewBest:   f.NewBest,
	}
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Healthcheck checks if the reporting endpoint is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthcheck", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// SubmitScore posts a finished race.
func (c *Client) SubmitScore(ctx context.Context, score ScoreSubmission) error {
	body, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("failed to encode score: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/scores", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("score request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("score submission returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// UploadLeaderboard sends an exported leaderboard file.
func (c *Client) UploadLeaderboard(ctx context.Context, filePath, track string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	errCh := make(chan error, 1)
	go func() {
		defer pw.Close()
		defer writer.Close()

		_ = writer.WriteField("secret", c.apiKey)
		_ = writer.WriteField("filename", filepath.Base(filePath))
		_ = writer.WriteField("track", track)

		part, err := writer.CreateFormFile("file", filepath.Base(filePath))
		if err != nil {
			errCh <- fmt.Errorf("failed to create form file: %w", err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			errCh <- fmt.Errorf("failed to copy file: %w", err)
			return
		}
		errCh <- nil
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/leaderboard", pr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if writeErr := <-errCh; writeErr != nil {
		return writeErr
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload returned status %d", resp.StatusCode)
	}
	return nil
}
