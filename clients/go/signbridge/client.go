// Package signbridge provides a client for the signbridge relay and
// recognition API.
package signbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultURL is used when no base URL is given.
const DefaultURL = "http://localhost:8000"

// Modes accepted by Predict.
const (
	ModeAlphabet = "alphabet"
	ModeWord     = "word"
)

// Transcription types.
const (
	Partial = "partial"
	Final   = "final"
)

// Participant roles.
const (
	Hearing = "hearing"
	Deaf    = "deaf"
)

// Client is a signbridge API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new signbridge client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("signbridge error %d: %s", e.StatusCode, e.Message)
}

// doRequest performs an HTTP request and decodes the JSON answer into out.
func (c *Client) doRequest(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		if errResp.Error == "" {
			errResp.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// Prediction is the answer to a predict call.
type Prediction struct {
	Prediction int    `json:"prediction"`
	Label      string `json:"label"`
}

// Predict classifies a flat landmark vector: 63 values for alphabet mode,
// 1890 (30 frames of 63) for word mode.
func (c *Client) Predict(ctx context.Context, mode string, landmarks []float32) (*Prediction, error) {
	req := struct {
		Mode      string    `json:"mode"`
		Landmarks []float32 `json:"landmarks"`
	}{mode, landmarks}

	var resp Prediction
	if err := c.doRequest(ctx, "POST", "/predict", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Message is a relayed transcription or gesture.
type Message struct {
	ID              int64  `json:"id"`
	Type            string `json:"type,omitempty"`
	Text            string `json:"text"`
	Timestamp       int64  `json:"timestamp"`
	ParticipantType string `json:"participantType"`
	ParticipantName string `json:"participantName"`
}

// Time returns the sender's timestamp.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

type postResponse struct {
	Status    string `json:"status"`
	MessageID int64  `json:"messageId"`
}

// PostTranscription relays speech text. msg.Type must be Partial or Final.
// It returns the id assigned to the message.
func (c *Client) PostTranscription(ctx context.Context, roomID string, msg Message) (int64, error) {
	return c.post(ctx, "/transcription/"+url.PathEscape(roomID), msg)
}

// PostGesture relays recognized sign text.
func (c *Client) PostGesture(ctx context.Context, roomID string, msg Message) (int64, error) {
	msg.Type = ""
	return c.post(ctx, "/gesture/"+url.PathEscape(roomID), msg)
}

func (c *Client) post(ctx context.Context, path string, msg Message) (int64, error) {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	req := struct {
		Type            string `json:"type,omitempty"`
		Text            string `json:"text"`
		Timestamp       int64  `json:"timestamp"`
		ParticipantType string `json:"participantType"`
		ParticipantName string `json:"participantName"`
	}{msg.Type, msg.Text, msg.Timestamp, msg.ParticipantType, msg.ParticipantName}

	var resp postResponse
	if err := c.doRequest(ctx, "POST", path, req, &resp); err != nil {
		return 0, err
	}
	return resp.MessageID, nil
}

// Transcriptions returns the transcriptions of a room with ids above since.
func (c *Client) Transcriptions(ctx context.Context, roomID string, since int64) ([]Message, error) {
	return c.list(ctx, "/transcription/"+url.PathEscape(roomID), since)
}

// Gestures returns the gestures of a room with ids above since.
func (c *Client) Gestures(ctx context.Context, roomID string, since int64) ([]Message, error) {
	return c.list(ctx, "/gesture/"+url.PathEscape(roomID), since)
}

func (c *Client) list(ctx context.Context, path string, since int64) ([]Message, error) {
	if since > 0 {
		path += "?since=" + strconv.FormatInt(since, 10)
	}
	var msgs []Message
	if err := c.doRequest(ctx, "GET", path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Check is one dependency check in a health report.
type Check struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the server health report.
type HealthResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health checks server health. A degraded server answers 503 with a report,
// which is returned together with the error.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return &health, &APIError{StatusCode: resp.StatusCode, Message: health.Status}
	}
	return &health, nil
}
