// Package acs is a client for the communication identity and rooms REST API
// used to set up video calls.
package acs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/hearme/signbridge/internal/metrics"
)

const (
	identityAPIVersion = "2023-10-01"
	roomsAPIVersion    = "2023-06-14"
)

// RolePresenter is the participant role given to every call member.
const RolePresenter = "Presenter"

// ResponseError is a non-2xx answer from the API.
type ResponseError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ResponseError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("acs error %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("acs error %d: %s", e.StatusCode, e.Message)
}

// IsConflict reports whether err is a 409 from the API.
func IsConflict(err error) bool {
	var re *ResponseError
	return errors.As(err, &re) && re.StatusCode == http.StatusConflict
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var re *ResponseError
	return errors.As(err, &re) && re.StatusCode == http.StatusNotFound
}

// Client calls the identity and rooms API.
type Client struct {
	creds      Credentials
	HTTPClient *http.Client
	now        func() time.Time
}

// NewClient creates a client from a connection string.
func NewClient(connectionString string) (*Client, error) {
	creds, err := ParseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}
	return &Client{
		creds:      creds,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}, nil
}

// Endpoint returns the resource endpoint.
func (c *Client) Endpoint() string {
	return c.creds.Endpoint.String()
}

// doRequest sends a signed request and decodes a JSON answer into out when
// out is not nil.
func (c *Client) doRequest(ctx context.Context, op, method, path string, query url.Values, body, out any, contentType string) (err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.ProviderRequests.WithLabelValues(op, outcome).Inc()
	}()

	var payload []byte
	if body != nil {
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	u := *c.creds.Endpoint
	u.Path += path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if body != nil {
		if contentType == "" {
			contentType = "application/json"
		}
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost && path == "/rooms" {
		req.Header.Set("Repeatability-Request-ID", uuid.NewString())
		req.Header.Set("Repeatability-First-Sent", c.now().UTC().Format(http.TimeFormat))
	}
	signRequest(req, c.creds.Key, payload, c.now())

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
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		msg := errResp.Error.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &ResponseError{StatusCode: resp.StatusCode, Code: errResp.Error.Code, Message: msg}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func identityQuery() url.Values {
	return url.Values{"api-version": {identityAPIVersion}}
}

func roomsQuery() url.Values {
	return url.Values{"api-version": {roomsAPIVersion}}
}

// AccessToken is a token for the calling SDK.
type AccessToken struct {
	Token     string    `json:"token"`
	ExpiresOn time.Time `json:"expiresOn"`
}

// CreateUser creates a new communication identity and returns its id.
func (c *Client) CreateUser(ctx context.Context) (string, error) {
	var resp struct {
		Identity json.RawMessage `json:"identity"`
	}
	if err := c.doRequest(ctx, "create_user", http.MethodPost, "/identities", identityQuery(), struct{}{}, &resp, ""); err != nil {
		return "", err
	}
	id := IdentifierID(resp.Identity)
	if id == "" {
		return "", errors.New("acs: identity response carried no user id")
	}
	return id, nil
}

// IssueToken issues an access token for an existing user.
func (c *Client) IssueToken(ctx context.Context, userID string, scopes []string) (*AccessToken, error) {
	body := map[string][]string{"scopes": scopes}
	path := "/identities/" + userID + "/:issueAccessToken"

	var tok AccessToken
	if err := c.doRequest(ctx, "issue_token", http.MethodPost, path, identityQuery(), body, &tok, ""); err != nil {
		return nil, err
	}
	return &tok, nil
}

// Room is a provider room.
type Room struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	ValidFrom  time.Time `json:"validFrom"`
	ValidUntil time.Time `json:"validUntil"`
}

// Participant is a room member.
type Participant struct {
	ID   string
	Role string
}

type participantRole struct {
	Role string `json:"role"`
}

func participantMap(ids []string) map[string]participantRole {
	m := make(map[string]participantRole, len(ids))
	for _, id := range ids {
		m[id] = participantRole{Role: RolePresenter}
	}
	return m
}

// CreateRoom creates a room open between validFrom and validUntil with the
// given users as presenters.
func (c *Client) CreateRoom(ctx context.Context, validFrom, validUntil time.Time, userIDs []string) (*Room, error) {
	body := map[string]any{
		"validFrom":    validFrom.UTC().Format(time.RFC3339),
		"validUntil":   validUntil.UTC().Format(time.RFC3339),
		"participants": participantMap(userIDs),
	}

	var room Room
	if err := c.doRequest(ctx, "create_room", http.MethodPost, "/rooms", roomsQuery(), body, &room, ""); err != nil {
		return nil, err
	}
	if room.ID == "" {
		return nil, errors.New("acs: room response carried no id")
	}
	return &room, nil
}

// GetRoom fetches a room by id.
func (c *Client) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	if err := c.doRequest(ctx, "get_room", http.MethodGet, "/rooms/"+roomID, roomsQuery(), nil, &room, ""); err != nil {
		return nil, err
	}
	return &room, nil
}

// ListParticipants returns every participant of a room, following pages.
func (c *Client) ListParticipants(ctx context.Context, roomID string) ([]Participant, error) {
	path := "/rooms/" + roomID + "/participants"
	query := roomsQuery()

	var out []Participant
	for page := 0; page < 50; page++ {
		var resp struct {
			Value []struct {
				RawID                   string          `json:"rawId"`
				CommunicationIdentifier json.RawMessage `json:"communicationIdentifier"`
				Role                    string          `json:"role"`
			} `json:"value"`
			NextLink string `json:"nextLink"`
		}
		if err := c.doRequest(ctx, "list_participants", http.MethodGet, path, query, nil, &resp, ""); err != nil {
			return nil, err
		}
		for _, p := range resp.Value {
			id := p.RawID
			if id == "" {
				id = IdentifierID(p.CommunicationIdentifier)
			}
			if id != "" {
				out = append(out, Participant{ID: id, Role: p.Role})
			}
		}

		if resp.NextLink == "" {
			break
		}
		next, err := url.Parse(resp.NextLink)
		if err != nil {
			return nil, fmt.Errorf("acs: bad nextLink: %w", err)
		}
		query = next.Query()
	}
	return out, nil
}

// AddParticipants adds or updates users as presenters of a room.
func (c *Client) AddParticipants(ctx context.Context, roomID string, userIDs []string) error {
	body := map[string]any{"participants": participantMap(userIDs)}
	path := "/rooms/" + roomID + "/participants"
	return c.doRequest(ctx, "add_participants", http.MethodPatch, path, roomsQuery(), body, nil, "application/merge-patch+json")
}
