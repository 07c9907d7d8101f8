// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

/*
Package intra is the client of the 42 intra v2 API.

Every request goes through a RetryingTransport, which retries HTTP 429
answers and counts each attempt against the hourly budget, and through a
circuit breaker that fails fast while the API is down. Failures are
reported as *StatusError values whose kind matches one of the sentinel
errors (ErrAuth, ErrNotFound, ErrForbidden, ErrRateLimited, ErrUpstream).
*/
package intra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/examwatch/internal/models"
)

// maxErrorBody bounds how much of an error body is read for its message.
const maxErrorBody = 64 * 1024

// maxForwardBody bounds a proxied answer. Intra pages are far below it.
const maxForwardBody = 8 << 20

// ErrForwardTooLarge is returned when a proxied body exceeds maxForwardBody.
var ErrForwardTooLarge = errors.New("forwarded body too large")

// pageSize is the largest page the intra API serves.
const pageSize = 100

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL string
	// RequestTimeout bounds one attempt. With a *RetryingTransport it is
	// applied per attempt, so 429 backoff waits are not cut short;
	// otherwise it bounds the whole request.
	RequestTimeout time.Duration
	// Transport is normally a *RetryingTransport.
	Transport http.RoundTripper
	Breaker   BreakerConfig
}

// Client issues authenticated requests to the intra API on behalf of a
// proctor. The bearer token is passed per call because every proctor
// session carries its own.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	cb         *breaker
}

// NewClient validates the base URL and builds a client.
func NewClient(cfg ClientConfig) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse intra base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("intra base URL %q must be absolute", cfg.BaseURL)
	}

	var transport http.RoundTripper = http.DefaultTransport
	timeout := cfg.RequestTimeout
	switch rt := cfg.Transport.(type) {
	case nil:
	case *RetryingTransport:
		if rt.attemptTimeout == 0 {
			rt = rt.withAttemptTimeout(cfg.RequestTimeout)
		}
		transport, timeout = rt, 0
	default:
		transport = cfg.Transport
	}
	breakerCfg := cfg.Breaker
	if breakerCfg.Name == "" {
		breakerCfg = DefaultBreakerConfig()
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		cb: newBreaker(breakerCfg),
	}, nil
}

// BreakerState reports the circuit breaker state ("closed", "half-open", "open").
func (c *Client) BreakerState() string {
	return c.cb.State()
}

// GetUser fetches the identity of a student.
func (c *Client) GetUser(ctx context.Context, token, login string) (*models.IntraUser, error) {
	path := "/users/" + url.PathEscape(login)
	return castResult[*models.IntraUser](c.cb.execute(func() (any, error) {
		var user models.IntraUser
		if err := c.getJSON(ctx, token, path, nil, studentSubject(login), &user); err != nil {
			return nil, err
		}
		return &user, nil
	}))
}

// GetProjectsUsers fetches every project enrollment of a student.
func (c *Client) GetProjectsUsers(ctx context.Context, token, login string) ([]models.ProjectUser, error) {
	path := "/users/" + url.PathEscape(login) + "/projects_users"
	query := url.Values{"page[size]": {strconv.Itoa(pageSize)}}
	return castResult[[]models.ProjectUser](c.cb.execute(func() (any, error) {
		var enrollments []models.ProjectUser
		if err := c.getJSON(ctx, token, path, query, studentSubject(login), &enrollments); err != nil {
			return nil, err
		}
		return enrollments, nil
	}))
}

// SearchUsers looks up users whose login matches query.
func (c *Client) SearchUsers(ctx context.Context, token, query string) ([]models.UserSummary, error) {
	params := url.Values{
		"filter[login]": {strings.ToLower(query)},
		"page[size]":    {"20"},
	}
	users, err := castResult[[]models.IntraUser](c.cb.execute(func() (any, error) {
		var users []models.IntraUser
		if err := c.getJSON(ctx, token, "/users", params, "users", &users); err != nil {
			return nil, err
		}
		return users, nil
	}))
	if err != nil {
		return nil, err
	}

	summaries := make([]models.UserSummary, 0, len(users))
	for i := range users {
		summaries = append(summaries, models.UserSummary{
			ID:        users[i].ID,
			Login:     users[i].Login,
			AvatarURL: users[i].AvatarURL(),
		})
	}
	return summaries, nil
}

// ListExamProjects lists the exam projects visible to the proctor in a cursus.
func (c *Client) ListExamProjects(ctx context.Context, token string, cursusID int) ([]models.IntraProject, error) {
	params := url.Values{
		"filter[exam]": {"true"},
		"cursus_id":    {strconv.Itoa(cursusID)},
		"page[size]":   {strconv.Itoa(pageSize)},
	}
	return castResult[[]models.IntraProject](c.cb.execute(func() (any, error) {
		var projects []models.IntraProject
		if err := c.getJSON(ctx, token, "/me/projects", params, "exam list", &projects); err != nil {
			return nil, err
		}
		return projects, nil
	}))
}

// ListInProgressTeams lists the teams currently sitting a project on a campus.
func (c *Client) ListInProgressTeams(ctx context.Context, token string, projectID, campusID int) ([]models.IntraTeam, error) {
	path := "/projects/" + strconv.Itoa(projectID) + "/teams"
	params := url.Values{
		"filter[status]": {models.IntraStatusInProgress},
		"page[size]":     {strconv.Itoa(pageSize)},
	}
	if campusID > 0 {
		params.Set("filter[campus]", strconv.Itoa(campusID))
	}
	return castResult[[]models.IntraTeam](c.cb.execute(func() (any, error) {
		var teams []models.IntraTeam
		if err := c.getJSON(ctx, token, path, params, fmt.Sprintf("project %d", projectID), &teams); err != nil {
			return nil, err
		}
		return teams, nil
	}))
}

// ForwardResponse is an upstream answer passed through verbatim.
type ForwardResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Forward issues GET <base><path>?<rawQuery> with the token attached and
// returns the upstream answer whatever its status. Only transport failures
// are errors. The breaker is bypassed: a proxied 5xx is the caller's data.
func (c *Client) Forward(ctx context.Context, token, path, rawQuery string) (*ForwardResponse, error) {
	if token == "" {
		return nil, newStatusError(http.StatusUnauthorized, path, "")
	}

	req, err := c.newRequest(ctx, token, path, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = rawQuery

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forward %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxForwardBody+1))
	if err != nil {
		return nil, fmt.Errorf("read forwarded body: %w", err)
	}
	if len(body) > maxForwardBody {
		return nil, fmt.Errorf("forward %s: %w", path, ErrForwardTooLarge)
	}
	return &ForwardResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (c *Client) newRequest(ctx context.Context, token, path string, query url.Values) (*http.Request, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(path, "/")
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// getJSON performs an authenticated GET and decodes a 2xx body into out.
// subject names the resource in a 404 message.
func (c *Client) getJSON(ctx context.Context, token, path string, query url.Values, subject string, out any) error {
	if token == "" {
		return newStatusError(http.StatusUnauthorized, subject, "")
	}

	req, err := c.newRequest(ctx, token, path, query)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &StatusError{
			Kind:    ErrUpstream,
			Message: fmt.Sprintf("intra API unreachable: %v", err),
			Path:    path,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newStatusError(resp.StatusCode, subject, readBodyForError(resp.Body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &StatusError{
			Kind:       ErrUpstream,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("intra API returned an unreadable body: %v", err),
			Path:       path,
		}
	}
	return nil
}

// readBodyForError extracts the upstream message from an error body.
func readBodyForError(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(raw))
}

func studentSubject(login string) string {
	return fmt.Sprintf("student %q", login)
}
