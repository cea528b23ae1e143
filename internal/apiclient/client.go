// Package apiclient talks to the external authorization API consulted before
// privileged store operations (bulk cache invalidation, command publishing).
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	serrors "git.home.luguber.info/inful/artifactstore/internal/errors"
)

// Client is an HTTP client for the external authorization API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the API at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Configured reports whether a base URL was provided. Unconfigured clients
// deny every privileged operation.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// IsAuthorizedToInvalidate asks the API whether the token's bearer may
// invalidate the cache scope. A non-true response is a denial; transport
// errors propagate as backend failures.
func (c *Client) IsAuthorizedToInvalidate(ctx context.Context, token, scope, scopeID string) (bool, error) {
	if !c.Configured() {
		return false, nil
	}
	endpoint := fmt.Sprintf("%s/v4/isAdmin?%s", c.baseURL, url.Values{
		scopeParam(scope): {scopeID},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, serrors.Wrap(err, serrors.CategoryInternal, serrors.SeverityError, "build authorization request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, serrors.Wrap(err, serrors.CategoryBackend, serrors.SeverityError, "authorization api unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}
	var allowed bool
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1024)).Decode(&allowed); err != nil {
		return false, serrors.Wrap(err, serrors.CategoryBackend, serrors.SeverityError, "malformed authorization response")
	}
	return allowed, nil
}

func scopeParam(scope string) string {
	switch scope {
	case "events":
		return "eventId"
	case "jobs":
		return "jobId"
	case "pipelines":
		return "pipelineId"
	}
	return "id"
}

// command mirrors the fields of the API's command listing we care about.
type command struct {
	Namespace  string `json:"namespace"`
	Name       string `json:"name"`
	PipelineID int64  `json:"pipelineId"`
}

// CanPublishCommand reports whether pipelineID owns the command
// {namespace}/{name}. A command never published before may be claimed by any
// pipeline; an existing command may only be republished by its owner.
func (c *Client) CanPublishCommand(ctx context.Context, token, namespace, name, pipelineID string) (bool, error) {
	if !c.Configured() {
		return false, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v4/commands", nil)
	if err != nil {
		return false, serrors.Wrap(err, serrors.CategoryInternal, serrors.SeverityError, "build command lookup request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, serrors.Wrap(err, serrors.CategoryBackend, serrors.SeverityError, "command api unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, serrors.New(serrors.CategoryBackend, serrors.SeverityError, "command lookup failed").
			WithContext("status", resp.StatusCode)
	}

	var commands []command
	if err := json.NewDecoder(resp.Body).Decode(&commands); err != nil {
		return false, serrors.Wrap(err, serrors.CategoryBackend, serrors.SeverityError, "malformed command listing")
	}
	for _, cmd := range commands {
		if cmd.Namespace == namespace && cmd.Name == name {
			return fmt.Sprintf("%d", cmd.PipelineID) == pipelineID, nil
		}
	}
	// First publish of this namespace/name.
	return true, nil
}
