package publish

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/core-tools/hsu-monitor/pkg/errors"
	"github.com/core-tools/hsu-monitor/pkg/logging"

	"github.com/cenkalti/backoff/v5"
)

// Publisher pushes the rendered status page somewhere it can be served from.
type Publisher interface {
	// Publish reports whether the remote copy changed.
	Publish(ctx context.Context, content []byte, message string) (bool, error)
}

type Options struct {
	BaseURL       string
	Owner         string
	Repository    string
	Branch        string
	Path          string
	Token         string
	MaxRetries    int
	RetryInterval time.Duration
	Timeout       time.Duration
}

// GitHubPublisher writes a file through the GitHub contents API.
type GitHubPublisher struct {
	options Options
	client  *http.Client
	logger  logging.Logger
}

func NewGitHubPublisher(options Options, logger logging.Logger) *GitHubPublisher {
	if options.BaseURL == "" {
		options.BaseURL = "https://api.github.com"
	}
	options.BaseURL = strings.TrimRight(options.BaseURL, "/")
	if options.RetryInterval <= 0 {
		options.RetryInterval = time.Second
	}
	if options.Timeout <= 0 {
		options.Timeout = 30 * time.Second
	}
	return &GitHubPublisher{
		options: options,
		client:  &http.Client{Timeout: options.Timeout},
		logger:  logger,
	}
}

type remoteFile struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	exists   bool
}

type updateRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch,omitempty"`
	SHA     string `json:"sha,omitempty"`
}

func (p *GitHubPublisher) Publish(ctx context.Context, content []byte, message string) (bool, error) {
	current, err := retry(ctx, p.options, func() (*remoteFile, error) {
		return p.fetch(ctx)
	})
	if err != nil {
		return false, err
	}

	if current.exists {
		remote, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(current.Content, "\n", ""))
		if err != nil {
			p.logger.Warnf("Failed to decode remote content, overwriting, path: %s, error: %v", p.options.Path, err)
		} else if bytes.Equal(remote, content) {
			p.logger.Infof("Status page unchanged, skipping publish, path: %s", p.options.Path)
			return false, nil
		}
	}

	request := updateRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  p.options.Branch,
		SHA:     current.SHA,
	}
	if _, err := retry(ctx, p.options, func() (struct{}, error) {
		return struct{}{}, p.update(ctx, request)
	}); err != nil {
		return false, err
	}

	p.logger.Infof("Status page published, repository: %s/%s, branch: %s, path: %s",
		p.options.Owner, p.options.Repository, p.options.Branch, p.options.Path)
	return true, nil
}

func (p *GitHubPublisher) contentsURL() string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		p.options.BaseURL,
		url.PathEscape(p.options.Owner),
		url.PathEscape(p.options.Repository),
		escapePath(p.options.Path))
}

// escapePath escapes each segment of a repository path, keeping the separators.
func escapePath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

func (p *GitHubPublisher) fetch(ctx context.Context) (*remoteFile, error) {
	endpoint := p.contentsURL()
	if p.options.Branch != "" {
		endpoint += "?ref=" + url.QueryEscape(p.options.Branch)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(errors.NewInternalError("failed to build request", err))
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.NewNetworkError("failed to fetch remote file", err).WithContext("url", endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &remoteFile{}, nil
	}
	if err := checkStatus(resp, endpoint); err != nil {
		return nil, err
	}

	file := &remoteFile{exists: true}
	if err := json.NewDecoder(resp.Body).Decode(file); err != nil {
		return nil, backoff.Permanent(errors.NewValidationError("invalid contents response", err).WithContext("url", endpoint))
	}
	return file, nil
}

func (p *GitHubPublisher) update(ctx context.Context, request updateRequest) error {
	body, err := json.Marshal(request)
	if err != nil {
		return backoff.Permanent(errors.NewInternalError("failed to encode update request", err))
	}

	endpoint := p.contentsURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(errors.NewInternalError("failed to build request", err))
	}
	p.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.NewNetworkError("failed to update remote file", err).WithContext("url", endpoint)
	}
	defer resp.Body.Close()

	return checkStatus(resp, endpoint)
}

func (p *GitHubPublisher) authorize(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if p.options.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.options.Token)
	}
}

// checkStatus marks server errors and rate limits retryable and every other failure permanent.
func checkStatus(resp *http.Response, endpoint string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := errors.NewNetworkError(fmt.Sprintf("unexpected status %d", resp.StatusCode), nil).
		WithContext("url", endpoint).
		WithContext("response", strings.TrimSpace(string(detail)))

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return err
	}
	return backoff.Permanent(err)
}

func retry[T any](ctx context.Context, options Options, operation backoff.Operation[T]) (T, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = options.RetryInterval

	maxRetries := options.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return backoff.Retry(
		ctx,
		operation,
		backoff.WithMaxTries(uint(maxRetries+1)),
		backoff.WithBackOff(expBackoff),
	)
}
