// Package artifact implements C2, the handler artifact store, against a
// GitHub repository's Contents API: every generated handler's source lives
// as one file at handlers/<name>.go.txt, with the blob SHA doubling as
// handler.Artifact's optimistic-concurrency Version token.
package artifact

import (
	"context"
	"fmt"
	"time"

	"github.com/botforge/telegram-bot-factory/internal/domain/handler"
	"github.com/botforge/telegram-bot-factory/internal/domain/shared"
	"github.com/botforge/telegram-bot-factory/pkg/circuitbreaker"
	"github.com/botforge/telegram-bot-factory/pkg/retry"
	"github.com/google/go-github/v69/github"
)

// Config holds the GitHub-backed artifact store's settings.
type Config struct {
	Token   string
	Owner   string
	Repo    string
	Branch  string
	Timeout time.Duration
}

// Client implements handler.Store against one GitHub repository.
type Client struct {
	gh      *github.Client
	cfg     Config
	breaker *circuitbreaker.CircuitBreaker
}

// NewClient builds a Client authenticated with cfg.Token.
func NewClient(cfg Config) *Client {
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		gh:  github.NewClient(nil).WithAuthToken(cfg.Token),
		cfg: cfg,
		breaker: circuitbreaker.New("artifactstore",
			circuitbreaker.WithFailureThreshold(5),
			circuitbreaker.WithTimeout(30*time.Second),
			circuitbreaker.WithIsFailure(func(err error) bool {
				return err != nil && !retry.IsPermanent(err)
			}),
		),
	}
}

func (c *Client) path(handlerName string) string {
	return fmt.Sprintf("handlers/%s.go.txt", handlerName)
}

// Exists reports whether an artifact file already exists for handlerName.
func (c *Client) Exists(ctx context.Context, handlerName string) (bool, error) {
	_, err := c.Get(ctx, handlerName)
	if shared.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Get fetches the current artifact for handlerName.
func (c *Client) Get(ctx context.Context, handlerName string) (*handler.Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var fileContent *github.RepositoryContent
	err := c.withResilience(ctx, "Get", func(ctx context.Context) error {
		var resp *github.Response
		var err error
		fileContent, _, resp, err = c.gh.Repositories.GetContents(ctx, c.cfg.Owner, c.cfg.Repo, c.path(handlerName),
			&github.RepositoryContentGetOptions{Ref: c.cfg.Branch})
		if resp != nil && resp.StatusCode == 404 {
			return retry.Permanent(shared.ErrArtifactNotFound)
		}
		return err
	})
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.ErrArtifactNotFound
		}
		return nil, shared.WrapError("artifactstore", "Get", shared.ErrExternalService, "fetch artifact contents", err)
	}

	source, err := fileContent.GetContent()
	if err != nil {
		return nil, shared.WrapError("artifactstore", "Get", shared.ErrExternalService, "decode artifact content", err)
	}

	return &handler.Artifact{
		HandlerName: handlerName,
		Source:      source,
		Version:     fileContent.GetSHA(),
	}, nil
}

// Create adds a new artifact file. It fails with shared.ErrArtifactConflict
// if one already exists, since a fresh handler name must not collide.
func (c *Client) Create(ctx context.Context, handlerName, source string) (*handler.Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(fmt.Sprintf("create handler %s", handlerName)),
		Content: []byte(source),
		Branch:  github.Ptr(c.cfg.Branch),
	}

	var result *github.RepositoryContentResponse
	err := c.withResilience(ctx, "Create", func(ctx context.Context) error {
		var resp *github.Response
		var err error
		result, resp, err = c.gh.Repositories.CreateFile(ctx, c.cfg.Owner, c.cfg.Repo, c.path(handlerName), opts)
		if resp != nil && resp.StatusCode == 422 {
			return retry.Permanent(shared.ErrArtifactConflict)
		}
		return err
	})
	if err != nil {
		if shared.IsConflict(err) {
			return nil, shared.ErrArtifactConflict
		}
		return nil, shared.WrapError("artifactstore", "Create", shared.ErrExternalService, "create artifact file", err)
	}

	return &handler.Artifact{
		HandlerName: handlerName,
		Source:      source,
		Version:     result.GetContent().GetSHA(),
	}, nil
}

// Update overwrites an existing artifact's source, guarded by the optimistic
// concurrency token the caller read alongside it.
func (c *Client) Update(ctx context.Context, handlerName, source, expectedVersion string) (*handler.Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(fmt.Sprintf("update handler %s", handlerName)),
		Content: []byte(source),
		Branch:  github.Ptr(c.cfg.Branch),
		SHA:     github.Ptr(expectedVersion),
	}

	var result *github.RepositoryContentResponse
	err := c.withResilience(ctx, "Update", func(ctx context.Context) error {
		var resp *github.Response
		var err error
		result, resp, err = c.gh.Repositories.UpdateFile(ctx, c.cfg.Owner, c.cfg.Repo, c.path(handlerName), opts)
		if resp != nil && (resp.StatusCode == 409 || resp.StatusCode == 422) {
			return retry.Permanent(shared.ErrArtifactConflict)
		}
		return err
	})
	if err != nil {
		if shared.IsConflict(err) {
			return nil, shared.ErrArtifactConflict
		}
		return nil, shared.WrapError("artifactstore", "Update", shared.ErrExternalService, "update artifact file", err)
	}

	return &handler.Artifact{
		HandlerName: handlerName,
		Source:      source,
		Version:     result.GetContent().GetSHA(),
	}, nil
}

// withResilience wraps a single GitHub call with the circuit breaker and a
// short retry budget for transient 5xx/network failures, the same shape the
// Telegram client uses for its own outbound calls.
func (c *Client) withResilience(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	retrier := retry.New(retry.WithMaxAttempts(3), retry.WithInitialDelay(200*time.Millisecond))
	return retrier.Do(ctx, func(ctx context.Context) error {
		err := c.breaker.Execute(ctx, fn)
		if err == nil {
			return nil
		}
		if retry.IsPermanent(err) {
			return err
		}
		var ghErr *github.ErrorResponse
		if isGithubServerError(err, &ghErr) {
			return retry.Retryable(err)
		}
		return retry.Permanent(err)
	})
}

func isGithubServerError(err error, target **github.ErrorResponse) bool {
	if ghErr, ok := err.(*github.ErrorResponse); ok {
		*target = ghErr
		return ghErr.Response != nil && ghErr.Response.StatusCode >= 500
	}
	return false
}
