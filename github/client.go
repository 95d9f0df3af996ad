// Package github is the GitHub side of the sync: app installations,
// repository contents, forks, pull requests and stars.
package github

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
	"github.com/hashicorp/golang-lru/v2/expirable"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("github")

const (
	perPage         = 100
	defaultHost     = "github.com"
	defaultForkWait = 2 * time.Minute
)

// Config holds the credentials and endpoints of a Client.
type Config struct {
	AppID int64
	// PrivateKey is the PEM encoded app key.
	PrivateKey string
	// PersonalToken authenticates ForkOwner for forks, pull requests and
	// stars.
	PersonalToken string
	ForkOwner     string
	// ForkWait is how long to wait after requesting a fork, which GitHub
	// creates asynchronously.
	ForkWait time.Duration
	// APIURL overrides https://api.github.com/, used in tests.
	APIURL string
	// GitHost is the host of clone URLs.
	GitHost string
	HTTP    *http.Client
}

// Client talks to GitHub as the app, as one of its installations, or as
// the personal helper account.
type Client struct {
	appID         int64
	key           *rsa.PrivateKey
	personalToken string
	forkOwner     string
	forkWait      time.Duration
	apiURL        *url.URL
	gitHost       string
	httpClient    *http.Client
	tokens        *expirable.LRU[int64, string]
	now           func() time.Time
}

// New builds a Client. Missing app credentials are accepted; calls that
// need them fail.
func New(cfg Config) (*Client, error) {
	c := &Client{
		appID:         cfg.AppID,
		personalToken: cfg.PersonalToken,
		forkOwner:     cfg.ForkOwner,
		forkWait:      cfg.ForkWait,
		gitHost:       cfg.GitHost,
		httpClient:    cfg.HTTP,
		tokens:        newTokenCache(),
		now:           time.Now,
	}
	if cfg.PrivateKey != "" {
		key, err := ParsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		c.key = key
	}
	if cfg.APIURL != "" {
		u, err := url.Parse(strings.TrimRight(cfg.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("github api url: %w", err)
		}
		c.apiURL = u
	}
	if c.gitHost == "" {
		c.gitHost = defaultHost
	}
	if c.forkWait == 0 {
		c.forkWait = defaultForkWait
	}
	return c, nil
}

func (c *Client) newClient(token string) *gh.Client {
	client := gh.NewClient(c.httpClient).WithAuthToken(token)
	if c.apiURL != nil {
		client.BaseURL = c.apiURL
	}
	return client
}

// SplitFullName splits "owner/repo".
func SplitFullName(fullName string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || repo == "" {
		return "", "", fmt.Errorf("repository name %q is not in owner/repo form", fullName)
	}
	return owner, repo, nil
}

func isNotFound(err error) bool {
	var errResp *gh.ErrorResponse
	return errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == http.StatusNotFound
}

// ---------------------------------------------------------------------------
// Installations
// ---------------------------------------------------------------------------

// FindRepositoryInstallation returns the installation that covers
// fullName, if any.
func (c *Client) FindRepositoryInstallation(ctx context.Context, fullName string) (int64, bool, error) {
	owner, repo, err := SplitFullName(fullName)
	if err != nil {
		return 0, false, err
	}
	app, err := c.asApp()
	if err != nil {
		return 0, false, err
	}
	inst, _, err := app.Apps.FindRepositoryInstallation(ctx, owner, repo)
	if isNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("finding installation of %s: %w", fullName, err)
	}
	return inst.GetID(), true, nil
}

// Installations lists every installation of the app.
func (c *Client) Installations(ctx context.Context) ([]*gh.Installation, error) {
	app, err := c.asApp()
	if err != nil {
		return nil, err
	}
	var all []*gh.Installation
	opts := &gh.ListOptions{PerPage: perPage}
	for {
		page, resp, err := app.Apps.ListInstallations(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("listing installations: %w", err)
		}
		all = append(all, page...)
		if resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

// InstallationRepositories returns the full names of the public
// repositories an installation can access.
func (c *Client) InstallationRepositories(ctx context.Context, installationID int64) ([]string, error) {
	client, err := c.asInstallation(ctx, installationID)
	if err != nil {
		return nil, err
	}
	var names []string
	opts := &gh.ListOptions{PerPage: perPage}
	for {
		page, resp, err := client.Apps.ListRepos(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("listing repositories of installation %d: %w", installationID, err)
		}
		for _, r := range page.Repositories {
			if !r.GetPrivate() {
				names = append(names, r.GetFullName())
			}
		}
		if resp.NextPage == 0 {
			return names, nil
		}
		opts.Page = resp.NextPage
	}
}

// CloneURL returns an authenticated HTTPS clone URL.
func (c *Client) CloneURL(ctx context.Context, installationID int64, fullName string) (string, error) {
	token, err := c.InstallationToken(ctx, installationID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("https://x-access-token:%s@%s/%s.git", token, c.gitHost, fullName), nil
}

// ---------------------------------------------------------------------------
// Repository contents
// ---------------------------------------------------------------------------

// ListDirectory returns the entry names of a directory. An empty
// repository lists as no entries.
func (c *Client) ListDirectory(ctx context.Context, installationID int64, fullName, path string) ([]string, error) {
	owner, repo, err := SplitFullName(fullName)
	if err != nil {
		return nil, err
	}
	client, err := c.asInstallation(ctx, installationID)
	if err != nil {
		return nil, err
	}
	_, entries, _, err := client.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		var errResp *gh.ErrorResponse
		if path == "" && errors.As(err, &errResp) && len(errResp.Errors) == 0 && errResp.Message == "This repository is empty." {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s/%s: %w", fullName, path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.GetName())
	}
	return names, nil
}

// FileContents returns the decoded content of a file.
func (c *Client) FileContents(ctx context.Context, installationID int64, fullName, path string) ([]byte, error) {
	owner, repo, err := SplitFullName(fullName)
	if err != nil {
		return nil, err
	}
	client, err := c.asInstallation(ctx, installationID)
	if err != nil {
		return nil, err
	}
	file, _, _, err := client.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", fullName, path, err)
	}
	if file == nil {
		return nil, fmt.Errorf("reading %s/%s: not a file", fullName, path)
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decoding %s/%s: %w", fullName, path, err)
	}
	return []byte(content), nil
}

// DefaultBranch returns the default branch of a repository.
func (c *Client) DefaultBranch(ctx context.Context, installationID int64, fullName string) (string, error) {
	owner, repo, err := SplitFullName(fullName)
	if err != nil {
		return "", err
	}
	client, err := c.asInstallation(ctx, installationID)
	if err != nil {
		return "", err
	}
	r, _, err := client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return "", fmt.Errorf("getting %s: %w", fullName, err)
	}
	return r.GetDefaultBranch(), nil
}

// IsBranchProtected reports whether pushes to branch need a pull request.
func (c *Client) IsBranchProtected(ctx context.Context, installationID int64, fullName, branch string) (bool, error) {
	owner, repo, err := SplitFullName(fullName)
	if err != nil {
		return false, err
	}
	client, err := c.asInstallation(ctx, installationID)
	if err != nil {
		return false, err
	}
	b, _, err := client.Repositories.GetBranch(ctx, owner, repo, branch, 1)
	if err != nil {
		return false, fmt.Errorf("getting branch %s of %s: %w", branch, fullName, err)
	}
	return b.GetProtected(), nil
}
