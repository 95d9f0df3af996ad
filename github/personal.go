package github

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
)

const (
	pullRequestTitle = "Update translations from Crowdin"
	pullRequestBody  = "Translations pulled from the Crowdin project of Factorio mods localization."
)

// Fork makes sure the helper account has a fork of fullName named like
// the original and reports whether it can be pushed to. A fork under a
// different name is reported as false.
func (c *Client) Fork(ctx context.Context, fullName string) (bool, error) {
	owner, repo, err := SplitFullName(fullName)
	if err != nil {
		return false, err
	}
	client, err := c.asPersonal()
	if err != nil {
		return false, err
	}

	opts := &gh.RepositoryListForksOptions{ListOptions: gh.ListOptions{PerPage: perPage}}
	for {
		forks, resp, err := client.Repositories.ListForks(ctx, owner, repo, opts)
		if err != nil {
			return false, fmt.Errorf("listing forks of %s: %w", fullName, err)
		}
		for _, f := range forks {
			if !strings.EqualFold(f.GetOwner().GetLogin(), c.forkOwner) {
				continue
			}
			if f.GetName() == repo {
				return true, nil
			}
			log.Errorf("[%s] fork name %s doesn't match repository", fullName, f.GetName())
			return false, nil
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	log.Infof("[%s] forking repository...", fullName)
	_, _, err = client.Repositories.CreateFork(ctx, owner, repo, nil)
	var accepted *gh.AcceptedError
	if err != nil && !errors.As(err, &accepted) {
		return false, fmt.Errorf("forking %s: %w", fullName, err)
	}
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(c.forkWait):
	}
	return true, nil
}

// ForkURL returns an authenticated push URL of the helper fork.
func (c *Client) ForkURL(fullName string) (string, error) {
	_, repo, err := SplitFullName(fullName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("https://%s:%s@%s/%s/%s.git", c.forkOwner, c.personalToken, c.gitHost, c.forkOwner, repo), nil
}

// CreatePullRequest opens a pull request from the helper fork's
// headBranch into baseBranch. An already open pull request and archived
// repositories are not errors.
func (c *Client) CreatePullRequest(ctx context.Context, fullName, headBranch, baseBranch string) error {
	owner, repo, err := SplitFullName(fullName)
	if err != nil {
		return err
	}
	client, err := c.asPersonal()
	if err != nil {
		return err
	}
	_, _, err = client.PullRequests.Create(ctx, owner, repo, &gh.NewPullRequest{
		Title:               gh.String(pullRequestTitle),
		Head:                gh.String(c.forkOwner + ":" + headBranch),
		Base:                gh.String(baseBranch),
		Body:                gh.String(pullRequestBody),
		MaintainerCanModify: gh.Bool(true),
	})
	switch {
	case err == nil:
		return nil
	case isPullRequestExists(err):
		// Force pushing the branch already updated it.
		return nil
	case isRepositoryArchived(err):
		log.Infof("[%s] repository is archived, pull request skipped", fullName)
		return nil
	default:
		return fmt.Errorf("creating pull request for %s: %w", fullName, err)
	}
}

func isPullRequestExists(err error) bool {
	var errResp *gh.ErrorResponse
	if !errors.As(err, &errResp) || errResp.Message != "Validation Failed" || len(errResp.Errors) == 0 {
		return false
	}
	return strings.HasPrefix(errResp.Errors[0].Message, "A pull request already exists for")
}

func isRepositoryArchived(err error) bool {
	return strings.Contains(err.Error(), "Repository was archived so is read-only")
}

// Star stars fullName as the helper account.
func (c *Client) Star(ctx context.Context, fullName string) error {
	owner, repo, err := SplitFullName(fullName)
	if err != nil {
		return err
	}
	client, err := c.asPersonal()
	if err != nil {
		return err
	}
	if _, err := client.Activity.Star(ctx, owner, repo); err != nil {
		return fmt.Errorf("starring %s: %w", fullName, err)
	}
	return nil
}

// IsStarred reports whether the helper account starred fullName.
func (c *Client) IsStarred(ctx context.Context, fullName string) (bool, error) {
	owner, repo, err := SplitFullName(fullName)
	if err != nil {
		return false, err
	}
	client, err := c.asPersonal()
	if err != nil {
		return false, err
	}
	starred, _, err := client.Activity.IsStarred(ctx, owner, repo)
	if err != nil {
		return false, fmt.Errorf("checking star of %s: %w", fullName, err)
	}
	return starred, nil
}
