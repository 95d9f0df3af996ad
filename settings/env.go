// Package settings loads modloc settings.
//
// Secrets and credentials come from the environment, optionally seeded
// from a .env file. Operational tuning lives in modloc.yaml:
//
//	pacing_delay: 30s
//	poll_interval: 1s
//	ignored_repositories:
//	  - robot256/cargo_ships
//	fork_owner: factorio-mods-helper
//	branch_name: crowdin-fml
//	listen: ":8000"
//
// Which environment variables are required depends on the environment:
//
//   - development (IS_DEVELOPMENT=true): none
//   - CI (CI set): API credentials
//   - production: all of them
package settings

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Environment selects which variables are required.
type Environment int

const (
	Production Environment = iota
	CI
	Development
)

func (e Environment) String() string {
	switch e {
	case Development:
		return "development"
	case CI:
		return "ci"
	default:
		return "production"
	}
}

// Env is the process environment.
type Env struct {
	CrowdinProjectID int64  `envconfig:"CROWDIN_PROJECT_ID"`
	CrowdinAPIKey    string `envconfig:"CROWDIN_API_KEY"`

	GitHubAppID          int64  `envconfig:"GITHUB_APP_ID"`
	GitHubAppPrivateKey  string `envconfig:"GITHUB_APP_PRIVATE_KEY"`
	GitHubWebhooksSecret string `envconfig:"GITHUB_APP_WEBHOOKS_SECRET"`
	GitHubPersonalToken  string `envconfig:"GITHUB_PERSONAL_ACCESS_TOKEN"`

	GitCommitUserName  string `envconfig:"GIT_COMMIT_USER_NAME"`
	GitCommitUserEmail string `envconfig:"GIT_COMMIT_USER_EMAIL"`
	GitCommitMessage   string `envconfig:"GIT_COMMIT_MESSAGE" default:"Update translations from Crowdin"`

	WebserverSecret string `envconfig:"WEBSERVER_SECRET"`

	IsDevelopment string `envconfig:"IS_DEVELOPMENT"`
	CI            string `envconfig:"CI"`
}

// LoadEnv reads dotenvPath when it exists, without overriding variables
// already set, and then decodes the environment.
func LoadEnv(dotenvPath string) (*Env, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", dotenvPath, err)
		}
	}
	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return &env, nil
}

// Environment reports the current environment.
func (e *Env) Environment() Environment {
	if e.IsDevelopment == "true" {
		return Development
	}
	if e.CI != "" {
		return CI
	}
	return Production
}

// Validate checks that every variable required by the current
// environment is set and reports all missing ones at once.
func (e *Env) Validate() error {
	env := e.Environment()
	if env == Development {
		return nil
	}

	type requirement struct {
		name string
		set  bool
		inCI bool
	}
	reqs := []requirement{
		{"CROWDIN_PROJECT_ID", e.CrowdinProjectID != 0, true},
		{"CROWDIN_API_KEY", e.CrowdinAPIKey != "", true},
		{"GITHUB_APP_ID", e.GitHubAppID != 0, true},
		{"GITHUB_APP_PRIVATE_KEY", e.GitHubAppPrivateKey != "", true},
		{"GITHUB_APP_WEBHOOKS_SECRET", e.GitHubWebhooksSecret != "", false},
		{"GITHUB_PERSONAL_ACCESS_TOKEN", e.GitHubPersonalToken != "", true},
		{"GIT_COMMIT_USER_NAME", e.GitCommitUserName != "", false},
		{"GIT_COMMIT_USER_EMAIL", e.GitCommitUserEmail != "", false},
		{"GIT_COMMIT_MESSAGE", e.GitCommitMessage != "", false},
		{"WEBSERVER_SECRET", e.WebserverSecret != "", false},
	}

	var result *multierror.Error
	for _, r := range reqs {
		if r.set || (env == CI && !r.inCI) {
			continue
		}
		result = multierror.Append(result, fmt.Errorf("%s is not set", r.name))
	}
	return result.ErrorOrNil()
}
