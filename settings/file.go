package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the tuning file looked up in the working directory.
const FileName = "modloc.yaml"

// File is the modloc.yaml structure.
type File struct {
	// PacingDelay separates repositories of a batch update to stay under
	// GitHub secondary rate limits.
	PacingDelay time.Duration `yaml:"pacing_delay,omitempty"`
	// PollInterval between Crowdin build status checks.
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	// ForkWait after requesting a fork.
	ForkWait time.Duration `yaml:"fork_wait,omitempty"`
	// PullRequestDelay between pushing to the fork and opening the pull
	// request.
	PullRequestDelay time.Duration `yaml:"pull_request_delay,omitempty"`
	// IgnoredRepositories are skipped by the update of all repositories.
	IgnoredRepositories []string `yaml:"ignored_repositories,omitempty"`
	// ForkOwner is the helper account used for forks and stars.
	ForkOwner string `yaml:"fork_owner,omitempty"`
	// BranchName is the fork branch pull requests are opened from.
	BranchName string `yaml:"branch_name,omitempty"`
	// Listen is the address of the serve command.
	Listen string `yaml:"listen,omitempty"`
	// LogLevel of the library loggers.
	LogLevel string `yaml:"log_level,omitempty"`
}

// Defaults returns the built-in settings.
func Defaults() *File {
	return &File{
		PacingDelay:      30 * time.Second,
		PollInterval:     time.Second,
		ForkWait:         2 * time.Minute,
		PullRequestDelay: 30 * time.Second,
		IgnoredRepositories: []string{
			// Large repository, clones run out of memory.
			"robot256/cargo_ships",
			"jingleheimer-schmidt/status_bars",
		},
		ForkOwner:  "factorio-mods-helper",
		BranchName: "crowdin-fml",
		Listen:     ":8000",
		LogLevel:   "info",
	}
}

// LoadFile reads modloc.yaml from dir. A missing file yields the
// defaults; fields left out of the file keep their default.
func LoadFile(dir string) (*File, error) {
	f := Defaults()
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func (f *File) validate() error {
	for name, d := range map[string]time.Duration{
		"pacing_delay":       f.PacingDelay,
		"poll_interval":      f.PollInterval,
		"fork_wait":          f.ForkWait,
		"pull_request_delay": f.PullRequestDelay,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if f.PollInterval == 0 {
		return errors.New("poll_interval must be positive")
	}
	if f.ForkOwner == "" {
		return errors.New("fork_owner is empty")
	}
	if f.BranchName == "" {
		return errors.New("branch_name is empty")
	}
	return nil
}
