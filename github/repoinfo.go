package github

import (
	"context"
	"errors"
	"fmt"

	"github.com/minios-linux/modloc/repoconfig"
)

var (
	// ErrLocaleMissing means a repository without config has no locale
	// directory.
	ErrLocaleMissing = errors.New("locale directory missing")
	// ErrLocaleEnMissing means locale/en is missing or empty.
	ErrLocaleEnMissing = errors.New("locale/en directory missing or empty")
)

// LoadRepoConfig resolves the mods of a repository from GitHub without
// cloning it.
func (c *Client) LoadRepoConfig(ctx context.Context, installationID int64, fullName string) (*repoconfig.RepoConfig, error) {
	root, err := c.ListDirectory(ctx, installationID, fullName, "")
	if err != nil {
		return nil, err
	}
	if contains(root, repoconfig.FileName) {
		data, err := c.FileContents(ctx, installationID, fullName, repoconfig.FileName)
		if err != nil {
			return nil, err
		}
		if data == nil {
			data = []byte{}
		}
		return repoconfig.Parse(fullName, data)
	}

	if !contains(root, repoconfig.DefaultLocalePath) {
		return nil, fmt.Errorf("%s: %w", fullName, ErrLocaleMissing)
	}
	en, err := c.ListDirectory(ctx, installationID, fullName, repoconfig.DefaultLocalePath+"/en")
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if len(en) == 0 {
		return nil, fmt.Errorf("%s: %w", fullName, ErrLocaleEnMissing)
	}
	return repoconfig.Default(fullName)
}

// InstallationRepoConfigs resolves every usable repository of an
// installation. Repositories without mods are skipped.
func (c *Client) InstallationRepoConfigs(ctx context.Context, installationID int64) ([]*repoconfig.RepoConfig, error) {
	names, err := c.InstallationRepositories(ctx, installationID)
	if err != nil {
		return nil, err
	}
	var configs []*repoconfig.RepoConfig
	for _, name := range names {
		cfg, err := c.LoadRepoConfig(ctx, installationID, name)
		if err != nil {
			log.Warnf("[%s] skipped: %v", name, err)
			continue
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
