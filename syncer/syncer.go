// Package syncer runs the two directions of the sync: importing
// repositories into Crowdin and pushing Crowdin translations back to
// GitHub.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	gh "github.com/google/go-github/v66/github"
	"github.com/hashicorp/go-multierror"
	logging "github.com/ipfs/go-log/v2"

	"github.com/minios-linux/modloc/crowdin"
	"github.com/minios-linux/modloc/github"
	"github.com/minios-linux/modloc/gitutil"
	"github.com/minios-linux/modloc/langcode"
	"github.com/minios-linux/modloc/locale"
	"github.com/minios-linux/modloc/naming"
	"github.com/minios-linux/modloc/reconcile"
	"github.com/minios-linux/modloc/repoconfig"
)

var log = logging.Logger("syncer")

// GitHub is the part of *github.Client used by Syncer.
type GitHub interface {
	FindRepositoryInstallation(ctx context.Context, fullName string) (int64, bool, error)
	Installations(ctx context.Context) ([]*gh.Installation, error)
	InstallationRepoConfigs(ctx context.Context, installationID int64) ([]*repoconfig.RepoConfig, error)
	LoadRepoConfig(ctx context.Context, installationID int64, fullName string) (*repoconfig.RepoConfig, error)
	CloneURL(ctx context.Context, installationID int64, fullName string) (string, error)
	DefaultBranch(ctx context.Context, installationID int64, fullName string) (string, error)
	IsBranchProtected(ctx context.Context, installationID int64, fullName, branch string) (bool, error)
	Fork(ctx context.Context, fullName string) (bool, error)
	ForkURL(fullName string) (string, error)
	CreatePullRequest(ctx context.Context, fullName, headBranch, baseBranch string) error
	Star(ctx context.Context, fullName string) error
}

// Crowdin is the part of *crowdin.Client used by Syncer.
type Crowdin interface {
	DirectoryNames(ctx context.Context) (map[string]bool, error)
	DownloadAllTranslations(ctx context.Context) (*crowdin.Bundle, error)
	HasDirectory(ctx context.Context, modDir locale.ModDirectory) (bool, error)
	Import(ctx context.Context, modDir locale.ModDirectory, mode crowdin.ImportMode) (bool, error)
}

var (
	_ GitHub  = (*github.Client)(nil)
	_ Crowdin = (*crowdin.Client)(nil)
)

// Config tunes a Syncer.
type Config struct {
	Author        gitutil.Author
	CommitMessage string
	// BranchName is the fork branch pull requests are opened from.
	BranchName string
	// PacingDelay is the minimum interval between two repositories of a
	// batch update.
	PacingDelay      time.Duration
	PullRequestDelay time.Duration
	// IgnoredRepositories are left out of UpdateAll.
	IgnoredRepositories []string
	// WorkDir holds temporary clones. Empty means the system default.
	WorkDir string
}

// Target is one repository to update.
type Target struct {
	InstallationID int64
	Config         *repoconfig.RepoConfig
}

// Syncer coordinates GitHub, Crowdin and git. All mutating operations
// started through Trigger, ManualImport or HandleWebhook hold Lock.
type Syncer struct {
	github    GitHub
	crowdin   Crowdin
	languages *langcode.Set
	git       gitutil.Runner
	cfg       Config

	lock  *Lock
	wg    sync.WaitGroup
	sleep func(context.Context, time.Duration) error
}

// New builds a Syncer. languages are the Crowdin target languages.
func New(g GitHub, c Crowdin, languages *langcode.Set, git gitutil.Runner, cfg Config) *Syncer {
	if git == nil {
		git = gitutil.ExecRunner{}
	}
	return &Syncer{
		github:    g,
		crowdin:   c,
		languages: languages,
		git:       git,
		cfg:       cfg,
		lock:      NewLock(),
		sleep:     sleepContext,
	}
}

// Lock returns the lock guarding mutating operations.
func (s *Syncer) Lock() *Lock { return s.lock }

// Wait blocks until every background task has finished.
func (s *Syncer) Wait() { s.wg.Wait() }

// spawn runs fn in a goroutine holding the lock. With held set the
// caller has already acquired it; otherwise the goroutine waits for it.
// The goroutine outlives ctx's cancellation but keeps its values.
func (s *Syncer) spawn(ctx context.Context, tag string, held bool, fn func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if !held {
			if err := s.lock.Acquire(ctx); err != nil {
				log.Errorf("%s %v", tag, err)
				return
			}
		}
		defer s.lock.Release()
		if err := protect(func() error { return fn(ctx) }); err != nil {
			log.Errorf("%s failed: %v", tag, err)
			return
		}
		log.Infof("%s success", tag)
	}()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// protect turns a panic of fn into an error.
func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// isNoMods reports whether err means the repository has nothing to
// sync, as opposed to a failed request.
func isNoMods(err error) bool {
	var cfgErr *repoconfig.ConfigError
	return errors.As(err, &cfgErr) ||
		errors.Is(err, github.ErrLocaleMissing) ||
		errors.Is(err, github.ErrLocaleEnMissing)
}

// ---------------------------------------------------------------------------
// Checkout
// ---------------------------------------------------------------------------

func (s *Syncer) modDirectory(root string, mod repoconfig.ModDescriptor) locale.ModDirectory {
	return locale.ModDirectory{Root: root, Mod: mod, Languages: s.languages}
}

// checkout clones the repository into a fresh temporary directory. The
// returned func removes it.
func (s *Syncer) checkout(ctx context.Context, installationID int64, cfg *repoconfig.RepoConfig) (*gitutil.Repo, func(), error) {
	url, err := s.github.CloneURL(ctx, installationID, cfg.FullName)
	if err != nil {
		return nil, nil, err
	}
	dir, err := os.MkdirTemp(s.cfg.WorkDir, "modloc-repo-")
	if err != nil {
		return nil, nil, fmt.Errorf("creating clone directory: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	log.Infof("[%s] clone repository", cfg.FullName)
	repo, err := gitutil.Clone(ctx, s.git, url, dir, cfg.Branch)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("cloning %s: %w", cfg.FullName, err)
	}
	return repo, cleanup, nil
}

func (s *Syncer) star(ctx context.Context, fullName string) {
	if err := s.github.Star(ctx, fullName); err != nil {
		log.Warnf("[%s] starring: %v", fullName, err)
	}
}

// ---------------------------------------------------------------------------
// GitHub to Crowdin
// ---------------------------------------------------------------------------

// OnRepositoryAdded imports every mod with a valid locale structure:
// English files and existing translations.
func (s *Syncer) OnRepositoryAdded(ctx context.Context, installationID int64, cfg *repoconfig.RepoConfig) error {
	log.Infof("[add-repository] [%s] starting", cfg.FullName)
	repo, cleanup, err := s.checkout(ctx, installationID, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	for _, mod := range cfg.Mods {
		modDir := s.modDirectory(repo.Dir, mod)
		if !modDir.CheckStructure() {
			log.Warnf("[add-repository] [%s] skipped, invalid locale structure", mod)
			continue
		}
		if _, err := s.crowdin.Import(ctx, modDir, crowdin.ImportAll); err != nil {
			return fmt.Errorf("[%s] import: %w", mod, err)
		}
	}
	log.Infof("[add-repository] [%s] success", cfg.FullName)
	return nil
}

// ImportEnglish overwrites the English files of mods that already have a
// Crowdin directory.
func (s *Syncer) ImportEnglish(ctx context.Context, installationID int64, cfg *repoconfig.RepoConfig) error {
	repo, cleanup, err := s.checkout(ctx, installationID, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	for _, mod := range cfg.Mods {
		modDir := s.modDirectory(repo.Dir, mod)
		if !modDir.HasEnglish() {
			continue
		}
		exists, err := s.crowdin.HasDirectory(ctx, modDir)
		if err != nil {
			return fmt.Errorf("[%s] %w", mod, err)
		}
		if !exists {
			log.Infof("[import-english] [%s] no crowdin directory, skipped", mod)
			continue
		}
		if _, err := s.crowdin.Import(ctx, modDir, crowdin.ImportEnglish); err != nil {
			return fmt.Errorf("[%s] import english: %w", mod, err)
		}
	}
	return nil
}

// HasInterestingChanges reports whether a push touched the config file
// or English locale files.
func HasInterestingChanges(changedFiles []string) bool {
	for _, f := range changedFiles {
		if f == repoconfig.FileName || strings.Contains(f, "locale/en/") {
			return true
		}
	}
	return false
}

// OnPush refreshes Crowdin after a push. Mods without a directory are
// imported in full when their translations match English; existing
// directories get English files only.
func (s *Syncer) OnPush(ctx context.Context, installationID int64, fullName string, changedFiles []string) error {
	log.Infof("[push-webhook] [%s] starting", fullName)
	if !HasInterestingChanges(changedFiles) {
		log.Infof("[push-webhook] [%s] no modified/added english files found", fullName)
		return nil
	}

	cfg, err := s.github.LoadRepoConfig(ctx, installationID, fullName)
	if isNoMods(err) {
		log.Infof("[push-webhook] [%s] no mods found: %v", fullName, err)
		return nil
	}
	if err != nil {
		return err
	}

	repo, cleanup, err := s.checkout(ctx, installationID, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	created := false
	for _, mod := range cfg.Mods {
		modDir := s.modDirectory(repo.Dir, mod)
		if !modDir.HasEnglish() {
			continue
		}
		exists, err := s.crowdin.HasDirectory(ctx, modDir)
		if err != nil {
			return fmt.Errorf("[%s] %w", mod, err)
		}
		if !exists && !modDir.TranslationsMatchEnglish() {
			continue
		}
		c, err := s.crowdin.Import(ctx, modDir, crowdin.ImportNew)
		if err != nil {
			return fmt.Errorf("[%s] import: %w", mod, err)
		}
		created = created || c
	}
	log.Infof("[push-webhook] [%s] success", fullName)

	if created {
		s.star(ctx, fullName)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Crowdin to GitHub
// ---------------------------------------------------------------------------

// UpdateAll updates every repository of every installation, except
// ignored ones and those that opted out of the weekly update.
func (s *Syncer) UpdateAll(ctx context.Context) error {
	installations, err := s.github.Installations(ctx)
	if err != nil {
		return err
	}
	var targets []Target
	for _, inst := range installations {
		configs, err := s.github.InstallationRepoConfigs(ctx, inst.GetID())
		if err != nil {
			return fmt.Errorf("installation %d: %w", inst.GetID(), err)
		}
		for _, cfg := range configs {
			if s.ignored(cfg.FullName) {
				log.Infof("[update-github-from-crowdin] [%s] skipping update (ignored)", cfg.FullName)
				continue
			}
			if !cfg.WeeklyUpdate {
				log.Infof("[update-github-from-crowdin] [%s] skipping update because weekly_update_from_crowdin=false", cfg.FullName)
				continue
			}
			targets = append(targets, Target{InstallationID: inst.GetID(), Config: cfg})
		}
	}
	return s.UpdateRepositories(ctx, targets)
}

func (s *Syncer) ignored(fullName string) bool {
	for _, r := range s.cfg.IgnoredRepositories {
		if r == fullName {
			return true
		}
	}
	return false
}

// onCrowdin narrows every target to the mods that have a Crowdin
// directory and drops targets left without mods. Configs are copied.
func onCrowdin(targets []Target, directories map[string]bool) []Target {
	var out []Target
	for _, t := range targets {
		cfg := *t.Config
		if !cfg.FilterMods(func(m repoconfig.ModDescriptor) bool {
			return directories[naming.DirectoryName(m)]
		}) {
			log.Infof("[update-github-from-crowdin] [%s] no crowdin directory, skipped", cfg.FullName)
			continue
		}
		out = append(out, Target{InstallationID: t.InstallationID, Config: &cfg})
	}
	return out
}

// UpdateRepositories downloads one translation bundle and writes it into
// each repository in turn. A failing repository does not stop the
// others; all failures are returned together.
func (s *Syncer) UpdateRepositories(ctx context.Context, targets []Target) error {
	directories, err := s.crowdin.DirectoryNames(ctx)
	if err != nil {
		return fmt.Errorf("listing crowdin directories: %w", err)
	}
	targets = onCrowdin(targets, directories)
	if len(targets) == 0 {
		log.Info("[update-github-from-crowdin] nothing to update")
		return nil
	}

	bundle, err := s.crowdin.DownloadAllTranslations(ctx)
	if err != nil {
		return fmt.Errorf("downloading translations: %w", err)
	}
	defer bundle.Close()

	var result *multierror.Error
	for i, t := range targets {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.PacingDelay); err != nil {
				result = multierror.Append(result, err)
				break
			}
		}
		name := t.Config.FullName
		err := protect(func() error { return s.updateRepository(ctx, t, bundle.Root) })
		if err != nil {
			log.Errorf("[update-github-from-crowdin] [%s] failed: %v", name, err)
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
		}
	}
	return result.ErrorOrNil()
}

func (s *Syncer) updateRepository(ctx context.Context, t Target, bundleRoot string) error {
	cfg := t.Config
	repo, cleanup, err := s.checkout(ctx, t.InstallationID, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	for _, mod := range cfg.Mods {
		if _, err := reconcile.Reconcile(s.modDirectory(repo.Dir, mod), bundleRoot); err != nil {
			return fmt.Errorf("[%s] %w", mod, err)
		}
	}

	changed, err := repo.AddAllAndHasChanges(ctx)
	if err != nil {
		return err
	}
	if !changed {
		log.Infof("[update-github-from-crowdin] [%s] no changes found", cfg.FullName)
		return nil
	}
	log.Infof("[update-github-from-crowdin] [%s] found changes", cfg.FullName)
	if err := repo.Commit(ctx, s.cfg.Author, s.cfg.CommitMessage); err != nil {
		return err
	}

	base := cfg.Branch
	if base == "" {
		if base, err = s.github.DefaultBranch(ctx, t.InstallationID, cfg.FullName); err != nil {
			return err
		}
	}
	protected, err := s.github.IsBranchProtected(ctx, t.InstallationID, cfg.FullName, base)
	if err != nil {
		return err
	}
	if protected {
		return s.pushViaPullRequest(ctx, repo, cfg.FullName, base)
	}

	res, err := repo.Push(ctx)
	if err != nil {
		return err
	}
	log.Infof("[update-github-from-crowdin] [%s] %s", cfg.FullName, res)
	return nil
}

// pushViaPullRequest pushes the commit to the helper fork and opens a
// pull request against base.
func (s *Syncer) pushViaPullRequest(ctx context.Context, repo *gitutil.Repo, fullName, base string) error {
	usable, err := s.github.Fork(ctx, fullName)
	if err != nil {
		return err
	}
	if !usable {
		return nil
	}
	forkURL, err := s.github.ForkURL(fullName)
	if err != nil {
		return err
	}

	repo.DeleteRemoteBranch(ctx, forkURL, s.cfg.BranchName)
	res, err := repo.PushToBranch(ctx, forkURL, s.cfg.BranchName)
	if err != nil {
		return err
	}
	if res == gitutil.UpToDate {
		log.Infof("[update-github-from-crowdin] [%s] existing %s branch has same content", fullName, s.cfg.BranchName)
		return nil
	}

	if err := s.sleep(ctx, s.cfg.PullRequestDelay); err != nil {
		return err
	}
	if err := s.github.CreatePullRequest(ctx, fullName, s.cfg.BranchName, base); err != nil {
		return err
	}
	log.Infof("[update-github-from-crowdin] [%s] pushed to %s branch and created PR", fullName, s.cfg.BranchName)
	return nil
}
