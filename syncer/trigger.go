package syncer

import (
	"context"
	"fmt"

	"github.com/minios-linux/modloc/repoconfig"
)

// TriggerResult is the outcome of a manual request.
type TriggerResult int

const (
	// Triggered means the work was started in the background.
	Triggered TriggerResult = iota
	// Imported means the work completed.
	Imported
	NoInstallation
	NoMods
	// NoMatchingDirectory means none of the repository's mods has a
	// Crowdin directory, so there is nothing to pull.
	NoMatchingDirectory
	// Busy means another update holds the lock.
	Busy
)

func (r TriggerResult) String() string {
	switch r {
	case Triggered:
		return "Triggered. See logs for details."
	case Imported:
		return "Ok."
	case NoInstallation:
		return "Can't find installation for repository"
	case NoMods:
		return "No mods."
	case NoMatchingDirectory:
		return "No mods of this repository are on Crowdin."
	case Busy:
		return "Another update is running, try again later."
	default:
		return fmt.Sprintf("TriggerResult(%d)", int(r))
	}
}

// resolve finds the installation and mods of fullName. A non-empty
// subpath narrows the config to that mod, or describes a single mod in
// that subdirectory when the config does not list it.
func (s *Syncer) resolve(ctx context.Context, fullName, subpath string) (Target, TriggerResult, error) {
	id, found, err := s.github.FindRepositoryInstallation(ctx, fullName)
	if err != nil {
		return Target{}, 0, err
	}
	if !found {
		return Target{}, NoInstallation, nil
	}

	cfg, err := s.github.LoadRepoConfig(ctx, id, fullName)
	if err != nil && !isNoMods(err) {
		return Target{}, 0, err
	}
	if subpath != "" {
		if err == nil && cfg.KeepMod(subpath) {
			return Target{InstallationID: id, Config: cfg}, Triggered, nil
		}
		cfg, err = repoconfig.SingleModWithSubpath(fullName, subpath)
	}
	if err != nil {
		log.Infof("[%s] no mods: %v", fullName, err)
		return Target{}, NoMods, nil
	}
	return Target{InstallationID: id, Config: cfg}, Triggered, nil
}

// Trigger starts a pull of Crowdin translations into fullName, or into
// every repository when fullName is empty. It never queues: a running
// update makes it return Busy.
func (s *Syncer) Trigger(ctx context.Context, fullName, subpath string) (TriggerResult, error) {
	if fullName == "" {
		if !s.lock.TryAcquire() {
			return Busy, nil
		}
		log.Info("[update-github-from-crowdin] [*] starting")
		s.spawn(ctx, "[update-github-from-crowdin] [*]", true, s.UpdateAll)
		return Triggered, nil
	}

	target, res, err := s.resolve(ctx, fullName, subpath)
	if err != nil || res != Triggered {
		return res, err
	}
	directories, err := s.crowdin.DirectoryNames(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing crowdin directories: %w", err)
	}
	if len(onCrowdin([]Target{target}, directories)) == 0 {
		return NoMatchingDirectory, nil
	}

	if !s.lock.TryAcquire() {
		return Busy, nil
	}
	log.Infof("[update-github-from-crowdin] [%s] starting", fullName)
	s.spawn(ctx, fmt.Sprintf("[update-github-from-crowdin] [%s]", fullName), true, func(ctx context.Context) error {
		return s.UpdateRepositories(ctx, []Target{target})
	})
	return Triggered, nil
}

// ImportKind selects what ManualImport uploads.
type ImportKind int

const (
	// ImportRepository imports English files and translations.
	ImportRepository ImportKind = iota
	// ImportEnglishOnly overwrites English files of existing directories.
	ImportEnglishOnly
)

// ManualImport imports fullName into Crowdin and waits for the lock and
// the import to finish.
func (s *Syncer) ManualImport(ctx context.Context, fullName, subpath string, kind ImportKind) (TriggerResult, error) {
	target, res, err := s.resolve(ctx, fullName, subpath)
	if err != nil || res != Triggered {
		return res, err
	}
	if err := s.lock.Acquire(ctx); err != nil {
		return 0, err
	}
	defer s.lock.Release()

	err = protect(func() error {
		if kind == ImportEnglishOnly {
			return s.ImportEnglish(ctx, target.InstallationID, target.Config)
		}
		return s.OnRepositoryAdded(ctx, target.InstallationID, target.Config)
	})
	if err != nil {
		return 0, err
	}
	return Imported, nil
}
