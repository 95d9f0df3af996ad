package syncer

import (
	"context"
	"fmt"

	gh "github.com/google/go-github/v66/github"
	"github.com/hashicorp/go-multierror"
)

// HandleWebhook dispatches a GitHub webhook whose signature was already
// checked. The work runs in the background behind the lock; the returned
// error only covers decoding.
func (s *Syncer) HandleWebhook(ctx context.Context, eventType string, payload []byte) error {
	event, err := gh.ParseWebHook(eventType, payload)
	if err != nil {
		return fmt.Errorf("parsing %s webhook: %w", eventType, err)
	}

	switch e := event.(type) {
	case *gh.InstallationEvent:
		user := e.GetSender().GetLogin()
		switch e.GetAction() {
		case "created":
			s.spawnRepositoriesAdded(ctx, user, e.GetInstallation().GetID(), e.Repositories)
		case "deleted":
			log.Infof("[email] app uninstalled for user %s", user)
		default:
			log.Infof("[installation-webhook] [%s] unknown action: %s", user, e.GetAction())
		}

	case *gh.InstallationRepositoriesEvent:
		for _, r := range e.RepositoriesRemoved {
			log.Infof("[email] app uninstalled for repository %s", r.GetFullName())
		}
		s.spawnRepositoriesAdded(ctx, e.GetSender().GetLogin(), e.GetInstallation().GetID(), e.RepositoriesAdded)

	case *gh.PushEvent:
		fullName := e.GetRepo().GetFullName()
		installationID := e.GetInstallation().GetID()
		files := changedFiles(e)
		s.spawn(ctx, fmt.Sprintf("[push-webhook] [%s]", fullName), false, func(ctx context.Context) error {
			return s.OnPush(ctx, installationID, fullName, files)
		})

	default:
		log.Infof("[webhook] unknown event: %s", eventType)
	}
	return nil
}

func (s *Syncer) spawnRepositoriesAdded(ctx context.Context, user string, installationID int64, repos []*gh.Repository) {
	if len(repos) == 0 {
		return
	}
	log.Infof("[installation-webhook] [%s] starting for %d repositories", user, len(repos))
	s.spawn(ctx, fmt.Sprintf("[installation-webhook] [%s]", user), false, func(ctx context.Context) error {
		return s.onRepositoriesAdded(ctx, installationID, repos)
	})
}

// onRepositoriesAdded imports every public repository and stars it.
func (s *Syncer) onRepositoriesAdded(ctx context.Context, installationID int64, repos []*gh.Repository) error {
	var result *multierror.Error
	for _, r := range repos {
		if r.GetPrivate() {
			continue
		}
		name := r.GetFullName()
		cfg, err := s.github.LoadRepoConfig(ctx, installationID, name)
		if isNoMods(err) {
			log.Infof("[installation-webhook] [%s] no mods: %v", name, err)
			continue
		}
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
			continue
		}
		log.Infof("[email] app installed for repository %s", name)
		if err := protect(func() error { return s.OnRepositoryAdded(ctx, installationID, cfg) }); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
			continue
		}
		s.star(ctx, name)
	}
	return result.ErrorOrNil()
}

// changedFiles lists the paths added, modified or removed by the pushed
// commits.
func changedFiles(e *gh.PushEvent) []string {
	var files []string
	for _, c := range e.Commits {
		files = append(files, c.Added...)
		files = append(files, c.Modified...)
		files = append(files, c.Removed...)
	}
	return files
}
