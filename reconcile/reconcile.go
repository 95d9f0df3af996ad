// Package reconcile merges an extracted Crowdin build into a mod checkout.
//
// For each mod:
//   - translated files without an English counterpart are deleted;
//   - for every language of the build, the files of the mod's Crowdin
//     directory are written into the matching locale folder, renamed from
//     .ini to .cfg and overwriting local copies.
//
// The build is only read, so one build can serve every repository of a
// batch.
package reconcile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	logging "github.com/ipfs/go-log/v2"

	"github.com/minios-linux/modloc/inifile"
	"github.com/minios-linux/modloc/langcode"
	"github.com/minios-linux/modloc/locale"
	"github.com/minios-linux/modloc/naming"
	"github.com/minios-linux/modloc/repoconfig"
)

var log = logging.Logger("reconcile")

// Stats summarizes one reconciliation.
type Stats struct {
	Deleted   int
	Written   int
	Languages []string
}

// InvariantError reports a build that does not look like a Crowdin
// export of ini files.
type InvariantError struct {
	Path   string
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// languageRestrictions limits some repositories to a subset of the
// project languages.
var languageRestrictions = map[string][]string{
	"PennyJim/pirate-locale": {"fr"},
}

// LanguageEnabled reports whether translations into language are pulled
// into the given mod.
func LanguageEnabled(mod repoconfig.ModDescriptor, language string) bool {
	allowed, ok := languageRestrictions[mod.FullName()]
	if !ok {
		return true
	}
	for _, l := range allowed {
		if l == language {
			return true
		}
	}
	return false
}

// Reconcile merges the build extracted at bundleRoot into modDir.
func Reconcile(modDir locale.ModDirectory, bundleRoot string) (Stats, error) {
	var stats Stats

	deleted, err := DeleteOrphans(modDir)
	if err != nil {
		return stats, err
	}
	stats.Deleted = deleted

	entries, err := os.ReadDir(bundleRoot)
	if err != nil {
		return stats, fmt.Errorf("reading build: %w", err)
	}
	dirName := naming.DirectoryName(modDir.Mod)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		language := langcode.Normalize(e.Name())
		if language == langcode.English || !LanguageEnabled(modDir.Mod, language) {
			continue
		}

		src := filepath.Join(bundleRoot, e.Name(), dirName)
		files, err := os.ReadDir(src)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("reading %s: %w", src, err)
		}
		files = regularFiles(files)
		if len(files) == 0 {
			continue
		}

		dst := filepath.Join(modDir.LocalePath(), modDir.FolderFor(language))
		if err := os.MkdirAll(dst, 0755); err != nil {
			return stats, err
		}
		for _, f := range files {
			localName, err := inifile.ToLocalName(f.Name())
			if err != nil {
				return stats, &InvariantError{Path: filepath.Join(src, f.Name()), Reason: "file from crowdin must end with .ini"}
			}
			if err := copyFile(filepath.Join(src, f.Name()), filepath.Join(dst, localName)); err != nil {
				return stats, err
			}
			stats.Written++
		}
		stats.Languages = append(stats.Languages, language)
	}

	log.Debugf("[%s] reconciled: %d written, %d deleted, languages %v", modDir.Mod, stats.Written, stats.Deleted, stats.Languages)
	return stats, nil
}

// DeleteOrphans removes translated files whose English counterpart no
// longer exists. Nothing is deleted when the English folder is missing.
//
//	locale/en: [a.cfg]         locale/en: [a.cfg]
//	locale/ru: [a.cfg, b.cfg]  locale/ru: [a.cfg]
func DeleteOrphans(modDir locale.ModDirectory) (int, error) {
	if !modDir.HasEnglish() {
		return 0, nil
	}
	mismatches, err := modDir.Mismatches()
	if err != nil {
		return 0, err
	}
	for _, m := range mismatches {
		path := filepath.Join(modDir.LocalePath(), m.Language, m.File)
		if err := os.Remove(path); err != nil {
			return 0, fmt.Errorf("deleting orphan %s: %w", path, err)
		}
		log.Infof("[%s] deleted %s/%s without english counterpart", modDir.Mod, m.Language, m.File)
	}
	return len(mismatches), nil
}

func regularFiles(entries []fs.DirEntry) []fs.DirEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.Type().IsRegular() {
			out = append(out, e)
		}
	}
	return out
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}
