// Package locale inspects the locale directory of a mod inside a
// repository checkout.
//
//	<LocalePath>/
//	├── en/*.cfg
//	├── ru/*.cfg
//	└── pt-br/*.cfg
package locale

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	logging "github.com/ipfs/go-log/v2"

	"github.com/minios-linux/modloc/inifile"
	"github.com/minios-linux/modloc/langcode"
	"github.com/minios-linux/modloc/repoconfig"
)

var log = logging.Logger("locale")

// ModDirectory is one mod of a cloned repository.
type ModDirectory struct {
	// Root is the repository checkout.
	Root      string
	Mod       repoconfig.ModDescriptor
	Languages *langcode.Set
}

// Localization is one translated language folder.
type Localization struct {
	// Code is the canonical language code ("pt-BR").
	Code string
	// Folder is the on-disk folder name ("pt-br").
	Folder string
	// Files are absolute paths of the .cfg files, sorted.
	Files []string
}

// Mismatch is a translated file without English counterpart.
type Mismatch struct {
	Mod      repoconfig.ModDescriptor
	Language string
	File     string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("[%s] matched english file not found for '%s/%s'", m.Mod, m.Language, m.File)
}

// LocalePath returns the absolute locale directory of the mod.
func (d ModDirectory) LocalePath() string {
	return filepath.Join(d.Root, filepath.FromSlash(d.Mod.LocalePath))
}

// EnglishPath returns the absolute English locale directory.
func (d ModDirectory) EnglishPath() string {
	return filepath.Join(d.LocalePath(), langcode.English)
}

// HasEnglish reports whether the English locale directory exists.
func (d ModDirectory) HasEnglish() bool {
	info, err := os.Stat(d.EnglishPath())
	return err == nil && info.IsDir()
}

// CheckStructure reports whether the mod can be imported: English files
// exist and every translated file has an English counterpart. Mismatches
// are logged as errors.
func (d ModDirectory) CheckStructure() bool {
	return d.HasEnglish() && d.TranslationsMatchEnglish()
}

// TranslationsMatchEnglish logs the first translated file without English
// counterpart and reports whether there is none.
func (d ModDirectory) TranslationsMatchEnglish() bool {
	mismatches, err := d.Mismatches()
	if err != nil {
		log.Errorf("[%s] %v", d.Mod, err)
		return false
	}
	if len(mismatches) > 0 {
		log.Errorf("%s", mismatches[0])
		return false
	}
	return true
}

// Mismatches lists every translated file without English counterpart.
func (d ModDirectory) Mismatches() ([]Mismatch, error) {
	locs, err := d.Localizations()
	if err != nil {
		return nil, err
	}
	var out []Mismatch
	for _, loc := range locs {
		for _, file := range loc.Files {
			name := filepath.Base(file)
			if !isRegularFile(filepath.Join(d.EnglishPath(), name)) {
				out = append(out, Mismatch{Mod: d.Mod, Language: loc.Folder, File: name})
			}
		}
	}
	return out, nil
}

// EnglishFiles returns the .cfg files directly inside the English
// directory, sorted.
func (d ModDirectory) EnglishFiles() ([]string, error) {
	return cfgFiles(d.EnglishPath())
}

// Localizations returns every supported language folder except English,
// sorted by folder name. A missing locale directory yields no folders.
func (d ModDirectory) Localizations() ([]Localization, error) {
	entries, err := os.ReadDir(d.LocalePath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", d.LocalePath(), err)
	}

	var out []Localization
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		code := langcode.Normalize(e.Name())
		if code == langcode.English || !d.Languages.Contains(code) {
			continue
		}
		files, err := cfgFiles(filepath.Join(d.LocalePath(), e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, Localization{Code: code, Folder: e.Name(), Files: files})
	}
	return out, nil
}

// FolderFor returns the existing folder spelling of a canonical language
// code, or the code itself when no folder matches.
func (d ModDirectory) FolderFor(code string) string {
	entries, err := os.ReadDir(d.LocalePath())
	if err != nil {
		return code
	}
	for _, e := range entries {
		if e.IsDir() && langcode.Normalize(e.Name()) == code {
			return e.Name()
		}
	}
	return code
}

func cfgFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), inifile.LocalExt) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if isRegularFile(path) {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files, nil
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
