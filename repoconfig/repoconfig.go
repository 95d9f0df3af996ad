// Package repoconfig resolves the mods of a repository from its optional
// factorio-mods-localization.json file.
//
// Without the file the whole repository is one mod:
//
//	.
//	├── locale/en
//
// With the file, several mods may live in one repository. Two shapes are
// accepted. The legacy bare array:
//
//	["Mod1", "Mod2"]
//
// and the object form, where every field is optional:
//
//	{
//	  "mods": ["Mod1", "Mod2"],
//	  "weekly_update_from_crowdin": false,
//	  "branch": "dev"
//	}
//
// "mods" may also list explicit locations:
//
//	{"mods": [{"localePath": "custom/path", "crowdinName": "Foo"}]}
//
// The file is read from the default branch even when "branch" names
// another one.
package repoconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"
)

// FileName is the config file looked up in the repository root.
const FileName = "factorio-mods-localization.json"

// DefaultLocalePath is the locale root of a repository without config.
const DefaultLocalePath = "locale"

// ModDescriptor identifies one mod inside a repository. It corresponds
// one to one to a directory on Crowdin.
type ModDescriptor struct {
	Owner string
	Repo  string
	// LocalePath is relative to the repository root, e.g. "Mod1/locale".
	LocalePath string
	// TranslationKey distinguishes mods of one repository on Crowdin.
	// Empty for the single root mod.
	TranslationKey string
}

// FullName returns "owner/repo".
func (m ModDescriptor) FullName() string {
	return m.Owner + "/" + m.Repo
}

// String is used in logs: "owner/repo" or "owner/repo/key".
func (m ModDescriptor) String() string {
	if m.TranslationKey == "" {
		return m.FullName()
	}
	return m.FullName() + "/" + m.TranslationKey
}

// RepoConfig is the resolved configuration of one repository.
type RepoConfig struct {
	FullName string
	Mods     []ModDescriptor
	// WeeklyUpdate enables the scheduled pull of translations.
	WeeklyUpdate bool
	// Branch tracked for English files and targeted by translation
	// commits. Empty means the default branch.
	Branch string
}

// ConfigError reports a config file that cannot be used. Callers skip the
// repository instead of failing a batch.
type ConfigError struct {
	FullName string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s in %s: %v", FileName, e.FullName, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// JSON schema
// ---------------------------------------------------------------------------

type fileObject struct {
	Mods         json.RawMessage `json:"mods"`
	WeeklyUpdate *bool           `json:"weekly_update_from_crowdin"`
	Branch       *string         `json:"branch"`
}

type fileMod struct {
	LocalePath     string `json:"localePath"`
	CrowdinName    string `json:"crowdinName"`
	TranslationKey string `json:"translationKey"`
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// Default returns the configuration of a repository without config file.
func Default(fullName string) (*RepoConfig, error) {
	owner, repo, err := splitFullName(fullName)
	if err != nil {
		return nil, &ConfigError{FullName: fullName, Err: err}
	}
	return &RepoConfig{
		FullName:     fullName,
		Mods:         []ModDescriptor{rootMod(owner, repo)},
		WeeklyUpdate: true,
	}, nil
}

// Parse resolves the configuration of fullName ("owner/repo"). A nil data
// means the config file is absent. Every validation failure is returned
// as *ConfigError.
func Parse(fullName string, data []byte) (*RepoConfig, error) {
	if data == nil {
		return Default(fullName)
	}
	cfg, err := parse(fullName, data)
	if err != nil {
		return nil, &ConfigError{FullName: fullName, Err: err}
	}
	return cfg, nil
}

func parse(fullName string, data []byte) (*RepoConfig, error) {
	owner, repo, err := splitFullName(fullName)
	if err != nil {
		return nil, err
	}

	var obj fileObject
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.HasPrefix(trimmed, []byte("[")):
		// Legacy format: bare array of mod names.
		obj.Mods = trimmed
	case bytes.HasPrefix(trimmed, []byte("{")):
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("parsing: %w", err)
		}
	default:
		return nil, errors.New("expected a JSON array or object")
	}

	cfg := &RepoConfig{FullName: fullName, WeeklyUpdate: true}
	if obj.WeeklyUpdate != nil {
		cfg.WeeklyUpdate = *obj.WeeklyUpdate
	}
	if obj.Branch != nil {
		cfg.Branch = strings.TrimSpace(*obj.Branch)
	}

	mods, err := parseMods(owner, repo, obj.Mods)
	if err != nil {
		return nil, err
	}
	if len(mods) == 0 {
		return nil, errors.New("no mods listed")
	}
	if dups := lo.FindDuplicatesBy(mods, func(m ModDescriptor) string { return m.TranslationKey }); len(dups) > 0 {
		return nil, fmt.Errorf("duplicate crowdinName %q", dups[0].TranslationKey)
	}
	cfg.Mods = mods
	return cfg, nil
}

func parseMods(owner, repo string, raw json.RawMessage) ([]ModDescriptor, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		// {"weekly_update_from_crowdin": false}
		return []ModDescriptor{rootMod(owner, repo)}, nil
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err == nil {
		mods := make([]ModDescriptor, 0, len(names))
		for _, name := range names {
			if err := checkShortName(name); err != nil {
				return nil, err
			}
			mod, err := customMod(owner, repo, name+"/"+DefaultLocalePath, name)
			if err != nil {
				return nil, err
			}
			mods = append(mods, mod)
		}
		return mods, nil
	}

	var full []fileMod
	if err := json.Unmarshal(raw, &full); err != nil {
		return nil, fmt.Errorf("mods: expected names or {localePath, crowdinName} objects: %w", err)
	}
	mods := make([]ModDescriptor, 0, len(full))
	for _, fm := range full {
		key := fm.CrowdinName
		if key == "" {
			key = fm.TranslationKey
		}
		mod, err := customMod(owner, repo, fm.LocalePath, key)
		if err != nil {
			return nil, err
		}
		mods = append(mods, mod)
	}
	return mods, nil
}

// SingleModWithSubpath builds a configuration for one mod living in a
// direct subdirectory, used by manual triggers that name the mod.
func SingleModWithSubpath(fullName, subpath string) (*RepoConfig, error) {
	owner, repo, err := splitFullName(fullName)
	if err != nil {
		return nil, &ConfigError{FullName: fullName, Err: err}
	}
	if err := checkShortName(subpath); err != nil {
		return nil, &ConfigError{FullName: fullName, Err: err}
	}
	mod, err := customMod(owner, repo, subpath+"/"+DefaultLocalePath, subpath)
	if err != nil {
		return nil, &ConfigError{FullName: fullName, Err: err}
	}
	return &RepoConfig{FullName: fullName, Mods: []ModDescriptor{mod}, WeeklyUpdate: true}, nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

var translationKeyRe = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

func rootMod(owner, repo string) ModDescriptor {
	return ModDescriptor{Owner: owner, Repo: repo, LocalePath: DefaultLocalePath}
}

func customMod(owner, repo, localePath, key string) (ModDescriptor, error) {
	if err := checkLocalePath(localePath); err != nil {
		return ModDescriptor{}, err
	}
	if !translationKeyRe.MatchString(key) {
		return ModDescriptor{}, fmt.Errorf("crowdinName %q must match %s", key, translationKeyRe)
	}
	return ModDescriptor{Owner: owner, Repo: repo, LocalePath: localePath, TranslationKey: key}, nil
}

// checkShortName accepts only direct subdirectory names.
func checkShortName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.Contains(name, "/") {
		return fmt.Errorf("mod name %q must be a direct subdirectory", name)
	}
	return nil
}

func checkLocalePath(p string) error {
	if p == "" {
		return errors.New("localePath is empty")
	}
	if strings.ContainsAny(p, `. <>:"\|?*`) {
		return fmt.Errorf("localePath %q contains a reserved character", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			return fmt.Errorf("localePath %q has an empty segment", p)
		}
	}
	return nil
}

func splitFullName(fullName string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("repository name %q is not in owner/repo form", fullName)
	}
	return owner, repo, nil
}

// ---------------------------------------------------------------------------
// Narrowing
// ---------------------------------------------------------------------------

// KeepMod drops every mod except the one with the given key and reports
// whether it was found.
func (c *RepoConfig) KeepMod(key string) bool {
	c.Mods = lo.Filter(c.Mods, func(m ModDescriptor, _ int) bool {
		return m.TranslationKey == key
	})
	return len(c.Mods) > 0
}

// FilterMods keeps the mods accepted by keep and reports whether any
// remain.
func (c *RepoConfig) FilterMods(keep func(ModDescriptor) bool) bool {
	c.Mods = lo.Filter(c.Mods, func(m ModDescriptor, _ int) bool {
		return keep(m)
	})
	return len(c.Mods) > 0
}
