// Package langcode normalizes locale folder names and holds the set of
// language codes supported by the translation project.
//
// Two spellings of a code coexist: the folder name found in a repository
// (arbitrary casing, e.g. "pt-br") and the canonical form used by Crowdin
// ("pt-BR"). Normalize maps the first onto the second.
package langcode

import (
	"sort"
	"strings"
)

// English is the source language folder of every mod.
const English = "en"

// Normalize converts a folder name into the canonical xx or xx-YY form.
// Only the first '-' splits the code; "pt-br" becomes "pt-BR".
func Normalize(code string) string {
	lang, region, ok := strings.Cut(code, "-")
	if !ok {
		return strings.ToLower(code)
	}
	return strings.ToLower(lang) + "-" + strings.ToUpper(region)
}

// Set is an immutable set of canonical language codes.
// It is built once at startup and shared read-only afterwards.
type Set struct {
	codes map[string]struct{}
	list  []string
}

// NewSet builds a Set from canonical codes. Duplicates are ignored.
func NewSet(codes []string) *Set {
	s := &Set{codes: make(map[string]struct{}, len(codes))}
	for _, c := range codes {
		if _, ok := s.codes[c]; ok {
			continue
		}
		s.codes[c] = struct{}{}
		s.list = append(s.list, c)
	}
	sort.Strings(s.list)
	return s
}

// Contains reports whether code is supported. The code must already be
// canonical; use Normalize on folder names first.
func (s *Set) Contains(code string) bool {
	if s == nil {
		return false
	}
	_, ok := s.codes[code]
	return ok
}

// Codes returns the supported codes in sorted order.
func (s *Set) Codes() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.list))
	copy(out, s.list)
	return out
}

// Len returns the number of supported codes.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.list)
}

// defaultCodes mirrors the target languages of the Factorio mods
// localization project on Crowdin.
var defaultCodes = []string{
	"af", "ar", "be", "bg", "ca", "cs", "da", "de", "el", "eo",
	"es-ES", "et", "eu", "fa", "fi", "fil", "fr", "fy-NL", "ga-IE", "he",
	"hr", "hu", "id", "is", "it", "ja", "ka", "kk", "ko", "lt",
	"lv", "nl", "no", "pl", "pt-BR", "pt-PT", "ro", "ru", "sk", "sl",
	"sq", "sr", "sv-SE", "th", "tr", "uk", "vi", "zh-CN", "zh-TW",
}

// Default returns the built-in language set, used in development mode
// where the live project is not queried.
func Default() *Set {
	return NewSet(defaultCodes)
}
