// Package naming maps mods to the names of their Crowdin directories.
package naming

import (
	"strings"
	"unicode"

	"github.com/minios-linux/modloc/repoconfig"
)

// TitleCase splits s into words and capitalizes the first letter of each.
// Words are separated by runs of non-alphanumeric characters and by
// lower-to-upper case transitions. The rest of a word is left untouched,
// so "FOO-BAR" stays "FOO BAR" and digits stick to the preceding word.
func TitleCase(s string) string {
	var b strings.Builder
	prev := ' '
	first := true
	for _, r := range s {
		if isAlnum(r) {
			if unicode.IsLower(prev) && unicode.IsUpper(r) {
				prev = ' '
			}
			if isAlnum(prev) {
				b.WriteRune(r)
			} else {
				if !first {
					b.WriteByte(' ')
				}
				b.WriteRune(toASCIIUpper(r))
			}
			first = false
		}
		prev = r
	}
	return b.String()
}

// DirectoryName returns the Crowdin directory of a mod:
// "<Repo> (<owner>)" or "<Repo> - <Key> (<owner>)".
func DirectoryName(mod repoconfig.ModDescriptor) string {
	repo := TitleCase(mod.Repo)
	if mod.TranslationKey == "" {
		return repo + " (" + mod.Owner + ")"
	}
	return repo + " - " + TitleCase(mod.TranslationKey) + " (" + mod.Owner + ")"
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func toASCIIUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - 'a' + 'A'
	}
	return r
}
