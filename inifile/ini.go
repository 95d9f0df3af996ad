// Package inifile implements the Factorio locale file format (.cfg on the
// repository side, uploaded to Crowdin as .ini).
//
// Format: optional [section] headers followed by key=value lines. Lines
// starting with ';' or '#' are comments. Values run to the end of the line;
// a value wrapped in double quotes is taken literally, which is how values
// containing ';' or '"' survive the round trip through Crowdin.
//
//	[item-name]
//	iron-gear=Iron gear
//	quote="Say "hi"; then leave"
package inifile

import (
	"fmt"
	"os"
	"strings"
)

const (
	// LocalExt is the extension of locale files inside a repository.
	LocalExt = ".cfg"
	// RemoteExt is the extension Crowdin stores and exports.
	RemoteExt = ".ini"

	// EmptyPlaceholder replaces empty content on upload; Crowdin rejects
	// empty payloads.
	EmptyPlaceholder = "; empty"
)

// ---------------------------------------------------------------------------
// Escaping
// ---------------------------------------------------------------------------

// Escape wraps values containing '"' or ';' in double quotes unless the
// value is already wrapped in a leading and trailing quote. Only lines of
// the form key=value (key without '[' or '=') are considered; everything
// else, and every line terminator, is passed through unchanged.
func Escape(content string) string {
	var b strings.Builder
	b.Grow(len(content) + 16)

	for _, raw := range strings.SplitAfter(content, "\n") {
		body, eol := splitEOL(raw)
		b.WriteString(escapeLine(body))
		b.WriteString(eol)
	}
	return b.String()
}

// splitEOL separates "\n" or "\r\n" from the end of a raw line.
func splitEOL(raw string) (body, eol string) {
	switch {
	case strings.HasSuffix(raw, "\r\n"):
		return raw[:len(raw)-2], "\r\n"
	case strings.HasSuffix(raw, "\n"):
		return raw[:len(raw)-1], "\n"
	default:
		return raw, ""
	}
}

func escapeLine(line string) string {
	key, value, ok := strings.Cut(line, "=")
	if !ok || strings.Contains(key, "[") {
		return line
	}
	if !needsQuotes(value) {
		return line
	}
	return key + `="` + value + `"`
}

func needsQuotes(value string) bool {
	if !strings.ContainsAny(value, `";`) {
		return false
	}
	quoted := strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)
	return !quoted
}

// ---------------------------------------------------------------------------
// Empty detection
// ---------------------------------------------------------------------------

// IsEmpty reports whether content holds no entries: every line is blank,
// a section header or a comment. Crowdin exports such files for languages
// without a single translated string.
func IsEmpty(content string) bool {
	for _, ln := range strings.Split(content, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" || strings.HasPrefix(ln, "[") || isComment(ln) {
			continue
		}
		return false
	}
	return true
}

func isComment(trimmed string) bool {
	return strings.HasPrefix(trimmed, ";") || strings.HasPrefix(trimmed, "#")
}

// ---------------------------------------------------------------------------
// File names
// ---------------------------------------------------------------------------

// ToRemoteName maps "foo.cfg" to "foo.ini". Names without the local
// extension are returned unchanged.
func ToRemoteName(name string) string {
	if base, ok := strings.CutSuffix(name, LocalExt); ok {
		return base + RemoteExt
	}
	return name
}

// ToLocalName maps "foo.ini" to "foo.cfg". Any other extension means the
// remote side broke its contract and is reported as an error.
func ToLocalName(name string) (string, error) {
	base, ok := strings.CutSuffix(name, RemoteExt)
	if !ok {
		return "", fmt.Errorf("file %q from crowdin must end with %s", name, RemoteExt)
	}
	return base + LocalExt, nil
}

// ---------------------------------------------------------------------------
// File model
// ---------------------------------------------------------------------------

type lineKind int

const (
	lineBlank   lineKind = iota // blank / whitespace-only line
	lineComment                 // ';' or '#'
	lineSection                 // [section]
	lineEntry                   // key=value
)

type line struct {
	kind    lineKind
	raw     string
	section string // enclosing section for entries
	key     string
	value   string
}

// File is a parsed locale file. Keys are qualified by their section
// ("section.key"); entries before the first header have no prefix.
type File struct {
	lines []line
	index map[string]int
}

// ParseFile reads and parses a locale file from disk.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data), nil
}

// Parse parses locale file content. Malformed lines are kept as comments.
func Parse(data []byte) *File {
	f := &File{index: make(map[string]int)}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	rawLines := strings.Split(text, "\n")
	if len(rawLines) > 0 && rawLines[len(rawLines)-1] == "" {
		rawLines = rawLines[:len(rawLines)-1]
	}

	section := ""
	for _, raw := range rawLines {
		trimmed := strings.TrimSpace(raw)

		switch {
		case trimmed == "":
			f.lines = append(f.lines, line{kind: lineBlank, raw: raw})

		case isComment(trimmed):
			f.lines = append(f.lines, line{kind: lineComment, raw: raw})

		case strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"):
			section = strings.TrimSpace(trimmed[1 : len(trimmed)-1])
			f.lines = append(f.lines, line{kind: lineSection, raw: raw, section: section})

		default:
			k, v, ok := strings.Cut(raw, "=")
			if !ok || strings.TrimSpace(k) == "" {
				f.lines = append(f.lines, line{kind: lineComment, raw: raw})
				continue
			}
			ln := line{kind: lineEntry, raw: raw, section: section, key: strings.TrimSpace(k), value: v}
			qualified := qualify(section, ln.key)
			if idx, exists := f.index[qualified]; exists {
				// Later duplicates win, as in the game's loader.
				f.lines[idx].value = v
				continue
			}
			f.index[qualified] = len(f.lines)
			f.lines = append(f.lines, ln)
		}
	}
	return f
}

func qualify(section, key string) string {
	if section == "" {
		return key
	}
	return section + "." + key
}

// Keys returns qualified keys in document order.
func (f *File) Keys() []string {
	keys := make([]string, 0, len(f.index))
	for _, ln := range f.lines {
		if ln.kind == lineEntry {
			keys = append(keys, qualify(ln.section, ln.key))
		}
	}
	return keys
}

// Sections returns section names in document order.
func (f *File) Sections() []string {
	var out []string
	for _, ln := range f.lines {
		if ln.kind == lineSection {
			out = append(out, ln.section)
		}
	}
	return out
}

// Get returns the raw value for a qualified key.
func (f *File) Get(key string) (string, bool) {
	if idx, ok := f.index[key]; ok {
		return f.lines[idx].value, true
	}
	return "", false
}

// Coverage counts how many keys of src have a non-empty value in target.
func Coverage(src, target *File) (total, translated int) {
	for _, key := range src.Keys() {
		total++
		if v, ok := target.Get(key); ok && v != "" {
			translated++
		}
	}
	return total, translated
}
