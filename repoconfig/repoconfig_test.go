package repoconfig

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseWithoutFile(t *testing.T) {
	cfg, err := Parse("owner/repo", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []ModDescriptor{{Owner: "owner", Repo: "repo", LocalePath: "locale"}}
	if !reflect.DeepEqual(cfg.Mods, want) {
		t.Fatalf("Mods = %+v, want %+v", cfg.Mods, want)
	}
	if !cfg.WeeklyUpdate {
		t.Fatalf("WeeklyUpdate = false, want true")
	}
	if cfg.Branch != "" {
		t.Fatalf("Branch = %q, want empty", cfg.Branch)
	}
}

func TestParseFormats(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantMods   []ModDescriptor
		wantWeekly bool
		wantBranch string
	}{
		{
			name: "legacy array",
			data: `["Mod1", "Mod2"]`,
			wantMods: []ModDescriptor{
				{Owner: "o", Repo: "r", LocalePath: "Mod1/locale", TranslationKey: "Mod1"},
				{Owner: "o", Repo: "r", LocalePath: "Mod2/locale", TranslationKey: "Mod2"},
			},
			wantWeekly: true,
		},
		{
			name: "object with short names",
			data: `{"mods": ["Mod1"], "branch": "dev"}`,
			wantMods: []ModDescriptor{
				{Owner: "o", Repo: "r", LocalePath: "Mod1/locale", TranslationKey: "Mod1"},
			},
			wantWeekly: true,
			wantBranch: "dev",
		},
		{
			name: "object with explicit locations",
			data: `{"mods": [{"localePath": "custom/path", "crowdinName": "Foo"}], "weekly_update_from_crowdin": false}`,
			wantMods: []ModDescriptor{
				{Owner: "o", Repo: "r", LocalePath: "custom/path", TranslationKey: "Foo"},
			},
			wantWeekly: false,
		},
		{
			name: "translationKey alias",
			data: `{"mods": [{"localePath": "a/locale", "translationKey": "A_1.x"}]}`,
			wantMods: []ModDescriptor{
				{Owner: "o", Repo: "r", LocalePath: "a/locale", TranslationKey: "A_1.x"},
			},
			wantWeekly: true,
		},
		{
			name: "object without mods",
			data: `{"weekly_update_from_crowdin": false}`,
			wantMods: []ModDescriptor{
				{Owner: "o", Repo: "r", LocalePath: "locale"},
			},
			wantWeekly: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse("o/r", []byte(tt.data))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if !reflect.DeepEqual(cfg.Mods, tt.wantMods) {
				t.Fatalf("Mods = %+v, want %+v", cfg.Mods, tt.wantMods)
			}
			if cfg.WeeklyUpdate != tt.wantWeekly {
				t.Fatalf("WeeklyUpdate = %v, want %v", cfg.WeeklyUpdate, tt.wantWeekly)
			}
			if cfg.Branch != tt.wantBranch {
				t.Fatalf("Branch = %q, want %q", cfg.Branch, tt.wantBranch)
			}
		})
	}
}

func TestParseRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty file", ``},
		{"not json", `mods: [a]`},
		{"scalar", `"Mod1"`},
		{"empty array", `[]`},
		{"empty mods", `{"mods": []}`},
		{"traversal", `{"mods": [{"localePath": "../etc", "crowdinName": "x"}]}`},
		{"leading slash", `{"mods": [{"localePath": "/abs", "crowdinName": "x"}]}`},
		{"double slash", `{"mods": [{"localePath": "a//b", "crowdinName": "x"}]}`},
		{"space in path", `{"mods": [{"localePath": "a b", "crowdinName": "x"}]}`},
		{"missing path", `{"mods": [{"crowdinName": "x"}]}`},
		{"bad key", `{"mods": [{"localePath": "a", "crowdinName": "x y"}]}`},
		{"missing key", `{"mods": [{"localePath": "a"}]}`},
		{"duplicate keys", `{"mods": [{"localePath": "a", "crowdinName": "x"}, {"localePath": "b", "crowdinName": "x"}]}`},
		{"duplicate names", `["Mod1", "Mod1"]`},
		{"nested short name", `["a/b"]`},
		{"dot short name", `[".hidden"]`},
		{"mixed mods", `{"mods": ["a", {"localePath": "b", "crowdinName": "b"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("o/r", []byte(tt.data))
			if err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", tt.data)
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Parse(%q) error %T, want *ConfigError", tt.data, err)
			}
			if cfgErr.FullName != "o/r" {
				t.Fatalf("ConfigError.FullName = %q, want %q", cfgErr.FullName, "o/r")
			}
		})
	}
}

func TestParseRejectsBadFullName(t *testing.T) {
	for _, name := range []string{"", "repo", "/repo", "owner/", "a/b/c"} {
		if _, err := Parse(name, nil); err == nil {
			t.Fatalf("Parse(%q, nil) succeeded, want error", name)
		}
	}
}

func TestModDescriptorString(t *testing.T) {
	root := ModDescriptor{Owner: "o", Repo: "r", LocalePath: "locale"}
	if got := root.String(); got != "o/r" {
		t.Fatalf("String() = %q, want %q", got, "o/r")
	}
	sub := ModDescriptor{Owner: "o", Repo: "r", LocalePath: "a/locale", TranslationKey: "a"}
	if got := sub.String(); got != "o/r/a" {
		t.Fatalf("String() = %q, want %q", got, "o/r/a")
	}
}

func TestKeepModAndFilterMods(t *testing.T) {
	cfg, err := Parse("o/r", []byte(`["A", "B", "C"]`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cfg.FilterMods(func(m ModDescriptor) bool { return m.TranslationKey != "B" }) {
		t.Fatalf("FilterMods removed everything")
	}
	if len(cfg.Mods) != 2 {
		t.Fatalf("len(Mods) = %d, want 2", len(cfg.Mods))
	}
	if cfg.KeepMod("B") {
		t.Fatalf("KeepMod(B) = true after B was filtered out")
	}

	cfg, _ = Parse("o/r", []byte(`["A", "B"]`))
	if !cfg.KeepMod("B") || len(cfg.Mods) != 1 || cfg.Mods[0].TranslationKey != "B" {
		t.Fatalf("KeepMod(B) left %+v", cfg.Mods)
	}
}

func TestSingleModWithSubpath(t *testing.T) {
	cfg, err := SingleModWithSubpath("o/r", "Mod1")
	if err != nil {
		t.Fatalf("SingleModWithSubpath: %v", err)
	}
	want := []ModDescriptor{{Owner: "o", Repo: "r", LocalePath: "Mod1/locale", TranslationKey: "Mod1"}}
	if !reflect.DeepEqual(cfg.Mods, want) {
		t.Fatalf("Mods = %+v, want %+v", cfg.Mods, want)
	}
	if _, err := SingleModWithSubpath("o/r", "../x"); err == nil {
		t.Fatalf("SingleModWithSubpath(../x) succeeded, want error")
	}
}
