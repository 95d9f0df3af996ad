// modloc: keeps Factorio mod translations in sync between GitHub and Crowdin.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"

	"github.com/minios-linux/modloc/crowdin"
	"github.com/minios-linux/modloc/github"
	"github.com/minios-linux/modloc/gitutil"
	"github.com/minios-linux/modloc/inifile"
	"github.com/minios-linux/modloc/langcode"
	"github.com/minios-linux/modloc/locale"
	"github.com/minios-linux/modloc/naming"
	"github.com/minios-linux/modloc/repoconfig"
	"github.com/minios-linux/modloc/settings"
	"github.com/minios-linux/modloc/syncer"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	configDir string
	logLevel  string
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "modloc",
		Short: "Factorio mods localization: sync mod translations between GitHub and Crowdin",
		Long: `modloc keeps Factorio mod locale files in sync between GitHub repositories
and a shared Crowdin project.

English files and existing translations flow from GitHub to Crowdin when the
GitHub App is installed or English files change. Translations flow back from
Crowdin as commits or, for protected branches, pull requests.

Commands:
  serve           Run the webhook and trigger server
  update          Pull Crowdin translations into repositories
  import          Import a repository into Crowdin
  import-english  Overwrite English files on Crowdin from a repository
  check           Report locale structure and coverage of a local checkout
  title-case      Show the Crowdin title case of a name

Secrets are read from the environment and from .env in the config directory;
tuning is read from modloc.yaml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configDir, "config-dir", ".", "Directory holding .env and modloc.yaml")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Library log level (debug, info, warn, error); overrides modloc.yaml")

	root.AddCommand(
		newServeCmd(),
		newUpdateCmd(),
		newImportCmd(),
		newImportEnglishCmd(),
		newCheckCmd(),
		newTitleCaseCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Wiring
// ---------------------------------------------------------------------------

// app bundles what the online commands need.
type app struct {
	env    *settings.Env
	file   *settings.File
	syncer *syncer.Syncer
}

// loadSettings reads .env, the environment and modloc.yaml, and applies
// the log level.
func loadSettings() (*settings.Env, *settings.File, error) {
	env, err := settings.LoadEnv(filepath.Join(configDir, ".env"))
	if err != nil {
		return nil, nil, err
	}
	if err := env.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%s environment: %w", env.Environment(), err)
	}
	file, err := settings.LoadFile(configDir)
	if err != nil {
		return nil, nil, err
	}

	level := file.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	lvl, err := logging.LevelFromString(level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", level, err)
	}
	logging.SetAllLoggers(lvl)
	return env, file, nil
}

func newApp(ctx context.Context) (*app, error) {
	env, file, err := loadSettings()
	if err != nil {
		return nil, err
	}

	cr := crowdin.New(env.CrowdinProjectID, env.CrowdinAPIKey)
	cr.PollInterval = file.PollInterval

	gh, err := github.New(github.Config{
		AppID:         env.GitHubAppID,
		PrivateKey:    env.GitHubAppPrivateKey,
		PersonalToken: env.GitHubPersonalToken,
		ForkOwner:     file.ForkOwner,
		ForkWait:      file.ForkWait,
	})
	if err != nil {
		return nil, err
	}

	strict := env.Environment() != settings.Development
	languages, err := cr.Languages(ctx, strict)
	if err != nil {
		if strict {
			return nil, err
		}
		logWarning("Using built-in language list: %v", err)
		languages = langcode.Default()
	}

	s := syncer.New(gh, cr, languages, gitutil.ExecRunner{}, syncer.Config{
		Author:              gitutil.Author{Name: env.GitCommitUserName, Email: env.GitCommitUserEmail},
		CommitMessage:       env.GitCommitMessage,
		BranchName:          file.BranchName,
		PacingDelay:         file.PacingDelay,
		PullRequestDelay:    file.PullRequestDelay,
		IgnoredRepositories: file.IgnoredRepositories,
	})
	return &app{env: env, file: file, syncer: s}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "modloc version %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "  commit:    %s\n", commit)
			fmt.Fprintf(cmd.OutOrStdout(), "  built:     %s\n", date)
		},
	}

	return cmd
}

// ---------------------------------------------------------------------------
// update (Crowdin -> GitHub)
// ---------------------------------------------------------------------------

func newUpdateCmd() *cobra.Command {
	var repo, subpath string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Pull Crowdin translations into repositories",
		Long: `Download all translations from Crowdin and write them into repositories.

Without --repo every installed repository is updated, except ignored ones and
those with weekly_update_from_crowdin=false. Changes are pushed directly or,
when the target branch is protected, through a pull request from the helper
fork.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if subpath != "" && repo == "" {
				return errors.New("--subpath requires --repo")
			}
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			res, err := a.syncer.Trigger(ctx, repo, subpath)
			if err != nil {
				return err
			}
			if res != syncer.Triggered {
				return errors.New(res.String())
			}
			a.syncer.Wait()
			logSuccess("Update finished")
			return nil
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "", "Repository to update (owner/repo)")
	cmd.Flags().StringVar(&subpath, "subpath", "", "Only the mod in this subdirectory")

	return cmd
}

// ---------------------------------------------------------------------------
// import / import-english (GitHub -> Crowdin)
// ---------------------------------------------------------------------------

func newImportCmd() *cobra.Command {
	return newManualImportCmd("import", "Import a repository into Crowdin",
		`Import English files and existing translations of a repository into
Crowdin, creating directories as needed. Used when the automatic import after
installation failed.`, syncer.ImportRepository)
}

func newImportEnglishCmd() *cobra.Command {
	return newManualImportCmd("import-english", "Overwrite English files on Crowdin from a repository",
		`Upload the English files of every mod that already has a Crowdin directory.`,
		syncer.ImportEnglishOnly)
}

func newManualImportCmd(use, short, long string, kind syncer.ImportKind) *cobra.Command {
	var repo, subpath string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			res, err := a.syncer.ManualImport(ctx, repo, subpath, kind)
			if err != nil {
				return err
			}
			if res != syncer.Imported {
				return errors.New(res.String())
			}
			logSuccess("Imported %s", repo)
			return nil
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "", "Repository to import (owner/repo)")
	cmd.Flags().StringVar(&subpath, "subpath", "", "Only the mod in this subdirectory")
	cmd.MarkFlagRequired("repo")

	return cmd
}

// ---------------------------------------------------------------------------
// title-case
// ---------------------------------------------------------------------------

func newTitleCaseCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "title-case <name>...",
		Short: "Show the Crowdin title case of a name",
		Long: `Print the title case used for Crowdin directory names.

With --owner the arguments are taken as repository and optional mod key and
the full directory name is printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				fmt.Fprintln(cmd.OutOrStdout(), naming.TitleCase(strings.Join(args, " ")))
				return nil
			}
			if len(args) > 2 {
				return errors.New("with --owner expected <repo> [key]")
			}
			mod := repoconfig.ModDescriptor{Owner: owner, Repo: args[0]}
			if len(args) == 2 {
				mod.TranslationKey = args[1]
			}
			fmt.Fprintln(cmd.OutOrStdout(), naming.DirectoryName(mod))
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Repository owner")

	return cmd
}

// ---------------------------------------------------------------------------
// check (offline report of a local checkout)
// ---------------------------------------------------------------------------

type langCoverage struct {
	Folder     string
	Code       string
	Translated int
	Total      int
}

type modReport struct {
	Mod          repoconfig.ModDescriptor
	Directory    string
	HasEnglish   bool
	EnglishFiles int
	Mismatches   []locale.Mismatch
	Languages    []langCoverage
}

func newCheckCmd() *cobra.Command {
	var fullName string

	cmd := &cobra.Command{
		Use:   "check <dir>",
		Short: "Report locale structure and coverage of a local checkout",
		Long: `Read the mods of a local repository checkout and report, per mod, the Crowdin
directory name, translated files without English counterpart, and how many
English keys each language translates. Does not contact any service.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			if fullName == "" {
				abs, err := filepath.Abs(dir)
				if err != nil {
					return err
				}
				fullName = "local/" + filepath.Base(abs)
			}
			reports, err := checkRepository(dir, fullName)
			if err != nil {
				return err
			}
			showReports(reports)
			for _, r := range reports {
				if !r.HasEnglish || len(r.Mismatches) > 0 {
					return errors.New("locale structure has problems")
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&fullName, "repo", "", "Repository name (owner/repo) used for Crowdin directory names")

	return cmd
}

// checkRepository builds a report for every mod of the checkout at dir.
func checkRepository(dir, fullName string) ([]modReport, error) {
	data, err := os.ReadFile(filepath.Join(dir, repoconfig.FileName))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	cfg, err := repoconfig.Parse(fullName, data)
	if err != nil {
		return nil, err
	}

	var reports []modReport
	for _, mod := range cfg.Mods {
		modDir := locale.ModDirectory{Root: dir, Mod: mod, Languages: langcode.Default()}
		r := modReport{Mod: mod, Directory: naming.DirectoryName(mod), HasEnglish: modDir.HasEnglish()}
		if !r.HasEnglish {
			reports = append(reports, r)
			continue
		}

		english, err := modDir.EnglishFiles()
		if err != nil {
			return nil, err
		}
		r.EnglishFiles = len(english)
		if r.Mismatches, err = modDir.Mismatches(); err != nil {
			return nil, err
		}
		if r.Languages, err = coverage(modDir, english); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func coverage(modDir locale.ModDirectory, english []string) ([]langCoverage, error) {
	sources := make(map[string]*inifile.File, len(english))
	for _, path := range english {
		f, err := inifile.ParseFile(path)
		if err != nil {
			return nil, err
		}
		sources[filepath.Base(path)] = f
	}

	locs, err := modDir.Localizations()
	if err != nil {
		return nil, err
	}
	var out []langCoverage
	for _, loc := range locs {
		c := langCoverage{Folder: loc.Folder, Code: loc.Code}
		for name, src := range sources {
			target := inifile.Parse(nil)
			path := filepath.Join(modDir.LocalePath(), loc.Folder, name)
			if f, err := inifile.ParseFile(path); err == nil {
				target = f
			}
			total, translated := inifile.Coverage(src, target)
			c.Total += total
			c.Translated += translated
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Folder < out[j].Folder })
	return out, nil
}

func showReports(reports []modReport) {
	for _, r := range reports {
		fmt.Fprintf(os.Stderr, "%s%s%s  →  %s\n", colorBlue, r.Mod, colorReset, r.Directory)
		fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
		if !r.HasEnglish {
			logWarning("No English locale folder at %s/en", r.Mod.LocalePath)
			fmt.Fprintln(os.Stderr)
			continue
		}
		logInfo("%d English files", r.EnglishFiles)
		for _, m := range r.Mismatches {
			logError("%s", m)
		}

		if len(r.Languages) > 0 {
			fmt.Fprintf(os.Stderr, "\n%-10s %-12s %-8s %s\n", "Lang", "Translated", "Total", "Progress")
			for _, l := range r.Languages {
				percent := 0
				if l.Total > 0 {
					percent = l.Translated * 100 / l.Total
				}
				fmt.Fprintf(os.Stderr, "%-10s %-12d %-8d %s\n", l.Folder, l.Translated, l.Total, progressBar(percent, 20))
			}
		}
		fmt.Fprintln(os.Stderr)
	}
}

// progressBar renders a colored bar followed by the percentage.
func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100

	color := colorRed
	switch {
	case percent >= 100:
		color = colorGreen
	case percent >= 50:
		color = colorYellow
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("%s%s%s %3d%%", color, bar, colorReset, percent)
}
