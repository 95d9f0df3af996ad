package crowdin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/minios-linux/modloc/inifile"
	"github.com/minios-linux/modloc/langcode"
	"github.com/minios-linux/modloc/locale"
	"github.com/minios-linux/modloc/naming"
)

// Directory is the Crowdin directory of one mod.
type Directory struct {
	ID     int64
	Name   string
	ModDir locale.ModDirectory

	client *Client
}

// GetOrCreate finds the directory of the mod or creates it. The second
// result reports whether it was created.
func GetOrCreate(ctx context.Context, c *Client, modDir locale.ModDirectory) (*Directory, bool, error) {
	name := naming.DirectoryName(modDir.Mod)
	id, found, err := c.FindDirectory(ctx, name)
	if err != nil {
		return nil, false, fmt.Errorf("finding directory %q: %w", name, err)
	}
	created := false
	if !found {
		if id, err = c.CreateDirectory(ctx, name); err != nil {
			return nil, false, fmt.Errorf("creating directory %q: %w", name, err)
		}
		created = true
		log.Infof("[%s] created crowdin directory %q", modDir.Mod, name)
	}
	return &Directory{ID: id, Name: name, ModDir: modDir, client: c}, created, nil
}

// HasDirectory reports whether the mod already has a directory.
func (c *Client) HasDirectory(ctx context.Context, modDir locale.ModDirectory) (bool, error) {
	_, found, err := c.FindDirectory(ctx, naming.DirectoryName(modDir.Mod))
	return found, err
}

// ImportMode selects what Import uploads.
type ImportMode int

const (
	// ImportAll uploads English files and translations.
	ImportAll ImportMode = iota
	// ImportEnglish uploads English files only.
	ImportEnglish
	// ImportNew uploads everything into a freshly created directory and
	// only English files into an existing one.
	ImportNew
)

// Import gets or creates the directory of the mod and uploads its files
// according to mode. It reports whether the directory was created.
func (c *Client) Import(ctx context.Context, modDir locale.ModDirectory, mode ImportMode) (bool, error) {
	dir, created, err := GetOrCreate(ctx, c, modDir)
	if err != nil {
		return false, err
	}
	if mode == ImportAll || mode == ImportNew && created {
		if mode == ImportNew {
			log.Infof("[%s] created directory on crowdin, performing full import", modDir.Mod)
		}
		return created, dir.UploadAll(ctx)
	}
	_, err = dir.UploadEnglishFiles(ctx)
	return created, err
}

// UploadAll uploads English files and then every translation.
func (d *Directory) UploadAll(ctx context.Context) error {
	ids, err := d.UploadEnglishFiles(ctx)
	if err != nil {
		return err
	}
	return d.UploadTranslations(ctx, ids)
}

// UploadEnglishFiles creates or updates a remote file for every local
// English file and returns the remote ids keyed by remote name. Remote
// files without local counterpart are left alone.
func (d *Directory) UploadEnglishFiles(ctx context.Context) (map[string]int64, error) {
	existing, err := d.client.ListFiles(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("listing files of %q: %w", d.Name, err)
	}
	remote := make(map[string]int64, len(existing))
	for _, f := range existing {
		remote[f.Name] = f.ID
	}

	files, err := d.ModDir.EnglishFiles()
	if err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(files))
	for _, path := range files {
		name := inifile.ToRemoteName(filepath.Base(path))
		storageID, err := d.uploadToStorage(ctx, path, name)
		if err != nil {
			return nil, err
		}
		if fileID, ok := remote[name]; ok {
			if err := d.client.UpdateFile(ctx, fileID, storageID); err != nil {
				return nil, fmt.Errorf("updating %s: %w", name, err)
			}
			result[name] = fileID
			continue
		}
		fileID, err := d.client.CreateFile(ctx, d.ID, storageID, name)
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", name, err)
		}
		result[name] = fileID
	}
	return result, nil
}

// UploadTranslations attaches every local translation to the English file
// of the same name. englishIDs must cover every translated file, which
// locale.ModDirectory.CheckStructure guarantees.
func (d *Directory) UploadTranslations(ctx context.Context, englishIDs map[string]int64) error {
	locs, err := d.ModDir.Localizations()
	if err != nil {
		return err
	}
	for _, loc := range locs {
		for _, path := range loc.Files {
			name := inifile.ToRemoteName(filepath.Base(path))
			fileID, ok := englishIDs[name]
			if !ok {
				return fmt.Errorf("[%s] no english file for %s/%s", d.ModDir.Mod, loc.Folder, filepath.Base(path))
			}
			storageID, err := d.uploadToStorage(ctx, path, name)
			if err != nil {
				return err
			}
			if err := d.client.AddTranslation(ctx, loc.Code, fileID, storageID); err != nil {
				return fmt.Errorf("adding %s translation %s: %w", loc.Code, name, err)
			}
		}
	}
	return nil
}

func (d *Directory) uploadToStorage(ctx context.Context, path, name string) (int64, error) {
	log.Infof("[%s] upload file to storage: %s/%s", d.ModDir.Mod, filepath.Base(filepath.Dir(path)), name)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	content := inifile.Escape(string(data))
	if content == "" {
		content = inifile.EmptyPlaceholder
	}
	id, err := d.client.UploadStorage(ctx, name, content)
	if err != nil {
		return 0, fmt.Errorf("uploading %s: %w", name, err)
	}
	return id, nil
}

// Languages returns the target languages of the project. With strict set
// the project must be the production one and carry more than 20
// languages.
func (c *Client) Languages(ctx context.Context, strict bool) (*langcode.Set, error) {
	info, err := c.ProjectInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching project info: %w", err)
	}
	if strict {
		if info.Name != ProjectName {
			return nil, fmt.Errorf("crowdin project is %q, want %q", info.Name, ProjectName)
		}
		if len(info.TargetLanguageIDs) <= 20 {
			return nil, fmt.Errorf("crowdin project has only %d target languages", len(info.TargetLanguageIDs))
		}
	}
	return langcode.NewSet(info.TargetLanguageIDs), nil
}
