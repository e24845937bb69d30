// Package songsdir indexes the game's Songs folder: a case-insensitive path
// cache (the game's own path casing is unreliable across platforms) plus
// discovery of a beatmap's sibling asset files for indexed-copy creation.
package songsdir

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
)

// Index is a case-insensitive cache of every file under a Songs folder,
// keyed by its path relative to the folder root.
type Index struct {
	root      string
	pathCache map[string]string // lowercased relative path -> actual relative path
}

// Build walks root and returns an Index. root must exist.
func Build(root string) (*Index, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}

	normalizedRoot := strings.ReplaceAll(root, "\\", "/")
	if !strings.HasSuffix(normalizedRoot, "/") {
		normalizedRoot += "/"
	}

	idx := &Index{
		root:      normalizedRoot,
		pathCache: make(map[string]string),
	}

	err := godirwalk.Walk(normalizedRoot, &godirwalk.Options{
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			relative := strings.TrimPrefix(strings.ReplaceAll(osPathname, "\\", "/"), normalizedRoot)
			idx.pathCache[strings.ToLower(relative)] = relative
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		return nil, err
	}

	return idx, nil
}

// Root returns the Songs folder path the index was built from (trailing
// slash included).
func (idx *Index) Root() string {
	return idx.root
}

// Resolve returns the on-disk, correctly-cased absolute path for a
// beatmap-relative path, or os.ErrNotExist if it isn't in the index.
func (idx *Index) Resolve(relative string) (string, error) {
	key := strings.ToLower(strings.ReplaceAll(relative, "\\", "/"))
	key = strings.TrimPrefix(key, strings.ToLower(idx.root))

	actual, ok := idx.pathCache[key]
	if !ok {
		return "", os.ErrNotExist
	}
	return filepath.Join(idx.root, actual), nil
}

// BeatmapPath joins the Songs folder with the folder name and .osu
// filename the game exposes, returning "" if either is empty.
func BeatmapPath(songsRoot, folderName, osuFile string) string {
	if folderName == "" || osuFile == "" {
		return ""
	}
	return filepath.Join(songsRoot, folderName, osuFile)
}

// OsuFiles returns the root-relative path of every .osu file in the index,
// the work list for the background library indexer.
func (idx *Index) OsuFiles() []string {
	var files []string
	for lower, actual := range idx.pathCache {
		if strings.HasSuffix(lower, ".osu") {
			files = append(files, actual)
		}
	}
	return files
}

// FilesInFolder returns every indexed path under the folder containing
// relative, including files in its subfolders: the sibling audio/asset
// files a beatmap references.
// relative is folder-relative, e.g. "Some Artist - Song (Mapper)/song.osu".
func (idx *Index) FilesInFolder(relative string) []string {
	dir := strings.ToLower(strings.ReplaceAll(filepath.Dir(relative), "\\", "/"))
	var siblings []string
	for lower, actual := range idx.pathCache {
		if strings.ToLower(filepath.Dir(actual)) == dir || strings.HasPrefix(lower, dir+"/") {
			siblings = append(siblings, actual)
		}
	}
	return siblings
}
