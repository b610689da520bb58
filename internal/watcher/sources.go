package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/templc/internal/errors"
	"github.com/conneroisu/templc/internal/pipeline"
)

// CollectSources reads every component source below root, in lexical
// order. Logical paths are relative to root with a leading slash.
func CollectSources(root string) ([]pipeline.File, error) {
	cleanRoot, err := validateDir(root)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeFileNotFound, "reading sources")
	}

	var files []pipeline.File
	err = filepath.WalkDir(cleanRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != cleanRoot && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !SourceFilter(path) || !NoHiddenFilter(d.Name()) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(cleanRoot, path)
		if err != nil {
			return err
		}
		files = append(files, pipeline.File{Path: "/" + filepath.ToSlash(rel), Text: string(data)})
		return nil
	})
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeFileNotFound, "reading sources")
	}
	return files, nil
}
