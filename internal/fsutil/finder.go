// Package fsutil provides file system utility functions.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// WiringExt is the extension of wiring files.
const WiringExt = ".hcl"

// FindFilesByExtension recursively searches the given root path for all files ending
// with the specified extension. The result is in lexical order.
func FindFilesByExtension(rootPath string, extension string) ([]string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}

	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(files)
	return files, nil
}

// FindWiringFiles resolves each path to the wiring files it denotes: a
// file stands for itself, a directory for every wiring file below it in
// lexical order. Paths are processed in the order given and a file reached
// twice is only returned once.
func FindWiringFiles(paths ...string) ([]string, error) {
	var all []string
	seen := make(map[string]struct{})
	add := func(p string) {
		key := filepath.Clean(p)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		all = append(all, p)
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("wiring path not found: %s", path)
		}
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if !info.IsDir() {
			if filepath.Ext(path) != WiringExt {
				return nil, fmt.Errorf("specified file is not an %s file: %s", WiringExt, path)
			}
			add(path)
			continue
		}

		files, err := FindFilesByExtension(path, WiringExt)
		if err != nil {
			return nil, fmt.Errorf("error scanning %s: %w", path, err)
		}
		for _, f := range files {
			add(f)
		}
	}
	return all, nil
}
