package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kousskous/menu-extractor/constants"
)

// Page is one program page image found in the images directory.
type Page struct {
	Path     string // absolute or root-joined path on disk
	Filename string // slash-separated path relative to root; the cache key
	Ext      string
	Size     int64
}

// DirStats summarizes a directory scan.
type DirStats struct {
	Scanned uint32
	Matched uint32
	Skipped uint32
	Failed  uint32
}

// ListPages walks root, skips hidden entries if requested, keeps allowed image
// extensions and returns pages in natural filename order.
func ListPages(root string, skipHidden bool, logger *slog.Logger) ([]Page, DirStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}

	var pages []Page
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			stats.Failed++
			logger.Warn("ingest.walk.error", "path", path, "error", walkErr)
			return nil
		}
		if path != root && skipHidden && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			stats.Skipped++
			return nil
		}
		if d.IsDir() {
			return nil
		}
		stats.Scanned++

		ext := constants.NormalizeExt(filepath.Ext(path))
		if !AllowedExt(ext) {
			stats.Skipped++
			return nil
		}
		info, err := d.Info()
		if err != nil {
			stats.Failed++
			logger.Warn("ingest.stat.error", "path", path, "error", err)
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		stats.Matched++
		pages = append(pages, Page{
			Path:     path,
			Filename: filepath.ToSlash(rel),
			Ext:      ext,
			Size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		return pages, stats, fmt.Errorf("walk: %w", err)
	}

	sort.SliceStable(pages, func(i, j int) bool {
		return NaturalLess(pages[i].Filename, pages[j].Filename)
	})
	logger.Info("ingest.scan.ok",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)
	return pages, stats, nil
}
