package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/podsearch/internal/docurl"
	"github.com/hyperjump/podsearch/internal/extract"
	"github.com/hyperjump/podsearch/internal/models"
	apperrors "github.com/hyperjump/podsearch/pkg/errors"
)

// IndexFile extracts a local file and indexes it as a document contribution under
// its file:// URL. A file that is already indexed is replaced.
func (idx *Indexer) IndexFile(ctx context.Context, path, theme, contributor string) *models.IndexOutcome {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	u := docurl.FileURL(absPath)
	out := &models.IndexOutcome{URL: u}
	idx.logger.Debug("indexer indexing file", zap.String("path", absPath))

	ext := strings.ToLower(filepath.Ext(absPath))
	if !extract.Supported(ext) {
		return idx.reject(out, models.StateFetched, string(apperrors.ReasonUnsupportedType),
			&apperrors.FetchError{URL: u, Reason: apperrors.ReasonUnsupportedType, Err: fmt.Errorf("extension %q", ext)})
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return idx.reject(out, models.StateFetched, string(apperrors.ReasonNetwork), &apperrors.FetchError{URL: u, Reason: apperrors.ReasonNetwork, Err: err})
	}
	if !info.Mode().IsRegular() {
		return idx.reject(out, models.StateFetched, string(apperrors.ReasonInvalidURL),
			&apperrors.FetchError{URL: u, Reason: apperrors.ReasonInvalidURL, Err: fmt.Errorf("not a regular file")})
	}
	out.Stage = models.StateFetched

	parsed, err := idx.extractor.Extract(absPath)
	if err != nil {
		return idx.reject(out, models.StateParsed, "parse_failed", &apperrors.ParseError{URL: u, Err: err})
	}
	out.Stage = models.StateParsed

	if err := idx.DeleteURL(ctx, u); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return idx.reject(out, models.StateStored, "store_failed", err)
	}

	doc := &models.Document{
		URL:         u,
		Title:       parsed.Title,
		Snippet:     parsed.Snippet,
		Doctype:     models.DoctypeDoc,
		Contributor: contributor,
		Theme:       theme,
		Body:        parsed.Body,
	}
	return idx.store(ctx, out, doc, parsed.Text(), "")
}

// IndexDirectory walks root and indexes every regular file whose extension is in
// allowedExts (all supported files when empty). Files directly under root go to
// defaultTheme; files below a sub-directory go to the theme named after it.
func (idx *Indexer) IndexDirectory(ctx context.Context, root, defaultTheme, contributor string, allowedExts []string) ([]*models.IndexOutcome, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absRoot)
	}

	var outcomes []*models.IndexOutcome
	err = filepath.WalkDir(absRoot, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != absRoot && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !extract.Supported(ext) || (len(allowedExts) > 0 && !ExtensionAllowed(ext, allowedExts)) {
			return nil
		}
		// Resolve symlinks so we only index regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		theme, ok := ThemeFor(absRoot, path, defaultTheme)
		if !ok {
			return nil
		}
		outcomes = append(outcomes, idx.IndexFile(ctx, path, theme, contributor))
		return nil
	})
	return outcomes, err
}

// ThemeFor returns the theme of a file inside an inbox root: the name of the first
// directory below root, or defaultTheme for files directly in root.
func ThemeFor(root, path, defaultTheme string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) == 1 {
		return defaultTheme, defaultTheme != ""
	}
	return parts[0], true
}

// ExtensionAllowed reports whether ext is in allowed, ignoring case and leading dots.
func ExtensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
