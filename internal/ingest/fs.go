package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/strand-ai/strand/internal/knowledge"
)

// supportedExtensions lists the text and code formats worth embedding.
// Binary formats are skipped: there is no parser for them and their raw
// bytes would only pollute the vector space.
var supportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".rst":      true,
	".csv":      true,
	".go":       true,
	".py":       true,
	".js":       true,
	".ts":       true,
	".java":     true,
	".c":        true,
	".cpp":      true,
	".h":        true,
	".hpp":      true,
	".rs":       true,
	".rb":       true,
	".php":      true,
	".sh":       true,
	".yaml":     true,
	".yml":      true,
	".json":     true,
	".toml":     true,
	".xml":      true,
	".html":     true,
	".htm":      true,
	".css":      true,
	".sql":      true,
}

// AddFile indexes a single file. Unlike the directory walk, problems
// come back as errors rather than counters: the caller named this exact
// file and should hear why it was not indexed.
func (ing *Ingestor) AddFile(ctx context.Context, path string) (Result, error) {
	start := time.Now()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Result{}, fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return Result{}, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return Result{}, fmt.Errorf("%s is a directory, use AddDirectory", absPath)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if !ing.extensions[ext] {
		return Result{}, fmt.Errorf("unsupported file type %q", ext)
	}
	if info.Size() > ing.maxFileBytes {
		return Result{}, fmt.Errorf("file %s is %d bytes, limit is %d", absPath, info.Size(), ing.maxFileBytes)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return Result{}, fmt.Errorf("read file: %w", err)
	}

	added, err := ing.ingestSource(ctx, absPath, filepath.Base(absPath), knowledge.SourceTypeFile, string(content))
	if err != nil {
		return Result{}, err
	}

	return Result{
		SourcesIndexed: 1,
		ChunksAdded:    added,
		TotalBytes:     info.Size(),
		Duration:       time.Since(start),
	}, nil
}

// AddDirectory walks dir recursively and indexes every supported file,
// honoring the directory's .gitignore when one exists. Per-file problems
// are counted in the result instead of aborting the walk; only failures
// at the directory level and context cancellation stop it. File reads go
// through an [os.Root] confined to dir, so symlinks cannot pull in
// content from outside the tree.
func (ing *Ingestor) AddDirectory(ctx context.Context, dir string) (Result, error) {
	start := time.Now()

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return Result{}, fmt.Errorf("resolve directory: %w", err)
	}
	root, err := os.OpenRoot(absDir)
	if err != nil {
		return Result{}, fmt.Errorf("open directory: %w", err)
	}
	defer func() { _ = root.Close() }()

	gitIgnore := ing.loadGitignore(absDir)

	var result Result
	err = filepath.WalkDir(absDir, func(path string, entry fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			result.SourcesFailed++
			ing.logger.Warn("walk error", "path", path, "error", err)
			return nil
		}

		rel, err := filepath.Rel(absDir, path)
		if err != nil || rel == "." {
			return nil
		}

		if entry.IsDir() {
			if entry.Name() == ".git" {
				return filepath.SkipDir
			}
			if gitIgnore != nil && gitIgnore.MatchesPath(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if gitIgnore != nil && gitIgnore.MatchesPath(rel) {
			result.SourcesSkipped++
			return nil
		}
		if !ing.extensions[strings.ToLower(filepath.Ext(path))] {
			result.SourcesSkipped++
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			result.SourcesFailed++
			ing.logger.Warn("stat failed", "path", path, "error", err)
			return nil
		}
		if info.Size() > ing.maxFileBytes {
			result.SourcesSkipped++
			ing.logger.Warn("file exceeds size limit, skipped", "path", path, "size", info.Size())
			return nil
		}

		content, err := root.ReadFile(rel)
		if err != nil {
			result.SourcesFailed++
			ing.logger.Warn("read failed", "path", path, "error", err)
			return nil
		}

		added, err := ing.ingestSource(ctx, path, entry.Name(), knowledge.SourceTypeFile, string(content))
		if err != nil {
			result.SourcesFailed++
			ing.logger.Warn("ingest failed", "path", path, "error", err)
			return nil
		}

		result.SourcesIndexed++
		result.ChunksAdded += added
		result.TotalBytes += info.Size()
		return nil
	})
	result.Duration = time.Since(start)
	if err != nil {
		return result, fmt.Errorf("walk %s: %w", absDir, err)
	}

	ing.logger.Info("directory indexed",
		"dir", absDir,
		"indexed", result.SourcesIndexed,
		"skipped", result.SourcesSkipped,
		"failed", result.SourcesFailed,
		"chunks", result.ChunksAdded)
	return result, nil
}

// loadGitignore compiles dir/.gitignore when present. Missing or
// malformed files just mean nothing extra is ignored.
func (ing *Ingestor) loadGitignore(dir string) *ignore.GitIgnore {
	path := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		ing.logger.Warn("malformed .gitignore ignored", "path", path, "error", err)
		return nil
	}
	return gi
}
