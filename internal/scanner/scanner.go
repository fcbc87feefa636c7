package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/memexmcp/memex/internal/gitignore"
	memexerrors "github.com/memexmcp/memex/internal/errors"
)

// gitignoreCacheSize bounds the number of cached per-directory gitignore
// matchers so a long-running process never grows this unboundedly.
const gitignoreCacheSize = 1000

// Scanner discovers Markdown files under a root and diffs their content
// hashes against previously persisted state.
type Scanner struct {
	gitignoreCache *lru.Cache[string, *gitignore.Matcher]
	cacheMu        sync.RWMutex
}

// New creates a Scanner.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, memexerrors.Wrap(memexerrors.KindIOError, "create gitignore cache", err)
	}
	return &Scanner{gitignoreCache: cache}, nil
}

// Scan enumerates *.md files under opts.RootDir, hashes each, and diffs
// the result against the state persisted at the root's scan-state file.
// It does not persist new_state itself — the caller does that once the
// indexing pipeline has acted on the diff.
func (s *Scanner) Scan(ctx context.Context, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = "."
	}
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, memexerrors.Wrap(memexerrors.KindIOError, "resolve scan root", err)
	}

	prevState := LoadState(StatePath(absRoot))

	var candidatePaths []string
	var subtrees []string
	subtrees = append(subtrees, absRoot)

	if opts.Submodules != nil && opts.Submodules.Enabled {
		submodules, discoverErr := DiscoverSubmodules(absRoot, *opts.Submodules)
		if discoverErr != nil {
			slog.Warn("failed to discover submodules", slog.String("error", discoverErr.Error()))
		} else {
			for _, sm := range submodules {
				if sm.Initialized {
					subtrees = append(subtrees, filepath.Join(absRoot, sm.Path))
				} else {
					slog.Warn("skipping uninitialized submodule", slog.String("name", sm.Name), slog.String("path", sm.Path))
				}
			}
		}
	}

	for _, subtree := range subtrees {
		paths, walkErr := s.walkMarkdown(ctx, absRoot, subtree, opts)
		if walkErr != nil {
			return nil, walkErr
		}
		candidatePaths = append(candidatePaths, paths...)
	}

	hashes, err := hashFiles(ctx, absRoot, candidatePaths, opts.Workers)
	if err != nil {
		return nil, err
	}

	newState := newState()
	newState.FileHashes = hashes
	newState.IndexName = opts.IndexName

	result := &Result{PrevState: prevState, NewState: newState}
	for p := range hashes {
		result.All = append(result.All, p)
	}

	fullRebuild := opts.ForceFullRebuild || len(prevState.FileHashes) == 0
	if fullRebuild {
		result.Changed = append(result.Changed, result.All...)
		now := utcNow()
		newState.LastFullIndexUTC = &now
	} else {
		for p, h := range hashes {
			if prevH, ok := prevState.FileHashes[p]; !ok || prevH != h {
				result.Changed = append(result.Changed, p)
			}
		}
		for p := range prevState.FileHashes {
			if _, ok := hashes[p]; !ok {
				result.Deleted = append(result.Deleted, p)
			}
		}
		newState.LastFullIndexUTC = prevState.LastFullIndexUTC
		now := utcNow()
		newState.LastIncrementalIndexUTC = &now
	}

	return result, nil
}

// walkMarkdown enumerates *.md files under subtree, returning paths
// relative to absRoot.
func (s *Scanner) walkMarkdown(ctx context.Context, absRoot, subtree string, opts *Options) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(subtree, func(path string, d fs.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if walkErr != nil {
			return nil
		}

		relPath, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if s.shouldExcludeDir(relPath, opts) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if !strings.HasSuffix(strings.ToLower(relPath), ".md") {
			return nil
		}
		if strings.HasPrefix(relPath, personalPrefix) {
			return nil
		}
		if s.shouldExcludeFile(relPath, absRoot, opts) {
			return nil
		}

		paths = append(paths, relPath)
		return nil
	})
	if err != nil {
		return nil, memexerrors.Wrap(memexerrors.KindIOError, "walk scan root", err)
	}
	return paths, nil
}

// hashFiles computes sha256 hex digests for each path (relative to
// absRoot), bounded to workers concurrent readers.
func hashFiles(ctx context.Context, absRoot string, paths []string, workers int) (map[string]string, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	hashes := make(map[string]string, len(paths))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, p := range paths {
		p := p
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			data, err := os.ReadFile(filepath.Join(absRoot, p))
			if err != nil {
				return nil
			}
			sum := sha256.Sum256(data)
			digest := hex.EncodeToString(sum[:])

			mu.Lock()
			hashes[p] = digest
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, memexerrors.Wrap(memexerrors.KindIOError, "hash scanned files", err)
	}
	return hashes, nil
}

func (s *Scanner) shouldExcludeDir(relPath string, opts *Options) bool {
	for _, pattern := range defaultExcludeDirs {
		if matchDirPattern(relPath, pattern) {
			return true
		}
	}
	for _, pattern := range opts.ExcludeGlobs {
		if matchDirPattern(relPath, pattern) {
			return true
		}
	}
	return false
}

func (s *Scanner) shouldExcludeFile(relPath, absRoot string, opts *Options) bool {
	baseName := filepath.Base(relPath)

	for _, pattern := range sensitiveFilePatterns {
		if matchFilePattern(baseName, relPath, pattern) {
			return true
		}
	}
	for _, pattern := range opts.ExcludeGlobs {
		if matchFilePattern(baseName, relPath, pattern) {
			return true
		}
	}
	if opts.RespectGitignore && s.isGitignored(relPath, absRoot) {
		return true
	}
	return false
}

// matchDirPattern reports whether a directory path matches a dir-exclusion
// glob of the form "**/name/**", "name/**", or an exact prefix.
func matchDirPattern(relPath, pattern string) bool {
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		suffix = strings.TrimSuffix(suffix, "/**")
		for _, part := range strings.Split(relPath, "/") {
			if part == suffix {
				return true
			}
		}
		return false
	}
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return relPath == prefix || strings.HasPrefix(relPath, prefix+"/")
	}
	return relPath == pattern || strings.HasPrefix(relPath, pattern+"/")
}

// matchFilePattern reports whether a file matches an exclusion glob,
// supporting "dir/**", "*.ext", and exact-basename forms.
func matchFilePattern(baseName, relPath, pattern string) bool {
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return strings.HasPrefix(relPath, prefix+"/")
	}
	if matched, err := filepath.Match(pattern, baseName); err == nil && matched {
		return true
	}
	if matched, err := filepath.Match(pattern, relPath); err == nil && matched {
		return true
	}
	return baseName == pattern || relPath == pattern
}

func (s *Scanner) isGitignored(relPath, absRoot string) bool {
	rootMatcher := s.getGitignoreMatcher(absRoot, "")
	if rootMatcher != nil && rootMatcher.Match(relPath, false) {
		return true
	}

	parts := strings.Split(filepath.Dir(relPath), "/")
	currentDir := absRoot
	currentBase := ""
	for _, part := range parts {
		if part == "." {
			continue
		}
		currentDir = filepath.Join(currentDir, part)
		if currentBase == "" {
			currentBase = part
		} else {
			currentBase = currentBase + "/" + part
		}
		matcher := s.getGitignoreMatcher(currentDir, currentBase)
		if matcher != nil && matcher.Match(relPath, false) {
			return true
		}
	}
	return false
}

func (s *Scanner) getGitignoreMatcher(dir, base string) *gitignore.Matcher {
	s.cacheMu.RLock()
	matcher, ok := s.gitignoreCache.Get(dir)
	s.cacheMu.RUnlock()
	if ok {
		return matcher
	}

	gitignorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitignorePath); os.IsNotExist(err) {
		return nil
	}

	matcher = gitignore.New()
	if err := matcher.AddFromFile(gitignorePath, base); err != nil {
		return nil
	}

	s.cacheMu.Lock()
	s.gitignoreCache.Add(dir, matcher)
	s.cacheMu.Unlock()

	return matcher
}

// InvalidateGitignoreCache clears the gitignore matcher cache. Call after
// a .gitignore file changes.
func (s *Scanner) InvalidateGitignoreCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.gitignoreCache.Purge()
}

var defaultExcludeDirs = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/dist/**",
	"**/build/**",
}

var sensitiveFilePatterns = []string{
	".env",
	".env.*",
	"*credentials*",
	"*secrets*",
	"*password*",
}

func utcNow() time.Time {
	return time.Now().UTC()
}
