// Package crossrepo searches for a term across every repository checked
// out under a configured root directory, in parallel, bounded by a worker
// pool and an overall deadline.
package crossrepo

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kubilitics/hqee/internal/metrics"
	"github.com/kubilitics/hqee/pkg/types"
)

const (
	defaultPoolSize     = 4
	defaultDeadline     = 60 * time.Second
	defaultPerRepoCap   = 1000
	defaultContextLines = 2
)

// Repository is one discovered checkout under the root directory.
type Repository struct {
	Name string
	Path string
}

// Config sizes the searcher's concurrency and result limits (mirrors
// config.Config.CrossRepo, if present). Zero or negative PoolSize,
// Deadline and PerRepoCap fall back to the defaults above; ContextLines 0
// means no context lines, and only a negative value falls back to 2.
type Config struct {
	RootDir      string
	PoolSize     int
	Deadline     time.Duration
	PerRepoCap   int
	ContextLines int
}

// Request is one search's parameters.
type Request struct {
	Term          string
	Regex         bool
	CaseSensitive bool
	Extensions    []string
	Repositories  []string
}

// Searcher re-enumerates the root directory's repositories on every
// search, so newly cloned or removed checkouts are picked up without a
// restart.
type Searcher struct {
	cfg Config
}

// New constructs a Searcher, filling in defaults for any unset sizing
// field.
func New(cfg Config) *Searcher {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = defaultDeadline
	}
	if cfg.PerRepoCap <= 0 {
		cfg.PerRepoCap = defaultPerRepoCap
	}
	if cfg.ContextLines < 0 {
		cfg.ContextLines = defaultContextLines
	}
	return &Searcher{cfg: cfg}
}

// DiscoverRepositories enumerates one subdirectory per repository under
// the configured root.
func (s *Searcher) DiscoverRepositories() ([]Repository, error) {
	entries, err := os.ReadDir(s.cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("crossrepo: read root dir: %w", err)
	}
	var repos []Repository
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		repos = append(repos, Repository{Name: entry.Name(), Path: filepath.Join(s.cfg.RootDir, entry.Name())})
	}
	return repos, nil
}

// Search runs req against every selected repository concurrently, bounded
// by cfg.PoolSize workers and an overall cfg.Deadline, and merges the
// results sorted by (repository, file path, line number).
func (s *Searcher) Search(ctx context.Context, req Request) (types.CrossRepoResult, error) {
	start := time.Now()

	pattern, err := compilePattern(req.Term, req.Regex, req.CaseSensitive)
	if err != nil {
		return types.CrossRepoResult{}, fmt.Errorf("crossrepo: compile pattern: %w", err)
	}

	all, err := s.DiscoverRepositories()
	if err != nil {
		return types.CrossRepoResult{}, err
	}
	selected := filterRepositories(all, req.Repositories)

	deadlineCtx, cancel := context.WithTimeout(ctx, s.cfg.Deadline)
	defer cancel()

	g, gCtx := errgroup.WithContext(deadlineCtx)
	g.SetLimit(s.cfg.PoolSize)

	var mu sync.Mutex
	var references []types.CodeReference
	matchedRepos := make(map[string]bool)

	for _, repo := range selected {
		repo := repo
		g.Go(func() error {
			refs, err := s.searchRepository(gCtx, repo, pattern, req.Extensions)
			if err != nil {
				// A single repository's failure (unreadable dir, i/o error)
				// does not abort the rest of the search.
				return nil
			}
			if len(refs) > 0 {
				mu.Lock()
				references = append(references, refs...)
				matchedRepos[repo.Name] = true
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(references, func(i, j int) bool {
		if references[i].Repository != references[j].Repository {
			return references[i].Repository < references[j].Repository
		}
		if references[i].FilePath != references[j].FilePath {
			return references[i].FilePath < references[j].FilePath
		}
		return references[i].Line < references[j].Line
	})

	elapsed := time.Since(start)
	metrics.CrossRepoSearchDuration.Observe(elapsed.Seconds())
	metrics.CrossRepoMatchesTotal.Add(float64(len(references)))
	metrics.CrossRepoReposScanned.Add(float64(len(selected)))

	return types.CrossRepoResult{
		References:    references,
		ElapsedMillis: elapsed.Milliseconds(),
		ReposScanned:  len(selected),
		ReposMatched:  len(matchedRepos),
	}, nil
}

func filterRepositories(all []Repository, wanted []string) []Repository {
	if len(wanted) == 0 {
		return all
	}
	allow := make(map[string]bool, len(wanted))
	for _, name := range wanted {
		allow[name] = true
	}
	var out []Repository
	for _, repo := range all {
		if allow[repo.Name] {
			out = append(out, repo)
		}
	}
	return out
}

func compilePattern(term string, isRegex, caseSensitive bool) (*regexp.Regexp, error) {
	if !isRegex {
		term = regexp.QuoteMeta(term)
	}
	if !caseSensitive {
		term = "(?i)" + term
	}
	return regexp.Compile(term)
}

// searchRepository walks repo's tree and emits a CodeReference for every
// matching line, capped at cfg.PerRepoCap references.
func (s *Searcher) searchRepository(ctx context.Context, repo Repository, pattern *regexp.Regexp, extensions []string) ([]types.CodeReference, error) {
	var refs []types.CodeReference

	err := filepath.WalkDir(repo.Path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // skip unreadable entries, keep scanning
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if len(refs) >= s.cfg.PerRepoCap {
			return nil
		}
		if !matchesExtension(path, extensions) {
			return nil
		}

		fileRefs, err := searchFile(repo, path, pattern, s.cfg.ContextLines, s.cfg.PerRepoCap-len(refs))
		if err != nil {
			return nil //nolint:nilerr
		}
		refs = append(refs, fileRefs...)
		return nil
	})
	if err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		return refs, err
	}
	return refs, nil
}

func matchesExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, want := range extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

func searchFile(repo Repository, path string, pattern *regexp.Regexp, contextLines, remaining int) ([]types.CodeReference, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	relPath, err := filepath.Rel(repo.Path, path)
	if err != nil {
		relPath = path
	}

	var refs []types.CodeReference
	for i, line := range lines {
		if len(refs) >= remaining {
			break
		}
		if !pattern.MatchString(line) {
			continue
		}
		refs = append(refs, types.CodeReference{
			Repository:  repo.Name,
			FilePath:    filepath.ToSlash(relPath),
			Line:        i + 1,
			MatchedLine: line,
			Context:     contextWindow(lines, i, contextLines),
		})
	}
	return refs, nil
}

// contextWindow returns up to n lines before idx followed by up to n lines
// after idx, excluding idx itself (the matched line is tracked separately).
func contextWindow(lines []string, idx, n int) []string {
	if n <= 0 {
		return nil
	}
	start := idx - n
	if start < 0 {
		start = 0
	}
	end := idx + n + 1
	if end > len(lines) {
		end = len(lines)
	}

	window := make([]string, 0, end-start-1)
	window = append(window, lines[start:idx]...)
	if idx+1 < end {
		window = append(window, lines[idx+1:end]...)
	}
	return window
}
