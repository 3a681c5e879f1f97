package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// GitLogConfig configures a GitLog source.
type GitLogConfig struct {
	// Path is the repository root. Relative paths are resolved against the
	// working directory of the daemon.
	Path string

	// MaxCommits bounds how many recent commits a single fetch returns.
	MaxCommits int

	// Priority is the registry priority assigned to this source.
	Priority int
}

// ApplyDefaults fills unset fields with sane values.
func (c *GitLogConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "."
	}
	if c.MaxCommits <= 0 {
		c.MaxCommits = 10
	}
	if c.Priority <= 0 {
		c.Priority = 8
	}
}

// GitLog surfaces recent repository activity: branch, head commit, and the
// latest commit subjects whose messages or touched paths relate to the query.
//
// The repository is opened once at construction. A fetch walks at most a few
// hundred commits from HEAD, so latency stays well under interactive budgets
// even on large repositories.
type GitLog struct {
	repo   *git.Repository
	cfg    GitLogConfig
	logger *zap.Logger
}

// commit walk ceiling per fetch, independent of MaxCommits
const gitLogWalkLimit = 200

// NewGitLog opens the repository at cfg.Path.
func NewGitLog(cfg GitLogConfig, logger *zap.Logger) (*GitLog, error) {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	repo, err := git.PlainOpenWithOptions(cfg.Path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", cfg.Path, err)
	}

	return &GitLog{repo: repo, cfg: cfg, logger: logger}, nil
}

func (g *GitLog) ID() string { return "gitlog" }

func (g *GitLog) Type() Type { return TypeProject }

func (g *GitLog) Priority() int { return g.cfg.Priority }

// Fetch returns recent commit context. Commits whose subject or body mention
// a query term are preferred; if none match, the most recent commits are
// returned so the caller always sees current project activity.
func (g *GitLog) Fetch(ctx context.Context, req *Request) (*Payload, error) {
	head, err := g.repo.Head()
	if err != nil {
		// Unborn HEAD: a freshly initialized repository with no commits
		// yet. Ordinary "no data", not a failure.
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return &Payload{}, nil
		}
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	iter, err := g.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	defer iter.Close()

	terms := queryTerms(req.Query)

	var matched, recent []*object.Commit
	walked := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		walked++
		if len(recent) < g.cfg.MaxCommits {
			recent = append(recent, c)
		}
		if len(terms) > 0 && commitMatches(c, terms) {
			matched = append(matched, c)
			if len(matched) >= g.cfg.MaxCommits {
				return errStopIteration
			}
		}
		if walked >= gitLogWalkLimit {
			return errStopIteration
		}
		return nil
	})
	if err != nil && err != errStopIteration {
		return nil, fmt.Errorf("walking commits: %w", err)
	}

	commits := matched
	confidence := 0.8
	if len(commits) == 0 {
		commits = recent
		confidence = 0.4
	}
	// A reachable but commit-less repository is ordinary "no data".
	if len(commits) == 0 {
		return &Payload{}, nil
	}

	var b strings.Builder
	branch := head.Name().Short()
	fmt.Fprintf(&b, "Recent activity on %s:\n", branch)
	for _, c := range commits {
		fmt.Fprintf(&b, "- %s %s (%s, %s)\n",
			c.Hash.String()[:8],
			commitSubject(c),
			c.Author.Name,
			c.Author.When.Format(time.DateOnly),
		)
	}

	return &Payload{
		Content:    strings.TrimRight(b.String(), "\n"),
		Confidence: confidence,
		Tags:       []string{"recent-change"},
		Extra: map[string]any{
			"branch": branch,
			"head":   head.Hash().String(),
		},
	}, nil
}

var errStopIteration = fmt.Errorf("stop iteration")

func commitSubject(c *object.Commit) string {
	subject, _, _ := strings.Cut(c.Message, "\n")
	return strings.TrimSpace(subject)
}

func commitMatches(c *object.Commit, terms []string) bool {
	msg := strings.ToLower(c.Message)
	for _, t := range terms {
		if strings.Contains(msg, t) {
			return true
		}
	}
	return false
}

// queryTerms splits a query into lowercase terms, dropping short tokens that
// would match nearly everything.
func queryTerms(query string) []string {
	var terms []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		f = strings.Trim(f, `.,;:"'()[]{}`)
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}
