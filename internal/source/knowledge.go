package source

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// KnowledgeConfig configures a Knowledge source.
type KnowledgeConfig struct {
	// Path is the YAML knowledge base file.
	Path string

	// Priority is the registry priority assigned to this source.
	Priority int
}

// ApplyDefaults fills unset fields with sane values.
func (c *KnowledgeConfig) ApplyDefaults() {
	if c.Priority <= 0 {
		c.Priority = 4
	}
}

// KnowledgeEntry is one article in the knowledge base file.
type KnowledgeEntry struct {
	Title    string   `yaml:"title"`
	Body     string   `yaml:"body"`
	Keywords []string `yaml:"keywords"`
	Tags     []string `yaml:"tags"`
}

type knowledgeFile struct {
	Entries []KnowledgeEntry `yaml:"entries"`
}

// Knowledge serves curated reference material (conventions, runbooks, style
// notes) from a YAML file. Entries are ranked by keyword overlap with the
// query; there is no index to maintain, the whole base is held in memory.
type Knowledge struct {
	entries []KnowledgeEntry
	cfg     KnowledgeConfig
	logger  *zap.Logger
}

// maximum entries returned per fetch
const knowledgeMaxHits = 3

// NewKnowledge loads the knowledge base at cfg.Path.
func NewKnowledge(cfg KnowledgeConfig, logger *zap.Logger) (*Knowledge, error) {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	path, err := expandHome(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading knowledge base: %w", err)
	}

	var file knowledgeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing knowledge base %s: %w", path, err)
	}
	if len(file.Entries) == 0 {
		return nil, fmt.Errorf("knowledge base %s has no entries", path)
	}
	for i, e := range file.Entries {
		if e.Title == "" || e.Body == "" {
			return nil, fmt.Errorf("knowledge base entry %d missing title or body", i)
		}
	}

	logger.Info("knowledge base loaded",
		zap.String("path", path),
		zap.Int("entries", len(file.Entries)),
	)
	return &Knowledge{entries: file.Entries, cfg: cfg, logger: logger}, nil
}

// NewKnowledgeFromEntries builds a Knowledge source from in-memory entries.
func NewKnowledgeFromEntries(entries []KnowledgeEntry, cfg KnowledgeConfig, logger *zap.Logger) *Knowledge {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Knowledge{entries: entries, cfg: cfg, logger: logger}
}

func (k *Knowledge) ID() string { return "knowledge" }

func (k *Knowledge) Type() Type { return TypeKnowledge }

func (k *Knowledge) Priority() int { return k.cfg.Priority }

// Fetch returns the entries whose keywords or title overlap the query terms.
func (k *Knowledge) Fetch(ctx context.Context, req *Request) (*Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// No usable terms is ordinary "no data", not a failure.
	terms := queryTerms(req.Query)
	if len(terms) == 0 {
		return &Payload{}, nil
	}

	type hit struct {
		entry KnowledgeEntry
		score int
	}
	var hits []hit
	for _, e := range k.entries {
		s := entryScore(e, terms)
		if s > 0 {
			hits = append(hits, hit{entry: e, score: s})
		}
	}
	if len(hits) == 0 {
		return &Payload{}, nil
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > knowledgeMaxHits {
		hits = hits[:knowledgeMaxHits]
	}

	tags := []string{"convention"}
	seen := map[string]bool{"convention": true}
	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s\n%s", h.entry.Title, strings.TrimSpace(h.entry.Body))
		for _, t := range h.entry.Tags {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}

	// score saturates: 3 matched terms in the top entry is full confidence
	confidence := float64(hits[0].score) / 3
	if confidence > 1 {
		confidence = 1
	}

	return &Payload{
		Content:    b.String(),
		Confidence: confidence,
		Tags:       tags,
		Extra:      map[string]any{"entries": len(hits)},
	}, nil
}

func entryScore(e KnowledgeEntry, terms []string) int {
	title := strings.ToLower(e.Title)
	score := 0
	for _, t := range terms {
		if strings.Contains(title, t) {
			score += 2
			continue
		}
		for _, kw := range e.Keywords {
			if strings.Contains(strings.ToLower(kw), t) {
				score++
				break
			}
		}
	}
	return score
}
