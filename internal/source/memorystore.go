package source

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// MemoryStoreConfig configures a MemoryStore source.
type MemoryStoreConfig struct {
	// Path is the persistence directory. Empty means in-memory only, which
	// is what the tests use.
	Path string

	// Collection names the chromem collection holding memories.
	Collection string

	// MaxResults bounds how many memories a single fetch returns.
	MaxResults int

	// Priority is the registry priority assigned to this source.
	Priority int
}

// ApplyDefaults fills unset fields with sane values.
func (c *MemoryStoreConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "memctxd_memories"
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 5
	}
	if c.Priority <= 0 {
		c.Priority = 6
	}
}

// MemoryStore is the personal-context source. It stores free-form memories
// (preferences, decisions, recurring corrections) in an embedded chromem-go
// vector database and retrieves the ones most similar to the query.
//
// Embeddings are computed locally with a hashed bag-of-words projection, so
// the store works offline with no embedding provider configured.
type MemoryStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	cfg        MemoryStoreConfig
	logger     *zap.Logger
}

// NewMemoryStore opens (or creates) the memory database at cfg.Path.
func NewMemoryStore(cfg MemoryStoreConfig, logger *zap.Logger) (*MemoryStore, error) {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandHome(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("opening memory db: %w", err)
		}
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, hashEmbedding)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", cfg.Collection, err)
	}

	return &MemoryStore{db: db, collection: collection, cfg: cfg, logger: logger}, nil
}

func (m *MemoryStore) ID() string { return "memory" }

func (m *MemoryStore) Type() Type { return TypePersonal }

func (m *MemoryStore) Priority() int { return m.cfg.Priority }

// Record stores a memory. Category is free-form ("preference", "decision",
// "correction"); it is kept as metadata and surfaced as a tag on retrieval.
func (m *MemoryStore) Record(ctx context.Context, content, category string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("memory content cannot be empty")
	}
	if category == "" {
		category = "note"
	}

	id := fmt.Sprintf("mem_%d", time.Now().UnixNano())
	doc := chromem.Document{
		ID:      id,
		Content: content,
		Metadata: map[string]string{
			"category":    category,
			"recorded_at": time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := m.collection.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return "", fmt.Errorf("recording memory: %w", err)
	}

	m.logger.Debug("memory recorded",
		zap.String("id", id),
		zap.String("category", category),
	)
	return id, nil
}

// Count returns the number of stored memories.
func (m *MemoryStore) Count() int { return m.collection.Count() }

// Fetch returns the stored memories most similar to the query.
func (m *MemoryStore) Fetch(ctx context.Context, req *Request) (*Payload, error) {
	// An empty store is ordinary "no data", not a failure.
	count := m.collection.Count()
	if count == 0 {
		return &Payload{}, nil
	}

	// chromem requires nResults <= collection size
	k := m.cfg.MaxResults
	if k > count {
		k = count
	}

	results, err := m.collection.Query(ctx, req.Query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying memories: %w", err)
	}
	if len(results) == 0 {
		return &Payload{}, nil
	}

	tags := []string{"memory"}
	seen := map[string]bool{}
	var b strings.Builder
	b.WriteString("Relevant memories:\n")
	var best float32
	for _, r := range results {
		fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(r.Content))
		if cat := r.Metadata["category"]; cat != "" && !seen[cat] {
			seen[cat] = true
			tags = append(tags, cat)
		}
		if r.Similarity > best {
			best = r.Similarity
		}
	}

	confidence := float64(best)
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &Payload{
		Content:    strings.TrimRight(b.String(), "\n"),
		Confidence: confidence,
		Tags:       tags,
		Extra:      map[string]any{"memories": len(results)},
	}, nil
}

func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// embedding dimensionality for the local hashed projection
const embeddingDim = 256

// hashEmbedding is a chromem.EmbeddingFunc that projects text into a fixed
// dimension via feature hashing of word tokens. Similar wording yields
// similar vectors, which is enough for recalling short memory snippets
// without an external embedding provider.
func hashEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, `.,;:"'()[]{}`)
		if tok == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		// low bits pick the slot, top bit picks the sign
		idx := sum % embeddingDim
		if sum&(1<<31) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}
