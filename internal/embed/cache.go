package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"golang.org/x/sync/singleflight"

	"github.com/hunterwarburton/taxassist/internal/core"
	"github.com/hunterwarburton/taxassist/internal/logger"
)

var bucketEmbeddings = []byte("embeddings")

// ModelEmbedder is an embedder that can name its model.
type ModelEmbedder interface {
	core.Embedder
	Model() string
}

// CachedEmbedder memoises embeddings in a bbolt file keyed by model and text.
// Cache read and write failures are logged and fall through to the model.
type CachedEmbedder struct {
	next  ModelEmbedder
	db    *bbolt.DB
	group singleflight.Group
	// upstreamTimeout bounds a shared model call, which no single caller owns.
	upstreamTimeout time.Duration
}

// NewCachedEmbedder opens (creating if needed) the cache at path.
func NewCachedEmbedder(next ModelEmbedder, path string) (*CachedEmbedder, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEmbeddings)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare embedding cache: %w", err)
	}

	return &CachedEmbedder{next: next, db: db, upstreamTimeout: 60 * time.Second}, nil
}

// Dimension delegates to the wrapped embedder.
func (c *CachedEmbedder) Dimension() int { return c.next.Dimension() }

// Model delegates to the wrapped embedder.
func (c *CachedEmbedder) Model() string { return c.next.Model() }

// Embed returns a cached vector when present. Concurrent misses for the same
// text share one upstream call. The shared call is detached from every
// caller's cancellation; each caller stops waiting when its own ctx ends.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	if vec, ok := c.get(key); ok {
		logger.RAGDebug("Embedding cache hit")
		return vec, nil
	}

	shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.upstreamTimeout)
	ch := c.group.DoChan(string(key), func() (any, error) {
		vec, err := c.next.Embed(shared, text)
		if err != nil {
			return nil, err
		}
		c.put(key, vec)
		return vec, nil
	})

	select {
	case res := <-ch:
		cancel()
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]float32), nil
	case <-ctx.Done():
		// The leader's call keeps running for the other waiters; release our
		// timer only once it finishes.
		go func() {
			<-ch
			cancel()
		}()
		return nil, ctx.Err()
	}
}

// Close closes the cache file.
func (c *CachedEmbedder) Close() error { return c.db.Close() }

func (c *CachedEmbedder) key(text string) []byte {
	sum := sha256.Sum256([]byte(c.next.Model() + "\x00" + text))
	return []byte(hex.EncodeToString(sum[:]))
}

func (c *CachedEmbedder) get(key []byte) ([]float32, bool) {
	var vec []float32
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketEmbeddings).Get(key)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &vec)
	})
	if err != nil {
		logger.RAGWarn("Embedding cache read failed: %v", err)
		return nil, false
	}
	if len(vec) != c.next.Dimension() {
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) put(key []byte, vec []float32) {
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	err = c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEmbeddings).Put(key, data)
	})
	if err != nil {
		logger.RAGWarn("Embedding cache write failed: %v", err)
	}
}
