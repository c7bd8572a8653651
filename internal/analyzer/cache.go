package analyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const analysesBucket = "analyses_v1"

// BoltCache memoizes analyses on disk, keyed by language and content hash.
// The same blob shows up in many revisions (before-image of one commit,
// after-image of its parent), so most lookups across a long history hit.
type BoltCache struct {
	db     *bolt.DB
	inner  Analyzer
	logger logrus.FieldLogger
}

var _ Analyzer = (*BoltCache)(nil)

// OpenBoltCache opens (or creates) the cache database at path
func OpenBoltCache(path string, inner Analyzer, logger logrus.FieldLogger) (*BoltCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open analysis cache %s: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(analysesBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init analysis cache: %w", err)
	}

	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}

	return &BoltCache{db: db, inner: inner, logger: logger}, nil
}

// Supports delegates to the wrapped analyzer
func (c *BoltCache) Supports(filename string) bool {
	return c.inner.Supports(filename)
}

// Analyze returns the cached analysis or computes and stores it
func (c *BoltCache) Analyze(filename, source string) (*FileAnalysis, error) {
	key := cacheKey(filename, source)

	if cached, err := c.get(key); err == nil {
		return cached, nil
	}

	analysis, err := c.inner.Analyze(filename, source)
	if err != nil {
		return nil, err
	}

	if err := c.put(key, analysis); err != nil {
		c.logger.WithError(err).WithField("file", filename).Warn("Failed to store analysis in cache")
	}
	return analysis, nil
}

// Close closes the underlying database
func (c *BoltCache) Close() error {
	return c.db.Close()
}

func (c *BoltCache) get(key []byte) (*FileAnalysis, error) {
	var result FileAnalysis
	err := c.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(analysesBucket))
		if bucket == nil {
			return bolt.ErrBucketNotFound
		}
		data := bucket.Get(key)
		if data == nil {
			return bolt.ErrBucketNotFound
		}
		return json.Unmarshal(data, &result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *BoltCache) put(key []byte, analysis *FileAnalysis) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(analysesBucket))
		if err != nil {
			return err
		}
		data, err := json.Marshal(analysis)
		if err != nil {
			return err
		}
		return bucket.Put(key, data)
	})
}

func cacheKey(filename, source string) []byte {
	sum := sha256.Sum256([]byte(source))
	return []byte(DetectLanguage(filename) + ":" + strings.ToLower(filepath.Ext(filename)) + ":" + hex.EncodeToString(sum[:]))
}
