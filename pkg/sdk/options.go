package catrec

import "go.uber.org/zap"

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver   string // "memory" or "redis"
	addrs    []string
	username string
	password string
	db       int

	embedder Embedder

	dimensions int
	indexPath  string
	chunkSize  int
	workers    int

	logger *zap.Logger
}

// WithRedis configures the client to keep records in a Redis instance.
// Without it, records live in process memory.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedisDB selects a Redis logical database.
func WithRedisDB(db int) Option {
	return optionFunc(func(c *clientConfig) {
		c.db = db
	})
}

// WithEmbedder sets the text embedding provider. Required for both
// searching and indexing.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithDimensions sets the embedding vector dimension.
// Defaults to 1536 (text-embedding-3-small).
func WithDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.dimensions = dim
	})
}

// WithIndexPath persists the vector index to a bbolt file at the given
// path. Without it the index is memory-only and lost on Close.
func WithIndexPath(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.indexPath = path
	})
}

// WithChunkSize sets the number of records per embedding call during
// index runs. Default: 100.
func WithChunkSize(size int) Option {
	return optionFunc(func(c *clientConfig) {
		c.chunkSize = size
	})
}

// WithWorkers sets the parallel chunk worker count for index runs.
func WithWorkers(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.workers = n
	})
}

// WithLogger enables structured logging for engine operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}
