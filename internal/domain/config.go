package domain

// KeyPrefix namespaces every key catrec writes to the database.
const KeyPrefix = "catrec:"

// VectorConfig holds embedding vector parameters shared between the
// vector store and the embedding pipeline.
type VectorConfig struct {
	Dimensions int
}

// DefaultVectorConfig returns the vector parameters used when the
// embedding config omits them. 1536 matches the common small embedding
// models; treat it as a deployment constant, not a protocol invariant.
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{Dimensions: 1536}
}
