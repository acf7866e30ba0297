package record

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/catrec-io/catrec/internal/domain"
)

// Hash field names for a stored record.
const (
	fieldCatalogID   = "catalog_id"
	fieldCatalogPath = "catalog_path"
	fieldText        = "text"
	fieldEmbedding   = "embedding"
	fieldStatus      = "status"
	fieldLastError   = "last_error"
	fieldUpdatedAt   = "updated_at"
)

// buildHashFields flattens a Record into a map[string]string for HSET.
func buildHashFields(rec *domain.Record) map[string]string {
	m := map[string]string{
		fieldCatalogID:   rec.CatalogID(),
		fieldCatalogPath: rec.CatalogPath(),
		fieldText:        rec.Text(),
		fieldStatus:      string(rec.Status()),
		fieldLastError:   rec.LastError(),
		fieldUpdatedAt:   rec.UpdatedAt().UTC().Format(time.RFC3339Nano),
	}
	if len(rec.Embedding()) > 0 {
		m[fieldEmbedding] = vectorToBytes(rec.Embedding())
	} else {
		m[fieldEmbedding] = ""
	}
	return m
}

// parseHashFields hydrates a Record from a stored hash.
func parseHashFields(id string, m map[string]string) domain.Record {
	status, err := domain.ParseStatus(m[fieldStatus])
	if err != nil {
		// Unknown status means a partially written or legacy hash. Treat as
		// pending so the next index run repairs it.
		status = domain.StatusPending
	}

	updatedAt, _ := time.Parse(time.RFC3339Nano, m[fieldUpdatedAt])

	return domain.ReconstructRecord(
		id,
		m[fieldCatalogID],
		m[fieldCatalogPath],
		m[fieldText],
		bytesToVector(m[fieldEmbedding]),
		status,
		m[fieldLastError],
		updatedAt,
	)
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
