package graph

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// structuralIndexes are lookup indexes on stable identity fields, created
// once at startup
var structuralIndexes = []string{
	`CREATE INDEX person_id IF NOT EXISTS FOR (p:Person) ON (p.id)`,
	`CREATE INDEX person_status IF NOT EXISTS FOR (p:Person) ON (p.status)`,
	`CREATE INDEX agent_id IF NOT EXISTS FOR (a:Agent) ON (a.id)`,
	`CREATE INDEX account_identity IF NOT EXISTS FOR (ac:Account) ON (ac.platform, ac.identifier)`,
	`CREATE INDEX place_name IF NOT EXISTS FOR (pl:Place) ON (pl.name)`,
}

// EnsureStructuralIndexes creates the identity lookup indexes, idempotently.
// Returns false only when the store is unreachable.
func (r *Repository) EnsureStructuralIndexes(ctx context.Context) bool {
	for _, ddl := range structuralIndexes {
		if _, err := r.conn.run(ctx, writeMode, ddl, nil); err != nil {
			if err == errNotConnected {
				return false
			}
			if isAlreadyExists(err) {
				continue
			}
			r.logger.Error("Failed to create structural index",
				zap.String("ddl", ddl),
				zap.Error(err))
			return false
		}
	}
	r.logger.Info("Structural indexes ensured")
	return true
}

// vectorIndexName derives the deterministic index name for a
// (kind, dimension) pair, e.g. "persona_profile_embedding"
func vectorIndexName(kind DimensionKind, name DimensionName) string {
	return fmt.Sprintf("%s_%s_embedding", kind, name)
}

type vectorIndexKey struct {
	name       string
	dimensions int
}

// ensureVectorIndex lazily creates the similarity index for a
// (kind, dimension) pair the first time an embedding of a given length is
// written. The embedding length is only known once the upstream model has
// run, so indexes cannot be declared statically. A lost creation race
// reports "already exists", which is treated as success.
func (r *Repository) ensureVectorIndex(ctx context.Context, kind DimensionKind, name DimensionName, embeddingLength int) bool {
	if embeddingLength <= 0 {
		return true
	}

	label, ok := DimensionLabel(kind, name)
	if !ok {
		return false
	}

	indexName := vectorIndexName(kind, name)
	key := vectorIndexKey{name: indexName, dimensions: embeddingLength}
	if _, done := r.ensuredIndexes.Load(key); done {
		return true
	}

	// Index options cannot be parameterized; the label and dimension count
	// come from the closed dimension table and the embedding itself.
	ddl := fmt.Sprintf(`
		CREATE VECTOR INDEX %s IF NOT EXISTS
		FOR (n:%s) ON (n.embedding)
		OPTIONS {indexConfig: {
			`+"`vector.dimensions`"+`: %d,
			`+"`vector.similarity_function`"+`: 'cosine'
		}}
	`, indexName, label, embeddingLength)

	if _, err := r.conn.run(ctx, writeMode, ddl, nil); err != nil {
		if err == errNotConnected {
			return false
		}
		if !isAlreadyExists(err) {
			r.logger.Error("Failed to create vector index",
				zap.String("index", indexName),
				zap.Int("dimensions", embeddingLength),
				zap.Error(err))
			return false
		}
	}

	r.ensuredIndexes.Store(key, struct{}{})
	r.logger.Info("Vector index ensured",
		zap.String("index", indexName),
		zap.Int("dimensions", embeddingLength))
	return true
}

// vectorIndexExists checks the store for a named index; used to skip
// dimensions that have never been written
func (r *Repository) vectorIndexExists(ctx context.Context, kind DimensionKind, name DimensionName) bool {
	indexName := vectorIndexName(kind, name)

	// Anything in the ensured cache exists regardless of embedding length
	found := false
	r.ensuredIndexes.Range(func(k, _ interface{}) bool {
		if key, ok := k.(vectorIndexKey); ok && key.name == indexName {
			found = true
			return false
		}
		return true
	})
	if found {
		return true
	}

	records, ok := r.conn.Read(ctx, `
		SHOW INDEXES YIELD name
		WHERE name = $name
		RETURN count(*) AS n
	`, map[string]interface{}{"name": indexName})
	if !ok || len(records) == 0 {
		return false
	}
	return getInt64FromRecord(records[0], "n") > 0
}

func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "equivalentschemarule") ||
		strings.Contains(msg, "indexalreadyexists")
}
