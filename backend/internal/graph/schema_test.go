package graph

import (
	"context"
	"testing"
)

func TestEnsureVectorIndex_SecondEnsureSkipsStore(t *testing.T) {
	// The connection is never established, so any statement reaching the
	// store fails. A cached ensure must therefore succeed without one.
	conn := NewConnection("bolt://localhost:7687", "neo4j", "password", "")
	repo := NewRepository(conn)
	ctx := context.Background()

	key := vectorIndexKey{
		name:       vectorIndexName(KindPersona, DimensionGoal),
		dimensions: 1536,
	}
	repo.ensuredIndexes.Store(key, struct{}{})

	if !repo.ensureVectorIndex(ctx, KindPersona, DimensionGoal, 1536) {
		t.Error("ensure for an already-ensured (kind, name, length) must be a no-op success")
	}

	// A different embedding length misses the cache and reaches the store
	if repo.ensureVectorIndex(ctx, KindPersona, DimensionGoal, 768) {
		t.Error("cache miss must reach the store and fail while disconnected")
	}

	// The cached entry also satisfies the existence probe without a store
	if !repo.vectorIndexExists(ctx, KindPersona, DimensionGoal) {
		t.Error("ensured index must report as existing")
	}
}

func TestEnsureVectorIndex_ZeroLengthIsNoOp(t *testing.T) {
	conn := NewConnection("bolt://localhost:7687", "neo4j", "password", "")
	repo := NewRepository(conn)

	if !repo.ensureVectorIndex(context.Background(), KindPersona, DimensionGoal, 0) {
		t.Error("empty embedding must not attempt index creation")
	}
}

func TestEnsureVectorIndex_UnknownDimensionRejected(t *testing.T) {
	conn := NewConnection("bolt://localhost:7687", "neo4j", "password", "")
	repo := NewRepository(conn)

	if repo.ensureVectorIndex(context.Background(), KindPersona, DimensionName("favorite_color"), 1536) {
		t.Error("dimension outside the closed table must be rejected")
	}
}

// Requires a running Neo4j instance, see repository_test.go
func TestEnsureVectorIndex_IdempotentAgainstStore(t *testing.T) {
	repo, conn := setupTestRepository(t)
	ctx := context.Background()

	t.Cleanup(func() {
		_, _ = conn.Write(context.Background(),
			"DROP INDEX "+vectorIndexName(KindPersona, DimensionRoutine)+" IF EXISTS", nil)
	})

	if !repo.ensureVectorIndex(ctx, KindPersona, DimensionRoutine, 3) {
		t.Fatal("first ensure failed")
	}

	key := vectorIndexKey{
		name:       vectorIndexName(KindPersona, DimensionRoutine),
		dimensions: 3,
	}
	if _, cached := repo.ensuredIndexes.Load(key); !cached {
		t.Fatal("first ensure must populate the cache")
	}

	if !repo.ensureVectorIndex(ctx, KindPersona, DimensionRoutine, 3) {
		t.Fatal("repeat ensure must succeed")
	}

	// A fresh repository has an empty cache; its ensure hits the store's
	// IF NOT EXISTS path and must still treat the existing index as success
	fresh := NewRepository(conn)
	if !fresh.ensureVectorIndex(ctx, KindPersona, DimensionRoutine, 3) {
		t.Fatal("ensure against an existing index must succeed")
	}
	if !fresh.vectorIndexExists(ctx, KindPersona, DimensionRoutine) {
		t.Fatal("index must report as existing")
	}
}
