package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"kindred/backend/internal/constants"
	"go.uber.org/zap"
)

// ============================================================================
// Similarity Search
// ============================================================================

// SearchSimilar ranks active People by cosine similarity of one dimension
// against the query embedding. The index is asked for limit x oversample
// candidates so that scope filtering still leaves enough results; the final
// list is truncated to limit and never backfilled.
func (r *Repository) SearchSimilar(ctx context.Context, kind DimensionKind, name DimensionName, queryEmbedding []float64, limit int, scope SearchScope) []SimilarityHit {
	if len(queryEmbedding) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = constants.DefaultSearchLimit
	}
	if _, ok := DimensionLabel(kind, name); !ok {
		return nil
	}
	if !r.vectorIndexExists(ctx, kind, name) {
		return nil
	}

	edge := OwnershipEdge(kind)
	k := limit * constants.SearchOversampleFactor

	agentFilter := ""
	params := map[string]interface{}{
		"index":     vectorIndexName(kind, name),
		"k":         k,
		"embedding": queryEmbedding,
		"active":    string(PersonStatusActive),
	}
	if scope.AgentID != "" {
		agentFilter = "AND EXISTS { MATCH (:Agent {id: $agentID})-[:MANAGES]->(p) }"
		params["agentID"] = scope.AgentID
	}

	query := fmt.Sprintf(`
		CALL db.index.vector.queryNodes($index, $k, $embedding)
		YIELD node, score
		MATCH (p:Person)-[:%s]->(node)
		WHERE p.status = $active %s
		RETURN p.id AS person_id, node.value AS value, score
		ORDER BY score DESC
	`, edge, agentFilter)

	records, ok := r.conn.Read(ctx, query, params)
	if !ok {
		return nil
	}

	raw := make([]SimilarityHit, 0, len(records))
	for _, record := range records {
		raw = append(raw, SimilarityHit{
			PersonID: getStringFromRecord(record, "person_id"),
			Value:    getStringFromRecord(record, "value"),
			Score:    getFloat64FromRecord(record, "score"),
		})
	}
	hits := applyScope(raw, scope, limit)

	r.logger.Debug("Similarity search completed",
		zap.String("kind", string(kind)),
		zap.String("dimension", string(name)),
		zap.Int("hits", len(hits)))
	return hits
}

// SearchAcrossDimensions fans one query embedding out over several
// dimensions concurrently and merges the ranked results. The requesting
// person is always excluded from their own candidate pool. Dimensions
// whose index has never been created are skipped rather than failed.
func (r *Repository) SearchAcrossDimensions(ctx context.Context, kind DimensionKind, names []DimensionName, personID string, queryEmbedding []float64, totalLimit int) []SimilarityHit {
	if len(names) == 0 || len(queryEmbedding) == 0 {
		return nil
	}
	if totalLimit <= 0 {
		totalLimit = constants.DefaultSearchLimit
	}

	perDimension := splitLimit(totalLimit, len(names))
	scope := SearchScope{ExcludeIDs: []string{personID}}

	var mu sync.Mutex
	var all []SimilarityHit

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			hits := r.SearchSimilar(gctx, kind, name, queryEmbedding, perDimension, scope)
			if len(hits) == 0 {
				return nil
			}
			mu.Lock()
			all = append(all, hits...)
			mu.Unlock()
			return nil
		})
	}
	// Per-dimension failures already degraded to empty results
	_ = g.Wait()

	return mergeHits(all, totalLimit)
}

// applyScope drops hits outside the search scope and truncates to limit,
// preserving the incoming score order. Hits lost to filtering are not
// backfilled from beyond the oversampled window.
func applyScope(hits []SimilarityHit, scope SearchScope, limit int) []SimilarityHit {
	exclude := make(map[string]bool, len(scope.ExcludeIDs))
	for _, id := range scope.ExcludeIDs {
		exclude[id] = true
	}
	allow := make(map[string]bool, len(scope.AllowIDs))
	for _, id := range scope.AllowIDs {
		allow[id] = true
	}

	out := make([]SimilarityHit, 0, limit)
	for _, h := range hits {
		if h.PersonID == "" || exclude[h.PersonID] {
			continue
		}
		if len(allow) > 0 && !allow[h.PersonID] {
			continue
		}
		out = append(out, h)
		if len(out) == limit {
			break
		}
	}
	return out
}

// splitLimit divides a total result count across n dimensions, rounding up
func splitLimit(total, n int) int {
	if n <= 0 {
		return total
	}
	return (total + n - 1) / n
}

// mergeHits deduplicates by person (keeping the best score), sorts by score
// descending, and truncates
func mergeHits(hits []SimilarityHit, limit int) []SimilarityHit {
	best := make(map[string]SimilarityHit, len(hits))
	for _, h := range hits {
		if prev, ok := best[h.PersonID]; !ok || h.Score > prev.Score {
			best[h.PersonID] = h
		}
	}

	merged := make([]SimilarityHit, 0, len(best))
	for _, h := range best {
		merged = append(merged, h)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].PersonID < merged[j].PersonID
	})

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
