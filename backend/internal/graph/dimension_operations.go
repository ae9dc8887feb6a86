package graph

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ============================================================================
// Dimension Operations
//
// The only write path for Persona-*/Desired-* nodes. The upstream
// extraction step supplies (personID, kind, name, text, embedding,
// evidence) tuples; this layer owns the storage invariants.
// ============================================================================

// RecordDimension stores one extracted insight for a person.
//
// Profile dimensions are singletons: the old node is replaced inside a
// single statement so the profile is never briefly absent. Non-profile
// dimensions are multi-valued: a new insight that duplicates an existing
// value (per IsDuplicateInsight) merges into the existing node, with the
// evidence accumulated on the ownership edge.
//
// Returns false when the store is unavailable, the person does not exist,
// or the (kind, name) pair is outside the closed dimension table.
func (r *Repository) RecordDimension(ctx context.Context, personID string, kind DimensionKind, name DimensionName, value string, embedding []float64, evidence string) bool {
	if personID == "" || value == "" {
		return false
	}
	label, ok := DimensionLabel(kind, name)
	if !ok {
		r.logger.Warn("Rejected unknown dimension",
			zap.String("kind", string(kind)),
			zap.String("name", string(name)))
		return false
	}

	if !r.personExists(ctx, personID) {
		return false
	}

	var written bool
	if name.IsProfile() {
		written = r.replaceProfileDimension(ctx, personID, kind, label, value, embedding, evidence)
	} else {
		written = r.mergeValueDimension(ctx, personID, kind, label, name, value, embedding, evidence)
	}
	if !written {
		return false
	}

	// The embedding length is only known now; create the similarity index
	// on first use
	if !r.ensureVectorIndex(ctx, kind, name, len(embedding)) {
		r.logger.Warn("Dimension stored but index creation skipped",
			zap.String("person_id", personID),
			zap.String("dimension", string(name)))
	}

	r.logger.Info("Dimension recorded",
		zap.String("person_id", personID),
		zap.String("kind", string(kind)),
		zap.String("dimension", string(name)))
	return true
}

// replaceProfileDimension deletes the old singleton and creates the new
// one in a single atomic statement
func (r *Repository) replaceProfileDimension(ctx context.Context, personID string, kind DimensionKind, label, value string, embedding []float64, evidence string) bool {
	edge := OwnershipEdge(kind)
	now := time.Now().UTC().Format(time.RFC3339)

	query := fmt.Sprintf(`
		MATCH (p:Person {id: $personID})
		OPTIONAL MATCH (p)-[:%s]->(old:%s)
		DETACH DELETE old
		WITH DISTINCT p
		CREATE (d:%s {
			value: $value,
			embedding: $embedding,
			created_at: datetime($now)
		})
		CREATE (p)-[e:%s {created_at: datetime($now)}]->(d)
		SET e.evidence = CASE WHEN $evidence <> '' THEN [$evidence] ELSE [] END
		RETURN d.value AS value
	`, edge, label, label, edge)

	records, ok := r.conn.Write(ctx, query, map[string]interface{}{
		"personID":  personID,
		"value":     value,
		"embedding": embedding,
		"evidence":  evidence,
		"now":       now,
	})
	return ok && len(records) > 0
}

// mergeValueDimension merges a multi-valued dimension node by value. Node
// creation and edge creation happen in one statement so an interrupted
// write cannot orphan the node.
func (r *Repository) mergeValueDimension(ctx context.Context, personID string, kind DimensionKind, label string, name DimensionName, value string, embedding []float64, evidence string) bool {
	// Merge into an existing near-duplicate value instead of creating a
	// sibling node
	if existing, ok := r.dimensionValues(ctx, personID, kind, label); ok {
		for _, v := range existing {
			if r.IsDuplicateInsight != nil && r.IsDuplicateInsight(v, value) {
				value = v
				break
			}
		}
	}

	edge := OwnershipEdge(kind)
	now := time.Now().UTC().Format(time.RFC3339)

	query := fmt.Sprintf(`
		MATCH (p:Person {id: $personID})
		MERGE (d:%s {value: $value})
		ON CREATE SET
			d.embedding = $embedding,
			d.created_at = datetime($now)
		ON MATCH SET
			d.embedding = CASE WHEN size($embedding) > 0 THEN $embedding ELSE d.embedding END
		MERGE (p)-[e:%s]->(d)
		ON CREATE SET
			e.evidence = CASE WHEN $evidence <> '' THEN [$evidence] ELSE [] END,
			e.created_at = datetime($now)
		ON MATCH SET
			e.evidence = CASE
				WHEN $evidence = '' OR $evidence IN e.evidence THEN e.evidence
				ELSE e.evidence + $evidence
			END
		RETURN d.value AS value
	`, label, edge)

	records, ok := r.conn.Write(ctx, query, map[string]interface{}{
		"personID":  personID,
		"value":     value,
		"embedding": embedding,
		"evidence":  evidence,
		"now":       now,
	})
	return ok && len(records) > 0
}

// dimensionValues lists the existing values of one dimension for a person
func (r *Repository) dimensionValues(ctx context.Context, personID string, kind DimensionKind, label string) ([]string, bool) {
	edge := OwnershipEdge(kind)
	query := fmt.Sprintf(`
		MATCH (p:Person {id: $personID})-[:%s]->(d:%s)
		RETURN d.value AS value
	`, edge, label)

	records, ok := r.conn.Read(ctx, query, map[string]interface{}{"personID": personID})
	if !ok {
		return nil, false
	}

	values := make([]string, 0, len(records))
	for _, record := range records {
		if v := getStringFromRecord(record, "value"); v != "" {
			values = append(values, v)
		}
	}
	return values, true
}

// GetDimensions retrieves all stored dimensions of one kind for a person
func (r *Repository) GetDimensions(ctx context.Context, personID string, kind DimensionKind) ([]Dimension, bool) {
	edge := OwnershipEdge(kind)
	var out []Dimension

	for _, name := range DimensionNames() {
		label, _ := DimensionLabel(kind, name)
		query := fmt.Sprintf(`
			MATCH (p:Person {id: $personID})-[e:%s]->(d:%s)
			RETURN d.value AS value, e.evidence AS evidence
		`, edge, label)

		records, ok := r.conn.Read(ctx, query, map[string]interface{}{"personID": personID})
		if !ok {
			return nil, false
		}
		for _, record := range records {
			dim := Dimension{
				Kind:  kind,
				Name:  name,
				Value: getStringFromRecord(record, "value"),
			}
			if ev, found := record.Get("evidence"); found && ev != nil {
				if list, isList := ev.([]interface{}); isList {
					for _, item := range list {
						if s, isStr := item.(string); isStr {
							dim.Evidence = append(dim.Evidence, s)
						}
					}
				}
			}
			out = append(out, dim)
		}
	}
	return out, true
}
