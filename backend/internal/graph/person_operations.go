package graph

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ============================================================================
// Person Operations
// ============================================================================

// UpsertPerson merges a Person by id, setting mutable fields and
// preserving created_at on repeat calls. Returns false when the store is
// unavailable.
func (r *Repository) UpsertPerson(ctx context.Context, id string, attrs PersonAttrs) bool {
	if id == "" {
		return false
	}

	status := attrs.Status
	if status == "" {
		status = PersonStatusOnboarding
	}
	now := time.Now().UTC().Format(time.RFC3339)

	records, ok := r.conn.Write(ctx, `
		MERGE (p:Person {id: $id})
		ON CREATE SET
			p.status = $status,
			p.created_at = datetime($now)
		SET p.updated_at = datetime($now),
		    p.name = CASE WHEN $name <> '' THEN $name ELSE p.name END,
		    p.metadata = CASE WHEN $metadata <> '' THEN $metadata ELSE p.metadata END
		RETURN p.id AS id
	`, map[string]interface{}{
		"id":       id,
		"name":     attrs.Name,
		"status":   string(status),
		"metadata": attrs.Metadata,
		"now":      now,
	})
	if !ok || len(records) == 0 {
		return false
	}

	r.logger.Info("Person upserted", zap.String("person_id", id))
	return true
}

// GetPerson retrieves a Person by id. The second return is false both when
// the person is absent and when the store is unreachable.
func (r *Repository) GetPerson(ctx context.Context, id string) (*Person, bool) {
	records, ok := r.conn.Read(ctx, `
		MATCH (p:Person {id: $id})
		RETURN p.id AS id, p.name AS name, p.status AS status,
		       p.metadata AS metadata, p.created_at AS created_at,
		       p.updated_at AS updated_at
	`, map[string]interface{}{"id": id})
	if !ok || len(records) == 0 {
		return nil, false
	}

	record := records[0]
	return &Person{
		ID:        getStringFromRecord(record, "id"),
		Name:      getStringFromRecord(record, "name"),
		Status:    PersonStatus(getStringFromRecord(record, "status")),
		Metadata:  getStringFromRecord(record, "metadata"),
		CreatedAt: getTimeFromRecord(record, "created_at"),
		UpdatedAt: getTimeFromRecord(record, "updated_at"),
	}, true
}

// personExists is a cheap existence probe used by invariant pre-checks
func (r *Repository) personExists(ctx context.Context, id string) bool {
	records, ok := r.conn.Read(ctx, `
		MATCH (p:Person {id: $id})
		RETURN count(p) AS n
	`, map[string]interface{}{"id": id})
	if !ok || len(records) == 0 {
		return false
	}
	return getInt64FromRecord(records[0], "n") > 0
}

// SetPersonStatus updates a Person's lifecycle status
func (r *Repository) SetPersonStatus(ctx context.Context, id string, status PersonStatus) bool {
	now := time.Now().UTC().Format(time.RFC3339)
	records, ok := r.conn.Write(ctx, `
		MATCH (p:Person {id: $id})
		SET p.status = $status,
		    p.updated_at = datetime($now)
		RETURN p.id AS id
	`, map[string]interface{}{
		"id":     id,
		"status": string(status),
		"now":    now,
	})
	if !ok || len(records) == 0 {
		return false
	}

	r.logger.Info("Person status updated",
		zap.String("person_id", id),
		zap.String("status", string(status)))
	return true
}

// ============================================================================
// Account / Agent / Place Operations
// ============================================================================

// UpsertAccount merges an external channel identity and its link to a
// Person. linkStatus is one of active/inactive/pending.
func (r *Repository) UpsertAccount(ctx context.Context, personID, platform, identifier, linkStatus string) bool {
	if personID == "" || platform == "" || identifier == "" {
		return false
	}
	if linkStatus == "" {
		linkStatus = "active"
	}
	now := time.Now().UTC().Format(time.RFC3339)

	records, ok := r.conn.Write(ctx, `
		MATCH (p:Person {id: $personID})
		MERGE (ac:Account {platform: $platform, identifier: $identifier})
		ON CREATE SET ac.created_at = datetime($now)
		MERGE (p)-[l:HAS_ACCOUNT]->(ac)
		SET l.status = $linkStatus,
		    l.updated_at = datetime($now)
		RETURN ac.identifier AS identifier
	`, map[string]interface{}{
		"personID":   personID,
		"platform":   platform,
		"identifier": identifier,
		"linkStatus": linkStatus,
		"now":        now,
	})
	if !ok || len(records) == 0 {
		return false
	}

	return true
}

// UpsertAgent merges the managing service instance node
func (r *Repository) UpsertAgent(ctx context.Context, agentID, name string) bool {
	if agentID == "" {
		return false
	}
	now := time.Now().UTC().Format(time.RFC3339)

	records, ok := r.conn.Write(ctx, `
		MERGE (a:Agent {id: $agentID})
		ON CREATE SET a.created_at = datetime($now)
		SET a.name = CASE WHEN $name <> '' THEN $name ELSE a.name END
		RETURN a.id AS id
	`, map[string]interface{}{
		"agentID": agentID,
		"name":    name,
		"now":     now,
	})
	if !ok || len(records) == 0 {
		return false
	}

	r.logger.Info("Agent upserted", zap.String("agent_id", agentID))
	return true
}

// LinkAgentToPerson records that the agent manages the person; similarity
// search scopes candidates through this edge
func (r *Repository) LinkAgentToPerson(ctx context.Context, agentID, personID string) bool {
	now := time.Now().UTC().Format(time.RFC3339)
	records, ok := r.conn.Write(ctx, `
		MATCH (a:Agent {id: $agentID})
		MATCH (p:Person {id: $personID})
		MERGE (a)-[m:MANAGES]->(p)
		ON CREATE SET m.since = datetime($now)
		RETURN p.id AS id
	`, map[string]interface{}{
		"agentID":  agentID,
		"personID": personID,
		"now":      now,
	})
	return ok && len(records) > 0
}

// UpsertPlace merges a candidate meeting venue and links it to the agent
func (r *Repository) UpsertPlace(ctx context.Context, agentID, name, address string) bool {
	if name == "" {
		return false
	}
	now := time.Now().UTC().Format(time.RFC3339)

	records, ok := r.conn.Write(ctx, `
		MERGE (pl:Place {name: $name})
		ON CREATE SET pl.created_at = datetime($now)
		SET pl.address = CASE WHEN $address <> '' THEN $address ELSE pl.address END
		WITH pl
		OPTIONAL MATCH (a:Agent {id: $agentID})
		FOREACH (ignored IN CASE WHEN a IS NOT NULL THEN [1] ELSE [] END |
			MERGE (a)-[:OPERATES]->(pl)
		)
		RETURN pl.name AS name
	`, map[string]interface{}{
		"agentID": agentID,
		"name":    name,
		"address": address,
		"now":     now,
	})
	return ok && len(records) > 0
}
