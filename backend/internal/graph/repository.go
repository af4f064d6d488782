package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"hybrid-memory/backend/internal/utils"
	apperrors "hybrid-memory/backend/pkg/errors"
)

// MaxPathDepth bounds RelatedByPath
const MaxPathDepth = 5

// Repository is the Neo4j-backed record store. Every entity is an :Entity node
// that additionally carries each of its types as a label; relations are
// :RELATES edges with a relationType property.
type Repository struct {
	driver   neo4j.DriverWithContext
	database string
	retry    utils.RetryPolicy
	logger   *zap.Logger
}

// NewDriver creates a Neo4j driver with basic auth
func NewDriver(uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	return driver, nil
}

// NewRepository creates a new graph repository
func NewRepository(driver neo4j.DriverWithContext, database string, retry utils.RetryPolicy, logger *zap.Logger) *Repository {
	return &Repository{
		driver:   driver,
		database: database,
		retry:    retry,
		logger:   logger,
	}
}

func (r *Repository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: r.database})
}

// Initialize waits for the database and applies the schema migrations
func (r *Repository) Initialize(ctx context.Context) error {
	err := utils.Retry(ctx, r.retry, "neo4j", r.logger, func(ctx context.Context) error {
		return r.driver.VerifyConnectivity(ctx)
	})
	if err != nil {
		return err
	}
	return r.runMigrations(ctx)
}

// Close closes the Neo4j driver connection
func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

// writeTx runs work in a managed write transaction. Typed errors returned by
// work pass through untouched; anything else becomes a store failure.
func (r *Repository) writeTx(ctx context.Context, op string, work neo4j.ManagedTransactionWork) (any, error) {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, work)
	if err != nil {
		if apperrors.TypeOf(err) != "" {
			return nil, err
		}
		return nil, apperrors.NewStoreOperationFailed(op, err)
	}
	return result, nil
}

func (r *Repository) AddEntities(ctx context.Context, entities []Entity) ([]Entity, error) {
	result, err := r.writeTx(ctx, "add entities", func(tx neo4j.ManagedTransaction) (any, error) {
		created := []Entity{}
		for _, e := range entities {
			exists, err := entityExists(ctx, tx, e.Name)
			if err != nil {
				return nil, err
			}
			if exists {
				continue
			}

			query := fmt.Sprintf(`
				CREATE (e:Entity%s)
				SET e.name = $name,
				    e.entityType = $entityType,
				    e.entityTypeMulti = $entityTypeMulti,
				    e.observations = $observations,
				    e.id = $id,
				    e.created_at = $created_at,
				    e.updated_at = $updated_at,
				    e.domain = $domain,
				    e.tags = $tags,
				    e.content = $content,
				    e.metrics = $metrics
			`, labelClause(e.EntityType.Labels()))

			if _, err := tx.Run(ctx, query, entityParams(e)); err != nil {
				return nil, fmt.Errorf("failed to create entity %s: %w", e.Name, err)
			}
			created = append(created, e.Clone())
		}
		return created, nil
	})
	if err != nil {
		return nil, err
	}

	created := result.([]Entity)
	r.logger.Info("Entities created", zap.Int("count", len(created)))
	return created, nil
}

func entityExists(ctx context.Context, tx neo4j.ManagedTransaction, name string) (bool, error) {
	result, err := tx.Run(ctx, `MATCH (e:Entity {name: $name}) RETURN count(e) AS n`, map[string]interface{}{"name": name})
	if err != nil {
		return false, fmt.Errorf("failed to check entity %s: %w", name, err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check entity %s: %w", name, err)
	}
	n, _ := record.Get("n")
	count, _ := n.(int64)
	return count > 0, nil
}

func (r *Repository) AddRelations(ctx context.Context, relations []Relation) ([]Relation, error) {
	result, err := r.writeTx(ctx, "add relations", func(tx neo4j.ManagedTransaction) (any, error) {
		for _, rel := range relations {
			for _, name := range []string{rel.From, rel.To} {
				exists, err := entityExists(ctx, tx, name)
				if err != nil {
					return nil, err
				}
				if !exists {
					return nil, apperrors.NewEntityNotFound(name)
				}
			}
		}

		stored := []Relation{}
		for _, rel := range relations {
			query := `
				MATCH (a:Entity {name: $from}), (b:Entity {name: $to})
				MERGE (a)-[r:RELATES {relationType: $relationType}]->(b)
				ON CREATE SET r.id = $id, r.created_at = $created_at
				SET r.updated_at = $updated_at,
				    r.strength = $strength,
				    r.context = $context,
				    r.evidence = $evidence
				RETURN properties(r) AS props
			`
			res, err := tx.Run(ctx, query, relationParams(rel))
			if err != nil {
				return nil, fmt.Errorf("failed to merge relation %s: %w", rel.Key(), err)
			}
			record, err := res.Single(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to merge relation %s: %w", rel.Key(), err)
			}
			stored = append(stored, relationFromProps(rel.From, rel.To, getMapFromRecord(record, "props")))
		}
		return stored, nil
	})
	if err != nil {
		return nil, err
	}

	stored := result.([]Relation)
	r.logger.Info("Relations created", zap.Int("count", len(stored)))
	return stored, nil
}

func (r *Repository) AddObservations(ctx context.Context, name string, observations []string) ([]string, error) {
	batch := mergeObservations(nil, observations)
	result, err := r.writeTx(ctx, "add observations", func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (e:Entity {name: $name})
			WITH e, [o IN $observations WHERE NOT o IN coalesce(e.observations, [])] AS added
			SET e.observations = coalesce(e.observations, []) + added,
			    e.updated_at = $updated_at
			RETURN added
		`
		res, err := tx.Run(ctx, query, map[string]interface{}{
			"name":         name,
			"observations": batch,
			"updated_at":   formatTime(SystemClock()),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to add observations: %w", err)
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, fmt.Errorf("failed to add observations: %w", err)
			}
			return nil, apperrors.NewEntityNotFound(name)
		}
		return getStringSliceFromRecord(res.Record(), "added"), nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (r *Repository) DeleteEntities(ctx context.Context, names []string) error {
	_, err := r.writeTx(ctx, "delete entities", func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `MATCH (e:Entity) WHERE e.name IN $names DETACH DELETE e`,
			map[string]interface{}{"names": names})
		return nil, err
	})
	if err != nil {
		return err
	}
	r.logger.Info("Entities deleted", zap.Strings("names", names))
	return nil
}

func (r *Repository) DeleteObservations(ctx context.Context, name string, observations []string) error {
	_, err := r.writeTx(ctx, "delete observations", func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (e:Entity {name: $name})
			SET e.observations = [o IN coalesce(e.observations, []) WHERE NOT o IN $observations],
			    e.updated_at = $updated_at
		`
		_, err := tx.Run(ctx, query, map[string]interface{}{
			"name":         name,
			"observations": observations,
			"updated_at":   formatTime(SystemClock()),
		})
		return nil, err
	})
	return err
}

func (r *Repository) DeleteRelations(ctx context.Context, relations []Relation) error {
	_, err := r.writeTx(ctx, "delete relations", func(tx neo4j.ManagedTransaction) (any, error) {
		for _, rel := range relations {
			query := `
				MATCH (:Entity {name: $from})-[r:RELATES {relationType: $relationType}]->(:Entity {name: $to})
				DELETE r
			`
			if _, err := tx.Run(ctx, query, map[string]interface{}{
				"from":         rel.From,
				"to":           rel.To,
				"relationType": rel.RelationType,
			}); err != nil {
				return nil, fmt.Errorf("failed to delete relation %s: %w", rel.Key(), err)
			}
		}
		return nil, nil
	})
	return err
}

func (r *Repository) UpdateEntity(ctx context.Context, entity Entity) error {
	_, err := r.writeTx(ctx, "update entity", func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (e:Entity {name: $name}) RETURN e.entityType AS types`,
			map[string]interface{}{"name": entity.Name})
		if err != nil {
			return nil, fmt.Errorf("failed to read entity %s: %w", entity.Name, err)
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, fmt.Errorf("failed to read entity %s: %w", entity.Name, err)
			}
			return nil, apperrors.NewEntityNotFound(entity.Name)
		}
		oldTypes := getStringSliceFromRecord(res.Record(), "types")

		var stale []string
		for _, t := range oldTypes {
			if !entity.EntityType.Has(t) {
				stale = append(stale, t)
			}
		}
		removeClause := ""
		if labels := labelClause(stale); labels != "" {
			removeClause = "REMOVE e" + labels
		}
		setLabels := ""
		if labels := labelClause(entity.EntityType.Labels()); labels != "" {
			setLabels = ", e" + labels
		}

		query := fmt.Sprintf(`
			MATCH (e:Entity {name: $name})
			%s
			SET e.entityType = $entityType,
			    e.entityTypeMulti = $entityTypeMulti,
			    e.observations = $observations,
			    e.id = $id,
			    e.created_at = $created_at,
			    e.updated_at = $updated_at,
			    e.domain = $domain,
			    e.tags = $tags,
			    e.content = $content,
			    e.metrics = $metrics%s
		`, removeClause, setLabels)
		if _, err := tx.Run(ctx, query, entityParams(entity)); err != nil {
			return nil, fmt.Errorf("failed to update entity %s: %w", entity.Name, err)
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	r.logger.Info("Entity updated", zap.String("name", entity.Name))
	return nil
}

func (r *Repository) ReadGraph(ctx context.Context) (KnowledgeGraph, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		g := KnowledgeGraph{Entities: []Entity{}, Relations: []Relation{}}

		res, err := tx.Run(ctx, `
			MATCH (e:Entity)
			RETURN properties(e) AS props
			ORDER BY e.created_at, e.name
		`, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read entities: %w", err)
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to collect entities: %w", err)
		}
		for _, record := range records {
			g.Entities = append(g.Entities, entityFromProps(getMapFromRecord(record, "props")))
		}

		res, err = tx.Run(ctx, `
			MATCH (a:Entity)-[r:RELATES]->(b:Entity)
			RETURN a.name AS from, b.name AS to, properties(r) AS props
			ORDER BY r.created_at
		`, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read relations: %w", err)
		}
		records, err = res.Collect(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to collect relations: %w", err)
		}
		for _, record := range records {
			g.Relations = append(g.Relations, relationFromProps(
				getStringFromRecord(record, "from"),
				getStringFromRecord(record, "to"),
				getMapFromRecord(record, "props"),
			))
		}
		return g, nil
	})
	if err != nil {
		return KnowledgeGraph{}, apperrors.NewStoreOperationFailed("read graph", err)
	}
	return result.(KnowledgeGraph), nil
}

// EntitiesByType returns the names of entities carrying the label for entityType
func (r *Repository) EntitiesByType(ctx context.Context, entityType string) ([]string, error) {
	label := sanitizeLabel(entityType)
	if label == "" {
		return nil, apperrors.NewValidation("entityType", fmt.Sprintf("%q is not a usable label", entityType))
	}

	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := fmt.Sprintf(`MATCH (e:Entity:%s) RETURN e.name AS name ORDER BY name`, label)
	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, apperrors.NewStoreOperationFailed("entities by type", err)
	}
	names := []string{}
	for result.Next(ctx) {
		names = append(names, getStringFromRecord(result.Record(), "name"))
	}
	if err := result.Err(); err != nil {
		return nil, apperrors.NewStoreOperationFailed("entities by type", err)
	}
	return names, nil
}

// RelatedByPath returns the names reachable from name over at most maxDepth
// RELATES edges in either direction, nearest first
func (r *Repository) RelatedByPath(ctx context.Context, name string, maxDepth int) ([]string, error) {
	if maxDepth < 1 || maxDepth > MaxPathDepth {
		return nil, apperrors.NewValidation("maxDepth", fmt.Sprintf("must be between 1 and %d", MaxPathDepth))
	}

	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	// Variable-length bounds cannot be parameterized
	query := fmt.Sprintf(`
		MATCH (s:Entity {name: $name})
		MATCH p = (s)-[:RELATES*1..%d]-(o:Entity)
		WHERE o <> s
		WITH o, min(length(p)) AS depth
		RETURN o.name AS name
		ORDER BY depth, name
	`, maxDepth)

	result, err := session.Run(ctx, query, map[string]interface{}{"name": name})
	if err != nil {
		return nil, apperrors.NewStoreOperationFailed("related by path", err)
	}
	names := []string{}
	for result.Next(ctx) {
		names = append(names, getStringFromRecord(result.Record(), "name"))
	}
	if err := result.Err(); err != nil {
		return nil, apperrors.NewStoreOperationFailed("related by path", err)
	}
	return names, nil
}

// ============================================================================
// Schema migrations
// ============================================================================

type migration struct {
	name        string
	description string
	query       string
}

var migrations = []migration{
	{
		name:        "Entity constraints",
		description: "Entity names are unique",
		query: `
			// One node per entity name
			CREATE CONSTRAINT entity_name_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.name IS UNIQUE;
		`,
	},
	{
		name:        "Entity indexes",
		description: "Lookup indexes for ids, domains and relation types",
		query: `
			CREATE INDEX entity_id IF NOT EXISTS FOR (e:Entity) ON (e.id);
			CREATE INDEX entity_domain IF NOT EXISTS FOR (e:Entity) ON (e.domain);
			/* relation lookups by type during deletes and merges */
			CREATE INDEX relates_type IF NOT EXISTS FOR ()-[r:RELATES]-() ON (r.relationType);
		`,
	},
}

func (r *Repository) runMigrations(ctx context.Context) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for i, m := range migrations {
		r.logger.Info("Running migration",
			zap.Int("step", i+1),
			zap.Int("total", len(migrations)),
			zap.String("name", m.name),
			zap.String("description", m.description),
		)
		for j, stmt := range splitStatements(m.query) {
			if _, err := session.Run(ctx, stmt, nil); err != nil {
				r.logger.Error("Migration statement failed",
					zap.String("migration", m.name),
					zap.Int("statement", j+1),
					zap.Error(err),
				)
				return apperrors.NewStoreOperationFailed("migration "+m.name, err)
			}
		}
	}
	return nil
}

// splitStatements splits a Cypher script on semicolons, dropping comments
func splitStatements(script string) []string {
	lines := strings.Split(script, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		cleaned = append(cleaned, line)
	}

	var statements []string
	for _, part := range strings.Split(strings.Join(cleaned, "\n"), ";") {
		stmt := strings.TrimSpace(removeBlockComments(part))
		if stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}

func removeBlockComments(text string) string {
	for {
		start := strings.Index(text, "/*")
		if start < 0 {
			return text
		}
		end := strings.Index(text[start+2:], "*/")
		if end < 0 {
			return text
		}
		text = text[:start] + text[start+end+4:]
	}
}
