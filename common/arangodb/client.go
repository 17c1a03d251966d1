package arangodb

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"
)

var ErrNotFound = errors.New("document not found")

const (
	EntityCollection       = "entities"
	RelationshipCollection = "relationships"
	GraphName              = "knowledge"
)

type Client interface {
	// Setup operations
	EnsureDatabase(ctx context.Context) error
	EnsureCollections(ctx context.Context) error
	EnsureGraph(ctx context.Context) error

	// Write operations (idempotent, keyed by entity id)
	UpsertNode(ctx context.Context, entityID string, doc map[string]any) error
	RemoveNode(ctx context.Context, entityID string) error
	UpsertEdge(ctx context.Context, entityID, fromID, toID string, doc map[string]any) error
	RemoveEdge(ctx context.Context, entityID string) error

	// Read operations (ops/debug surface)
	GetNode(ctx context.Context, entityID string) (map[string]any, error)

	// Utility
	Close() error
}

type Config struct {
	URL      string
	Username string
	Password string
	Database string
}

func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("arangodb URL is required")
	}
	if c.Username == "" {
		return fmt.Errorf("arangodb username is required")
	}
	if c.Database == "" {
		return fmt.Errorf("arangodb database name is required")
	}
	return nil
}

type client struct {
	conn         connection.Connection
	arangoClient arangodb.Client
	db           arangodb.Database
	cfg          Config
}

func New(ctx context.Context, cfg Config) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("arangodb config: %w", err)
	}

	endpoint := connection.NewRoundRobinEndpoints([]string{cfg.URL}) // round robins from the urls. we just have one for now
	conn := connection.NewHttp2Connection(connection.DefaultHTTP2ConfigurationWrapper(endpoint, true))

	auth := connection.NewBasicAuth(cfg.Username, cfg.Password)
	if err := conn.SetAuthentication(auth); err != nil {
		return nil, fmt.Errorf("arangodb auth: %w", err)
	}

	arangoClient := arangodb.NewClient(conn)

	c := &client{
		conn:         conn,
		arangoClient: arangoClient,
		cfg:          cfg,
	}

	return c, nil
}

func (c *client) Close() error {
	return nil
}

func (c *client) EnsureDatabase(ctx context.Context) error {
	start := time.Now()

	exists, err := c.arangoClient.DatabaseExists(ctx, c.cfg.Database)
	if err != nil {
		return fmt.Errorf("check database exists: %w", err)
	}

	if !exists {
		_, err = c.arangoClient.CreateDatabase(ctx, c.cfg.Database, nil)
		if err != nil {
			return fmt.Errorf("create database: %w", err)
		}
		slog.InfoContext(ctx, "arangodb database created",
			"database", c.cfg.Database,
			"duration_ms", time.Since(start).Milliseconds())
	}

	db, err := c.arangoClient.GetDatabase(ctx, c.cfg.Database, nil)
	if err != nil {
		return fmt.Errorf("get database: %w", err)
	}
	c.db = db

	return nil
}

func (c *client) EnsureCollections(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized, call EnsureDatabase first")
	}

	if err := c.ensureCollection(ctx, EntityCollection, false); err != nil {
		return err
	}
	return c.ensureCollection(ctx, RelationshipCollection, true)
}

func (c *client) ensureCollection(ctx context.Context, name string, isEdge bool) error {
	exists, err := c.db.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s exists: %w", name, err)
	}

	if !exists {
		props := &arangodb.CreateCollectionPropertiesV2{}
		if isEdge {
			colType := arangodb.CollectionTypeEdge
			props.Type = &colType
		} else {
			colType := arangodb.CollectionTypeDocument
			props.Type = &colType
		}

		_, err = c.db.CreateCollectionV2(ctx, name, props)
		if err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
		slog.InfoContext(ctx, "arangodb collection created",
			"collection", name,
			"is_edge", isEdge)
	}

	return nil
}

func (c *client) EnsureGraph(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized, call EnsureDatabase first")
	}

	exists, err := c.db.GraphExists(ctx, GraphName)
	if err != nil {
		return fmt.Errorf("check graph exists: %w", err)
	}

	if exists {
		return nil
	}

	graphDef := &arangodb.GraphDefinition{
		Name: GraphName,
		EdgeDefinitions: []arangodb.EdgeDefinition{
			{Collection: RelationshipCollection, From: []string{EntityCollection}, To: []string{EntityCollection}},
		},
	}

	_, err = c.db.CreateGraph(ctx, GraphName, graphDef, nil)
	if err != nil {
		return fmt.Errorf("create graph: %w", err)
	}

	slog.InfoContext(ctx, "arangodb graph created", "graph", GraphName)
	return nil
}

// UpsertNode inserts or replaces the entity document keyed by the entity id.
// Replacing with the same snapshot is a no-op downstream, which is what makes
// redelivery after a crashed checkpoint safe.
func (c *client) UpsertNode(ctx context.Context, entityID string, doc map[string]any) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		UPSERT { _key: @key }
		INSERT MERGE({ _key: @key, entity_id: @entity_id }, @doc)
		REPLACE MERGE({ _key: @key, entity_id: @entity_id }, @doc)
		IN ` + EntityCollection

	return c.execWrite(ctx, query, map[string]any{
		"key":       makeKey(entityID),
		"entity_id": entityID,
		"doc":       doc,
	})
}

// RemoveNode deletes the entity document. Removing an absent document is a
// no-op, not an error.
func (c *client) RemoveNode(ctx context.Context, entityID string) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		FOR d IN ` + EntityCollection + `
			FILTER d._key == @key
			REMOVE d IN ` + EntityCollection

	return c.execWrite(ctx, query, map[string]any{"key": makeKey(entityID)})
}

// UpsertEdge inserts or replaces the relationship edge between two entities.
// Endpoint vertices are upserted as stubs first so the edge never dangles
// when the relationship event arrives before its endpoints' events.
func (c *client) UpsertEdge(ctx context.Context, entityID, fromID, toID string, doc map[string]any) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}

	for _, endpoint := range []string{fromID, toID} {
		stub := `
			UPSERT { _key: @key }
			INSERT { _key: @key, entity_id: @entity_id, stub: true }
			UPDATE {}
			IN ` + EntityCollection
		if err := c.execWrite(ctx, stub, map[string]any{
			"key":       makeKey(endpoint),
			"entity_id": endpoint,
		}); err != nil {
			return fmt.Errorf("ensuring endpoint %s: %w", endpoint, err)
		}
	}

	query := `
		UPSERT { _key: @key }
		INSERT MERGE({ _key: @key, entity_id: @entity_id, _from: @from, _to: @to }, @doc)
		REPLACE MERGE({ _key: @key, entity_id: @entity_id, _from: @from, _to: @to }, @doc)
		IN ` + RelationshipCollection

	return c.execWrite(ctx, query, map[string]any{
		"key":       makeKey(entityID),
		"entity_id": entityID,
		"from":      fmt.Sprintf("%s/%s", EntityCollection, makeKey(fromID)),
		"to":        fmt.Sprintf("%s/%s", EntityCollection, makeKey(toID)),
		"doc":       doc,
	})
}

func (c *client) RemoveEdge(ctx context.Context, entityID string) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		FOR d IN ` + RelationshipCollection + `
			FILTER d._key == @key
			REMOVE d IN ` + RelationshipCollection

	return c.execWrite(ctx, query, map[string]any{"key": makeKey(entityID)})
}

func (c *client) GetNode(ctx context.Context, entityID string) (map[string]any, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		FOR d IN ` + EntityCollection + `
			FILTER d._key == @key
			RETURN d`

	cursor, err := c.db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]any{"key": makeKey(entityID)},
	})
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer cursor.Close()

	if !cursor.HasMore() {
		return nil, ErrNotFound
	}

	var doc map[string]any
	if _, err := cursor.ReadDocument(ctx, &doc); err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return doc, nil
}

func (c *client) execWrite(ctx context.Context, query string, bindVars map[string]any) error {
	start := time.Now()

	cursor, err := c.db.Query(ctx, query, &arangodb.QueryOptions{BindVars: bindVars})
	if err != nil {
		return fmt.Errorf("execute query: %w", err)
	}
	cursor.Close()

	slog.DebugContext(ctx, "arangodb write completed",
		"duration_ms", time.Since(start).Milliseconds())

	return nil
}

// makeKey derives a stable ArangoDB document key from an opaque entity id,
// which may contain characters the key charset rejects.
func makeKey(entityID string) string {
	hash := md5.Sum([]byte(entityID))
	return hex.EncodeToString(hash[:])[:16]
}
