package typesense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/typesense/typesense-go/v4/typesense"
	"github.com/typesense/typesense-go/v4/typesense/api"
	"github.com/typesense/typesense-go/v4/typesense/api/pointer"
)

var ErrNotFound = errors.New("document not found")

const CollectionName = "entities"

// Client wraps the Typesense API for the entity search index.
type Client interface {
	EnsureCollection(ctx context.Context) error
	// Upsert indexes the document under the entity id. Indexing the same
	// snapshot twice leaves the collection unchanged.
	Upsert(ctx context.Context, entityID string, doc map[string]any) error
	// Delete removes the document. Deleting an absent document is a no-op.
	Delete(ctx context.Context, entityID string) error
	Retrieve(ctx context.Context, entityID string) (map[string]any, error)
}

type Config struct {
	URL    string
	APIKey string
}

func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("typesense URL is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("typesense API key is required")
	}
	return nil
}

type client struct {
	ts  *typesense.Client
	cfg Config
}

func New(cfg Config) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("typesense config: %w", err)
	}

	ts := typesense.NewClient(
		typesense.WithServer(cfg.URL),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(10*time.Second),
	)

	return &client{ts: ts, cfg: cfg}, nil
}

// EnsureCollection creates the entities collection if it does not exist.
// The schema is open: entity payload shapes vary per type, so everything
// beyond the keyed fields is auto-detected.
func (c *client) EnsureCollection(ctx context.Context) error {
	schema := &api.CollectionSchema{
		Name:               CollectionName,
		EnableNestedFields: pointer.True(),
		Fields: []api.Field{
			{Name: "entity_type", Type: "string", Facet: pointer.True()},
			{Name: ".*", Type: "auto"},
		},
	}

	if _, err := c.ts.Collections().Create(ctx, schema); err != nil {
		var httpErr *typesense.HTTPError
		if errors.As(err, &httpErr) && httpErr.Status == 409 {
			return nil // already exists
		}
		return fmt.Errorf("create collection: %w", err)
	}

	slog.InfoContext(ctx, "typesense collection created", "collection", CollectionName)
	return nil
}

func (c *client) Upsert(ctx context.Context, entityID string, doc map[string]any) error {
	start := time.Now()

	body := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		body[k] = v
	}
	body["id"] = entityID

	if _, err := c.ts.Collection(CollectionName).Documents().Upsert(ctx, body, &api.DocumentIndexParameters{}); err != nil {
		return fmt.Errorf("upsert document %s: %w", entityID, err)
	}

	slog.DebugContext(ctx, "typesense document upserted",
		"entity_id", entityID,
		"duration_ms", time.Since(start).Milliseconds())

	return nil
}

func (c *client) Delete(ctx context.Context, entityID string) error {
	if _, err := c.ts.Collection(CollectionName).Document(entityID).Delete(ctx); err != nil {
		var httpErr *typesense.HTTPError
		if errors.As(err, &httpErr) && httpErr.Status == 404 {
			return nil // already gone
		}
		return fmt.Errorf("delete document %s: %w", entityID, err)
	}
	return nil
}

func (c *client) Retrieve(ctx context.Context, entityID string) (map[string]any, error) {
	doc, err := c.ts.Collection(CollectionName).Document(entityID).Retrieve(ctx)
	if err != nil {
		var httpErr *typesense.HTTPError
		if errors.As(err, &httpErr) && httpErr.Status == 404 {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("retrieve document %s: %w", entityID, err)
	}
	return doc, nil
}
