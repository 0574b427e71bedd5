package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"tabula/internal/config"
)

// Client wraps the Milvus SDK client together with its configuration.
// Instances are created per process and injected into stores; there is no
// package-level singleton.
type Client struct {
	Client client.Client
	Config *config.MilvusConfig
}

// NewClient connects to Milvus at the configured address.
func NewClient(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("connect to milvus: %w", err)
	}
	return &Client{Client: c, Config: cfg}, nil
}

// Close shuts down the connection.
func (c *Client) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

// HealthCheck verifies the connection is usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("milvus client is nil")
	}
	if _, err := c.Client.ListCollections(ctx); err != nil {
		return fmt.Errorf("milvus health check failed: %w", err)
	}
	return nil
}

// EnsureCollection creates the fact collection and its index if they do not
// exist, then loads the collection for search.
func (c *Client) EnsureCollection(ctx context.Context, dim int) error {
	collName := c.Config.CollectionName

	exists, err := c.Client.HasCollection(ctx, collName)
	if err != nil {
		return fmt.Errorf("check collection '%s': %w", collName, err)
	}

	if !exists {
		schema := entity.NewSchema().
			WithName(collName).
			WithDescription("user facts with soft-delete relevance flag").
			WithField(entity.NewField().WithName("id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName("user_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
			WithField(entity.NewField().WithName("fact").WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096)).
			WithField(entity.NewField().WithName("description").WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096)).
			WithField(entity.NewField().WithName("examples").WithDataType(entity.FieldTypeVarChar).WithMaxLength(8192)).
			WithField(entity.NewField().WithName("message_uid").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
			WithField(entity.NewField().WithName("is_relevant").WithDataType(entity.FieldTypeBool)).
			WithField(entity.NewField().WithName("created_at").WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName("embedding").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dim)))

		if err := c.Client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("create collection '%s': %w", collName, err)
		}

		idx, err := buildIndex(c.Config)
		if err != nil {
			return err
		}
		if err := c.Client.CreateIndex(ctx, collName, "embedding", idx, false); err != nil {
			return fmt.Errorf("create index on '%s': %w", collName, err)
		}
	}

	if err := c.Client.LoadCollection(ctx, collName, false); err != nil {
		return fmt.Errorf("load collection '%s': %w", collName, err)
	}
	return nil
}

func buildIndex(cfg *config.MilvusConfig) (entity.Index, error) {
	metric := entity.MetricType(cfg.MetricType)
	if metric == "" {
		metric = entity.COSINE
	}

	switch cfg.IndexType {
	case "", "HNSW":
		idx, err := entity.NewIndexHNSW(metric, 8, 200)
		if err != nil {
			return nil, fmt.Errorf("build HNSW index: %w", err)
		}
		return idx, nil
	case "IVF_FLAT":
		idx, err := entity.NewIndexIvfFlat(metric, 128)
		if err != nil {
			return nil, fmt.Errorf("build IVF_FLAT index: %w", err)
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported index type: %s", cfg.IndexType)
	}
}
