package driver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jOptions tunes the underlying driver.
type Neo4jOptions struct {
	MaxConnectionPoolSize int
	ConnectTimeout        time.Duration
	// UniqueKeys are turned into uniqueness constraints by CreateIndices.
	UniqueKeys []UniqueKey
}

// Neo4jDriver implements the GraphDriver interface for Neo4j databases.
type Neo4jDriver struct {
	client     neo4j.DriverWithContext
	database   string
	provider   GraphProvider
	uniqueKeys []UniqueKey
}

// NewNeo4jDriver creates a new Neo4j driver instance. Memgraph speaks the same protocol;
// pass GraphProviderMemgraph as provider to get its constraint dialect.
func NewNeo4jDriver(uri, username, password, database string, provider GraphProvider, opts Neo4jOptions) (*Neo4jDriver, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""), func(cfg *neo4j.Config) {
		if opts.MaxConnectionPoolSize > 0 {
			cfg.MaxConnectionPoolSize = opts.MaxConnectionPoolSize
		}
		if opts.ConnectTimeout > 0 {
			cfg.SocketConnectTimeout = opts.ConnectTimeout
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if database == "" {
		database = "neo4j"
	}
	if provider == "" {
		provider = GraphProviderNeo4j
	}

	return &Neo4jDriver{
		client:     driver,
		database:   database,
		provider:   provider,
		uniqueKeys: opts.UniqueKeys,
	}, nil
}

// ExecuteWrite runs fn inside a managed write transaction. The driver may retry fn on
// transient failures, so fn must only issue idempotent statements or statements that are
// rolled back with the failed attempt.
func (n *Neo4jDriver) ExecuteWrite(ctx context.Context, fn TxFunc) error {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: n.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(ctx, &neo4jTx{tx: tx})
	})
	return classify(err)
}

type neo4jTx struct {
	tx neo4j.ManagedTransaction
}

func (t *neo4jTx) run(ctx context.Context, query string, params map[string]any) error {
	res, err := t.tx.Run(ctx, query, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

func (t *neo4jTx) MergeNode(ctx context.Context, w NodeWrite) error {
	query, params, err := BuildMergeNodeQuery(w)
	if err != nil {
		return err
	}
	if err := t.run(ctx, query, params); err != nil {
		return fmt.Errorf("merge %s: %w", w.NodeRef, err)
	}
	return nil
}

func (t *neo4jTx) MergeEdge(ctx context.Context, w EdgeWrite) error {
	query, params, err := BuildMergeEdgeQuery(w)
	if err != nil {
		return err
	}
	if err := t.run(ctx, query, params); err != nil {
		return fmt.Errorf("merge %s-[:%s]->%s: %w", w.From, w.Type, w.To, err)
	}
	return nil
}

func (t *neo4jTx) CreateLinkedNode(ctx context.Context, w LinkedNodeWrite) error {
	query, params, err := BuildCreateLinkedNodeQuery(w)
	if err != nil {
		return err
	}
	if err := t.run(ctx, query, params); err != nil {
		return fmt.Errorf("create %s linked from %s: %w", w.Label, w.From, err)
	}
	return nil
}

// CreateIndices creates one uniqueness constraint per natural key. Constraints that
// already exist are ignored.
func (n *Neo4jDriver) CreateIndices(ctx context.Context) error {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	for _, q := range GetConstraintQueries(n.provider, n.uniqueKeys) {
		res, err := session.Run(ctx, q, nil)
		if err == nil {
			_, err = res.Consume(ctx)
		}
		if err != nil {
			if !strings.Contains(err.Error(), "already exists") && !strings.Contains(err.Error(), "An equivalent") {
				return classify(err)
			}
		}
	}
	return nil
}

// Provider returns the provider type.
func (n *Neo4jDriver) Provider() GraphProvider {
	return n.provider
}

// Close closes the Neo4j driver.
func (n *Neo4jDriver) Close(ctx context.Context) error {
	return n.client.Close(ctx)
}

// VerifyConnectivity checks if the driver can connect to the database.
func (n *Neo4jDriver) VerifyConnectivity(ctx context.Context) error {
	return classify(n.client.VerifyConnectivity(ctx))
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if neo4j.IsConnectivityError(err) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
