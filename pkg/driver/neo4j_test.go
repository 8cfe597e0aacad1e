package driver_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/soundprediction/casegraph/pkg/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// skipIfNeo4jUnavailable skips the test unless NEO4J_URI points at a reachable server.
// NEO4J_USER and NEO4J_PASSWORD are read when set.
func skipIfNeo4jUnavailable(t *testing.T) *driver.Neo4jDriver {
	t.Helper()

	uri := os.Getenv("NEO4J_URI")
	if uri == "" {
		t.Skip("NEO4J_URI not set")
	}
	d, err := driver.NewNeo4jDriver(uri, os.Getenv("NEO4J_USER"), os.Getenv("NEO4J_PASSWORD"), os.Getenv("NEO4J_DATABASE"),
		driver.GraphProviderNeo4j, driver.Neo4jOptions{
			UniqueKeys: []driver.UniqueKey{{Label: "CasegraphTestEmail", KeyProp: "identifier"}},
		})
	if err != nil {
		t.Skipf("Neo4j not available at %s: %v", uri, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.VerifyConnectivity(ctx); err != nil {
		_ = d.Close(ctx)
		t.Skipf("Neo4j connection failed: %v", err)
	}
	return d
}

func TestNeo4jDriver_MergeIsIdempotent(t *testing.T) {
	d := skipIfNeo4jUnavailable(t)
	ctx := context.Background()
	defer d.Close(ctx)

	require.NoError(t, d.CreateIndices(ctx))
	require.NoError(t, d.CreateIndices(ctx), "constraints are created only once")

	a := driver.NodeRef{Label: "CasegraphTestEmail", KeyProp: "identifier", Key: "it-E1"}
	b := driver.NodeRef{Label: "CasegraphTestEmail", KeyProp: "identifier", Key: "it-E2"}
	t.Cleanup(func() {
		_, _ = neo4jExec(ctx, t, "MATCH (n:CasegraphTestEmail) DETACH DELETE n")
	})

	for i := 0; i < 2; i++ {
		err := d.ExecuteWrite(ctx, func(ctx context.Context, tx driver.Tx) error {
			if err := tx.MergeNode(ctx, driver.NodeWrite{NodeRef: a, Set: map[string]any{"subject": "s"}}); err != nil {
				return err
			}
			return tx.MergeEdge(ctx, driver.EdgeWrite{From: a, To: b, Type: "REFERS_TO_EMAIL", Set: map[string]any{"similarity_score": 0.72}, CreateEndpoints: true})
		})
		require.NoError(t, err)
	}

	records, err := neo4jExec(ctx, t, "MATCH (:CasegraphTestEmail)-[r:REFERS_TO_EMAIL]->(:CasegraphTestEmail) RETURN count(r) AS c")
	require.NoError(t, err)
	require.Len(t, records, 1)
	c, _ := records[0].Get("c")
	assert.EqualValues(t, 1, c)
}

func neo4jExec(ctx context.Context, t *testing.T, query string) ([]*neo4j.Record, error) {
	t.Helper()
	client, err := neo4j.NewDriverWithContext(os.Getenv("NEO4J_URI"), neo4j.BasicAuth(os.Getenv("NEO4J_USER"), os.Getenv("NEO4J_PASSWORD"), ""))
	if err != nil {
		return nil, err
	}
	defer client.Close(ctx)
	res, err := neo4j.ExecuteQuery(ctx, client, query, nil, neo4j.EagerResultTransformer)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}
