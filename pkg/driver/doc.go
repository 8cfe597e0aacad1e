// Package driver provides the graph store used by the ingestion engine.
//
// The engine only needs three idempotent writes, exposed through Tx:
//
//   - MergeNode: create a node keyed by a single property if absent, then SET or
//     coalesce-SET its attributes.
//   - MergeEdge: MATCH (or MERGE, for stub targets) both endpoints, then MERGE the
//     relationship and SET its properties.
//   - CreateLinkedNode: CREATE a fresh node linked from an existing one.
//
// Writes are grouped by GraphDriver.ExecuteWrite into one transaction; an error from the
// transaction function rolls every write back.
//
// # Implementations
//
//   - Neo4jDriver: Neo4j (and Memgraph, which speaks the same Bolt protocol) through
//     neo4j-go-driver. Uniqueness constraints on the natural keys are created by
//     CreateIndices.
//   - MemoryDriver: an in-process graph with the same MERGE/MATCH semantics, used for
//     dry runs and tests.
//
// # Usage
//
//	d, err := driver.NewNeo4jDriver(uri, user, password, "neo4j", driver.GraphProviderNeo4j, driver.Neo4jOptions{})
//	err = d.ExecuteWrite(ctx, func(ctx context.Context, tx driver.Tx) error {
//		return tx.MergeNode(ctx, driver.NodeWrite{
//			NodeRef: driver.NodeRef{Label: "Case", KeyProp: "identifier", Key: "C1"},
//		})
//	})
//
// # Thread Safety
//
// All driver implementations are safe for concurrent use from multiple goroutines.
package driver
