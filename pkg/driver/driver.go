package driver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// GraphProvider represents the type of graph database provider
type GraphProvider string

const (
	GraphProviderNeo4j    GraphProvider = "neo4j"
	GraphProviderMemgraph GraphProvider = "memgraph"
	GraphProviderMemory   GraphProvider = "memory"
)

var (
	// ErrUnavailable is returned when the graph store cannot be reached.
	ErrUnavailable = errors.New("graph store unavailable")
	// ErrInvalidIdentifier is returned for labels, relationship types or property names
	// that cannot be safely interpolated into a query.
	ErrInvalidIdentifier = errors.New("invalid graph identifier")
)

// NodeRef addresses a node by label and a single key property.
type NodeRef struct {
	Label   string
	KeyProp string
	Key     string
}

func (r NodeRef) String() string {
	return fmt.Sprintf("(:%s {%s: %q})", r.Label, r.KeyProp, r.Key)
}

// NodeWrite merges a node on its key and then applies property writes. Set values
// overwrite (last write wins, nil clears); Coalesce values are written only while the
// property is still unset.
type NodeWrite struct {
	NodeRef
	Set      map[string]any
	Coalesce map[string]any
}

// EdgeWrite merges a directed relationship between two nodes. Unless CreateEndpoints is
// set, both endpoints must already exist; a missing endpoint makes the write a no-op.
type EdgeWrite struct {
	From            NodeRef
	To              NodeRef
	Type            string
	Set             map[string]any
	CreateEndpoints bool
}

// LinkedNodeWrite creates a fresh, non-deduplicated node and links it from an existing
// node. Nothing is created when the source node does not exist.
type LinkedNodeWrite struct {
	From  NodeRef
	Type  string
	Label string
	Props map[string]any
}

// Tx is the set of writes available inside a write transaction.
type Tx interface {
	MergeNode(ctx context.Context, w NodeWrite) error
	MergeEdge(ctx context.Context, w EdgeWrite) error
	CreateLinkedNode(ctx context.Context, w LinkedNodeWrite) error
}

// TxFunc is the unit of work executed by GraphDriver.ExecuteWrite.
type TxFunc func(ctx context.Context, tx Tx) error

// GraphDriver defines the graph store operations the ingestion engine depends on.
type GraphDriver interface {
	// ExecuteWrite runs fn in one write transaction. A returned error rolls back every
	// write fn made.
	ExecuteWrite(ctx context.Context, fn TxFunc) error

	// CreateIndices creates the uniqueness constraints backing the natural keys.
	CreateIndices(ctx context.Context) error

	VerifyConnectivity(ctx context.Context) error
	Provider() GraphProvider
	Close(ctx context.Context) error
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier checks that name can be used as a label, relationship type or
// property name without quoting.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

func validateRef(r NodeRef) error {
	if err := ValidateIdentifier(r.Label); err != nil {
		return err
	}
	return ValidateIdentifier(r.KeyProp)
}

func validateProps(props map[string]any) error {
	for k := range props {
		if err := ValidateIdentifier(k); err != nil {
			return err
		}
	}
	return nil
}

func (w NodeWrite) validate() error {
	if err := validateRef(w.NodeRef); err != nil {
		return err
	}
	if w.Key == "" {
		return fmt.Errorf("empty key for %s node", w.Label)
	}
	if err := validateProps(w.Set); err != nil {
		return err
	}
	return validateProps(w.Coalesce)
}

func (w EdgeWrite) validate() error {
	if err := validateRef(w.From); err != nil {
		return err
	}
	if err := validateRef(w.To); err != nil {
		return err
	}
	if w.From.Key == "" || w.To.Key == "" {
		return fmt.Errorf("empty endpoint key for %s relationship", w.Type)
	}
	if err := ValidateIdentifier(w.Type); err != nil {
		return err
	}
	return validateProps(w.Set)
}

func (w LinkedNodeWrite) validate() error {
	if err := validateRef(w.From); err != nil {
		return err
	}
	if err := ValidateIdentifier(w.Type); err != nil {
		return err
	}
	if err := ValidateIdentifier(w.Label); err != nil {
		return err
	}
	return validateProps(w.Props)
}
