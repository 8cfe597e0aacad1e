package driver

import (
	"fmt"
	"sort"
	"strings"
)

// Node existence is always established in its own statement before any relationship
// statement references it; SET clauses never precede a MATCH/MERGE of both endpoints.

// BuildMergeNodeQuery renders a NodeWrite as Cypher.
func BuildMergeNodeQuery(w NodeWrite) (string, map[string]any, error) {
	if err := w.validate(); err != nil {
		return "", nil, err
	}
	params := map[string]any{"key": w.Key}

	var b strings.Builder
	fmt.Fprintf(&b, "MERGE (n:%s {%s: $key})", w.Label, w.KeyProp)

	var assignments []string
	for _, k := range sortedKeys(w.Set) {
		p := "set_" + k
		params[p] = w.Set[k]
		assignments = append(assignments, fmt.Sprintf("n.%s = $%s", k, p))
	}
	for _, k := range sortedKeys(w.Coalesce) {
		p := "coalesce_" + k
		params[p] = w.Coalesce[k]
		assignments = append(assignments, fmt.Sprintf("n.%s = coalesce(n.%s, $%s)", k, k, p))
	}
	if len(assignments) > 0 {
		b.WriteString("\nSET ")
		b.WriteString(strings.Join(assignments, ", "))
	}
	return b.String(), params, nil
}

// BuildMergeEdgeQuery renders an EdgeWrite as Cypher. Endpoints are MATCHed unless the
// write asks for them to be created.
func BuildMergeEdgeQuery(w EdgeWrite) (string, map[string]any, error) {
	if err := w.validate(); err != nil {
		return "", nil, err
	}
	params := map[string]any{
		"from_key": w.From.Key,
		"to_key":   w.To.Key,
	}

	bind := "MATCH"
	if w.CreateEndpoints {
		bind = "MERGE"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (a:%s {%s: $from_key})\n", bind, w.From.Label, w.From.KeyProp)
	fmt.Fprintf(&b, "%s (b:%s {%s: $to_key})\n", bind, w.To.Label, w.To.KeyProp)
	fmt.Fprintf(&b, "MERGE (a)-[r:%s]->(b)", w.Type)

	var assignments []string
	for _, k := range sortedKeys(w.Set) {
		p := "set_" + k
		params[p] = w.Set[k]
		assignments = append(assignments, fmt.Sprintf("r.%s = $%s", k, p))
	}
	if len(assignments) > 0 {
		b.WriteString("\nSET ")
		b.WriteString(strings.Join(assignments, ", "))
	}
	return b.String(), params, nil
}

// BuildCreateLinkedNodeQuery renders a LinkedNodeWrite as Cypher.
func BuildCreateLinkedNodeQuery(w LinkedNodeWrite) (string, map[string]any, error) {
	if err := w.validate(); err != nil {
		return "", nil, err
	}
	props := make(map[string]any, len(w.Props))
	for k, v := range w.Props {
		props[k] = v
	}
	query := fmt.Sprintf(
		"MATCH (a:%s {%s: $from_key})\nCREATE (n:%s $props)\nMERGE (a)-[:%s]->(n)",
		w.From.Label, w.From.KeyProp, w.Label, w.Type,
	)
	return query, map[string]any{"from_key": w.From.Key, "props": props}, nil
}

// UniqueKey names a label and the property that identifies its nodes.
type UniqueKey struct {
	Label   string
	KeyProp string
}

// GetConstraintQueries returns the uniqueness constraints for keys.
func GetConstraintQueries(provider GraphProvider, keys []UniqueKey) []string {
	queries := make([]string, 0, len(keys))
	for _, k := range keys {
		if ValidateIdentifier(k.Label) != nil || ValidateIdentifier(k.KeyProp) != nil {
			continue
		}
		switch provider {
		case GraphProviderMemgraph:
			queries = append(queries, fmt.Sprintf("CREATE CONSTRAINT ON (n:%s) ASSERT n.%s IS UNIQUE", k.Label, k.KeyProp))
		default:
			name := strings.ToLower(k.Label) + "_" + strings.ToLower(k.KeyProp) + "_unique"
			queries = append(queries, fmt.Sprintf(
				"CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE", name, k.Label, k.KeyProp))
		}
	}
	return queries
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
