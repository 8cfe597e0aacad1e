package ingest

import (
	"context"

	"github.com/soundprediction/casegraph/pkg/document"
	"github.com/soundprediction/casegraph/pkg/driver"
	"github.com/soundprediction/casegraph/pkg/identity"
)

// mergeCrossReferences links email to the emails it references. Identifier mentions are
// written first with no score so that a scored crossRefEmails entry for the same target
// keeps its score. Targets that were never ingested become stub Email nodes.
func (e *Engine) mergeCrossReferences(ctx context.Context, tx driver.Tx, email driver.NodeRef, doc *document.Email) error {
	for _, target := range doc.MentionsEmail {
		to := emailRef(target)
		if err := tx.MergeEdge(ctx, driver.EdgeWrite{From: email, To: to, Type: identity.RelMentionsEmail, CreateEndpoints: true}); err != nil {
			return err
		}
		if err := e.mergeReference(ctx, tx, email, to, nil); err != nil {
			return err
		}
	}
	for _, ref := range doc.CrossRefs {
		var score any
		if ref.Score != nil {
			score = *ref.Score
		}
		if err := e.mergeReference(ctx, tx, email, emailRef(ref.Target), score); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) mergeReference(ctx context.Context, tx driver.Tx, from, to driver.NodeRef, score any) error {
	return tx.MergeEdge(ctx, driver.EdgeWrite{
		From:            from,
		To:              to,
		Type:            identity.RelRefersToEmail,
		Set:             map[string]any{identity.PropSimilarityScore: score},
		CreateEndpoints: true,
	})
}

// mergeDrug upserts an RxNormDrug keyed by name. rxnorm_id and source are only written
// while unset, so the first annotation of a drug wins.
func (e *Engine) mergeDrug(ctx context.Context, tx driver.Tx, email driver.NodeRef, d document.DrugRef) error {
	if d.Name == "" {
		return nil
	}
	ref := driver.NodeRef{Label: identity.LabelDrug, KeyProp: identity.KeyName, Key: d.Name}
	if err := tx.MergeNode(ctx, driver.NodeWrite{
		NodeRef: ref,
		Coalesce: map[string]any{
			"rxnorm_id": optional(d.RxNormID),
			"source":    optional(d.Source),
		},
	}); err != nil {
		return err
	}
	return tx.MergeEdge(ctx, driver.EdgeWrite{From: email, To: ref, Type: identity.RelEmailMentionsDrug})
}

type factCategory struct {
	label string
	rel   string
	facts func(*document.EnrichedContent) []document.TextFact
}

var factCategories = []factCategory{
	{identity.LabelDecision, identity.RelHasDecision, func(c *document.EnrichedContent) []document.TextFact { return c.Decisions }},
	{identity.LabelConcern, identity.RelHasConcern, func(c *document.EnrichedContent) []document.TextFact { return c.Concerns }},
	{identity.LabelEvent, identity.RelHasEvent, func(c *document.EnrichedContent) []document.TextFact { return c.Events }},
	{identity.LabelFinancial, identity.RelHasFinancial, func(c *document.EnrichedContent) []document.TextFact { return c.Financials }},
}

// mergeEnrichedContent maps the extracted facts of one email onto the graph. Text facts
// are created per occurrence; locations and people are merged on their keys.
func (e *Engine) mergeEnrichedContent(ctx context.Context, tx driver.Tx, email driver.NodeRef, ec *document.EnrichedContent) error {
	for _, cat := range factCategories {
		for _, f := range cat.facts(ec) {
			if f.Text == "" {
				continue
			}
			props := map[string]any{"text": f.Text, "uuid": e.newID()}
			if f.Source != "" {
				props["source"] = f.Source
			}
			if err := tx.CreateLinkedNode(ctx, driver.LinkedNodeWrite{
				From:  email,
				Type:  cat.rel,
				Label: cat.label,
				Props: props,
			}); err != nil {
				return err
			}
		}
	}

	for _, loc := range ec.Locations {
		if loc.Name == "" {
			continue
		}
		ref := driver.NodeRef{Label: identity.LabelLocation, KeyProp: identity.KeyName, Key: loc.Name}
		if err := tx.MergeNode(ctx, driver.NodeWrite{
			NodeRef:  ref,
			Coalesce: map[string]any{"source": optional(loc.Source)},
		}); err != nil {
			return err
		}
		if err := tx.MergeEdge(ctx, driver.EdgeWrite{From: email, To: ref, Type: identity.RelEmailMentionsLoc}); err != nil {
			return err
		}
	}

	for _, pm := range ec.People {
		if pm.Name == "" {
			continue
		}
		key, err := e.mergePerson(ctx, tx, document.Person{Name: pm.Name, Email: pm.Email, SemanticType: identity.LabelPerson})
		if err != nil {
			return err
		}
		if key == "" {
			continue
		}
		if err := tx.MergeEdge(ctx, driver.EdgeWrite{From: email, To: personRef(key), Type: identity.RelMentionsPersonEnr}); err != nil {
			return err
		}
	}
	return nil
}
