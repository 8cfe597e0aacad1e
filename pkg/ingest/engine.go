package ingest

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/soundprediction/casegraph/pkg/document"
	"github.com/soundprediction/casegraph/pkg/driver"
	"github.com/soundprediction/casegraph/pkg/identity"
)

// Options configures an Engine.
type Options struct {
	// AnonymousPolicy decides how people without email and name are stored.
	AnonymousPolicy identity.AnonymousPolicy
	// NewID generates the uuid property of text-fact nodes. Defaults to uuid.NewString.
	NewID func() string
}

// Engine turns decoded cases and emails into graph writes. It holds no per-case state and
// is safe for concurrent use.
type Engine struct {
	policy identity.AnonymousPolicy
	newID  func() string
	logger *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.AnonymousPolicy == "" {
		opts.AnonymousPolicy = identity.AnonymousCollapse
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Engine{policy: opts.AnonymousPolicy, newID: opts.NewID, logger: logger}
}

// Stats counts the writes issued for one case.
type Stats struct {
	Emails      int
	Nodes       int
	Edges       int
	LinkedNodes int
}

func (s *Stats) add(o Stats) {
	s.Emails += o.Emails
	s.Nodes += o.Nodes
	s.Edges += o.Edges
	s.LinkedNodes += o.LinkedNodes
}

// countingTx counts writes passed to the wrapped transaction.
type countingTx struct {
	tx    driver.Tx
	stats *Stats
}

func (c *countingTx) MergeNode(ctx context.Context, w driver.NodeWrite) error {
	c.stats.Nodes++
	return c.tx.MergeNode(ctx, w)
}

func (c *countingTx) MergeEdge(ctx context.Context, w driver.EdgeWrite) error {
	c.stats.Edges++
	return c.tx.MergeEdge(ctx, w)
}

func (c *countingTx) CreateLinkedNode(ctx context.Context, w driver.LinkedNodeWrite) error {
	c.stats.LinkedNodes++
	return c.tx.CreateLinkedNode(ctx, w)
}

// IngestCase writes the case node, its mentions and every email of the case.
// A case without identifier writes nothing; use IngestEmail for bare emails.
func (e *Engine) IngestCase(ctx context.Context, tx driver.Tx, c *document.Case) (Stats, error) {
	var stats Stats
	caseKey := identity.CaseKey(c)
	if caseKey == "" {
		return stats, nil
	}
	ctr := &countingTx{tx: tx, stats: &stats}

	if err := ctr.MergeNode(ctx, driver.NodeWrite{
		NodeRef: caseRef(caseKey),
		Set: map[string]any{
			"semantic_type":         optional(c.SemanticType),
			"legalStatus":           optional(c.LegalStatus),
			"dateFiled":             optional(c.DateFiled),
			"confidentialityNotice": optional(c.ConfidentialityNotice),
			"language":              optional(c.Language),
		},
	}); err != nil {
		return stats, err
	}
	for _, m := range c.Mentions {
		if err := e.mergeCaseMention(ctx, ctr, caseKey, m); err != nil {
			return stats, err
		}
	}

	for _, email := range c.Emails {
		s, err := e.IngestEmail(ctx, tx, caseKey, email)
		stats.add(s)
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}

type emailFrame struct {
	email     *document.Email
	parentKey string
}

// IngestEmail writes email and every message forwarded inside it. Forward chains are
// walked with an explicit stack, so their depth is bounded only by memory. Each email is
// linked to caseKey when it is non-empty.
func (e *Engine) IngestEmail(ctx context.Context, tx driver.Tx, caseKey string, email *document.Email) (Stats, error) {
	var stats Stats
	if email == nil {
		return stats, nil
	}
	ctr := &countingTx{tx: tx, stats: &stats}

	stack := []emailFrame{{email: email}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		key, err := e.ingestOne(ctx, ctr, caseKey, top.email, top.parentKey)
		if err != nil {
			return stats, err
		}
		stats.Emails++

		children := top.email.Forwarded
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, emailFrame{email: children[i], parentKey: key})
		}
	}
	return stats, nil
}

// ingestOne writes a single email without descending into its forwards and returns the
// email's key.
func (e *Engine) ingestOne(ctx context.Context, tx driver.Tx, caseKey string, email *document.Email, parentKey string) (string, error) {
	key := identity.EmailKey(email)
	ref := emailRef(key)

	if err := tx.MergeNode(ctx, driver.NodeWrite{
		NodeRef: ref,
		Set: map[string]any{
			"semantic_type": optional(email.SemanticType),
			"subject":       optional(email.Subject),
			"dateSent":      optional(email.DateSent),
			"importance":    optional(email.Importance),
			"body":          optional(email.Body),
		},
	}); err != nil {
		return "", err
	}

	if caseKey != "" {
		if err := tx.MergeEdge(ctx, driver.EdgeWrite{From: caseRef(caseKey), To: ref, Type: identity.RelHasEmail}); err != nil {
			return "", err
		}
	}
	if parentKey != "" {
		if err := tx.MergeEdge(ctx, driver.EdgeWrite{From: emailRef(parentKey), To: ref, Type: identity.RelForwardedMessage}); err != nil {
			return "", err
		}
	}

	if email.Sender != nil {
		personKey, err := e.mergePerson(ctx, tx, *email.Sender)
		if err != nil {
			return "", err
		}
		if personKey != "" {
			if err := tx.MergeEdge(ctx, driver.EdgeWrite{From: personRef(personKey), To: ref, Type: identity.RelSent}); err != nil {
				return "", err
			}
		}
	}
	for _, rcpt := range email.Recipients {
		personKey, err := e.mergePerson(ctx, tx, rcpt)
		if err != nil {
			return "", err
		}
		if personKey != "" {
			if err := tx.MergeEdge(ctx, driver.EdgeWrite{From: ref, To: personRef(personKey), Type: identity.RelSentTo}); err != nil {
				return "", err
			}
		}
	}

	for _, m := range email.Mentions {
		if err := e.mergeEmailMention(ctx, tx, ref, m); err != nil {
			return "", err
		}
	}
	for _, a := range email.Attachments {
		if err := e.mergeAttachment(ctx, tx, ref, caseKey, a); err != nil {
			return "", err
		}
	}
	for _, d := range email.Drugs {
		if err := e.mergeDrug(ctx, tx, ref, d); err != nil {
			return "", err
		}
	}
	if email.Enriched != nil {
		if err := e.mergeEnrichedContent(ctx, tx, ref, email.Enriched); err != nil {
			return "", err
		}
	}

	if err := e.mergeCrossReferences(ctx, tx, ref, email); err != nil {
		return "", err
	}
	return key, nil
}

// mergePerson upserts a person and its affiliation chain and returns the person key, or
// "" when the anonymous policy drops the person.
func (e *Engine) mergePerson(ctx context.Context, tx driver.Tx, p document.Person) (string, error) {
	key := identity.PersonKey(p.Name, p.Email, e.policy)
	if key == "" {
		return "", nil
	}
	if err := tx.MergeNode(ctx, driver.NodeWrite{
		NodeRef: personRef(key),
		Set: map[string]any{
			"name":          identity.PersonName(p.Name),
			"email":         optional(p.Email),
			"semantic_type": optional(p.SemanticType),
		},
	}); err != nil {
		return "", err
	}

	org := p.Affiliation
	if org == nil || org.Name == "" {
		return key, nil
	}
	if err := e.mergeOrganization(ctx, tx, org); err != nil {
		return "", err
	}
	if err := tx.MergeEdge(ctx, driver.EdgeWrite{From: personRef(key), To: orgRef(org.Name), Type: identity.RelAffiliatedWith}); err != nil {
		return "", err
	}

	parent := org.Parent
	if parent == nil || parent.Name == "" {
		return key, nil
	}
	if err := e.mergeOrganization(ctx, tx, parent); err != nil {
		return "", err
	}
	if err := tx.MergeEdge(ctx, driver.EdgeWrite{From: orgRef(org.Name), To: orgRef(parent.Name), Type: identity.RelSubsidiaryOf}); err != nil {
		return "", err
	}
	return key, nil
}

func (e *Engine) mergeOrganization(ctx context.Context, tx driver.Tx, org *document.Organization) error {
	return tx.MergeNode(ctx, driver.NodeWrite{
		NodeRef: orgRef(org.Name),
		Set: map[string]any{
			"semantic_type": optional(org.SemanticType),
			"role":          optional(org.Role),
		},
	})
}

func (e *Engine) mergeCaseMention(ctx context.Context, tx driver.Tx, caseKey string, m document.Mention) error {
	if m.Name == "" {
		return nil
	}
	ref := mentionRef(m)
	if err := tx.MergeNode(ctx, driver.NodeWrite{
		NodeRef: ref,
		Set: map[string]any{
			"semantic_type": optional(m.SemanticType),
			"identifier":    optional(m.Identifier),
		},
	}); err != nil {
		return err
	}
	return tx.MergeEdge(ctx, driver.EdgeWrite{From: caseRef(caseKey), To: ref, Type: identity.RelCaseMentions})
}

func (e *Engine) mergeEmailMention(ctx context.Context, tx driver.Tx, email driver.NodeRef, m document.Mention) error {
	if m.Name == "" {
		return nil
	}
	ref := mentionRef(m)
	if err := tx.MergeNode(ctx, driver.NodeWrite{
		NodeRef: ref,
		Set: map[string]any{
			"semantic_type": optional(m.SemanticType),
			"identifier":    optional(m.Identifier),
			"role":          optional(m.Role),
		},
	}); err != nil {
		return err
	}
	return tx.MergeEdge(ctx, driver.EdgeWrite{From: email, To: ref, Type: identity.EmailMentionRel(ref.Label)})
}

func (e *Engine) mergeAttachment(ctx context.Context, tx driver.Tx, email driver.NodeRef, caseKey string, a document.Attachment) error {
	if a.Name == "" {
		return nil
	}
	ref := driver.NodeRef{Label: identity.LabelDocument, KeyProp: identity.KeyName, Key: a.Name}
	if err := tx.MergeNode(ctx, driver.NodeWrite{
		NodeRef: ref,
		Set: map[string]any{
			"semantic_type": optional(a.SemanticType),
			"fileFormat":    optional(a.FileFormat),
			"description":   optional(a.Description),
		},
	}); err != nil {
		return err
	}
	if err := tx.MergeEdge(ctx, driver.EdgeWrite{From: email, To: ref, Type: identity.RelHasAttachment}); err != nil {
		return err
	}
	if caseKey == "" {
		return nil
	}
	return tx.MergeEdge(ctx, driver.EdgeWrite{From: caseRef(caseKey), To: ref, Type: identity.RelCaseHasDocument})
}

func caseRef(key string) driver.NodeRef {
	return driver.NodeRef{Label: identity.LabelCase, KeyProp: identity.KeyIdentifier, Key: key}
}

func emailRef(key string) driver.NodeRef {
	return driver.NodeRef{Label: identity.LabelEmail, KeyProp: identity.KeyIdentifier, Key: key}
}

func personRef(key string) driver.NodeRef {
	return driver.NodeRef{Label: identity.LabelPerson, KeyProp: identity.KeyPersonKey, Key: key}
}

func orgRef(name string) driver.NodeRef {
	return driver.NodeRef{Label: identity.LabelOrganization, KeyProp: identity.KeyName, Key: name}
}

func mentionRef(m document.Mention) driver.NodeRef {
	return driver.NodeRef{Label: identity.MentionLabel(m.Type), KeyProp: identity.KeyName, Key: m.Name}
}

// optional maps "" to nil so absent attributes are stored as missing properties.
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// UniqueKeys lists the natural keys the engine merges on, for store constraints.
func UniqueKeys() []driver.UniqueKey {
	return []driver.UniqueKey{
		{Label: identity.LabelCase, KeyProp: identity.KeyIdentifier},
		{Label: identity.LabelEmail, KeyProp: identity.KeyIdentifier},
		{Label: identity.LabelPerson, KeyProp: identity.KeyPersonKey},
		{Label: identity.LabelOrganization, KeyProp: identity.KeyName},
		{Label: identity.LabelPlace, KeyProp: identity.KeyName},
		{Label: identity.LabelTopicEntity, KeyProp: identity.KeyName},
		{Label: identity.LabelDocument, KeyProp: identity.KeyName},
		{Label: identity.LabelDrug, KeyProp: identity.KeyName},
		{Label: identity.LabelLocation, KeyProp: identity.KeyName},
	}
}
