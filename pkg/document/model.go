package document

import "strings"

// Case is the root of one ingestion unit.
type Case struct {
	Identifier            string
	SemanticType          string
	LegalStatus           string
	DateFiled             string
	ConfidentialityNotice string
	Language              string
	Mentions              []Mention
	Emails                []*Email
}

// Email is one message of a case; Forwarded holds the messages nested inside it.
type Email struct {
	Type          string
	Identifier    string
	ID            string
	SemanticType  string
	Subject       string
	DateSent      string
	Importance    string
	Body          string
	Sender        *Person
	Recipients    []Person
	Mentions      []Mention
	Attachments   []Attachment
	Forwarded     []*Email
	MentionsEmail []string
	CrossRefs     []CrossRef
	Drugs         []DrugRef
	Enriched      *EnrichedContent
}

// Person is a sender, recipient or mentioned person.
type Person struct {
	Name         string
	Email        string
	SemanticType string
	Affiliation  *Organization
}

// Organization is a person's affiliation, optionally part of a parent organization.
type Organization struct {
	Name         string
	SemanticType string
	Role         string
	Parent       *Organization
}

// Mention is a named entity mentioned by a case or an email. Type carries the "@type" tag.
type Mention struct {
	Type         string
	Name         string
	SemanticType string
	Identifier   string
	Role         string
}

// Attachment is a document attached to an email.
type Attachment struct {
	Name         string
	SemanticType string
	FileFormat   string
	Description  string
}

// DrugRef is a normalized drug mention.
type DrugRef struct {
	Name     string
	RxNormID string
	Source   string
}

// CrossRef is a directed reference from an email to another email id. Score is nil for
// identifier-only references.
type CrossRef struct {
	Target string
	Score  *float64
}

// EnrichedContent holds the LLM-extracted facts of one email.
type EnrichedContent struct {
	Decisions  []TextFact
	Concerns   []TextFact
	Events     []TextFact
	Financials []TextFact
	Locations  []LocationFact
	People     []PersonMention
	Error      string
}

// TextFact is a free-text fact such as a decision or concern.
type TextFact struct {
	Text   string
	Source string
}

// LocationFact is a location mentioned in an email body.
type LocationFact struct {
	Name   string
	Source string
}

// PersonMention is a person named in an email body.
type PersonMention struct {
	Name  string
	Email string
}

// Enrichment field names written by the content producer.
const (
	FieldDecisions  = "decisions_made"
	FieldConcerns   = "concerns_raised"
	FieldPeople     = "people_mentioned"
	FieldLocations  = "locations_mentioned"
	FieldEvents     = "events_mentioned"
	FieldFinancials = "financial_mentions"
	FieldError      = "error"

	FieldEnrichedContent = "enriched_content"
	FieldDrugs           = "drugsRXnorm"
	FieldCrossRefInfo    = "crossRefInfo"
	FieldCrossRefEmails  = "crossRefEmails"
	FieldForwarded       = "forwardedMessage"
	FieldHasPart         = "hasPart"
)

// EnrichmentFields lists the six keys of an enrichment result in producer order.
var EnrichmentFields = []string{
	FieldDecisions, FieldConcerns, FieldPeople, FieldLocations, FieldEvents, FieldFinancials,
}

// DecodeCase builds the typed case tree from a normalized payload. Drug and cross
// reference annotations stored at case level apply to every top-level email.
func DecodeCase(payload *Value) *Case {
	if !payload.IsObject() {
		return nil
	}
	c := &Case{
		Identifier:            payload.TrimmedStr("identifier"),
		SemanticType:          payload.TrimmedStr("semantic_type"),
		LegalStatus:           payload.TrimmedStr("legalStatus"),
		DateFiled:             payload.TrimmedStr("dateFiled"),
		ConfidentialityNotice: payload.Str("confidentialityNotice"),
		Language:              payload.TrimmedStr("language"),
		Mentions:              decodeMentions(payload.Get("mentions")),
	}

	caseDrugs := decodeDrugs(payload.Get(FieldDrugs))
	caseCross := decodeCrossRefs(payload.Get(FieldCrossRefInfo))

	for _, item := range payload.Get(FieldHasPart).Items() {
		e := DecodeEmail(item)
		if e == nil {
			continue
		}
		e.Drugs = append(e.Drugs, caseDrugs...)
		e.CrossRefs = append(e.CrossRefs, caseCross...)
		c.Emails = append(c.Emails, e)
	}
	return c
}

// DecodeEmail builds the typed email tree rooted at v. It returns nil when v is not an
// object. Nested forwards are decoded with an explicit stack.
func DecodeEmail(v *Value) *Email {
	if !v.IsObject() {
		return nil
	}
	type frame struct {
		src   *Value
		owner *Email
	}
	root := decodeEmailFields(v)
	stack := []frame{{src: v, owner: root}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, child := range top.src.Get(FieldForwarded).Items() {
			if !child.IsObject() {
				continue
			}
			ce := decodeEmailFields(child)
			top.owner.Forwarded = append(top.owner.Forwarded, ce)
			stack = append(stack, frame{src: child, owner: ce})
		}
	}
	return root
}

func decodeEmailFields(v *Value) *Email {
	e := &Email{
		Type:         v.TrimmedStr("@type"),
		Identifier:   v.TrimmedStr("identifier"),
		ID:           v.TrimmedStr("id"),
		SemanticType: v.TrimmedStr("semantic_type"),
		Subject:      v.Str("subject"),
		DateSent:     v.TrimmedStr("dateSent"),
		Importance:   v.TrimmedStr("importance"),
		Body:         v.Str("body"),
		Mentions:     decodeMentions(v.Get("mentions")),
		Drugs:        decodeDrugs(v.Get(FieldDrugs)),
		CrossRefs:    decodeCrossRefs(v.Get(FieldCrossRefInfo)),
	}

	if s := v.Get("sender"); s.IsObject() {
		p := decodePerson(s)
		e.Sender = &p
	}
	for _, r := range v.Get("recipient").Items() {
		if r.IsObject() {
			e.Recipients = append(e.Recipients, decodePerson(r))
		}
	}
	for _, a := range v.Get("attachments").Items() {
		if a.IsObject() {
			e.Attachments = append(e.Attachments, Attachment{
				Name:         a.TrimmedStr("name"),
				SemanticType: a.TrimmedStr("semantic_type"),
				FileFormat:   a.TrimmedStr("fileFormat"),
				Description:  a.Str("description"),
			})
		}
	}
	for _, m := range v.Get("mentionsEmail").Items() {
		if !m.IsObject() {
			continue
		}
		if id := m.TrimmedStr("identifier"); id != "" {
			e.MentionsEmail = append(e.MentionsEmail, id)
		}
	}
	if ec := v.Get(FieldEnrichedContent); ec.IsObject() {
		e.Enriched = decodeEnriched(ec)
	}
	return e
}

func decodePerson(v *Value) Person {
	p := Person{
		Name:         v.TrimmedStr("name"),
		Email:        v.TrimmedStr("email"),
		SemanticType: v.TrimmedStr("semantic_type"),
	}
	if aff := v.Get("affiliation"); aff.IsObject() {
		p.Affiliation = decodeOrganization(aff)
		if parent := aff.Get("parentOrganization"); parent.IsObject() {
			p.Affiliation.Parent = decodeOrganization(parent)
		}
	}
	return p
}

func decodeOrganization(v *Value) *Organization {
	return &Organization{
		Name:         v.TrimmedStr("name"),
		SemanticType: v.TrimmedStr("semantic_type"),
		Role:         v.TrimmedStr("role"),
	}
}

func decodeMentions(v *Value) []Mention {
	var out []Mention
	for _, m := range v.Items() {
		if !m.IsObject() {
			continue
		}
		out = append(out, Mention{
			Type:         m.TrimmedStr("@type"),
			Name:         m.TrimmedStr("name"),
			SemanticType: m.TrimmedStr("semantic_type"),
			Identifier:   m.TrimmedStr("identifier"),
			Role:         m.TrimmedStr("role"),
		})
	}
	return out
}

// defaultDrugSource is recorded for object-shaped drug references lacking a source.
const defaultDrugSource = "RxNorm"

func decodeDrugs(v *Value) []DrugRef {
	var out []DrugRef
	for _, d := range v.Items() {
		var ref DrugRef
		switch d.Kind() {
		case KindString:
			ref.Name = strings.TrimSpace(d.Text())
		case KindObject:
			ref.Name = d.FirstStr("name", "drug_name", "id")
			ref.RxNormID = d.FirstStr("rxcui", "rxnorm_id")
			ref.Source = d.FirstStr("source", "origin")
			if ref.Source == "" {
				ref.Source = defaultDrugSource
			}
		default:
			continue
		}
		if ref.Name == "" {
			continue
		}
		out = append(out, ref)
	}
	return out
}

func decodeCrossRefs(info *Value) []CrossRef {
	var out []CrossRef
	for _, c := range info.Get(FieldCrossRefEmails).Items() {
		if !c.IsObject() {
			continue
		}
		target := c.TrimmedStr("cid")
		if target == "" {
			continue
		}
		ref := CrossRef{Target: target}
		if f, ok := c.Get("score").Float(); ok {
			ref.Score = &f
		}
		out = append(out, ref)
	}
	return out
}

func decodeEnriched(v *Value) *EnrichedContent {
	ec := &EnrichedContent{
		Decisions:  decodeTextFacts(v.Get(FieldDecisions)),
		Concerns:   decodeTextFacts(v.Get(FieldConcerns)),
		Events:     decodeTextFacts(v.Get(FieldEvents)),
		Financials: decodeTextFacts(v.Get(FieldFinancials)),
	}
	if errVal := v.Get(FieldError); errVal.Truthy() {
		ec.Error = errVal.Text()
		if ec.Error == "" {
			ec.Error = "enrichment failed"
		}
	}

	for _, loc := range v.Get(FieldLocations).Items() {
		var lf LocationFact
		switch {
		case loc.IsObject():
			lf.Name = loc.TrimmedStr("name")
			lf.Source = loc.TrimmedStr("source")
		case loc.IsScalar():
			lf.Name = strings.TrimSpace(loc.Text())
		}
		if lf.Name != "" {
			ec.Locations = append(ec.Locations, lf)
		}
	}

	for _, pm := range v.Get(FieldPeople).Items() {
		var p PersonMention
		switch {
		case pm.IsObject():
			p.Name = pm.TrimmedStr("name")
			p.Email = pm.TrimmedStr("email")
		case pm.IsScalar():
			p.Name = strings.TrimSpace(pm.Text())
		}
		if p.Name != "" {
			ec.People = append(ec.People, p)
		}
	}
	return ec
}

func decodeTextFacts(v *Value) []TextFact {
	var out []TextFact
	for _, item := range v.Items() {
		var f TextFact
		switch {
		case item.IsObject():
			f.Text = item.FirstStr("text", "value")
			f.Source = item.TrimmedStr("source")
		case item.IsScalar():
			f.Text = strings.TrimSpace(item.Text())
		}
		if f.Text != "" {
			out = append(out, f)
		}
	}
	return out
}

// HasError reports whether the enrichment carries an error marker.
func (ec *EnrichedContent) HasError() bool {
	return ec != nil && ec.Error != ""
}

// WalkEmails visits every email object under payload's hasPart, including forwarded
// messages, depth first. Traversal uses an explicit stack.
func WalkEmails(payload *Value, visit func(email *Value)) {
	var stack []*Value
	items := payload.Get(FieldHasPart).Items()
	for i := len(items) - 1; i >= 0; i-- {
		stack = append(stack, items[i])
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !cur.IsObject() {
			continue
		}
		visit(cur)
		children := cur.Get(FieldForwarded).Items()
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}

// HasEnrichmentError reports whether any email of payload carries a non-empty
// enriched_content.error marker.
func HasEnrichmentError(payload *Value) bool {
	found := false
	WalkEmails(payload, func(email *Value) {
		if found {
			return
		}
		if email.Get(FieldEnrichedContent).Get(FieldError).Truthy() {
			found = true
		}
	})
	return found
}

// CountEnrichmentErrors returns how many emails of payload carry an error marker.
func CountEnrichmentErrors(payload *Value) int {
	n := 0
	WalkEmails(payload, func(email *Value) {
		if email.Get(FieldEnrichedContent).Get(FieldError).Truthy() {
			n++
		}
	})
	return n
}
