// Package identity derives the natural keys under which case, email, person and
// mention nodes are merged. All functions are pure.
package identity

import (
	"fmt"
	"strings"

	"github.com/soundprediction/casegraph/pkg/document"
)

// Node labels.
const (
	LabelCase         = "Case"
	LabelEmail        = "Email"
	LabelPerson       = "Person"
	LabelOrganization = "Organization"
	LabelPlace        = "Place"
	LabelTopicEntity  = "TopicEntity"
	LabelDocument     = "Document"
	LabelDrug         = "RxNormDrug"
	LabelDecision     = "Decision"
	LabelConcern      = "Concern"
	LabelEvent        = "Event"
	LabelFinancial    = "Financial"
	LabelLocation     = "Location"
)

// Key properties by label.
const (
	KeyIdentifier = "identifier"
	KeyName       = "name"
	KeyPersonKey  = "key"
)

// Relationship types.
const (
	RelHasEmail           = "HAS_EMAIL"
	RelForwardedMessage   = "FORWARDED_MESSAGE"
	RelSent               = "SENT"
	RelSentTo             = "SENT_TO"
	RelCaseMentions       = "CASE_MENTIONS"
	RelEmailMentionsPlace = "EMAIL_MENTIONS_PLACE"
	RelEmailMentionsTopic = "EMAIL_MENTIONS_TOPIC"
	RelHasAttachment      = "HAS_ATTACHMENT"
	RelCaseHasDocument    = "CASE_HAS_DOCUMENT"
	RelAffiliatedWith     = "AFFILIATED_WITH"
	RelSubsidiaryOf       = "SUBSIDIARY_OF"
	RelEmailMentionsDrug  = "EMAIL_MENTIONS_DRUG"
	RelHasDecision        = "HAS_DECISION"
	RelHasConcern         = "HAS_CONCERN"
	RelHasEvent           = "HAS_EVENT"
	RelHasFinancial       = "HAS_FINANCIAL"
	RelEmailMentionsLoc   = "EMAIL_MENTIONS_LOCATION"
	RelMentionsPersonEnr  = "MENTIONS_PERSON_ENRICHED"
	RelMentionsEmail      = "MENTIONS_EMAIL"
	RelRefersToEmail      = "REFERS_TO_EMAIL"
)

// PropSimilarityScore is the REFERS_TO_EMAIL property holding the similarity score.
const PropSimilarityScore = "similarity_score"

// UnknownPerson is the shared key of people that have neither an email nor a name.
const UnknownPerson = "Unknown"

const (
	geographicMentionType = "gpe"
	unknownSubject        = "Unknown"
	emailCompositeSep     = "|"
)

// AnonymousPolicy decides what happens to a person reference carrying neither an email
// address nor a name.
type AnonymousPolicy string

const (
	// AnonymousCollapse merges every anonymous person into the single "Unknown" node.
	AnonymousCollapse AnonymousPolicy = "collapse"
	// AnonymousSkip drops anonymous people and their edges.
	AnonymousSkip AnonymousPolicy = "skip"
)

// ParseAnonymousPolicy accepts "collapse" (the default for "") or "skip".
func ParseAnonymousPolicy(s string) (AnonymousPolicy, error) {
	switch AnonymousPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", AnonymousCollapse:
		return AnonymousCollapse, nil
	case AnonymousSkip:
		return AnonymousSkip, nil
	}
	return "", fmt.Errorf("unknown anonymous person policy %q", s)
}

// CaseKey returns the case identifier; "" means the case must be skipped.
func CaseKey(c *document.Case) string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.Identifier)
}

// EmailKey returns identifier, else id, else "subject|dateSent" with a missing subject
// rendered as "Unknown".
func EmailKey(e *document.Email) string {
	if e == nil {
		return ""
	}
	if id := strings.TrimSpace(e.Identifier); id != "" {
		return id
	}
	if id := strings.TrimSpace(e.ID); id != "" {
		return id
	}
	return CompositeEmailKey(e.Subject, e.DateSent)
}

// CompositeEmailKey builds the fallback email key from a subject and a sent date.
func CompositeEmailKey(subject, dateSent string) string {
	if subject == "" {
		subject = unknownSubject
	}
	return subject + emailCompositeSep + strings.TrimSpace(dateSent)
}

// PersonKey returns the trimmed email address, else the trimmed name. A person with
// neither resolves according to policy: "Unknown" for AnonymousCollapse, or "" (no node)
// for AnonymousSkip.
func PersonKey(name, email string, policy AnonymousPolicy) string {
	if e := strings.TrimSpace(email); e != "" {
		return e
	}
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	if policy == AnonymousSkip {
		return ""
	}
	return UnknownPerson
}

// PersonName returns the display name stored on a person node.
func PersonName(name string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return UnknownPerson
}

// MentionLabel picks the node label for a mention type tag: "gpe" (any case) is a Place,
// everything else a TopicEntity.
func MentionLabel(mentionType string) string {
	if strings.EqualFold(strings.TrimSpace(mentionType), geographicMentionType) {
		return LabelPlace
	}
	return LabelTopicEntity
}

// EmailMentionRel returns the relationship used between an email and a mention label.
func EmailMentionRel(label string) string {
	if label == LabelPlace {
		return RelEmailMentionsPlace
	}
	return RelEmailMentionsTopic
}
