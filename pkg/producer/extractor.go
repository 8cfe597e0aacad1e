package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/soundprediction/casegraph/pkg/document"
	"github.com/soundprediction/casegraph/pkg/nlp"
)

const extractionSystemPrompt = "You are an expert at analyzing email content and extracting structured information. Always return valid JSON only."

const extractionPrompt = `Analyze the following email body text and extract structured information.%s

Email Body:
%s

Extract and return a JSON object with the following fields:
1. "decisions_made": Array of decisions or conclusions
2. "concerns_raised": Array of concerns, risks, or issues mentioned
3. "people_mentioned": Array of people mentioned (beyond sender/recipient)
4. "locations_mentioned": Array of geographic locations mentioned
5. "events_mentioned": Array of events mentioned
6. "financial_mentions": Any financial figures, costs, or budget items mentioned

Return ONLY the JSON object, no additional text or markdown formatting.`

// EmailContext is the metadata sent alongside a body to the extractor.
type EmailContext struct {
	Sender   string `json:"sender"`
	DateSent string `json:"date_sent"`
	Subject  string `json:"subject"`
}

// ContentExtractor asks an LLM for the decisions, concerns, people, locations, events
// and financial figures of an email body.
type ContentExtractor struct {
	client nlp.Client
	logger *slog.Logger
}

// NewContentExtractor creates an extractor over client.
func NewContentExtractor(client nlp.Client, logger *slog.Logger) *ContentExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentExtractor{client: client, logger: logger}
}

// Extract returns the six-key enrichment object for body. On failure the object holds
// six empty lists and an error message; Extract never returns nil.
func (x *ContentExtractor) Extract(ctx context.Context, body string, emailCtx *EmailContext) *document.Value {
	contextStr := ""
	if emailCtx != nil {
		if b, err := json.MarshalIndent(emailCtx, "", "  "); err == nil {
			contextStr = "\nContext: " + string(b)
		}
	}

	resp, err := x.client.Chat(ctx, []nlp.Message{
		nlp.NewSystemMessage(extractionSystemPrompt),
		nlp.NewUserMessage(fmt.Sprintf(extractionPrompt, contextStr, body)),
	})
	if err != nil {
		x.logger.Warn("Content extraction failed", "error", err)
		return failedExtraction(err)
	}

	out, err := parseExtraction(resp.Content)
	if err != nil {
		x.logger.Warn("Content extraction returned unusable JSON", "error", err)
		return failedExtraction(err)
	}
	return out
}

// parseExtraction strips markdown fences, repairs the JSON when needed and fills
// missing keys with empty lists.
func parseExtraction(content string) (*document.Value, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	v, err := document.Parse([]byte(content))
	if err != nil {
		repaired, rerr := jsonrepair.JSONRepair(content)
		if rerr != nil {
			return nil, fmt.Errorf("parse extraction: %w", err)
		}
		if v, err = document.Parse([]byte(repaired)); err != nil {
			return nil, fmt.Errorf("parse repaired extraction: %w", err)
		}
	}
	if !v.IsObject() {
		return nil, fmt.Errorf("extraction is a %s, not an object", v.Kind())
	}
	for _, f := range document.EnrichmentFields {
		if !v.Has(f) {
			v.Set(f, document.List())
		}
	}
	return v, nil
}

func failedExtraction(err error) *document.Value {
	v := document.Object()
	for _, f := range document.EnrichmentFields {
		v.Set(f, document.List())
	}
	v.Set(document.FieldError, document.String(err.Error()))
	return v
}

// EnrichPayload sets enriched_content on every email message of payload with a
// non-blank body, forwards included. Objects without an @type are skipped together with
// their forwards. It returns the number of LLM calls and failed extractions; err is
// only set when ctx is done.
func (x *ContentExtractor) EnrichPayload(ctx context.Context, payload *document.Value) (calls, failures int, err error) {
	stack := append([]*document.Value(nil), payload.Get(document.FieldHasPart).Items()...)
	for len(stack) > 0 {
		email := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !email.IsObject() || !email.Has("@type") {
			continue
		}

		if strings.Contains(email.Str("@type"), "EmailMessage") {
			if body := email.Str("body"); strings.TrimSpace(body) != "" {
				if err := ctx.Err(); err != nil {
					return calls, failures, err
				}
				sender := email.Get("sender").Str("name")
				if sender == "" {
					sender = "Unknown"
				}
				result := x.Extract(ctx, body, &EmailContext{
					Sender:   sender,
					DateSent: email.Str("dateSent"),
					Subject:  email.Str("subject"),
				})
				email.Set(document.FieldEnrichedContent, result)
				calls++
				if result.Get(document.FieldError).Truthy() {
					failures++
				}
			}
		}
		stack = append(stack, email.Get(document.FieldForwarded).Items()...)
	}
	return calls, failures, ctx.Err()
}
