package document

import "strings"

// Outcome is the result class of normalizing one raw record.
type Outcome int

const (
	// Normalized means a usable case payload was found.
	Normalized Outcome = iota
	// SkippedNoOutput means the record carries neither an output field nor an inline payload.
	SkippedNoOutput
	// SkippedInvalid means the record or its output could not be decoded into an object.
	SkippedInvalid
	// SkippedNoIdentifier means the payload decoded but names no case. Normalize never
	// returns it; ingestion does.
	SkippedNoIdentifier
)

func (o Outcome) String() string {
	switch o {
	case Normalized:
		return "normalized"
	case SkippedNoOutput:
		return "skipped_no_output"
	case SkippedInvalid:
		return "skipped_invalid"
	case SkippedNoIdentifier:
		return "skipped_no_identifier"
	default:
		return "unknown"
	}
}

// Result is the outcome of Normalize. Payload is only set for Normalized results.
type Result struct {
	Outcome Outcome
	// Record is the decoded outer record, when the record was valid JSON.
	Record *Value
	// Payload is the case-level object holding hasPart.
	Payload *Value
	// StringEncoded records that the payload arrived as a JSON string in "output".
	StringEncoded bool
	// Reason explains a skip.
	Reason string
}

// Skipped reports whether the record was excluded.
func (r Result) Skipped() bool { return r.Outcome != Normalized }

// Normalize decodes a raw record. It never fails: problems are reported through the
// result's Outcome.
func Normalize(raw []byte) Result {
	record, err := Parse(raw)
	if err != nil {
		return Result{Outcome: SkippedInvalid, Reason: "invalid JSON wrapper: " + err.Error()}
	}
	return NormalizeValue(record)
}

// NormalizeValue resolves the payload of an already decoded record. The payload is the
// "output" object, the object encoded in an "output" string, or the record itself when
// it carries hasPart inline.
func NormalizeValue(record *Value) Result {
	if !record.IsObject() {
		return Result{Outcome: SkippedInvalid, Record: record, Reason: "record is not a JSON object"}
	}

	res := Result{Record: record}
	output := record.Get("output")

	switch {
	case output.IsObject():
		res.Outcome = Normalized
		res.Payload = output
		return res

	case output.IsString() && strings.TrimSpace(output.Text()) != "":
		if parsed, err := ParseObject([]byte(output.Text())); err == nil {
			res.Outcome = Normalized
			res.Payload = parsed
			res.StringEncoded = true
			return res
		}
		if hasInlinePayload(record) {
			res.Outcome = Normalized
			res.Payload = record
			return res
		}
		res.Outcome = SkippedInvalid
		res.Reason = "invalid 'output' JSON"
		return res

	case !output.Truthy():
		if hasInlinePayload(record) {
			res.Outcome = Normalized
			res.Payload = record
			return res
		}
		res.Outcome = SkippedNoOutput
		res.Reason = "no 'output' field"
		return res

	default:
		if hasInlinePayload(record) {
			res.Outcome = Normalized
			res.Payload = record
			return res
		}
		res.Outcome = SkippedInvalid
		res.Reason = "'output' is a " + output.Kind().String()
		return res
	}
}

func hasInlinePayload(record *Value) bool {
	return record.Get("hasPart").Truthy()
}

// Encode writes the (possibly modified) payload back into the record in the encoding it
// arrived in and returns the record.
func (r Result) Encode() (*Value, error) {
	if r.Outcome != Normalized || !r.StringEncoded {
		return r.Record, nil
	}
	data, err := r.Payload.MarshalIndent()
	if err != nil {
		return nil, err
	}
	r.Record.Set("output", String(string(data)))
	return r.Record, nil
}

// RecordID returns the producer-assigned record id (email_id), if any.
func (r Result) RecordID() string {
	return r.Record.TrimmedStr("email_id")
}
