package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name          string
		raw           string
		outcome       Outcome
		payloadID     string
		stringEncoded bool
	}{
		{
			name:      "output object",
			raw:       `{"output":{"identifier":"C1","hasPart":[]}}`,
			outcome:   Normalized,
			payloadID: "C1",
		},
		{
			name:          "output string",
			raw:           `{"output":"{\"identifier\":\"C2\"}"}`,
			outcome:       Normalized,
			payloadID:     "C2",
			stringEncoded: true,
		},
		{
			name:      "invalid output string with inline payload",
			raw:       `{"identifier":"C3","output":"not json","hasPart":{"identifier":"E3"}}`,
			outcome:   Normalized,
			payloadID: "C3",
		},
		{
			name:    "invalid output string",
			raw:     `{"output":"not json"}`,
			outcome: SkippedInvalid,
		},
		{
			name:    "output string encoding a list",
			raw:     `{"output":"[1,2]"}`,
			outcome: SkippedInvalid,
		},
		{
			name:      "inline payload without output",
			raw:       `{"identifier":"C4","hasPart":[{"identifier":"E4"}]}`,
			outcome:   Normalized,
			payloadID: "C4",
		},
		{
			name:    "no output",
			raw:     `{"email_id":"m1"}`,
			outcome: SkippedNoOutput,
		},
		{
			name:    "empty output",
			raw:     `{"output":""}`,
			outcome: SkippedNoOutput,
		},
		{
			name:    "output of the wrong type",
			raw:     `{"output":42}`,
			outcome: SkippedInvalid,
		},
		{
			name:    "not an object",
			raw:     `["a"]`,
			outcome: SkippedInvalid,
		},
		{
			name:    "invalid JSON",
			raw:     `{"output":`,
			outcome: SkippedInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Normalize([]byte(tt.raw))
			assert.Equal(t, tt.outcome, res.Outcome)
			if tt.outcome != Normalized {
				assert.True(t, res.Skipped())
				assert.NotEmpty(t, res.Reason)
				assert.Nil(t, res.Payload)
				return
			}
			require.NotNil(t, res.Payload)
			assert.Equal(t, tt.payloadID, res.Payload.Str("identifier"))
			assert.Equal(t, tt.stringEncoded, res.StringEncoded)
		})
	}
}

func TestResult_EncodeRestoresStringEncoding(t *testing.T) {
	res := Normalize([]byte(`{"email_id":"m1","output":"{\"identifier\":\"C1\"}"}`))
	require.Equal(t, Normalized, res.Outcome)
	assert.Equal(t, "m1", res.RecordID())

	res.Payload.Set(FieldDrugs, List(String("aspirin")))
	rec, err := res.Encode()
	require.NoError(t, err)

	out := rec.Get("output")
	require.True(t, out.IsString())
	again, err := ParseObject([]byte(out.Text()))
	require.NoError(t, err)
	assert.Equal(t, []string{"identifier", FieldDrugs}, again.Keys())
}

func TestResult_EncodeObjectOutput(t *testing.T) {
	res := Normalize([]byte(`{"output":{"identifier":"C1"}}`))
	res.Payload.Set("extra", Bool(true))

	rec, err := res.Encode()
	require.NoError(t, err)
	assert.True(t, rec.Get("output").IsObject())
	assert.True(t, rec.Get("output").Has("extra"))
}

func TestOutcomeString(t *testing.T) {
	assert.NotEqual(t, Normalized.String(), SkippedNoOutput.String())
	assert.NotEqual(t, SkippedNoOutput.String(), SkippedInvalid.String())
	assert.Equal(t, "skipped_no_identifier", SkippedNoIdentifier.String())
	assert.True(t, Result{Outcome: SkippedNoIdentifier}.Skipped())
}
