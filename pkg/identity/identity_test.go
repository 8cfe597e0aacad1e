package identity

import (
	"testing"

	"github.com/soundprediction/casegraph/pkg/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaseKey(t *testing.T) {
	assert.Equal(t, "", CaseKey(nil))
	assert.Equal(t, "", CaseKey(&document.Case{Identifier: "   "}))
	assert.Equal(t, "C-1", CaseKey(&document.Case{Identifier: " C-1 "}))
}

func TestEmailKey(t *testing.T) {
	tests := []struct {
		name  string
		email *document.Email
		want  string
	}{
		{"nil", nil, ""},
		{"identifier wins", &document.Email{Identifier: "E1", ID: "x", Subject: "s"}, "E1"},
		{"id fallback", &document.Email{ID: " X9 ", Subject: "s"}, "X9"},
		{"composite", &document.Email{Subject: "Hello", DateSent: "2024-01-02"}, "Hello|2024-01-02"},
		{"composite without subject", &document.Email{DateSent: "2024-01-02"}, "Unknown|2024-01-02"},
		{"composite without anything", &document.Email{}, "Unknown|"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EmailKey(tt.email))
		})
	}
}

func TestPersonKey(t *testing.T) {
	assert.Equal(t, "ann@example.com", PersonKey("Ann", " ann@example.com ", AnonymousCollapse))
	assert.Equal(t, "Ann", PersonKey(" Ann ", "", AnonymousCollapse))
	assert.Equal(t, UnknownPerson, PersonKey("", " ", AnonymousCollapse))
	assert.Equal(t, "", PersonKey("", "", AnonymousSkip))
	assert.Equal(t, "Ann", PersonKey("Ann", "", AnonymousSkip))

	assert.Equal(t, UnknownPerson, PersonName("  "))
	assert.Equal(t, "Ann", PersonName(" Ann"))
}

func TestParseAnonymousPolicy(t *testing.T) {
	for in, want := range map[string]AnonymousPolicy{
		"":         AnonymousCollapse,
		"collapse": AnonymousCollapse,
		" SKIP ":   AnonymousSkip,
	} {
		got, err := ParseAnonymousPolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseAnonymousPolicy("merge")
	assert.Error(t, err)
}

func TestMentionLabel(t *testing.T) {
	assert.Equal(t, LabelPlace, MentionLabel("GPE"))
	assert.Equal(t, LabelPlace, MentionLabel(" gpe "))
	assert.Equal(t, LabelTopicEntity, MentionLabel("ORG"))
	assert.Equal(t, LabelTopicEntity, MentionLabel(""))

	assert.Equal(t, RelEmailMentionsPlace, EmailMentionRel(LabelPlace))
	assert.Equal(t, RelEmailMentionsTopic, EmailMentionRel(LabelTopicEntity))
}
