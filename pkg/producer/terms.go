package producer

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	hasLetter = regexp.MustCompile(`[a-zA-Z]`)
	titles    = []string{"Rep.", "Dr.", "Mr.", "Mrs.", "Ms.", "Prof."}
)

// IsValidDrugTerm filters candidate terms that cannot name a drug: short terms, terms
// without letters, mostly punctuation, email addresses and domains, personal titles
// and numbers.
func IsValidDrugTerm(term string) bool {
	if len([]rune(term)) < 3 {
		return false
	}
	if !hasLetter.MatchString(term) {
		return false
	}

	special := 0
	n := 0
	for _, r := range term {
		n++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != ' ' && r != '-' {
			special++
		}
	}
	if float64(special) > float64(n)*0.3 {
		return false
	}

	if strings.Contains(term, "@") || strings.Contains(term, ".com") || strings.Contains(term, ".org") {
		return false
	}
	for _, t := range titles {
		if strings.Contains(term, t) {
			return false
		}
	}

	digits := strings.NewReplacer(".", "", ",", "").Replace(term)
	if digits != "" && strings.IndexFunc(digits, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		return false
	}
	return true
}

// CandidateExtractor finds terms in free text that may name a drug or chemical.
type CandidateExtractor interface {
	Candidates(text string) []string
}

// drugStems are common pharmacological name endings.
var drugStems = []string{
	"codone", "morphine", "morphone", "fentanyl", "fentanil", "adone", "adol",
	"azepam", "azolam", "barbital", "caine", "contin", "cillin", "mycin", "cycline",
	"floxacin", "statin", "opril", "april", "sartan", "olol", "prazole", "oxetine",
	"triptan", "tidine", "profen", "phetamine", "zodone", "zepine", "mab",
}

// commonCapitalized are capitalized words that frequently appear mid-sentence in
// correspondence and never name a drug.
var commonCapitalized = map[string]bool{
	"january": true, "february": true, "march": true, "april": true, "may": true, "june": true,
	"july": true, "august": true, "september": true, "october": true, "november": true, "december": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true, "friday": true,
	"saturday": true, "sunday": true, "thanks": true, "thank": true, "regards": true,
	"please": true, "dear": true, "subject": true, "sent": true, "from": true, "the": true,
	"this": true, "that": true, "with": true, "company": true, "inc": true, "corp": true,
	"llc": true, "state": true, "states": true, "united": true, "department": true,
	"office": true, "email": true, "phone": true, "mail": true, "attorney": true,
	"general": true, "court": true, "county": true, "sales": true, "team": true,
}

// CapitalizedTermExtractor is a lightweight stand-in for a biomedical entity
// recognizer. A token is a candidate when it ends in a known drug stem, or when it is
// capitalized, not the first word of a sentence, at least four letters long and not a
// common correspondence word. Candidates are returned once, in order of appearance.
type CapitalizedTermExtractor struct {
	// Exclude adds lowercase words that are never candidates.
	Exclude map[string]bool
}

// Candidates implements CandidateExtractor.
func (x CapitalizedTermExtractor) Candidates(text string) []string {
	var out []string
	seen := make(map[string]bool)
	sentenceStart := true

	for _, tok := range tokenizeWords(text) {
		word := tok.word
		lower := strings.ToLower(word)
		start := sentenceStart || tok.afterBreak
		sentenceStart = tok.endsSentence

		if x.Exclude[lower] || seen[word] {
			continue
		}
		if isDrugStem(lower) || (!start && isCapitalized(word) && len(word) >= 4 && !commonCapitalized[lower]) {
			seen[word] = true
			out = append(out, word)
		}
	}
	return out
}

func isDrugStem(lower string) bool {
	if len(lower) < 6 {
		return false
	}
	for _, stem := range drugStems {
		if strings.HasSuffix(lower, stem) {
			return true
		}
	}
	return false
}

func isCapitalized(word string) bool {
	for _, r := range word {
		return unicode.IsUpper(r)
	}
	return false
}

type wordToken struct {
	word         string
	afterBreak   bool // preceded by a line break
	endsSentence bool // followed by . ! or ?
}

// tokenizeWords splits text into words of letters, digits and inner hyphens.
func tokenizeWords(text string) []wordToken {
	var out []wordToken
	runes := []rune(text)
	lineBreak := true
	for i := 0; i < len(runes); {
		r := runes[i]
		if !unicode.IsLetter(r) {
			if r == '\n' {
				lineBreak = true
			}
			i++
			continue
		}
		j := i
		for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) ||
			(runes[j] == '-' && j+1 < len(runes) && unicode.IsLetter(runes[j+1]))) {
			j++
		}
		tok := wordToken{word: string(runes[i:j]), afterBreak: lineBreak}
		if j < len(runes) && (runes[j] == '.' || runes[j] == '!' || runes[j] == '?') {
			tok.endsSentence = true
		}
		out = append(out, tok)
		lineBreak = false
		i = j
	}
	return out
}
