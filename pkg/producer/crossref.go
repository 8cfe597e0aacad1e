package producer

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/soundprediction/casegraph/pkg/document"
)

// DefaultCrossRefThreshold is the minimum cosine similarity, exclusive, for a reference.
const DefaultCrossRefThreshold = 0.3

// CrossReferencer links records whose email bodies are textually similar. Similarity is
// the cosine of smoothed, l2-normalized TF-IDF vectors over lowercase word tokens with
// English stop words removed.
type CrossReferencer struct {
	Threshold float64
}

// crossRef is one outgoing similarity reference.
type crossRef struct {
	cid   string
	score float64
}

// Annotate writes crossRefInfo into every record carrying an email_id and returns the
// total number of references written. Only records that normalize and carry at least
// one email body form the corpus; the rest get an empty reference list or, when they
// do not normalize, are left untouched.
func (c CrossReferencer) Annotate(records []*document.Value) (int, error) {
	threshold := c.Threshold
	if threshold <= 0 {
		threshold = DefaultCrossRefThreshold
	}

	results := make([]document.Result, len(records))
	// doc maps a record to its row in the corpus, -1 when it has no text
	doc := make([]int, len(records))
	var texts, cids []string
	for i, rec := range records {
		results[i] = document.NormalizeValue(rec)
		doc[i] = -1
		if results[i].Skipped() {
			continue
		}
		text := recordText(results[i].Payload)
		if text == "" {
			continue
		}
		cid := results[i].RecordID()
		if cid == "" {
			cid = strconv.Itoa(len(texts))
		}
		doc[i] = len(texts)
		texts = append(texts, text)
		cids = append(cids, cid)
	}

	sim := similarityMatrix(texts)
	total := 0
	for i, res := range results {
		if res.Skipped() || res.RecordID() == "" {
			continue
		}
		var refs []crossRef
		if row := doc[i]; sim != nil && row >= 0 {
			for j, s := range sim[row] {
				if row != j && s > threshold {
					refs = append(refs, crossRef{cid: cids[j], score: math.Round(s*1e4) / 1e4})
				}
			}
		}
		sort.SliceStable(refs, func(a, b int) bool { return refs[a].score > refs[b].score })

		entries := document.List()
		for _, r := range refs {
			e := document.Object()
			e.Set("cid", document.String(r.cid))
			e.Set("score", document.Number(r.score))
			entries.Append(e)
		}
		info := document.Object()
		info.Set(document.FieldCrossRefEmails, entries)
		info.Set("totalCrossRefs", document.Number(float64(len(refs))))
		annotationTarget(res.Payload).Set(document.FieldCrossRefInfo, info)

		if _, err := res.Encode(); err != nil {
			return total, err
		}
		total += len(refs)
	}
	return total, nil
}

// annotationTarget is the single email when hasPart is an object, otherwise the payload.
func annotationTarget(payload *document.Value) *document.Value {
	if hp := payload.Get(document.FieldHasPart); hp.IsObject() {
		return hp
	}
	return payload
}

// recordText concatenates the bodies of every email in payload, forwards included.
func recordText(payload *document.Value) string {
	var parts []string
	document.WalkEmails(payload, func(email *document.Value) {
		if body := email.TrimmedStr("body"); body != "" {
			parts = append(parts, body)
		}
	})
	return strings.Join(parts, " ")
}

// analyze splits text into lowercase tokens of at least two letters, digits or
// underscores, dropping stop words.
func analyze(text string) []string {
	var out []string
	isWord := func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' }
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !isWord(r) }) {
		if len([]rune(tok)) < 2 || englishStopWords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// similarityMatrix returns pairwise cosine similarities of texts, or nil when the
// vocabulary is empty.
func similarityMatrix(texts []string) [][]float64 {
	n := len(texts)
	tfs := make([]map[string]float64, n)
	df := make(map[string]int)
	for i, t := range texts {
		tf := make(map[string]float64)
		for _, tok := range analyze(t) {
			tf[tok]++
		}
		for tok := range tf {
			df[tok]++
		}
		tfs[i] = tf
	}
	if len(df) == 0 {
		return nil
	}

	for _, tf := range tfs {
		norm := 0.0
		for tok, f := range tf {
			w := f * (math.Log(float64(1+n)/float64(1+df[tok])) + 1)
			tf[tok] = w
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for tok := range tf {
				tf[tok] /= norm
			}
		}
	}

	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			a, b := tfs[i], tfs[j]
			if len(b) < len(a) {
				a, b = b, a
			}
			dot := 0.0
			for tok, w := range a {
				dot += w * b[tok]
			}
			sim[i][j], sim[j][i] = dot, dot
		}
	}
	return sim
}
