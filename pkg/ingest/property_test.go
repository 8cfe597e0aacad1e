package ingest_test

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/soundprediction/casegraph/pkg/document"
	"github.com/soundprediction/casegraph/pkg/driver"
	"github.com/soundprediction/casegraph/pkg/identity"
	"github.com/soundprediction/casegraph/pkg/ingest"
)

var (
	peoplePool   = []string{"a@x.com", "b@x.com", "c@x.com", "", "d@y.org"}
	mentionPool  = []string{"Boston", "Pricing", "Stamford", "Georgia"}
	mentionTypes = []string{"gpe", "topicEntity", "GPE", ""}
)

// buildCase derives a case deterministically from generated indexes, so two cases that
// share a person or mention agree on its attributes.
func buildCase(caseID int, seeds []int) *document.Case {
	c := &document.Case{Identifier: fmt.Sprintf("C%d", caseID)}
	for i, s := range seeds {
		e := &document.Email{
			Identifier: fmt.Sprintf("C%d-E%d", caseID, i),
			Subject:    fmt.Sprintf("subject %d", s),
		}
		addr := peoplePool[s%len(peoplePool)]
		e.Sender = &document.Person{Email: addr, Name: "name of " + addr}
		rcpt := peoplePool[(s+1)%len(peoplePool)]
		e.Recipients = []document.Person{{Email: rcpt, Name: "name of " + rcpt}}
		m := mentionPool[s%len(mentionPool)]
		e.Mentions = []document.Mention{{Type: mentionTypes[s%len(mentionTypes)], Name: m}}
		e.MentionsEmail = []string{fmt.Sprintf("C%d-E%d", (caseID+1)%3, s%2)}
		if s%3 == 0 {
			e.Forwarded = []*document.Email{{Identifier: e.Identifier + "-fwd", Sender: &document.Person{Name: "Fwd"}}}
		}
		c.Emails = append(c.Emails, e)
	}
	return c
}

func ingestCases(cases ...*document.Case) (*driver.MemoryDriver, error) {
	d := driver.NewMemoryDriver()
	engine := ingest.NewEngine(ingest.Options{}, nil)
	for _, c := range cases {
		err := d.ExecuteWrite(context.Background(), func(ctx context.Context, tx driver.Tx) error {
			_, err := engine.IngestCase(ctx, tx, c)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return d, nil
}

// sameGraph ingests both case lists and compares the results. A write error
// fails the property.
func sameGraph(a, b []*document.Case) bool {
	da, err := ingestCases(a...)
	if err != nil {
		return false
	}
	db, err := ingestCases(b...)
	if err != nil {
		return false
	}
	return len(da.Snapshot()) > 0 && reflect.DeepEqual(da.Snapshot(), db.Snapshot())
}

func TestEngineProperties(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	seeds := gen.SliceOfN(4, gen.IntRange(0, 59))

	properties.Property("ingesting a case twice equals ingesting it once", prop.ForAll(
		func(s []int) bool {
			c := buildCase(1, s)
			return sameGraph([]*document.Case{c}, []*document.Case{c, c})
		},
		seeds,
	))

	properties.Property("final graph does not depend on case order", prop.ForAll(
		func(a, b []int) bool {
			ca, cb := buildCase(1, a), buildCase(2, b)
			return sameGraph([]*document.Case{ca, cb}, []*document.Case{cb, ca})
		},
		seeds,
		seeds,
	))

	properties.Property("forward chain of depth N yields N emails and N-1 forwards", prop.ForAll(
		func(n int) bool {
			root := &document.Email{Identifier: "F0"}
			cur := root
			for i := 1; i < n; i++ {
				next := &document.Email{Identifier: fmt.Sprintf("F%d", i)}
				cur.Forwarded = []*document.Email{next}
				cur = next
			}
			d, err := ingestCases(&document.Case{Identifier: "chain", Emails: []*document.Email{root}})
			if err != nil {
				return false
			}
			return d.NodeCount(identity.LabelEmail) == n &&
				d.EdgeCount(identity.RelForwardedMessage) == n-1 &&
				d.EdgeCount(identity.RelHasEmail) == n
		},
		gen.IntRange(1, 300),
	))

	properties.TestingRun(t)
}
