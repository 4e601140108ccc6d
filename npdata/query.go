package npdata

import (
	"strings"
)

type predicate func(*Provider) bool

// Query is an AND of predicates over a Dataset. Builder methods return the
// same Query so calls can be chained.
type Query struct {
	ds      *Dataset
	preds   []predicate
	limit   int // negative: no cap
	noMatch bool

	// indexed equality filters usable as the candidate set
	stateEq    []StateCode
	taxonomyEq []string
}

// Query starts an empty query that matches every provider.
func (d *Dataset) Query() *Query {
	return &Query{ds: d, limit: -1}
}

func (q *Query) where(p predicate) *Query {
	q.preds = append(q.preds, p)
	return q
}

// State matches the mailing address state. An unrecognised code makes the
// query match nothing.
func (q *Query) State(code string) *Query {
	s, ok := ParseStateCode(code)
	if !ok {
		q.noMatch = true
		return q
	}
	q.stateEq = append(q.stateEq, s)
	return q.where(func(p *Provider) bool { return p.MailingAddress.State == s })
}

// StateIn matches any of codes. Unrecognised codes are ignored; when none is
// recognised the query matches nothing.
func (q *Query) StateIn(codes ...string) *Query {
	set := make(map[StateCode]struct{}, len(codes))
	for _, c := range codes {
		if s, ok := ParseStateCode(c); ok {
			set[s] = struct{}{}
		}
	}
	if len(set) == 0 {
		q.noMatch = true
		return q
	}
	return q.where(func(p *Provider) bool {
		_, ok := set[p.MailingAddress.State]
		return ok
	})
}

// Taxonomy matches providers holding code in any slot.
func (q *Query) Taxonomy(code string) *Query {
	code = strings.TrimSpace(code)
	q.taxonomyEq = append(q.taxonomyEq, code)
	return q.where(func(p *Provider) bool { return p.HasTaxonomy(code) })
}

// Specialty matches providers with any taxonomy whose reference display
// name contains substr, ignoring case. Codes without a reference entry
// never match.
func (q *Query) Specialty(substr string) *Query {
	needle := strings.ToLower(substr)
	codes := make(map[string]struct{})
	for code, ref := range q.ds.taxonomyRef {
		if ref.DisplayName != "" && strings.Contains(strings.ToLower(ref.DisplayName), needle) {
			codes[code] = struct{}{}
		}
	}
	if len(codes) == 0 {
		q.noMatch = true
		return q
	}
	return q.where(func(p *Provider) bool {
		for i := range p.TaxonomyCodes {
			if _, ok := codes[p.TaxonomyCodes[i].Code]; ok {
				return true
			}
		}
		return false
	})
}

func (q *Query) EntityType(et EntityType) *Query {
	return q.where(func(p *Provider) bool { return p.EntityType == et })
}

func (q *Query) ActiveOnly() *Query {
	return q.where(func(p *Provider) bool { return p.IsActive() })
}

func (q *Query) InactiveOnly() *Query {
	return q.where(func(p *Provider) bool { return !p.IsActive() })
}

// EnumeratedBetween matches enumeration dates in [from, to].
func (q *Query) EnumeratedBetween(from, to Date) *Query {
	return q.where(func(p *Provider) bool { return p.EnumerationDate.Between(from, to) })
}

// UpdatedBetween matches last update dates in [from, to].
func (q *Query) UpdatedBetween(from, to Date) *Query {
	return q.where(func(p *Provider) bool { return p.LastUpdateDate.Between(from, to) })
}

// NPIIn restricts results to an allowlist, such as one read by
// LoadNPIFilter.
func (q *Query) NPIIn(allow map[NPI]bool) *Query {
	return q.where(func(p *Provider) bool { return allow[p.NPI] })
}

// Where adds an arbitrary predicate.
func (q *Query) Where(fn func(*Provider) bool) *Query {
	return q.where(fn)
}

// Limit caps Execute at n results, so Limit(0) returns nothing. A negative n
// removes the cap.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// candidates returns the positions to scan. When exactly one indexed
// equality filter is present and the dataset is indexed, its index entry is
// used; otherwise every position is scanned.
func (q *Query) candidates() (positions []int, all bool) {
	if !q.ds.IsIndexed() || len(q.stateEq)+len(q.taxonomyEq) != 1 {
		return nil, true
	}
	if len(q.stateEq) == 1 {
		return q.ds.stateIndex[q.stateEq[0]], false
	}
	return q.ds.taxonomyIndex[q.taxonomyEq[0]], false
}

func (q *Query) matches(p *Provider) bool {
	for _, pred := range q.preds {
		if !pred(p) {
			return false
		}
	}
	return true
}

func (q *Query) scan(visit func(*Provider) bool) {
	if q.noMatch {
		return
	}
	positions, all := q.candidates()
	if all {
		for _, p := range q.ds.providers {
			if q.matches(p) && !visit(p) {
				return
			}
		}
		return
	}
	for _, pos := range positions {
		p := q.ds.providers[pos]
		if q.matches(p) && !visit(p) {
			return
		}
	}
}

// Execute returns matching providers in file order.
func (q *Query) Execute() []*Provider {
	if q.limit == 0 {
		return nil
	}
	var out []*Provider
	q.scan(func(p *Provider) bool {
		out = append(out, p)
		return q.limit < 0 || len(out) < q.limit
	})
	return out
}

// Count returns the number of matches. Limit does not apply.
func (q *Query) Count() int {
	n := 0
	q.scan(func(*Provider) bool {
		n++
		return true
	})
	return n
}
