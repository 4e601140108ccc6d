package npdata

import (
	"sort"
	"strings"
)

// KeyCount is one row of a ranked aggregation.
type KeyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// CountByState counts providers per mailing state.
func (d *Dataset) CountByState() map[StateCode]int {
	out := make(map[StateCode]int)
	for _, p := range d.providers {
		if s := p.MailingAddress.State; s != "" {
			out[s]++
		}
	}
	return out
}

// CountByTaxonomy counts taxonomy assignments per code.
func (d *Dataset) CountByTaxonomy() map[string]int {
	out := make(map[string]int)
	for _, p := range d.providers {
		for i := range p.TaxonomyCodes {
			out[p.TaxonomyCodes[i].Code]++
		}
	}
	return out
}

func (d *Dataset) CountByEntityType() map[EntityType]int {
	out := make(map[EntityType]int)
	for _, p := range d.providers {
		if p.EntityType != 0 {
			out[p.EntityType]++
		}
	}
	return out
}

// TopStates returns the n states with the most providers.
func (d *Dataset) TopStates(n int) []KeyCount {
	counts := d.CountByState()
	rows := make([]KeyCount, 0, len(counts))
	for k, v := range counts {
		rows = append(rows, KeyCount{Key: string(k), Count: v})
	}
	return topN(rows, n)
}

// TopTaxonomies returns the n most assigned taxonomy codes.
func (d *Dataset) TopTaxonomies(n int) []KeyCount {
	counts := d.CountByTaxonomy()
	rows := make([]KeyCount, 0, len(counts))
	for k, v := range counts {
		rows = append(rows, KeyCount{Key: k, Count: v})
	}
	return topN(rows, n)
}

// topN orders by descending count, ties by key.
func topN(rows []KeyCount, n int) []KeyCount {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Key < rows[j].Key
	})
	if n >= 0 && n < len(rows) {
		rows = rows[:n]
	}
	return rows
}

func (d *Dataset) EnumeratedBetween(from, to Date) []*Provider {
	return d.Query().EnumeratedBetween(from, to).Execute()
}

func (d *Dataset) UpdatedBetween(from, to Date) []*Provider {
	return d.Query().UpdatedBetween(from, to).Execute()
}

// FindByName returns providers whose display name contains substr,
// ignoring case.
func (d *Dataset) FindByName(substr string) []*Provider {
	needle := strings.ToLower(substr)
	return d.Query().Where(func(p *Provider) bool {
		return strings.Contains(strings.ToLower(p.DisplayName()), needle)
	}).Execute()
}

// EnrichedTaxonomy is a taxonomy assignment joined with its NUCC entry.
type EnrichedTaxonomy struct {
	TaxonomyAssignment
	DisplayName    string `json:"display_name,omitempty"`
	Classification string `json:"classification,omitempty"`
	Specialization string `json:"specialization,omitempty"`
}

type EnrichedProvider struct {
	Provider   *Provider          `json:"provider"`
	Taxonomies []EnrichedTaxonomy `json:"taxonomies"`
}

// EnrichTaxonomies joins every provider's assignments with the taxonomy
// reference. It fails with DataValidation when no reference is loaded.
func (d *Dataset) EnrichTaxonomies() ([]EnrichedProvider, error) {
	if !d.HasTaxonomyReference() {
		return nil, &Error{
			Kind:    KindDataValidation,
			Message: "taxonomy reference data required for enrichment",
		}
	}
	out := make([]EnrichedProvider, 0, len(d.providers))
	for _, p := range d.providers {
		ep := EnrichedProvider{Provider: p, Taxonomies: make([]EnrichedTaxonomy, len(p.TaxonomyCodes))}
		for i, t := range p.TaxonomyCodes {
			ref := d.taxonomyRef[t.Code]
			ep.Taxonomies[i] = EnrichedTaxonomy{
				TaxonomyAssignment: t,
				DisplayName:        ref.DisplayName,
				Classification:     ref.Classification,
				Specialization:     ref.Specialization,
			}
		}
		out = append(out, ep)
	}
	return out, nil
}
