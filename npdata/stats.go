package npdata

import (
	"cmp"
	"fmt"
	"io"
	"slices"
)

// Statistics summarises a Dataset.
type Statistics struct {
	Total                 int `json:"total_providers"`
	Individual            int `json:"individual_providers"`
	Organization          int `json:"organization_providers"`
	Active                int `json:"active_providers"`
	Inactive              int `json:"inactive_providers"`
	States                int `json:"states_represented"`
	TaxonomyCodes         int `json:"unique_taxonomy_codes"`
	WithOtherNames        int `json:"providers_with_other_names"`
	WithPracticeLocations int `json:"providers_with_practice_locations"`
	WithEndpoints         int `json:"providers_with_endpoints"`

	// Warnings counts fields dropped from otherwise valid rows.
	Warnings     int64             `json:"warnings"`
	UnknownCodes map[string]int    `json:"unknown_codes,omitempty"`
	ErrorCounts  map[ErrorKind]int `json:"error_counts,omitempty"`
}

// Statistics computes counts over the whole dataset.
func (d *Dataset) Statistics() Statistics {
	s := Statistics{
		Total:        len(d.providers),
		UnknownCodes: make(map[string]int),
		ErrorCounts:  make(map[ErrorKind]int),
	}
	states := make(map[StateCode]struct{})
	taxonomies := make(map[string]struct{})
	for _, p := range d.providers {
		switch p.EntityType {
		case Individual:
			s.Individual++
		case Organization:
			s.Organization++
		}
		if p.IsActive() {
			s.Active++
		} else {
			s.Inactive++
		}
		if st := p.MailingAddress.State; st != "" {
			states[st] = struct{}{}
		}
		for i := range p.TaxonomyCodes {
			taxonomies[p.TaxonomyCodes[i].Code] = struct{}{}
		}
		if len(d.otherNames[p.NPI]) > 0 {
			s.WithOtherNames++
		}
		if len(d.practiceLocations[p.NPI]) > 0 {
			s.WithPracticeLocations++
		}
		if len(d.endpoints[p.NPI]) > 0 {
			s.WithEndpoints++
		}
	}
	s.States = len(states)
	s.TaxonomyCodes = len(taxonomies)

	for _, r := range d.reports {
		s.Warnings += r.Warnings
		for k, v := range r.UnknownCodes {
			s.UnknownCodes[k] += v
		}
		for k, v := range r.Errors {
			s.ErrorCounts[k] += v
		}
	}
	return s
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// Summary writes a human-readable report.
func (s Statistics) Summary(w io.Writer) {
	fmt.Fprintln(w, "=== NPPES Dataset Statistics ===")
	fmt.Fprintf(w, "Total Providers: %d\n", s.Total)
	fmt.Fprintf(w, "  Individual Providers: %d (%.1f%%)\n", s.Individual, percent(s.Individual, s.Total))
	fmt.Fprintf(w, "  Organization Providers: %d (%.1f%%)\n", s.Organization, percent(s.Organization, s.Total))
	fmt.Fprintf(w, "Active Providers: %d (%.1f%%)\n", s.Active, percent(s.Active, s.Total))
	fmt.Fprintf(w, "Inactive Providers: %d\n", s.Inactive)
	fmt.Fprintf(w, "States Represented: %d\n", s.States)
	fmt.Fprintf(w, "Unique Taxonomy Codes: %d\n", s.TaxonomyCodes)
	fmt.Fprintf(w, "Providers With Other Names: %d\n", s.WithOtherNames)
	fmt.Fprintf(w, "Providers With Practice Locations: %d\n", s.WithPracticeLocations)
	fmt.Fprintf(w, "Providers With Endpoints: %d\n", s.WithEndpoints)
	if s.Warnings > 0 {
		fmt.Fprintf(w, "Load Warnings: %d\n", s.Warnings)
	}

	if len(s.UnknownCodes) > 0 {
		fmt.Fprintln(w, "Unrecognized Codes:")
		for _, k := range sortedKeys(s.UnknownCodes) {
			fmt.Fprintf(w, "  %s: %d\n", k, s.UnknownCodes[k])
		}
	}
	if len(s.ErrorCounts) > 0 {
		fmt.Fprintln(w, "Skipped Rows:")
		for _, k := range sortedKeys(s.ErrorCounts) {
			fmt.Fprintf(w, "  %s: %d\n", k, s.ErrorCounts[k])
		}
	}
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
