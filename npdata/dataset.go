package npdata

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// State is the lifecycle stage of a Dataset.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateLoaded
	StateIndexed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateIndexed:
		return "indexed"
	}
	return "unknown"
}

// Paths names the files of one NPPES release. Only Main is required.
type Paths struct {
	Main              string
	OtherNames        string
	PracticeLocations string
	Endpoints         string
	Taxonomy          string
}

// Dataset is the in-memory provider store. Records are never modified after
// load; once indexed a Dataset may be shared by concurrent readers.
type Dataset struct {
	state  State
	runID  uuid.UUID
	logger *zap.Logger

	providers []*Provider

	npiIndex      map[NPI]int
	stateIndex    map[StateCode][]int
	taxonomyIndex map[string][]int

	otherNames        map[NPI][]OtherNameRecord
	practiceLocations map[NPI][]PracticeLocation
	endpoints         map[NPI][]Endpoint
	taxonomyRef       map[string]TaxonomyReference

	reports []LoadReport
}

// NewDataset wraps providers that are already in memory. The result is
// in the Loaded state; call BuildIndexes to index it.
func NewDataset(providers []*Provider) *Dataset {
	d := &Dataset{
		state:  StateLoaded,
		runID:  uuid.New(),
		logger: zap.NewNop(),
	}
	d.providers = providers
	return d
}

// Open loads the files named by paths.
func Open(ctx context.Context, paths Paths, opts LoadOptions) (*Dataset, error) {
	d := &Dataset{state: StateEmpty, runID: uuid.New()}
	d.logger = opts.logger().With(zap.String("run_id", d.runID.String()))
	opts.Logger = d.logger

	d.state = StateLoading
	providers, report, err := LoadProviders(ctx, paths.Main, opts)
	d.reports = append(d.reports, report)
	if err != nil {
		d.state = StateEmpty
		return nil, err
	}
	d.providers = providers

	if paths.OtherNames != "" {
		recs, report, err := LoadOtherNames(ctx, paths.OtherNames, opts)
		d.reports = append(d.reports, report)
		if err != nil {
			return nil, err
		}
		d.AddOtherNames(recs)
	}
	if paths.PracticeLocations != "" {
		recs, report, err := LoadPracticeLocations(ctx, paths.PracticeLocations, opts)
		d.reports = append(d.reports, report)
		if err != nil {
			return nil, err
		}
		d.AddPracticeLocations(recs)
	}
	if paths.Endpoints != "" {
		recs, report, err := LoadEndpoints(ctx, paths.Endpoints, opts)
		d.reports = append(d.reports, report)
		if err != nil {
			return nil, err
		}
		d.AddEndpoints(recs)
	}
	if paths.Taxonomy != "" {
		recs, report, err := LoadTaxonomyReference(ctx, paths.Taxonomy, opts)
		d.reports = append(d.reports, report)
		if err != nil {
			return nil, err
		}
		d.AddTaxonomyReference(recs)
	}
	d.state = StateLoaded

	if opts.BuildIndexes {
		if err := d.BuildIndexes(ctx); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// DiscoverFiles finds the NPPES files in dir by filename prefix. When several
// files share a prefix the lexically greatest (latest release) is used.
func DiscoverFiles(dir string) (Paths, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Paths{}, &Error{Kind: KindFileNotFound, Message: "cannot read directory", Path: dir, Err: err}
	}
	var found [len(fileKindPrefixes)]string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		kind, ok := DetectFileKind(e.Name())
		if !ok {
			continue
		}
		if found[kind] == "" || e.Name() > filepath.Base(found[kind]) {
			found[kind] = filepath.Join(dir, e.Name())
		}
	}
	p := Paths{
		Main:              found[MainFile],
		OtherNames:        found[OtherNameFile],
		PracticeLocations: found[PracticeLocationFile],
		Endpoints:         found[EndpointFile],
		Taxonomy:          found[TaxonomyFile],
	}
	if p.Main == "" {
		return p, &Error{
			Kind:    KindFileNotFound,
			Message: "no npidata_pfile_*.csv in directory",
			Path:    filepath.Join(dir, "npidata_pfile_*.csv"),
		}
	}
	return p, nil
}

// FromDirectory discovers and opens the files in dir.
func FromDirectory(ctx context.Context, dir string, opts LoadOptions) (*Dataset, error) {
	paths, err := DiscoverFiles(dir)
	if err != nil {
		return nil, err
	}
	return Open(ctx, paths, opts)
}

func groupByNPI[T any](recs []T, npi func(*T) NPI) map[NPI][]T {
	m := make(map[NPI][]T)
	for i := range recs {
		k := npi(&recs[i])
		m[k] = append(m[k], recs[i])
	}
	return m
}

func mergeGroups[T any](dst map[NPI][]T, src map[NPI][]T) map[NPI][]T {
	if dst == nil {
		return src
	}
	for k, v := range src {
		dst[k] = append(dst[k], v...)
	}
	return dst
}

func (d *Dataset) AddOtherNames(recs []OtherNameRecord) {
	d.otherNames = mergeGroups(d.otherNames, groupByNPI(recs, func(r *OtherNameRecord) NPI { return r.NPI }))
}

func (d *Dataset) AddPracticeLocations(recs []PracticeLocation) {
	d.practiceLocations = mergeGroups(d.practiceLocations, groupByNPI(recs, func(r *PracticeLocation) NPI { return r.NPI }))
}

func (d *Dataset) AddEndpoints(recs []Endpoint) {
	d.endpoints = mergeGroups(d.endpoints, groupByNPI(recs, func(r *Endpoint) NPI { return r.NPI }))
}

func (d *Dataset) AddTaxonomyReference(recs []TaxonomyReference) {
	if d.taxonomyRef == nil {
		d.taxonomyRef = make(map[string]TaxonomyReference, len(recs))
	}
	for _, r := range recs {
		d.taxonomyRef[r.Code] = r
	}
}

type indexChunk struct {
	npi      map[NPI]int
	dups     []NPI
	state    map[StateCode][]int
	taxonomy map[string][]int
}

// BuildIndexes builds the NPI, state and taxonomy indexes. Chunks of the
// record slice are indexed in parallel and merged in chunk order, so
// position lists stay in file order and repeated builds produce identical
// maps. For a duplicated NPI the later position wins.
func (d *Dataset) BuildIndexes(ctx context.Context) error {
	_, span := tracer.Start(ctx, "npdata.build_indexes",
		trace.WithAttributes(attribute.Int("providers", len(d.providers))))
	defer span.End()

	n := len(d.providers)
	workers := runtime.GOMAXPROCS(0)
	if workers > n/10000+1 {
		workers = n/10000 + 1
	}
	size := (n + workers - 1) / workers
	chunks := make([]indexChunk, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo, hi := w*size, min((w+1)*size, n)
		c := &chunks[w]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			*c = d.indexRange(lo, hi)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return err
	}

	npiIndex := make(map[NPI]int, n)
	stateIndex := make(map[StateCode][]int)
	taxonomyIndex := make(map[string][]int)
	var dups []NPI
	for i := range chunks {
		c := &chunks[i]
		dups = append(dups, c.dups...)
		for k, pos := range c.npi {
			if _, ok := npiIndex[k]; ok {
				dups = append(dups, k)
			}
			npiIndex[k] = pos
		}
		for k, l := range c.state {
			stateIndex[k] = append(stateIndex[k], l...)
		}
		for k, l := range c.taxonomy {
			taxonomyIndex[k] = append(taxonomyIndex[k], l...)
		}
	}

	if len(dups) > 0 {
		sort.Slice(dups, func(i, j int) bool { return dups[i] < dups[j] })
		d.logger.Warn("duplicate NPIs in main file, later rows win",
			zap.Int("count", len(dups)),
			zap.String("first", string(dups[0])))
	}

	d.npiIndex = npiIndex
	d.stateIndex = stateIndex
	d.taxonomyIndex = taxonomyIndex
	d.state = StateIndexed
	span.SetAttributes(
		attribute.Int("states", len(stateIndex)),
		attribute.Int("taxonomies", len(taxonomyIndex)),
		attribute.Int("duplicates", len(dups)),
	)
	return nil
}

func (d *Dataset) indexRange(lo, hi int) indexChunk {
	c := indexChunk{
		npi:      make(map[NPI]int, hi-lo),
		state:    make(map[StateCode][]int),
		taxonomy: make(map[string][]int),
	}
	for pos := lo; pos < hi; pos++ {
		p := d.providers[pos]
		if _, ok := c.npi[p.NPI]; ok {
			c.dups = append(c.dups, p.NPI)
		}
		c.npi[p.NPI] = pos
		if s := p.MailingAddress.State; s != "" {
			c.state[s] = append(c.state[s], pos)
		}
		for i := range p.TaxonomyCodes {
			code := p.TaxonomyCodes[i].Code
			if taxonomySeenBefore(p.TaxonomyCodes[:i], code) {
				continue
			}
			c.taxonomy[code] = append(c.taxonomy[code], pos)
		}
	}
	return c
}

func taxonomySeenBefore(prev []TaxonomyAssignment, code string) bool {
	for i := range prev {
		if prev[i].Code == code {
			return true
		}
	}
	return false
}

func (d *Dataset) State() State     { return d.state }
func (d *Dataset) RunID() uuid.UUID { return d.runID }
func (d *Dataset) Len() int         { return len(d.providers) }
func (d *Dataset) IsEmpty() bool    { return len(d.providers) == 0 }
func (d *Dataset) IsIndexed() bool  { return d.state == StateIndexed }

// Providers returns the record slice in file order. Callers must not
// modify it.
func (d *Dataset) Providers() []*Provider { return d.providers }

// Reports returns one LoadReport per file read by Open.
func (d *Dataset) Reports() []LoadReport { return d.reports }

// GetByNPI returns the provider with npi, or nil.
func (d *Dataset) GetByNPI(npi NPI) *Provider {
	if d.npiIndex != nil {
		if pos, ok := d.npiIndex[npi]; ok {
			return d.providers[pos]
		}
		return nil
	}
	var found *Provider
	for _, p := range d.providers {
		if p.NPI == npi {
			found = p
		}
	}
	return found
}

// GetByState matches the mailing address state case-insensitively. An
// unrecognised code matches nothing.
func (d *Dataset) GetByState(code string) []*Provider {
	s, ok := ParseStateCode(code)
	if !ok {
		return nil
	}
	if d.stateIndex != nil {
		return d.at(d.stateIndex[s])
	}
	var out []*Provider
	for _, p := range d.providers {
		if p.MailingAddress.State == s {
			out = append(out, p)
		}
	}
	return out
}

// GetByTaxonomy returns providers holding code in any taxonomy slot.
func (d *Dataset) GetByTaxonomy(code string) []*Provider {
	code = strings.TrimSpace(code)
	if d.taxonomyIndex != nil {
		return d.at(d.taxonomyIndex[code])
	}
	var out []*Provider
	for _, p := range d.providers {
		if p.HasTaxonomy(code) {
			out = append(out, p)
		}
	}
	return out
}

func (d *Dataset) at(positions []int) []*Provider {
	out := make([]*Provider, len(positions))
	for i, pos := range positions {
		out[i] = d.providers[pos]
	}
	return out
}

// GetTaxonomyDescription returns the reference entry for a taxonomy code.
func (d *Dataset) GetTaxonomyDescription(code string) (TaxonomyReference, bool) {
	r, ok := d.taxonomyRef[code]
	return r, ok
}

func (d *Dataset) HasTaxonomyReference() bool { return len(d.taxonomyRef) > 0 }

// TaxonomyReferences returns the loaded NUCC entries sorted by code.
func (d *Dataset) TaxonomyReferences() []TaxonomyReference {
	out := make([]TaxonomyReference, 0, len(d.taxonomyRef))
	for _, k := range sortedKeys(d.taxonomyRef) {
		out = append(out, d.taxonomyRef[k])
	}
	return out
}

func (d *Dataset) GetOtherNames(npi NPI) []OtherNameRecord         { return d.otherNames[npi] }
func (d *Dataset) GetPracticeLocations(npi NPI) []PracticeLocation { return d.practiceLocations[npi] }
func (d *Dataset) GetEndpoints(npi NPI) []Endpoint                 { return d.endpoints[npi] }

// StateIndex exposes the state index for inspection. Nil before indexing.
func (d *Dataset) StateIndex() map[StateCode][]int { return d.stateIndex }

// TaxonomyIndex exposes the taxonomy index for inspection. Nil before
// indexing.
func (d *Dataset) TaxonomyIndex() map[string][]int { return d.taxonomyIndex }

// NPIIndex exposes the NPI index for inspection. Nil before indexing.
func (d *Dataset) NPIIndex() map[NPI]int { return d.npiIndex }

func flattenGroups[T any](m map[NPI][]T) []T {
	var out []T
	for _, k := range sortedKeys(m) {
		out = append(out, m[k]...)
	}
	return out
}

// OtherNameRecords returns every loaded other-name record ordered by NPI.
func (d *Dataset) OtherNameRecords() []OtherNameRecord { return flattenGroups(d.otherNames) }

func (d *Dataset) PracticeLocationRecords() []PracticeLocation {
	return flattenGroups(d.practiceLocations)
}

func (d *Dataset) EndpointRecords() []Endpoint { return flattenGroups(d.endpoints) }
