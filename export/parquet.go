package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"nppestool/npdata"
)

const flushInterval = 100_000

// ProviderRow is the flattened Parquet schema of a provider, one row per NPI.
type ProviderRow struct {
	NPI               string   `parquet:"npi"`
	EntityType        *string  `parquet:"entity_type,optional"`
	DisplayName       string   `parquet:"display_name"`
	OrganizationName  *string  `parquet:"organization_name,optional"`
	LastName          *string  `parquet:"last_name,optional"`
	FirstName         *string  `parquet:"first_name,optional"`
	MiddleName        *string  `parquet:"middle_name,optional"`
	Credential        *string  `parquet:"credential,optional"`
	MailingLine1      *string  `parquet:"mailing_address_line1,optional"`
	MailingCity       *string  `parquet:"mailing_address_city,optional"`
	MailingState      *string  `parquet:"mailing_address_state,optional"`
	MailingPostalCode *string  `parquet:"mailing_address_postal_code,optional"`
	MailingCountry    *string  `parquet:"mailing_address_country,optional"`
	PracticeState     *string  `parquet:"practice_address_state,optional"`
	PracticePostal    *string  `parquet:"practice_address_postal_code,optional"`
	EnumerationDate   *string  `parquet:"enumeration_date,optional"`
	LastUpdateDate    *string  `parquet:"last_update_date,optional"`
	DeactivationDate  *string  `parquet:"deactivation_date,optional"`
	PrimaryTaxonomy   *string  `parquet:"primary_taxonomy,optional"`
	TaxonomyCodes     []string `parquet:"taxonomy_codes,list,optional"`
	IsActive          bool     `parquet:"is_active"`
}

// TaxonomyRow is one taxonomy assignment of a provider.
type TaxonomyRow struct {
	NPI           string  `parquet:"npi"`
	TaxonomyCode  string  `parquet:"taxonomy_code"`
	IsPrimary     bool    `parquet:"is_primary"`
	LicenseNumber *string `parquet:"license_number,optional"`
	LicenseState  *string `parquet:"license_state,optional"`
	TaxonomyGroup *string `parquet:"taxonomy_group,optional"`
}

type TaxonomyReferenceRow struct {
	Code           string  `parquet:"code"`
	Grouping       *string `parquet:"grouping,optional"`
	Classification *string `parquet:"classification,optional"`
	Specialization *string `parquet:"specialization,optional"`
	Definition     *string `parquet:"definition,optional"`
	Notes          *string `parquet:"notes,optional"`
	DisplayName    *string `parquet:"display_name,optional"`
	Section        *string `parquet:"section,optional"`
}

type OtherNameRow struct {
	NPI      string  `parquet:"npi"`
	Name     string  `parquet:"provider_other_organization_name"`
	TypeCode *string `parquet:"provider_other_organization_name_type_code,optional"`
}

// PracticeLocationRow keeps the address as a JSON document.
type PracticeLocationRow struct {
	NPI                string  `parquet:"npi"`
	AddressJSON        string  `parquet:"address_json"`
	TelephoneExtension *string `parquet:"telephone_extension,optional"`
}

type EndpointRow struct {
	NPI                    string  `parquet:"npi"`
	EndpointType           *string `parquet:"endpoint_type,optional"`
	EndpointTypeDesc       *string `parquet:"endpoint_type_description,optional"`
	Endpoint               *string `parquet:"endpoint,optional"`
	Affiliation            bool    `parquet:"affiliation"`
	Description            *string `parquet:"endpoint_description,optional"`
	AffiliationLBN         *string `parquet:"affiliation_legal_business_name,optional"`
	UseCode                *string `parquet:"use_code,optional"`
	ContentType            *string `parquet:"content_type,optional"`
	AffiliationAddressJSON *string `parquet:"affiliation_address_json,optional"`
}

// optStr maps "" to nil.
func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// rowWriter writes rows of T to a zstd-compressed Parquet file.
type rowWriter[T any] struct {
	file   *os.File
	writer *parquet.GenericWriter[T]
	count  int
}

func newRowWriter[T any](path string) (*rowWriter[T], error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create parquet file: %w", err)
	}
	writer := parquet.NewGenericWriter[T](file,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedDefault}),
		parquet.PageBufferSize(8*1024),
		parquet.DataPageStatistics(true),
		parquet.CreatedBy("nppestool", "1.0", ""),
	)
	return &rowWriter[T]{file: file, writer: writer}, nil
}

// Write appends rows, flushing a row group every flushInterval rows.
func (w *rowWriter[T]) Write(rows ...T) error {
	before := w.count
	n, err := w.writer.Write(rows)
	w.count += n
	if err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if w.count/flushInterval != before/flushInterval {
		if err := w.writer.Flush(); err != nil {
			return fmt.Errorf("flush parquet rows: %w", err)
		}
	}
	return nil
}

func (w *rowWriter[T]) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return w.file.Close()
}

func (w *rowWriter[T]) Count() int { return w.count }

// abort closes and removes a partially written file.
func (w *rowWriter[T]) abort() {
	w.writer.Close()
	w.file.Close()
	os.Remove(w.file.Name())
}

func writeRows[T any](path string, rows []T) error {
	w, err := newRowWriter[T](path)
	if err != nil {
		return exportError("create parquet", path, err)
	}
	for start := 0; start < len(rows); start += 10_000 {
		if err := w.Write(rows[start:min(start+10_000, len(rows))]...); err != nil {
			w.abort()
			return exportError("write parquet", path, err)
		}
	}
	if err := w.Close(); err != nil {
		return exportError("close parquet", path, err)
	}
	return nil
}

func dateStr(d npdata.Date) *string { return optStr(d.String()) }

// NewProviderRow flattens p.
func NewProviderRow(p *npdata.Provider) ProviderRow {
	row := ProviderRow{
		NPI:               string(p.NPI),
		EntityType:        optStr(p.EntityType.Code()),
		DisplayName:       p.DisplayName(),
		MailingLine1:      optStr(p.MailingAddress.Line1),
		MailingCity:       optStr(p.MailingAddress.City),
		MailingState:      optStr(string(p.MailingAddress.State)),
		MailingPostalCode: optStr(p.MailingAddress.PostalCode),
		MailingCountry:    optStr(string(p.MailingAddress.Country)),
		PracticeState:     optStr(string(p.PracticeAddress.State)),
		PracticePostal:    optStr(p.PracticeAddress.PostalCode),
		EnumerationDate:   dateStr(p.EnumerationDate),
		LastUpdateDate:    dateStr(p.LastUpdateDate),
		DeactivationDate:  dateStr(p.DeactivationDate),
		IsActive:          p.IsActive(),
	}
	if p.IsOrganization() {
		row.OrganizationName = optStr(p.Organization.LegalBusinessName)
	} else {
		row.LastName = optStr(p.Name.Last)
		row.FirstName = optStr(p.Name.First)
		row.MiddleName = optStr(p.Name.Middle)
		row.Credential = optStr(p.Name.Credential)
	}
	if t := p.PrimaryTaxonomy(); t != nil {
		row.PrimaryTaxonomy = optStr(t.Code)
	}
	for _, t := range p.TaxonomyCodes {
		row.TaxonomyCodes = append(row.TaxonomyCodes, t.Code)
	}
	return row
}

// writeParquet writes path with provider rows and <base>_taxonomies.parquet
// with one row per assignment.
func writeParquet(ctx context.Context, path string, providers []*npdata.Provider) ([]string, error) {
	taxPath := siblingPath(path, "_taxonomies.parquet")

	pw, err := newRowWriter[ProviderRow](path)
	if err != nil {
		return nil, exportError("create parquet", path, err)
	}
	tw, err := newRowWriter[TaxonomyRow](taxPath)
	if err != nil {
		pw.abort()
		return nil, exportError("create parquet", taxPath, err)
	}

	const batch = 10_000
	prow := make([]ProviderRow, 0, batch)
	var trow []TaxonomyRow
	flush := func() error {
		if err := pw.Write(prow...); err != nil {
			return exportError("write parquet", path, err)
		}
		if err := tw.Write(trow...); err != nil {
			return exportError("write parquet", taxPath, err)
		}
		prow, trow = prow[:0], trow[:0]
		return nil
	}

	for _, p := range providers {
		prow = append(prow, NewProviderRow(p))
		for _, t := range p.TaxonomyCodes {
			trow = append(trow, TaxonomyRow{
				NPI:           string(p.NPI),
				TaxonomyCode:  t.Code,
				IsPrimary:     t.IsPrimary,
				LicenseNumber: optStr(t.LicenseNumber),
				LicenseState:  optStr(string(t.LicenseState)),
				TaxonomyGroup: optStr(t.TaxonomyGroup),
			})
		}
		if len(prow) == batch {
			if err := ctx.Err(); err != nil {
				pw.abort()
				tw.abort()
				return nil, err
			}
			if err := flush(); err != nil {
				pw.abort()
				tw.abort()
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		pw.abort()
		tw.abort()
		return nil, err
	}
	if err := pw.Close(); err != nil {
		tw.Close()
		return nil, exportError("close parquet", path, err)
	}
	if err := tw.Close(); err != nil {
		return nil, exportError("close parquet", taxPath, err)
	}
	return []string{path, taxPath}, nil
}

func addressJSON(a npdata.Address) string {
	b, _ := json.Marshal(a)
	return string(b)
}

// Reference file names written by WriteReferenceParquet.
const (
	TaxonomyReferenceParquet = "nppes_taxonomy_reference.parquet"
	OtherNamesParquet        = "nppes_other_names.parquet"
	PracticeLocationsParquet = "nppes_practice_locations.parquet"
	EndpointsParquet         = "nppes_endpoints.parquet"
)

// WriteReferenceParquet writes each loaded reference table of ds to dir.
// Tables that were not loaded are skipped.
func WriteReferenceParquet(ctx context.Context, dir string, ds *npdata.Dataset) ([]string, error) {
	var files []string

	if refs := ds.TaxonomyReferences(); len(refs) > 0 {
		rows := make([]TaxonomyReferenceRow, len(refs))
		for i, r := range refs {
			rows[i] = TaxonomyReferenceRow{
				Code:           r.Code,
				Grouping:       optStr(r.Grouping),
				Classification: optStr(r.Classification),
				Specialization: optStr(r.Specialization),
				Definition:     optStr(r.Definition),
				Notes:          optStr(r.Notes),
				DisplayName:    optStr(r.DisplayName),
				Section:        optStr(r.Section),
			}
		}
		path := filepath.Join(dir, TaxonomyReferenceParquet)
		if err := writeRows(path, rows); err != nil {
			return files, err
		}
		files = append(files, path)
	}
	if err := ctx.Err(); err != nil {
		return files, err
	}

	if recs := ds.OtherNameRecords(); len(recs) > 0 {
		rows := make([]OtherNameRow, len(recs))
		for i, r := range recs {
			rows[i] = OtherNameRow{NPI: string(r.NPI), Name: r.Name, TypeCode: optStr(r.TypeCode.Code())}
		}
		path := filepath.Join(dir, OtherNamesParquet)
		if err := writeRows(path, rows); err != nil {
			return files, err
		}
		files = append(files, path)
	}

	if recs := ds.PracticeLocationRecords(); len(recs) > 0 {
		rows := make([]PracticeLocationRow, len(recs))
		for i, r := range recs {
			rows[i] = PracticeLocationRow{
				NPI:                string(r.NPI),
				AddressJSON:        addressJSON(r.Address),
				TelephoneExtension: optStr(r.PhoneExtension),
			}
		}
		path := filepath.Join(dir, PracticeLocationsParquet)
		if err := writeRows(path, rows); err != nil {
			return files, err
		}
		files = append(files, path)
	}

	if recs := ds.EndpointRecords(); len(recs) > 0 {
		rows := make([]EndpointRow, len(recs))
		for i, r := range recs {
			var addr *string
			if !r.AffiliationAddress.IsEmpty() {
				addr = optStr(addressJSON(r.AffiliationAddress))
			}
			rows[i] = EndpointRow{
				NPI:                    string(r.NPI),
				EndpointType:           optStr(r.Type),
				EndpointTypeDesc:       optStr(r.TypeDescription),
				Endpoint:               optStr(r.Endpoint),
				Affiliation:            r.Affiliation == "Y",
				Description:            optStr(r.Description),
				AffiliationLBN:         optStr(r.AffiliationLegalBusinessName),
				UseCode:                optStr(r.UseCode),
				ContentType:            optStr(r.ContentType),
				AffiliationAddressJSON: addr,
			}
		}
		path := filepath.Join(dir, EndpointsParquet)
		if err := writeRows(path, rows); err != nil {
			return files, err
		}
		files = append(files, path)
	}
	return files, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ReadTaxonomyReferenceParquet loads a taxonomy table written by
// WriteReferenceParquet.
func ReadTaxonomyReferenceParquet(path string) ([]npdata.TaxonomyReference, error) {
	rows, err := parquet.ReadFile[TaxonomyReferenceRow](path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy parquet %s: %w", path, err)
	}
	out := make([]npdata.TaxonomyReference, len(rows))
	for i, r := range rows {
		out[i] = npdata.TaxonomyReference{
			Code:           r.Code,
			Grouping:       deref(r.Grouping),
			Classification: deref(r.Classification),
			Specialization: deref(r.Specialization),
			Definition:     deref(r.Definition),
			Notes:          deref(r.Notes),
			DisplayName:    deref(r.DisplayName),
			Section:        deref(r.Section),
		}
	}
	return out, nil
}
