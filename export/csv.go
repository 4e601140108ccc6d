package export

import (
	"context"
	"encoding/csv"
	"io"
	"os"

	"nppestool/npdata"
)

var (
	providerColumns = []string{"npi", "entity_type", "display_name", "state", "postal_code", "primary_taxonomy", "is_active"}
	taxonomyColumns = []string{"npi", "taxonomy_code", "is_primary", "license_number", "license_state"}
)

func yesNo(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

func newCSVWriter(w io.Writer, opts Options) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = opts.Delimiter
	return cw
}

// writeNormalizedCSV splits providers into a provider table and a taxonomy
// table keyed by NPI.
func writeNormalizedCSV(ctx context.Context, path string, providers []*npdata.Provider, opts Options) ([]string, error) {
	provPath := siblingPath(path, "_providers.csv")
	taxPath := siblingPath(path, "_taxonomies.csv")

	err := writeCSVFile(provPath, opts, providerColumns, func(cw *csv.Writer) error {
		for i, p := range providers {
			if i%10000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			primary := ""
			if t := p.PrimaryTaxonomy(); t != nil {
				primary = t.Code
			}
			if err := cw.Write([]string{
				string(p.NPI),
				p.EntityType.Code(),
				p.DisplayName(),
				string(p.MailingAddress.State),
				p.MailingAddress.PostalCode,
				primary,
				yesNo(p.IsActive()),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, exportError("write providers csv", provPath, err)
	}

	err = writeCSVFile(taxPath, opts, taxonomyColumns, func(cw *csv.Writer) error {
		for _, p := range providers {
			for _, t := range p.TaxonomyCodes {
				if err := cw.Write([]string{
					string(p.NPI),
					t.Code,
					yesNo(t.IsPrimary),
					t.LicenseNumber,
					string(t.LicenseState),
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return []string{provPath}, exportError("write taxonomies csv", taxPath, err)
	}
	return []string{provPath, taxPath}, nil
}

func writeCSVFile(path string, opts Options, header []string, body func(*csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	cw := newCSVWriter(f, opts)
	if opts.IncludeHeaders {
		if err := cw.Write(header); err != nil {
			f.Close()
			return err
		}
	}
	if err := body(cw); err != nil {
		f.Close()
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeFlatCSV writes the main file layout, one row per provider. The
// header row is always written so the output loads as a main file.
func writeFlatCSV(ctx context.Context, w io.Writer, providers []*npdata.Provider, opts Options) error {
	cw := newCSVWriter(w, opts)
	if err := cw.Write(npdata.MainSchema().Headers); err != nil {
		return err
	}
	for i, p := range providers {
		if i%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := cw.Write(p.MainRow()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
