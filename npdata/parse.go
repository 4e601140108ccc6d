package npdata

import (
	"fmt"
)

// rowParser converts raw rows of one file into typed records and keeps the
// tally of unrecognised enumeration codes seen along the way.
type rowParser struct {
	path    string
	schema  *Schema
	line    int64
	unknown map[string]int
	warn    func(msg string, npi NPI, line int64)
}

func newRowParser(path string, kind FileKind) *rowParser {
	return &rowParser{
		path:    path,
		schema:  SchemaFor(kind),
		unknown: make(map[string]int),
	}
}

func (rp *rowParser) fail(kind ErrorKind, column, value, reason string) *Error {
	msg := reason
	if value != "" {
		msg = fmt.Sprintf("invalid value '%s': %s", value, reason)
	}
	return &Error{
		Kind:    kind,
		Message: msg,
		Path:    rp.path,
		Line:    rp.line,
		Column:  column,
		Value:   value,
		Reason:  reason,
	}
}

// locate stamps a value-level error with the row's position.
func (rp *rowParser) locate(err error, column string) error {
	if e, ok := err.(*Error); ok {
		e.Path = rp.path
		e.Line = rp.line
		e.Column = column
	}
	return err
}

func (rp *rowParser) checkWidth(row []string) error {
	if len(row) != rp.schema.Len() {
		return rp.fail(KindCSVParse, "", "",
			fmt.Sprintf("expected %d fields, found %d", rp.schema.Len(), len(row)))
	}
	return nil
}

func (rp *rowParser) npi(row []string, col int) (NPI, error) {
	npi, err := ParseNPI(cell(row, col))
	if err != nil {
		return "", rp.locate(err, rp.schema.Headers[col])
	}
	return npi, nil
}

func (rp *rowParser) date(row []string, col int) (Date, error) {
	v := cell(row, col)
	if v == "" {
		return Date{}, nil
	}
	d, err := ParseDate(v)
	if err != nil {
		return Date{}, rp.locate(err, rp.schema.Headers[col])
	}
	return d, nil
}

// code parses an optional enumeration cell. Unknown codes become the zero
// value and are counted under name.
func code[T any](rp *rowParser, name, v string, parse func(string) (T, bool)) T {
	var zero T
	if v == "" {
		return zero
	}
	out, ok := parse(v)
	if !ok {
		rp.unknown[name]++
		return zero
	}
	return out
}

func (rp *rowParser) state(v string) StateCode {
	return code(rp, "state", v, ParseStateCode)
}

func (rp *rowParser) address(row []string, c addressColumns) Address {
	return Address{
		Line1:      cell(row, c.line1),
		Line2:      cell(row, c.line2),
		City:       cell(row, c.city),
		State:      rp.state(cell(row, c.state)),
		PostalCode: cell(row, c.postal),
		Country:    code(rp, "country", cell(row, c.country), ParseCountryCode),
		Phone:      cell(row, c.phone),
		Fax:        cell(row, c.fax),
	}
}

func (rp *rowParser) name(row []string, prefix, first, middle, last, suffix, credential int) Name {
	return Name{
		Prefix:     code(rp, "name_prefix", cell(row, prefix), ParseNamePrefix),
		First:      cell(row, first),
		Middle:     cell(row, middle),
		Last:       cell(row, last),
		Suffix:     code(rp, "name_suffix", cell(row, suffix), ParseNameSuffix),
		Credential: cell(row, credential),
	}
}

// parseProvider converts one main-file row.
func (rp *rowParser) parseProvider(row []string) (*Provider, error) {
	if err := rp.checkWidth(row); err != nil {
		return nil, err
	}
	l := MainLayout

	npi, err := rp.npi(row, l.NPI)
	if err != nil {
		return nil, err
	}
	p := &Provider{
		NPI:            npi,
		ReplacementNPI: cell(row, l.ReplacementNPI),
		EIN:            cell(row, l.EIN),
	}

	if v := cell(row, l.EntityType); v != "" {
		if p.EntityType, err = EntityTypeFromCode(v); err != nil {
			return nil, rp.locate(err, rp.schema.Headers[l.EntityType])
		}
	}

	dates := []struct {
		dst *Date
		col int
	}{
		{&p.EnumerationDate, l.EnumerationDate},
		{&p.LastUpdateDate, l.LastUpdateDate},
		{&p.DeactivationDate, l.DeactivationDate},
		{&p.ReactivationDate, l.ReactivationDate},
		{&p.CertificationDate, l.CertificationDate},
	}
	for _, d := range dates {
		if *d.dst, err = rp.date(row, d.col); err != nil {
			return nil, err
		}
	}

	p.Name = rp.name(row, l.Prefix, l.FirstName, l.MiddleName, l.LastName, l.Suffix, l.Credential)
	p.OtherName = rp.name(row, l.OtherPrefix, l.OtherFirstName, l.OtherMiddleName, l.OtherLastName, l.OtherSuffix, l.OtherCredential)
	p.OtherLastNameTypeCode = code(rp, "other_name_type", cell(row, l.OtherLastNameType), ParseOtherNameType)

	p.Organization = OrganizationName{
		LegalBusinessName: cell(row, l.OrgName),
		OtherName:         cell(row, l.OtherOrgName),
		OtherNameType:     code(rp, "other_name_type", cell(row, l.OtherOrgNameType), ParseOtherNameType),
	}

	p.MailingAddress = rp.address(row, l.Mailing)
	p.PracticeAddress = rp.address(row, l.Practice)

	p.DeactivationReason = code(rp, "deactivation_reason", cell(row, l.DeactivationReason), ParseDeactivationReason)
	p.Sex = code(rp, "sex", cell(row, l.Sex), ParseSex)

	p.AuthorizedOfficial = rp.authorizedOfficial(row, p)

	for i := range l.Taxonomy {
		slot := &l.Taxonomy[i]
		c := cell(row, slot.code)
		if c == "" {
			continue
		}
		sw := code(rp, "primary_taxonomy_switch", cell(row, slot.primarySwitch), ParseIndicator)
		group := cell(row, slot.group)
		p.TaxonomyCodes = append(p.TaxonomyCodes, TaxonomyAssignment{
			Code:          c,
			LicenseNumber: cell(row, slot.license),
			LicenseState:  rp.state(cell(row, slot.licenseState)),
			IsPrimary:     sw == IndicatorYes,
			PrimarySwitch: sw,
			TaxonomyGroup: group,
			GroupTaxonomy: code(rp, "group_taxonomy", group, ParseGroupTaxonomy),
		})
	}

	for j := range l.OtherIDs {
		slot := &l.OtherIDs[j]
		id := cell(row, slot.identifier)
		if id == "" {
			continue
		}
		p.OtherIdentifiers = append(p.OtherIdentifiers, OtherIdentifier{
			Identifier: id,
			TypeCode:   cell(row, slot.typeCode),
			State:      rp.state(cell(row, slot.state)),
			Issuer:     code(rp, "issuer", cell(row, slot.issuer), ParseIssuerCode),
		})
	}

	p.SoleProprietor = code(rp, "sole_proprietor", cell(row, l.SoleProprietor), ParseIndicator)
	p.OrganizationSubpart = code(rp, "organization_subpart", cell(row, l.OrganizationSubpart), ParseIndicator)
	p.ParentOrganizationLBN = cell(row, l.ParentLBN)
	p.ParentOrganizationTIN = cell(row, l.ParentTIN)

	return p, nil
}

// authorizedOfficial is only kept for organizations. Cells filled in on an
// individual row are dropped with a warning.
func (rp *rowParser) authorizedOfficial(row []string, p *Provider) *AuthorizedOfficial {
	l := MainLayout
	ao := AuthorizedOfficial{
		Name: Name{
			First:      cell(row, l.AOFirst),
			Middle:     cell(row, l.AOMiddle),
			Last:       cell(row, l.AOLast),
			Credential: cell(row, l.AOCredential),
		},
		Title: cell(row, l.AOTitle),
		Phone: cell(row, l.AOPhone),
	}
	prefix, suffix := cell(row, l.AOPrefix), cell(row, l.AOSuffix)
	if ao.Name.IsEmpty() && ao.Title == "" && ao.Phone == "" && prefix == "" && suffix == "" {
		return nil
	}
	if p.EntityType != Organization {
		if rp.warn != nil {
			rp.warn("authorized official on non-organization row ignored", p.NPI, rp.line)
		}
		return nil
	}
	ao.Name.Prefix = code(rp, "name_prefix", prefix, ParseNamePrefix)
	ao.Name.Suffix = code(rp, "name_suffix", suffix, ParseNameSuffix)
	return &ao
}

func (rp *rowParser) parseOtherName(row []string) (OtherNameRecord, error) {
	if err := rp.checkWidth(row); err != nil {
		return OtherNameRecord{}, err
	}
	npi, err := rp.npi(row, 0)
	if err != nil {
		return OtherNameRecord{}, err
	}
	return OtherNameRecord{
		NPI:      npi,
		Name:     cell(row, 1),
		TypeCode: code(rp, "other_name_type", cell(row, 2), ParseOtherNameType),
	}, nil
}

func (rp *rowParser) parsePracticeLocation(row []string) (PracticeLocation, error) {
	if err := rp.checkWidth(row); err != nil {
		return PracticeLocation{}, err
	}
	npi, err := rp.npi(row, 0)
	if err != nil {
		return PracticeLocation{}, err
	}
	return PracticeLocation{
		NPI: npi,
		Address: Address{
			Line1:      cell(row, 1),
			Line2:      cell(row, 2),
			City:       cell(row, 3),
			State:      rp.state(cell(row, 4)),
			PostalCode: cell(row, 5),
			Country:    code(rp, "country", cell(row, 6), ParseCountryCode),
			Phone:      cell(row, 7),
			Fax:        cell(row, 9),
		},
		PhoneExtension: cell(row, 8),
	}, nil
}

func (rp *rowParser) parseEndpoint(row []string) (Endpoint, error) {
	if err := rp.checkWidth(row); err != nil {
		return Endpoint{}, err
	}
	npi, err := rp.npi(row, 0)
	if err != nil {
		return Endpoint{}, err
	}
	return Endpoint{
		NPI:                          npi,
		Type:                         cell(row, 1),
		TypeDescription:              cell(row, 2),
		Endpoint:                     cell(row, 3),
		Affiliation:                  cell(row, 4),
		Description:                  cell(row, 5),
		AffiliationLegalBusinessName: cell(row, 6),
		UseCode:                      cell(row, 7),
		UseDescription:               cell(row, 8),
		OtherUseDescription:          cell(row, 9),
		ContentType:                  cell(row, 10),
		ContentDescription:           cell(row, 11),
		OtherContentDescription:      cell(row, 12),
		AffiliationAddress: Address{
			Line1:      cell(row, 13),
			Line2:      cell(row, 14),
			City:       cell(row, 15),
			State:      rp.state(cell(row, 16)),
			Country:    code(rp, "country", cell(row, 17), ParseCountryCode),
			PostalCode: cell(row, 18),
		},
	}, nil
}

func (rp *rowParser) parseTaxonomyReference(row []string) (TaxonomyReference, error) {
	if err := rp.checkWidth(row); err != nil {
		return TaxonomyReference{}, err
	}
	c := cell(row, 0)
	if c == "" {
		return TaxonomyReference{}, rp.fail(KindDataValidation, "Code", "", "taxonomy code is required")
	}
	return TaxonomyReference{
		Code:           c,
		Grouping:       cell(row, 1),
		Classification: cell(row, 2),
		Specialization: cell(row, 3),
		Definition:     cell(row, 4),
		Notes:          cell(row, 5),
		DisplayName:    cell(row, 6),
		Section:        cell(row, 7),
	}, nil
}
