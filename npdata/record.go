package npdata

import (
	"strings"
	"time"
)

const (
	reasonNPILength = "must be exactly 10 digits"
	reasonNPIDigits = "must contain only digits"
)

// NPI is a validated 10-digit National Provider Identifier.
type NPI string

// ParseNPI validates s as an NPI. Length is checked before content, so
// "123" fails on length and "12345678AB" on digits.
func ParseNPI(s string) (NPI, error) {
	if len(s) != 10 {
		return "", &Error{
			Kind:    KindInvalidIdentifier,
			Message: "invalid NPI '" + s + "': " + reasonNPILength,
			Value:   s,
			Reason:  reasonNPILength,
		}
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", &Error{
				Kind:    KindInvalidIdentifier,
				Message: "invalid NPI '" + s + "': " + reasonNPIDigits,
				Value:   s,
				Reason:  reasonNPIDigits,
			}
		}
	}
	return NPI(s), nil
}

func (n NPI) String() string { return string(n) }

// Date is a calendar date with no time zone. The zero Date is absent.
type Date struct {
	t time.Time
}

const (
	dateLayout    = "01/02/2006"
	isoDateLayout = "2006-01-02"
)

// NewDate returns the date y-m-d.
func NewDate(y int, m time.Month, d int) Date {
	return Date{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an NPPES MM/DD/YYYY date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, &Error{
			Kind:    KindDateParse,
			Message: "cannot parse '" + s + "' as date, expected " + DateFormat,
			Value:   s,
			Reason:  "expected " + DateFormat,
		}
	}
	return Date{t: t}, nil
}

func (d Date) IsZero() bool      { return d.t.IsZero() }
func (d Date) Time() time.Time   { return d.t }
func (d Date) Year() int         { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int          { return d.t.Day() }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }

// Between reports whether d lies in [from, to]. An absent date is never
// between anything.
func (d Date) Between(from, to Date) bool {
	if d.IsZero() {
		return false
	}
	return !d.Before(from) && !d.After(to)
}

// String renders the date as YYYY-MM-DD, or "" when absent.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(isoDateLayout)
}

// NPPES renders the date in the source MM/DD/YYYY form.
func (d Date) NPPES() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	t, err := time.Parse(isoDateLayout, string(b))
	if err != nil {
		return err
	}
	*d = Date{t: t}
	return nil
}

// Address is a mailing, practice location or affiliation address.
type Address struct {
	Line1      string      `json:"line_1,omitempty"`
	Line2      string      `json:"line_2,omitempty"`
	City       string      `json:"city,omitempty"`
	State      StateCode   `json:"state,omitempty"`
	PostalCode string      `json:"postal_code,omitempty"`
	Country    CountryCode `json:"country,omitempty"`
	Phone      string      `json:"telephone,omitempty"`
	Fax        string      `json:"fax,omitempty"`
}

func (a Address) IsEmpty() bool {
	return a.Line1 == "" && a.Line2 == "" && a.City == "" && a.State == "" && a.PostalCode == ""
}

// SingleLine joins line 1, city, state and postal code with ", ".
func (a Address) SingleLine() string {
	return joinNonEmpty(", ", a.Line1, a.City, string(a.State), a.PostalCode)
}

type Name struct {
	Prefix     NamePrefix `json:"prefix,omitempty"`
	First      string     `json:"first,omitempty"`
	Middle     string     `json:"middle,omitempty"`
	Last       string     `json:"last,omitempty"`
	Suffix     NameSuffix `json:"suffix,omitempty"`
	Credential string     `json:"credential,omitempty"`
}

func (n Name) IsEmpty() bool {
	return n.Prefix == 0 && n.First == "" && n.Middle == "" && n.Last == "" && n.Suffix == 0 && n.Credential == ""
}

// Full renders "prefix first middle last suffix (credential)".
func (n Name) Full() string {
	cred := ""
	if n.Credential != "" {
		cred = "(" + n.Credential + ")"
	}
	return joinNonEmpty(" ", n.Prefix.Code(), n.First, n.Middle, n.Last, n.Suffix.Code(), cred)
}

type OrganizationName struct {
	LegalBusinessName string        `json:"legal_business_name,omitempty"`
	OtherName         string        `json:"other_name,omitempty"`
	OtherNameType     OtherNameType `json:"other_name_type,omitempty"`
}

// AuthorizedOfficial is the person empowered to act for an organization NPI.
type AuthorizedOfficial struct {
	Name  Name   `json:"name"`
	Title string `json:"title,omitempty"`
	Phone string `json:"telephone,omitempty"`
}

type TaxonomyAssignment struct {
	Code          string        `json:"code"`
	LicenseNumber string        `json:"license_number,omitempty"`
	LicenseState  StateCode     `json:"license_state,omitempty"`
	IsPrimary     bool          `json:"is_primary"`
	PrimarySwitch Indicator     `json:"primary_switch,omitempty"`
	TaxonomyGroup string        `json:"taxonomy_group,omitempty"`
	GroupTaxonomy GroupTaxonomy `json:"group_taxonomy_code,omitempty"`
}

type OtherIdentifier struct {
	Identifier string     `json:"identifier"`
	TypeCode   string     `json:"type_code,omitempty"`
	State      StateCode  `json:"state,omitempty"`
	Issuer     IssuerCode `json:"issuer,omitempty"`
}

// Provider is one row of the main npidata file.
type Provider struct {
	NPI            NPI        `json:"npi"`
	EntityType     EntityType `json:"entity_type,omitempty"`
	ReplacementNPI string     `json:"replacement_npi,omitempty"`
	EIN            string     `json:"ein,omitempty"`

	Name                  Name          `json:"provider_name"`
	OtherName             Name          `json:"provider_other_name"`
	OtherLastNameTypeCode OtherNameType `json:"provider_other_name_type,omitempty"`

	Organization OrganizationName `json:"organization_name"`

	MailingAddress  Address `json:"mailing_address"`
	PracticeAddress Address `json:"practice_address"`

	EnumerationDate   Date `json:"enumeration_date,omitempty"`
	LastUpdateDate    Date `json:"last_update_date,omitempty"`
	DeactivationDate  Date `json:"deactivation_date,omitempty"`
	ReactivationDate  Date `json:"reactivation_date,omitempty"`
	CertificationDate Date `json:"certification_date,omitempty"`

	DeactivationReason DeactivationReason `json:"deactivation_reason,omitempty"`
	Sex                Sex                `json:"provider_sex,omitempty"`

	AuthorizedOfficial *AuthorizedOfficial `json:"authorized_official,omitempty"`

	TaxonomyCodes    []TaxonomyAssignment `json:"taxonomy_codes,omitempty"`
	OtherIdentifiers []OtherIdentifier    `json:"other_identifiers,omitempty"`

	SoleProprietor        Indicator `json:"sole_proprietor,omitempty"`
	OrganizationSubpart   Indicator `json:"organization_subpart,omitempty"`
	ParentOrganizationLBN string    `json:"parent_organization_lbn,omitempty"`
	ParentOrganizationTIN string    `json:"parent_organization_tin,omitempty"`
}

// IsActive reports whether the NPI has no deactivation date.
func (p *Provider) IsActive() bool { return p.DeactivationDate.IsZero() }

func (p *Provider) IsIndividual() bool   { return p.EntityType == Individual }
func (p *Provider) IsOrganization() bool { return p.EntityType == Organization }

// PrimaryTaxonomy returns the first assignment flagged primary, or nil.
func (p *Provider) PrimaryTaxonomy() *TaxonomyAssignment {
	for i := range p.TaxonomyCodes {
		if p.TaxonomyCodes[i].IsPrimary {
			return &p.TaxonomyCodes[i]
		}
	}
	return nil
}

// HasTaxonomy reports whether any assignment carries code.
func (p *Provider) HasTaxonomy(code string) bool {
	for i := range p.TaxonomyCodes {
		if p.TaxonomyCodes[i].Code == code {
			return true
		}
	}
	return false
}

// DisplayName is the legal business name for organizations and
// "first last" for individuals.
func (p *Provider) DisplayName() string {
	switch p.EntityType {
	case Individual:
		return joinNonEmpty(" ", p.Name.First, p.Name.Last)
	case Organization:
		if p.Organization.LegalBusinessName == "" {
			return "Unknown Organization"
		}
		return p.Organization.LegalBusinessName
	}
	return "Unknown"
}

// FullDisplayName includes prefix, suffix and credential for individuals.
func (p *Provider) FullDisplayName() string {
	if p.EntityType == Individual {
		return p.Name.Full()
	}
	return p.DisplayName()
}

// OtherNameRecord is a row of the othername_pfile reference file.
type OtherNameRecord struct {
	NPI      NPI           `json:"npi"`
	Name     string        `json:"provider_other_organization_name"`
	TypeCode OtherNameType `json:"provider_other_organization_name_type_code,omitempty"`
}

// PracticeLocation is a row of the pl_pfile reference file.
type PracticeLocation struct {
	NPI            NPI     `json:"npi"`
	Address        Address `json:"address"`
	PhoneExtension string  `json:"telephone_extension,omitempty"`
}

// Endpoint is a row of the endpoint_pfile reference file.
type Endpoint struct {
	NPI                          NPI     `json:"npi"`
	Type                         string  `json:"endpoint_type,omitempty"`
	TypeDescription              string  `json:"endpoint_type_description,omitempty"`
	Endpoint                     string  `json:"endpoint,omitempty"`
	Affiliation                  string  `json:"affiliation,omitempty"`
	Description                  string  `json:"endpoint_description,omitempty"`
	AffiliationLegalBusinessName string  `json:"affiliation_legal_business_name,omitempty"`
	UseCode                      string  `json:"use_code,omitempty"`
	UseDescription               string  `json:"use_description,omitempty"`
	OtherUseDescription          string  `json:"other_use_description,omitempty"`
	ContentType                  string  `json:"content_type,omitempty"`
	ContentDescription           string  `json:"content_description,omitempty"`
	OtherContentDescription      string  `json:"other_content_description,omitempty"`
	AffiliationAddress           Address `json:"affiliation_address"`
}

// TaxonomyReference is a row of the NUCC taxonomy code set.
type TaxonomyReference struct {
	Code           string `json:"code"`
	Grouping       string `json:"grouping,omitempty"`
	Classification string `json:"classification,omitempty"`
	Specialization string `json:"specialization,omitempty"`
	Definition     string `json:"definition,omitempty"`
	Notes          string `json:"notes,omitempty"`
	DisplayName    string `json:"display_name,omitempty"`
	Section        string `json:"section,omitempty"`
}

func joinNonEmpty(sep string, parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(p)
	}
	return b.String()
}
