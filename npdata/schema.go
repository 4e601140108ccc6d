package npdata

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FileKind identifies one of the five NPPES distribution files.
type FileKind int

const (
	MainFile FileKind = iota
	OtherNameFile
	PracticeLocationFile
	EndpointFile
	TaxonomyFile
)

var fileKindNames = [...]string{"main", "othername", "practice_location", "endpoint", "taxonomy"}

// filename prefixes of the monthly dissemination files
var fileKindPrefixes = [...]string{"npidata_pfile_", "othername_pfile_", "pl_pfile_", "endpoint_pfile_", "nucc_taxonomy_"}

func (k FileKind) String() string {
	if int(k) < len(fileKindNames) {
		return fileKindNames[k]
	}
	return fmt.Sprintf("FileKind(%d)", int(k))
}

// Prefix returns the filename prefix NPPES uses for k.
func (k FileKind) Prefix() string { return fileKindPrefixes[k] }

// DetectFileKind classifies a file by its base name. Header companion
// files (*_fileheader.csv) and non-CSV files are not recognised.
func DetectFileKind(path string) (FileKind, bool) {
	base := strings.ToLower(filepath.Base(path))
	base = strings.TrimSuffix(base, ".gz")
	if !strings.HasSuffix(base, ".csv") || strings.HasSuffix(base, "_fileheader.csv") {
		return 0, false
	}
	for i, p := range fileKindPrefixes {
		if strings.HasPrefix(base, p) {
			return FileKind(i), true
		}
	}
	return 0, false
}

const (
	TaxonomySlots        = 15
	OtherIdentifierSlots = 50
)

var mainHead = []string{
	"NPI",
	"Entity Type Code",
	"Replacement NPI",
	"Employer Identification Number (EIN)",
	"Provider Organization Name (Legal Business Name)",
	"Provider Last Name (Legal Name)",
	"Provider First Name",
	"Provider Middle Name",
	"Provider Name Prefix Text",
	"Provider Name Suffix Text",
	"Provider Credential Text",
	"Provider Other Organization Name",
	"Provider Other Organization Name Type Code",
	"Provider Other Last Name",
	"Provider Other First Name",
	"Provider Other Middle Name",
	"Provider Other Name Prefix Text",
	"Provider Other Name Suffix Text",
	"Provider Other Credential Text",
	"Provider Other Last Name Type Code",
	"Provider First Line Business Mailing Address",
	"Provider Second Line Business Mailing Address",
	"Provider Business Mailing Address City Name",
	"Provider Business Mailing Address State Name",
	"Provider Business Mailing Address Postal Code",
	"Provider Business Mailing Address Country Code (If outside U.S.)",
	"Provider Business Mailing Address Telephone Number",
	"Provider Business Mailing Address Fax Number",
	"Provider First Line Business Practice Location Address",
	"Provider Second Line Business Practice Location Address",
	"Provider Business Practice Location Address City Name",
	"Provider Business Practice Location Address State Name",
	"Provider Business Practice Location Address Postal Code",
	"Provider Business Practice Location Address Country Code (If outside U.S.)",
	"Provider Business Practice Location Address Telephone Number",
	"Provider Business Practice Location Address Fax Number",
	"Provider Enumeration Date",
	"Last Update Date",
	"NPI Deactivation Reason Code",
	"NPI Deactivation Date",
	"NPI Reactivation Date",
	"Provider Sex Code",
	"Authorized Official Last Name",
	"Authorized Official First Name",
	"Authorized Official Middle Name",
	"Authorized Official Title or Position",
	"Authorized Official Telephone Number",
}

var mainOrgTail = []string{
	"Is Sole Proprietor",
	"Is Organization Subpart",
	"Parent Organization LBN",
	"Parent Organization TIN",
	"Authorized Official Name Prefix Text",
	"Authorized Official Name Suffix Text",
	"Authorized Official Credential Text",
}

func taxonomyCodeHeader(i int) string {
	return fmt.Sprintf("Healthcare Provider Taxonomy Code_%d", i+1)
}
func licenseNumberHeader(i int) string { return fmt.Sprintf("Provider License Number_%d", i+1) }
func licenseStateHeader(i int) string {
	return fmt.Sprintf("Provider License Number State Code_%d", i+1)
}
func primarySwitchHeader(i int) string {
	return fmt.Sprintf("Healthcare Provider Primary Taxonomy Switch_%d", i+1)
}
func otherIDHeader(j int) string { return fmt.Sprintf("Other Provider Identifier_%d", j+1) }
func otherIDTypeHeader(j int) string {
	return fmt.Sprintf("Other Provider Identifier Type Code_%d", j+1)
}
func otherIDStateHeader(j int) string { return fmt.Sprintf("Other Provider Identifier State_%d", j+1) }
func otherIDIssuerHeader(j int) string {
	return fmt.Sprintf("Other Provider Identifier Issuer_%d", j+1)
}
func taxonomyGroupHeader(i int) string {
	return fmt.Sprintf("Healthcare Provider Taxonomy Group_%d", i+1)
}

func mainHeaders() []string {
	h := make([]string, 0, 330)
	h = append(h, mainHead...)
	for i := 0; i < TaxonomySlots; i++ {
		h = append(h, taxonomyCodeHeader(i), licenseNumberHeader(i), licenseStateHeader(i), primarySwitchHeader(i))
	}
	for j := 0; j < OtherIdentifierSlots; j++ {
		h = append(h, otherIDHeader(j), otherIDTypeHeader(j), otherIDStateHeader(j), otherIDIssuerHeader(j))
	}
	h = append(h, mainOrgTail...)
	for i := 0; i < TaxonomySlots; i++ {
		h = append(h, taxonomyGroupHeader(i))
	}
	return append(h, "Certification Date")
}

var otherNameHeaders = []string{
	"NPI",
	"Provider Other Organization Name",
	"Provider Other Organization Name Type Code",
}

var practiceLocationHeaders = []string{
	"NPI",
	"Provider Secondary Practice Location Address- Address Line 1",
	"Provider Secondary Practice Location Address-  Address Line 2",
	"Provider Secondary Practice Location Address - City Name",
	"Provider Secondary Practice Location Address - State Name",
	"Provider Secondary Practice Location Address - Postal Code",
	"Provider Secondary Practice Location Address - Country Code (If outside U.S.)",
	"Provider Secondary Practice Location Address - Telephone Number",
	"Provider Secondary Practice Location Address - Telephone Extension",
	"Provider Practice Location Address - Fax Number",
}

var endpointHeaders = []string{
	"NPI",
	"Endpoint Type",
	"Endpoint Type Description",
	"Endpoint",
	"Affiliation",
	"Endpoint Description",
	"Affiliation Legal Business Name",
	"Use Code",
	"Use Description",
	"Other Use Description",
	"Content Type",
	"Content Description",
	"Other Content Description",
	"Affiliation Address Line One",
	"Affiliation Address Line Two",
	"Affiliation Address City",
	"Affiliation Address State",
	"Affiliation Address Country",
	"Affiliation Address Postal Code",
}

var taxonomyHeaders = []string{
	"Code",
	"Grouping",
	"Classification",
	"Specialization",
	"Definition",
	"Notes",
	"Display Name",
	"Section",
}

// Schema is the ordered header list expected for one file kind.
type Schema struct {
	Kind    FileKind
	Headers []string

	index map[string]int
}

func newSchema(kind FileKind, headers []string) *Schema {
	s := &Schema{Kind: kind, Headers: headers, index: make(map[string]int, len(headers))}
	for i, h := range headers {
		s.index[h] = i
	}
	return s
}

var schemas = [...]*Schema{
	MainFile:             newSchema(MainFile, mainHeaders()),
	OtherNameFile:        newSchema(OtherNameFile, otherNameHeaders),
	PracticeLocationFile: newSchema(PracticeLocationFile, practiceLocationHeaders),
	EndpointFile:         newSchema(EndpointFile, endpointHeaders),
	TaxonomyFile:         newSchema(TaxonomyFile, taxonomyHeaders),
}

// SchemaFor returns the shared, read-only schema for kind.
func SchemaFor(kind FileKind) *Schema { return schemas[kind] }

func MainSchema() *Schema             { return schemas[MainFile] }
func OtherNameSchema() *Schema        { return schemas[OtherNameFile] }
func PracticeLocationSchema() *Schema { return schemas[PracticeLocationFile] }
func EndpointSchema() *Schema         { return schemas[EndpointFile] }
func TaxonomySchema() *Schema         { return schemas[TaxonomyFile] }

func (s *Schema) Len() int { return len(s.Headers) }

// Column returns the position of header h, or -1.
func (s *Schema) Column(h string) int {
	if i, ok := s.index[h]; ok {
		return i
	}
	return -1
}

func (s *Schema) mustColumn(h string) int {
	i := s.Column(h)
	if i < 0 {
		panic("npdata: unknown column " + h)
	}
	return i
}

// ValidateHeaders compares actual against the schema position by position.
// Cells are trimmed and a leading BOM on the first cell is ignored. The
// first differing position is reported; when one list is a prefix of the
// other, the first missing or extra position is reported.
func (s *Schema) ValidateHeaders(actual []string) error {
	n := len(s.Headers)
	for i := 0; i < n || i < len(actual); i++ {
		var want, got string
		if i < n {
			want = s.Headers[i]
		}
		if i < len(actual) {
			got = strings.TrimSpace(actual[i])
			if i == 0 {
				got = strings.TrimPrefix(got, "\ufeff")
			}
		}
		if i >= n || i >= len(actual) || got != want {
			return schemaMismatch(n, len(actual), i, want, got)
		}
	}
	return nil
}

// addressColumns locates one address block.
type addressColumns struct {
	line1, line2, city, state, postal, country, phone, fax int
}

type taxonomySlot struct {
	code, license, licenseState, primarySwitch, group int
}

type otherIDSlot struct {
	identifier, typeCode, state, issuer int
}

// Layout holds column positions of the main file, derived from the ordered
// header list.
type Layout struct {
	NPI, EntityType, ReplacementNPI, EIN int

	OrgName, OtherOrgName, OtherOrgNameType int

	LastName, FirstName, MiddleName, Prefix, Suffix, Credential int

	OtherLastName, OtherFirstName, OtherMiddleName, OtherPrefix, OtherSuffix, OtherCredential, OtherLastNameType int

	Mailing  addressColumns
	Practice addressColumns

	EnumerationDate, LastUpdateDate, DeactivationReason, DeactivationDate, ReactivationDate, Sex int

	AOLast, AOFirst, AOMiddle, AOTitle, AOPhone, AOPrefix, AOSuffix, AOCredential int

	Taxonomy [TaxonomySlots]taxonomySlot
	OtherIDs [OtherIdentifierSlots]otherIDSlot

	SoleProprietor, OrganizationSubpart, ParentLBN, ParentTIN int

	CertificationDate int
}

// MainLayout is computed once from MainSchema.
var MainLayout = buildLayout(MainSchema())

func buildLayout(s *Schema) *Layout {
	c := s.mustColumn
	l := &Layout{
		NPI:            c("NPI"),
		EntityType:     c("Entity Type Code"),
		ReplacementNPI: c("Replacement NPI"),
		EIN:            c("Employer Identification Number (EIN)"),

		OrgName:          c("Provider Organization Name (Legal Business Name)"),
		OtherOrgName:     c("Provider Other Organization Name"),
		OtherOrgNameType: c("Provider Other Organization Name Type Code"),

		LastName:   c("Provider Last Name (Legal Name)"),
		FirstName:  c("Provider First Name"),
		MiddleName: c("Provider Middle Name"),
		Prefix:     c("Provider Name Prefix Text"),
		Suffix:     c("Provider Name Suffix Text"),
		Credential: c("Provider Credential Text"),

		OtherLastName:     c("Provider Other Last Name"),
		OtherFirstName:    c("Provider Other First Name"),
		OtherMiddleName:   c("Provider Other Middle Name"),
		OtherPrefix:       c("Provider Other Name Prefix Text"),
		OtherSuffix:       c("Provider Other Name Suffix Text"),
		OtherCredential:   c("Provider Other Credential Text"),
		OtherLastNameType: c("Provider Other Last Name Type Code"),

		Mailing: addressColumns{
			line1:   c("Provider First Line Business Mailing Address"),
			line2:   c("Provider Second Line Business Mailing Address"),
			city:    c("Provider Business Mailing Address City Name"),
			state:   c("Provider Business Mailing Address State Name"),
			postal:  c("Provider Business Mailing Address Postal Code"),
			country: c("Provider Business Mailing Address Country Code (If outside U.S.)"),
			phone:   c("Provider Business Mailing Address Telephone Number"),
			fax:     c("Provider Business Mailing Address Fax Number"),
		},
		Practice: addressColumns{
			line1:   c("Provider First Line Business Practice Location Address"),
			line2:   c("Provider Second Line Business Practice Location Address"),
			city:    c("Provider Business Practice Location Address City Name"),
			state:   c("Provider Business Practice Location Address State Name"),
			postal:  c("Provider Business Practice Location Address Postal Code"),
			country: c("Provider Business Practice Location Address Country Code (If outside U.S.)"),
			phone:   c("Provider Business Practice Location Address Telephone Number"),
			fax:     c("Provider Business Practice Location Address Fax Number"),
		},

		EnumerationDate:    c("Provider Enumeration Date"),
		LastUpdateDate:     c("Last Update Date"),
		DeactivationReason: c("NPI Deactivation Reason Code"),
		DeactivationDate:   c("NPI Deactivation Date"),
		ReactivationDate:   c("NPI Reactivation Date"),
		Sex:                c("Provider Sex Code"),

		AOLast:       c("Authorized Official Last Name"),
		AOFirst:      c("Authorized Official First Name"),
		AOMiddle:     c("Authorized Official Middle Name"),
		AOTitle:      c("Authorized Official Title or Position"),
		AOPhone:      c("Authorized Official Telephone Number"),
		AOPrefix:     c("Authorized Official Name Prefix Text"),
		AOSuffix:     c("Authorized Official Name Suffix Text"),
		AOCredential: c("Authorized Official Credential Text"),

		SoleProprietor:      c("Is Sole Proprietor"),
		OrganizationSubpart: c("Is Organization Subpart"),
		ParentLBN:           c("Parent Organization LBN"),
		ParentTIN:           c("Parent Organization TIN"),

		CertificationDate: c("Certification Date"),
	}
	for i := range l.Taxonomy {
		l.Taxonomy[i] = taxonomySlot{
			code:          c(taxonomyCodeHeader(i)),
			license:       c(licenseNumberHeader(i)),
			licenseState:  c(licenseStateHeader(i)),
			primarySwitch: c(primarySwitchHeader(i)),
			group:         c(taxonomyGroupHeader(i)),
		}
	}
	for j := range l.OtherIDs {
		l.OtherIDs[j] = otherIDSlot{
			identifier: c(otherIDHeader(j)),
			typeCode:   c(otherIDTypeHeader(j)),
			state:      c(otherIDStateHeader(j)),
			issuer:     c(otherIDIssuerHeader(j)),
		}
	}
	return l
}
