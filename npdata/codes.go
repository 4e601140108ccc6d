package npdata

import (
	"strings"
)

// codeSet maps between NPPES source codes and a small integer enumeration.
// Value 0 is reserved for "absent"; codes[i] is the canonical output code of
// value i.
type codeSet[T ~uint8] struct {
	codes  []string
	labels []string
	lookup map[string]T
	fold   bool
}

func newCodeSet[T ~uint8](fold bool, codes, labels []string, aliases map[string]T) *codeSet[T] {
	s := &codeSet[T]{
		codes:  codes,
		labels: labels,
		lookup: make(map[string]T, len(codes)+len(aliases)),
		fold:   fold,
	}
	for i, c := range codes {
		if i == 0 {
			continue
		}
		s.lookup[s.key(c)] = T(i)
	}
	for c, v := range aliases {
		s.lookup[s.key(c)] = v
	}
	return s
}

func (s *codeSet[T]) key(code string) string {
	if s.fold {
		return strings.ToLower(code)
	}
	return code
}

func (s *codeSet[T]) parse(code string) (T, bool) {
	v, ok := s.lookup[s.key(strings.TrimSpace(code))]
	return v, ok
}

func (s *codeSet[T]) code(v T) string {
	if int(v) < len(s.codes) {
		return s.codes[v]
	}
	return ""
}

func (s *codeSet[T]) label(v T) string {
	if int(v) < len(s.labels) {
		return s.labels[v]
	}
	return ""
}

// EntityType distinguishes individual (type 1) and organization (type 2)
// NPIs.
type EntityType uint8

const (
	Individual   EntityType = 1
	Organization EntityType = 2
)

var entityTypes = newCodeSet[EntityType](false,
	[]string{"", "1", "2"},
	[]string{"", "Individual", "Organization"},
	nil)

// ParseEntityType returns the entity type for "1" or "2".
func ParseEntityType(code string) (EntityType, bool) { return entityTypes.parse(code) }

// EntityTypeFromCode is the strict form of ParseEntityType used for row
// validation. Any code other than "1" or "2" is an InvalidEntityType error.
func EntityTypeFromCode(code string) (EntityType, error) {
	if et, ok := entityTypes.parse(code); ok {
		return et, nil
	}
	return 0, &Error{
		Kind:    KindInvalidEntityType,
		Message: "invalid entity type code '" + code + "'",
		Value:   code,
	}
}

func (e EntityType) Code() string   { return entityTypes.code(e) }
func (e EntityType) String() string { return entityTypes.label(e) }

func (e EntityType) MarshalText() ([]byte, error) { return []byte(e.Code()), nil }

func (e *EntityType) UnmarshalText(b []byte) error {
	*e, _ = ParseEntityType(string(b))
	return nil
}

// Sex is the provider sex code. Both "U" and "X" read as Undisclosed, which
// is written back as "U".
type Sex uint8

const (
	SexMale Sex = iota + 1
	SexFemale
	SexUndisclosed
)

var sexCodes = newCodeSet[Sex](false,
	[]string{"", "M", "F", "U"},
	[]string{"", "Male", "Female", "Undisclosed"},
	map[string]Sex{"X": SexUndisclosed})

func ParseSex(code string) (Sex, bool) { return sexCodes.parse(code) }

func (s Sex) Code() string                 { return sexCodes.code(s) }
func (s Sex) String() string               { return sexCodes.label(s) }
func (s Sex) MarshalText() ([]byte, error) { return []byte(s.Code()), nil }

func (s *Sex) UnmarshalText(b []byte) error {
	*s, _ = ParseSex(string(b))
	return nil
}

// Indicator is the Y/N/X answer used by the sole proprietor, organization
// subpart and primary taxonomy switch columns.
type Indicator uint8

const (
	IndicatorYes Indicator = iota + 1
	IndicatorNo
	IndicatorNotAnswered
)

var indicators = newCodeSet[Indicator](false,
	[]string{"", "Y", "N", "X"},
	[]string{"", "Yes", "No", "Not Answered"},
	nil)

func ParseIndicator(code string) (Indicator, bool) { return indicators.parse(code) }

func (i Indicator) Code() string                 { return indicators.code(i) }
func (i Indicator) String() string               { return indicators.label(i) }
func (i Indicator) MarshalText() ([]byte, error) { return []byte(i.Code()), nil }

func (i *Indicator) UnmarshalText(b []byte) error {
	*i, _ = ParseIndicator(string(b))
	return nil
}

// DeactivationReason is matched case-insensitively on the reason word.
type DeactivationReason uint8

const (
	DeactivationDeath DeactivationReason = iota + 1
	DeactivationDisbandment
	DeactivationFraud
	DeactivationOther
	DeactivationUndisclosed
)

var deactivationReasons = newCodeSet[DeactivationReason](true,
	[]string{"", "Death", "Disbandment", "Fraud", "Other", "Undisclosed"},
	[]string{"", "Death", "Disbandment", "Fraud", "Other", "Undisclosed"},
	map[string]DeactivationReason{"u": DeactivationUndisclosed, "x": DeactivationUndisclosed})

func ParseDeactivationReason(code string) (DeactivationReason, bool) {
	return deactivationReasons.parse(code)
}

func (d DeactivationReason) Code() string   { return deactivationReasons.code(d) }
func (d DeactivationReason) String() string { return deactivationReasons.label(d) }

func (d DeactivationReason) MarshalText() ([]byte, error) { return []byte(d.Code()), nil }

func (d *DeactivationReason) UnmarshalText(b []byte) error {
	*d, _ = ParseDeactivationReason(string(b))
	return nil
}

// OtherNameType qualifies an other name or other organization name.
type OtherNameType uint8

const (
	OtherNameFormer OtherNameType = iota + 1
	OtherNameProfessional
	OtherNameDoingBusinessAs
	OtherNameFormerLegalBusinessName
	OtherNameOther
)

var otherNameTypes = newCodeSet[OtherNameType](false,
	[]string{"", "1", "2", "3", "4", "5"},
	[]string{"", "Former Name", "Professional Name", "Doing Business As", "Former Legal Business Name", "Other Name"},
	nil)

func ParseOtherNameType(code string) (OtherNameType, bool) { return otherNameTypes.parse(code) }

func (o OtherNameType) Code() string   { return otherNameTypes.code(o) }
func (o OtherNameType) String() string { return otherNameTypes.label(o) }

func (o OtherNameType) MarshalText() ([]byte, error) { return []byte(o.Code()), nil }

func (o *OtherNameType) UnmarshalText(b []byte) error {
	*o, _ = ParseOtherNameType(string(b))
	return nil
}

// IssuerCode identifies who issued an other provider identifier.
type IssuerCode uint8

const (
	IssuerOther IssuerCode = iota + 1
	IssuerMedicaid
)

var issuerCodes = newCodeSet[IssuerCode](false,
	[]string{"", "01", "05"},
	[]string{"", "Other", "Medicaid"},
	nil)

func ParseIssuerCode(code string) (IssuerCode, bool) { return issuerCodes.parse(code) }

func (i IssuerCode) Code() string                 { return issuerCodes.code(i) }
func (i IssuerCode) String() string               { return issuerCodes.label(i) }
func (i IssuerCode) MarshalText() ([]byte, error) { return []byte(i.Code()), nil }

func (i *IssuerCode) UnmarshalText(b []byte) error {
	*i, _ = ParseIssuerCode(string(b))
	return nil
}

// GroupTaxonomy is the taxonomy group label carried by group practices.
type GroupTaxonomy uint8

const (
	GroupMultiSpecialty GroupTaxonomy = iota + 1
	GroupSingleSpecialty
)

var groupTaxonomies = newCodeSet[GroupTaxonomy](false,
	[]string{"", "193200000X", "193400000X"},
	[]string{"", "Multi-Specialty Group", "Single Specialty Group"},
	nil)

// ParseGroupTaxonomy accepts the bare code and the NPPES form that appends
// the description ("193200000X MULTI-SPECIALTY GROUP").
func ParseGroupTaxonomy(code string) (GroupTaxonomy, bool) {
	code = strings.TrimSpace(code)
	if i := strings.IndexByte(code, ' '); i > 0 {
		code = code[:i]
	}
	return groupTaxonomies.parse(code)
}

func (g GroupTaxonomy) Code() string   { return groupTaxonomies.code(g) }
func (g GroupTaxonomy) String() string { return groupTaxonomies.label(g) }

func (g GroupTaxonomy) MarshalText() ([]byte, error) { return []byte(g.Code()), nil }

func (g *GroupTaxonomy) UnmarshalText(b []byte) error {
	*g, _ = ParseGroupTaxonomy(string(b))
	return nil
}

// NamePrefix is one of the fixed NPPES name prefixes.
type NamePrefix uint8

const (
	PrefixMs NamePrefix = iota + 1
	PrefixMr
	PrefixMiss
	PrefixMrs
	PrefixDr
	PrefixProf
)

var namePrefixes = newCodeSet[NamePrefix](false,
	[]string{"", "Ms.", "Mr.", "Miss", "Mrs.", "Dr.", "Prof."},
	[]string{"", "Ms.", "Mr.", "Miss", "Mrs.", "Dr.", "Prof."},
	nil)

func ParseNamePrefix(code string) (NamePrefix, bool) { return namePrefixes.parse(code) }

func (p NamePrefix) Code() string                 { return namePrefixes.code(p) }
func (p NamePrefix) String() string               { return p.Code() }
func (p NamePrefix) MarshalText() ([]byte, error) { return []byte(p.Code()), nil }

func (p *NamePrefix) UnmarshalText(b []byte) error {
	*p, _ = ParseNamePrefix(string(b))
	return nil
}

// NameSuffix is one of the fixed NPPES name suffixes.
type NameSuffix uint8

const (
	SuffixJr NameSuffix = iota + 1
	SuffixSr
	SuffixI
	SuffixII
	SuffixIII
	SuffixIV
	SuffixV
	SuffixVI
	SuffixVII
	SuffixVIII
	SuffixIX
	SuffixX
)

var nameSuffixes = newCodeSet[NameSuffix](false,
	[]string{"", "Jr.", "Sr.", "I", "II", "III", "IV", "V", "VI", "VII", "VIII", "IX", "X"},
	[]string{"", "Jr.", "Sr.", "I", "II", "III", "IV", "V", "VI", "VII", "VIII", "IX", "X"},
	nil)

func ParseNameSuffix(code string) (NameSuffix, bool) { return nameSuffixes.parse(code) }

func (s NameSuffix) Code() string                 { return nameSuffixes.code(s) }
func (s NameSuffix) String() string               { return s.Code() }
func (s NameSuffix) MarshalText() ([]byte, error) { return []byte(s.Code()), nil }

func (s *NameSuffix) UnmarshalText(b []byte) error {
	*s, _ = ParseNameSuffix(string(b))
	return nil
}

// StateCode is a canonical two-letter upper-case state or territory code.
// The empty string means absent.
type StateCode string

var stateCodes = codeIndex(`
AK AL AR AS AZ CA CO CT DC DE FL FM GA GU HI IA ID IL IN KS
KY LA MA MD ME MH MI MN MO MP MS MT NC ND NE NH NJ NM NV NY
OH OK OR PA PR PW RI SC SD TN TX UT VA VI VT WA WI WV WY ZZ`)

// ParseStateCode matches case-insensitively against the closed set of 60
// NPPES state codes.
func ParseStateCode(code string) (StateCode, bool) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if _, ok := stateCodes[c]; ok {
		return StateCode(c), true
	}
	return "", false
}

func (s StateCode) Code() string { return string(s) }

// StateCodes returns every recognised state code in sorted order.
func StateCodes() []StateCode {
	out := make([]StateCode, 0, len(stateCodes))
	for _, c := range sortedKeys(stateCodes) {
		out = append(out, StateCode(c))
	}
	return out
}

// CountryCode is an ISO 3166-1 alpha-2 code. The empty string means absent.
type CountryCode string

var countryCodes = codeIndex(`
AD AE AF AG AI AL AM AO AQ AR AS AT AU AW AX AZ BA BB BD BE
BF BG BH BI BJ BL BM BN BO BQ BR BS BT BV BW BY BZ CA CC CD
CF CG CH CI CK CL CM CN CO CR CU CV CW CX CY CZ DE DJ DK DM
DO DZ EC EE EG EH ER ES ET FI FJ FK FM FO FR GA GB GD GE GF
GG GH GI GL GM GN GP GQ GR GS GT GU GW GY HK HM HN HR HT HU
ID IE IL IM IN IO IQ IR IS IT JE JM JO JP KE KG KH KI KM KN
KP KR KW KY KZ LA LB LC LI LK LR LS LT LU LV LY MA MC MD ME
MF MG MH MK ML MM MN MO MP MQ MR MS MT MU MV MW MX MY MZ NA
NC NE NF NG NI NL NO NP NR NU NZ OM PA PE PF PG PH PK PL PM
PN PR PS PT PW PY QA RE RO RS RU RW SA SB SC SD SE SG SH SI
SJ SK SL SM SN SO SR SS ST SV SX SY SZ TC TD TF TG TH TJ TK
TL TM TN TO TR TT TV TW TZ UA UG UM US UY UZ VA VC VE VG VI
VN VU WF WS YE YT ZA ZM ZW`)

// ParseCountryCode matches case-insensitively against ISO 3166-1 alpha-2.
func ParseCountryCode(code string) (CountryCode, bool) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if _, ok := countryCodes[c]; ok {
		return CountryCode(c), true
	}
	return "", false
}

func (c CountryCode) Code() string { return string(c) }

func codeIndex(list string) map[string]struct{} {
	fields := strings.Fields(list)
	m := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		m[f] = struct{}{}
	}
	return m
}
