package npdata

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies load, validation and export failures.
type ErrorKind string

const (
	KindFileNotFound      ErrorKind = "FileNotFound"
	KindSchemaMismatch    ErrorKind = "SchemaMismatch"
	KindCSVParse          ErrorKind = "CsvParse"
	KindDataValidation    ErrorKind = "DataValidation"
	KindInvalidIdentifier ErrorKind = "InvalidIdentifier"
	KindInvalidEntityType ErrorKind = "InvalidEntityType"
	KindDateParse         ErrorKind = "DateParse"
	KindMemory            ErrorKind = "Memory"
	KindConfiguration     ErrorKind = "Configuration"
	KindExport            ErrorKind = "Export"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its kind.
var (
	ErrFileNotFound      = errors.New("file not found")
	ErrSchemaMismatch    = errors.New("schema mismatch")
	ErrCSVParse          = errors.New("csv parse error")
	ErrDataValidation    = errors.New("data validation error")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrInvalidEntityType = errors.New("invalid entity type")
	ErrDateParse         = errors.New("date parse error")
	ErrMemory            = errors.New("insufficient memory")
	ErrConfiguration     = errors.New("configuration error")
	ErrExport            = errors.New("export error")
)

var kindSentinels = map[ErrorKind]error{
	KindFileNotFound:      ErrFileNotFound,
	KindSchemaMismatch:    ErrSchemaMismatch,
	KindCSVParse:          ErrCSVParse,
	KindDataValidation:    ErrDataValidation,
	KindInvalidIdentifier: ErrInvalidIdentifier,
	KindInvalidEntityType: ErrInvalidEntityType,
	KindDateParse:         ErrDateParse,
	KindMemory:            ErrMemory,
	KindConfiguration:     ErrConfiguration,
	KindExport:            ErrExport,
}

// DateFormat is the only accepted date layout in NPPES files, in the
// notation shown to users.
const DateFormat = "MM/DD/YYYY"

// Error is the tagged error value returned by the loader, the schema check
// and the exporters. Only the fields relevant to Kind are set.
type Error struct {
	Kind    ErrorKind
	Message string

	Path   string
	Line   int64
	Column string
	Value  string
	Reason string

	// SchemaMismatch
	ExpectedColumns int
	FoundColumns    int
	Index           int
	Expected        string
	Found           string

	// Memory
	Required  int64
	Available int64

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Path != "" {
		b.WriteString(" (")
		b.WriteString(e.Path)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d", e.Line)
		}
		if e.Column != "" {
			fmt.Fprintf(&b, ", column %q", e.Column)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// Suggestion returns a short hint for the user, derived from the kind.
func (e *Error) Suggestion() string {
	switch e.Kind {
	case KindFileNotFound:
		switch {
		case strings.Contains(e.Path, "npidata"):
			return "Check the path. Main NPPES files are named npidata_pfile_YYYYMMDD-YYYYMMDD.csv and can be downloaded from https://download.cms.gov/nppes/NPI_Files.html"
		case strings.Contains(e.Path, "taxonomy"):
			return "Check the path. The NUCC taxonomy file is published at https://www.nucc.org"
		}
		return "Make sure the path is correct and readable"
	case KindSchemaMismatch:
		return "The file does not match the expected NPPES column layout; use the V2 dissemination files"
	case KindCSVParse:
		return "Check the row for unbalanced quotes or a wrong number of fields, or load with skip_invalid_records"
	case KindInvalidIdentifier:
		if e.Reason == reasonNPIDigits {
			return "Remove any non-numeric characters from the NPI"
		}
		return "NPI must be exactly 10 digits"
	case KindInvalidEntityType:
		return "Entity Type Code must be 1 (Individual) or 2 (Organization)"
	case KindDateParse:
		return "Dates must use the " + DateFormat + " format"
	case KindMemory:
		return "Raise the memory limit or load a smaller file"
	case KindConfiguration:
		return "Check NPPES_* environment variables and the config file"
	case KindExport:
		return "Check that the output location is writable"
	case KindDataValidation:
		return "Load the required reference data first"
	}
	return ""
}

// ErrorKindOf returns the kind of the first *Error in err's chain, or ""
// for foreign errors.
func ErrorKindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func schemaMismatch(expectedN, foundN, index int, expected, found string) *Error {
	msg := fmt.Sprintf("expected %d columns, found %d", expectedN, foundN)
	if index >= 0 {
		msg = fmt.Sprintf("column %d mismatch: expected '%s', found '%s'", index, expected, found)
	}
	return &Error{
		Kind:            KindSchemaMismatch,
		Message:         msg,
		ExpectedColumns: expectedN,
		FoundColumns:    foundN,
		Index:           index,
		Expected:        expected,
		Found:           found,
	}
}

func insufficientMemory(required, available int64) *Error {
	return &Error{
		Kind:      KindMemory,
		Message:   fmt.Sprintf("insufficient memory: need %s but only %s available", FormatBytes(required), FormatBytes(available)),
		Required:  required,
		Available: available,
	}
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
