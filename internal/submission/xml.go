package submission

import (
	"encoding/xml"
	"fmt"
	"time"

	"staygate/internal/submission/models"
	dErrors "staygate/pkg/domain-errors"
)

// Namespace is the government form namespace. It must appear as a
// document-level attribute on the root element.
const Namespace = "http://schemas.gov.sk/form/MVSR.HlaseniePobytu/1.0"

const dateLayout = "2006-01-02"

// dateInputLayouts are the accepted source representations, tried in
// order. The CRUD layer stores dates as strings and upstream systems are
// inconsistent about whether they send a bare date or a full timestamp.
var dateInputLayouts = []string{
	dateLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

type registrationOfStay struct {
	XMLName xml.Name `xml:"RegistrationOfStay"`
	Xmlns   string   `xml:"xmlns,attr"`
	Guest   guestForm
}

type guestForm struct {
	XMLName        xml.Name `xml:"Guest"`
	FirstName      string   `xml:"FirstName"`
	Surname        string   `xml:"Surname"`
	DateOfBirth    string   `xml:"DateOfBirth"`
	Nationality    string   `xml:"Nationality"`
	DocumentNumber string   `xml:"DocumentNumber"`
	ArrivalDate    string   `xml:"ArrivalDate"`
	DepartureDate  string   `xml:"DepartureDate"`
}

// BuildXML renders the canonical submission document for a guest. The
// mapping is deterministic: the same guest always produces the same bytes.
func BuildXML(guest models.Guest) (string, error) {
	birth, err := NormalizeDate(guest.DateOfBirth)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, "date of birth")
	}
	arrival, err := NormalizeDate(guest.ArrivalDate)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, "arrival date")
	}
	departure, err := NormalizeDate(guest.DepartureDate)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, "departure date")
	}

	doc := registrationOfStay{
		Xmlns: Namespace,
		Guest: guestForm{
			FirstName:      guest.FirstName,
			Surname:        guest.Surname,
			DateOfBirth:    birth,
			Nationality:    guest.Nationality,
			DocumentNumber: guest.DocumentNumber,
			ArrivalDate:    arrival,
			DepartureDate:  departure,
		},
	}

	out, err := xml.Marshal(doc)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "marshal submission document")
	}
	return xml.Header + string(out), nil
}

// NormalizeDate converts any accepted date representation to YYYY-MM-DD.
// Date-only strings, full timestamps and everything in between normalize to
// the same text, so "1990-05-01" and "1990-05-01T00:00:00.000Z" are equal
// after normalization.
func NormalizeDate(value string) (string, error) {
	if value == "" {
		return "", fmt.Errorf("date value is empty")
	}
	for _, layout := range dateInputLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(dateLayout), nil
		}
	}
	return "", fmt.Errorf("unrecognized date value %q", value)
}

// FormatDate renders a structured date value in submission form.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}
