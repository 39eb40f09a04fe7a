// Package barcode decodes the identifiers printed on patient wristbands and
// unit-dose medication labels.
//
// Wristband:  P-<patient uuid>[-<checksum>]
// Medication: M-<medication uuid>[-<lot>[-<YYYYMMDD expiry>]]
//
// The checksum is four upper-case hex digits of the byte sum of the uuid
// text, mod 65536. Decoders never fail: malformed input yields uuid.Nil so
// callers can turn it into a structured rejection.
package barcode

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	patientPrefix    = "P-"
	medicationPrefix = "M-"
	uuidLen          = 36
	expiryLayout     = "20060102"
)

var (
	checksumPattern = regexp.MustCompile(`^[0-9A-F]{4}$`)
	lotPattern      = regexp.MustCompile(`^[A-Za-z0-9]{1,20}$`)
)

// Medication is a decoded medication label.
type Medication struct {
	ID     uuid.UUID  `json:"medication_id"`
	Lot    string     `json:"lot,omitempty"`
	Expiry *time.Time `json:"expiry,omitempty"`
}

func checksum(s string) string {
	var sum int
	for i := 0; i < len(s); i++ {
		sum += int(s[i])
	}
	return fmt.Sprintf("%04X", sum%65536)
}

// splitID strips prefix and parses the uuid that follows it, returning the
// remaining "-..." suffix without its leading dash.
func splitID(code, prefix string) (uuid.UUID, string, bool) {
	code = strings.TrimSpace(code)
	if !strings.HasPrefix(strings.ToUpper(code), prefix) {
		return uuid.Nil, "", false
	}
	body := code[len(prefix):]
	if len(body) < uuidLen {
		return uuid.Nil, "", false
	}
	id, err := uuid.Parse(body[:uuidLen])
	if err != nil || id == uuid.Nil {
		return uuid.Nil, "", false
	}
	rest := body[uuidLen:]
	if rest == "" {
		return id, "", true
	}
	if rest[0] != '-' || len(rest) == 1 {
		return uuid.Nil, "", false
	}
	return id, rest[1:], true
}

// DecodePatient returns the patient id on a wristband, or uuid.Nil.
func DecodePatient(code string) uuid.UUID {
	id, rest, ok := splitID(code, patientPrefix)
	if !ok {
		return uuid.Nil
	}
	if rest != "" {
		sum := strings.ToUpper(rest)
		if !checksumPattern.MatchString(sum) || sum != checksum(id.String()) {
			return uuid.Nil
		}
	}
	return id
}

// DecodeMedication returns the decoded label. ID is uuid.Nil when the code
// is malformed, including a lot or expiry that does not parse.
func DecodeMedication(code string) Medication {
	id, rest, ok := splitID(code, medicationPrefix)
	if !ok {
		return Medication{}
	}
	if rest == "" {
		return Medication{ID: id}
	}

	lot, expiry, hasExpiry := strings.Cut(rest, "-")
	if !lotPattern.MatchString(lot) {
		return Medication{}
	}
	m := Medication{ID: id, Lot: lot}
	if hasExpiry {
		t, err := time.Parse(expiryLayout, expiry)
		if err != nil {
			return Medication{}
		}
		m.Expiry = &t
	}
	return m
}

// EncodePatient prints a wristband code with its checksum.
func EncodePatient(id uuid.UUID) string {
	s := id.String()
	return patientPrefix + s + "-" + checksum(s)
}

// EncodeMedication prints a medication label. lot and expiry are optional;
// expiry is only printed together with a lot.
func EncodeMedication(id uuid.UUID, lot string, expiry *time.Time) string {
	code := medicationPrefix + id.String()
	if lot == "" {
		return code
	}
	code += "-" + lot
	if expiry != nil {
		code += "-" + expiry.Format(expiryLayout)
	}
	return code
}
