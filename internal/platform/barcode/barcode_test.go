package barcode

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPatientRoundTrip(t *testing.T) {
	id := uuid.New()
	code := EncodePatient(id)
	if !strings.HasPrefix(code, "P-") {
		t.Fatalf("unexpected code %q", code)
	}
	if got := DecodePatient(code); got != id {
		t.Errorf("got %s, want %s", got, id)
	}
}

func TestDecodePatient_WithoutChecksum(t *testing.T) {
	id := uuid.New()
	if got := DecodePatient("P-" + id.String()); got != id {
		t.Errorf("got %s, want %s", got, id)
	}
	if got := DecodePatient("  p-" + id.String() + " "); got != id {
		t.Errorf("expected lower-case prefix and whitespace to be tolerated, got %s", got)
	}
}

func TestDecodePatient_Malformed(t *testing.T) {
	id := uuid.New()
	tests := []string{
		"",
		"garbage",
		id.String(),
		"M-" + id.String(),
		"P-" + id.String()[:30],
		"P-" + id.String() + "-ZZZZ",
		"P-" + id.String() + "-",
		"P-" + id.String() + "X",
		"P-" + uuid.Nil.String(),
	}
	for _, code := range tests {
		if got := DecodePatient(code); got != uuid.Nil {
			t.Errorf("DecodePatient(%q) = %s, want nil uuid", code, got)
		}
	}
}

func TestDecodePatient_ChecksumMismatch(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	forged := "P-" + a.String() + EncodePatient(b)[2+36:]
	if checksum(a.String()) == checksum(b.String()) {
		t.Skip("checksum collision")
	}
	if got := DecodePatient(forged); got != uuid.Nil {
		t.Errorf("expected checksum mismatch to be rejected, got %s", got)
	}
}

func TestMedicationRoundTrip(t *testing.T) {
	id := uuid.New()
	exp := time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)

	got := DecodeMedication(EncodeMedication(id, "LOT42", &exp))
	if got.ID != id || got.Lot != "LOT42" {
		t.Errorf("unexpected decode %+v", got)
	}
	if got.Expiry == nil || !got.Expiry.Equal(exp) {
		t.Errorf("unexpected expiry %v", got.Expiry)
	}

	plain := DecodeMedication(EncodeMedication(id, "", &exp))
	if plain.ID != id || plain.Lot != "" || plain.Expiry != nil {
		t.Errorf("expiry without lot must not be encoded: %+v", plain)
	}

	lotOnly := DecodeMedication("M-" + id.String() + "-A1")
	if lotOnly.ID != id || lotOnly.Lot != "A1" || lotOnly.Expiry != nil {
		t.Errorf("unexpected decode %+v", lotOnly)
	}
}

func TestDecodeMedication_Malformed(t *testing.T) {
	id := uuid.New()
	tests := []string{
		"",
		"P-" + id.String(),
		"M-not-a-uuid",
		"M-" + id.String() + "-LOT-2026130",
		"M-" + id.String() + "-LOT-20261340",
		"M-" + id.String() + "-bad lot",
		"M-" + id.String() + "--20260101",
	}
	for _, code := range tests {
		if got := DecodeMedication(code); got.ID != uuid.Nil {
			t.Errorf("DecodeMedication(%q) = %+v, want nil id", code, got)
		}
	}
}
