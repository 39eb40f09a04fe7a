package interaction

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const sampleDoc = `{
  "drug_drug": [
    {"medication_a_name": "Warfarin", "medication_b_name": "Aspirin", "severity": "severe", "description": "bleeding"}
  ],
  "allergy_classes": [{"name": "Penicillins", "members": ["Amoxicillin"]}],
  "condition_rules": [{"medication_name": "Metformin", "condition_code": "N18.5", "severity": "severe"}],
  "lab_rules": [{"medication_name": "Warfarin", "lab_code": "34714-6", "abnormal_flag": "H", "severity": "severe"}],
  "unknown_section": true
}`

func TestParseSource(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		location string
		want     string
	}{
		{"", "builtin"},
		{"builtin", "builtin"},
		{"sqlite:/var/lib/rules.db", "sqlite:/var/lib/rules.db"},
		{"/etc/medsafety/rules.json", "file /etc/medsafety/rules.json"},
	}
	for _, tt := range tests {
		src, err := ParseSource(ctx, tt.location, SourceOptions{})
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tt.location, err)
		}
		if src.Name() != tt.want {
			t.Errorf("%q: got source %q, want %q", tt.location, src.Name(), tt.want)
		}
	}

	for _, bad := range []string{"s3://bucket-only", "s3:///key", "sqlite:", "postgres"} {
		if _, err := ParseSource(ctx, bad, SourceOptions{}); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte(sampleDoc), 0o600); err != nil {
		t.Fatal(err)
	}
	rs, err := LoadRuleSet(context.Background(), FileSource{Path: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st := rs.Stats(); st != (Stats{DrugDrug: 1, AllergyClasses: 1, ConditionRules: 1, LabRules: 1}) {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestFileSource_Missing(t *testing.T) {
	_, err := LoadRuleSet(context.Background(), FileSource{Path: filepath.Join(t.TempDir(), "nope.json")})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestLoadRuleSet_RejectsInvalidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	os.WriteFile(path, []byte(`{"lab_rules":[{"medication_name":"A","lab_code":"1","abnormal_flag":"H","severity":"contraindicated"}]}`), 0o600)
	if _, err := LoadRuleSet(context.Background(), FileSource{Path: path}); err == nil {
		t.Error("expected validation error")
	}
}

type fakeS3 struct {
	body   string
	bucket string
	key    string
	err    error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket, f.key = *in.Bucket, *in.Key
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewBufferString(f.body))}, nil
}

func TestS3Source(t *testing.T) {
	client := &fakeS3{body: sampleDoc}
	src := &S3Source{client: client, bucket: "clinical-rules", key: "packs/v3.json"}
	rs, err := LoadRuleSet(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.bucket != "clinical-rules" || client.key != "packs/v3.json" {
		t.Errorf("unexpected object %s/%s", client.bucket, client.key)
	}
	if !rs.ClassContains("Penicillins", "Amoxicillin") {
		t.Error("expected Penicillins class from S3 document")
	}
	if src.Name() != "s3://clinical-rules/packs/v3.json" {
		t.Errorf("unexpected name %q", src.Name())
	}

	client.err = errors.New("access denied")
	if _, err := LoadRuleSet(context.Background(), src); err == nil {
		t.Error("expected S3 error to propagate")
	}
}

func TestSQLitePack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packs", "rules.db")
	ctx := context.Background()
	if err := WriteSQLitePack(ctx, path, BuiltinDocument()); err != nil {
		t.Fatalf("write pack: %v", err)
	}
	// Writing twice replaces sections instead of failing.
	if err := WriteSQLitePack(ctx, path, BuiltinDocument()); err != nil {
		t.Fatalf("rewrite pack: %v", err)
	}

	rs, err := LoadRuleSet(ctx, NewSQLiteSource(path))
	if err != nil {
		t.Fatalf("load pack: %v", err)
	}
	if rs.Stats() != DefaultRuleSet().Stats() {
		t.Errorf("pack stats %+v differ from builtin %+v", rs.Stats(), DefaultRuleSet().Stats())
	}
	for _, r := range DefaultRuleSet().drugDrug {
		if !rs.HasRule(r.ID) {
			t.Fatalf("rule %s lost its id in the pack", r.ID)
		}
	}
}

func TestSQLiteSource_Missing(t *testing.T) {
	if _, err := NewSQLiteSource(filepath.Join(t.TempDir(), "none.db")).Load(context.Background()); err == nil {
		t.Error("expected error for missing pack")
	}
}

func TestDecodeDocument(t *testing.T) {
	doc, err := DecodeDocument(bytes.NewBufferString(sampleDoc))
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.DrugDrug) != 1 || doc.DrugDrug[0].Severity != SeveritySevere {
		t.Errorf("unexpected document %+v", doc)
	}
	if _, err := DecodeDocument(bytes.NewBufferString("{")); err == nil {
		t.Error("expected decode error")
	}
}
