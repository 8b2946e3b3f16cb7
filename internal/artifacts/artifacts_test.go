package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func TestLocalPutOverwrites(t *testing.T) {
	ctx := context.Background()
	sink, err := NewLocal(t.TempDir(), "housing")
	if err != nil {
		t.Fatalf("NewLocal err=%v", err)
	}

	loc1, err := PutFile(ctx, sink, "ingestion", "train.csv", []byte("a\n1\n"))
	if err != nil {
		t.Fatalf("Put err=%v", err)
	}
	loc2, err := PutFile(ctx, sink, "ingestion", "train.csv", []byte("a\n2\n"))
	if err != nil {
		t.Fatalf("Put err=%v", err)
	}
	if loc1 != loc2 {
		t.Fatalf("same key gave different locations %q %q", loc1, loc2)
	}
	if want := filepath.Join(sink.Root(), "ingestion", "train.csv"); loc1 != want {
		t.Fatalf("location=%q want %q", loc1, want)
	}

	data, err := ReadAll(ctx, sink, loc2)
	if err != nil {
		t.Fatalf("ReadAll err=%v", err)
	}
	if string(data) != "a\n2\n" {
		t.Fatalf("data=%q", data)
	}

	entries, err := os.ReadDir(filepath.Join(sink.Root(), "ingestion"))
	if err != nil {
		t.Fatalf("ReadDir err=%v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected a single file, found %d (temp files left behind?)", len(entries))
	}
}

func TestLocalJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	sink, err := NewLocal(t.TempDir(), "p")
	if err != nil {
		t.Fatalf("NewLocal err=%v", err)
	}
	loc, err := PutJSON(ctx, sink, "training", "model.json", map[string]any{"bias": 1.5})
	if err != nil {
		t.Fatalf("PutJSON err=%v", err)
	}
	var out struct {
		Bias float64 `json:"bias"`
	}
	if err := ReadJSON(ctx, sink, loc, &out); err != nil {
		t.Fatalf("ReadJSON err=%v", err)
	}
	if out.Bias != 1.5 {
		t.Fatalf("bias=%v", out.Bias)
	}
}

func TestLocalRejects(t *testing.T) {
	ctx := context.Background()
	if _, err := NewLocal(t.TempDir(), "../escape"); err == nil {
		t.Fatalf("expected invalid pipeline name error")
	}
	sink, _ := NewLocal(t.TempDir(), "p")
	for _, key := range []string{"", "/abs", "a/../../b"} {
		if _, err := sink.Put(ctx, key, nil, ""); err == nil {
			t.Fatalf("key %q: expected error", key)
		}
	}
	missing := filepath.Join(sink.Root(), "nope.csv")
	if _, err := sink.Open(ctx, missing); err == nil || !strings.Contains(err.Error(), missing) {
		t.Fatalf("expected error naming %s, got %v", missing, err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := sink.Put(cancelled, "a/b.csv", nil, ""); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestMinIOConfigValidate(t *testing.T) {
	valid := MinIOConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "a",
		SecretKey: "b",
		Region:    "us-east-1",
		Bucket:    "artifacts",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	invalid := valid
	invalid.Endpoint = "http://localhost:9000"
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for scheme in endpoint")
	}
	invalid = valid
	invalid.Bucket = ""
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for missing bucket")
	}
}

func TestMinIOLocations(t *testing.T) {
	client, err := minio.New("localhost:9000", &minio.Options{Creds: credentials.NewStaticV4("a", "b", "")})
	if err != nil {
		t.Fatalf("minio.New err=%v", err)
	}
	s, err := NewMinIOWithClient(client, "artifacts", "housing")
	if err != nil {
		t.Fatalf("NewMinIOWithClient err=%v", err)
	}
	if got := s.Location(Key("training", "model.json")); got != "s3://artifacts/housing/training/model.json" {
		t.Fatalf("Location=%q", got)
	}

	tests := []struct {
		in         string
		bucket     string
		key        string
		shouldFail bool
	}{
		{in: "s3://other/x/y.csv", bucket: "other", key: "x/y.csv"},
		{in: "housing/training/model.json", bucket: "artifacts", key: "housing/training/model.json"},
		{in: "s3://only-bucket", shouldFail: true},
		{in: "http://host/x", shouldFail: true},
		{in: "", shouldFail: true},
	}
	for _, tt := range tests {
		bucket, key, err := s.parseLocation(tt.in)
		if tt.shouldFail {
			if err == nil {
				t.Fatalf("%q: expected error", tt.in)
			}
			continue
		}
		if err != nil || bucket != tt.bucket || key != tt.key {
			t.Fatalf("%q: got (%q,%q,%v)", tt.in, bucket, key, err)
		}
	}

	if _, err := NewMinIOWithClient(nil, "b", "p"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestOpenSelectsLocal(t *testing.T) {
	dir := t.TempDir()
	sink, err := Open(context.Background(), dir, nil, "housing")
	if err != nil {
		t.Fatalf("Open() err=%v", err)
	}
	local, ok := sink.(*Local)
	if !ok || local.Root() != filepath.Join(dir, "housing") {
		t.Fatalf("sink=%#v", sink)
	}
}
