package index

import (
	"bytes"
	"strings"
	"testing"

	"updater/internal/updater"
)

func TestCodec_EncodeDecode(t *testing.T) {
	original := &updater.RemoteIndex{
		Timestamp: 20240301120000,
		Files: []updater.RemoteFact{
			{
				Filename:    "plugins/Tool.jar",
				Description: "A tool",
				Current:     &updater.Version{Checksum: "abc", Timestamp: 20240301110000},
				Previous:    []updater.Version{{Checksum: "old", Timestamp: 20230101000000}},
				Dependencies: []updater.Dependency{
					{Filename: "jars/lib.jar", Timestamp: 20240101000000},
					{Filename: "plugins/Legacy.jar", Overrides: true},
				},
			},
			{
				Filename:  "lib/linux64/native.so",
				Platforms: []string{"linux64"},
				Previous:  []updater.Version{{Checksum: "n", Timestamp: 1}},
			},
		},
	}

	var buf bytes.Buffer
	c := NewCodec()
	if err := c.Encode(&buf, original); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if b := buf.Bytes(); len(b) < 2 || b[0] != 0x1f || b[1] != 0x8b {
		t.Fatal("Encode() output is not gzip-compressed")
	}

	got, err := c.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if got.Timestamp != original.Timestamp {
		t.Errorf("Timestamp = %d, want %d", got.Timestamp, original.Timestamp)
	}
	if len(got.Files) != 2 {
		t.Fatalf("len(Files) = %d, want 2", len(got.Files))
	}
	tool := got.Files[0]
	if tool.Current == nil || tool.Current.Checksum != "abc" {
		t.Errorf("Current = %+v, want checksum abc", tool.Current)
	}
	if len(tool.Dependencies) != 2 || !tool.Dependencies[1].Overrides {
		t.Errorf("Dependencies = %+v, want second overriding", tool.Dependencies)
	}
	native := got.Files[1]
	if native.Current != nil {
		t.Errorf("withdrawn file Current = %+v, want nil", native.Current)
	}
	if len(native.Platforms) != 1 || native.Platforms[0] != "linux64" {
		t.Errorf("Platforms = %v, want [linux64]", native.Platforms)
	}
}

func TestCodec_DecodePlainYAML(t *testing.T) {
	doc := `timestamp: 5
files:
  - filename: jars/a.jar
    current:
      checksum: aaa
      timestamp: 4
`
	got, err := NewCodec().Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Timestamp != 5 || len(got.Files) != 1 || got.Files[0].Current.Checksum != "aaa" {
		t.Errorf("Decode() = %+v", got)
	}
}

func TestCodec_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"duplicate file", "files:\n  - filename: a\n  - filename: a\n"},
		{"missing filename", "files:\n  - description: nameless\n"},
		{"malformed", "files: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCodec().Decode(strings.NewReader(tt.doc)); err == nil {
				t.Error("Decode() expected error")
			}
		})
	}
}

func TestCodec_DecodeEmpty(t *testing.T) {
	got, err := NewCodec().Decode(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got.Files) != 0 {
		t.Errorf("len(Files) = %d, want 0", len(got.Files))
	}
}
