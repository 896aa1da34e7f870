package vstore

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadValues(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]string
		wantErr bool
	}{
		{
			name:  "simple text value",
			input: "has-session = true",
			want:  map[string]string{"has-session": "true"},
		},
		{
			name: "comments and blank lines",
			input: `
# written by vsession
a = 1

# trailing comment
`,
			want: map[string]string{"a": "1"},
		},
		{
			name:  "base64 value",
			input: "session = b64:SGVsbG8gV29ybGQ=",
			want:  map[string]string{"session": "Hello World"},
		},
		{
			name:  "empty value",
			input: "k =",
			want:  map[string]string{"k": ""},
		},
		{
			name:  "value containing equals",
			input: "k = a=b",
			want:  map[string]string{"k": "a=b"},
		},
		{
			name:    "missing separator",
			input:   "garbage",
			wantErr: true,
		},
		{
			name:    "bad base64",
			input:   "k = b64:!!!",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readValues(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("readValues() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Errorf("readValues() got %d keys, want %d", len(got), len(tt.want))
			}
			for k, want := range tt.want {
				if string(got[k]) != want {
					t.Errorf("readValues()[%q] = %q, want %q", k, got[k], want)
				}
			}
		})
	}
}

func TestValuesRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
	}{
		{"text", []byte("hello world")},
		{"empty", []byte("")},
		{"newline", []byte("line1\nline2")},
		{"leading space", []byte(" padded")},
		{"prefix collision", []byte("b64:looks encoded")},
		{"high bytes", []byte{0x80, 0x81, 0xff}},
		{"nulls", []byte("a\x00b")},
		{"long binary", bytes.Repeat([]byte{0xfe}, 300)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := writeValues(&buf, map[string][]byte{"key": tt.value}); err != nil {
				t.Fatalf("writeValues() error = %v", err)
			}
			got, err := readValues(&buf)
			if err != nil {
				t.Fatalf("readValues() error = %v", err)
			}
			if !bytes.Equal(got["key"], tt.value) {
				t.Errorf("round trip = %q, want %q", got["key"], tt.value)
			}
		})
	}
}

func TestIsPlainText(t *testing.T) {
	tests := []struct {
		input []byte
		plain bool
	}{
		{[]byte("true"), true},
		{[]byte("a=b"), true},
		{[]byte{}, true},
		{[]byte("two\nlines"), false},
		{[]byte("tab\there"), false},
		{[]byte(" lead"), false},
		{[]byte("trail "), false},
		{[]byte("b64:x"), false},
		{[]byte{0x7f}, false},
	}
	for _, tt := range tests {
		if got := isPlainText(tt.input); got != tt.plain {
			t.Errorf("isPlainText(%q) = %v, want %v", tt.input, got, tt.plain)
		}
	}
}

func TestConfigDataStoreFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.conf")

	store, err := NewConfigDataStore(path)
	if err != nil {
		t.Fatalf("NewConfigDataStore() error = %v", err)
	}
	if err := store.Set("has-session", false, []byte("true")); err != nil {
		t.Fatal(err)
	}
	if err := store.Set("session", true, []byte("id-123")); err != nil {
		t.Fatal(err)
	}
	if err := store.Set("bad key", false, []byte("x")); err == nil {
		t.Error("Set() with a space in the key should fail")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	s := string(content)
	if !strings.Contains(s, "has-session = true\n") {
		t.Errorf("marker should be written as text, got:\n%s", s)
	}
	if !strings.Contains(s, "session = b64:") {
		t.Errorf("ciphertext should be base64 encoded, got:\n%s", s)
	}
	if strings.Contains(s, "id-123") {
		t.Errorf("file leaks the session identifier:\n%s", s)
	}

	reopened, err := NewConfigDataStore(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := reopened.Get("session", true)
	if err != nil || string(got) != "id-123" {
		t.Fatalf("Get() after reopen = %q, %v", got, err)
	}

	if err := reopened.Delete("session"); err != nil {
		t.Fatal(err)
	}
	content, _ = os.ReadFile(path)
	for _, line := range strings.Split(string(content), "\n") {
		if strings.HasPrefix(line, "session = ") {
			t.Errorf("deleted key still in file:\n%s", content)
		}
	}
	if !strings.Contains(string(content), "has-session = true\n") {
		t.Errorf("unrelated key removed:\n%s", content)
	}
}
