package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	v := Get()
	if v == "" {
		t.Fatal("version should not be empty")
	}
	if strings.TrimSpace(v) != v {
		t.Errorf("version %q should be trimmed", v)
	}
	if !strings.HasPrefix(String(), "decomp version "+v) {
		t.Errorf("unexpected version line %q", String())
	}
}
