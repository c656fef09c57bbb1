package uuid

import (
	"testing"

	guuid "github.com/google/uuid"
)

func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	first, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	if _, err := guuid.Parse(first); err != nil {
		t.Fatalf("NewID() returned unparseable id %q: %v", first, err)
	}
	second, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	if first == second {
		t.Fatal("expected unique ids")
	}
}
