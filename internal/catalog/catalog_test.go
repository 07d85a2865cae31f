package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dua-platform/credits-backend/internal/apperr"
)

func TestDefaultCost(t *testing.T) {
	c := Default()

	cost, err := c.Cost("image_standard")
	if err != nil {
		t.Fatalf("Cost() error: %v", err)
	}
	if cost != 25 {
		t.Errorf("cost = %d, want 25", cost)
	}
}

func TestUnknownOperation(t *testing.T) {
	c := Default()

	_, err := c.Cost("not_a_real_op")
	if err == nil {
		t.Fatal("expected error for unknown operation")
	}
	if !apperr.IsValidation(err) {
		t.Errorf("error = %v, want ValidationError", err)
	}
}

func TestFreeOperation(t *testing.T) {
	c := Default()

	cost, err := c.Cost("chat_basic")
	if err != nil {
		t.Fatalf("Cost() error: %v", err)
	}
	if cost != 0 {
		t.Errorf("cost = %d, want 0", cost)
	}
	if !c.IsFree("chat_basic") {
		t.Error("chat_basic should be free")
	}
	if c.IsFree("chat_advanced") {
		t.Error("chat_advanced should not be free")
	}
	if c.IsFree("nonexistent") {
		t.Error("unknown operations are not free")
	}
}

func TestLoadOverridesAndAdds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	data := `
[operations.image_standard]
cost = 30

[operations.video_gen4_turbo_5s]
cost = 25
name = "Video Gen-4 Turbo (5s)"
category = "video"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cost, _ := c.Cost("image_standard"); cost != 30 {
		t.Errorf("overridden cost = %d, want 30", cost)
	}
	if cost, _ := c.Cost("video_gen4_turbo_5s"); cost != 25 {
		t.Errorf("added cost = %d, want 25", cost)
	}
	if name := c.Name("video_gen4_turbo_5s"); name != "Video Gen-4 Turbo (5s)" {
		t.Errorf("name = %q", name)
	}
	// untouched defaults survive the merge
	if cost, _ := c.Cost("music_generate_v5"); cost != 6 {
		t.Errorf("default cost = %d, want 6", cost)
	}
}

func TestLoadRejectsNegativeCost(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	if err := os.WriteFile(path, []byte("[operations.bad]\ncost = -5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for negative cost")
	}
}
