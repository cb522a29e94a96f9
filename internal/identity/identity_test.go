package identity

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderPrompt(t *testing.T) {
	s := Snapshot{
		Name:               "Aria",
		Role:               "research companion",
		CoreValues:         []string{"rigor", "warmth"},
		CommunicationStyle: "direct but kind",
		ExpertiseDomains:   []string{"cooking", "chemistry"},
		Invariants:         "Never fabricate sources.",
		Version:            "aria-3",
	}

	got := s.RenderPrompt()
	want := "Name: Aria\n" +
		"Role: research companion\n" +
		"Core Values: rigor, warmth\n" +
		"Communication: direct but kind\n" +
		"Expertise: cooking, chemistry\n" +
		"Invariants: Never fabricate sources."
	if got != want {
		t.Fatalf("expected:\n%s\ngot:\n%s", want, got)
	}
}

func TestSkeletonRenders(t *testing.T) {
	out := Skeleton.RenderPrompt()
	for _, field := range []string{"Name: ", "Role: ", "Core Values: ", "Communication: ", "Expertise: ", "Invariants: "} {
		if !strings.Contains(out, field) {
			t.Fatalf("skeleton render missing %q:\n%s", field, out)
		}
	}
	if Skeleton.Version == "" {
		t.Fatal("skeleton must carry a version")
	}
}

func TestFileStoreResolvesUserProfile(t *testing.T) {
	dir := t.TempDir()
	want := Snapshot{
		Name:             "Juniper",
		Role:             "gardening companion",
		ExpertiseDomains: []string{"botany"},
		Version:          "juniper-1",
	}
	if err := WriteProfile(dir, "sam", want); err != nil {
		t.Fatal(err)
	}

	got, err := NewFileStore(dir).Resolve(context.Background(), "sam")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Juniper" || got.Version != "juniper-1" {
		t.Fatalf("expected user profile, got %+v", got)
	}
	// Sparse fields are filled from the skeleton.
	if got.Invariants != Skeleton.Invariants {
		t.Fatalf("expected skeleton invariants fill, got %q", got.Invariants)
	}
	if got.CommunicationStyle != Skeleton.CommunicationStyle {
		t.Fatalf("expected skeleton communication fill, got %q", got.CommunicationStyle)
	}
}

func TestFileStoreFallsBackToDefaultProfile(t *testing.T) {
	dir := t.TempDir()
	if err := WriteProfile(dir, "default", Snapshot{Name: "House Persona", Version: "house-1"}); err != nil {
		t.Fatal(err)
	}

	got, err := NewFileStore(dir).Resolve(context.Background(), "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "House Persona" {
		t.Fatalf("expected default profile, got %+v", got)
	}
}

func TestFileStoreFreshInstallYieldsSkeleton(t *testing.T) {
	got, err := NewFileStore(t.TempDir()).Resolve(context.Background(), "anyone")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != Skeleton.Name || got.Version != Skeleton.Version {
		t.Fatalf("expected skeleton on empty store, got %+v", got)
	}
}

func TestFileStoreMalformedProfileErrors(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "sam.yaml"), []byte("name: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileStore(dir).Resolve(context.Background(), "sam"); err == nil {
		t.Fatal("expected parse error for malformed profile")
	}
}

func TestFileStoreHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewFileStore(t.TempDir()).Resolve(ctx, "sam"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
