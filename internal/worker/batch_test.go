package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/trawler/internal/model"
)

// mockNavigator implements ExpeditionRunner.
type mockNavigator struct {
	shouldError bool
}

func (m *mockNavigator) Run(ctx context.Context, spec model.DomainSpec) (*model.Catch, error) {
	time.Sleep(10 * time.Millisecond) // Simulate work
	catch := &model.Catch{ID: "catch-" + spec.Domain, Domain: spec.Domain, State: model.StateDeployed}
	if m.shouldError {
		catch.State = model.StateFailed
		return catch, errors.New("expedition failed")
	}
	return catch, nil
}

func threeSpecs() []model.DomainSpec {
	var specs []model.DomainSpec
	for _, domain := range []string{"pm", "legal", "support"} {
		specs = append(specs, model.DomainSpec{
			Domain:      domain,
			EntityTypes: []string{"role"},
			Predicates:  []string{"owns"},
			Sources:     []string{domain + ".txt"},
		})
	}
	return specs
}

func TestBatchProcessor_ProcessSpecs(t *testing.T) {
	processor := NewBatchProcessor(&mockNavigator{}, 2)

	results := processor.ProcessSpecs(context.Background(), threeSpecs())
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	for _, res := range results {
		if res.Error != nil {
			t.Errorf("unexpected error for %s: %v", res.Domain, res.Error)
			continue
		}
		if res.Catch == nil || res.Catch.State != model.StateDeployed {
			t.Errorf("expedition for %s did not deploy: %+v", res.Domain, res.Catch)
		}
	}
}

func TestBatchProcessor_FailedExpeditionKeepsCatch(t *testing.T) {
	processor := NewBatchProcessor(&mockNavigator{shouldError: true}, 2)

	results := processor.ProcessSpecs(context.Background(), threeSpecs()[:1])
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Error == nil {
		t.Error("expected expedition error")
	}
	if results[0].Catch == nil || results[0].Catch.State != model.StateFailed {
		t.Error("failed expedition should still return its catch")
	}
}

func TestBatchProcessor_ProcessSpecs_Empty(t *testing.T) {
	processor := NewBatchProcessor(&mockNavigator{}, 2)
	results := processor.ProcessSpecs(context.Background(), nil)
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const pmSpecYAML = `domain: pm
description: Project management
entity_types: [role, artifact]
predicates: [owns, produces]
sources:
  - pm_handbook.html
`

func TestLoadSpec(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "pm.yaml", pmSpecYAML)

	spec, err := LoadSpec(path)
	if err != nil {
		t.Fatalf("LoadSpec failed: %v", err)
	}
	if spec.Domain != "pm" || len(spec.EntityTypes) != 2 || len(spec.Sources) != 1 {
		t.Errorf("spec not parsed: %+v", spec)
	}
}

func TestLoadSpec_Invalid(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadSpec(writeFile(t, dir, "nodomain.yaml", "sources: [a.txt]\n")); err == nil {
		t.Error("expected error for a spec without a domain")
	}
	if _, err := LoadSpec(writeFile(t, dir, "nosources.yaml", "domain: pm\n")); err == nil {
		t.Error("expected error for a spec without sources")
	}
	if _, err := LoadSpec(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestReadSpecPaths(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "manifest.txt", `specs/pm.yaml
# comment
specs/legal.yaml

specs/pm.yaml
`)

	paths, err := ReadSpecPaths(manifest)
	if err != nil {
		t.Fatalf("ReadSpecPaths failed: %v", err)
	}
	expected := []string{"specs/pm.yaml", "specs/legal.yaml"}
	if len(paths) != len(expected) {
		t.Fatalf("expected %d paths, got %d", len(expected), len(paths))
	}
	for i, p := range paths {
		if p != expected[i] {
			t.Errorf("expected %s at %d, got %s", expected[i], i, p)
		}
	}
}

func TestReadSpecPaths_NonExistent(t *testing.T) {
	if _, err := ReadSpecPaths("no_such_manifest.txt"); err == nil {
		t.Error("expected error for a missing manifest")
	}
}

func TestProcessManifest(t *testing.T) {
	dir := t.TempDir()
	specPath := writeFile(t, dir, "pm.yaml", pmSpecYAML)
	manifest := writeFile(t, dir, "manifest.txt", specPath+"\n")

	processor := NewBatchProcessor(&mockNavigator{}, 2)
	results, err := processor.ProcessManifest(context.Background(), manifest)
	if err != nil {
		t.Fatalf("ProcessManifest failed: %v", err)
	}
	if len(results) != 1 || results[0].Domain != "pm" {
		t.Errorf("unexpected results: %+v", results)
	}
}
