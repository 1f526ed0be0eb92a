package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/trawler/internal/model"
)

// ExpeditionRunner drives one expedition for a domain. *navigator.Navigator
// satisfies it.
type ExpeditionRunner interface {
	Run(ctx context.Context, spec model.DomainSpec) (*model.Catch, error)
}

// ExpeditionJob is one domain expedition queued on the pool.
type ExpeditionJob struct {
	Spec   model.DomainSpec
	Runner ExpeditionRunner
}

// Execute runs the expedition.
func (j *ExpeditionJob) Execute(ctx context.Context) Result {
	catch, err := j.Runner.Run(ctx, j.Spec)
	return &ExpeditionResult{
		Domain: j.Spec.Domain,
		Catch:  catch,
		Error:  err,
	}
}

// ExpeditionResult is the outcome of one expedition job. Catch is present
// even on error: a FAILED or ABANDONED catch still carries its history.
type ExpeditionResult struct {
	Domain string
	Catch  *model.Catch
	Error  error
}

// GetError returns the expedition's error, if any.
func (r *ExpeditionResult) GetError() error {
	return r.Error
}

// BatchProcessor runs many expeditions concurrently.
type BatchProcessor struct {
	runner      ExpeditionRunner
	concurrency int
}

// NewBatchProcessor creates a processor running at most concurrency
// expeditions at once.
func NewBatchProcessor(runner ExpeditionRunner, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		runner:      runner,
		concurrency: concurrency,
	}
}

// ProcessSpecs runs one expedition per spec and returns every outcome.
func (b *BatchProcessor) ProcessSpecs(ctx context.Context, specs []model.DomainSpec) []*ExpeditionResult {
	if len(specs) == 0 {
		return []*ExpeditionResult{}
	}

	pool := NewPool(b.concurrency)
	pool.Start()

	// Cancel the pool when the caller's context dies; the pool has its own
	// internal lifetime otherwise.
	stop := context.AfterFunc(ctx, pool.Shutdown)
	defer stop()

	for _, spec := range specs {
		pool.Submit(&ExpeditionJob{Spec: spec, Runner: b.runner})
	}

	results := pool.Wait()

	out := make([]*ExpeditionResult, len(results))
	for i, result := range results {
		out[i] = result.(*ExpeditionResult)
	}
	return out
}

// ProcessManifest reads a manifest of spec paths and runs them all.
func (b *BatchProcessor) ProcessManifest(ctx context.Context, manifestPath string) ([]*ExpeditionResult, error) {
	paths, err := ReadSpecPaths(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	specs := make([]model.DomainSpec, 0, len(paths))
	for _, path := range paths {
		spec, err := LoadSpec(path)
		if err != nil {
			return nil, err
		}
		specs = append(specs, *spec)
	}
	return b.ProcessSpecs(ctx, specs), nil
}

// LoadSpec reads one domain spec from a YAML file.
func LoadSpec(path string) (*model.DomainSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec %s: %w", path, err)
	}
	var spec model.DomainSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse spec %s: %w", path, err)
	}
	if spec.Domain == "" {
		return nil, fmt.Errorf("spec %s names no domain", path)
	}
	if len(spec.Sources) == 0 {
		return nil, fmt.Errorf("spec %s lists no sources", path)
	}
	return &spec, nil
}

// ReadSpecPaths reads spec file paths from a manifest (one per line),
// skipping blanks and comments, deduplicating.
func ReadSpecPaths(manifestPath string) ([]string, error) {
	file, err := os.Open(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer func() { _ = file.Close() }()

	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan manifest: %w", err)
	}
	return paths, nil
}
