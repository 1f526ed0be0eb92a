// Package parity is the replacement gate: it runs a matched task set
// through the proxy and a candidate catch, scores both sides with a
// deterministic rubric, and decides whether routing may flip from proxy to
// real. The rubric is pure over the answers, so re-evaluating the same
// answers always yields the same score.
package parity

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/trawler/internal/model"
)

// Task is one entry in the matched task set. Both sides answer the same
// prompt; KeyPhrases drive the rubric.
type Task struct {
	ID         string
	Prompt     string
	KeyPhrases []string
}

// Answerer produces one side's answer to a task. The proxy endpoint and
// the deployed catch each sit behind this.
type Answerer interface {
	Answer(ctx context.Context, task Task) (string, error)
}

// Rubric scores one answer against a task, in [0, 1]. Implementations must
// be deterministic over their inputs.
type Rubric interface {
	Score(task Task, answer string) float64
}

// PhraseCoverage is the default rubric: the fraction of a task's key
// phrases present in the answer, case-insensitive. A task with no key
// phrases scores 1 for any non-empty answer.
type PhraseCoverage struct{}

func (PhraseCoverage) Score(task Task, answer string) float64 {
	if len(task.KeyPhrases) == 0 {
		if strings.TrimSpace(answer) == "" {
			return 0
		}
		return 1
	}
	lower := strings.ToLower(answer)
	hits := 0
	for _, phrase := range task.KeyPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			hits++
		}
	}
	return float64(hits) / float64(len(task.KeyPhrases))
}

// Evaluator runs parity evaluations for one configuration.
type Evaluator struct {
	rubric Rubric
	cfg    model.ParityConfig
	logger *zap.SugaredLogger
}

// New creates an Evaluator. A nil rubric picks PhraseCoverage.
func New(rubric Rubric, cfg model.ParityConfig, logger *zap.SugaredLogger) *Evaluator {
	if rubric == nil {
		rubric = PhraseCoverage{}
	}
	if cfg.MinTasks <= 0 {
		cfg.MinTasks = 10
	}
	if cfg.ReplaceThreshold <= 0 {
		cfg.ReplaceThreshold = 0.90
	}
	return &Evaluator{rubric: rubric, cfg: cfg, logger: logger}
}

// Evaluate answers every task on both sides and aggregates the rubric
// scores. The parity score is the candidate's score sum over the proxy's,
// capped at 1: beating the proxy earns no extra credit toward the gate.
func (e *Evaluator) Evaluate(ctx context.Context, domain, catchID string, tasks []Task, proxy, candidate Answerer) (*model.ParityResult, error) {
	if len(tasks) < e.cfg.MinTasks {
		return nil, fmt.Errorf("matched task set too small: %d of %d required", len(tasks), e.cfg.MinTasks)
	}

	result := &model.ParityResult{
		Domain:    domain,
		CatchID:   catchID,
		TaskCount: len(tasks),
		Breakdown: make([]model.TaskScore, 0, len(tasks)),
	}

	proxySum, candidateSum := 0.0, 0.0
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		proxyAnswer, err := proxy.Answer(ctx, task)
		if err != nil {
			return nil, fmt.Errorf("proxy answer for %s: %w", task.ID, err)
		}
		candidateAnswer, err := candidate.Answer(ctx, task)
		if err != nil {
			return nil, fmt.Errorf("candidate answer for %s: %w", task.ID, err)
		}

		ps := e.rubric.Score(task, proxyAnswer)
		cs := e.rubric.Score(task, candidateAnswer)
		proxySum += ps
		candidateSum += cs
		result.Breakdown = append(result.Breakdown, model.TaskScore{
			TaskID: task.ID, ProxyScore: ps, CandidateScore: cs,
		})
	}

	if proxySum == 0 {
		// A proxy that scores zero across the whole set sets no bar.
		result.Score = 1
	} else {
		result.Score = candidateSum / proxySum
		if result.Score > 1 {
			result.Score = 1
		}
	}

	e.logger.Infow("Parity evaluated",
		"domain", domain,
		"catch", catchID,
		"tasks", result.TaskCount,
		"score", result.Score,
	)
	return result, nil
}

// ShouldReplace reports whether the result clears the replacement gate.
func (e *Evaluator) ShouldReplace(result *model.ParityResult) bool {
	return result.TaskCount >= e.cfg.MinTasks && result.Score >= e.cfg.ReplaceThreshold
}

// Shortfall lists the tasks where the candidate scored below the proxy,
// worst gap first. Attached to rejected evaluations so the next expedition
// knows where parity broke.
func Shortfall(result *model.ParityResult) []model.TaskScore {
	var behind []model.TaskScore
	for _, ts := range result.Breakdown {
		if ts.CandidateScore < ts.ProxyScore {
			behind = append(behind, ts)
		}
	}
	sort.Slice(behind, func(i, j int) bool {
		gi := behind[i].ProxyScore - behind[i].CandidateScore
		gj := behind[j].ProxyScore - behind[j].CandidateScore
		if gi != gj {
			return gi > gj
		}
		return behind[i].TaskID < behind[j].TaskID
	})
	return behind
}

// TasksFromScenarios derives a matched task set from a catch's scenario
// set. The scenario body becomes the prompt; the capability id's words
// become the key phrases the rubric looks for.
func TasksFromScenarios(scenarios []model.BehaviorScenario) []Task {
	tasks := make([]Task, 0, len(scenarios))
	for _, sc := range scenarios {
		tasks = append(tasks, Task{
			ID:         sc.ID,
			Prompt:     sc.Body,
			KeyPhrases: strings.Split(sc.Capability, "_"),
		})
	}
	return tasks
}
