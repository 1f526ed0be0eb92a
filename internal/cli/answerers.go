package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/trawler/internal/llm"
	"github.com/ppiankov/trawler/internal/model"
	"github.com/ppiankov/trawler/internal/parity"
	"github.com/ppiankov/trawler/internal/store"
)

// proxyAnswerer lets the external proxy answer parity tasks as the domain
// expert it is being measured as.
type proxyAnswerer struct {
	proxy  *llm.Proxy
	domain string
}

func (p *proxyAnswerer) Answer(ctx context.Context, task parity.Task) (string, error) {
	resp, err := p.proxy.Complete(ctx, llm.CompletionRequest{
		Prompt: task.Prompt,
		Context: llm.RoleContext{
			Role:   "domain-service",
			System: fmt.Sprintf("You are a %s domain expert. Answer the request directly and concretely.", p.domain),
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// catchAnswerer answers parity tasks from the committed fact graph: the
// capability's labels and relationships, rendered as text. This is the
// candidate side of the gate; a catch whose facts cannot cover the task
// vocabulary loses the comparison on its own merits.
type catchAnswerer struct {
	facts  interface {
		All(ctx context.Context, p store.Pattern) ([]model.Fact, error)
	}
	domain string
}

func (c *catchAnswerer) Answer(ctx context.Context, task parity.Task) (string, error) {
	capability := capabilityOf(task.ID)
	if capability == "" {
		return "", fmt.Errorf("task %s names no capability", task.ID)
	}

	facts, err := c.facts.All(ctx, store.Pattern{Domain: c.domain, Subject: capability})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(strings.ReplaceAll(capability, "_", " "))
	for _, f := range facts {
		if model.IsTrustPredicate(f.Predicate) {
			continue
		}
		fmt.Fprintf(&b, "\n%s %s %s",
			strings.ReplaceAll(f.Subject, "_", " "),
			strings.ReplaceAll(f.Predicate, "_", " "),
			strings.ReplaceAll(f.Object, "_", " "),
		)
	}
	return b.String(), nil
}

// capabilityOf extracts the capability id from a scenario-derived task id
// of the form domain.capability.kind.
func capabilityOf(taskID string) string {
	parts := strings.Split(taskID, ".")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-2]
}
