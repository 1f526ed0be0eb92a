package extract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ppiankov/trawler/internal/llm"
	"github.com/ppiankov/trawler/internal/model"
)

// Layer 2: entity/relationship identification against the domain's
// controlled vocabulary. The proxy does the reading; parsing and vocabulary
// filtering stay deterministic on this side.

// Completer is the slice of the proxy endpoint the extractor needs.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

const identifySystem = `You extract structured knowledge from text.
Reply ONLY with lines in these two forms, nothing else:
entity: <id> | <label> | <type> | <confidence 0..1>
rel: <subject id> | <predicate> | <object id> | <confidence 0..1>
Ids are lowercase snake_case. Use only the allowed types and predicates.`

func identifyPrompt(text string, spec model.DomainSpec, gap *model.GapReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Domain: %s\n", spec.Domain)
	fmt.Fprintf(&b, "Allowed entity types: %s, %s\n", strings.Join(spec.EntityTypes, ", "), model.EntityTypeCapability)
	fmt.Fprintf(&b, "Allowed predicates: %s\n", strings.Join(spec.Predicates, ", "))
	if gap != nil && len(gap.MissingCapabilities) > 0 {
		fmt.Fprintf(&b, "Focus on evidence for these missing capabilities: %s\n",
			strings.Join(gap.MissingCapabilities, ", "))
	}
	fmt.Fprintf(&b, "\nText:\n%s\n", text)
	return b.String()
}

// identification is the parsed layer-2 output before vocabulary filtering.
type identification struct {
	Entities      []model.Entity
	Relationships []model.Relationship
	Dropped       []string // Lines rejected by parsing or vocabulary
}

// identifyTextLimit bounds how much source text one completion sees.
const identifyTextLimit = 24000

// identify sends the normalized text to the proxy and parses the reply.
func identify(ctx context.Context, completer Completer, text string, spec model.DomainSpec, gap *model.GapReport) (*identification, error) {
	text = windowText(text, identifyTextLimit)
	resp, err := completer.Complete(ctx, llm.CompletionRequest{
		Prompt:      identifyPrompt(text, spec, gap),
		Context:     llm.RoleContext{Role: "extractor", System: identifySystem},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("proxy identification: %w", err)
	}
	return parseIdentification(resp.Text, spec), nil
}

// parseIdentification turns the proxy's line format into vocabulary-checked
// entities and relationships. Malformed or out-of-vocabulary lines are
// dropped and recorded, never guessed at.
func parseIdentification(reply string, spec model.DomainSpec) *identification {
	out := &identification{}
	seen := make(map[string]bool)

	for _, raw := range strings.Split(reply, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "entity:"):
			fields := splitFields(strings.TrimPrefix(line, "entity:"))
			if len(fields) != 4 {
				out.Dropped = append(out.Dropped, line)
				continue
			}
			conf, err := strconv.ParseFloat(fields[3], 64)
			if err != nil || conf < 0 || conf > 1 || !spec.HasEntityType(fields[2]) {
				out.Dropped = append(out.Dropped, line)
				continue
			}
			id := normalizeID(fields[0])
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out.Entities = append(out.Entities, model.Entity{
				ID: id, Label: fields[1], Type: fields[2], Confidence: conf,
			})

		case strings.HasPrefix(line, "rel:"):
			fields := splitFields(strings.TrimPrefix(line, "rel:"))
			if len(fields) != 4 {
				out.Dropped = append(out.Dropped, line)
				continue
			}
			conf, err := strconv.ParseFloat(fields[3], 64)
			if err != nil || conf < 0 || conf > 1 || !spec.HasPredicate(fields[1]) {
				out.Dropped = append(out.Dropped, line)
				continue
			}
			out.Relationships = append(out.Relationships, model.Relationship{
				SubjectID:  normalizeID(fields[0]),
				Predicate:  fields[1],
				ObjectID:   normalizeID(fields[2]),
				Confidence: conf,
			})
		}
	}
	return out
}

func splitFields(s string) []string {
	parts := strings.Split(s, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func normalizeID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.ReplaceAll(id, " ", "_")
}
