package synth

import (
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/trawler/internal/model"
)

// mutatingVerbs classify a capability as a write operation when its label
// leads with one of them. Anything else is treated as a read.
var mutatingVerbs = map[string]bool{
	"add": true, "assign": true, "cancel": true, "close": true,
	"create": true, "delete": true, "merge": true, "move": true,
	"plan": true, "publish": true, "remove": true, "reorder": true,
	"schedule": true, "set": true, "split": true, "update": true,
	"write": true,
}

// manifest derives the capability manifest from the collected capabilities.
// Operations are sorted by name so two synthesis runs over the same facts
// produce identical manifests.
func (s *Synthesizer) manifest(spec model.DomainSpec, catchID string, caps []capability) *model.CapabilityManifest {
	ops := make([]model.Operation, 0, len(caps))
	for _, cap := range caps {
		effect := model.EffectRead
		if isMutating(cap.Label) || isMutating(cap.ID) {
			effect = model.EffectWrite
		}
		ops = append(ops, model.Operation{
			Name:        cap.ID,
			Effect:      effect,
			InputShape:  "request",
			OutputShape: "result",
			// Write operations over shared domain state are flagged so
			// callers know to serialize or fence them.
			ConcurrencyRisk: effect == model.EffectWrite,
		})
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })

	return &model.CapabilityManifest{
		Domain:      spec.Domain,
		CatchID:     catchID,
		GeneratedAt: time.Now().UTC(),
		Operations:  ops,
	}
}

func isMutating(label string) bool {
	fields := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return r == ' ' || r == '_' || r == '-'
	})
	return len(fields) > 0 && mutatingVerbs[fields[0]]
}
