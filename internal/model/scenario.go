package model

import "time"

// ScenarioKind is one leg of the fixed three-part scenario shape.
type ScenarioKind string

const (
	ScenarioHappyPath     ScenarioKind = "happy_path"
	ScenarioEdgeCase      ScenarioKind = "edge_case"
	ScenarioErrorHandling ScenarioKind = "error_handling"
)

// ScenarioKinds is the fixed order every capability is covered in.
var ScenarioKinds = []ScenarioKind{ScenarioHappyPath, ScenarioEdgeCase, ScenarioErrorHandling}

// BehaviorScenario is one executable test case derived from a capability
// entity. Body is a plain-text scenario consumable by an external runner.
type BehaviorScenario struct {
	ID         string       `json:"id"`
	Domain     string       `json:"domain"`
	Capability string       `json:"capability"` // Capability entity id
	Kind       ScenarioKind `json:"kind"`
	Title      string       `json:"title"`
	Body       string       `json:"body"`
}

// OperationEffect classifies a manifest operation as read-only or mutating.
type OperationEffect string

const (
	EffectRead  OperationEffect = "read"
	EffectWrite OperationEffect = "write"
)

// Operation is one invocable entry in a capability manifest.
type Operation struct {
	Name            string          `json:"name"`
	Effect          OperationEffect `json:"effect"`
	InputShape      string          `json:"input_shape"`  // Placeholder shape, filled by the service registry
	OutputShape     string          `json:"output_shape"`
	ConcurrencyRisk bool            `json:"concurrency_risk"` // Set for every mutating operation
}

// CapabilityManifest enumerates the operations a deployed catch exposes.
// An external service registry consumes it for routing; the ethics gate
// consumes the risk flags.
type CapabilityManifest struct {
	Domain      string      `json:"domain"`
	CatchID     string      `json:"catch_id"`
	GeneratedAt time.Time   `json:"generated_at"`
	Operations  []Operation `json:"operations"`
}
