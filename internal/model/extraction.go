package model

import "time"

// DocumentHeader is the metadata block at the top of every structured
// document assembled by the extractor's layer 3.
type DocumentHeader struct {
	SourceHash       string    `json:"source_hash"`
	ExtractorVersion string    `json:"extractor_version"`
	Domain           string    `json:"domain"`
	Confidence       float64   `json:"confidence"` // Mean entity confidence for the record
	GeneratedAt      time.Time `json:"generated_at"`
}

// DocumentSection groups the normalized text around the entities it mentions.
type DocumentSection struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	EntityIDs []string `json:"entity_ids,omitempty"`
}

// StructuredDocument is the layer-3 output: normalized content organized
// under a metadata header.
type StructuredDocument struct {
	Header   DocumentHeader    `json:"header"`
	Sections []DocumentSection `json:"sections"`
}

// ExtractionRecord is the output of one extractor run over one Source.
// It is owned by the extractor that created it until its batch commits,
// and immutable thereafter.
type ExtractionRecord struct {
	Source           Source             `json:"source"`
	Domain           string             `json:"domain"`
	ExtractorVersion string             `json:"extractor_version"`
	Entities         []Entity           `json:"entities"`      // Ordered as identified
	Relationships    []Relationship     `json:"relationships"`
	Document         StructuredDocument `json:"document"`
	DurationMS       int64              `json:"duration_ms"` // Wall time for the full four-layer run
}

// EntityByID returns the entity with the given id, if present.
func (r *ExtractionRecord) EntityByID(id string) (Entity, bool) {
	for _, e := range r.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return Entity{}, false
}

// Capabilities returns the capability-typed entities in identification order.
func (r *ExtractionRecord) Capabilities() []Entity {
	var caps []Entity
	for _, e := range r.Entities {
		if e.Type == EntityTypeCapability {
			caps = append(caps, e)
		}
	}
	return caps
}
