// Package extract is the Catchfish: a four-layer pipeline turning one raw
// source into an extraction record and a knowledge-store write batch.
// Each layer is pure given the previous layer's output.
package extract

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/trawler/internal/model"
	"github.com/ppiankov/trawler/internal/store"
)

// Version identifies this extractor build in provenance records.
const Version = "catchfish/0.2"

// Layer numbers for failure classification.
const (
	LayerNormalize = 1
	LayerIdentify  = 2
	LayerAssemble  = 3
	LayerBatch     = 4
)

// Failure reports which layer broke and keeps whatever partial record
// exists so the navigator can choose a retry strategy. Layer-4 failures
// (store rejections) are always retryable after batch repair.
type Failure struct {
	Layer   int
	Reason  string
	Partial *model.ExtractionRecord
	Err     error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("extraction failed at layer %d: %s", f.Layer, f.Reason)
}

func (f *Failure) Unwrap() error { return f.Err }

// clockFunc supplies wall time for duration tracking (injectable for tests).
var clockFunc = time.Now

// Extractor runs the four-layer pipeline.
type Extractor struct {
	completer Completer
	logger    *zap.SugaredLogger
}

// New creates an Extractor over the proxy endpoint.
func New(completer Completer, logger *zap.SugaredLogger) *Extractor {
	return &Extractor{completer: completer, logger: logger}
}

// Extract runs layers 1-3 over one source and reports wall time as a
// first-class output; bounded latency per source is a design target.
// The gap report, when present, focuses layer 2 on missing capabilities.
func (e *Extractor) Extract(ctx context.Context, source model.Source, content []byte, spec model.DomainSpec, gap *model.GapReport) (*model.ExtractionRecord, error) {
	start := clockFunc()

	// Layer 1: normalization is infallible for text-ish inputs; a parse
	// error here means the source itself is unusable.
	text, err := Normalize(content, source.ContentType)
	if err != nil || text == "" {
		reason := "source produced no text"
		if err != nil {
			reason = err.Error()
		}
		return nil, &Failure{Layer: LayerNormalize, Reason: reason, Err: err}
	}

	// Layer 2: identification against the controlled vocabulary.
	ident, err := identify(ctx, e.completer, text, spec, gap)
	if err != nil {
		return nil, &Failure{Layer: LayerIdentify, Reason: err.Error(), Err: err}
	}
	if len(ident.Entities) == 0 {
		partial := e.assemble(source, spec, text, ident, clockFunc().Sub(start))
		return nil, &Failure{
			Layer:   LayerIdentify,
			Reason:  "no vocabulary entities identified",
			Partial: partial,
		}
	}
	if len(ident.Dropped) > 0 {
		e.logger.Debugw("Identification dropped lines",
			"domain", spec.Domain, "dropped", len(ident.Dropped))
	}

	// Layer 3: structured document assembly.
	record := e.assemble(source, spec, text, ident, clockFunc().Sub(start))

	e.logger.Infow("Source extracted",
		"domain", spec.Domain,
		"source", source.Hash[:12],
		"entities", len(record.Entities),
		"relationships", len(record.Relationships),
		"duration_ms", record.DurationMS,
	)
	return record, nil
}

func (e *Extractor) assemble(source model.Source, spec model.DomainSpec, text string, ident *identification, elapsed time.Duration) *model.ExtractionRecord {
	record := &model.ExtractionRecord{
		Source:           source,
		Domain:           spec.Domain,
		ExtractorVersion: Version,
		Entities:         ident.Entities,
		Relationships:    ident.Relationships,
		DurationMS:       elapsed.Milliseconds(),
	}

	confidence := 0.0
	entityIDs := make([]string, len(ident.Entities))
	for i, ent := range ident.Entities {
		confidence += ent.Confidence
		entityIDs[i] = ent.ID
	}
	if len(ident.Entities) > 0 {
		confidence /= float64(len(ident.Entities))
	}

	record.Document = model.StructuredDocument{
		Header: model.DocumentHeader{
			SourceHash:       source.Hash,
			ExtractorVersion: Version,
			Domain:           spec.Domain,
			Confidence:       confidence,
			GeneratedAt:      clockFunc().UTC(),
		},
		Sections: []model.DocumentSection{
			{Title: "content", Body: text, EntityIDs: entityIDs},
		},
	}
	return record
}

// ToBatch is layer 4: translation of a record into a knowledge-store write
// batch. Every entity becomes an is_a and a labeled fact; every
// relationship becomes one fact. Pure over the record.
func ToBatch(record *model.ExtractionRecord) *store.Batch {
	batch := &store.Batch{
		Domain:     record.Domain,
		SourceHash: record.Source.Hash,
		Extractor:  record.ExtractorVersion,
	}

	prov := func(confidence float64) model.Provenance {
		return model.Provenance{
			SourceHash: record.Source.Hash,
			Extractor:  record.ExtractorVersion,
			Confidence: confidence,
		}
	}

	for _, ent := range record.Entities {
		batch.Facts = append(batch.Facts,
			model.Fact{
				Domain: record.Domain, Subject: ent.ID,
				Predicate: model.PredicateIsA, Object: ent.Type,
				Provenance: prov(ent.Confidence),
			},
			model.Fact{
				Domain: record.Domain, Subject: ent.ID,
				Predicate: model.PredicateLabeled, Object: ent.Label,
				Provenance: prov(ent.Confidence),
			},
		)
	}

	for _, rel := range record.Relationships {
		batch.Facts = append(batch.Facts, model.Fact{
			Domain: record.Domain, Subject: rel.SubjectID,
			Predicate: rel.Predicate, Object: rel.ObjectID,
			Provenance: prov(rel.Confidence),
		})
	}

	return batch
}
