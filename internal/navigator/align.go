package navigator

import (
	"go.uber.org/zap"

	"github.com/ppiankov/trawler/internal/model"
)

// entityIndex is the cross-record view built during INDEXING: for every
// entity id, the highest-confidence declaration seen anywhere.
type entityIndex struct {
	best map[string]model.Entity
}

func buildIndex(records []*model.ExtractionRecord) *entityIndex {
	idx := &entityIndex{best: make(map[string]model.Entity)}
	for _, record := range records {
		for _, ent := range record.Entities {
			if prev, ok := idx.best[ent.ID]; !ok || ent.Confidence > prev.Confidence {
				idx.best[ent.ID] = ent
			}
		}
	}
	return idx
}

// align rewrites every record's entities to the winning declaration so the
// graph never receives two batches disagreeing about an entity's type or
// label. Returns the number of declarations rewritten.
func (idx *entityIndex) align(records []*model.ExtractionRecord, logger *zap.SugaredLogger) int {
	conflicts := 0
	for _, record := range records {
		for i, ent := range record.Entities {
			winner := idx.best[ent.ID]
			if ent.Type != winner.Type || ent.Label != winner.Label {
				logger.Debugw("Entity declaration aligned",
					"entity", ent.ID,
					"type", winner.Type,
					"displaced_type", ent.Type,
				)
				record.Entities[i].Type = winner.Type
				record.Entities[i].Label = winner.Label
				conflicts++
			}
		}
	}
	return conflicts
}
