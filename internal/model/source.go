package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Source is an immutable reference to one raw input. Re-fetching the same
// locator produces a new Source with a new hash; nothing ever mutates one.
type Source struct {
	Hash        string    `json:"hash"`         // SHA-256 of the raw content
	Locator     string    `json:"locator"`      // URL or local path the content came from
	RetrievedAt time.Time `json:"retrieved_at"` // When the content was fetched
	ContentType string    `json:"content_type,omitempty"`
	Bytes       int64     `json:"bytes"` // Raw content size
}

// NewSource builds a Source from raw content. The hash is the identity:
// two fetches with identical bytes are the same Source for provenance purposes.
func NewSource(locator string, content []byte, contentType string) Source {
	sum := sha256.Sum256(content)
	return Source{
		Hash:        hex.EncodeToString(sum[:]),
		Locator:     locator,
		RetrievedAt: time.Now().UTC(),
		ContentType: contentType,
		Bytes:       int64(len(content)),
	}
}

// DomainSpec describes one target domain: its controlled vocabulary and
// where to look for raw material. Extraction rejects entities and
// relationships that fall outside the vocabulary.
type DomainSpec struct {
	Domain      string   `json:"domain" yaml:"domain"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	EntityTypes []string `json:"entity_types" yaml:"entity_types"`
	Predicates  []string `json:"predicates" yaml:"predicates"`
	Sources     []string `json:"sources" yaml:"sources"` // Locators to collect
}

// EntityTypeCapability marks entities that represent an invocable capability
// of the domain. Fishnet derives one scenario triple per capability entity.
const EntityTypeCapability = "capability"

// HasEntityType reports whether t belongs to the domain vocabulary.
// The capability type is always part of the vocabulary.
func (d DomainSpec) HasEntityType(t string) bool {
	if t == EntityTypeCapability {
		return true
	}
	for _, known := range d.EntityTypes {
		if known == t {
			return true
		}
	}
	return false
}

// HasPredicate reports whether p belongs to the domain vocabulary.
// Reserved trust.* predicates bypass it; the registry owns that namespace.
func (d DomainSpec) HasPredicate(p string) bool {
	if IsTrustPredicate(p) {
		return true
	}
	for _, known := range d.Predicates {
		if known == p {
			return true
		}
	}
	return false
}
