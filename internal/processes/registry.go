// Package processes holds the static registry of external sub-processes a
// conversion fans out to, and the compact flag encoding shared with them.
package processes

import (
	"fmt"
	"strings"
)

// Identifier is the vendor process name carried by notifications.
type Identifier string

const (
	Transcoder          Identifier = "transcoder"
	ContentModeration   Identifier = "content-moderation"
	LabelDetection      Identifier = "label-detection"
	TextDetection       Identifier = "text-detection"
	Transcription       Identifier = "transcription"
	EntityExtraction    Identifier = "entity-extraction"
	SentimentAnalysis   Identifier = "sentiment-analysis"
	KeyphraseExtraction Identifier = "keyphrase-extraction"
)

// Kind groups sub-processes by the input they depend on.
type Kind int

const (
	KindPrimary Kind = iota
	KindVideoEnrichment
	KindAudioEnrichment
	KindTextEnrichment
)

// Entry maps a vendor process to where its status lives and where its result is found.
type Entry struct {
	Identifier   Identifier
	StatusColumn string
	// ResultSuffix is appended to the content hash to form the result key. For the
	// primary process it is a prefix under which every output object is listed.
	// It always starts with "/", so every output lives under "<contentHash>/".
	ResultSuffix string
	Kind         Kind
}

// IsPrimary reports whether a failure of this process cascades to all others.
func (e Entry) IsPrimary() bool {
	return e.Kind == KindPrimary
}

// NeedsVideo reports whether the process is meaningless for audio-only sources.
func (e Entry) NeedsVideo() bool {
	return e.Kind == KindVideoEnrichment
}

// ResultKey returns the output object key (or prefix, for the primary process).
func (e Entry) ResultKey(contentHash string) string {
	return contentHash + e.ResultSuffix
}

// Registry is an ordered, immutable set of entries. The order is the settings
// bit-string schema and must never be reshuffled.
type Registry struct {
	entries []Entry
	byID    map[Identifier]int
}

var defaultEntries = []Entry{
	{Identifier: Transcoder, StatusColumn: "transcode_status", ResultSuffix: "/transcoded/", Kind: KindPrimary},
	{Identifier: ContentModeration, StatusColumn: "moderation_status", ResultSuffix: "/moderation.json", Kind: KindVideoEnrichment},
	{Identifier: LabelDetection, StatusColumn: "label_detection_status", ResultSuffix: "/labels.json", Kind: KindVideoEnrichment},
	{Identifier: TextDetection, StatusColumn: "text_detection_status", ResultSuffix: "/text.json", Kind: KindVideoEnrichment},
	{Identifier: Transcription, StatusColumn: "transcription_status", ResultSuffix: "/transcript.json", Kind: KindAudioEnrichment},
	{Identifier: EntityExtraction, StatusColumn: "entities_status", ResultSuffix: "/entities.json", Kind: KindTextEnrichment},
	{Identifier: SentimentAnalysis, StatusColumn: "sentiment_status", ResultSuffix: "/sentiment.json", Kind: KindTextEnrichment},
	{Identifier: KeyphraseExtraction, StatusColumn: "key_phrases_status", ResultSuffix: "/keyphrases.json", Kind: KindTextEnrichment},
}

var defaultRegistry = mustNew(defaultEntries)

// Default returns the registry every component shares.
func Default() *Registry {
	return defaultRegistry
}

// New validates entries and builds a registry. Exactly one primary entry is required.
func New(entries []Entry) (*Registry, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("process registry requires at least one entry")
	}
	r := &Registry{
		entries: make([]Entry, len(entries)),
		byID:    make(map[Identifier]int, len(entries)),
	}
	primaries := 0
	columns := make(map[string]struct{}, len(entries))
	for i, entry := range entries {
		if entry.Identifier == "" || entry.StatusColumn == "" {
			return nil, fmt.Errorf("process entry %d: identifier and status column are required", i)
		}
		if !strings.HasPrefix(entry.ResultSuffix, "/") {
			return nil, fmt.Errorf("process %q: result suffix must start with \"/\"", entry.Identifier)
		}
		if _, dup := r.byID[entry.Identifier]; dup {
			return nil, fmt.Errorf("duplicate process identifier %q", entry.Identifier)
		}
		if _, dup := columns[entry.StatusColumn]; dup {
			return nil, fmt.Errorf("duplicate status column %q", entry.StatusColumn)
		}
		if entry.IsPrimary() {
			primaries++
		}
		columns[entry.StatusColumn] = struct{}{}
		r.byID[entry.Identifier] = i
		r.entries[i] = entry
	}
	if primaries != 1 {
		return nil, fmt.Errorf("process registry requires exactly one primary entry, got %d", primaries)
	}
	return r, nil
}

func mustNew(entries []Entry) *Registry {
	r, err := New(entries)
	if err != nil {
		panic(err)
	}
	return r
}

// Entries returns the entries in schema order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of registered sub-processes.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Lookup resolves a vendor identifier.
func (r *Registry) Lookup(id Identifier) (Entry, bool) {
	idx, ok := r.byID[Identifier(strings.TrimSpace(string(id)))]
	if !ok {
		return Entry{}, false
	}
	return r.entries[idx], true
}

// Index returns the schema position of id, or -1.
func (r *Registry) Index(id Identifier) int {
	idx, ok := r.byID[id]
	if !ok {
		return -1
	}
	return idx
}

// Primary returns the transcoding entry.
func (r *Registry) Primary() Entry {
	for _, entry := range r.entries {
		if entry.IsPrimary() {
			return entry
		}
	}
	// New guarantees a primary entry.
	panic("process registry has no primary entry")
}

// Identifiers returns every identifier in schema order.
func (r *Registry) Identifiers() []Identifier {
	out := make([]Identifier, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry.Identifier)
	}
	return out
}
