package engine

import (
	"sort"

	"github.com/michaelv2/claude-cortex-core/internal/memerr"
	"github.com/michaelv2/claude-cortex-core/internal/store"
)

// RelatedMemory is a neighbor in the link graph.
type RelatedMemory struct {
	Memory   store.Memory `json:"memory"`
	Strength float64      `json:"strength"`
	// Direction is "out" when the queried memory is the source.
	Direction string `json:"direction"`
}

// LinkMemories creates or strengthens a typed edge. Self-links, unknown
// relationships, and missing endpoints are rejected with INVALID_RELATIONSHIP.
func (e *Engine) LinkMemories(source, target int64, relationship string, strength float64) error {
	if err := e.checkDB(); err != nil {
		return err
	}
	if source == target {
		return memerr.InvalidRelationship("a memory cannot link to itself")
	}
	if !store.ValidRelationship(relationship) {
		return memerr.InvalidRelationship("unknown relationship: " + relationship)
	}
	for _, id := range []int64{source, target} {
		m, err := e.db.GetMemory(id)
		if err != nil {
			return err
		}
		if m == nil {
			return memerr.InvalidRelationship("link endpoint does not exist")
		}
	}
	if strength <= 0 {
		strength = 0.5
	}
	return e.db.CreateOrStrengthenLink(source, target, relationship, strength, 0.1)
}

// GetRelated returns neighbors grouped by relationship, each group ordered
// by strength descending.
func (e *Engine) GetRelated(id int64) (map[string][]RelatedMemory, error) {
	if err := e.checkDB(); err != nil {
		return nil, err
	}
	m, err := e.db.GetMemory(id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, memerr.MemoryNotFound(id)
	}

	links, err := e.db.LinksFor(id)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return map[string][]RelatedMemory{}, nil
	}

	ids := make([]int64, 0, len(links))
	for _, l := range links {
		other := l.TargetID
		if other == id {
			other = l.SourceID
		}
		ids = append(ids, other)
	}
	neighbors, err := e.db.GetMemoriesByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]store.Memory, len(neighbors))
	for _, n := range neighbors {
		byID[n.ID] = n
	}

	grouped := make(map[string][]RelatedMemory)
	for _, l := range links {
		other := l.TargetID
		direction := "out"
		if other == id {
			other = l.SourceID
			direction = "in"
		}
		n, ok := byID[other]
		if !ok {
			continue
		}
		grouped[l.Relationship] = append(grouped[l.Relationship], RelatedMemory{
			Memory:   n,
			Strength: l.Strength,
			Direction: direction,
		})
	}
	for rel := range grouped {
		group := grouped[rel]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Strength > group[j].Strength })
		grouped[rel] = group
	}
	return grouped, nil
}
