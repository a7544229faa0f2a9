// Package memory provides an in-memory GraphStore. It backs unit tests and
// small embedded deployments where running PostgreSQL is not worth it.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/vellum-graph/vellum/pkg/model"
	"github.com/vellum-graph/vellum/pkg/store"
)

type groupData struct {
	documents     []model.Document
	sections      map[string]model.Section
	chunks        []model.Chunk
	entities      map[string]model.Entity
	relationships []model.Relationship
	keyValues     []model.KeyValue
	tables        []model.Table
	communities   []model.Community
	summaryNodes  []model.SummaryNode
}

// GraphMemStore implements store.GraphStore on plain maps guarded by a
// RWMutex. Vector search is brute-force cosine similarity; keyword search is
// case-insensitive token matching.
type GraphMemStore struct {
	mu     sync.RWMutex
	groups map[string]*groupData
}

func NewGraphMemStore() *GraphMemStore {
	return &GraphMemStore{groups: make(map[string]*groupData)}
}

func (s *GraphMemStore) group(groupID string) *groupData {
	g, ok := s.groups[groupID]
	if !ok {
		g = &groupData{
			sections: make(map[string]model.Section),
			entities: make(map[string]model.Entity),
		}
		s.groups[groupID] = g
	}
	return g
}

// AddDocument and friends populate the store. They are not part of the
// GraphStore interface; ingestion is external in production.

func (s *GraphMemStore) AddDocument(d model.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.group(d.GroupID).documents = append(s.group(d.GroupID).documents, d)
}

func (s *GraphMemStore) AddSection(sec model.Section) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.group(sec.GroupID).sections[sec.ID] = sec
}

func (s *GraphMemStore) AddChunk(c model.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Hash == "" {
		c.Hash = model.ContentHash(c.Text)
	}
	s.group(c.GroupID).chunks = append(s.group(c.GroupID).chunks, c)
}

func (s *GraphMemStore) AddEntity(e model.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.group(e.GroupID).entities[e.ID] = e
}

func (s *GraphMemStore) AddRelationship(r model.Relationship) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.group(r.GroupID).relationships = append(s.group(r.GroupID).relationships, r)
}

func (s *GraphMemStore) AddKeyValue(kv model.KeyValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.group(kv.GroupID).keyValues = append(s.group(kv.GroupID).keyValues, kv)
}

func (s *GraphMemStore) AddTable(t model.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.group(t.GroupID).tables = append(s.group(t.GroupID).tables, t)
}

func (s *GraphMemStore) AddCommunity(c model.Community) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.group(c.GroupID).communities = append(s.group(c.GroupID).communities, c)
}

func (s *GraphMemStore) AddSummaryNode(n model.SummaryNode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.group(n.GroupID).summaryNodes = append(s.group(n.GroupID).summaryNodes, n)
}

func (s *GraphMemStore) GetDocuments(ctx context.Context, groupID string) ([]model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, nil
	}
	docs := make([]model.Document, len(g.documents))
	copy(docs, g.documents)
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].IndexedAt.Equal(docs[j].IndexedAt) {
			return docs[i].IndexedAt.Before(docs[j].IndexedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

func (s *GraphMemStore) GetDocument(ctx context.Context, groupID, documentID string) (model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if g, ok := s.groups[groupID]; ok {
		for _, d := range g.documents {
			if d.ID == documentID {
				return d, nil
			}
		}
	}
	return model.Document{}, store.ErrNotFound
}

func (s *GraphMemStore) SearchChunksByEmbedding(ctx context.Context, groupID string, embedding []float32, limit int) ([]store.ChunkHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, nil
	}
	var hits []store.ChunkHit
	for _, c := range g.chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		hits = append(hits, store.ChunkHit{Chunk: c, Score: cosineSimilarity(embedding, c.Embedding)})
	}
	return topChunkHits(hits, limit), nil
}

func (s *GraphMemStore) SearchChunksByKeywords(ctx context.Context, groupID, query string, limit int) ([]store.ChunkHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, nil
	}
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}
	var hits []store.ChunkHit
	for _, c := range g.chunks {
		text := strings.ToLower(c.Text)
		matched := 0
		for _, t := range terms {
			if strings.Contains(text, t) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, store.ChunkHit{Chunk: c, Score: float64(matched) / float64(len(terms))})
	}
	return topChunkHits(hits, limit), nil
}

func (s *GraphMemStore) GetChunksByIDs(ctx context.Context, groupID string, chunkIDs []string) ([]model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, nil
	}
	want := make(map[string]struct{}, len(chunkIDs))
	for _, id := range chunkIDs {
		want[id] = struct{}{}
	}
	var chunks []model.Chunk
	for _, c := range g.chunks {
		if _, ok := want[c.ID]; ok {
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

func (s *GraphMemStore) BestChunkForDocument(ctx context.Context, groupID, documentID string, embedding []float32) (store.ChunkHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return store.ChunkHit{}, store.ErrNotFound
	}
	best := store.ChunkHit{Score: math.Inf(-1)}
	found := false
	for _, c := range g.chunks {
		if c.DocumentID != documentID || len(c.Embedding) == 0 {
			continue
		}
		score := cosineSimilarity(embedding, c.Embedding)
		if !found || score > best.Score {
			best = store.ChunkHit{Chunk: c, Score: score}
			found = true
		}
	}
	if !found {
		return store.ChunkHit{}, store.ErrNotFound
	}
	return best, nil
}

func (s *GraphMemStore) GetSectionsByIDs(ctx context.Context, groupID string, sectionIDs []string) ([]model.Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, nil
	}
	var sections []model.Section
	for _, id := range sectionIDs {
		if sec, ok := g.sections[id]; ok {
			sections = append(sections, sec)
		}
	}
	return sections, nil
}

func (s *GraphMemStore) SearchEntitiesByEmbedding(ctx context.Context, groupID string, embedding []float32, limit int) ([]store.EntityHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, nil
	}
	var hits []store.EntityHit
	for _, e := range g.entities {
		if len(e.Embedding) == 0 {
			continue
		}
		hits = append(hits, store.EntityHit{Entity: e, Score: cosineSimilarity(embedding, e.Embedding)})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Entity.ID < hits[j].Entity.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *GraphMemStore) GetEntitiesByIDs(ctx context.Context, groupID string, entityIDs []string) ([]model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, nil
	}
	var entities []model.Entity
	for _, id := range entityIDs {
		if e, ok := g.entities[id]; ok {
			entities = append(entities, e)
		}
	}
	return entities, nil
}

func (s *GraphMemStore) GetNeighborhood(ctx context.Context, groupID string, seedEntityIDs []string, maxDepth, maxEntities int) (store.Subgraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub := store.Subgraph{Entities: make(map[string]model.Entity)}
	g, ok := s.groups[groupID]
	if !ok {
		return sub, nil
	}
	if maxDepth <= 0 {
		maxDepth = 1
	}
	if maxEntities <= 0 {
		maxEntities = 200
	}

	frontier := make([]string, 0, len(seedEntityIDs))
	for _, id := range seedEntityIDs {
		if e, ok := g.entities[id]; ok {
			sub.Entities[id] = e
			frontier = append(frontier, id)
		}
	}

	seenRels := make(map[string]struct{})
	for depth := 0; depth < maxDepth && len(frontier) > 0 && len(sub.Entities) < maxEntities; depth++ {
		inFrontier := make(map[string]struct{}, len(frontier))
		for _, id := range frontier {
			inFrontier[id] = struct{}{}
		}

		var next []string
		for _, r := range g.relationships {
			if _, ok := seenRels[r.ID]; ok {
				continue
			}
			_, srcHit := inFrontier[r.SourceID]
			_, tgtHit := inFrontier[r.TargetID]
			if !srcHit && !tgtHit {
				continue
			}
			seenRels[r.ID] = struct{}{}
			sub.Relationships = append(sub.Relationships, r)

			for _, id := range []string{r.SourceID, r.TargetID} {
				if _, ok := sub.Entities[id]; ok {
					continue
				}
				if e, ok := g.entities[id]; ok && len(sub.Entities) < maxEntities {
					sub.Entities[id] = e
					next = append(next, id)
				}
			}
		}
		frontier = next
	}
	return sub, nil
}

func (s *GraphMemStore) SearchCommunities(ctx context.Context, groupID string, embedding []float32, level, limit int) ([]store.CommunityHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok || len(g.communities) == 0 {
		return nil, store.ErrNoCommunities
	}
	var hits []store.CommunityHit
	for _, c := range g.communities {
		if c.Level != level || len(c.Embedding) == 0 {
			continue
		}
		hits = append(hits, store.CommunityHit{Community: c, Score: cosineSimilarity(embedding, c.Embedding)})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Community.ID < hits[j].Community.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *GraphMemStore) GetSiblingCommunities(ctx context.Context, groupID, communityID string) ([]model.Community, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, nil
	}
	var parentID string
	for _, c := range g.communities {
		if c.ID == communityID {
			parentID = c.ParentID
			break
		}
	}
	if parentID == "" {
		return nil, nil
	}
	var siblings []model.Community
	for _, c := range g.communities {
		if c.ParentID == parentID && c.ID != communityID {
			siblings = append(siblings, c)
		}
	}
	return siblings, nil
}

func (s *GraphMemStore) SearchSummaryNodes(ctx context.Context, groupID string, embedding []float32, limit int) ([]store.SummaryHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, nil
	}
	var hits []store.SummaryHit
	for _, n := range g.summaryNodes {
		if len(n.Embedding) == 0 {
			continue
		}
		hits = append(hits, store.SummaryHit{Node: n, Score: cosineSimilarity(embedding, n.Embedding)})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Node.ID < hits[j].Node.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *GraphMemStore) CountKeyValueMatches(ctx context.Context, groupID, pattern string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return 0, nil
	}
	needle := strings.ToLower(pattern)
	count := 0
	for _, kv := range g.keyValues {
		if strings.Contains(strings.ToLower(kv.Key), needle) || strings.Contains(strings.ToLower(kv.Value), needle) {
			count++
		}
	}
	return count, nil
}

func (s *GraphMemStore) CountEntityMatches(ctx context.Context, groupID, pattern string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return 0, nil
	}
	needle := strings.ToLower(pattern)
	count := 0
	for _, e := range g.entities {
		if strings.Contains(strings.ToLower(e.Name), needle) || strings.Contains(strings.ToLower(e.Description), needle) {
			count++
		}
	}
	return count, nil
}

func (s *GraphMemStore) DeleteGroup(ctx context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, groupID)
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func topChunkHits(hits []store.ChunkHit, limit int) []store.ChunkHit {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.ID < hits[j].Chunk.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
