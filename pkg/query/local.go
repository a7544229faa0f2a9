package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vellum-graph/vellum/internal/util"
	"github.com/vellum-graph/vellum/pkg/ai"
	"github.com/vellum-graph/vellum/pkg/logger"
	"github.com/vellum-graph/vellum/pkg/model"
	"github.com/vellum-graph/vellum/pkg/retrieval"
	"github.com/vellum-graph/vellum/pkg/store"
)

const (
	embedRetryDelay = 300 * time.Millisecond

	localChunkLimit     = 12
	localSeedEntities   = 5
	localGraphDepth     = 2
	localGraphMaxSize   = 64
	localTopEntities    = 8
	localEntityEvidence = 5

	// mentionWeight scales graph-derived chunk scores before they are merged
	// with fused hybrid scores, which live on a comparable [0,1) scale.
	mentionWeight = 0.5
)

// LocalRoute answers entity- and fact-focused questions. Hybrid chunk search
// and entity vector search run concurrently; matched entities seed a
// personalized PageRank walk over their neighborhood, and the chunks the top
// ranked entities are mentioned in are merged into the chunk ranking before
// evidence assembly.
type LocalRoute struct {
	ai         ai.QueryAIClient
	store      store.GraphStore
	searcher   *retrieval.Searcher
	controller *retrieval.Controller
}

func NewLocalRoute(client ai.QueryAIClient, s store.GraphStore) *LocalRoute {
	return &LocalRoute{
		ai:         client,
		store:      s,
		searcher:   retrieval.NewSearcher(s),
		controller: retrieval.NewController(s),
	}
}

func (r *LocalRoute) Kind() RouteKind { return RouteLocal }

func (r *LocalRoute) Run(ctx context.Context, req Request, tracer Tracer) (RouteOutput, error) {
	embedding, err := embedQuery(ctx, r.ai, req.Query)
	if err != nil {
		return RouteOutput{}, err
	}

	var chunkHits []store.ChunkHit
	var entityHits []store.EntityHit
	var entityErr error
	eg, ectx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		hits, err := r.searcher.SearchChunks(ectx, retrieval.SearchParams{
			GroupID:   req.GroupID,
			Query:     req.Query,
			Embedding: embedding,
			Limit:     localChunkLimit,
		})
		if err != nil {
			return fmt.Errorf("%w: chunk search: %v", ErrUpstreamUnavailable, err)
		}
		chunkHits = hits
		return nil
	})
	eg.Go(func() error {
		// Entity expansion is an enrichment; its failure degrades the route
		// to chunk-only retrieval instead of failing the query.
		hits, err := r.store.SearchEntitiesByEmbedding(ectx, req.GroupID, embedding, localSeedEntities)
		if err != nil {
			entityErr = err
			return nil
		}
		entityHits = hits
		return nil
	})
	if err := eg.Wait(); err != nil {
		return RouteOutput{}, err
	}
	if entityErr != nil {
		logger.Warn("[LocalRoute] entity search failed, skipping graph expansion", "group", req.GroupID, "err", entityErr)
	}

	graphHits, entityEvidence := r.expandGraph(ctx, req.GroupID, entityHits, tracer)

	merged := mergeChunkHits(chunkHits, graphHits)
	if err := guardChunkGroup(req.GroupID, merged); err != nil {
		return RouteOutput{}, err
	}

	considered := make([]string, 0, len(merged)+len(entityEvidence))
	for _, h := range merged {
		considered = append(considered, h.Chunk.ID)
	}
	for _, ev := range entityEvidence {
		considered = append(considered, ev.ID)
	}
	RecordConsideredSourceIDs(tracer, considered...)

	evidence, truncated, err := r.controller.Assemble(ctx, retrieval.AssembleParams{
		GroupID:     req.GroupID,
		Query:       req.Query,
		Embedding:   embedding,
		Hits:        merged,
		Extra:       entityEvidence,
		TokenBudget: req.TokenBudget,
	})
	if err != nil {
		return RouteOutput{}, fmt.Errorf("%w: evidence assembly: %v", ErrUpstreamUnavailable, err)
	}
	if truncated {
		RecordTruncated(tracer)
	}

	return RouteOutput{Evidence: evidence}, nil
}

// expandGraph runs the seeded PageRank walk from the matched entities and
// returns the mention chunks of the top ranked entities plus entity
// description evidence. Any store failure here degrades to no expansion.
func (r *LocalRoute) expandGraph(
	ctx context.Context,
	groupID string,
	entityHits []store.EntityHit,
	tracer Tracer,
) ([]store.ChunkHit, []retrieval.Evidence) {
	if len(entityHits) == 0 {
		return nil, nil
	}

	seeds := make(map[string]float64, len(entityHits))
	seedIDs := make([]string, 0, len(entityHits))
	for _, h := range entityHits {
		seeds[h.Entity.ID] = h.Score
		seedIDs = append(seedIDs, h.Entity.ID)
	}
	RecordSeedEntityIDs(tracer, seedIDs...)

	sub, err := r.store.GetNeighborhood(ctx, groupID, seedIDs, localGraphDepth, localGraphMaxSize)
	if err != nil {
		logger.Warn("[LocalRoute] neighborhood load failed, skipping graph expansion", "group", groupID, "err", err)
		return nil, nil
	}

	scores := retrieval.PersonalizedPageRank(sub, seeds, retrieval.TraverseConfig{})
	top := retrieval.TopEntities(scores, localTopEntities)
	if len(top) == 0 {
		return nil, nil
	}

	chunkScore := make(map[string]float64)
	evidence := make([]retrieval.Evidence, 0, localEntityEvidence)
	for _, id := range top {
		entity, ok := sub.Entities[id]
		if !ok {
			continue
		}
		for _, chunkID := range entity.ChunkIDs {
			chunkScore[chunkID] += mentionWeight * scores[id]
		}
		if entity.Description != "" && len(evidence) < localEntityEvidence {
			evidence = append(evidence, retrieval.Evidence{
				Kind:  model.SourceEntity,
				ID:    entity.ID,
				Text:  fmt.Sprintf("%s (%s): %s", entity.Name, entity.Type, entity.Description),
				Score: scores[id],
			})
		}
	}
	if len(chunkScore) == 0 {
		return nil, evidence
	}

	chunkIDs := make([]string, 0, len(chunkScore))
	for id := range chunkScore {
		chunkIDs = append(chunkIDs, id)
	}
	sort.Strings(chunkIDs)

	chunks, err := r.store.GetChunksByIDs(ctx, groupID, chunkIDs)
	if err != nil {
		logger.Warn("[LocalRoute] mention chunk load failed, skipping graph chunks", "group", groupID, "err", err)
		return nil, evidence
	}

	hits := make([]store.ChunkHit, 0, len(chunks))
	for _, c := range chunks {
		hits = append(hits, store.ChunkHit{Chunk: c, Score: chunkScore[c.ID]})
	}
	return hits, evidence
}

// mergeChunkHits combines hybrid and graph-derived rankings. A chunk found by
// both keeps its hybrid entry and accumulates the graph score on top.
func mergeChunkHits(primary, graph []store.ChunkHit) []store.ChunkHit {
	index := make(map[string]int, len(primary))
	merged := make([]store.ChunkHit, len(primary))
	copy(merged, primary)
	for i, h := range merged {
		index[h.Chunk.ID] = i
	}
	for _, g := range graph {
		if i, ok := index[g.Chunk.ID]; ok {
			merged[i].Score += g.Score
			continue
		}
		index[g.Chunk.ID] = len(merged)
		merged = append(merged, g)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score == merged[j].Score {
			return merged[i].Chunk.ID < merged[j].Chunk.ID
		}
		return merged[i].Score > merged[j].Score
	})
	return merged
}

// guardChunkGroup fails closed when any retrieved chunk belongs to another
// group. That is an internal consistency bug, never a recoverable state.
func guardChunkGroup(groupID string, hits []store.ChunkHit) error {
	for _, h := range hits {
		if h.Chunk.GroupID != "" && h.Chunk.GroupID != groupID {
			return fmt.Errorf("%w: chunk %s belongs to group %s", ErrGroupLeakage, h.Chunk.ID, h.Chunk.GroupID)
		}
	}
	return nil
}

// embedQuery embeds the query text with one retry; a persistent failure is
// an upstream error for every route, since all retrieval is embedding-seeded.
func embedQuery(ctx context.Context, client ai.QueryAIClient, query string) ([]float32, error) {
	embedding, err := util.RetryWithBackoff(ctx, 2, embedRetryDelay, func(ctx context.Context) ([]float32, error) {
		return client.GenerateEmbedding(ctx, []byte(query))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query embedding: %v", ErrUpstreamUnavailable, err)
	}
	return embedding, nil
}
