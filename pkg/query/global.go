package query

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/vellum-graph/vellum/pkg/ai"
	"github.com/vellum-graph/vellum/pkg/logger"
	"github.com/vellum-graph/vellum/pkg/model"
	"github.com/vellum-graph/vellum/pkg/retrieval"
	"github.com/vellum-graph/vellum/pkg/store"
)

const (
	globalCommunityLimit   = 5
	globalCommunityLevel   = 0
	globalHubsPerCommunity = 3
	globalChunkLimit       = 16
	globalGraphDepth       = 2
	globalGraphMaxSize     = 96
	globalTopEntities      = 12
	globalSummaryLimit     = 3

	// siblingSeedWeight dilutes sibling-community entities relative to hub
	// entities so they widen the walk without dominating it.
	siblingSeedWeight = 0.25
)

// GlobalRoute answers corpus-wide thematic questions. Matching communities
// contribute their summaries and their most central entities as traversal
// seeds; hybrid chunk search runs in parallel as a complementary signal. The
// per-document coverage guarantee is always on for this route. When the
// group has no community index yet the route falls back to hybrid retrieval
// alone, still with the coverage guarantee.
type GlobalRoute struct {
	ai         ai.QueryAIClient
	store      store.GraphStore
	searcher   *retrieval.Searcher
	controller *retrieval.Controller

	// Centrality scores entities within a community for hub extraction.
	// Nil uses weighted degree.
	Centrality retrieval.CentralityFunc
}

func NewGlobalRoute(client ai.QueryAIClient, s store.GraphStore) *GlobalRoute {
	return &GlobalRoute{
		ai:         client,
		store:      s,
		searcher:   retrieval.NewSearcher(s),
		controller: retrieval.NewController(s),
	}
}

func (r *GlobalRoute) Kind() RouteKind { return RouteGlobal }

func (r *GlobalRoute) Run(ctx context.Context, req Request, tracer Tracer) (RouteOutput, error) {
	embedding, err := embedQuery(ctx, r.ai, req.Query)
	if err != nil {
		return RouteOutput{}, err
	}

	var chunkHits []store.ChunkHit
	var communities []store.CommunityHit
	var summaries []store.SummaryHit
	var communityErr, summaryErr error
	eg, ectx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		hits, err := r.searcher.SearchChunks(ectx, retrieval.SearchParams{
			GroupID:   req.GroupID,
			Query:     req.Query,
			Embedding: embedding,
			Limit:     globalChunkLimit,
		})
		if err != nil {
			return fmt.Errorf("%w: chunk search: %v", ErrUpstreamUnavailable, err)
		}
		chunkHits = hits
		return nil
	})
	eg.Go(func() error {
		communities, communityErr = r.store.SearchCommunities(ectx, req.GroupID, embedding, globalCommunityLevel, globalCommunityLimit)
		return nil
	})
	eg.Go(func() error {
		summaries, summaryErr = r.store.SearchSummaryNodes(ectx, req.GroupID, embedding, globalSummaryLimit)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return RouteOutput{}, err
	}

	if communityErr != nil {
		// A missing community index means the group is mid-reindex or was
		// never clustered. The route still honors its coverage contract
		// through hybrid retrieval alone.
		if errors.Is(communityErr, store.ErrNoCommunities) {
			logger.Info("[GlobalRoute] no community index, falling back to hybrid retrieval", "group", req.GroupID)
		} else {
			logger.Warn("[GlobalRoute] community search failed, falling back to hybrid retrieval", "group", req.GroupID, "err", communityErr)
		}
		communities = nil
	}
	if summaryErr != nil {
		logger.Warn("[GlobalRoute] summary node search failed, skipping summary evidence", "group", req.GroupID, "err", summaryErr)
		summaries = nil
	}

	extra := make([]retrieval.Evidence, 0, len(communities)+len(summaries))
	for _, hit := range communities {
		RecordCommunityIDs(tracer, hit.Community.ID)
		if hit.Community.Summary == "" {
			continue
		}
		extra = append(extra, retrieval.Evidence{
			Kind:  model.SourceCommunity,
			ID:    hit.Community.ID,
			Text:  hit.Community.Summary,
			Score: hit.Score,
		})
	}
	for _, hit := range summaries {
		extra = append(extra, retrieval.Evidence{
			Kind:  model.SourceSummary,
			ID:    hit.Node.ID,
			Text:  hit.Node.Summary,
			Score: hit.Score,
		})
	}

	graphHits := r.expandCommunities(ctx, req.GroupID, communities, tracer)

	merged := mergeChunkHits(chunkHits, graphHits)
	if err := guardChunkGroup(req.GroupID, merged); err != nil {
		return RouteOutput{}, err
	}

	considered := make([]string, 0, len(merged)+len(extra))
	for _, h := range merged {
		considered = append(considered, h.Chunk.ID)
	}
	for _, ev := range extra {
		considered = append(considered, ev.ID)
	}
	RecordConsideredSourceIDs(tracer, considered...)

	evidence, truncated, err := r.controller.Assemble(ctx, retrieval.AssembleParams{
		GroupID:            req.GroupID,
		Query:              req.Query,
		Embedding:          embedding,
		Hits:               merged,
		Extra:              extra,
		TokenBudget:        req.TokenBudget,
		ForceComprehensive: true,
	})
	if err != nil {
		return RouteOutput{}, fmt.Errorf("%w: evidence assembly: %v", ErrUpstreamUnavailable, err)
	}
	if truncated {
		RecordTruncated(tracer)
	}
	for _, ev := range evidence {
		if ev.GapFilled {
			RecordGapFilledDocIDs(tracer, ev.DocumentID)
		}
	}

	return RouteOutput{Evidence: evidence}, nil
}

// expandCommunities extracts the most central entities of each matching
// community, widens the seed set with sibling communities of the best match,
// and walks the combined neighborhood. Failures degrade to no expansion.
func (r *GlobalRoute) expandCommunities(
	ctx context.Context,
	groupID string,
	communities []store.CommunityHit,
	tracer Tracer,
) []store.ChunkHit {
	if len(communities) == 0 {
		return nil
	}

	seeds := make(map[string]float64)
	for _, hit := range communities {
		if len(hit.Community.EntityIDs) == 0 {
			continue
		}
		sub, err := r.store.GetNeighborhood(ctx, groupID, hit.Community.EntityIDs, 1, globalGraphMaxSize)
		if err != nil {
			logger.Warn("[GlobalRoute] community neighborhood load failed", "group", groupID, "community", hit.Community.ID, "err", err)
			continue
		}
		for _, hub := range retrieval.ExtractHubs(sub, r.Centrality, retrieval.TraverseConfig{}, globalHubsPerCommunity) {
			if hit.Score > seeds[hub.ID] {
				seeds[hub.ID] = hit.Score
			}
		}
	}

	if siblings, err := r.store.GetSiblingCommunities(ctx, groupID, communities[0].Community.ID); err != nil {
		logger.Warn("[GlobalRoute] sibling community load failed", "group", groupID, "err", err)
	} else {
		weight := siblingSeedWeight * communities[0].Score
		for _, sibling := range siblings {
			for _, id := range sibling.EntityIDs {
				if weight > seeds[id] {
					seeds[id] = weight
				}
			}
		}
	}

	if len(seeds) == 0 {
		return nil
	}
	seedIDs := make([]string, 0, len(seeds))
	for id := range seeds {
		seedIDs = append(seedIDs, id)
	}
	sort.Strings(seedIDs)
	RecordSeedEntityIDs(tracer, seedIDs...)

	sub, err := r.store.GetNeighborhood(ctx, groupID, seedIDs, globalGraphDepth, globalGraphMaxSize)
	if err != nil {
		logger.Warn("[GlobalRoute] seed neighborhood load failed, skipping graph expansion", "group", groupID, "err", err)
		return nil
	}

	scores := retrieval.PersonalizedPageRank(sub, seeds, retrieval.TraverseConfig{})
	chunkScore := make(map[string]float64)
	for _, id := range retrieval.TopEntities(scores, globalTopEntities) {
		entity, ok := sub.Entities[id]
		if !ok {
			continue
		}
		for _, chunkID := range entity.ChunkIDs {
			chunkScore[chunkID] += mentionWeight * scores[id]
		}
	}
	if len(chunkScore) == 0 {
		return nil
	}

	chunkIDs := make([]string, 0, len(chunkScore))
	for id := range chunkScore {
		chunkIDs = append(chunkIDs, id)
	}
	sort.Strings(chunkIDs)

	chunks, err := r.store.GetChunksByIDs(ctx, groupID, chunkIDs)
	if err != nil {
		logger.Warn("[GlobalRoute] mention chunk load failed, skipping graph chunks", "group", groupID, "err", err)
		return nil
	}
	hits := make([]store.ChunkHit, 0, len(chunks))
	for _, c := range chunks {
		hits = append(hits, store.ChunkHit{Chunk: c, Score: chunkScore[c.ID]})
	}
	return hits
}
