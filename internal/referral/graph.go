package referral

import (
	"context"

	"yield-ledger-go/internal/store"
)

// Graph answers activity counts over the referral forest. Every
// implementation must return the same counts for the same data.
type Graph interface {
	DirectActiveCount(ctx context.Context, userId string) (int, error)
	TotalActiveDescendantCount(ctx context.Context, userId string) (int, error)
}

var (
	_ Graph = (*SQLGraph)(nil)
	_ Graph = (*MemoryGraph)(nil)
)

// SQLGraph counts with recursive queries, one round trip per call.
type SQLGraph struct {
	q store.Querier
}

func NewSQLGraph(q store.Querier) *SQLGraph {
	return &SQLGraph{q: q}
}

func (g *SQLGraph) DirectActiveCount(ctx context.Context, userId string) (int, error) {
	return g.q.CountDirectActiveReferrals(ctx, userId)
}

func (g *SQLGraph) TotalActiveDescendantCount(ctx context.Context, userId string) (int, error) {
	return g.q.CountActiveDescendants(ctx, userId)
}

// MemoryGraph walks an edge set loaded once, for batch recomputation.
type MemoryGraph struct {
	children map[string][]string
	active   map[string]bool
	team     map[string]int
}

func NewMemoryGraph(edges []store.ReferralEdge) *MemoryGraph {
	g := &MemoryGraph{
		children: make(map[string][]string, len(edges)),
		active:   make(map[string]bool, len(edges)),
		team:     make(map[string]int),
	}
	for _, e := range edges {
		g.active[e.UserId] = e.Active
		if e.ReferrerId != "" {
			g.children[e.ReferrerId] = append(g.children[e.ReferrerId], e.UserId)
		}
	}
	return g
}

func (g *MemoryGraph) DirectActiveCount(_ context.Context, userId string) (int, error) {
	n := 0
	for _, child := range g.children[userId] {
		if g.active[child] {
			n++
		}
	}
	return n, nil
}

func (g *MemoryGraph) TotalActiveDescendantCount(_ context.Context, userId string) (int, error) {
	return g.countTeam(userId, map[string]bool{userId: true}), nil
}

// countTeam memoizes subtree counts. seen guards against malformed input.
func (g *MemoryGraph) countTeam(userId string, seen map[string]bool) int {
	if n, ok := g.team[userId]; ok {
		return n
	}
	n := 0
	for _, child := range g.children[userId] {
		if seen[child] {
			continue
		}
		seen[child] = true
		if g.active[child] {
			n++
		}
		n += g.countTeam(child, seen)
	}
	g.team[userId] = n
	return n
}
