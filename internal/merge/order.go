package merge

import (
	"sort"

	"github.com/flowforge/flowforge/internal/registry"
)

// computeOrder runs Kahn's topological sort over the dependency graph
// restricted to features, ordering a dependency before its dependents.
// Ready nodes are tie-broken by ascending priority, then by id for
// determinism. When a cycle prevents a full ordering (a corrupt
// registry — dependencies are supposed to be acyclic per spec.md §3),
// the partial order computed so far is returned alongside ErrCycle.
func computeOrder(features []*registry.Feature) ([]string, error) {
	byID := make(map[string]*registry.Feature, len(features))
	for _, f := range features {
		byID[f.ID] = f
	}

	indegree := make(map[string]int, len(features))
	dependents := make(map[string][]string, len(features))
	for _, f := range features {
		count := 0
		for _, dep := range f.DependsOn {
			if _, inSet := byID[dep]; inSet {
				count++
				dependents[dep] = append(dependents[dep], f.ID)
			}
		}
		indegree[f.ID] = count
	}

	var ready []*registry.Feature
	for _, f := range features {
		if indegree[f.ID] == 0 {
			ready = append(ready, f)
		}
	}
	sortReady(ready)

	var order []string
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next.ID)

		for _, depID := range dependents[next.ID] {
			indegree[depID]--
			if indegree[depID] == 0 {
				ready = append(ready, byID[depID])
				sortReady(ready)
			}
		}
	}

	if len(order) < len(features) {
		return order, ErrCycle
	}
	return order, nil
}

func sortReady(ready []*registry.Feature) {
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority < ready[j].Priority
		}
		return ready[i].ID < ready[j].ID
	})
}
