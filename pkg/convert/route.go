package convert

import (
	"sort"
)

// Route is an ordered chain of format tags describing a planned multi-hop
// conversion. A single-element route is the identity conversion.
type Route []string

// maxRouteLength bounds the search depth. Registries are small in practice;
// the bound guards against runaway search if registrations ever form dense
// cycles.
const maxRouteLength = 8

// Routes returns all acyclic conversion chains from one format to another,
// ordered by ascending total weight. The result is cached per (from, to)
// pair for the process lifetime; registration is expected to be complete
// before the first query.
//
// A link is included only if at least one converter for it is currently
// applicable, so the cached routes reflect the environment at first-query
// time. ResetRoutes drops the cache if the environment changes.
func (r *Registry) Routes(from, to string) []Route {
	key := pair{from, to}

	r.routeMu.Lock()
	defer r.routeMu.Unlock()
	if routes, ok := r.routes[key]; ok {
		return routes
	}

	routes := r.findRoutes(from, to)
	r.routes[key] = routes
	return routes
}

// FindRoute returns the minimum-weight conversion chain between two
// formats, or nil if none exists.
func (r *Registry) FindRoute(from, to string) Route {
	routes := r.Routes(from, to)
	if len(routes) == 0 {
		return nil
	}
	return routes[0]
}

// ResetRoutes clears the route cache. Only needed if converter
// applicability changes after routes have been queried (e.g. an external
// tool appeared).
func (r *Registry) ResetRoutes() {
	r.routeMu.Lock()
	r.routes = map[pair][]Route{}
	r.routeMu.Unlock()
}

// findRoutes performs a reverse depth-first search: starting from the
// target format it explores every source format with an ever-registered
// converter into the current chain head, keeping links that have at least
// one currently-applicable converter, and collects all acyclic chains that
// terminate at the requested source.
//
// Chains are ordered by total weight (sum over hops of the minimum
// applicable weight). Ties keep discovery order; sources are explored in
// sorted tag order, so the result is deterministic.
func (r *Registry) findRoutes(from, to string) []Route {
	if from == to {
		return []Route{{from}}
	}

	var chains []Route

	var find func(chain Route)
	find = func(chain Route) {
		head := chain[0]
		if head == from {
			chains = append(chains, append(Route(nil), chain...))
		}
		if len(chain) >= maxRouteLength {
			return
		}

		r.mu.RLock()
		sources := make([]string, 0, len(r.converters[head]))
		for src := range r.converters[head] {
			sources = append(sources, src)
		}
		r.mu.RUnlock()
		sort.Strings(sources)

		for _, src := range sources {
			if chain.contains(src) {
				continue
			}
			if _, ok := r.minWeight(src, head); !ok {
				continue
			}
			find(append(Route{src}, chain...))
		}
	}
	find(Route{to})

	sort.SliceStable(chains, func(i, j int) bool {
		return r.chainWeight(chains[i]) < r.chainWeight(chains[j])
	})
	return chains
}

// chainWeight sums the minimum applicable converter weight over the chain's
// hops.
func (r *Registry) chainWeight(chain Route) int {
	total := 0
	for i := 0; i+1 < len(chain); i++ {
		if w, ok := r.minWeight(chain[i], chain[i+1]); ok {
			total += w
		}
	}
	return total
}

func (route Route) contains(format string) bool {
	for _, f := range route {
		if f == format {
			return true
		}
	}
	return false
}
