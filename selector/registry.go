package selector

import "sync"

// Registry holds the ordered candidate list for one kernel-type tag.
// Candidates are tried in registration order; order is preserved exactly
// as core.Graph preserves insertion order for its adjacency lists.
type Registry struct {
	mu         sync.RWMutex
	candidates []Candidate
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a candidate, last registered is tried last.
func (r *Registry) Register(c Candidate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candidates = append(r.candidates, c)
}

// Candidates returns a snapshot of the registered candidates in
// registration order.
func (r *Registry) Candidates() []Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Candidate, len(r.candidates))
	copy(out, r.candidates)
	return out
}

// Book is the process-wide map from kernel-type Tag to its Registry.
type Book struct {
	mu    sync.RWMutex
	byTag map[Tag]*Registry
}

// NewBook returns an empty Book.
func NewBook() *Book {
	return &Book{byTag: make(map[Tag]*Registry)}
}

// For returns tag's Registry, creating an empty one on first use — the
// same lazy-bucket style core.Graph uses for its adjacency maps.
func (b *Book) For(tag Tag) *Registry {
	b.mu.Lock()
	defer b.mu.Unlock()
	reg, ok := b.byTag[tag]
	if !ok {
		reg = NewRegistry()
		b.byTag[tag] = reg
	}
	return reg
}

// Select walks tag's registered candidates in order, discards predicate
// failures, and returns the KernelData of the strictly-lowest
// EstimatedTime survivor — ties keep the earlier (lower-priority-index)
// candidate, exactly as dijkstra.runner.process relaxes only on a strictly
// smaller distance. Returns ErrUnknownTag if tag has no registry. If no
// candidate survives, returns the last Diagnose or Build error seen, or
// ErrNoCandidate when there was none.
func (b *Book) Select(tag Tag, params interface{}) (KernelData, string, error) {
	reg, ok := func() (*Registry, bool) {
		b.mu.RLock()
		defer b.mu.RUnlock()
		r, ok := b.byTag[tag]
		return r, ok
	}()
	if !ok {
		return KernelData{}, "", ErrUnknownTag
	}

	var (
		best      KernelData
		bestName  string
		haveBest  bool
		diagnosis error
	)
	for _, c := range reg.Candidates() {
		if !c.Supports(params) {
			if c.Diagnose != nil {
				if err := c.Diagnose(params); err != nil {
					diagnosis = err
				}
			}
			continue
		}
		kd, err := c.Build(params)
		if err != nil {
			diagnosis = err
			continue
		}
		if !haveBest || kd.EstimatedTime < best.EstimatedTime {
			best = kd
			bestName = c.Name
			haveBest = true
		}
	}
	if !haveBest {
		if diagnosis != nil {
			return KernelData{}, "", diagnosis
		}
		return KernelData{}, "", ErrNoCandidate
	}
	return best, bestName, nil
}
