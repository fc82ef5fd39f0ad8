// Package descriptor defines the primitive descriptor value type, the
// closed set of primitive kinds, and the Topology the caller assembles
// before a build (spec.md §3, §6).
//
// A Topology is a pure spec: descriptors are value-typed and own no
// device memory. It is mutated only by Add and ChangeInputLayout, and only
// before a build consumes it; program.Build takes a read-only view.
package descriptor

import (
	"errors"
	"sync"

	"github.com/gpudag/netrt/layout"
)

// Sentinel errors for topology operations.
var (
	// ErrEmptyID indicates a descriptor was added with an empty ID.
	ErrEmptyID = errors.New("descriptor: id is empty")
	// ErrDuplicateID indicates a descriptor ID was already present in the topology.
	ErrDuplicateID = errors.New("descriptor: duplicate id")
	// ErrUnknownDependency indicates a descriptor referenced a dependency id not yet added.
	ErrUnknownDependency = errors.New("descriptor: unknown dependency id")
	// ErrNotFound indicates a lookup referenced an id absent from the topology.
	ErrNotFound = errors.New("descriptor: id not found")
	// ErrWrongKind indicates an operation required a different primitive Kind.
	ErrWrongKind = errors.New("descriptor: wrong primitive kind for this operation")
	// ErrAlreadyBuilt indicates a mutation was attempted on a topology already consumed by a build.
	ErrAlreadyBuilt = errors.New("descriptor: topology already built; no further mutation allowed")
)

// Kind is the closed tag identifying which operator a primitive realizes.
type Kind int

const (
	Convolution Kind = iota
	Pooling
	Softmax
	Reorder
	Eltwise
	Concatenation
	Crop
	Reshape
	Data
	InputLayout
	DetectionOutput
	Scale
	BatchNorm
	LRN
	FullyConnected
	Deconvolution
	Activation
	ROIPooling
	PriorBox
	Proposal
	SimplerNMS
	Split      // lowered away by program Pass 1
	Upsampling // lowered away by program Pass 1
)

// String names a Kind the way log fields and error messages expect.
func (k Kind) String() string {
	names := [...]string{
		"convolution", "pooling", "softmax", "reorder", "eltwise",
		"concatenation", "crop", "reshape", "data", "input_layout",
		"detection_output", "scale", "batch_norm", "lrn", "fully_connected",
		"deconvolution", "activation", "roi_pooling", "prior_box",
		"proposal", "simpler_nms", "split", "upsampling",
	}
	if int(k) >= 0 && int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// ActivationFunc enumerates the activation functions preserved across
// compatibility boundaries (spec.md §6).
type ActivationFunc int

const (
	ActivationNone ActivationFunc = iota
	ActivationLogistic
	ActivationTanh
	ActivationReLU
	ActivationReLUNegativeSlope
	ActivationBoundedReLU
	ActivationParametricReLU
	ActivationSoftReLU
	ActivationAbs
	ActivationSquare
	ActivationSqrt
	ActivationLinear
)

// Fused describes an activation folded into a producing primitive by
// program Pass 15, along with its scalar parameters (slope/bound).
type Fused struct {
	Func      ActivationFunc
	SlopeOrA  float64
	BoundOrB  float64
}

// Descriptor is the immutable value describing one node of the user
// topology. Type-specific attributes live in Attrs, keyed by the
// primitive's own parameter struct (e.g. ConvParams, PoolingParams).
type Descriptor struct {
	ID           string
	Kind         Kind
	Dependencies []string
	OutputPad    *layout.Padding // optional user-declared output padding
	Attrs        interface{}
}

// Topology is the caller-assembled, pre-build graph of descriptors.
type Topology struct {
	mu      sync.RWMutex
	order   []string
	byID    map[string]Descriptor
	built   bool
}

// New returns an empty Topology.
func New() *Topology {
	return &Topology{byID: make(map[string]Descriptor)}
}

// Add inserts a descriptor into the topology. Returns ErrEmptyID,
// ErrDuplicateID, or ErrUnknownDependency (a dependency must already have
// been added — descriptors are assembled in dependency order) or
// ErrAlreadyBuilt if a build has already consumed this topology.
// Complexity: O(len(Dependencies)).
func (t *Topology) Add(d Descriptor) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.built {
		return ErrAlreadyBuilt
	}
	if d.ID == "" {
		return ErrEmptyID
	}
	if _, exists := t.byID[d.ID]; exists {
		return ErrDuplicateID
	}
	for _, dep := range d.Dependencies {
		if _, ok := t.byID[dep]; !ok {
			return ErrUnknownDependency
		}
	}
	t.byID[d.ID] = d
	t.order = append(t.order, d.ID)

	return nil
}

// ChangeInputLayout overrides the declared layout of an InputLayout
// descriptor. Permitted only before build and only for nodes of kind
// InputLayout, per spec.md §6.
func (t *Topology) ChangeInputLayout(id string, tag layout.Tag) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.built {
		return ErrAlreadyBuilt
	}
	d, ok := t.byID[id]
	if !ok {
		return ErrNotFound
	}
	if d.Kind != InputLayout {
		return ErrWrongKind
	}
	params, _ := d.Attrs.(InputLayoutParams)
	params.Tag = tag
	d.Attrs = params
	t.byID[id] = d

	return nil
}

// Descriptors returns a snapshot slice of all descriptors in insertion
// order. Callers (program.Build) must not assume the slice is a live view.
func (t *Topology) Descriptors() []Descriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Descriptor, len(t.order))
	for i, id := range t.order {
		out[i] = t.byID[id]
	}
	return out
}

// Get returns the descriptor registered under id.
func (t *Topology) Get(id string) (Descriptor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.byID[id]
	return d, ok
}

// MarkBuilt freezes the topology against further mutation. program.Build
// calls this once it has taken its snapshot.
func (t *Topology) MarkBuilt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.built = true
}
