// Package selector implements the kernel selector of spec.md §4.3: per
// kernel-type-tag registries of candidate implementations, a predicate-
// filter-then-best-score pick, and a JSON-backed tuning store of recorded
// (device, driver, host, params) overrides. Book.Select does not consult
// the tuning store.
//
// The selection loop mirrors dijkstra's "relax only if strictly better"
// discipline: candidates are walked in a fixed registration order and the
// running best is replaced only by a strictly lower EstimatedTime, never a
// tie, so registration order breaks ties deterministically.
package selector

import (
	"errors"

	"github.com/gpudag/netrt/device"
)

// Sentinel errors for selection failures.
var (
	// ErrNoCandidate indicates every registered candidate's predicate
	// rejected the params (or the registry is empty) and no Diagnose hook
	// reported a reason.
	ErrNoCandidate = errors.New("selector: no candidate supports these parameters")
	// ErrUnknownTag indicates Select was called for a tag with no registry.
	ErrUnknownTag = errors.New("selector: no registry for kernel-type tag")
)

// Tag is the closed kernel-type identifier a Registry is keyed by — one per
// primitive kind that owns device-code candidates (most descriptor.Kind
// values; data/input_layout never reach the selector).
type Tag string

// StageKernel is one compiled-or-compilable unit of device code plus its
// dispatch shape and argument binding, spec.md §4.3's "stage kernel".
type StageKernel struct {
	Source     string
	JitDefines string
	Options    string
	EntryPoint string
	Work       device.WorkSize
	Args       []device.Arg
}

// WeightsReorder describes the optional prerequisite stage a candidate
// requires before its main kernel can run correctly, spec.md §4.3's
// "Weights reorder" paragraph. Exactly one of GPU/CPU is set.
type WeightsReorder struct {
	GPU *StageKernel
	// CPUFunc, when non-nil, performs the reorder on the host; CPUBufSize
	// is the byte size of the buffer it produces.
	CPUFunc    func(in []byte) []byte
	CPUBufSize int
}

// KernelData is what a candidate's Build produces: the ordered stage list
// (weights reorder, if any, first) plus the static cost estimate used as a
// tie-breaker between candidates.
type KernelData struct {
	Reorder       *WeightsReorder
	Stages        []StageKernel
	EstimatedTime float64
}

// Candidate is one registered implementation for a kernel-type tag.
// Supports reports whether params are within this candidate's declared
// constraints (hardware feature level, subgroup support, dtype/layout
// pairing, dimension divisibility, …); Build only runs after Supports
// returned true.
type Candidate struct {
	Name     string
	Supports func(params interface{}) bool
	Build    func(params interface{}) (KernelData, error)

	// Diagnose, when set, is called in place of a bare rejection whenever
	// Supports returns false, to recover the structured reason (e.g. a
	// boundary-validation *netrterr.BuildError) a caller should see instead
	// of the bare ErrNoCandidate sentinel. Returning nil means "just not
	// applicable to these params," the ordinary no-match case.
	Diagnose func(params interface{}) error
}
