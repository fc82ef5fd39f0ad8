// Package netrt is a GPU-targeted deep-learning inference runtime: a graph
// compiler and execution engine for OpenCL-capable accelerators.
//
// What is netrt?
//
//	A topology of neural-network primitives goes in; a compiled, scheduled
//	program of device kernels comes out, ready to execute on an
//	out-of-order command queue.
//
//	  • descriptor/ — the user-facing topology: primitive descriptors, the
//	                   closed set of primitive kinds, layout & padding rules
//	  • layout/     — tensor shape, layout tag and padding/pitch arithmetic
//	  • program/    — the pass-structured graph compiler (the bulk of the
//	                   system): dominator analysis, constant folding, layout
//	                   and reorder selection, buffer and primitive fusing
//	  • selector/   — per-primitive kernel implementation selection and the
//	                   on-disk tuning-mode override store
//	  • cache/      — the in-memory + persistent on-disk kernel binary cache
//	  • device/     — device context, command queue, compile/enqueue/event
//	  • memdep/     — the three memory-dependency sets consumed by the
//	                   runtime's allocator
//	  • runtime/    — network materialization and execution
//
// Why this shape?
//
//   - Leaves-first        — every pass processes producers before consumers
//   - Build-then-run      — a program is fully elaborated before a network
//     ever touches device memory
//   - No host barriers    — dependency edges are event wait-lists, not
//     blocking calls; the out-of-order queue does the overlapping
//
// netrt does not do training, autograd, dynamic shapes across executions,
// multi-device scheduling, or distributed execution — see each package's
// doc comment for the primitives and passes actually in scope.
//
//	go get github.com/gpudag/netrt
package netrt
