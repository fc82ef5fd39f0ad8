// Package program implements the topology-to-program compiler of spec.md
// §4.4: a fixed-order sequence of eighteen passes turning a caller-
// assembled descriptor.Topology into an optimized, scheduled, compiled
// Node DAG ready for runtime.Network to allocate.
//
// Every pass preserves two invariants: the DAG stays acyclic, and the
// processing order list (producers before consumers) stays valid,
// updating it whenever it inserts or removes a node. Passes run as
// unexported methods on *builder in the fixed order Build calls them;
// program.Build is the only exported entry point.
package program
