// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gat

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
)

// Connectivity describes which node can attend to which: either a dense AdjacencyMask
// or a sparse EdgeList. The representation also selects the family of layer variants
// used to compute the attention, see [Variant].
//
// The interface is sealed, there are no implementations outside this package.
type Connectivity interface {
	// assertValidFor panics if the connectivity is malformed or incompatible with a
	// feature matrix with numNodes rows.
	assertValidFor(numNodes int)
}

// AdjacencyMask is the dense connectivity representation: a matrix shaped
// (numNodes, numNodes) whose entry (target, source) indicates whether the edge
// source→target exists, meaning target attends to source.
//
// Two encodings are accepted:
//
//   - Bool: true where there is an edge.
//   - Float: an additive mask, 0 where there is an edge and -inf (or a very large
//     negative value) elsewhere. It is added to the raw attention logits, so after
//     the softmax non-edges get weight 0.
//
// Self-loops are not added automatically: include the diagonal if nodes should
// attend to themselves, which is the usual setup.
type AdjacencyMask struct {
	Mask *Node
}

// EdgeList is the sparse connectivity representation: Sources[e] and Targets[e] hold
// the node indices of the e-th directed edge, meaning node Targets[e] attends to node
// Sources[e]. Both must be integer tensors of the same dimensions, shaped either
// (numEdges,) or (numEdges, 1).
//
// Self-loops are not added automatically, see [EdgeList.AddSelfLoops].
type EdgeList struct {
	Sources, Targets *Node
}

func (m AdjacencyMask) assertValidFor(numNodes int) {
	mask := m.Mask
	if mask == nil {
		Panicf("AdjacencyMask.Mask was not set")
	}
	if mask.Rank() != 2 || mask.Shape().Dimensions[0] != numNodes || mask.Shape().Dimensions[1] != numNodes {
		Panicf("adjacency mask must be shaped (numNodes, numNodes)=(%d, %d) to match the node features, instead got %s",
			numNodes, numNodes, mask.Shape())
	}
	if dtype := mask.DType(); !dtype.IsFloat() && dtype != dtypes.Bool {
		Panicf("adjacency mask must be boolean or an additive float mask, instead got dtype %s", dtype)
	}
}

func (e EdgeList) assertValidFor(numNodes int) {
	if e.Sources == nil || e.Targets == nil {
		Panicf("EdgeList requires both Sources and Targets to be set")
	}
	for _, indices := range []*Node{e.Sources, e.Targets} {
		if !indices.DType().IsInt() {
			Panicf("edge indices must be of integer type, instead got %s", indices.Shape())
		}
		if indices.Rank() != 1 && (indices.Rank() != 2 || indices.Shape().Dimensions[1] != 1) {
			Panicf("edge indices must be shaped (numEdges,) or (numEdges, 1), instead got %s", indices.Shape())
		}
	}
	if e.Sources.DType() != e.Targets.DType() {
		Panicf("Sources and Targets must have the same dtype, instead got %s (sources) and %s (targets)",
			e.Sources.DType(), e.Targets.DType())
	}
	if e.Sources.Shape().Dimensions[0] != e.Targets.Shape().Dimensions[0] {
		Panicf("Sources and Targets must list the same number of edges, instead got %s (sources) and %s (targets)",
			e.Sources.Shape(), e.Targets.Shape())
	}
}

// NumEdges returns the static number of edges in the list.
func (e EdgeList) NumEdges() int {
	return e.Sources.Shape().Dimensions[0]
}

// AddSelfLoops returns a new edge list with the edges (i, i) for every node i
// appended at the end. It doesn't check whether self-loops are already present, so
// calling it on a list that already has them duplicates their attention logits.
//
// The returned indices are shaped (numEdges+numNodes,).
func (e EdgeList) AddSelfLoops(numNodes int) EdgeList {
	g := e.Sources.Graph()
	sources := flatEdgeIndices(e.Sources)
	targets := flatEdgeIndices(e.Targets)
	loops := IotaFull(g, shapes.Make(sources.DType(), numNodes))
	return EdgeList{
		Sources: Concatenate([]*Node{sources, loops}, 0),
		Targets: Concatenate([]*Node{targets, loops}, 0),
	}
}

// AdjacencyMask converts the edge list to the equivalent dense connectivity, shaped
// (numNodes, numNodes). If dtype is Bool the mask is true where there is an edge,
// otherwise dtype must be a float and the mask is additive: 0 where there is an edge
// and -inf elsewhere. Duplicate edges collapse to a single entry.
func (e EdgeList) AdjacencyMask(numNodes int, dtype dtypes.DType) AdjacencyMask {
	g := e.Sources.Graph()
	// Scatter a count of 1 per edge into the (target, source) cells.
	indices := Concatenate([]*Node{liftedEdgeIndices(e.Targets), liftedEdgeIndices(e.Sources)}, -1)
	counts := Scatter(indices, Ones(g, shapes.Make(dtypes.Int32, e.NumEdges())),
		shapes.Make(dtypes.Int32, numNodes, numNodes), false, false)
	hasEdge := GreaterOrEqual(counts, ScalarOne(g, dtypes.Int32))
	if dtype == dtypes.Bool {
		return AdjacencyMask{Mask: hasEdge}
	}
	return AdjacencyMask{Mask: Where(hasEdge, ScalarZero(g, dtype), Infinity(g, dtype, -1))}
}

// flatEdgeIndices normalizes edge indices to the shape (numEdges,).
func flatEdgeIndices(indices *Node) *Node {
	if indices.Rank() == 2 {
		return Reshape(indices, indices.Shape().Dimensions[0])
	}
	return indices
}

// liftedEdgeIndices normalizes edge indices to the shape (numEdges, 1) taken by
// Gather and Scatter.
func liftedEdgeIndices(indices *Node) *Node {
	if indices.Rank() == 1 {
		return InsertAxes(indices, -1)
	}
	return indices
}
