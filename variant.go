// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gat

// Variant selects among the alternative implementations of the graph attention
// layer forward pass. All variants compute the same mathematical function --
// multi-head attention restricted to graph neighborhoods -- but differ in how
// they represent connectivity (dense adjacency mask vs. sparse edge list) and
// in the memory layout of the learned projection.
//
// Variants that share a parameter layout create variables with identical names
// and shapes, so they can be exchanged freely over the same context (e.g., to
// train with one and serve with another).
type Variant int

const (
	// VariantDensePerHead uses a dense (numNodes, numNodes) additive mask and
	// one independent (numInputFeatures, numOutputFeatures) projection matrix
	// per head, stored as a single rank-3 variable. Cost is quadratic in the
	// number of nodes regardless of how many edges exist.
	VariantDensePerHead Variant = iota

	// VariantDense uses a dense additive mask and a single flattened
	// (numInputFeatures, numHeads*numOutputFeatures) projection. Mathematically
	// equivalent to VariantDensePerHead, with a different lowering.
	VariantDense

	// VariantEdgeList uses a sparse edge-list connectivity and the flattened
	// projection. Attention is computed per edge with gather/scatter, so cost
	// is linear in the number of edges. This is the recommended variant and
	// the default for edge-list connectivity.
	VariantEdgeList

	// VariantEdgeListDirect is VariantEdgeList with the projection applied as
	// a direct matrix multiplication on a raw weights variable, instead of
	// going through the Dense layer helper. Parameter-compatible with
	// VariantEdgeList.
	VariantEdgeListDirect
)

//go:generate enumer -type=Variant -trimprefix=Variant -transform=snake -values -text -json -yaml variant.go

// IsDense reports whether the variant consumes an AdjacencyMask.
func (i Variant) IsDense() bool {
	return i == VariantDensePerHead || i == VariantDense
}

// IsEdgeList reports whether the variant consumes an EdgeList.
func (i Variant) IsEdgeList() bool {
	return i == VariantEdgeList || i == VariantEdgeListDirect
}
