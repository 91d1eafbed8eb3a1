// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gat

import (
	"slices"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
)

// sparseForward computes one attention round over a sparse edge list, for the
// variants [VariantEdgeList] and [VariantEdgeListDirect].
//
// Instead of materializing an all-pairs score matrix, per-node scores and features
// are lifted to per-edge tensors with gathers on the edge indices, normalized with
// [NeighborhoodSoftmax], and aggregated back into per-node outputs with a
// scatter-sum on the target indices. Cost is linear in the number of edges.
func (c *Config) sparseForward(ctx *context.Context, conn EdgeList) (output, coefficients *Node) {
	dtype := c.input.DType()
	sources := liftedEdgeIndices(conn.Sources)
	targets := liftedEdgeIndices(conn.Targets)

	x := c.dropout(ctx, c.input)
	projected := c.sparseProjection(ctx, x) // (numNodes, numHeads, numOutputFeatures)
	projected = c.dropout(ctx, projected)

	sourceVec, targetVec := c.scoringVectors(ctx)
	sourceScores := Einsum("nho,ho->nh", projected, sourceVec)
	targetScores := Einsum("nho,ho->nh", projected, targetVec)

	// Lift per-node values to per-edge values: the score of edge e is the source
	// term of node Sources[e] plus the target term of node Targets[e].
	liftedSourceScores := Gather(sourceScores, sources)
	liftedTargetScores := Gather(targetScores, targets)
	liftedFeatures := Gather(projected, sources) // (numEdges, numHeads, numOutputFeatures)

	logits := Add(liftedSourceScores, liftedTargetScores)
	logits = activations.LeakyReluWithAlpha(logits, LeakyReluNegativeSlope)
	coefficients = NeighborhoodSoftmax(logits, targets, c.numNodes)
	coefficients = c.dropout(ctx, coefficients)

	// Each target sums the attended features of its in-edges. Targets with no
	// in-edge are left at zero.
	weighted := Mul(liftedFeatures, InsertAxes(coefficients, -1))
	dtypePool := dtype
	if dtype.IsFloat16() {
		// Up-precision to 32 bits for the aggregation.
		dtypePool = dtypes.Float32
		weighted = ConvertDType(weighted, dtypePool)
	}
	headed := Scatter(targets, weighted,
		shapes.Make(dtypePool, c.numNodes, c.numHeads, c.numOutputFeatures), false, false)
	if dtypePool != dtype {
		headed = ConvertDType(headed, dtype)
	}
	output = c.finish(ctx, headed)
	return
}

// sparseProjection projects the node features to (numNodes, numHeads,
// numOutputFeatures). [VariantEdgeList] goes through layers.Dense,
// [VariantEdgeListDirect] owns the weights matrix and multiplies it in directly --
// the same parameters and function, lowered differently.
func (c *Config) sparseProjection(ctx *context.Context, x *Node) *Node {
	var projected *Node
	if c.variant == VariantEdgeListDirect {
		numInputFeatures := x.Shape().Dimensions[1]
		weights := ctx.In("projection").VariableWithShape("weights",
			shapes.Make(x.DType(), numInputFeatures, c.numHeads*c.numOutputFeatures)).ValueGraph(x.Graph())
		projected = Dot(x, weights)
	} else {
		projected = layers.Dense(ctx.In("projection"), x, false, c.numHeads*c.numOutputFeatures)
	}
	return Reshape(projected, c.numNodes, c.numHeads, c.numOutputFeatures)
}

// NeighborhoodSoftmax normalizes logits defined per edge of a graph so that they
// sum to 1 over the edges that share the same target node: a softmax restricted to
// each node's in-neighborhood, computed without materializing the neighborhoods.
//
// logits must be shaped (numEdges, ...), any trailing axes (e.g. attention heads)
// are normalized independently. targetIndices gives the target node of each edge,
// shaped (numEdges,) or (numEdges, 1), with values in [0, numNodes).
//
// The procedure shifts all logits by the global max (softmax is shift invariant),
// exponentiates, scatter-sums the exponentials by target into per-node
// denominators, gathers the denominators back per edge and divides. A node with no
// in-edge contributes no term anywhere; if all exponentials of a neighborhood
// underflow to 0, the epsilon added to the denominator makes its weights 0 rather
// than NaN.
//
// Float16 and BFloat16 logits are computed in Float32 and converted back.
func NeighborhoodSoftmax(logits, targetIndices *Node, numNodes int) *Node {
	if !logits.DType().IsFloat() {
		Panicf("NeighborhoodSoftmax(): logits must be of a float dtype, instead got %s", logits.Shape())
	}
	if !targetIndices.DType().IsInt() {
		Panicf("NeighborhoodSoftmax(): targetIndices must be of an integer dtype, instead got %s",
			targetIndices.Shape())
	}
	if (targetIndices.Rank() != 1 && targetIndices.Rank() != 2) ||
		(targetIndices.Rank() == 2 && targetIndices.Shape().Dimensions[1] != 1) {
		Panicf("NeighborhoodSoftmax(): targetIndices must be shaped [numEdges] or [numEdges, 1], instead got %s",
			targetIndices.Shape())
	}
	if logits.IsScalar() || logits.Shape().Dimensions[0] != targetIndices.Shape().Dimensions[0] {
		Panicf("NeighborhoodSoftmax(): logits must be shaped [numEdges, ...] to match targetIndices %s, instead got %s",
			targetIndices.Shape(), logits.Shape())
	}
	if numNodes < 1 {
		Panicf("NeighborhoodSoftmax(): numNodes must be at least 1, got %d", numNodes)
	}

	dtype := logits.DType()
	work := logits
	if dtype.IsFloat16() {
		work = ConvertDType(work, dtypes.Float32)
	}
	indices := liftedEdgeIndices(targetIndices)

	work = Sub(work, StopGradient(ReduceAllMax(work)))
	numerators := Exp(work)

	dims := slices.Clone(numerators.Shape().Dimensions)
	dims[0] = numNodes
	denominators := Scatter(indices, numerators, shapes.Make(numerators.DType(), dims...), false, false)
	denominators = Gather(denominators, indices)

	result := Div(numerators, AddScalar(denominators, 1e-16))
	if result.DType() != dtype {
		result = ConvertDType(result, dtype)
	}
	return result
}
