// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gat

import (
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
)

// denseForward computes one attention round over a dense adjacency mask, for the
// variants [VariantDensePerHead] and [VariantDense].
//
// All heads are computed in one shot on tensors shaped (numHeads, numNodes, ...):
// the per-head scores of every (target, source) pair are materialized as a
// (numHeads, numNodes, numNodes) logits matrix, non-edges are pushed to -inf by the
// mask, and a row softmax normalizes each target's attention over its in-neighbors.
// Cost is quadratic in numNodes whatever the number of edges, which is fine for
// small or dense graphs only.
func (c *Config) denseForward(ctx *context.Context, conn AdjacencyMask) (output, coefficients *Node) {
	dtype := c.input.DType()
	x := c.dropout(ctx, c.input)
	projected := c.denseProjection(ctx, x) // (numHeads, numNodes, numOutputFeatures)
	projected = c.dropout(ctx, projected)

	sourceVec, targetVec := c.scoringVectors(ctx)
	sourceScores := Einsum("hno,ho->hn", projected, sourceVec)
	targetScores := Einsum("hno,ho->hn", projected, targetVec)

	// Logits entry (h, target, source) scores the edge source→target for head h.
	logits := Add(InsertAxes(targetScores, -1), InsertAxes(sourceScores, 1))
	logits = activations.LeakyReluWithAlpha(logits, LeakyReluNegativeSlope)

	mask := conn.Mask
	if mask.DType() == dtypes.Bool {
		broadcast := BroadcastToDims(InsertAxes(mask, 0), c.numHeads, c.numNodes, c.numNodes)
		coefficients = MaskedSoftmax(logits, broadcast, -1)
	} else {
		if mask.DType() != dtype {
			mask = ConvertDType(mask, dtype)
		}
		coefficients = Softmax(Add(logits, InsertAxes(mask, 0)), -1)
	}
	coefficients = c.dropout(ctx, coefficients)

	// Each target aggregates the projected features of its in-neighbors, weighted
	// by attention: a batched matmul over the head axis.
	headed := Einsum("hnm,hmo->hno", coefficients, projected)
	headed = TransposeAllDims(headed, 1, 0, 2) // (numNodes, numHeads, numOutputFeatures)
	output = c.finish(ctx, headed)
	return
}

// denseProjection projects the node features to (numHeads, numNodes,
// numOutputFeatures). [VariantDensePerHead] keeps one independent projection matrix
// per head, [VariantDense] uses a single flattened linear map -- the same function,
// lowered differently.
func (c *Config) denseProjection(ctx *context.Context, x *Node) *Node {
	if c.variant == VariantDensePerHead {
		g := x.Graph()
		numInputFeatures := x.Shape().Dimensions[1]
		weights := ctx.In("projection").VariableWithShape("weights",
			shapes.Make(x.DType(), c.numHeads, numInputFeatures, c.numOutputFeatures)).ValueGraph(g)
		return Einsum("nf,hfo->hno", x, weights)
	}
	projected := layers.Dense(ctx.In("projection"), x, false, c.numHeads*c.numOutputFeatures)
	projected = Reshape(projected, c.numNodes, c.numHeads, c.numOutputFeatures)
	return TransposeAllDims(projected, 1, 0, 2)
}
