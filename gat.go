// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package gat implements Graph Attention Network (GAT) layers, as described in
// "Graph Attention Networks" [Veličković et al. 2018](https://arxiv.org/abs/1710.10903).
//
// Each node of a graph updates its representation by attending over the projected
// features of the nodes it is connected to, with learned attention weights, across
// multiple independent attention heads. The graph connectivity is given either as a
// dense [AdjacencyMask] or as a sparse [EdgeList], and per representation there are
// two [Variant]s of the forward computation that differ in the layout of the
// projection parameters, see their documentation.
//
// Start with New(ctx, input, connectivity, numOutputFeatures, numHeads). Configure
// further as desired. When finished, call Done (or DoneWithCoefficients to also get
// the attention weights), and it will return the updated node features. To build a
// whole multi-layer network in one go, see [NewStack].
package gat

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/initializers"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/gomlx/gomlx/types/shapes"
	"k8s.io/klog/v2"
)

const (
	// ParamVariant is the hyperparameter that selects the [Variant] of the forward
	// computation, given by its string name (e.g. "edge_list"), see VariantStrings
	// for the valid values.
	// The default is "", meaning the variant follows the connectivity representation:
	// [VariantDense] for an [AdjacencyMask] and [VariantEdgeList] for an [EdgeList].
	ParamVariant = "gat_variant"

	// ParamUseBias is the hyperparameter that defines whether a learned bias is
	// added to the layer output. The default is true. See [Config.UseBias].
	ParamUseBias = "gat_use_bias"
)

// LeakyReluNegativeSlope is the fixed negative slope of the leaky-relu applied to
// the raw attention logits, the default from the GAT paper.
const LeakyReluNegativeSlope = 0.2

// Config is created with New and can be further configured with its methods.
// Once done, call Done or DoneWithCoefficients.
type Config struct {
	ctx      *context.Context
	input    *Node
	conn     Connectivity
	numNodes int

	numOutputFeatures int
	numHeads          int

	variant           Variant
	dropoutRate       float64
	concatenateHeads  bool
	activation        string
	useBias           bool
	useSkipConnection bool
	saveCoefficients  bool
}

// New returns the configuration of a GAT layer applied to the given node features
// and connectivity. See the Config methods for the optional settings, and call
// [Config.Done] when finished configuring.
//
// Args:
//   - ctx: the context with the variables of the layer, which is scoped into "gat".
//     Variables are initialized with Glorot uniform, except biases which start at
//     zero, matching the reference GAT setup.
//   - input: node feature matrix shaped (numNodes, numInputFeatures), one row per
//     node. Row order is the node identity used by the connectivity.
//   - conn: an [AdjacencyMask] or an [EdgeList]. It must agree with numNodes, and
//     it is returned unchanged by the layer -- typically it is threaded through a
//     stack of layers.
//   - numOutputFeatures: per-head output dimension.
//   - numHeads: number of independent attention heads. The default is to
//     concatenate their outputs, so the output is shaped
//     (numNodes, numHeads*numOutputFeatures). See [Config.ConcatenateHeads].
//
// The dropout rate defaults to 0.6 (the GAT paper setting for the citation
// networks) and can be set with [Config.Dropout] or the hyperparameter
// [layers.ParamDropoutRate]. The output activation defaults to "elu" and can be set
// with [Config.Activation] or the hyperparameter [layers.ParamActivation].
func New(ctx *context.Context, input *Node, conn Connectivity, numOutputFeatures, numHeads int) *Config {
	ctx = ctx.In("gat")
	if input == nil {
		Panicf("input node features are required, got nil")
	}
	if input.Rank() != 2 || !input.DType().IsFloat() {
		Panicf("input node features must be a float matrix shaped (numNodes, numInputFeatures), instead got %s",
			input.Shape())
	}
	if numOutputFeatures < 1 || numHeads < 1 {
		Panicf("numOutputFeatures (%d) and numHeads (%d) must be at least 1", numOutputFeatures, numHeads)
	}
	numNodes := input.Shape().Dimensions[0]
	if conn == nil {
		Panicf("a Connectivity is required, got nil -- use an AdjacencyMask or an EdgeList")
	}
	conn.assertValidFor(numNodes)

	c := &Config{
		ctx:               ctx,
		input:             input,
		conn:              conn,
		numNodes:          numNodes,
		numOutputFeatures: numOutputFeatures,
		numHeads:          numHeads,
		dropoutRate:       context.GetParamOr(ctx, layers.ParamDropoutRate, 0.6),
		concatenateHeads:  true,
		activation:        context.GetParamOr(ctx, activations.ParamActivation, "elu"),
		useBias:           context.GetParamOr(ctx, ParamUseBias, true),
	}

	variantName := context.GetParamOr(ctx, ParamVariant, "")
	if variantName == "" {
		switch conn.(type) {
		case AdjacencyMask:
			c.variant = VariantDense
		case EdgeList:
			c.variant = VariantEdgeList
		}
	} else {
		variant, err := VariantString(variantName)
		if err != nil {
			Panicf("invalid value %q for hyperparameter %q: valid values are %v",
				variantName, ParamVariant, VariantStrings())
		}
		c.assertVariantMatchesConnectivity(variant)
		c.variant = variant
	}
	return c
}

// Variant selects the forward computation used by the layer. All variants compute
// the same function (up to float rounding), they differ in parameter layout and
// cost, see [Variant]. It panics if the variant does not match the connectivity
// representation given to [New].
//
// The default follows the connectivity representation: [VariantDense] for an
// [AdjacencyMask], [VariantEdgeList] for an [EdgeList]. It can also be set with the
// hyperparameter [ParamVariant].
func (c *Config) Variant(variant Variant) *Config {
	if !variant.IsAVariant() {
		Panicf("unknown variant %d: valid values are %v", variant, VariantStrings())
	}
	c.assertVariantMatchesConnectivity(variant)
	c.variant = variant
	return c
}

func (c *Config) assertVariantMatchesConnectivity(variant Variant) {
	switch c.conn.(type) {
	case AdjacencyMask:
		if !variant.IsDense() {
			Panicf("variant %s takes an EdgeList connectivity, but the layer was given an AdjacencyMask -- "+
				"use %s or %s instead, or keep the default", variant, VariantDensePerHead, VariantDense)
		}
	case EdgeList:
		if !variant.IsEdgeList() {
			Panicf("variant %s takes an AdjacencyMask connectivity, but the layer was given an EdgeList -- "+
				"use %s or %s instead, or keep the default", variant, VariantEdgeList, VariantEdgeListDirect)
		}
	}
}

// ConcatenateHeads defines whether the outputs of the individual attention heads
// are concatenated, yielding (numNodes, numHeads*numOutputFeatures), or averaged,
// yielding (numNodes, numOutputFeatures).
//
// The default is true (concatenate). Averaging is normally used only on the final
// layer of a network, following the paper.
func (c *Config) ConcatenateHeads(concatenate bool) *Config {
	c.concatenateHeads = concatenate
	return c
}

// Activation sets the activation applied to the final layer output (after the bias).
// "elu" is implemented by this package, other names are resolved by the activations
// package, and ""/"none" disable it.
//
// The default is "elu", but it is overridden by the hyperparameter
// [layers.ParamActivation] if set in the context.
func (c *Config) Activation(activation string) *Config {
	c.activation = activation
	return c
}

// Dropout sets the rate of dropout applied during training at three points of the
// layer: to the input features, to the projected per-head features and to the
// normalized attention weights -- three independent masks, as in the reference GAT
// setup. A rate of 0 disables dropout. It has no effect during inference.
//
// The default is 0.6, but it is overridden by the hyperparameter
// [layers.ParamDropoutRate] if set in the context.
func (c *Config) Dropout(rate float64) *Config {
	if rate < 0 || rate >= 1 {
		Panicf("invalid dropout rate %g, it must be within [0, 1)", rate)
	}
	c.dropoutRate = rate
	return c
}

// UseBias defines whether a learned bias, initialized at zero, is added to the
// output after combining the heads.
//
// The default is true, but it is overridden by the hyperparameter [ParamUseBias]
// if set in the context.
func (c *Config) UseBias(useBias bool) *Config {
	c.useBias = useBias
	return c
}

// UseSkipConnection is accepted for configuration completeness but is currently
// ignored: no variant applies a residual connection around the attention. Enabling
// it only logs a warning.
func (c *Config) UseSkipConnection(enabled bool) *Config {
	if enabled {
		klog.Warningf("gat: UseSkipConnection is accepted but not applied by any variant, the setting has no effect")
	}
	c.useSkipConnection = enabled
	return c
}

// SaveCoefficients defines whether the layer keeps the attention weights of the
// last forward pass in the non-trainable variable "coefficients" (under the layer
// scope), where they can be inspected after execution -- e.g. to visualize what the
// nodes attend to. The default is false.
//
// The saved value is the same tensor returned by [Config.DoneWithCoefficients].
func (c *Config) SaveCoefficients(enabled bool) *Config {
	c.saveCoefficients = enabled
	return c
}

// Done builds the configured layer and returns the updated node features, shaped
// (numNodes, numHeads*numOutputFeatures) if heads are concatenated or
// (numNodes, numOutputFeatures) if averaged.
//
// The connectivity given to [New] is not consumed nor changed, feed it unchanged to
// the next layer.
func (c *Config) Done() *Node {
	output, _ := c.DoneWithCoefficients()
	return output
}

// DoneWithCoefficients builds the configured layer and returns the updated node
// features along with the attention weights used, after attention dropout.
//
// The coefficients are shaped (numHeads, numNodes, numNodes) for the dense variants,
// entry (h, target, source) holding the weight of source in target's head h output,
// and (numEdges, numHeads) for the edge list variants, one weight per edge and head.
// For every node with at least one in-edge they sum to 1 over its in-neighbors.
func (c *Config) DoneWithCoefficients() (output, coefficients *Node) {
	ctx := c.ctx.WithInitializer(initializers.GlorotUniformFn(c.ctx))
	switch conn := c.conn.(type) {
	case AdjacencyMask:
		output, coefficients = c.denseForward(ctx, conn)
	case EdgeList:
		output, coefficients = c.sparseForward(ctx, conn)
	}
	if c.saveCoefficients {
		coefVar := ctx.Checked(false).VariableWithShape("coefficients", coefficients.Shape())
		coefVar.Trainable = false
		coefVar.SetValueGraph(coefficients)
	}
	return
}

// scoringVectors returns the learned per-head scoring vectors, each shaped
// (numHeads, numOutputFeatures): one to score a node as the source (the attended
// node) and one to score it as the target (the attending node) of an edge.
func (c *Config) scoringVectors(ctx *context.Context) (source, target *Node) {
	g := c.input.Graph()
	shape := shapes.Make(c.input.DType(), c.numHeads, c.numOutputFeatures)
	source = ctx.VariableWithShape("scoring_source", shape).ValueGraph(g)
	target = ctx.VariableWithShape("scoring_target", shape).ValueGraph(g)
	return
}

// dropout applies dropout at the configured rate. It is a no-op if the rate is 0
// or during inference.
func (c *Config) dropout(ctx *context.Context, x *Node) *Node {
	return layers.DropoutStatic(ctx, x, c.dropoutRate)
}

// finish combines the per-head outputs, shaped (numNodes, numHeads,
// numOutputFeatures), into the layer output: concatenation or mean over heads,
// then bias and activation.
func (c *Config) finish(ctx *context.Context, headed *Node) *Node {
	g := headed.Graph()
	var output *Node
	if c.concatenateHeads {
		output = Reshape(headed, c.numNodes, c.numHeads*c.numOutputFeatures)
	} else {
		output = ReduceMean(headed, 1)
	}
	if c.useBias {
		biasCtx := ctx.WithInitializer(initializers.Zero)
		bias := biasCtx.VariableWithShape("biases",
			shapes.Make(output.DType(), output.Shape().Dimensions[1])).ValueGraph(g)
		output = Add(output, InsertAxes(bias, 0))
	}
	return applyActivation(c.activation, output)
}
