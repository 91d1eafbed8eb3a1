// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gat

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/gomlx/gomlx/types/xslices"
)

// StackConfig is created with NewStack and can be further configured with its
// methods. Once done, call Done.
type StackConfig struct {
	ctx   *context.Context
	input *Node
	conn  Connectivity

	outputSizes []int
	numHeads    []int

	variant          Variant
	variantSelected  bool
	dropoutRate      float64
	useBias          bool
	hiddenActivation string
}

// NewStack returns the configuration of a sequential stack of GAT layers, the
// usual shape of a GAT network: every layer consumes the features produced by the
// previous one, and all layers share the connectivity.
//
// The hidden layers concatenate their heads and apply the hidden activation
// (default "elu"), so layer i+1 sees numHeads[i]*outputSizes[i] input features.
// The final layer averages its heads and applies no activation, producing a plain
// (numNodes, outputSizes[last]) embedding to feed a task-specific readout or loss.
//
// Configure the number of layers and their widths with [StackConfig.OutputSizes]
// (required) and [StackConfig.NumHeads], then call [StackConfig.Done]. Each layer
// gets its own unique scope under ctx.
func NewStack(ctx *context.Context, input *Node, conn Connectivity) *StackConfig {
	return &StackConfig{
		ctx:   ctx,
		input: input,
		conn:  conn,

		dropoutRate:      context.GetParamOr(ctx, layers.ParamDropoutRate, 0.6),
		useBias:          true,
		hiddenActivation: context.GetParamOr(ctx, activations.ParamActivation, "elu"),
	}
}

// OutputSizes sets the per-head output dimension of each layer, and with that the
// number of layers of the stack. It is required, and at least one layer must be
// given.
func (c *StackConfig) OutputSizes(sizes ...int) *StackConfig {
	for _, size := range sizes {
		if size < 1 {
			Panicf("every layer output size must be at least 1, instead got %v", sizes)
		}
	}
	c.outputSizes = sizes
	return c
}

// NumHeads sets the number of attention heads of each layer. It must have one
// value per [StackConfig.OutputSizes] entry. The default is 1 head everywhere.
func (c *StackConfig) NumHeads(heads ...int) *StackConfig {
	for _, numHeads := range heads {
		if numHeads < 1 {
			Panicf("every layer must have at least 1 head, instead got %v", heads)
		}
	}
	c.numHeads = heads
	return c
}

// Variant selects the forward computation used by every layer of the stack, see
// [Variant]. The default follows the connectivity representation, as in
// [Config.Variant]. All layers of a stack use the same variant, since they share
// the connectivity.
func (c *StackConfig) Variant(variant Variant) *StackConfig {
	if !variant.IsAVariant() {
		Panicf("unknown variant %d: valid values are %v", variant, VariantStrings())
	}
	c.variant = variant
	c.variantSelected = true
	return c
}

// Dropout sets the dropout rate used by every layer, see [Config.Dropout].
// The default is 0.6, or the hyperparameter [layers.ParamDropoutRate] if set.
func (c *StackConfig) Dropout(rate float64) *StackConfig {
	if rate < 0 || rate >= 1 {
		Panicf("invalid dropout rate %g, it must be within [0, 1)", rate)
	}
	c.dropoutRate = rate
	return c
}

// UseBias defines whether the layers add a learned bias to their outputs.
// The default is true.
func (c *StackConfig) UseBias(useBias bool) *StackConfig {
	c.useBias = useBias
	return c
}

// HiddenActivation sets the activation applied by every layer but the last.
// The default is "elu", or the hyperparameter [layers.ParamActivation] if set.
// The last layer never applies an activation, its output usually feeds a softmax
// or loss externally.
func (c *StackConfig) HiddenActivation(activation string) *StackConfig {
	c.hiddenActivation = activation
	return c
}

// Done builds the configured stack and returns the output node features of the
// last layer, shaped (numNodes, outputSizes[last]).
func (c *StackConfig) Done() *Node {
	numLayers := len(c.outputSizes)
	if numLayers == 0 {
		Panicf("the stack has no layers, set the per-layer output sizes with OutputSizes() first")
	}
	heads := c.numHeads
	if heads == nil {
		heads = xslices.SliceWithValue(numLayers, 1)
	}
	if len(heads) != numLayers {
		Panicf("NumHeads() was given %d values, but OutputSizes() defined %d layers, they must match",
			len(heads), numLayers)
	}

	x := c.input
	for i, size := range c.outputSizes {
		layer := New(c.ctx.Inf("%03d_gat_layer", i), x, c.conn, size, heads[i]).
			Dropout(c.dropoutRate).
			UseBias(c.useBias)
		if c.variantSelected {
			layer.Variant(c.variant)
		}
		if i == numLayers-1 {
			layer.ConcatenateHeads(false).Activation("none")
		} else {
			layer.Activation(c.hiddenActivation)
		}
		x = layer.Done()
	}
	return x
}
