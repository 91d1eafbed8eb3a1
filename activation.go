// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gat

import (
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/layers/activations"
)

// Elu stands for Exponential Linear Unit activation function, defined as:
// . $x$ if $x >= 0$
// . $e^x - 1$ if $x < 0$
//
// Introduced in "Fast and Accurate Deep Network Learning by Exponential Linear
// Units (ELUs)" [Clevert et al. 2015](https://arxiv.org/abs/1511.07289). It is
// the activation used between the layers of the original GAT network.
func Elu(x *Node) *Node {
	return Where(
		GreaterOrEqual(x, ScalarZero(x.Graph(), x.DType())),
		x,
		Expm1(x))
}

// applyActivation applies the activation selected by name: "elu" is implemented in
// this package, any other name is delegated to the activations package -- with ""
// and "none" being no-ops. It panics on unknown names.
func applyActivation(name string, x *Node) *Node {
	if name == "elu" {
		return Elu(x)
	}
	return activations.Apply(activations.FromName(name), x)
}
