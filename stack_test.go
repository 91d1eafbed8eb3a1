package gat

import (
	"testing"

	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/initializers"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

func TestStackShapes(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	g := NewGraph(backend, "stack shapes")
	ctx := context.New()
	ctx.RngStateFromSeed(42)
	const numNodes = 7
	features := IotaFull(g, shapes.Make(dtypes.Float32, numNodes, 16))
	ring := EdgeList{
		Sources: Const(g, []int32{0, 1, 2, 3, 4, 5, 6}),
		Targets: Const(g, []int32{1, 2, 3, 4, 5, 6, 0}),
	}
	edges := ring.AddSelfLoops(numNodes)

	// The transductive classification setup: one hidden layer with 8 heads of 8
	// features each, and an averaged 7 class output layer.
	output := NewStack(ctx, features, edges).
		OutputSizes(8, 7).
		NumHeads(8, 1).
		Done()
	assert.EqualValues(t, []int{numNodes, 7}, output.Shape().Dimensions)

	single := NewStack(ctx.In("single"), features, edges).
		OutputSizes(4).
		Done()
	assert.EqualValues(t, []int{numNodes, 4}, single.Shape().Dimensions)

	mask := edges.AdjacencyMask(numNodes, dtypes.Float32)
	deep := NewStack(ctx.In("deep"), features, mask).
		OutputSizes(4, 4, 2).
		NumHeads(2, 2, 2).
		Variant(VariantDensePerHead).
		Done()
	assert.EqualValues(t, []int{numNodes, 2}, deep.Shape().Dimensions)
}

func TestStackValidation(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	g := NewGraph(backend, "stack validation")
	ctx := context.New()
	features := IotaFull(g, shapes.Make(dtypes.Float32, 4, 3))
	edges := EdgeList{
		Sources: Const(g, []int32{0, 1, 2, 3}),
		Targets: Const(g, []int32{1, 2, 3, 0}),
	}

	require.Panics(t, func() { NewStack(ctx, features, edges).Done() },
		"OutputSizes is required")
	require.Panics(t, func() { NewStack(ctx, features, edges).OutputSizes(8, 4).NumHeads(2).Done() },
		"one NumHeads value per layer")
	require.Panics(t, func() { NewStack(ctx, features, edges).OutputSizes(0) },
		"output sizes must be positive")
	require.Panics(t, func() { NewStack(ctx, features, edges).OutputSizes(4).NumHeads(0) },
		"head counts must be positive")
	require.Panics(t, func() { NewStack(ctx, features, edges).OutputSizes(4).Dropout(1.5) },
		"dropout rate out of range")
	require.Panics(t, func() { NewStack(ctx, features, edges).OutputSizes(4).Variant(VariantDense).Done() },
		"dense variant on an edge list")
}

// TestStackRepresentationsAgree builds the same 2 layer stack over an edge list
// and over the equivalent adjacency mask, with shared parameters: layer by layer
// the variants compute the same function, so the stacks must too.
func TestStackRepresentationsAgree(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	ctx.RngStateFromSeed(42)
	ctx.SetParam(initializers.ParamInitialSeed, 42)
	ctx = ctx.Checked(false)
	const numNodes = 6
	results := context.ExecOnceN(backend, ctx, func(ctx *context.Context, g *Graph) []*Node {
		features := ctx.RandomUniform(g, shapes.Make(dtypes.Float64, numNodes, 5))
		ring := EdgeList{
			Sources: Const(g, []int32{0, 1, 2, 3, 4, 5, 0, 3}),
			Targets: Const(g, []int32{1, 2, 3, 4, 5, 0, 3, 0}),
		}
		edges := ring.AddSelfLoops(numNodes)
		mask := edges.AdjacencyMask(numNodes, dtypes.Float64)

		sparse := NewStack(ctx, features, edges).
			OutputSizes(8, 7).
			NumHeads(2, 2).
			Dropout(0).
			Done()
		dense := NewStack(ctx, features, mask).
			OutputSizes(8, 7).
			NumHeads(2, 2).
			Dropout(0).
			Done()
		return []*Node{ReduceAllMax(Abs(Sub(sparse, dense)))}
	})
	require.Less(t, tensors.ToScalar[float64](results[0]), 1e-6,
		"stacks over the two connectivity representations disagree")
}
