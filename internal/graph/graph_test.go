package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGraph_OverallOrder_Linear(t *testing.T) {
	g := New[string]()
	g.AddNode("a")
	g.AddNode("b")
	g.AddNode("c")
	require.NoError(t, g.AddDependency("c", "b"))
	require.NoError(t, g.AddDependency("b", "a"))

	order, err := g.OverallOrder(false)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestGraph_OverallOrder_LeavesOnly(t *testing.T) {
	g := New[string]()
	g.AddNode("a")
	g.AddNode("b")
	g.AddNode("c")
	require.NoError(t, g.AddDependency("c", "b"))
	require.NoError(t, g.AddDependency("b", "a"))

	leaves, err := g.OverallOrder(true)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, leaves)
}

func TestGraph_OverallOrder_MultipleIndependentLeaves(t *testing.T) {
	g := New[string]()
	for _, k := range []string{"x", "y", "z"} {
		g.AddNode(k)
	}
	leaves, err := g.OverallOrder(true)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"x", "y", "z"}, leaves)
}

func TestGraph_AddDependency_UnknownNode(t *testing.T) {
	g := New[string]()
	g.AddNode("a")
	err := g.AddDependency("a", "ghost")
	require.Error(t, err)
}

func TestGraph_CycleDetection_SimpleCycle(t *testing.T) {
	g := New[string]()
	g.AddNode("a")
	g.AddNode("b")
	require.NoError(t, g.AddDependency("a", "b"))
	require.NoError(t, g.AddDependency("b", "a"))

	_, err := g.OverallOrder(false)
	require.Error(t, err)

	var cycleErr *CircularDependenciesError
	require.ErrorAs(t, err, &cycleErr)
	require.Len(t, cycleErr.Cycles, 1)
	require.ElementsMatch(t, []string{"a", "b"}, cycleErr.Cycles[0])
}

func TestGraph_CycleDetection_FoldsDuplicateVertexSets(t *testing.T) {
	g := New[string]()
	g.AddNode("a")
	g.AddNode("b")
	g.AddNode("c")
	require.NoError(t, g.AddDependency("a", "b"))
	require.NoError(t, g.AddDependency("b", "c"))
	require.NoError(t, g.AddDependency("c", "a"))

	_, err := g.OverallOrder(false)
	var cycleErr *CircularDependenciesError
	require.ErrorAs(t, err, &cycleErr)
	require.Len(t, cycleErr.Cycles, 1)
}

func TestGraph_CycleDetection_LeavesOnlyOnFullyCyclicGraph(t *testing.T) {
	g := New[string]()
	g.AddNode("a")
	g.AddNode("b")
	require.NoError(t, g.AddDependency("a", "b"))
	require.NoError(t, g.AddDependency("b", "a"))

	_, err := g.OverallOrder(true)
	require.Error(t, err)
}

func TestGraph_Clone_IsIndependent(t *testing.T) {
	g := New[string]()
	g.AddNode("a")
	g.AddNode("b")
	require.NoError(t, g.AddDependency("b", "a"))

	clone := g.Clone()
	g.AddNode("c")
	require.NoError(t, g.AddDependency("c", "b"))

	require.Equal(t, 2, clone.Size())
	require.Equal(t, 3, g.Size())
}

func TestGraph_Size_And_Keys(t *testing.T) {
	g := New[int]()
	g.AddNode(1)
	g.AddNode(2)
	g.AddNode(1) // idempotent
	require.Equal(t, 2, g.Size())
	require.Equal(t, []int{1, 2}, g.Keys())
}
