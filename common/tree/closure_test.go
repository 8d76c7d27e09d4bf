package tree

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore applies deltas the way the repository does, for property tests
type memStore struct {
	parents map[string]string
	rows    map[Pair]int
}

func newMemStore() *memStore {
	return &memStore{parents: map[string]string{}, rows: map[Pair]int{}}
}

func (m *memStore) edges() []Edge {
	out := make([]Edge, 0, len(m.rows))
	for p, d := range m.rows {
		out = append(out, Edge{Ancestor: p.Ancestor, Descendant: p.Descendant, Depth: d})
	}
	return out
}

func (m *memStore) ancestorsOf(code string, withSelf bool) []Edge {
	var out []Edge
	for p, d := range m.rows {
		if p.Descendant == code && (withSelf || d > 0) {
			out = append(out, Edge{Ancestor: p.Ancestor, Descendant: code, Depth: d})
		}
	}
	return out
}

func (m *memStore) subtreeOf(code string) []Edge {
	var out []Edge
	for p, d := range m.rows {
		if p.Ancestor == code {
			out = append(out, Edge{Ancestor: code, Descendant: p.Descendant, Depth: d})
		}
	}
	return out
}

func (m *memStore) add(code, parent string) {
	var parentRows []Edge
	if parent != "" {
		parentRows = m.ancestorsOf(parent, true)
	}
	for _, e := range AttachRows(code, parentRows) {
		m.rows[Pair{e.Ancestor, e.Descendant}] = e.Depth
	}
	m.parents[code] = parent
}

func (m *memStore) move(code, parent string) error {
	var parentRows []Edge
	if parent != "" {
		parentRows = m.ancestorsOf(parent, true)
	}
	remove, add, err := MoveDelta(code, m.subtreeOf(code), m.ancestorsOf(code, false), parentRows)
	if err != nil {
		return err
	}
	for _, e := range remove {
		delete(m.rows, Pair{e.Ancestor, e.Descendant})
	}
	for _, e := range add {
		m.rows[Pair{e.Ancestor, e.Descendant}] = e.Depth
	}
	m.parents[code] = parent
	return nil
}

func TestAttachRows(t *testing.T) {
	rows := AttachRows("SATAna1", []Edge{
		{Ancestor: "PC42", Descendant: "PC42", Depth: 0},
		{Ancestor: "Chernobyl", Descendant: "PC42", Depth: 1},
	})

	assert.ElementsMatch(t, []Edge{
		{Ancestor: "SATAna1", Descendant: "SATAna1", Depth: 0},
		{Ancestor: "PC42", Descendant: "SATAna1", Depth: 1},
		{Ancestor: "Chernobyl", Descendant: "SATAna1", Depth: 2},
	}, rows)
}

func TestMoveDelta_Scenario(t *testing.T) {
	m := newMemStore()
	m.add("Chernobyl", "")
	m.add("Polito", "")
	m.add("PC42", "Polito")
	m.add("SATAna1", "PC42")

	require.NoError(t, m.move("SATAna1", "Chernobyl"))

	problems, err := Verify(m.parents, m.edges())
	require.NoError(t, err)
	assert.Empty(t, problems)
	assert.Equal(t, 1, m.rows[Pair{"Chernobyl", "SATAna1"}])
	_, stale := m.rows[Pair{"Polito", "SATAna1"}]
	assert.False(t, stale)
}

func TestMoveDelta_Cycle(t *testing.T) {
	m := newMemStore()
	m.add("A", "")
	m.add("B", "A")
	m.add("C", "B")

	err := m.move("A", "C")
	assert.ErrorIs(t, err, ErrCycle)

	err = m.move("B", "B")
	assert.ErrorIs(t, err, ErrCycle)
}

func TestMoveDelta_RequiresSelfRow(t *testing.T) {
	_, _, err := MoveDelta("A", []Edge{{Ancestor: "A", Descendant: "B", Depth: 1}}, nil, nil)
	assert.Error(t, err)
}

func TestVerify_DetectsDrift(t *testing.T) {
	parents := map[string]string{"A": "", "B": "A"}
	rows := []Edge{
		Self("A"),
		Self("B"),
		{Ancestor: "A", Descendant: "B", Depth: 2},
		{Ancestor: "B", Descendant: "A", Depth: 1},
	}

	problems, err := Verify(parents, rows)
	require.NoError(t, err)
	require.Len(t, problems, 2)
	assert.Equal(t, WrongDepth, problems[0].Kind)
	assert.Equal(t, Stale, problems[1].Kind)

	problems, err = Verify(parents, []Edge{Self("A")})
	require.NoError(t, err)
	assert.Len(t, problems, 2)
}

func TestExpected_Errors(t *testing.T) {
	_, err := Expected(map[string]string{"A": "B", "B": "A"})
	assert.Error(t, err)

	_, err = Expected(map[string]string{"A": "ghost"})
	assert.Error(t, err)
}

// After any sequence of inserts and moves the rows match the parent pointers
func TestClosureProperty_RandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		m := newMemStore()
		var codes []string

		for step := 0; step < 60; step++ {
			if len(codes) < 3 || rng.Intn(3) == 0 {
				code := fmt.Sprintf("N%d", len(codes))
				parent := ""
				if len(codes) > 0 && rng.Intn(4) != 0 {
					parent = codes[rng.Intn(len(codes))]
				}
				m.add(code, parent)
				codes = append(codes, code)
				continue
			}

			code := codes[rng.Intn(len(codes))]
			parent := ""
			if rng.Intn(5) != 0 {
				parent = codes[rng.Intn(len(codes))]
			}
			before := len(m.rows)
			err := m.move(code, parent)
			if err != nil {
				require.ErrorIs(t, err, ErrCycle)
				assert.Equal(t, before, len(m.rows), "failed move must not touch rows")
			}
		}

		problems, err := Verify(m.parents, m.edges())
		require.NoError(t, err)
		require.Empty(t, problems, "round %d", round)
	}
}
