// Package tree computes and verifies closure-table rows for a forest.
//
// The store keeps one row per (ancestor, descendant) pair, self pairs
// included at depth 0. Everything here is pure: callers read rows from
// the database, ask for a delta, and write it back in one transaction.
package tree

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCycle is returned when a move would place a node under itself
var ErrCycle = errors.New("target is inside the moved subtree")

// Edge is one closure row
type Edge struct {
	Ancestor   string
	Descendant string
	Depth      int
}

// Pair identifies a closure row regardless of depth
type Pair struct {
	Ancestor   string
	Descendant string
}

// Self is the depth 0 row every node owns
func Self(code string) Edge {
	return Edge{Ancestor: code, Descendant: code, Depth: 0}
}

// AttachRows returns the rows of a new leaf placed under a parent whose
// ancestor rows (self row included) are given. With no parent only the self row is returned.
func AttachRows(code string, parentAncestors []Edge) []Edge {
	rows := make([]Edge, 0, len(parentAncestors)+1)
	rows = append(rows, Self(code))
	for _, p := range parentAncestors {
		rows = append(rows, Edge{Ancestor: p.Ancestor, Descendant: code, Depth: p.Depth + 1})
	}
	return rows
}

// MoveDelta computes the rows to drop and to add when the subtree rooted at
// root moves under a new parent.
//
// subtree holds the rows whose ancestor is root (self row included),
// oldAncestors the rows whose descendant is root with depth > 0, and
// newParentAncestors the rows whose descendant is the new parent (self row
// included). An empty newParentAncestors detaches the subtree.
func MoveDelta(root string, subtree, oldAncestors, newParentAncestors []Edge) (remove, add []Edge, err error) {
	inSubtree := make(map[string]struct{}, len(subtree))
	for _, s := range subtree {
		if s.Ancestor != root {
			return nil, nil, fmt.Errorf("subtree row %s->%s is not rooted at %s", s.Ancestor, s.Descendant, root)
		}
		inSubtree[s.Descendant] = struct{}{}
	}
	if _, ok := inSubtree[root]; !ok {
		return nil, nil, fmt.Errorf("subtree of %s has no self row", root)
	}

	for _, p := range newParentAncestors {
		if p.Depth == 0 {
			if _, ok := inSubtree[p.Ancestor]; ok {
				return nil, nil, ErrCycle
			}
		}
	}

	remove = make([]Edge, 0, len(oldAncestors)*len(subtree))
	for _, a := range oldAncestors {
		if a.Descendant != root || a.Depth == 0 {
			continue
		}
		for _, s := range subtree {
			remove = append(remove, Edge{Ancestor: a.Ancestor, Descendant: s.Descendant, Depth: a.Depth + s.Depth})
		}
	}

	add = make([]Edge, 0, len(newParentAncestors)*len(subtree))
	for _, p := range newParentAncestors {
		for _, s := range subtree {
			add = append(add, Edge{Ancestor: p.Ancestor, Descendant: s.Descendant, Depth: p.Depth + 1 + s.Depth})
		}
	}

	return remove, add, nil
}

// Expected derives the full closure from parent pointers.
// parents maps every node to its parent, "" for roots.
func Expected(parents map[string]string) (map[Pair]int, error) {
	closure := make(map[Pair]int, len(parents)*2)
	for code := range parents {
		depth := 0
		seen := map[string]struct{}{}
		for node := code; node != ""; node = parents[node] {
			if _, loop := seen[node]; loop {
				return nil, fmt.Errorf("cycle through %s", node)
			}
			seen[node] = struct{}{}
			if _, known := parents[node]; !known {
				return nil, fmt.Errorf("%s has unknown parent %s", code, node)
			}
			closure[Pair{Ancestor: node, Descendant: code}] = depth
			depth++
		}
	}
	return closure, nil
}

// ProblemKind classifies a mismatch between stored rows and parent pointers
type ProblemKind string

const (
	Missing    ProblemKind = "missing"
	Stale      ProblemKind = "stale"
	WrongDepth ProblemKind = "wrong_depth"
)

// Problem is one closure row that disagrees with the parent pointers
type Problem struct {
	Kind ProblemKind `json:"kind"`
	Pair Pair        `json:"pair"`
	Want int         `json:"want"`
	Got  int         `json:"got"`
}

// Verify compares stored rows with the closure implied by parents.
// It returns nil when they agree. Problems are sorted for stable output.
func Verify(parents map[string]string, rows []Edge) ([]Problem, error) {
	want, err := Expected(parents)
	if err != nil {
		return nil, err
	}

	var problems []Problem
	got := make(map[Pair]int, len(rows))
	for _, r := range rows {
		p := Pair{Ancestor: r.Ancestor, Descendant: r.Descendant}
		got[p] = r.Depth
		depth, ok := want[p]
		switch {
		case !ok:
			problems = append(problems, Problem{Kind: Stale, Pair: p, Want: -1, Got: r.Depth})
		case depth != r.Depth:
			problems = append(problems, Problem{Kind: WrongDepth, Pair: p, Want: depth, Got: r.Depth})
		}
	}
	for p, depth := range want {
		if _, ok := got[p]; !ok {
			problems = append(problems, Problem{Kind: Missing, Pair: p, Want: depth, Got: -1})
		}
	}

	sort.Slice(problems, func(i, j int) bool {
		a, b := problems[i].Pair, problems[j].Pair
		if a.Ancestor != b.Ancestor {
			return a.Ancestor < b.Ancestor
		}
		return a.Descendant < b.Descendant
	})
	return problems, nil
}
