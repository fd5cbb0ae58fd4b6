// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.
// This code has been cleaned up, refactored, and turned into generics.

// Package merkle provides an implementation of a merkle tree for validation
// support for the ledger. Node hashes are kept as lowercase hex text so a
// parent is the hash of the concatenated hex strings of its children.
package merkle

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"

	"github.com/ethereum/go-ethereum/common"
)

// emptySeed is hashed to produce the root of a tree with no leafs.
const emptySeed = "empty"

// EmptyRoot is the merkle root of an empty set of values.
var EmptyRoot = string(sum(sha256.New, []byte(emptySeed)))

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree. Hash must return the hex text of the value's hash.
type Hashable[T any] interface {
	Hash() ([]byte, error)
	Equals(other T) bool
}

// =============================================================================

// Leaf is a hex encoded hash used as is for a leaf of the tree.
type Leaf string

// Hash implements the Hashable interface.
func (l Leaf) Hash() ([]byte, error) {
	return []byte(l), nil
}

// Equals implements the Hashable interface.
func (l Leaf) Equals(other Leaf) bool {
	return l == other
}

// Root calculates the merkle root for the ordered set of hex hashes.
func Root(hashes []string) (string, error) {
	leafs := make([]Leaf, len(hashes))
	for i, h := range hashes {
		leafs[i] = Leaf(h)
	}

	tree, err := NewTree(leafs)
	if err != nil {
		return "", err
	}

	return tree.RootHex(), nil
}

// VerifyProof recalculates the root from a leaf hash and the proof returned
// by Tree.Proof using sha256, and compares it with the expected root.
func VerifyProof(leaf string, proof []string, order []int64, root string) bool {
	if len(proof) != len(order) {
		return false
	}

	current := []byte(leaf)
	for i, p := range proof {
		switch order[i] {
		case 0:
			current = combine(sha256.New, []byte(p), current)
		default:
			current = combine(sha256.New, current, []byte(p))
		}
	}

	return string(current) == root
}

// =============================================================================

// Tree represents a merkle tree that uses data of some type T that exhibits the
// behavior defined by the Hashable constraint.
type Tree[T Hashable[T]] struct {
	Root         *Node[T]
	Leafs        []*Node[T]
	MerkleRoot   []byte
	hashStrategy func() hash.Hash
}

// WithHashStrategy is used to change the default hash strategy of using sha256
// when constructing a new tree.
func WithHashStrategy[T Hashable[T]](hashStrategy func() hash.Hash) func(t *Tree[T]) {
	return func(t *Tree[T]) {
		t.hashStrategy = hashStrategy
	}
}

// NewTree constructs a new merkle tree that uses data of some type T that
// exhibits the behavior defined by the Hashable interface.
func NewTree[T Hashable[T]](values []T, options ...func(t *Tree[T])) (*Tree[T], error) {
	var defaultHashStrategy = sha256.New

	t := Tree[T]{
		hashStrategy: defaultHashStrategy,
	}

	for _, option := range options {
		option(&t)
	}

	if err := t.Generate(values); err != nil {
		return nil, err
	}

	return &t, nil
}

// Generate constructs the leafs and nodes of the tree from the specified
// data. If the tree has been generated previously, the tree is re-generated
// from scratch. An empty set of values produces the EmptyRoot and a single
// value is its own root.
func (t *Tree[T]) Generate(values []T) error {
	if len(values) == 0 {
		t.Root = nil
		t.Leafs = nil
		t.MerkleRoot = sum(t.hashStrategy, []byte(emptySeed))
		return nil
	}

	leafs := make([]*Node[T], 0, len(values))
	for _, value := range values {
		hash, err := value.Hash()
		if err != nil {
			return err
		}

		leafs = append(leafs, &Node[T]{
			Hash:  hash,
			Value: value,
			leaf:  true,
			Tree:  t,
		})
	}

	root := leafs[0]
	if len(leafs) > 1 {
		root = buildIntermediate(leafs, t)
	}

	t.Root = root
	t.Leafs = leafs
	t.MerkleRoot = root.Hash

	return nil
}

// Proof returns the set of hashes and the order of concatenating those
// hashes for proving a value is in the tree.
//
// Starting with the value's hash, for each entry in the proof:
//
//	order 0: current = hash(proof[i] + current)  -- proof comes first.
//	order 1: current = hash(current + proof[i])  -- proof comes second.
//
// The final value of current should match the merkle root.
func (t *Tree[T]) Proof(data T) ([]string, []int64, error) {
	for _, node := range t.Leafs {
		if !node.Value.Equals(data) {
			continue
		}

		var merkleProof []string
		var order []int64
		nodeParent := node.Parent

		for nodeParent != nil {
			if nodeParent.Left == node {
				merkleProof = append(merkleProof, string(nodeParent.Right.Hash))
				order = append(order, 1) // right leaf, concat second.
			} else {
				merkleProof = append(merkleProof, string(nodeParent.Left.Hash))
				order = append(order, 0) // left leaf, concat first.
			}
			node = nodeParent
			nodeParent = nodeParent.Parent
		}

		return merkleProof, order, nil
	}

	return nil, nil, errors.New("unable to find data in tree")
}

// Verify validates the hashes at each level of the tree and returns an error
// if the resulting hash at the root of the tree does not match the root hash.
func (t *Tree[T]) Verify() error {
	if t.Root == nil {
		if string(t.MerkleRoot) != string(sum(t.hashStrategy, []byte(emptySeed))) {
			return errors.New("root hash invalid")
		}
		return nil
	}

	calculatedMerkleRoot, err := t.Root.verify()
	if err != nil {
		return err
	}

	if string(t.MerkleRoot) != string(calculatedMerkleRoot) {
		return errors.New("root hash invalid")
	}

	return nil
}

// VerifyData indicates whether a given piece of data is in the tree and if the
// hashes are valid for that data.
func (t *Tree[T]) VerifyData(data T) error {
	for _, node := range t.Leafs {
		if !node.Value.Equals(data) {
			continue
		}

		currentParent := node.Parent
		for currentParent != nil {
			leftBytes, err := currentParent.Left.CalculateHash()
			if err != nil {
				return err
			}

			rightBytes, err := currentParent.Right.CalculateHash()
			if err != nil {
				return err
			}

			if string(combine(t.hashStrategy, leftBytes, rightBytes)) != string(currentParent.Hash) {
				return errors.New("merkle root is not equivalent to the merkle root calculated on the critical path")
			}

			currentParent = currentParent.Parent
		}

		return nil
	}

	return errors.New("data is not part of the tree")
}

// RootHex returns the merkle root as hex text.
func (t *Tree[T]) RootHex() string {
	return string(t.MerkleRoot)
}

// String returns a string representation of the tree. Only leaf nodes are
// included in the output.
func (t *Tree[T]) String() string {
	s := ""

	for _, l := range t.Leafs {
		s += fmt.Sprint(l)
		s += "\n"
	}

	return s
}

// MarshalText implements the TextMarshaler interface and produces a panic
// if anyone tries to marshal the Merkle tree. I don't want this to happen.
// Marshal the values the tree was built from instead.
func (t *Tree[T]) MarshalText() (text []byte, err error) {
	panic("do not marshal the merkle tree, marshal its values")
}

// =============================================================================

// Node represents a node, root, or leaf in the tree. It stores pointers to its
// immediate relationships, a hash, the data if it is a leaf, and other metadata.
type Node[T Hashable[T]] struct {
	Tree   *Tree[T]
	Parent *Node[T]
	Left   *Node[T]
	Right  *Node[T]
	Hash   []byte
	Value  T
	leaf   bool
	dup    bool
}

// verify walks down the tree until hitting a leaf, calculating the hash at
// each level and returning the resulting hash of the node.
func (n *Node[T]) verify() ([]byte, error) {
	if n.leaf {
		return n.Value.Hash()
	}

	leftBytes, err := n.Left.verify()
	if err != nil {
		return nil, err
	}

	rightBytes, err := n.Right.verify()
	if err != nil {
		return nil, err
	}

	return combine(n.Tree.hashStrategy, leftBytes, rightBytes), nil
}

// CalculateHash is a helper function that calculates the hash of the node.
func (n *Node[T]) CalculateHash() ([]byte, error) {
	if n.leaf {
		return n.Value.Hash()
	}

	return combine(n.Tree.hashStrategy, n.Left.Hash, n.Right.Hash), nil
}

// String returns a string representation of the node.
func (n *Node[T]) String() string {
	return fmt.Sprintf("%t %t %s %v", n.leaf, n.dup, n.Hash, n.Value)
}

// =============================================================================

// buildIntermediate is a helper function that for a given list of nodes,
// constructs the next level of the tree. When a level has an odd number of
// nodes the last node is paired with itself. Returns the resulting root node
// of the tree.
func buildIntermediate[T Hashable[T]](nl []*Node[T], t *Tree[T]) *Node[T] {
	nodes := make([]*Node[T], 0, (len(nl)+1)/2)

	for i := 0; i < len(nl); i += 2 {
		left, right := nl[i], nl[i]
		dup := true
		if i+1 < len(nl) {
			right = nl[i+1]
			dup = false
		}

		n := Node[T]{
			Left:  left,
			Right: right,
			Hash:  combine(t.hashStrategy, left.Hash, right.Hash),
			Tree:  t,
			dup:   dup,
		}

		nodes = append(nodes, &n)
		left.Parent = &n
		right.Parent = &n
	}

	if len(nodes) == 1 {
		return nodes[0]
	}

	return buildIntermediate(nodes, t)
}

// combine hashes the concatenation of two hex hashes and returns the hex
// text of the result.
func combine(hashStrategy func() hash.Hash, left []byte, right []byte) []byte {
	data := make([]byte, 0, len(left)+len(right))
	data = append(data, left...)
	data = append(data, right...)

	return sum(hashStrategy, data)
}

// sum returns the hex text of the hash of the data.
func sum(hashStrategy func() hash.Hash, data []byte) []byte {
	h := hashStrategy()
	h.Write(data)

	return []byte(common.Bytes2Hex(h.Sum(nil)))
}
