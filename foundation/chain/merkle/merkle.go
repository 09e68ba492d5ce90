// Package merkle provides a merkle tree implementation for computing and
// verifying the transaction root recorded in a block fingerprint.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
)

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree.
type Hashable[T any] interface {
	Hash() ([]byte, error)
	Equals(other T) bool
}

// Tree represents a merkle tree over a set of leaf values.
type Tree[T Hashable[T]] struct {
	root         []byte
	leaves       [][]byte
	values       []T
	hashStrategy func() hash.Hash
}

// WithHashStrategy allows the tree to use a different hash function than
// the default sha256.
func WithHashStrategy[T Hashable[T]](hashStrategy func() hash.Hash) func(t *Tree[T]) {
	return func(t *Tree[T]) {
		t.hashStrategy = hashStrategy
	}
}

// NewTree constructs a merkle tree for the specified set of values.
func NewTree[T Hashable[T]](values []T, options ...func(t *Tree[T])) (*Tree[T], error) {
	t := Tree[T]{
		hashStrategy: sha256.New,
	}

	for _, option := range options {
		option(&t)
	}

	if err := t.Generate(values); err != nil {
		return nil, err
	}

	return &t, nil
}

// Generate replaces the tree's content with the specified set of values.
func (t *Tree[T]) Generate(values []T) error {
	if len(values) == 0 {
		return errors.New("cannot construct tree with no values")
	}

	leaves := make([][]byte, len(values))
	for i, value := range values {
		hash, err := value.Hash()
		if err != nil {
			return err
		}
		leaves[i] = hash
	}

	t.values = values
	t.leaves = leaves
	t.root = t.reduce(leaves)

	return nil
}

// Verify recomputes the root from the leaves and validates it matches the
// root captured when the tree was generated.
func (t *Tree[T]) Verify() error {
	if !bytes.Equal(t.root, t.reduce(t.leaves)) {
		return errors.New("root hash is not valid")
	}

	return nil
}

// Values returns a copy of the values that make up the tree.
func (t *Tree[T]) Values() []T {
	values := make([]T, len(t.values))
	copy(values, t.values)

	return values
}

// RootHex returns the root hash of the tree in hex encoded form.
func (t *Tree[T]) RootHex() string {
	return hex.EncodeToString(t.root)
}

// =============================================================================

// reduce hashes pairs of nodes level by level until a single root remains.
// An odd node at the end of a level is paired with itself.
func (t *Tree[T]) reduce(level [][]byte) []byte {
	if len(level) == 1 {
		return level[0]
	}

	var next [][]byte
	for i := 0; i < len(level); i += 2 {
		left := level[i]
		right := left
		if i+1 < len(level) {
			right = level[i+1]
		}

		h := t.hashStrategy()
		h.Write(left)
		h.Write(right)
		next = append(next, h.Sum(nil))
	}

	return t.reduce(next)
}
