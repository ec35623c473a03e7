// Package merkle computes RFC 6962 style tree hashes over audit-event
// checksums. The trail root lets a verifier commit to an entire custody
// trail with a single hash and prove membership of individual events.
package merkle

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

const HashSize = 32

var (
	ErrEmptyTree      = errors.New("empty merkle tree")
	ErrInvalidHashLen = errors.New("invalid hash length")
	ErrInvalidIndex   = errors.New("invalid leaf index")
)

// LeafHash domain-separates leaves from interior nodes.
func LeafHash(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write([]byte{0x00})
	hasher.Write(data)
	return hasher.Sum(nil)
}

func NodeHash(left, right []byte) []byte {
	hasher := sha256.New()
	hasher.Write([]byte{0x01})
	hasher.Write(left)
	hasher.Write(right)
	return hasher.Sum(nil)
}

// Root computes the tree hash over the given leaf hashes.
func Root(leaves [][]byte) ([]byte, error) {
	level, err := cloneAndValidateLeaves(leaves)
	if err != nil {
		return nil, err
	}
	return treeHash(level)
}

// InclusionProof returns the sibling path proving that the leaf at
// leafIndex is part of the tree.
func InclusionProof(leaves [][]byte, leafIndex int) ([][]byte, error) {
	level, err := cloneAndValidateLeaves(leaves)
	if err != nil {
		return nil, err
	}
	if leafIndex < 0 || leafIndex >= len(level) {
		return nil, ErrInvalidIndex
	}
	path := make([][]byte, 0)
	if err := inclusionPath(level, leafIndex, &path); err != nil {
		return nil, err
	}
	return path, nil
}

func treeHash(leaves [][]byte) ([]byte, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	if len(leaves) == 1 {
		return cloneHash(leaves[0]), nil
	}
	k := largestPowerOfTwoLessThan(len(leaves))
	left, err := treeHash(leaves[:k])
	if err != nil {
		return nil, err
	}
	right, err := treeHash(leaves[k:])
	if err != nil {
		return nil, err
	}
	return NodeHash(left, right), nil
}

func inclusionPath(leaves [][]byte, leafIndex int, path *[][]byte) error {
	if len(leaves) == 1 {
		return nil
	}
	k := largestPowerOfTwoLessThan(len(leaves))
	if leafIndex < k {
		if err := inclusionPath(leaves[:k], leafIndex, path); err != nil {
			return err
		}
		rightRoot, err := treeHash(leaves[k:])
		if err != nil {
			return err
		}
		*path = append(*path, rightRoot)
		return nil
	}
	if err := inclusionPath(leaves[k:], leafIndex-k, path); err != nil {
		return err
	}
	leftRoot, err := treeHash(leaves[:k])
	if err != nil {
		return err
	}
	*path = append(*path, leftRoot)
	return nil
}

func cloneAndValidateLeaves(leaves [][]byte) ([][]byte, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	out := make([][]byte, len(leaves))
	for i, leaf := range leaves {
		if len(leaf) != HashSize {
			return nil, fmt.Errorf("leaf %d: %w", i, ErrInvalidHashLen)
		}
		out[i] = cloneHash(leaf)
	}
	return out, nil
}

func cloneHash(hash []byte) []byte {
	out := make([]byte, len(hash))
	copy(out, hash)
	return out
}

func largestPowerOfTwoLessThan(value int) int {
	power := 1
	for power<<1 < value {
		power <<= 1
	}
	return power
}
