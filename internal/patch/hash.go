package patch

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// DomainPatch separates patch hashes from any other hash over the same
// bytes. The version suffix allows the encoding to change later.
const DomainPatch = "patchbay/patch/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash returns the content hash of a Document. The name is part of the
// hash; node and connection order is not, since both are sorted by id
// before hashing.
func Hash(doc *Document) (string, error) {
	canonical, err := MarshalCanonical(sorted(doc))
	if err != nil {
		return "", fmt.Errorf("patch hash: %w", err)
	}
	return hashWithDomain(DomainPatch, canonical), nil
}

// MustHash is like Hash but panics on error.
// Use only in tests or when the document is known to be valid.
func MustHash(doc *Document) string {
	h, err := Hash(doc)
	if err != nil {
		panic(err)
	}
	return h
}

// sorted returns a copy of doc with nodes and connections in id order.
func sorted(doc *Document) *Document {
	cp := *doc
	cp.Nodes = append([]NodeSpec(nil), doc.Nodes...)
	cp.Connections = append([]ConnectionSpec(nil), doc.Connections...)
	slices.SortFunc(cp.Nodes, func(a, b NodeSpec) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(cp.Connections, func(a, b ConnectionSpec) int { return cmp.Compare(a.ID, b.ID) })
	if cp.Nodes == nil {
		cp.Nodes = []NodeSpec{}
	}
	if cp.Connections == nil {
		cp.Connections = []ConnectionSpec{}
	}
	return &cp
}
