package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// CohortHash fingerprints a cohort for determinism audits
type CohortHash Hash

// NewCohortHash creates a cohort hash from data
func NewCohortHash(data []byte) CohortHash { return CohortHash(NewHash(data)) }

func (h CohortHash) String() string { return Hash(h).String() }

// ComputeCohortHash fingerprints subjects in their ingestion order.
// The encoding is canonical: same subjects in the same order always produce
// the same hash, so repeated runs can be checked for bit-identical inputs.
func ComputeCohortHash(rows []string) CohortHash {
	var data strings.Builder
	for _, row := range rows {
		data.WriteString(row)
		data.WriteString("\n")
	}
	return NewCohortHash([]byte(data.String()))
}

// CanonicalSubjectRow encodes one subject for hashing
func CanonicalSubjectRow(id SubjectID, treated bool, covariates []float64, outcome float64) string {
	var b strings.Builder
	b.WriteString(id.String())
	b.WriteString("|")
	if treated {
		b.WriteString("1")
	} else {
		b.WriteString("0")
	}
	for _, v := range covariates {
		b.WriteString(fmt.Sprintf("|%x", v))
	}
	b.WriteString(fmt.Sprintf("|%x", outcome))
	return b.String()
}
