package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed ids.
// The version suffix leaves room for algorithm migration.
const (
	DomainRequest = "rehook/request/v1"
	DomainForm    = "rehook/form/v1"
	DomainEffect  = "rehook/effect/v1"
	DomainState   = "rehook/state/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
// The null separator removes any domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// mustCanonical encodes objects built only from strings and ints, which
// cannot fail.
func mustCanonical(obj Object) []byte {
	b, err := MarshalCanonical(obj)
	if err != nil {
		panic(fmt.Sprintf("ir: canonical encoding of id fields failed: %v", err))
	}
	return b
}

// DependencyKey serializes a dependency value for comparison and storage.
func DependencyKey(deps Value) (string, error) {
	if deps == nil {
		deps = Null{}
	}
	s, err := CanonicalString(deps)
	if err != nil {
		return "", fmt.Errorf("dependency key: %w", err)
	}
	return s, nil
}

// RequestID derives the correlation id of an asynchronous load from the
// owning hook and the dependency key the load was started for. A completion
// can be matched to its request without any in-memory reference surviving
// between invocations.
func RequestID(hook HookID, depKey string) string {
	return hashWithDomain(DomainRequest, mustCanonical(Object{
		"hook":    String(hook),
		"dep_key": String(depKey),
	}))
}

// FormID derives the identifier of the generation-th showing of a form.
func FormID(hook HookID, generation int64) string {
	return hashWithDomain(DomainForm, mustCanonical(Object{
		"hook":       String(hook),
		"generation": Int(generation),
	}))
}

// EffectID derives the id of the index-th effect of cycle seq. Replaying a
// cycle yields the same ids, so hosts can drop re-delivered effects.
func EffectID(seq int64, index int, kind EffectKind, target HookID) string {
	return hashWithDomain(DomainEffect, mustCanonical(Object{
		"seq":    Int(seq),
		"index":  Int(int64(index)),
		"kind":   String(kind),
		"target": String(target),
	}))
}

// StateDigest hashes a whole snapshot. The cycle log records the digest of
// the state each cycle started from so replay can detect divergence.
func StateDigest(s Snapshot) (string, error) {
	obj, err := s.toObject()
	if err != nil {
		return "", err
	}
	b, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("state digest: %w", err)
	}
	return hashWithDomain(DomainState, b), nil
}
