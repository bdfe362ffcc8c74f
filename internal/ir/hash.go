package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes for content-addressed ids. The version suffix leaves room
// for algorithm changes.
const (
	DomainRun  = "ripple/run/v1"
	DomainSpec = "ripple/spec/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RunID computes the content-addressed id of a run record. Two records with
// the same drain, sequence and unit always share an id, which makes journal
// inserts idempotent.
func RunID(drainID string, seq int64, unit Entity) (string, error) {
	obj := Object{
		"drain_id": String(drainID),
		"seq":      Int(seq),
		"unit":     Int(int64(unit)),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("RunID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRun, canonical), nil
}

// SpecHash computes a stable hash over a compiled reactor set.
func SpecHash(specs []ReactorSpec) (string, error) {
	raw, err := json.Marshal(specs)
	if err != nil {
		return "", fmt.Errorf("SpecHash: %w", err)
	}
	v, err := UnmarshalValue(raw)
	if err != nil {
		return "", fmt.Errorf("SpecHash: %w", err)
	}
	canonical, err := MarshalCanonical(dropNulls(v))
	if err != nil {
		return "", fmt.Errorf("SpecHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSpec, canonical), nil
}

// dropNulls removes null object members, which encoding/json emits for nil
// slices, so the value can be canonicalized.
func dropNulls(v Value) Value {
	switch val := v.(type) {
	case Array:
		out := make(Array, 0, len(val))
		for _, elem := range val {
			if isNull(elem) {
				continue
			}
			out = append(out, dropNulls(elem))
		}
		return out
	case Object:
		out := make(Object, len(val))
		for k, elem := range val {
			if isNull(elem) {
				continue
			}
			out[k] = dropNulls(elem)
		}
		return out
	default:
		return v
	}
}

// MustRunID is like RunID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRunID(drainID string, seq int64, unit Entity) string {
	id, err := RunID(drainID, seq, unit)
	if err != nil {
		panic(err)
	}
	return id
}
