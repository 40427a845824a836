package models

import (
	"fmt"
	"strings"
)

type PrincipalKind string

const (
	PrincipalEmployee PrincipalKind = "employee"
	PrincipalClient   PrincipalKind = "client"
)

func (k PrincipalKind) Valid() bool {
	return k == PrincipalEmployee || k == PrincipalClient
}

// Principal is an authenticated actor. Employees and clients live in
// separate id spaces, so identity is always the (kind, id) pair.
type Principal struct {
	ID   string        `json:"id" validate:"required"`
	Kind PrincipalKind `json:"kind" validate:"required,oneof=employee client"`
}

func Employee(id string) Principal {
	return Principal{ID: id, Kind: PrincipalEmployee}
}

func Client(id string) Principal {
	return Principal{ID: id, Kind: PrincipalClient}
}

func (p Principal) Valid() bool {
	return p.ID != "" && p.Kind.Valid()
}

// Key renders the registry key "kind:id".
func (p Principal) Key() string {
	return string(p.Kind) + ":" + p.ID
}

func (p Principal) String() string {
	return p.Key()
}

// ParsePrincipalKey is the inverse of Key.
func ParsePrincipalKey(key string) (Principal, error) {
	kind, id, ok := strings.Cut(key, ":")
	p := Principal{ID: id, Kind: PrincipalKind(kind)}
	if !ok || !p.Valid() {
		return Principal{}, fmt.Errorf("invalid principal key %q", key)
	}
	return p, nil
}

// DirectKey is the canonical key of the unordered pair {a, b}.
func DirectKey(a, b Principal) string {
	ka, kb := a.Key(), b.Key()
	if kb < ka {
		ka, kb = kb, ka
	}
	return ka + "|" + kb
}
