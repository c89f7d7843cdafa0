// Package support holds the static (capability, chain) coverage table and the
// wire helpers shared by the upstream provider implementations.
package support

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"wallet_aggregator/internal/domain/entity"
)

// Table is a provider's static support set. It never changes after construction.
type Table struct {
	identity     string
	chains       map[entity.Chain]entity.NetworkDefinition
	capabilities map[entity.Capability]struct{}
}

// NewTable keeps the definitions accepted by include and marks them as supported
// for every listed capability.
func NewTable(identity string, defs []entity.NetworkDefinition, include func(entity.NetworkDefinition) bool, capabilities ...entity.Capability) Table {
	t := Table{
		identity:     identity,
		chains:       make(map[entity.Chain]entity.NetworkDefinition),
		capabilities: make(map[entity.Capability]struct{}, len(capabilities)),
	}
	for _, def := range defs {
		if include == nil || include(def) {
			t.chains[def.Identifier] = def
		}
	}
	for _, c := range capabilities {
		t.capabilities[c] = struct{}{}
	}
	return t
}

// Supports reports whether (capability, chain) is covered.
func (t Table) Supports(capability entity.Capability, chain entity.Chain) bool {
	if _, ok := t.capabilities[capability]; !ok {
		return false
	}
	_, ok := t.chains[chain]
	return ok
}

// Definition returns the chain's definition or an unsupported-chain error.
func (t Table) Definition(capability entity.Capability, chain entity.Chain) (entity.NetworkDefinition, error) {
	if !t.Supports(capability, chain) {
		return entity.NetworkDefinition{}, entity.NewUnsupportedChainError(t.identity, capability, chain)
	}
	return t.chains[chain], nil
}

// Lookup returns the definition of chain regardless of capability.
func (t Table) Lookup(chain entity.Chain) (entity.NetworkDefinition, bool) {
	def, ok := t.chains[chain]
	return def, ok
}

// Chains lists the covered chains in lexical order.
func (t Table) Chains() []entity.Chain {
	out := make([]entity.Chain, 0, len(t.chains))
	for c := range t.chains {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Tag fills in the capability and chain of a *entity.ProviderError found in err.
func Tag(err error, capability entity.Capability, chain entity.Chain) error {
	var pe *entity.ProviderError
	if errors.As(err, &pe) {
		pe.Capability = capability
		if pe.Chain == "" {
			pe.Chain = chain
		}
	}
	return err
}

// FlexInt decodes a JSON number, a numeric string, a 0x hex string or null.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if strings.HasPrefix(s, "0x") {
		v, err := strconv.ParseInt(s[2:], 16, 64)
		if err != nil {
			return err
		}
		*f = FlexInt(v)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = FlexInt(v)
	return nil
}

// FlexFloat decodes a JSON number, a numeric string or null. Null stays nil.
type FlexFloat struct {
	Value *float64
}

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		f.Value = nil
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	f.Value = &v
	return nil
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 { return &v }
