package service

import (
	"fmt"
	"sort"
	"strings"

	"wallet_aggregator/internal/domain/entity"
)

// Fingerprint builds the cache key of a request. Option keys are sorted so logically
// identical requests produce the same key regardless of map order; nil options are skipped.
func Fingerprint(capability entity.Capability, chain entity.Chain, address string, params map[string]any) string {
	var sb strings.Builder
	sb.WriteString(capability.String())
	sb.WriteByte('|')
	sb.WriteString(string(entity.NormalizeChain(string(chain))))
	sb.WriteByte('|')
	sb.WriteString(strings.ToLower(address))

	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == nil {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i == 0 {
			sb.WriteByte('|')
		} else {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(fmt.Sprint(params[k]))
	}
	return sb.String()
}

func priceFingerprint(chain entity.Chain, address string) string {
	return Fingerprint(entity.CapabilityPrices, chain, address, nil)
}
