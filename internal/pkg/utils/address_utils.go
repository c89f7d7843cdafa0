package utils

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// IsAddress accepts 0x-prefixed 40-hex EVM addresses only. common.IsHexAddress alone
// also accepts the bare 40-hex form.
func IsAddress(s string) bool {
	return strings.HasPrefix(strings.ToLower(s), "0x") && common.IsHexAddress(s)
}
