package codec

import (
	"fmt"

	"github.com/GoDerive/derivegate/internal/config"
	"github.com/GoDerive/derivegate/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
)

// ProtocolTable is the parsed, validated form of the exchange's
// published protocol constants. The exchange versions this table
// externally; encoding with stale constants would sign payloads that
// do not mean what the caller intended, so validation fails fast.
type ProtocolTable struct {
	SchemaVersion   string
	DomainSeparator common.Hash
	ActionTypehash  common.Hash
	TradeModule     common.Address
}

// knownActionTypehashes pins the action typehash per schema version.
// The typehash is a hash of the EIP-712 type struct and so is
// network-independent; a mismatch means the configured table drifted
// from the published schema.
var knownActionTypehashes = map[string]common.Hash{
	"v2": common.HexToHash("0x4d7a9f27c403ff9c0f19bce61d76d82f9aa29f8d6d4b0c5474607d9770d1af17"),
}

// NewProtocolTable parses and validates the configured constants.
func NewProtocolTable(cfg config.ProtocolConfig) (*ProtocolTable, error) {
	if err := checkHexLen(cfg.DomainSeparator, 66, "domain separator"); err != nil {
		return nil, err
	}
	if err := checkHexLen(cfg.ActionTypehash, 66, "action typehash"); err != nil {
		return nil, err
	}
	if err := checkHexLen(cfg.TradeModuleAddress, 42, "trade module address"); err != nil {
		return nil, err
	}

	known, ok := knownActionTypehashes[cfg.SchemaVersion]
	if !ok {
		return nil, apperrors.NewProtocolMismatch(
			fmt.Sprintf("unsupported protocol schema version %q", cfg.SchemaVersion))
	}

	t := &ProtocolTable{
		SchemaVersion:   cfg.SchemaVersion,
		DomainSeparator: common.HexToHash(cfg.DomainSeparator),
		ActionTypehash:  common.HexToHash(cfg.ActionTypehash),
		TradeModule:     common.HexToAddress(cfg.TradeModuleAddress),
	}

	if t.ActionTypehash != known {
		return nil, apperrors.NewProtocolMismatch(
			fmt.Sprintf("action typehash does not match schema %s", cfg.SchemaVersion))
	}
	if t.DomainSeparator == (common.Hash{}) {
		return nil, apperrors.NewProtocolMismatch("domain separator is zero")
	}
	if t.TradeModule == (common.Address{}) {
		return nil, apperrors.NewProtocolMismatch("trade module address is zero")
	}

	return t, nil
}

func checkHexLen(s string, want int, field string) error {
	if len(s) != want || s[:2] != "0x" {
		return apperrors.NewProtocolMismatch(
			fmt.Sprintf("%s must be %d chars (0x-prefixed hex), got %d", field, want, len(s)))
	}
	for _, r := range s[2:] {
		if !isHexDigit(r) {
			return apperrors.NewProtocolMismatch(fmt.Sprintf("%s contains non-hex characters", field))
		}
	}
	return nil
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
