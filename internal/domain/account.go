package domain

import "github.com/ethereum/go-ethereum/common"

// NormalizeAddress validates an Ethereum-style account address and returns
// its EIP-55 checksummed form. Traders and the admin are identified by such
// addresses everywhere in the system, so all inputs pass through here before
// reaching the engine.
func NormalizeAddress(s string) (string, error) {
	if !common.IsHexAddress(s) {
		return "", ErrInvalidAddress
	}
	return common.HexToAddress(s).Hex(), nil
}
