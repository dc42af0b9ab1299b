package wallet

import (
	"encoding/hex"
	"strings"

	"github.com/unclekaldoteth/stacks-daily-raffle/internal/clarity"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
)

// Strategy extracts an address from wallet storage
type Strategy func(storage map[string]any, mainnet bool) (string, bool)

// DefaultStrategies are tried in order; the first match wins
var DefaultStrategies = []Strategy{
	FromSTXAddresses,
	FromAddressList,
	FromProfile,
	FromPublicKey,
}

// ExtractAddress runs strategies in order and returns the first valid
// Stacks address
func ExtractAddress(storage map[string]any, mainnet bool, strategies []Strategy) (string, bool) {
	if storage == nil {
		return "", false
	}
	for _, strategy := range strategies {
		if addr, ok := strategy(storage, mainnet); ok {
			if _, _, err := clarity.C32AddressDecode(addr); err == nil {
				return addr, true
			}
		}
	}
	return "", false
}

// FromSTXAddresses reads addresses.stx[0].address
func FromSTXAddresses(storage map[string]any, _ bool) (string, bool) {
	addresses, _ := storage["addresses"].(map[string]any)
	stx, _ := addresses["stx"].([]any)
	if len(stx) == 0 {
		return "", false
	}
	first, _ := stx[0].(map[string]any)
	return stringField(first, "address")
}

// FromAddressList reads the first addresses[] entry whose symbol is STX
func FromAddressList(storage map[string]any, _ bool) (string, bool) {
	list, _ := storage["addresses"].([]any)
	for _, item := range list {
		entry, _ := item.(map[string]any)
		if symbol, _ := stringField(entry, "symbol"); strings.EqualFold(symbol, "STX") {
			if addr, ok := stringField(entry, "address"); ok {
				return addr, true
			}
		}
	}
	return "", false
}

// FromProfile reads profile.stxAddress.mainnet or .testnet
func FromProfile(storage map[string]any, mainnet bool) (string, bool) {
	profile, _ := storage["profile"].(map[string]any)
	stxAddress, _ := profile["stxAddress"].(map[string]any)
	if mainnet {
		return stringField(stxAddress, "mainnet")
	}
	return stringField(stxAddress, "testnet")
}

// FromPublicKey derives the single-sig address from a hex public key
func FromPublicKey(storage map[string]any, mainnet bool) (string, bool) {
	keyHex, ok := stringField(storage, "publicKey")
	if !ok {
		return "", false
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return "", false
	}
	key, err := btcec.ParsePubKey(raw)
	if err != nil {
		return "", false
	}

	var hash [20]byte
	copy(hash[:], btcutil.Hash160(key.SerializeCompressed()))
	version := clarity.VersionTestnetSingleSig
	if mainnet {
		version = clarity.VersionMainnetSingleSig
	}
	return clarity.C32Address(version, hash), true
}

func stringField(m map[string]any, key string) (string, bool) {
	s, ok := m[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
