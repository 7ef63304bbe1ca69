package chain

import (
	"encoding/base64"
	"fmt"
	"math/big"
)

// Stack item parsers. ByteString and Buffer values arrive base64 encoded.

func ParseByteArray(item StackItem) ([]byte, error) {
	switch item.Type {
	case "ByteString", "Buffer":
		return base64.StdEncoding.DecodeString(item.Value)
	case "Null":
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected type: %s", item.Type)
	}
}

func ParseString(item StackItem) (string, error) {
	b, err := ParseByteArray(item)
	if err != nil {
		return "", fmt.Errorf("string: %w", err)
	}
	return string(b), nil
}

// ParseInteger accepts Integer items and the little-endian two's complement
// ByteString encoding some contracts return.
func ParseInteger(item StackItem) (*big.Int, error) {
	switch item.Type {
	case "Integer":
		n, ok := new(big.Int).SetString(item.Value, 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", item.Value)
		}
		return n, nil
	case "ByteString", "Buffer":
		b, err := ParseByteArray(item)
		if err != nil {
			return nil, err
		}
		return bytesToInt(b), nil
	default:
		return nil, fmt.Errorf("unexpected type: %s", item.Type)
	}
}

// ParseUint64 is ParseInteger restricted to the ledger's amount range.
func ParseUint64(item StackItem) (uint64, error) {
	n, err := ParseInteger(item)
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 || !n.IsUint64() {
		return 0, fmt.Errorf("integer %s out of uint64 range", n)
	}
	return n.Uint64(), nil
}

func ParseBoolean(item StackItem) (bool, error) {
	switch item.Type {
	case "Boolean":
		return item.Value == "true", nil
	case "Integer":
		return item.Value != "0", nil
	default:
		return false, fmt.Errorf("unexpected type: %s", item.Type)
	}
}

func bytesToInt(le []byte) *big.Int {
	if len(le) == 0 {
		return new(big.Int)
	}
	be := make([]byte, len(le))
	for i, b := range le {
		be[len(le)-1-i] = b
	}
	n := new(big.Int).SetBytes(be)
	if le[len(le)-1]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(le)*8)))
	}
	return n
}
