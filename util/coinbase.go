package util

import (
	"bytes"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
)

// SerializeHeight returns the script that pushes height as a minimally encoded
// script number: the prefix a BIP34 coinbase unlocking script must start with.
func SerializeHeight(height uint32) []byte {
	if height == 0 {
		return []byte{bscript.Op0}
	}

	if height <= 16 {
		return []byte{bscript.Op1 + byte(height-1)}
	}

	var num []byte

	for h := height; h > 0; h >>= 8 {
		num = append(num, byte(h))
	}

	// a set high bit would make the number negative
	if num[len(num)-1]&0x80 != 0 {
		num = append(num, 0x00)
	}

	return append([]byte{byte(len(num))}, num...)
}

// ExtractCoinbaseHeight reads the height pushed at the start of a coinbase
// unlocking script.
func ExtractCoinbaseHeight(unlockingScript []byte) (uint32, error) {
	if len(unlockingScript) < 1 {
		return 0, errors.New(errors.ERR_COINBASE_MISSING_BLOCK_HEIGHT, "the coinbase signature script must start with the serialized block height")
	}

	op := unlockingScript[0]

	switch {
	case op == bscript.Op0:
		return 0, nil
	case op >= bscript.Op1 && op <= bscript.Op16:
		return uint32(op-bscript.Op1) + 1, nil
	case op > 4:
		return 0, errors.New(errors.ERR_COINBASE_MISSING_BLOCK_HEIGHT, "serialized block height too large")
	}

	serializedLen := int(op)
	if len(unlockingScript[1:]) < serializedLen {
		return 0, errors.New(errors.ERR_COINBASE_MISSING_BLOCK_HEIGHT, "the coinbase signature script is shorter than its height push")
	}

	var height uint32
	for i := serializedLen - 1; i >= 0; i-- {
		height = height<<8 | uint32(unlockingScript[1+i])
	}

	return height, nil
}

// CheckCoinbaseHeight reports whether the coinbase unlocking script commits
// to height the way BIP34 requires.
func CheckCoinbaseHeight(unlockingScript []byte, height uint32) bool {
	return bytes.HasPrefix(unlockingScript, SerializeHeight(height))
}
