package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test_NewCustomError tests the creation of custom errors.
func Test_NewCustomError(t *testing.T) {
	err := New(ERR_NOT_FOUND, "resource not found")
	require.NotNil(t, err)
	require.Equal(t, ERR_NOT_FOUND, err.Code())
	require.Equal(t, "resource not found", err.Message())

	secondErr := New(ERR_INVALID_ARGUMENT, "[CheckBlockContextual][%s] failed to resolve input", "_test_string_", err)
	thirdErr := New(ERR_TX_INVALID_DOUBLE_SPEND, "[CheckBlockContextual][%s] double spend", "_test_string_", secondErr)
	anotherErr := New(ERR_TX_INVALID_DOUBLE_SPEND, "Another ERR, block is invalid")
	fourthErr := New(ERR_SERVICE_ERROR, "older error: ", thirdErr)
	fifthErr := New(ERR_BLOCK_INVALID, "invalid tx double spend error", fourthErr)

	require.True(t, anotherErr.Is(thirdErr))
	require.True(t, fourthErr.Is(New(ERR_TX_INVALID_DOUBLE_SPEND, "")))
	require.True(t, fourthErr.Is(ErrTxInvalidDoubleSpend))

	require.True(t, fourthErr.Is(err))
	require.True(t, fifthErr.Is(thirdErr))
	require.True(t, fifthErr.Is(err))

	require.False(t, anotherErr.Is(fourthErr))
	require.False(t, fifthErr.Is(ErrBlockNotFound))
}

func Test_FmtErrorCustomError(t *testing.T) {
	err := New(ERR_NOT_FOUND, "resource not found")

	fmtError := fmt.Errorf("error: %w", err)
	require.NotNil(t, fmtError)

	secondErr := New(ERR_INVALID_ARGUMENT, "[ApplyBlock][%s] failed", "_test_string_", fmtError)

	// the fmt error hides the code from the custom Is
	require.False(t, secondErr.Is(err))

	// but the standard library still finds it
	require.True(t, errors.Is(fmtError, ErrNotFound))
}

func Test_ErrorIs(t *testing.T) {
	codes := []ERR{
		ERR_NOT_FOUND,
		ERR_BLOCK_INVALID,
		ERR_TX_INVALID_DOUBLE_SPEND,
		ERR_THRESHOLD_EXCEEDED,
		ERR_BLOCK_NOT_FOUND,
		ERR_UNKNOWN,
		ERR_INVALID_ARGUMENT,
		ERR_STORE_CORRUPT,
	}

	for _, code := range codes {
		t.Run(code.String(), func(t *testing.T) {
			err := New(code, "some message")
			require.True(t, errors.Is(err, New(code, "")))
		})
	}
}

func Test_ErrorWrapWithAdditionalContext(t *testing.T) {
	originalErr := New(ERR_TX_INVALID_DOUBLE_SPEND, "original error")
	wrappedErr := New(ERR_BLOCK_INVALID, "Some more additional context", originalErr)

	require.True(t, errors.Is(wrappedErr, originalErr))
	require.True(t, strings.Contains(wrappedErr.Error(), "Some more additional context"))
}

func Test_ErrorEquality(t *testing.T) {
	err1 := New(ERR_NOT_FOUND, "resource not found")
	err2 := New(ERR_NOT_FOUND, "resource not found")
	require.True(t, err1.Is(err2))

	// same error codes
	err2 = New(ERR_NOT_FOUND, "invalid argument")
	require.True(t, err1.Is(err2))

	// different error codes
	err2 = New(ERR_INVALID_ARGUMENT, "resource not found")
	require.False(t, err1.Is(err2))
}

func Test_InvalidCode(t *testing.T) {
	err := New(ERR(9999), "whatever")
	assert.Equal(t, "invalid error code", err.Message())
	assert.Equal(t, "ERR_9999", err.Code().String())
}

func Test_JoinWithMultipleErrs(t *testing.T) {
	err1 := New(ERR_NOT_FOUND, "not found")
	err2 := New(ERR_BLOCK_NOT_FOUND, "block not found")

	joinedErr := Join(err1, nil, err2)
	require.NotNil(t, joinedErr)
	require.Equal(t, "NOT_FOUND (3): not found, BLOCK_NOT_FOUND (10): block not found", joinedErr.Error())

	require.Nil(t, Join(nil, nil))
}

func TestErrorString(t *testing.T) {
	err := errors.New("some error")

	thisErr := NewStorageError("failed to write batch [%s:%s]", "chainstate", "key", err)

	assert.Equal(t, "STORAGE_ERROR (62): failed to write batch [chainstate:key]: some error", thisErr.Error())
}

func TestErrorData(t *testing.T) {
	err := New(ERR_TX_INVALID, "bad tx").WithData(DataKeyTxID, "abcd").WithData(DataKeyTxIndex, 2)

	assert.Equal(t, "abcd", err.GetData(DataKeyTxID))
	assert.Equal(t, "TX_INVALID (31): bad tx [txIndex=2 txid=abcd]", err.Error())

	wrapped := NewBlockInvalidError("block rejected", err)
	assert.Equal(t, 2, DataOf(wrapped, DataKeyTxIndex))
	assert.Nil(t, DataOf(wrapped, DataKeyOutpoint))

	decoded, decodeErr := GetErrorData(err.Data().EncodeErrorData())
	require.NoError(t, decodeErr)
	assert.Equal(t, "abcd", decoded.GetData("txid"))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain error", errors.New("x"), KindUnknown},
		{"structural", NewBlockTooLargeError("too big"), KindStructural},
		{"consensus", NewTxInvalidError("bad"), KindConsensus},
		{"policy", NewTxInsufficientFeeError("cheap"), KindPolicy},
		{"resource", NewMempoolFullError("full"), KindResource},
		{"store", NewStoreCorruptError("corrupt"), KindStore},
		{"missing", NewTxMissingInputsError("orphan"), KindMissing},
		{"duplicate", NewTxAlreadyExistsError("dup"), KindDuplicate},
		{"wrapped generic keeps inner kind", NewProcessingError("outer", NewTxInvalidError("inner")), KindConsensus},
		{"fmt wrapped", fmt.Errorf("ctx: %w", NewBlockTooLargeError("too big")), KindStructural},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
		})
	}
}

func TestReasonOf(t *testing.T) {
	assert.Equal(t, "bad-txnmrklroot", ReasonOf(NewBlockMutatedError("merkle")))
	assert.Equal(t, "bad-blk-length", ReasonOf(NewProcessingError("wrap", NewBlockTooLargeError("size"))))
	assert.Equal(t, "txn-already-in-mempool", ReasonOf(ErrTxAlreadyExists))
	assert.Equal(t, "", ReasonOf(errors.New("plain")))
	assert.Equal(t, "error", ReasonOf(NewProcessingError("no kind")))
}
