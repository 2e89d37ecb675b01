package chainstate

import (
	"fmt"
	"testing"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/assert"
)

func TestVerdictFromError(t *testing.T) {
	hash := chainhash.HashH([]byte("object"))

	tests := []struct {
		name     string
		err      error
		result   ValidationResult
		penalize bool
	}{
		{name: "accepted", err: nil, result: Accepted},
		{name: "structural", err: errors.NewBlockTooLargeError("too big"), result: Invalid, penalize: true},
		{name: "consensus", err: errors.NewScriptVerifyError("bad signature"), result: Invalid, penalize: true},
		{name: "wrapped consensus", err: fmt.Errorf("connect: %w", errors.NewLockTimeError("not final")), result: Invalid, penalize: true},
		{name: "policy", err: errors.NewTxInsufficientFeeError("low fee"), result: Invalid},
		{name: "resource", err: errors.NewMempoolFullError("full"), result: Invalid},
		{name: "missing", err: errors.NewTxMissingInputsError("orphan"), result: Orphan},
		{name: "duplicate", err: errors.NewTxAlreadyExistsError("seen"), result: AlreadyKnown},
		{name: "store", err: errors.NewStorageError("disk"), result: InternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := verdictFromError(hash, tt.err)

			assert.Equal(t, tt.result, v.Result)
			assert.Equal(t, tt.penalize, v.Penalize)
			assert.Equal(t, hash, v.Hash)
		})
	}
}
