package errors

// Kind groups error codes by how a caller must react to them.
type Kind int

const (
	KindUnknown Kind = iota
	// KindStructural is a malformed encoding; fatal to the object, never retried.
	KindStructural
	// KindConsensus is a deterministic rule violation; permanent rejection.
	KindConsensus
	// KindPolicy is consensus-valid but locally unacceptable.
	KindPolicy
	// KindResource is a local capacity limit.
	KindResource
	// KindStore is a chainstate I/O failure or an inconsistency between durable and in-memory state.
	KindStore
	// KindMissing is a missing parent, input or record; the object may become valid later.
	KindMissing
	// KindDuplicate is an object that has already been processed.
	KindDuplicate
)

func (k Kind) String() string {
	switch k {
	case KindStructural:
		return "structural"
	case KindConsensus:
		return "consensus"
	case KindPolicy:
		return "policy"
	case KindResource:
		return "resource"
	case KindStore:
		return "store"
	case KindMissing:
		return "missing"
	case KindDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

func (x ERR) Kind() Kind {
	switch x {
	case ERR_BLOCK_TOO_LARGE, ERR_BLOCK_MALFORMED, ERR_TX_MALFORMED:
		return KindStructural

	case ERR_BLOCK_INVALID, ERR_BLOCK_PARENT_INVALID, ERR_BLOCK_MUTATED, ERR_BLOCK_HIGH_HASH,
		ERR_BLOCK_BAD_DIFFBITS, ERR_BLOCK_TIME_TOO_OLD, ERR_BLOCK_TIME_TOO_NEW, ERR_BLOCK_BAD_COINBASE,
		ERR_BLOCK_BAD_COINBASE_AMOUNT, ERR_BLOCK_BAD_COINBASE_HEIGHT, ERR_BLOCK_DUPLICATE_INVALID,
		ERR_COINBASE_MISSING_BLOCK_HEIGHT, ERR_TX_INVALID, ERR_TX_INVALID_DOUBLE_SPEND,
		ERR_TX_PREMATURE_COINBASE_SPEND, ERR_TX_NON_FINAL, ERR_TX_SCRIPT_VERIFY, ERR_TX_COINBASE,
		ERR_LOCKTIME, ERR_SPENT:
		return KindConsensus

	case ERR_TX_NON_STANDARD, ERR_TX_DUST, ERR_TX_INSUFFICIENT_FEE, ERR_TX_TOO_LONG_MEMPOOL_CHAIN,
		ERR_TX_REPLACEMENT_REJECTED, ERR_TX_MEMPOOL_CONFLICT:
		return KindPolicy

	case ERR_TX_MEMPOOL_FULL, ERR_THRESHOLD_EXCEEDED:
		return KindResource

	case ERR_STORAGE_UNAVAILABLE, ERR_STORAGE_NOT_STARTED, ERR_STORAGE_ERROR, ERR_STORE_CORRUPT, ERR_UTXO_EXISTS:
		return KindStore

	case ERR_NOT_FOUND, ERR_BLOCK_NOT_FOUND, ERR_BLOCK_PARENT_NOT_FOUND, ERR_TX_NOT_FOUND,
		ERR_TX_MISSING_INPUTS, ERR_BLOB_NOT_FOUND, ERR_INSUFFICIENT_DATA:
		return KindMissing

	case ERR_BLOCK_EXISTS, ERR_TX_ALREADY_EXISTS, ERR_TX_ALREADY_CONFIRMED, ERR_TX_RECENTLY_REJECTED, ERR_BLOB_EXISTS:
		return KindDuplicate

	default:
		return KindUnknown
	}
}

// KindOf returns the kind of the outermost *Error in the chain whose code has a
// known kind. Errors that are not *Error are KindUnknown.
func KindOf(err error) Kind {
	for err != nil {
		tErr, ok := err.(*Error)
		if !ok {
			var inner *Error
			if !As(err, &inner) {
				return KindUnknown
			}

			tErr = inner
		}

		if k := tErr.code.Kind(); k != KindUnknown {
			return k
		}

		err = tErr.wrappedErr
	}

	return KindUnknown
}

// ReasonOf returns the reject reason of the first coded error in the chain.
func ReasonOf(err error) string {
	var tErr *Error
	if !As(err, &tErr) {
		return ""
	}

	for tErr != nil {
		if tErr.code.Kind() != KindUnknown {
			return tErr.code.Reason()
		}

		next, ok := tErr.wrappedErr.(*Error)
		if !ok {
			break
		}

		tErr = next
	}

	return ERR_ERROR.Reason()
}
