package errors

import "strconv"

// ERR is the numeric error code carried by every Error.
type ERR int32

const (
	ERR_UNKNOWN            ERR = 0
	ERR_INVALID_ARGUMENT   ERR = 1
	ERR_THRESHOLD_EXCEEDED ERR = 2
	ERR_NOT_FOUND          ERR = 3
	ERR_PROCESSING         ERR = 4
	ERR_CONFIGURATION      ERR = 5
	ERR_CONTEXT            ERR = 6
	ERR_CONTEXT_CANCELED   ERR = 7
	ERR_ERROR              ERR = 9

	// block errors
	ERR_BLOCK_NOT_FOUND               ERR = 10
	ERR_BLOCK_INVALID                 ERR = 11
	ERR_BLOCK_EXISTS                  ERR = 12
	ERR_BLOCK_ERROR                   ERR = 13
	ERR_BLOCK_PARENT_NOT_FOUND        ERR = 14
	ERR_BLOCK_PARENT_INVALID          ERR = 15
	ERR_BLOCK_MUTATED                 ERR = 16
	ERR_BLOCK_TOO_LARGE               ERR = 17
	ERR_BLOCK_MALFORMED               ERR = 18
	ERR_BLOCK_HIGH_HASH               ERR = 19
	ERR_BLOCK_BAD_DIFFBITS            ERR = 20
	ERR_BLOCK_TIME_TOO_OLD            ERR = 21
	ERR_BLOCK_TIME_TOO_NEW            ERR = 22
	ERR_BLOCK_BAD_COINBASE            ERR = 23
	ERR_BLOCK_BAD_COINBASE_AMOUNT     ERR = 24
	ERR_BLOCK_BAD_COINBASE_HEIGHT     ERR = 25
	ERR_BLOCK_DUPLICATE_INVALID       ERR = 26
	ERR_COINBASE_MISSING_BLOCK_HEIGHT ERR = 27

	// transaction errors
	ERR_TX_NOT_FOUND                ERR = 30
	ERR_TX_INVALID                  ERR = 31
	ERR_TX_INVALID_DOUBLE_SPEND     ERR = 32
	ERR_TX_ALREADY_EXISTS           ERR = 33
	ERR_TX_ERROR                    ERR = 34
	ERR_TX_MALFORMED                ERR = 35
	ERR_TX_MISSING_INPUTS           ERR = 36
	ERR_TX_PREMATURE_COINBASE_SPEND ERR = 37
	ERR_TX_NON_FINAL                ERR = 38
	ERR_TX_SCRIPT_VERIFY            ERR = 39
	ERR_TX_NON_STANDARD             ERR = 40
	ERR_TX_DUST                     ERR = 41
	ERR_TX_INSUFFICIENT_FEE         ERR = 42
	ERR_TX_TOO_LONG_MEMPOOL_CHAIN   ERR = 43
	ERR_TX_REPLACEMENT_REJECTED     ERR = 44
	ERR_TX_MEMPOOL_CONFLICT         ERR = 45
	ERR_TX_MEMPOOL_FULL             ERR = 46
	ERR_TX_COINBASE                 ERR = 47
	ERR_TX_RECENTLY_REJECTED        ERR = 48
	ERR_TX_ALREADY_CONFIRMED        ERR = 49
	ERR_LOCKTIME                    ERR = 50

	// storage errors
	ERR_STORAGE_UNAVAILABLE ERR = 60
	ERR_STORAGE_NOT_STARTED ERR = 61
	ERR_STORAGE_ERROR       ERR = 62
	ERR_STORE_CORRUPT       ERR = 63
	ERR_SPENT               ERR = 64
	ERR_UTXO_EXISTS         ERR = 65
	ERR_BLOB_NOT_FOUND      ERR = 66
	ERR_BLOB_EXISTS         ERR = 67

	// service errors
	ERR_SERVICE_UNAVAILABLE ERR = 70
	ERR_SERVICE_NOT_STARTED ERR = 71
	ERR_SERVICE_ERROR       ERR = 72

	// estimator errors
	ERR_INSUFFICIENT_DATA ERR = 80
)

var ERR_name = map[int32]string{
	0:  "UNKNOWN",
	1:  "INVALID_ARGUMENT",
	2:  "THRESHOLD_EXCEEDED",
	3:  "NOT_FOUND",
	4:  "PROCESSING",
	5:  "CONFIGURATION",
	6:  "CONTEXT",
	7:  "CONTEXT_CANCELED",
	9:  "ERROR",
	10: "BLOCK_NOT_FOUND",
	11: "BLOCK_INVALID",
	12: "BLOCK_EXISTS",
	13: "BLOCK_ERROR",
	14: "BLOCK_PARENT_NOT_FOUND",
	15: "BLOCK_PARENT_INVALID",
	16: "BLOCK_MUTATED",
	17: "BLOCK_TOO_LARGE",
	18: "BLOCK_MALFORMED",
	19: "BLOCK_HIGH_HASH",
	20: "BLOCK_BAD_DIFFBITS",
	21: "BLOCK_TIME_TOO_OLD",
	22: "BLOCK_TIME_TOO_NEW",
	23: "BLOCK_BAD_COINBASE",
	24: "BLOCK_BAD_COINBASE_AMOUNT",
	25: "BLOCK_BAD_COINBASE_HEIGHT",
	26: "BLOCK_DUPLICATE_INVALID",
	27: "COINBASE_MISSING_BLOCK_HEIGHT",
	30: "TX_NOT_FOUND",
	31: "TX_INVALID",
	32: "TX_INVALID_DOUBLE_SPEND",
	33: "TX_ALREADY_EXISTS",
	34: "TX_ERROR",
	35: "TX_MALFORMED",
	36: "TX_MISSING_INPUTS",
	37: "TX_PREMATURE_COINBASE_SPEND",
	38: "TX_NON_FINAL",
	39: "TX_SCRIPT_VERIFY",
	40: "TX_NON_STANDARD",
	41: "TX_DUST",
	42: "TX_INSUFFICIENT_FEE",
	43: "TX_TOO_LONG_MEMPOOL_CHAIN",
	44: "TX_REPLACEMENT_REJECTED",
	45: "TX_MEMPOOL_CONFLICT",
	46: "TX_MEMPOOL_FULL",
	47: "TX_COINBASE",
	48: "TX_RECENTLY_REJECTED",
	49: "TX_ALREADY_CONFIRMED",
	50: "LOCKTIME",
	60: "STORAGE_UNAVAILABLE",
	61: "STORAGE_NOT_STARTED",
	62: "STORAGE_ERROR",
	63: "STORE_CORRUPT",
	64: "SPENT",
	65: "UTXO_EXISTS",
	66: "BLOB_NOT_FOUND",
	67: "BLOB_EXISTS",
	70: "SERVICE_UNAVAILABLE",
	71: "SERVICE_NOT_STARTED",
	72: "SERVICE_ERROR",
	80: "INSUFFICIENT_DATA",
}

// reasonTokens are the short, stable reject reasons reported to peers.
var reasonTokens = map[ERR]string{
	ERR_BLOCK_INVALID:               "bad-blk",
	ERR_BLOCK_EXISTS:                "duplicate",
	ERR_BLOCK_PARENT_NOT_FOUND:      "prev-blk-not-found",
	ERR_BLOCK_PARENT_INVALID:        "bad-prevblk",
	ERR_BLOCK_MUTATED:               "bad-txnmrklroot",
	ERR_BLOCK_TOO_LARGE:             "bad-blk-length",
	ERR_BLOCK_MALFORMED:             "bad-blk-encoding",
	ERR_BLOCK_HIGH_HASH:             "high-hash",
	ERR_BLOCK_BAD_DIFFBITS:          "bad-diffbits",
	ERR_BLOCK_TIME_TOO_OLD:          "time-too-old",
	ERR_BLOCK_TIME_TOO_NEW:          "time-too-new",
	ERR_BLOCK_BAD_COINBASE:          "bad-cb",
	ERR_BLOCK_BAD_COINBASE_AMOUNT:   "bad-cb-amount",
	ERR_BLOCK_BAD_COINBASE_HEIGHT:   "bad-cb-height",
	ERR_BLOCK_DUPLICATE_INVALID:     "duplicate-invalid",
	ERR_TX_INVALID:                  "bad-txns",
	ERR_TX_INVALID_DOUBLE_SPEND:     "bad-txns-inputs-missingorspent",
	ERR_TX_ALREADY_EXISTS:           "txn-already-in-mempool",
	ERR_TX_MALFORMED:                "bad-txns-encoding",
	ERR_TX_MISSING_INPUTS:           "missing-inputs",
	ERR_TX_PREMATURE_COINBASE_SPEND: "bad-txns-premature-spend-of-coinbase",
	ERR_TX_NON_FINAL:                "bad-txns-nonfinal",
	ERR_TX_SCRIPT_VERIFY:            "mandatory-script-verify-flag-failed",
	ERR_TX_NON_STANDARD:             "non-standard",
	ERR_TX_DUST:                     "dust",
	ERR_TX_INSUFFICIENT_FEE:         "min-relay-fee-not-met",
	ERR_TX_TOO_LONG_MEMPOOL_CHAIN:   "too-long-mempool-chain",
	ERR_TX_REPLACEMENT_REJECTED:     "insufficient-fee-replacement",
	ERR_TX_MEMPOOL_CONFLICT:         "txn-mempool-conflict",
	ERR_TX_MEMPOOL_FULL:             "mempool-full",
	ERR_TX_COINBASE:                 "coinbase",
	ERR_TX_RECENTLY_REJECTED:        "txn-recently-rejected",
	ERR_TX_ALREADY_CONFIRMED:        "txn-already-known",
	ERR_LOCKTIME:                    "bad-txns-nonfinal",
	ERR_STORE_CORRUPT:               "store-corrupt",
	ERR_INSUFFICIENT_DATA:           "insufficient-data",
}

func (x ERR) String() string {
	if name, ok := ERR_name[int32(x)]; ok {
		return name
	}

	return "ERR_" + strconv.Itoa(int(x))
}

// Reason returns the short reject reason for the code, falling back to the
// lower-case code name.
func (x ERR) Reason() string {
	if token, ok := reasonTokens[x]; ok {
		return token
	}

	return lower(x.String())
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'A' && c <= 'Z':
			b[i] = c + ('a' - 'A')
		case c == '_':
			b[i] = '-'
		}
	}

	return string(b)
}
