package validator

// TxValidatorOptions holds optional overrides for a TxValidator.
type TxValidatorOptions struct {
	scriptVerifier ScriptVerifier
}

// TxValidatorOption is a function that sets some option on the TxValidatorOptions struct
type TxValidatorOption func(*TxValidatorOptions)

func NewTxValidatorOptions(opts ...TxValidatorOption) *TxValidatorOptions {
	options := &TxValidatorOptions{}

	for _, o := range opts {
		o(options)
	}

	return options
}

// WithScriptVerifier replaces the verifier selected by settings.
func WithScriptVerifier(verifier ScriptVerifier) TxValidatorOption {
	return func(o *TxValidatorOptions) {
		o.scriptVerifier = verifier
	}
}
