package options

import (
	"fmt"
	"path/filepath"

	"github.com/bsv-blockchain/chainstate/errors"
)

// Options is the merged view of store and file options used by a single call.
type Options struct {
	SubDirectory   string
	HashPrefix     int
	Extension      string
	AllowOverwrite bool
}

type StoreOption func(*Options)

type FileOption func(*Options)

func NewStoreOptions(opts ...StoreOption) *Options {
	options := &Options{}

	for _, opt := range opts {
		opt(options)
	}

	return options
}

// MergeOptions applies the file options on top of a copy of the store defaults.
func MergeOptions(storeOpts *Options, fileOpts []FileOption) *Options {
	options := &Options{}
	if storeOpts != nil {
		*options = *storeOpts
	}

	for _, opt := range fileOpts {
		opt(options)
	}

	return options
}

// WithDefaultSubDirectory stores every blob below subDirectory.
func WithDefaultSubDirectory(subDirectory string) StoreOption {
	return func(o *Options) {
		o.SubDirectory = subDirectory
	}
}

// WithHashPrefix fans files out into directories named after the first n
// characters of the file name, or the last -n characters when n is negative.
func WithHashPrefix(n int) StoreOption {
	return func(o *Options) {
		o.HashPrefix = n
	}
}

func WithFileExtension(extension string) FileOption {
	return func(o *Options) {
		o.Extension = extension
	}
}

func WithAllowOverwrite(allow bool) FileOption {
	return func(o *Options) {
		o.AllowOverwrite = allow
	}
}

func (o *Options) CalculatePrefix(filename string) string {
	switch {
	case o.HashPrefix > 0 && o.HashPrefix <= len(filename):
		return filename[:o.HashPrefix]
	case o.HashPrefix < 0 && -o.HashPrefix <= len(filename):
		return filename[len(filename)+o.HashPrefix:]
	default:
		return ""
	}
}

// ConstructFilename returns the path of the blob for key below basePath.
// Keys are written as reversed hex so that block hashes read the same way
// they are displayed.
func (o *Options) ConstructFilename(basePath string, key []byte) (string, error) {
	if len(key) == 0 {
		return "", errors.NewInvalidArgumentError("empty blob key")
	}

	filename := reverseHex(key)

	dir := basePath
	if o.SubDirectory != "" {
		dir = filepath.Join(dir, o.SubDirectory)
	}

	if prefix := o.CalculatePrefix(filename); prefix != "" {
		dir = filepath.Join(dir, prefix)
	}

	if o.Extension != "" {
		filename = fmt.Sprintf("%s.%s", filename, o.Extension)
	}

	return filepath.Join(dir, filename), nil
}

func reverseHex(b []byte) string {
	const hexDigits = "0123456789abcdef"

	out := make([]byte, len(b)*2)

	for i := range b {
		c := b[len(b)-1-i]
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}

	return string(out)
}
