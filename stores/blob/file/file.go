// Package file implements the blob.Store interface on the local filesystem,
// one file per blob. Writes go to a temporary file that is renamed into place
// so that a crash never leaves a partial blob under its final name.
package file

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/stores/blob/options"
	"github.com/bsv-blockchain/chainstate/ulogger"
)

type File struct {
	path    string
	logger  ulogger.Logger
	options *options.Options
}

// fileSemaphore limits the number of concurrent file operations.
var fileSemaphore = make(chan struct{}, 1024)

// New creates a file store rooted at the path of storeURL. A host of "." makes
// the path relative to the working directory, e.g. file://./data/blocks.
//
// Supported URL parameters:
//   - hashPrefix: fan files out by the first n characters of their name
//   - hashSuffix: fan files out by the last n characters of their name
func New(logger ulogger.Logger, storeURL *url.URL, opts ...options.StoreOption) (*File, error) {
	if storeURL == nil {
		return nil, errors.NewConfigurationError("storeURL is nil")
	}

	var path string
	if storeURL.Host == "." {
		path = storeURL.Path[1:] // relative path
	} else {
		path = storeURL.Path // absolute path
	}

	storeOptions := options.NewStoreOptions(opts...)

	if hashPrefix := storeURL.Query().Get("hashPrefix"); len(hashPrefix) > 0 {
		val, err := strconv.ParseInt(hashPrefix, 10, 64)
		if err != nil {
			return nil, errors.NewConfigurationError("[File] failed to parse hashPrefix", err)
		}

		storeOptions.HashPrefix = int(val)
	}

	if hashSuffix := storeURL.Query().Get("hashSuffix"); len(hashSuffix) > 0 {
		val, err := strconv.ParseInt(hashSuffix, 10, 64)
		if err != nil {
			return nil, errors.NewConfigurationError("[File] failed to parse hashSuffix", err)
		}

		storeOptions.HashPrefix = -int(val)
	}

	return NewWithPath(logger, path, storeOptions)
}

func NewWithPath(logger ulogger.Logger, path string, storeOptions *options.Options) (*File, error) {
	if path == "" {
		return nil, errors.NewConfigurationError("[File] path is empty")
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, errors.NewStorageError("[File] failed to create directory %s", path, err)
	}

	if storeOptions == nil {
		storeOptions = options.NewStoreOptions()
	}

	return &File{
		path:    path,
		logger:  logger.New("file"),
		options: storeOptions,
	}, nil
}

func (s *File) filename(key []byte, opts []options.FileOption) (string, *options.Options, error) {
	merged := options.MergeOptions(s.options, opts)

	fileName, err := merged.ConstructFilename(s.path, key)
	if err != nil {
		return "", nil, err
	}

	return fileName, merged, nil
}

func (s *File) Health(_ context.Context, _ bool) (int, string, error) {
	tmp, err := os.CreateTemp(s.path, ".health-*")
	if err != nil {
		return http.StatusServiceUnavailable, "File Store: unable to write", errors.NewStorageUnavailableError("[File] %s is not writable", s.path, err)
	}

	_ = tmp.Close()
	_ = os.Remove(tmp.Name())

	return http.StatusOK, "File Store", nil
}

func (s *File) Exists(_ context.Context, key []byte, opts ...options.FileOption) (bool, error) {
	fileName, _, err := s.filename(key, opts)
	if err != nil {
		return false, err
	}

	fileSemaphore <- struct{}{}
	defer func() { <-fileSemaphore }()

	if _, err = os.Stat(fileName); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, errors.NewStorageError("[File][Exists] failed to stat %s", fileName, err)
	}

	return true, nil
}

func (s *File) Get(_ context.Context, key []byte, opts ...options.FileOption) ([]byte, error) {
	fileName, _, err := s.filename(key, opts)
	if err != nil {
		return nil, err
	}

	fileSemaphore <- struct{}{}
	defer func() { <-fileSemaphore }()

	b, err := os.ReadFile(fileName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.NewBlobNotFoundError("[File][Get] %s not found", fileName)
		}

		return nil, errors.NewStorageError("[File][Get] failed to read %s", fileName, err)
	}

	return b, nil
}

func (s *File) GetIoReader(_ context.Context, key []byte, opts ...options.FileOption) (io.ReadCloser, error) {
	fileName, _, err := s.filename(key, opts)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fileName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.NewBlobNotFoundError("[File][GetIoReader] %s not found", fileName)
		}

		return nil, errors.NewStorageError("[File][GetIoReader] failed to open %s", fileName, err)
	}

	return f, nil
}

func (s *File) Set(ctx context.Context, key []byte, value []byte, opts ...options.FileOption) error {
	return s.SetFromReader(ctx, key, io.NopCloser(bytes.NewReader(value)), opts...)
}

func (s *File) SetFromReader(_ context.Context, key []byte, reader io.ReadCloser, opts ...options.FileOption) error {
	defer reader.Close()

	fileName, merged, err := s.filename(key, opts)
	if err != nil {
		return err
	}

	fileSemaphore <- struct{}{}
	defer func() { <-fileSemaphore }()

	if !merged.AllowOverwrite {
		if _, err = os.Stat(fileName); err == nil {
			return errors.NewBlobAlreadyExistsError("[File][Set] %s already exists", fileName)
		}
	}

	if err = os.MkdirAll(filepath.Dir(fileName), 0o755); err != nil {
		return errors.NewStorageError("[File][Set] failed to create directory for %s", fileName, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fileName), filepath.Base(fileName)+".*.tmp")
	if err != nil {
		return errors.NewStorageError("[File][Set] failed to create temp file for %s", fileName, err)
	}

	tmpName := tmp.Name()

	if _, err = io.Copy(tmp, reader); err == nil {
		err = tmp.Sync()
	}

	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmpName)
		return errors.NewStorageError("[File][Set] failed to write %s", fileName, err)
	}

	if err = os.Rename(tmpName, fileName); err != nil {
		_ = os.Remove(tmpName)
		return errors.NewStorageError("[File][Set] failed to rename %s", fileName, err)
	}

	return nil
}

func (s *File) Del(_ context.Context, key []byte, opts ...options.FileOption) error {
	fileName, _, err := s.filename(key, opts)
	if err != nil {
		return err
	}

	fileSemaphore <- struct{}{}
	defer func() { <-fileSemaphore }()

	if err = os.Remove(fileName); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.NewStorageError("[File][Del] failed to remove %s", fileName, err)
	}

	return nil
}

func (s *File) Close(_ context.Context) error {
	return nil
}
