package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/roach88/polystore/internal/querydoc"
)

// LoadError represents a query document that could not be loaded.
type LoadError struct {
	Code    string
	Path    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDocument reads the query document at path.
func LoadDocument(path string) (*querydoc.Document, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: fmt.Sprintf("document not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: fmt.Sprintf("error accessing document: %v", err)}
	}
	if info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: fmt.Sprintf("is a directory: %s", path)}
	}

	doc, err := querydoc.Load(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeInvalidDocument, Path: path, Message: err.Error()}
	}
	return doc, nil
}

// loadFailure reports err, which came from LoadDocument, as a command error.
func loadFailure(f *OutputFormatter, err error) error {
	code := ErrCodeGeneric
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		code = loadErr.Code
		_ = f.Error(code, loadErr.Message, nil)
		return WrapExitError(ExitCommandError, code, err)
	}
	return f.Fail(ExitCommandError, code, err)
}
