// Package export hands finished tables to a file-save capability.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/patrickjm/staffcount/internal/table"
)

var (
	ErrSave              = errors.New("save failed")
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

const (
	ContentTypeCSV  = "text/csv;charset=utf-8;"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Saver interface {
	Save(content []byte, filename string, contentType string) error
}

// FileSaver writes exports into Dir. Relative filenames resolve against Dir,
// absolute ones are written as given.
type FileSaver struct {
	Dir string
}

func (s FileSaver) Path(filename string) string {
	if filepath.IsAbs(filename) || s.Dir == "" {
		return filename
	}
	return filepath.Join(s.Dir, filename)
}

func (s FileSaver) Save(content []byte, filename string, _ string) error {
	path := s.Path(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// CheckFormat fails with ErrUnsupportedFormat unless Encode can handle filename.
func CheckFormat(filename string) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".xlsx":
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
}

// Encode picks the encoding from the filename extension.
func Encode(t table.Table, filename string) ([]byte, string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return table.EncodeCSV(t), ContentTypeCSV, nil
	case ".xlsx":
		b, err := table.EncodeXLSX(t)
		if err != nil {
			return nil, "", err
		}
		return b, ContentTypeXLSX, nil
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
	}
}

func Export(saver Saver, t table.Table, filename string) error {
	content, contentType, err := Encode(t, filename)
	if err != nil {
		return err
	}
	if saver == nil {
		return fmt.Errorf("%w: no saver", ErrSave)
	}
	if err := saver.Save(content, filename, contentType); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSave, filename, err)
	}
	return nil
}
