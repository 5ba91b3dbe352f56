package file

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultPermissionOctal is the default file and folder permission octal
// used throughout the simulator
const DefaultPermissionOctal os.FileMode = 0o770

var (
	errNoFilename     = errors.New("no filename provided")
	errNoData         = errors.New("no data to write")
	errMismatchedRows = errors.New("csv rows have mismatched lengths")
)

// Write writes selected data to a file or returns an error if it fails. Any
// missing parent directories are created
func Write(file string, data []byte) error {
	if file == "" {
		return errNoFilename
	}
	basePath := filepath.Dir(file)
	if !Exists(basePath) {
		if err := os.MkdirAll(basePath, DefaultPermissionOctal); err != nil {
			return err
		}
	}
	return os.WriteFile(file, data, 0o600)
}

// Writer creates a file, and any missing parent directories, and returns it
// open for writing. The caller closes it
func Writer(file string) (*os.File, error) {
	if file == "" {
		return nil, errNoFilename
	}
	if err := os.MkdirAll(filepath.Dir(file), DefaultPermissionOctal); err != nil {
		return nil, err
	}
	return os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
}

// Exists returns whether or not a file or path exists
func Exists(name string) bool {
	_, err := os.Stat(name)
	return !os.IsNotExist(err)
}

// WriteAsCSV takes a table of data and writes it to a file as CSV. Every row
// must have the same number of columns as the header
func WriteAsCSV(filename string, data [][]string) error {
	if len(data) == 0 {
		return errNoData
	}
	width := len(data[0])
	for i := range data {
		if len(data[i]) != width {
			return fmt.Errorf("%w: row %v has %v columns, expected %v", errMismatchedRows, i, len(data[i]), width)
		}
	}
	f, err := Writer(filename)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err = w.WriteAll(data); err != nil {
		return errors.Join(err, f.Close())
	}
	return f.Close()
}
