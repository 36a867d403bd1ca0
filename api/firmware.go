package api

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

var (
	ErrFirmwareNotFound = errors.New("firmware not found")
	ErrNotRegular       = errors.New("firmware path is not a regular file")
)

// Firmware is the artifact on local disk. The server only reads it.
type Firmware struct {
	Path string
}

// Name is the file name reported to clients.
func (fw *Firmware) Name() string {
	return filepath.Base(fw.Path)
}

// Open returns the opened artifact and its file info. The caller has
// to close the file. A missing file is reported as
// ErrFirmwareNotFound, anything else that prevents reading it is
// returned wrapped.
func (fw *Firmware) Open() (*os.File, os.FileInfo, error) {
	fd, err := os.Open(fw.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.Wrap(ErrFirmwareNotFound, fw.Path)
		}
		return nil, nil, errors.Wrapf(err, "failed to open %s", fw.Path)
	}
	info, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, nil, errors.Wrapf(err, "failed to stat %s", fw.Path)
	}
	if !info.Mode().IsRegular() {
		fd.Close()
		return nil, nil, errors.Wrapf(ErrNotRegular, "%s has mode %s", fw.Path, info.Mode())
	}
	return fd, info, nil
}

// Stat reports the artifact without opening it.
func (fw *Firmware) Stat() (os.FileInfo, error) {
	info, err := os.Stat(fw.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrFirmwareNotFound, fw.Path)
		}
		return nil, errors.Wrapf(err, "failed to stat %s", fw.Path)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.Wrapf(ErrNotRegular, "%s has mode %s", fw.Path, info.Mode())
	}
	return info, nil
}
