/*
Copyright © 2019 the InMAP authors.
This file is part of InMAP.

InMAP is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

InMAP is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with InMAP.  If not, see <http://www.gnu.org/licenses/>.
*/

package restart

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/DataDog/zstd"
	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
)

// magic starts every restart file.
const magic = "insflow-restart-v1\n"

// File is a Database that is persisted to disk as a zstd-compressed gob
// stream.
type File struct {
	*Memory

	Path string
	// Level is the zstd compression level.
	Level int
	// MaxRetries bounds the number of retried writes in Flush.
	MaxRetries uint64
	Log        logrus.FieldLogger
}

// NewFile returns an empty database that will be written to path.
func NewFile(path string) *File {
	return &File{
		Memory:     NewMemory(),
		Path:       path,
		Level:      zstd.DefaultCompression,
		MaxRetries: 3,
		Log:        logrus.StandardLogger(),
	}
}

// OpenFile reads the database stored at path.
func OpenFile(path string) (*File, error) {
	f := NewFile(path)
	r, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("restart: opening %s: %w", path, err)
	}
	defer r.Close()
	if err := f.Load(r); err != nil {
		return nil, fmt.Errorf("restart: reading %s: %w", path, err)
	}
	return f, nil
}

// Load replaces the contents of the database with data read from r.
func (f *File) Load(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if !bytes.HasPrefix(b, []byte(magic)) {
		return fmt.Errorf("not a restart file")
	}
	raw, err := zstd.Decompress(nil, b[len(magic):])
	if err != nil {
		return fmt.Errorf("decompressing: %w", err)
	}
	m := NewMemory()
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(m); err != nil {
		return fmt.Errorf("decoding: %w", err)
	}
	f.Memory = m
	return nil
}

// Save writes the database to w.
func (f *File) Save(w io.Writer) error {
	var buf bytes.Buffer
	f.mu.RLock()
	err := gob.NewEncoder(&buf).Encode(f.Memory)
	f.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("restart: encoding: %w", err)
	}
	c, err := zstd.CompressLevel(nil, buf.Bytes(), f.Level)
	if err != nil {
		return fmt.Errorf("restart: compressing: %w", err)
	}
	if _, err := io.WriteString(w, magic); err != nil {
		return err
	}
	_, err = w.Write(c)
	return err
}

// Flush writes the database to f.Path, replacing any existing file.
// Failed writes are retried with exponential backoff.
func (f *File) Flush() error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.MaxRetries)
	return backoff.RetryNotify(
		func() error {
			tmp, err := os.CreateTemp(filepath.Dir(f.Path), filepath.Base(f.Path)+".*")
			if err != nil {
				return fmt.Errorf("restart: creating %s: %w", f.Path, err)
			}
			if err := f.Save(tmp); err != nil {
				tmp.Close()
				os.Remove(tmp.Name())
				return err
			}
			if err := tmp.Close(); err != nil {
				os.Remove(tmp.Name())
				return err
			}
			return os.Rename(tmp.Name(), f.Path)
		},
		b,
		func(err error, d time.Duration) {
			f.Log.WithFields(logrus.Fields{"path": f.Path, "retry_in": d}).Warn(err)
		},
	)
}
