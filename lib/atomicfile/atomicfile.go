// Package atomicfile writes files via a temporary name and rename so
// that a failed signing operation never leaves a truncated output.
package atomicfile

import (
	"errors"
	"io"
	"os"
	"path"
)

type AtomicFile interface {
	io.WriteCloser
	Commit() error
}

type atomicFile struct {
	name     string
	tempfile *os.File
}

func New(name string) (AtomicFile, error) {
	tempfile, err := os.CreateTemp(path.Dir(name), path.Base(name)+".tmp")
	if err != nil {
		return nil, err
	}
	return &atomicFile{name, tempfile}, nil
}

func (f *atomicFile) Write(d []byte) (int, error) {
	return f.tempfile.Write(d)
}

// Close discards the file without committing it. Calling Close after
// Commit is a no-op.
func (f *atomicFile) Close() error {
	if f.tempfile == nil {
		return nil
	}
	f.tempfile.Close()
	os.Remove(f.tempfile.Name())
	f.tempfile = nil
	return nil
}

// Commit moves the completed file into place.
func (f *atomicFile) Commit() error {
	if f.tempfile == nil {
		return errors.New("file is closed")
	}
	if err := f.tempfile.Chmod(0644); err != nil {
		return err
	}
	if err := f.tempfile.Close(); err != nil {
		return err
	}
	// rename can't overwrite on windows
	if err := os.Remove(f.name); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Rename(f.tempfile.Name(), f.name); err != nil {
		return err
	}
	f.tempfile = nil
	return nil
}

type nopAtomic struct {
	*os.File
	doClose bool
}

func (a nopAtomic) Commit() error {
	if a.doClose {
		return a.Close()
	}
	return nil
}

func isSpecial(path string) bool {
	stat, err := os.Stat(path)
	return err == nil && !stat.Mode().IsRegular()
}

// WriteAny picks the best strategy for writing to the given path.
// Pipes and devices are written directly, otherwise write-rename.
func WriteAny(path string) (AtomicFile, error) {
	if path == "-" {
		return nopAtomic{os.Stdout, false}, nil
	}
	if isSpecial(path) {
		f, err := os.Create(path)
		return nopAtomic{f, true}, err
	}
	return New(path)
}
