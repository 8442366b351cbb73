package xar

import (
	"crypto"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"sort"
)

// Unpack materializes every file in the archive under dest. Symlinks and
// hardlinks are refused outright: following archive-declared link targets
// during extraction is a path-traversal hazard, and a loud failure beats a
// corrupted tree. The whole unpack aborts on the first failure.
func (x *Reader) Unpack(dest string) error {
	entries, err := x.Files()
	if err != nil {
		return err
	}
	for _, e := range entries {
		target := filepath.Join(dest, filepath.FromSlash(e.Path))
		switch e.File.Type {
		case FileTypeDirectory:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case FileTypeFile:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := x.unpackFile(e.File, target); err != nil {
				return fmt.Errorf("unpacking %q: %w", e.Path, err)
			}
		case FileTypeSymlink, FileTypeHardlink, FileTypeLink:
			return UnsupportedError{Op: fmt.Sprintf("extracting %s %q", e.File.Type, e.Path)}
		default:
			return UnsupportedError{Op: fmt.Sprintf("extracting file type %q", e.File.Type)}
		}
	}
	return nil
}

func (x *Reader) unpackFile(f *File, target string) error {
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if f.Data != nil {
		if err := x.WriteFileDataDecoded(f, out); err != nil {
			out.Close()
			return err
		}
	}
	return out.Close()
}

// VerifyFileDigests recomputes the archived checksum of every file that
// declares one, reading the heap in offset order.
func (x *Reader) VerifyFileDigests() error {
	entries, err := x.Files()
	if err != nil {
		return err
	}
	var dataFiles []*File
	for _, e := range entries {
		if e.File.Data != nil && e.File.Data.ArchivedChecksum.Digest != "" {
			dataFiles = append(dataFiles, e.File)
		}
	}
	sort.Slice(dataFiles, func(i, j int) bool { return dataFiles[i].Data.Offset < dataFiles[j].Data.Offset })
	for _, f := range dataFiles {
		if err := x.checkFile(f); err != nil {
			return fmt.Errorf("checksumming %q: %w", f.Name, err)
		}
	}
	return nil
}

func (x *Reader) checkFile(f *File) error {
	var h hash.Hash
	switch f.Data.ArchivedChecksum.Style {
	case hashName(crypto.SHA1):
		h = sha1.New()
	case hashName(crypto.SHA256):
		h = sha256.New()
	case hashName(crypto.SHA512):
		h = sha512.New()
	default:
		return fmt.Errorf("unsupported checksum style %q", f.Data.ArchivedChecksum.Style)
	}
	expected, err := hex.DecodeString(f.Data.ArchivedChecksum.Digest)
	if err != nil {
		return err
	}
	if err := x.WriteHeapSlice(f.Data.Offset, f.Data.Length, h); err != nil {
		return err
	}
	calculated := h.Sum(nil)
	if !hmac.Equal(expected, calculated) {
		return fmt.Errorf("digest mismatch: expected %x but got %x", expected, calculated)
	}
	return nil
}
