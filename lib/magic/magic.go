package magic

import (
	"bytes"
	"io"
)

type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeXAR
	FileTypePKCS7
)

var pkcs7SignedData = []byte{0x06, 0x09, 0x2A, 0x86, 0x48, 0x86, 0xF7, 0x0D, 0x01, 0x07, 0x02}

// Detect sniffs the file type from its leading bytes.
func Detect(r io.Reader) FileType {
	var buf [1024]byte
	n, err := io.ReadAtLeast(r, buf[:], 4)
	if err != nil {
		return FileTypeUnknown
	}
	blob := buf[:n]
	switch {
	case bytes.HasPrefix(blob, []byte("xar!")):
		return FileTypeXAR
	case bytes.Contains(blob, pkcs7SignedData):
		return FileTypePKCS7
	}
	return FileTypeUnknown
}
