package xar

import (
	"crypto"
	"fmt"
	"strings"
)

// fileHeader is the fixed 28-byte structure at the start of every xar
// archive, stored big-endian.
type fileHeader struct {
	Magic            uint32
	HeaderSize       uint16
	Version          uint16
	CompressedSize   int64
	UncompressedSize int64
	HashType         hashType
}

const (
	xarMagic      = 0x78617221 // xar!
	xarHeaderSize = 28
	xarVersion    = 1
)

type hashType uint32

//nolint:deadcode,varcheck // for doc purposes
const (
	hashNone hashType = iota
	hashSHA1
	hashMD5
	hashSHA256
	hashSHA512
)

func (h hashType) cryptoHash() (crypto.Hash, bool) {
	switch h {
	case hashSHA1:
		return crypto.SHA1, true
	case hashSHA256:
		return crypto.SHA256, true
	case hashSHA512:
		return crypto.SHA512, true
	}
	return 0, false
}

func toHashType(hash crypto.Hash) (hashType, bool) {
	switch hash {
	case crypto.SHA1:
		return hashSHA1, true
	case crypto.SHA256:
		return hashSHA256, true
	case crypto.SHA512:
		return hashSHA512, true
	}
	return hashNone, false
}

// hashName returns the checksum style string used in the TOC, e.g. "sha256"
func hashName(hash crypto.Hash) string {
	return strings.ReplaceAll(strings.ToLower(hash.String()), "-", "")
}

type tocXar struct {
	TOC TableOfContents `xml:"toc"`
}

// TableOfContents is the parsed form of the XML TOC of a xar archive. It
// is read-only after parse; the one legitimate mutation path is the offset
// rewrite performed by the signer, which produces a FinalizedTOC.
type TableOfContents struct {
	CreationTime string         `xml:"creation-time"`
	Checksum     ChecksumInfo   `xml:"checksum"`
	RSASignature *SignatureInfo `xml:"signature"`
	CMSSignature *SignatureInfo `xml:"x-signature"`
	Files        []*File        `xml:"file"`
}

// ChecksumInfo locates the TOC digest at the start of the heap.
type ChecksumInfo struct {
	Style  string `xml:"style,attr"`
	Offset int64  `xml:"offset"`
	Size   int64  `xml:"size"`
}

// SignatureInfo locates a heap-resident signature blob and carries the
// base64 certificate chain embedded in the TOC.
type SignatureInfo struct {
	Style        string   `xml:"style,attr"`
	Offset       int64    `xml:"offset"`
	Size         int64    `xml:"size"`
	Certificates []string `xml:"KeyInfo>X509Data>X509Certificate"`
}

// Signature styles as they appear in the TOC.
const (
	SignatureStyleRSA = "RSA"
	SignatureStyleCMS = "CMS"
)

// File is one entry in the TOC tree. Directories carry child Files and no
// Data; regular files carry Data describing their heap extent.
type File struct {
	ID   uint64 `xml:"id,attr"`
	Name string `xml:"name"`
	Type string `xml:"type"`

	// optional metadata, preserved verbatim for round-tripping
	Mode  string `xml:"mode,omitempty"`
	UID   string `xml:"uid,omitempty"`
	GID   string `xml:"gid,omitempty"`
	User  string `xml:"user,omitempty"`
	Group string `xml:"group,omitempty"`
	Mtime string `xml:"mtime,omitempty"`
	Ctime string `xml:"ctime,omitempty"`

	Data  *FileData `xml:"data"`
	Files []*File   `xml:"file"`
}

// File types as they appear in the TOC.
const (
	FileTypeFile      = "file"
	FileTypeDirectory = "directory"
	FileTypeSymlink   = "symlink"
	FileTypeHardlink  = "hardlink"
	FileTypeLink      = "link"
)

// FileData describes the heap extent holding a file's (possibly encoded)
// content. Offset is relative to the heap start. Length is the encoded
// byte count in the heap; Size is the decoded byte count.
type FileData struct {
	Length   int64    `xml:"length"`
	Offset   int64    `xml:"offset"`
	Size     int64    `xml:"size"`
	Encoding Encoding `xml:"encoding"`

	ArchivedChecksum  FileChecksum `xml:"archived-checksum"`
	ExtractedChecksum FileChecksum `xml:"extracted-checksum"`

	style EncodingStyle // resolved once at TOC load
}

type Encoding struct {
	Style string `xml:"style,attr"`
}

type FileChecksum struct {
	Style  string `xml:"style,attr"`
	Digest string `xml:",chardata"`
}

// EncodingStyle is the closed set of file-data encodings the reader can
// decode, resolved once from the MIME-type string in the TOC.
type EncodingStyle int

const (
	EncodingUnknown EncodingStyle = iota
	EncodingRaw                   // application/octet-stream
	EncodingZlib                  // application/x-gzip, which is in fact raw zlib framing
	EncodingBzip2                 // application/x-bzip2
	EncodingLZMA                  // application/x-lzma
	EncodingXZ                    // application/x-xz
)

func parseEncodingStyle(mime string) EncodingStyle {
	switch mime {
	case "application/octet-stream", "":
		return EncodingRaw
	case "application/x-gzip":
		// despite the name, xar uses zlib framing here, not gzip
		return EncodingZlib
	case "application/x-bzip2":
		return EncodingBzip2
	case "application/x-lzma":
		return EncodingLZMA
	case "application/x-xz":
		return EncodingXZ
	}
	return EncodingUnknown
}

// resolveEncodings caches the parsed encoding style on every file entry.
func (toc *TableOfContents) resolveEncodings() {
	toc.walk(func(f *File) {
		if f.Data != nil {
			f.Data.style = parseEncodingStyle(f.Data.Encoding.Style)
		}
	})
}

func (toc *TableOfContents) walk(fn func(*File)) {
	var recurse func(files []*File)
	recurse = func(files []*File) {
		for _, f := range files {
			fn(f)
			recurse(f.Files)
		}
	}
	recurse(toc.Files)
}

// FormatError indicates a structurally invalid archive.
type FormatError struct {
	Reason string
}

func (e FormatError) Error() string {
	return "invalid xar archive: " + e.Reason
}

func formatErrorf(format string, args ...interface{}) FormatError {
	return FormatError{Reason: fmt.Sprintf(format, args...)}
}

// UnsupportedError indicates a well-formed archive using a feature this
// implementation deliberately refuses to handle.
type UnsupportedError struct {
	Op string
}

func (e UnsupportedError) Error() string {
	return "unsupported: " + e.Op
}

// UnknownEncodingError is returned when a file declares an encoding style
// that the decoder does not implement. Raw bytes are never silently
// passed through in its place.
type UnknownEncodingError struct {
	Style string
}

func (e UnknownEncodingError) Error() string {
	return fmt.Sprintf("unimplemented file encoding %q", e.Style)
}
