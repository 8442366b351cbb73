package xar

import (
	"bytes"
	"compress/zlib"
	"crypto"
	"crypto/hmac"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
)

// Reader provides random access to an existing xar archive: header, parsed
// TOC, and heap slices. It is read-only and owns its stream exclusively.
type Reader struct {
	hashFunc crypto.Hash
	header   fileHeader
	toc      *TableOfContents
	tocHash  []byte // digest of the compressed TOC bytes
	checksum []byte // heap-resident checksum blob
	rsaSig   []byte
	cmsSig   []byte
	certs    []*x509.Certificate
	ticket   []byte
	heap     io.ReaderAt
}

// Open parses the archive header, inflates and decodes the TOC, and reads
// the heap-resident checksum and signature blobs. The checksum blob is
// cross-checked against the freshly computed TOC digest before anything
// else is trusted.
func Open(r io.ReaderAt, size int64) (*Reader, error) {
	hdr, hashFunc, err := parseHeader(io.NewSectionReader(r, 0, xarHeaderSize))
	if err != nil {
		return nil, err
	}
	base := int64(hdr.HeaderSize)
	toc, tocHash, err := parseTOC(io.NewSectionReader(r, base, hdr.CompressedSize), hdr, hashFunc)
	if err != nil {
		return nil, err
	}
	base += hdr.CompressedSize
	if toc.Checksum.Size != int64(hashFunc.Size()) {
		return nil, formatErrorf("checksum is missing or has size %d, want %d", toc.Checksum.Size, hashFunc.Size())
	}
	x := &Reader{
		hashFunc: hashFunc,
		header:   hdr,
		toc:      toc,
		tocHash:  tocHash,
		heap:     io.NewSectionReader(r, base, 1<<62),
	}
	x.checksum = make([]byte, toc.Checksum.Size)
	if _, err := x.heap.ReadAt(x.checksum, toc.Checksum.Offset); err != nil {
		return nil, fmt.Errorf("reading checksum: %w", err)
	}
	if !hmac.Equal(x.checksum, tocHash) {
		return nil, formatErrorf("TOC checksum mismatch")
	}
	if sig := toc.RSASignature; sig != nil {
		if err := checkSignatureExtent(sig); err != nil {
			return nil, err
		}
		x.rsaSig = make([]byte, sig.Size)
		if _, err := x.heap.ReadAt(x.rsaSig, sig.Offset); err != nil {
			return nil, fmt.Errorf("reading RSA signature: %w", err)
		}
		x.certs, err = parseCertificates(sig)
		if err != nil {
			return nil, fmt.Errorf("reading RSA signature: %w", err)
		}
	}
	if sig := toc.CMSSignature; sig != nil {
		if err := checkSignatureExtent(sig); err != nil {
			return nil, err
		}
		x.cmsSig = make([]byte, sig.Size)
		if _, err := x.heap.ReadAt(x.cmsSig, sig.Offset); err != nil {
			return nil, fmt.Errorf("reading CMS signature: %w", err)
		}
	}
	// anything past the last heap extent is a stapled notarization ticket
	lo := base + lastOffset(toc.Files)
	if trailer := size - lo; trailer > 0 && trailer < 1e6 {
		ticket := make([]byte, trailer)
		if _, err := r.ReadAt(ticket, lo); err != nil {
			return nil, fmt.Errorf("reading trailer: %w", err)
		}
		x.ticket = ticket
	}
	return x, nil
}

func parseHeader(r io.Reader) (hdr fileHeader, hashFunc crypto.Hash, err error) {
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return fileHeader{}, 0, err
	}
	if hdr.Magic != xarMagic {
		return fileHeader{}, 0, formatErrorf("incorrect magic %08x", hdr.Magic)
	} else if hdr.Version != xarVersion {
		return fileHeader{}, 0, formatErrorf("unsupported xar version %d", hdr.Version)
	}
	hashFunc, ok := hdr.HashType.cryptoHash()
	if !ok {
		return fileHeader{}, 0, formatErrorf("unknown hash algorithm %d", hdr.HashType)
	}
	return hdr, hashFunc, nil
}

func parseTOC(r io.Reader, hdr fileHeader, hashFunc crypto.Hash) (*TableOfContents, []byte, error) {
	tocHash := hashFunc.New()
	zr, err := zlib.NewReader(io.TeeReader(r, tocHash))
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing TOC: %w", err)
	}
	decomp, err := io.ReadAll(zr)
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing TOC: %w", err)
	}
	// the header-declared length is not taken on faith
	if int64(len(decomp)) != hdr.UncompressedSize {
		return nil, nil, formatErrorf("TOC inflated to %d bytes but header declares %d", len(decomp), hdr.UncompressedSize)
	}
	toc := new(tocXar)
	if err := xml.Unmarshal(decomp, toc); err != nil {
		return nil, nil, fmt.Errorf("decoding TOC: %w", err)
	}
	toc.TOC.resolveEncodings()
	return &toc.TOC, tocHash.Sum(nil), nil
}

// maxSignatureSize bounds heap allocations driven by TOC-declared
// signature sizes. Real blobs are a few KB.
const maxSignatureSize = 1 << 20

func checkSignatureExtent(sig *SignatureInfo) error {
	if sig.Offset < 0 || sig.Size <= 0 || sig.Size > maxSignatureSize {
		return formatErrorf("%s signature declares extent offset=%d size=%d", sig.Style, sig.Offset, sig.Size)
	}
	return nil
}

func parseCertificates(sig *SignatureInfo) ([]*x509.Certificate, error) {
	if len(sig.Certificates) == 0 {
		return nil, formatErrorf("signature carries no certificates")
	}
	parsed := make([]*x509.Certificate, len(sig.Certificates))
	for i, cert := range sig.Certificates {
		certBytes, err := base64.StdEncoding.DecodeString(despace(cert))
		if err != nil {
			return nil, err
		}
		parsed[i], err = x509.ParseCertificate(certBytes)
		if err != nil {
			return nil, err
		}
	}
	return parsed, nil
}

func despace(s string) string {
	var b bytes.Buffer
	for _, c := range []byte(s) {
		switch c {
		case ' ', '\t', '\r', '\n':
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func lastOffset(files []*File) (end int64) {
	for _, f := range files {
		if f.Data != nil {
			if fileEnd := f.Data.Offset + f.Data.Length; fileEnd > end {
				end = fileEnd
			}
		}
		if subEnd := lastOffset(f.Files); subEnd > end {
			end = subEnd
		}
	}
	return
}

// TOC returns the parsed table of contents. Callers must treat it as
// immutable.
func (x *Reader) TOC() *TableOfContents { return x.toc }

// HashFunc returns the archive's checksum algorithm.
func (x *Reader) HashFunc() crypto.Hash { return x.hashFunc }

// Files enumerates every entry with its full path, in TOC order.
func (x *Reader) Files() ([]FileEntry, error) { return x.toc.FileEntries() }

// Checksum returns the checksum algorithm and the heap-resident TOC
// digest blob.
func (x *Reader) Checksum() (crypto.Hash, []byte) { return x.hashFunc, x.checksum }

// RSASignature returns the raw RSA signature blob and the certificate
// chain embedded alongside it, or nil when the archive has none.
func (x *Reader) RSASignature() ([]byte, []*x509.Certificate) { return x.rsaSig, x.certs }

// CMSSignature returns the raw CMS signature blob, or nil.
func (x *Reader) CMSSignature() []byte { return x.cmsSig }

// NotaryTicket returns the stapled notarization ticket trailing the heap,
// or nil.
func (x *Reader) NotaryTicket() []byte { return x.ticket }

// heapCopyChunk is the intermediate buffer size for streaming heap slices.
const heapCopyChunk = 32 * 1024

// WriteHeapSlice streams exactly size bytes of heap data starting at the
// given heap-relative offset. This is the primitive all heap reads build
// on; it never allocates more than a fixed-size chunk.
func (x *Reader) WriteHeapSlice(offset, size int64, w io.Writer) error {
	sr := io.NewSectionReader(x.heap, offset, size)
	buf := make([]byte, heapCopyChunk)
	n, err := io.CopyBuffer(w, sr, buf)
	if err != nil {
		return err
	} else if n != size {
		return io.ErrUnexpectedEOF
	}
	return nil
}

// WriteFileData streams a file's raw heap bytes, still in their archived
// encoding.
func (x *Reader) WriteFileData(f *File, w io.Writer) error {
	if f.Data == nil {
		return formatErrorf("file %q has no data", f.Name)
	}
	return x.WriteHeapSlice(f.Data.Offset, f.Data.Length, w)
}

// WriteFileDataByID is WriteFileData keyed by TOC file id.
func (x *Reader) WriteFileDataByID(id uint64, w io.Writer) error {
	f := x.findByID(id)
	if f == nil {
		return formatErrorf("no file with id %d", id)
	}
	return x.WriteFileData(f, w)
}

func (x *Reader) findByID(id uint64) *File {
	var found *File
	x.toc.walk(func(f *File) {
		if f.ID == id && found == nil {
			found = f
		}
	})
	return found
}
