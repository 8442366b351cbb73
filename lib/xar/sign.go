package xar

import (
	"bytes"
	"compress/zlib"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"go.mozilla.org/pkcs7"

	"github.com/grovekeep/grovesign/lib/certloader"
)

// cmsPadding is the safety margin added to the measured CMS signature
// size. CMS output can vary slightly between the measurement pass and the
// real signature; the margin absorbs that. Kept at 512 bytes to stay
// layout-compatible with existing signed archives.
const cmsPadding = 512

// Signer produces a signed copy of the archive held by a Reader. The TOC
// commits to the signature sizes before the signatures exist, so signing
// runs in three phases: measure the signature sizes with throwaway
// signatures, lay out the heap with resolved offsets, then compute the
// real signatures over the frozen TOC and stream the output.
type Signer struct {
	r        *Reader
	cert     *certloader.Certificate
	hashFunc crypto.Hash

	// overridable for tests
	buildCMS func(digest []byte, cert *certloader.Certificate, hashFunc crypto.Hash) ([]byte, error)
}

// NewSigner wraps a Reader for signing. The checksum algorithm is
// inherited from the existing archive.
func NewSigner(r *Reader, cert *certloader.Certificate) *Signer {
	return &Signer{
		r:        r,
		cert:     cert,
		hashFunc: r.hashFunc,
		buildCMS: buildCMSSignature,
	}
}

type measurement struct {
	digestSize int64
	rsaLen     int64
	cmsLen     int64
}

type heapLayout struct {
	finalized *FinalizedTOC
	// data files in enumeration order; the write pass reads their old
	// heap extents in exactly this order, matching the offsets assigned
	// during layout
	order []*File
}

// Sign writes a fully signed copy of the archive to w. File content is
// copied verbatim in its archived encoding; only the TOC, checksum and
// signature regions are rebuilt. Any failure aborts the whole operation
// with nothing useful written; the call is safe to retry.
func (s *Signer) Sign(w io.Writer) error {
	if _, ok := s.cert.Leaf.PublicKey.(*rsa.PublicKey); !ok {
		return UnsupportedError{Op: fmt.Sprintf("xar signing requires an RSA key, not %T", s.cert.Leaf.PublicKey)}
	}
	m, err := s.measure()
	if err != nil {
		return err
	}
	layout, err := s.layOut(m)
	if err != nil {
		return err
	}
	return s.finalize(w, m, layout)
}

// measure learns the byte size of each signature by producing throwaway
// signatures over a digest of random data. RSA signature size is exact;
// CMS size is an estimate and gets the fixed safety margin.
func (s *Signer) measure() (measurement, error) {
	var probe [32]byte
	if _, err := rand.Read(probe[:]); err != nil {
		return measurement{}, err
	}
	d := s.hashFunc.New()
	d.Write(probe[:])
	emptyDigest := d.Sum(nil)

	rsaSig, err := s.cert.Signer().Sign(rand.Reader, emptyDigest, s.hashFunc)
	if err != nil {
		return measurement{}, fmt.Errorf("measuring RSA signature: %w", err)
	}
	cmsSig, err := s.buildCMS(emptyDigest, s.cert, s.hashFunc)
	if err != nil {
		return measurement{}, fmt.Errorf("measuring CMS signature: %w", err)
	}
	return measurement{
		digestSize: int64(len(emptyDigest)),
		rsaLen:     int64(len(rsaSig)),
		cmsLen:     int64(len(cmsSig)) + cmsPadding,
	}, nil
}

// layOut clones the TOC, points the checksum and signature entries at the
// start of the heap, and packs every file behind them with no gaps, in
// enumeration order.
func (s *Signer) layOut(m measurement) (heapLayout, error) {
	certText := encodeCertChain(s.cert.Chain())
	toc := s.r.toc.clone()
	toc.Checksum = ChecksumInfo{
		Style:  hashName(s.hashFunc),
		Offset: 0,
		Size:   m.digestSize,
	}
	toc.RSASignature = &SignatureInfo{
		Style:        SignatureStyleRSA,
		Offset:       m.digestSize,
		Size:         m.rsaLen,
		Certificates: certText,
	}
	toc.CMSSignature = &SignatureInfo{
		Style:        SignatureStyleCMS,
		Offset:       m.digestSize + m.rsaLen,
		Size:         m.cmsLen,
		Certificates: certText,
	}
	current := m.digestSize + m.rsaLen + m.cmsLen
	finalized := toc.visitFilesMut(func(f *File) {
		if f.Data == nil {
			return
		}
		f.Data.Offset = current
		current += f.Data.Length
	})
	// the write pass reads old extents from the original TOC, which
	// enumerates in the same order offsets were just assigned in
	entries, err := s.r.Files()
	if err != nil {
		return heapLayout{}, err
	}
	var order []*File
	for _, e := range entries {
		if e.File.Data != nil {
			order = append(order, e.File)
		}
	}
	return heapLayout{finalized: finalized, order: order}, nil
}

// finalize serializes the frozen TOC, signs its digest for real, and
// streams the complete archive. The TOC bytes must not change after the
// digest is computed; FinalizedTOC enforces that no unresolved TOC can
// reach this point.
func (s *Signer) finalize(w io.Writer, m measurement, layout heapLayout) error {
	xmlBytes, err := layout.finalized.ToXML()
	if err != nil {
		return err
	}
	var ztoc bytes.Buffer
	zw := zlib.NewWriter(&ztoc)
	if _, err := zw.Write(xmlBytes); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	// the checksum digests the compressed TOC bytes, not the XML
	d := s.hashFunc.New()
	d.Write(ztoc.Bytes())
	tocDigest := d.Sum(nil)

	rsaSig, err := s.cert.Signer().Sign(rand.Reader, tocDigest, s.hashFunc)
	if err != nil {
		return fmt.Errorf("signing xar TOC: %w", err)
	}
	if int64(len(rsaSig)) != m.rsaLen {
		return fmt.Errorf("RSA signature size changed between measurement and signing: %d != %d", len(rsaSig), m.rsaLen)
	}
	cmsSig, err := s.buildCMS(tocDigest, s.cert, s.hashFunc)
	if err != nil {
		return fmt.Errorf("signing xar TOC: %w", err)
	}
	switch {
	case int64(len(cmsSig)) > m.cmsLen:
		// the measurement pass exists to prevent this; truncating would
		// produce a corrupt archive, so fail outright
		return UnsupportedError{Op: fmt.Sprintf("CMS signature overflow: reserved %d bytes, need %d", m.cmsLen, len(cmsSig))}
	case int64(len(cmsSig)) < m.cmsLen:
		cmsSig = append(cmsSig, make([]byte, m.cmsLen-int64(len(cmsSig)))...)
	}

	hdrHash, ok := toHashType(s.hashFunc)
	if !ok {
		return UnsupportedError{Op: fmt.Sprintf("hash type %s", s.hashFunc)}
	}
	hdr := fileHeader{
		Magic:            xarMagic,
		HeaderSize:       xarHeaderSize,
		Version:          xarVersion,
		CompressedSize:   int64(ztoc.Len()),
		UncompressedSize: int64(len(xmlBytes)),
		HashType:         hdrHash,
	}
	if err := binary.Write(w, binary.BigEndian, hdr); err != nil {
		return err
	}
	for _, blob := range [][]byte{ztoc.Bytes(), tocDigest, rsaSig, cmsSig} {
		if _, err := w.Write(blob); err != nil {
			return err
		}
	}
	// stream file content in the same order offsets were assigned
	for _, f := range layout.order {
		if err := s.r.WriteFileData(f, w); err != nil {
			return fmt.Errorf("copying %q: %w", f.Name, err)
		}
	}
	return nil
}

// encodeCertChain renders certificates as the base64 text embedded in TOC
// signature elements, wrapped at 72 columns the way Apple's xar does.
func encodeCertChain(certs []*x509.Certificate) []string {
	var b strings.Builder
	certText := make([]string, len(certs))
	for i, cert := range certs {
		buf := make([]byte, base64.StdEncoding.EncodedLen(len(cert.Raw)))
		base64.StdEncoding.Encode(buf, cert.Raw)
		b.Reset()
		for len(buf) > 72 {
			b.Write(buf[:72])
			b.WriteByte('\n')
			buf = buf[72:]
		}
		b.Write(buf)
		certText[i] = b.String()
	}
	return certText
}

// buildCMSSignature produces a detached CMS SignedData over the TOC
// digest with the signing chain attached.
func buildCMSSignature(digest []byte, cert *certloader.Certificate, hashFunc crypto.Hash) ([]byte, error) {
	sd, err := pkcs7.NewSignedData(digest)
	if err != nil {
		return nil, err
	}
	oid, err := digestAlgorithmOID(hashFunc)
	if err != nil {
		return nil, err
	}
	sd.SetDigestAlgorithm(oid)
	chain := cert.Chain()
	if err := sd.AddSignerChain(cert.Leaf, cert.Signer(), chain[1:], pkcs7.SignerInfoConfig{}); err != nil {
		return nil, err
	}
	sd.Detach()
	return sd.Finish()
}

func digestAlgorithmOID(hashFunc crypto.Hash) (asn1.ObjectIdentifier, error) {
	switch hashFunc {
	case crypto.SHA1:
		return pkcs7.OIDDigestAlgorithmSHA1, nil
	case crypto.SHA256:
		return pkcs7.OIDDigestAlgorithmSHA256, nil
	case crypto.SHA512:
		return pkcs7.OIDDigestAlgorithmSHA512, nil
	}
	return nil, UnsupportedError{Op: fmt.Sprintf("hash type %s", hashFunc)}
}
