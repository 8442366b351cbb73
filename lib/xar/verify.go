package xar

import (
	"crypto/x509"
	"fmt"

	ber "github.com/go-asn1-ber/asn1-ber"
	"go.mozilla.org/pkcs7"

	"github.com/grovekeep/grovesign/lib/certprofile"
	"github.com/grovekeep/grovesign/lib/x509tools"
	"github.com/grovekeep/grovesign/signers/sigerrors"
)

// VerifyRSAChecksumSignature checks the classic RSA signature over the
// TOC digest using the first embedded certificate's public key. An
// archive with no RSA signature returns (false, nil); a signature that is
// present but does not verify returns an error, never a bare false.
func (x *Reader) VerifyRSAChecksumSignature() (bool, error) {
	if x.rsaSig == nil {
		return false, nil
	}
	pub := x.certs[0].PublicKey
	if err := x509tools.Verify(pub, x.hashFunc, x.tocHash, x.rsaSig); err != nil {
		// some older packages sign a hash of the hash
		d := x.hashFunc.New()
		d.Write(x.tocHash)
		if err2 := x509tools.Verify(pub, x.hashFunc, d.Sum(nil), x.rsaSig); err2 != nil {
			return false, fmt.Errorf("verifying RSA signature: %w", err)
		}
	}
	return true, nil
}

// VerifyCMSSignature parses the CMS SignedData blob, verifies every
// signer over the TOC digest, and reports whether any signer was checked.
// An archive with no CMS signature returns (false, nil).
func (x *Reader) VerifyCMSSignature() (bool, error) {
	if x.cmsSig == nil {
		return false, nil
	}
	// signatures are frequently BER with indefinite lengths; repack as DER
	pkt, err := ber.DecodePacketErr(x.cmsSig)
	if err != nil {
		return false, fmt.Errorf("reading CMS signature: %w", err)
	}
	p7, err := pkcs7.Parse(pkt.Bytes())
	if err != nil {
		return false, fmt.Errorf("reading CMS signature: %w", err)
	}
	// the signed content is the TOC digest itself
	p7.Content = x.checksum
	if err := p7.Verify(); err != nil {
		return false, fmt.Errorf("verifying CMS signature: %w", err)
	}
	if len(p7.Signers) == 0 {
		return false, formatErrorf("CMS signature has no signers")
	}
	return true, nil
}

// VerifyResult summarizes a successful signature check.
type VerifyResult struct {
	RSAVerified   bool
	CMSVerified   bool
	Certificate   *x509.Certificate
	Intermediates []*x509.Certificate
	NotaryTicket  []byte
}

// Verify checks whichever signatures the archive carries, preferring CMS,
// and optionally the per-file digests. An entirely unsigned archive fails
// with sigerrors.NotSignedError.
func (x *Reader) Verify(skipDigests bool) (*VerifyResult, error) {
	res := &VerifyResult{NotaryTicket: x.ticket}
	var err error
	if res.CMSVerified, err = x.VerifyCMSSignature(); err != nil {
		return nil, err
	}
	if res.RSAVerified, err = x.VerifyRSAChecksumSignature(); err != nil {
		return nil, err
	}
	if !res.CMSVerified && !res.RSAVerified {
		return nil, sigerrors.NotSignedError{Type: "xar"}
	}
	if len(x.certs) > 0 {
		res.Certificate = x.certs[0]
		res.Intermediates = x.certs[1:]
	} else if certs := x.cmsCertificates(); len(certs) > 0 {
		res.Certificate = certs[0]
		res.Intermediates = certs[1:]
	}
	// mark proprietary critical extensions as handled so chain building
	// can proceed
	for _, cert := range res.Intermediates {
		certprofile.MarkHandledExtensions(cert)
	}
	if !skipDigests {
		if err := x.VerifyFileDigests(); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (x *Reader) cmsCertificates() []*x509.Certificate {
	if x.cmsSig == nil {
		return nil
	}
	pkt, err := ber.DecodePacketErr(x.cmsSig)
	if err != nil {
		return nil
	}
	p7, err := pkcs7.Parse(pkt.Bytes())
	if err != nil {
		return nil
	}
	return p7.Certificates
}
