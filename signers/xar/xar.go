// Signs and verifies xar archives, including macOS flat installer
// packages.
package xar

import (
	"io"
	"os"
	"path/filepath"

	"github.com/grovekeep/grovesign/lib/certloader"
	"github.com/grovekeep/grovesign/lib/certprofile"
	"github.com/grovekeep/grovesign/lib/magic"
	"github.com/grovekeep/grovesign/lib/xar"
	"github.com/grovekeep/grovesign/signers"
)

var signer = &signers.Signer{
	Name:     "xar",
	Aliases:  []string{"pkg"},
	Magic:    magic.FileTypeXAR,
	TestPath: isPkgPath,
	Sign:     sign,
	Verify:   verify,
}

func init() {
	signers.Register(signer)
}

func isPkgPath(name string) bool {
	switch filepath.Ext(name) {
	case ".pkg", ".xar":
		return true
	}
	return false
}

func sign(f *os.File, cert *certloader.Certificate, opts signers.SignOpts) error {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	r, err := xar.Open(f, size)
	if err != nil {
		return err
	}
	if err := xar.NewSigner(r, cert).Sign(opts.Output); err != nil {
		return err
	}
	if opts.Log != nil {
		ev := opts.Log.Info().Str("file", f.Name())
		if teamID := certprofile.TeamID(cert.Leaf); teamID != "" {
			ev = ev.Str("team_id", teamID)
		}
		ev.Msg("signed xar archive")
	}
	return nil
}

func verify(f *os.File, opts signers.VerifyOpts) ([]*signers.Signature, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	r, err := xar.Open(f, size)
	if err != nil {
		return nil, err
	}
	res, err := r.Verify(opts.NoDigests)
	if err != nil {
		return nil, err
	}
	var si string
	if res.RSAVerified {
		si += "[RSA]"
	}
	if res.CMSVerified {
		si += "[CMS]"
	}
	if len(res.NotaryTicket) > 0 {
		si += "[HasNotaryTicket]"
	}
	return []*signers.Signature{{
		Hash:          r.HashFunc(),
		SigInfo:       si,
		Certificate:   res.Certificate,
		Intermediates: res.Intermediates,
	}}, nil
}
