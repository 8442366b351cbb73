package signers

import (
	"crypto"
	"crypto/x509"
	"errors"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/grovekeep/grovesign/lib/certloader"
	"github.com/grovekeep/grovesign/lib/magic"
)

// Signer is a module that can sign and verify one file format.
type Signer struct {
	Name    string
	Aliases []string
	Magic   magic.FileType
	// Return true if the given filename is associated with this signer
	TestPath func(string) bool
	// Sign reads a file and writes the signed result to opts.Output
	Sign func(*os.File, *certloader.Certificate, SignOpts) error
	// Verify a file, returning the set of signatures found. Performs
	// integrity checks but does not build X509 chains.
	Verify func(*os.File, VerifyOpts) ([]*Signature, error)

	flags *pflag.FlagSet
}

type SignOpts struct {
	Hash   crypto.Hash
	Output io.Writer
	Log    *zerolog.Logger
}

type VerifyOpts struct {
	NoDigests bool
	NoChain   bool
}

// Signature describes one signature found during verification.
type Signature struct {
	SigInfo       string
	Hash          crypto.Hash
	Certificate   *x509.Certificate
	Intermediates []*x509.Certificate
}

var registered []*Signer

func Register(s *Signer) {
	registered = append(registered, s)
}

// ByName returns the signer module with the given name or alias
func ByName(name string) *Signer {
	for _, s := range registered {
		if s.Name == name {
			return s
		}
		for _, n2 := range s.Aliases {
			if n2 == name {
				return s
			}
		}
	}
	return nil
}

// ByMagic returns the signer module responsible for the given file magic
func ByMagic(m magic.FileType) *Signer {
	if m == magic.FileTypeUnknown {
		return nil
	}
	for _, s := range registered {
		if s.Magic == m {
			return s
		}
	}
	return nil
}

// ByFileName returns the signer associated with a filename extension
func ByFileName(name string) *Signer {
	for _, s := range registered {
		if s.TestPath != nil && s.TestPath(name) {
			return s
		}
	}
	return nil
}

// ByFile returns the named signer module if given, otherwise identifies
// the file at the given path by contents or extension
func ByFile(name, sigtype string) (*Signer, error) {
	if sigtype != "" {
		mod := ByName(sigtype)
		if mod == nil {
			return nil, errors.New("no signer with that name")
		}
		return mod, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if mod := ByMagic(magic.Detect(f)); mod != nil {
		return mod, nil
	} else if mod := ByFileName(name); mod != nil {
		return mod, nil
	}
	return nil, errors.New("unknown filetype")
}

// Flags creates a FlagSet for flags associated with this module.
func (s *Signer) Flags() *pflag.FlagSet {
	if s.flags == nil {
		s.flags = pflag.NewFlagSet(s.Name, pflag.ExitOnError)
	}
	return s.flags
}
