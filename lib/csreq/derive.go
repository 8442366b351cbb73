package csreq

import (
	"crypto/x509"
	"fmt"

	"github.com/grovekeep/grovesign/lib/certprofile"
)

// PolicyFormulationError indicates that a designated requirement could
// not be formulated for a recognized certificate profile, naming the
// profile and the missing piece.
type PolicyFormulationError struct {
	Profile certprofile.Profile
	Reason  string
}

func (e PolicyFormulationError) Error() string {
	return fmt.Sprintf("cannot derive designated requirement for %s certificate: %s", e.Profile, e.Reason)
}

// DeriveDesignatedRequirement formulates the default designated
// requirement for code signed with the given certificate, matching what
// codesign would produce. A certificate matching no known profile yields
// (nil, nil): no opinion, not an error. If identifier is non-empty the
// result is wrapped in an identifier check.
func DeriveDesignatedRequirement(cert *x509.Certificate, identifier string) (Expr, error) {
	profile := certprofile.GuessProfile(cert)
	var expr Expr
	switch profile {
	case certprofile.ProfileNone:
		return nil, nil
	case certprofile.AppleDevelopment, certprofile.AppleDistribution:
		cn := certprofile.SubjectCommonName(cert)
		if cn == "" {
			return nil, PolicyFormulationError{Profile: profile, Reason: "certificate has no subject common name"}
		}
		expr = And{
			AnchorAppleGeneric{},
			And{
				CertificateField{Slot: LeafCertIndex, Field: "subject.CN", Match: MatchEqual{Value: cn}},
				CertificateGeneric{Slot: 1, OID: certprofile.IntermediateWWDR, Match: MatchExists{}},
			},
		}
	case certprofile.DeveloperIDApplication:
		teamID := certprofile.TeamID(cert)
		if teamID == "" {
			return nil, PolicyFormulationError{Profile: profile, Reason: "certificate has no team identifier"}
		}
		expr = And{
			AnchorAppleGeneric{},
			And{
				CertificateGeneric{Slot: 1, OID: certprofile.IntermediateDevID, Match: MatchExists{}},
				And{
					CertificateGeneric{Slot: LeafCertIndex, OID: certprofile.CodeSignDevIDExecute, Match: MatchExists{}},
					CertificateField{Slot: LeafCertIndex, Field: "subject.OU", Match: MatchEqual{Value: teamID}},
				},
			},
		}
	default:
		// deliberately unsupported rather than guessed at
		return nil, PolicyFormulationError{Profile: profile, Reason: "profile is not supported for requirement derivation"}
	}
	if identifier != "" {
		expr = And{Identifier{ID: identifier}, expr}
	}
	return expr, nil
}
