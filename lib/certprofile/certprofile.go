// Package certprofile classifies Apple-issued code-signing certificates
// into the closed set of profiles that Apple's tooling distinguishes, and
// extracts the identifying fields used when formulating requirements.
package certprofile

import (
	"crypto/x509"
	"encoding/asn1"
)

// Extensions endorsing a leaf certificate for a specific signing role.
// https://images.apple.com/certificateauthority/pdf/Apple_WWDR_CPS_v1.22.pdf
var (
	CodeSign = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 1}

	CodeSignApple                = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 1, 1}
	CodeSignIphoneDev            = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 1, 2}
	CodeSignIphoneApple          = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 1, 3}
	CodeSignIphoneSubmit         = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 1, 4}
	CodeSignSafariExtension      = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 1, 5}
	CodeSignMacAppSubmit         = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 1, 7}
	CodeSignMacInstallerSubmit   = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 1, 8}
	CodeSignMacAppStore          = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 1, 9}
	CodeSignMacAppStoreInstaller = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 1, 10}
	CodeSignMacDev               = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 1, 12}
	CodeSignDevIDExecute         = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 1, 13}
	CodeSignDevIDInstall         = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 1, 14}
	CodeSignDevIDKernel          = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 1, 18}
)

// Extensions endorsing an intermediate to sign a certain type of leaf.
var (
	Intermediate = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 2}

	IntermediateWWDR  = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 2, 1}
	IntermediateITMS  = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 2, 2}
	IntermediateAAI   = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 2, 3}
	IntermediateDevID = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 2, 6}
)

// Profile identifies which kind of Apple signing certificate a leaf is.
type Profile int

const (
	ProfileNone Profile = iota
	AppleDevelopment
	AppleDistribution
	DeveloperIDApplication
	DeveloperIDInstaller
	MacInstallerDistribution
)

func (p Profile) String() string {
	switch p {
	case AppleDevelopment:
		return "Apple Development"
	case AppleDistribution:
		return "Apple Distribution"
	case DeveloperIDApplication:
		return "Developer ID Application"
	case DeveloperIDInstaller:
		return "Developer ID Installer"
	case MacInstallerDistribution:
		return "Mac Installer Distribution"
	default:
		return "none"
	}
}

// GuessProfile inspects the leaf's code-signing extensions and reports
// which profile issued it, or ProfileNone when nothing matches.
func GuessProfile(cert *x509.Certificate) Profile {
	for _, ext := range cert.Extensions {
		switch {
		case ext.Id.Equal(CodeSignDevIDExecute):
			return DeveloperIDApplication
		case ext.Id.Equal(CodeSignDevIDInstall):
			return DeveloperIDInstaller
		case ext.Id.Equal(CodeSignMacInstallerSubmit):
			return MacInstallerDistribution
		case ext.Id.Equal(CodeSignIphoneDev), ext.Id.Equal(CodeSignMacDev):
			return AppleDevelopment
		case ext.Id.Equal(CodeSignIphoneSubmit), ext.Id.Equal(CodeSignMacAppSubmit):
			return AppleDistribution
		}
	}
	return ProfileNone
}

func hasPrefix(id, prefix asn1.ObjectIdentifier) bool {
	if len(id) < len(prefix) {
		return false
	}
	return id[:len(prefix)].Equal(prefix)
}

// TeamID returns the team identifier found in an apple-issued leaf
// certificate, or "" if none was found
func TeamID(cert *x509.Certificate) string {
	for _, ext := range cert.Extensions {
		if hasPrefix(ext.Id, CodeSign) {
			// team id should be in the OU field
			if v := cert.Subject.OrganizationalUnit; len(v) == 1 {
				return v[0]
			}
		}
	}
	return ""
}

// SubjectCommonName returns the leaf's subject CN, or "".
func SubjectCommonName(cert *x509.Certificate) string {
	return cert.Subject.CommonName
}

// MarkHandledExtensions marks proprietary critical extensions as handled
// so that chain verification can proceed
func MarkHandledExtensions(cert *x509.Certificate) {
	var unhandled []asn1.ObjectIdentifier
	for _, ext := range cert.UnhandledCriticalExtensions {
		if !hasPrefix(ext, CodeSign) {
			unhandled = append(unhandled, ext)
		}
	}
	cert.UnhandledCriticalExtensions = unhandled
}
