// Package csreq models Apple's code-requirement expression language as a
// typed AST and converts it to and from the compiled binary requirement
// format understood by codesign and spctl.
package csreq

import (
	"encoding/asn1"
	"time"
)

type opCode uint32

// requirement.h
const (
	opFalse opCode = iota
	opTrue
	opIdent
	opAppleAnchor
	opAnchorHash
	opInfoKeyValue
	opAnd
	opOr
	opCDHash
	opNot
	opInfoKeyField
	opCertField
	opTrustedCert
	opTrustedCerts
	opCertGeneric
	opAppleGenericAnchor
	opEntitlementField
	opCertPolicy
	opNamedAnchor
	opNamedCode
	opPlatform
	opNotarized
	opCertFieldDate
	opLegacyDevID

	opFlagMask     opCode = 0xff000000
	opGenericFalse opCode = 0x80000000
	opGenericSkip  opCode = 0x40000000
)

type matchOp uint32

const (
	matchExists matchOp = iota
	matchEqual
	matchContains
	matchBeginsWith
	matchEndsWith
	matchLessThan
	matchGreaterThan
	matchLessEqual
	matchGreaterEqual
	matchOn
	matchBefore
	matchAfter
	matchOnOrBefore
	matchOnOrAfter
	matchAbsent
)

// Certificate slots used in requirement expressions.
const (
	LeafCertIndex   int32 = 0
	AnchorCertIndex int32 = -1
)

// Blob magics. CSCommon.h
const (
	MagicRequirement    uint32 = 0xfade0c00
	MagicRequirementSet uint32 = 0xfade0c01
)

// RequirementType tags a requirement inside a requirement set.
type RequirementType uint32

// CSCommon.h
const (
	HostRequirement RequirementType = iota + 1
	GuestRequirement
	DesignatedRequirement
	LibraryRequirement
	PluginRequirement
)

func (t RequirementType) String() string {
	switch t {
	case HostRequirement:
		return "host"
	case GuestRequirement:
		return "guest"
	case DesignatedRequirement:
		return "designated"
	case LibraryRequirement:
		return "library"
	case PluginRequirement:
		return "plugin"
	default:
		return "unknown"
	}
}

// Expr is one node of a requirement expression. Expressions are value
// types: build once, serialize, never mutate.
type Expr interface {
	emit(b *builder)
	write(d *dumper, level syntaxLevel)
}

// Match is the comparison applied by field-test expressions.
type Match interface {
	emitMatch(b *builder)
	writeMatch(d *dumper)
}

// Boolean combinators.
type (
	And struct{ Left, Right Expr }
	Or  struct{ Left, Right Expr }
	Not struct{ Operand Expr }
)

// Constant predicates: Always is "always" (true), Never is "never".
type (
	Always struct{}
	Never  struct{}
)

// Identifier requires the code's signing identifier to equal ID.
type Identifier struct{ ID string }

// Anchor predicates.
type (
	AnchorApple        struct{}
	AnchorAppleGeneric struct{}
	AnchorTrusted      struct{}
	NamedAnchor        struct{ Name string }
)

// AnchorHash requires the certificate in Slot to have the given hash.
type AnchorHash struct {
	Slot int32
	Hash []byte
}

// TrustedCert requires the certificate in Slot to be trusted by the
// system.
type TrustedCert struct{ Slot int32 }

// NamedCode delegates to a named requirement.
type NamedCode struct{ Name string }

// CDHash requires the code directory hash to equal Hash.
type CDHash struct{ Hash []byte }

// InfoKeyValue is the legacy exact-match form of an Info.plist test.
type InfoKeyValue struct{ Key, Value string }

// InfoPlistKeyField tests an Info.plist value.
type InfoPlistKeyField struct {
	Key   string
	Match Match
}

// EntitlementField tests an entitlement value.
type EntitlementField struct {
	Key   string
	Match Match
}

// CertificateField tests a named field of the certificate in Slot, e.g.
// "subject.CN".
type CertificateField struct {
	Slot  int32
	Field string
	Match Match
}

// CertificateGeneric tests a certificate extension identified by OID.
type CertificateGeneric struct {
	Slot  int32
	OID   asn1.ObjectIdentifier
	Match Match
}

// CertificatePolicy tests a certificate policy identified by OID.
type CertificatePolicy struct {
	Slot  int32
	OID   asn1.ObjectIdentifier
	Match Match
}

// CertificateFieldDate tests a timestamp-valued certificate extension.
type CertificateFieldDate struct {
	Slot int32
	OID  asn1.ObjectIdentifier
}

// Platform requires the code to be signed for the given platform.
type Platform struct{ Value int32 }

// Notarized requires a notarization ticket to be on file for the code.
type Notarized struct{}

// LegacyDevID matches code signed before the Developer ID notarization
// cutover.
type LegacyDevID struct{}

// Match variants.
type (
	MatchExists struct{}
	MatchAbsent struct{}

	MatchEqual        struct{ Value string }
	MatchContains     struct{ Value string }
	MatchBeginsWith   struct{ Value string }
	MatchEndsWith     struct{ Value string }
	MatchLessThan     struct{ Value string }
	MatchGreaterThan  struct{ Value string }
	MatchLessEqual    struct{ Value string }
	MatchGreaterEqual struct{ Value string }

	MatchOn         struct{ Time time.Time }
	MatchBefore     struct{ Time time.Time }
	MatchAfter      struct{ Time time.Time }
	MatchOnOrBefore struct{ Time time.Time }
	MatchOnOrAfter  struct{ Time time.Time }
)

// appleEpoch is the zero point of timestamps in compiled requirements.
var appleEpoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
