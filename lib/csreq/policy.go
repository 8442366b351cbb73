package csreq

import (
	"fmt"
	"sync"

	"github.com/grovekeep/grovesign/lib/certprofile"
)

// ExecutionPolicy names one of Apple's published execution policies.
// Each resolves to a fixed requirement expression, built once per process
// and immutable thereafter.
type ExecutionPolicy int

const (
	// DeveloperIDSigned is Apple's policy for Developer ID signed code:
	//
	//   anchor apple generic and certificate 1[field.1.2.840.113635.100.6.2.6] exists
	//   and certificate leaf[field.1.2.840.113635.100.6.1.13] exists
	DeveloperIDSigned ExecutionPolicy = iota

	// DeveloperIDNotarizedExecutable additionally requires notarization:
	//
	//   anchor apple generic and certificate 1[field.1.2.840.113635.100.6.2.6] exists
	//   and certificate leaf[field.1.2.840.113635.100.6.1.13] exists and notarized
	DeveloperIDNotarizedExecutable

	// DeveloperIDNotarizedInstaller accepts either the installer or
	// application leaf endorsement, plus notarization:
	//
	//   anchor apple generic and certificate 1[field.1.2.840.113635.100.6.2.6] exists
	//   and (certificate leaf[field.1.2.840.113635.100.6.1.14] or
	//   certificate leaf[field.1.2.840.113635.100.6.1.13]) and notarized
	DeveloperIDNotarizedInstaller
)

func (p ExecutionPolicy) String() string {
	switch p {
	case DeveloperIDSigned:
		return "developer-id-signed"
	case DeveloperIDNotarizedExecutable:
		return "developer-id-notarized-executable"
	case DeveloperIDNotarizedInstaller:
		return "developer-id-notarized-installer"
	default:
		return fmt.Sprintf("ExecutionPolicy(%d)", int(p))
	}
}

// ParseExecutionPolicy resolves a policy by its command-line name.
func ParseExecutionPolicy(name string) (ExecutionPolicy, error) {
	for _, p := range []ExecutionPolicy{
		DeveloperIDSigned,
		DeveloperIDNotarizedExecutable,
		DeveloperIDNotarizedInstaller,
	} {
		if p.String() == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown execution policy %q", name)
}

var policyTable = sync.OnceValue(func() map[ExecutionPolicy]Expr {
	devIDBase := func(leaf Expr) Expr {
		return And{
			AnchorAppleGeneric{},
			And{
				CertificateGeneric{Slot: 1, OID: certprofile.IntermediateDevID, Match: MatchExists{}},
				leaf,
			},
		}
	}
	appLeaf := CertificateGeneric{Slot: LeafCertIndex, OID: certprofile.CodeSignDevIDExecute, Match: MatchExists{}}
	installerLeaf := CertificateGeneric{Slot: LeafCertIndex, OID: certprofile.CodeSignDevIDInstall, Match: MatchExists{}}
	return map[ExecutionPolicy]Expr{
		DeveloperIDSigned:              devIDBase(appLeaf),
		DeveloperIDNotarizedExecutable: devIDBase(And{appLeaf, Notarized{}}),
		DeveloperIDNotarizedInstaller:  devIDBase(And{Or{installerLeaf, appLeaf}, Notarized{}}),
	}
})

// Requirement returns the policy's requirement expression. The table is
// built on first use and shared; callers must not mutate the result.
func (p ExecutionPolicy) Requirement() Expr {
	return policyTable()[p]
}

// Bytes returns the policy's compiled requirement payload.
func (p ExecutionPolicy) Bytes() ([]byte, error) {
	e := p.Requirement()
	if e == nil {
		return nil, fmt.Errorf("unknown execution policy %d", int(p))
	}
	return Marshal(e)
}
