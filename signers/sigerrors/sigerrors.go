package sigerrors

import "fmt"

// NotSignedError indicates that a file carries no signature at all. It is
// distinct from a verification failure: callers that need to tell "absent"
// from "invalid" test for this type.
type NotSignedError struct {
	Type string
}

func (e NotSignedError) Error() string {
	return fmt.Sprintf("%s does not appear to be signed", e.Type)
}
