package chat

import "fmt"

// UnsupportedMediaError rejects a turn before any remote call when a file
// part has an extension the vendor cannot accept. The whole turn is
// rejected; partial attachment is not allowed.
type UnsupportedMediaError struct {
	Path string
}

func (e *UnsupportedMediaError) Error() string {
	return fmt.Sprintf("unsupported file type: %s", e.Path)
}

// MalformedResponseError reports a remote response that could not be parsed
// into the structured contract. Raw preserves the original text verbatim
// for diagnostics.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// RemoteCallError wraps a network or vendor failure on a non-welcome turn.
// UserText carries the original user-visible text so the caller can render
// both the user's message and an error acknowledgment.
type RemoteCallError struct {
	UserText string
	Err      error
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("remote model call failed: %v", e.Err)
}

func (e *RemoteCallError) Unwrap() error { return e.Err }
