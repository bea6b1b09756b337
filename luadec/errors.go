package luadec

import "errors"

// ErrUnknownFormat reports a blob that none of the decode strategies could
// make sense of.
var ErrUnknownFormat = errors.New("luadec: unsupported blob format")

// ErrMalformedPayload reports a marker-tagged blob whose envelope is missing
// the NUL that terminates the embedded source path.
var ErrMalformedPayload = errors.New("luadec: malformed payload: missing path terminator")

// ErrDepthExceeded reports a blob whose encrypted wrapping nests deeper than
// the pipeline is willing to follow.
var ErrDepthExceeded = errors.New("luadec: nested payload depth exceeded")
