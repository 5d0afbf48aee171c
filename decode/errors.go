package decode

import "errors"

// ErrDecode reports that the byte stream does not decode to a legal
// instruction. Decoding a chunk truncates it at the last successful
// instruction on this error.
var ErrDecode = errors.New("decode: illegal instruction")
