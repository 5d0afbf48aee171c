package lift

import (
	"github.com/hexlift/hexlift/decode"
)

// translateUnimplemented is the catch-all: any
// iclass with no registered category still has to produce something the
// runtime can execute, so it lowers to a call to the handle_poison helper
// (resolved via the Internal Function Resolver) whose one argument is the
// guest address of the offending instruction; the mnemonic itself is not
// passed. It reports a soft failure rather than aborting the whole chunk.
func translateUnimplemented(e *decode.Env) (Result, error) {
	pc, err := e.B.ConstU64(e.Addr)
	if err != nil {
		return Fail, err
	}
	if err := e.B.InternalCallTo("handle_poison", pc); err != nil {
		return Fail, err
	}
	return Fail, nil
}
