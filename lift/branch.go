package lift

import (
	"github.com/hexlift/hexlift/decode"
	"github.com/hexlift/hexlift/ir"
)

// translateBranch handles unconditional branches: a JMP
// simply redirects the PC, ending the block.
func translateBranch(e *decode.Env) (Result, error) {
	target, err := e.ReadOperand(0, ir.U64)
	if err != nil {
		return Fail, err
	}
	if err := e.B.WritePC(target, ir.BrNormal); err != nil {
		return Fail, err
	}
	return EndOfBlock, nil
}
