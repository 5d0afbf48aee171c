package lift

import (
	"github.com/hexlift/hexlift/ir"

	"github.com/hexlift/hexlift/decode"
)

// translateSetcc handles SETcc: ComputeCond followed by a
// zero-extending write of the 1-bit result into the (byte-sized) destination.
func translateSetcc(e *decode.Env) (Result, error) {
	cc := condSuffix(e.Inst.Op.String(), "SET")
	cond, err := ComputeCond(e, cc)
	if err != nil {
		return Fail, err
	}
	out, err := e.B.Zx(cond, ir.U8)
	if err != nil {
		return Fail, err
	}
	if err := e.WriteOperand(0, out); err != nil {
		return Fail, err
	}
	return Normal, nil
}
