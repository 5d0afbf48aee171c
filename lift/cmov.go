package lift

import (
	"github.com/hexlift/hexlift/decode"
)

// translateCmov handles CMOVcc: ComputeCond followed by a
// csel between the source operand and the destination's current value, so
// an untaken CMOVcc is a true no-op rather than an unconditional write.
func translateCmov(e *decode.Env) (Result, error) {
	b := e.B
	cc := condSuffix(e.Inst.Op.String(), "CMOV")
	cond, err := ComputeCond(e, cc)
	if err != nil {
		return Fail, err
	}
	destTyp := e.OperandType(0)
	cur, err := e.ReadOperand(0, destTyp)
	if err != nil {
		return Fail, err
	}
	src, err := e.ReadOperand(1, destTyp)
	if err != nil {
		return Fail, err
	}
	sel, err := b.CSelect(cond, src, cur)
	if err != nil {
		return Fail, err
	}
	if err := e.WriteOperand(0, sel.Result); err != nil {
		return Fail, err
	}
	return Normal, nil
}
