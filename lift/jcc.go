package lift

import (
	"strings"

	"github.com/hexlift/hexlift/decode"
	"github.com/hexlift/hexlift/ir"
)

// translateJcc handles conditional jumps: ComputeCond selects between
// the branch target and the fallthrough address, and the result is written
// via write_pc with br_type=csel so the backend can materialize it as a
// conditional branch rather than a full select-then-jump.
func translateJcc(e *decode.Env) (Result, error) {
	b := e.B
	op := e.Inst.Op.String()

	if op == "JCXZ" || op == "JECXZ" || op == "JRCXZ" {
		return translateJrcxz(e, op)
	}

	cc := condSuffix(op, "J")
	cond, err := ComputeCond(e, cc)
	if err != nil {
		return Fail, err
	}
	target, err := e.ReadOperand(0, ir.U64)
	if err != nil {
		return Fail, err
	}
	fallthrough_, err := b.ConstU64(e.NextAddr())
	if err != nil {
		return Fail, err
	}
	sel, err := b.CSelect(cond, target, fallthrough_)
	if err != nil {
		return Fail, err
	}
	if err := b.WritePC(sel.Result, ir.BrCSel); err != nil {
		return Fail, err
	}
	return EndOfBlock, nil
}

// translateJrcxz handles the RCX/ECX-is-zero family, whose condition is not
// one of the sixteen flag-based codes.
func translateJrcxz(e *decode.Env, op string) (Result, error) {
	b := e.B
	width := ir.U64
	if strings.HasPrefix(op, "JECXZ") {
		width = ir.U32
	}
	rcx, err := b.ReadReg(decode.Reg64("RCX"), width)
	if err != nil {
		return Fail, err
	}
	zero, err := b.ConstInt(width, 0)
	if err != nil {
		return Fail, err
	}
	cond, err := b.CmpEq(rcx, zero)
	if err != nil {
		return Fail, err
	}
	target, err := e.ReadOperand(0, ir.U64)
	if err != nil {
		return Fail, err
	}
	fallthrough_, err := b.ConstU64(e.NextAddr())
	if err != nil {
		return Fail, err
	}
	sel, err := b.CSelect(cond.Result, target, fallthrough_)
	if err != nil {
		return Fail, err
	}
	if err := b.WritePC(sel.Result, ir.BrCSel); err != nil {
		return Fail, err
	}
	return EndOfBlock, nil
}
