package lift

import (
	"github.com/hexlift/hexlift/decode"
	"github.com/hexlift/hexlift/ir"
)

// translateMov handles the move family: plain moves with explicit
// cast nodes for the zero/sign-extending forms, LEA writing an effective
// address, and wide-lane copies for the MOVUPS/MOVAPS/MOVHPS family.
func translateMov(e *decode.Env) (Result, error) {
	b := e.B
	switch e.Inst.Op.String() {
	case "LEA":
		addr, err := e.EffectiveAddress(1)
		if err != nil {
			return Fail, err
		}
		if err := e.WriteOperand(0, addr); err != nil {
			return Fail, err
		}
		return Normal, nil

	case "MOVZX", "MOVSX", "MOVSXD":
		destTyp := e.OperandType(0)
		srcTyp := e.OperandType(1)
		src, err := e.ReadOperand(1, srcTyp)
		if err != nil {
			return Fail, err
		}
		var out *ir.Port
		if e.Inst.Op.String() == "MOVZX" {
			out, err = b.Zx(src, destTyp)
		} else {
			out, err = b.Sx(src, destTyp)
		}
		if err != nil {
			return Fail, err
		}
		if err := e.WriteOperand(0, out); err != nil {
			return Fail, err
		}
		return Normal, nil

	case "CQO", "CDQ":
		// Sign-extend the accumulator into the high half via arithmetic
		// right-shift + conditional select
		wide := ir.U64
		if e.Inst.Op.String() == "CDQ" {
			wide = ir.U32
		}
		acc, err := b.ReadReg(decode.Reg64("RAX"), wide)
		if err != nil {
			return Fail, err
		}
		allOnes, err := b.ConstInt(wide, ^uint64(0))
		if err != nil {
			return Fail, err
		}
		zero, err := b.ConstInt(wide, 0)
		if err != nil {
			return Fail, err
		}
		signBitAmt, err := b.ConstInt(wide, uint64(wide.Width()-1))
		if err != nil {
			return Fail, err
		}
		shifted, err := b.Asr(acc, signBitAmt)
		if err != nil {
			return Fail, err
		}
		cond, err := b.CmpNe(shifted.Result, zero)
		if err != nil {
			return Fail, err
		}
		sel, err := b.CSelect(cond.Result, allOnes, zero)
		if err != nil {
			return Fail, err
		}
		if err := b.WriteReg(decode.Reg64("RDX"), sel.Result); err != nil {
			return Fail, err
		}
		return Normal, nil

	case "MOVUPS", "MOVAPS", "MOVHPS", "MOVQ", "MOVD":
		typ := ir.U128
		src, err := e.ReadOperand(1, typ)
		if err != nil {
			return Fail, err
		}
		if err := e.WriteOperand(0, src); err != nil {
			return Fail, err
		}
		return Normal, nil

	default: // plain MOV
		typ := e.OperandType(0)
		src, err := e.ReadOperand(1, typ)
		if err != nil {
			return Fail, err
		}
		if err := e.WriteOperand(0, src); err != nil {
			return Fail, err
		}
		return Normal, nil
	}
}

