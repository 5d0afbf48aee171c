package lift

import (
	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"

	"github.com/hexlift/hexlift/decode"
	"github.com/hexlift/hexlift/ir"
)

// translateShift handles SHL/SAL/SHR/SAR: CF takes the last bit shifted
// out, SF/ZF come from the result, and OF is left as update-only for
// single-bit shifts (the x86 manual leaves it undefined for counts >= 2).
func translateShift(e *decode.Env) (Result, error) {
	b := e.B
	destTyp := e.OperandType(0)
	in, err := e.ReadOperand(0, destTyp)
	if err != nil {
		return Fail, err
	}
	amount, err := e.ReadOperand(1, destTyp)
	if err != nil {
		return Fail, err
	}

	var r *ir.BitShift
	switch e.Inst.Op.String() {
	case "SHL", "SAL":
		r, err = b.Lsl(in, amount)
	case "SHR":
		r, err = b.Lsr(in, amount)
	case "SAR":
		r, err = b.Asr(in, amount)
	default:
		return Fail, errors.Errorf("shift: unhandled mnemonic %q", e.Inst.Op.String())
	}
	if err != nil {
		return Fail, err
	}

	ofAction := decode.FlagIgnore
	if isShiftByOne(e) {
		ofAction = decode.FlagUpdate
	}
	if err := decode.WriteFlags(b, r, decode.Flags{
		ZF: decode.FlagUpdate, SF: decode.FlagUpdate, CF: decode.FlagUpdate, OF: ofAction, PF: decode.FlagUpdate,
	}); err != nil {
		return Fail, err
	}
	return writeResult(e, r.Result)
}

func isShiftByOne(e *decode.Env) bool {
	imm, ok := e.Inst.Args[1].(x86asm.Imm)
	return ok && imm == 1
}
