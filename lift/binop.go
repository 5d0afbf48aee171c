package lift

import (
	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"

	"github.com/hexlift/hexlift/decode"
	"github.com/hexlift/hexlift/ir"
)

// translateBinop handles the two-operand ALU group: both operands auto-cast
// to the destination type, the operation node is created, and the
// destination is written (or discarded for cmp/test). Logical ops clear
// CF/OF and update ZF/SF/PF; arithmetic ops fully update all flags.
func translateBinop(e *decode.Env) (Result, error) {
	if res, handled, err := maybeLockedBinop(e); handled {
		return res, err
	}

	b := e.B
	op := e.Inst.Op.String()
	destTyp := e.OperandType(0)

	lhs, err := e.ReadOperand(0, destTyp)
	if err != nil {
		return Fail, err
	}
	rhs, err := e.ReadOperand(1, destTyp)
	if err != nil {
		return Fail, err
	}

	switch op {
	case "ADD", "PADDB", "PADDW", "PADDD", "PADDQ":
		r, err := b.Add(lhs, rhs)
		if err != nil {
			return Fail, err
		}
		if isVectorOp(op) {
			return writeResult(e, r.Result)
		}
		if err := decode.WriteFlags(b, r, decode.Flags{ZF: decode.FlagUpdate, CF: decode.FlagUpdate, OF: decode.FlagUpdate, SF: decode.FlagUpdate, PF: decode.FlagUpdate, AF: decode.FlagUpdate}); err != nil {
			return Fail, err
		}
		return writeResult(e, r.Result)

	case "SUB", "PSUBB", "PSUBW", "PSUBD", "PSUBQ":
		r, err := b.Sub(lhs, rhs)
		if err != nil {
			return Fail, err
		}
		if isVectorOp(op) {
			return writeResult(e, r.Result)
		}
		if err := decode.WriteFlags(b, r, decode.Flags{ZF: decode.FlagUpdate, CF: decode.FlagUpdate, OF: decode.FlagUpdate, SF: decode.FlagUpdate, PF: decode.FlagUpdate, AF: decode.FlagUpdate}); err != nil {
			return Fail, err
		}
		return writeResult(e, r.Result)

	case "CMP":
		r, err := b.Sub(lhs, rhs)
		if err != nil {
			return Fail, err
		}
		if err := decode.WriteFlags(b, r, decode.Flags{ZF: decode.FlagUpdate, CF: decode.FlagUpdate, OF: decode.FlagUpdate, SF: decode.FlagUpdate, PF: decode.FlagUpdate, AF: decode.FlagUpdate}); err != nil {
			return Fail, err
		}
		return Normal, nil

	case "AND", "PAND":
		r, err := b.Band(lhs, rhs)
		if err != nil {
			return Fail, err
		}
		if !isVectorOp(op) {
			if err := logicFlags(b, r); err != nil {
				return Fail, err
			}
		}
		return writeResult(e, r.Result)

	case "OR", "POR":
		r, err := b.Bor(lhs, rhs)
		if err != nil {
			return Fail, err
		}
		if !isVectorOp(op) {
			if err := logicFlags(b, r); err != nil {
				return Fail, err
			}
		}
		return writeResult(e, r.Result)

	case "XOR", "PXOR":
		if op == "XOR" && sameRegOperands(e) {
			// xor reg, reg is the canonical zeroing idiom: the result is
			// the constant 0, so ZF/SF come straight from the constant
			// and no xor node is needed.
			return translateZeroingXor(e, destTyp)
		}
		r, err := b.Bxor(lhs, rhs)
		if err != nil {
			return Fail, err
		}
		if !isVectorOp(op) {
			if err := logicFlags(b, r); err != nil {
				return Fail, err
			}
		}
		return writeResult(e, r.Result)

	case "TEST":
		r, err := b.Band(lhs, rhs)
		if err != nil {
			return Fail, err
		}
		if err := logicFlags(b, r); err != nil {
			return Fail, err
		}
		return Normal, nil

	case "ADC":
		cf, err := b.ReadReg(decode.FlagReg("CF"), ir.U1)
		if err != nil {
			return Fail, err
		}
		r, err := b.Adc(lhs, rhs, cf)
		if err != nil {
			return Fail, err
		}
		if err := decode.WriteFlags(b, r, decode.Flags{ZF: decode.FlagUpdate, CF: decode.FlagUpdate, OF: decode.FlagUpdate, SF: decode.FlagUpdate, PF: decode.FlagUpdate, AF: decode.FlagUpdate}); err != nil {
			return Fail, err
		}
		return writeResult(e, r.Result)

	case "SBB":
		cf, err := b.ReadReg(decode.FlagReg("CF"), ir.U1)
		if err != nil {
			return Fail, err
		}
		r, err := b.Sbb(lhs, rhs, cf)
		if err != nil {
			return Fail, err
		}
		if err := decode.WriteFlags(b, r, decode.Flags{ZF: decode.FlagUpdate, CF: decode.FlagUpdate, OF: decode.FlagUpdate, SF: decode.FlagUpdate, PF: decode.FlagUpdate, AF: decode.FlagUpdate}); err != nil {
			return Fail, err
		}
		return writeResult(e, r.Result)

	default:
		return Fail, errors.Errorf("binop: unhandled mnemonic %q", op)
	}
}

func isVectorOp(op string) bool {
	return len(op) > 0 && op[0] == 'P'
}

func sameRegOperands(e *decode.Env) bool {
	a, okA := e.Inst.Args[0].(x86asm.Reg)
	b, okB := e.Inst.Args[1].(x86asm.Reg)
	return okA && okB && a == b
}

func translateZeroingXor(e *decode.Env, destTyp ir.Type) (Result, error) {
	b := e.B
	zero, err := b.ConstInt(destTyp, 0)
	if err != nil {
		return Fail, err
	}
	if err := decode.FlagsFromConstant(b, 0, destTyp.Width(), decode.Flags{
		ZF: decode.FlagUpdate, SF: decode.FlagUpdate,
	}); err != nil {
		return Fail, err
	}
	for _, name := range []string{"CF", "OF", "PF"} {
		c, err := b.ConstInt(ir.U1, 0)
		if err != nil {
			return Fail, err
		}
		if err := b.WriteReg(decode.FlagReg(name), c); err != nil {
			return Fail, err
		}
	}
	return writeResult(e, zero)
}

// logicFlags implements the logical-op flag contract: CF/OF cleared,
// ZF/SF/PF updated from the result.
func logicFlags(b *ir.Builder, r *ir.BinaryArith) error {
	return decode.WriteFlags(b, r, decode.Flags{
		ZF: decode.FlagUpdate, SF: decode.FlagUpdate, PF: decode.FlagUpdate,
		CF: decode.FlagSet0, OF: decode.FlagSet0,
	})
}

func writeResult(e *decode.Env, v *ir.Port) (Result, error) {
	if err := e.WriteOperand(0, v); err != nil {
		return Fail, err
	}
	return Normal, nil
}
