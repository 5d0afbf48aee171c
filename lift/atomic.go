package lift

import (
	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"

	"github.com/hexlift/hexlift/decode"
	"github.com/hexlift/hexlift/ir"
)

// hasLock reports whether the decoded instruction carries a LOCK prefix.
func hasLock(e *decode.Env) bool {
	for _, p := range e.Inst.Prefix {
		if byte(p) == 0xF0 {
			return true
		}
	}
	return false
}

// lockedBinopOp maps a lockable ALU mnemonic to its atomic RMW op.
func lockedBinopOp(mnemonic string) (ir.AtomicBinaryOp, bool) {
	switch mnemonic {
	case "ADD":
		return ir.AtomicAdd, true
	case "SUB":
		return ir.AtomicSub, true
	case "AND":
		return ir.AtomicAnd, true
	case "OR":
		return ir.AtomicOr, true
	case "XOR":
		return ir.AtomicXor, true
	default:
		return 0, false
	}
}

// maybeLockedBinop intercepts a LOCK-prefixed ALU instruction with a memory
// destination and lowers it onto an atomic RMW node instead of the plain
// read-modify-write sequence translateBinop would emit. handled=false means
// the caller should translate normally.
func maybeLockedBinop(e *decode.Env) (Result, bool, error) {
	if !hasLock(e) {
		return Normal, false, nil
	}
	if _, isMem := e.Inst.Args[0].(x86asm.Mem); !isMem {
		return Normal, false, nil
	}
	op, ok := lockedBinopOp(e.Inst.Op.String())
	if !ok {
		return Normal, false, nil
	}
	res, err := translateLockedBinop(e, op)
	return res, true, err
}

// translateLockedBinop emits the atomic node, then recomputes the stored
// value as a pure node over the observed prior value so the usual flag
// dispositions still apply: LOCK ADD and friends update flags exactly like
// their plain forms.
func translateLockedBinop(e *decode.Env, op ir.AtomicBinaryOp) (Result, error) {
	b := e.B
	destTyp := e.OperandType(0)
	addr, err := e.EffectiveAddress(0)
	if err != nil {
		return Fail, err
	}
	operand, err := e.ReadOperand(1, destTyp)
	if err != nil {
		return Fail, err
	}
	prior, err := b.AtomicBinaryRMW(op, addr, operand)
	if err != nil {
		return Fail, err
	}

	var r *ir.BinaryArith
	switch op {
	case ir.AtomicAdd:
		r, err = b.Add(prior, operand)
	case ir.AtomicSub:
		r, err = b.Sub(prior, operand)
	case ir.AtomicAnd:
		r, err = b.Band(prior, operand)
	case ir.AtomicOr:
		r, err = b.Bor(prior, operand)
	case ir.AtomicXor:
		r, err = b.Bxor(prior, operand)
	default:
		return Fail, errors.Errorf("atomic: %v is not a lockable ALU op", op)
	}
	if err != nil {
		return Fail, err
	}
	switch op {
	case ir.AtomicAdd, ir.AtomicSub:
		err = decode.WriteFlags(b, r, decode.Flags{
			ZF: decode.FlagUpdate, CF: decode.FlagUpdate, OF: decode.FlagUpdate,
			SF: decode.FlagUpdate, PF: decode.FlagUpdate, AF: decode.FlagUpdate,
		})
	default:
		err = logicFlags(b, r)
	}
	if err != nil {
		return Fail, err
	}
	return Normal, nil
}

// translateAtomic handles the LOCK group: CMPXCHG/XADD/XCHG lower
// directly onto the IR's atomic RMW nodes rather than being expressed as
// separate load/compute/store actions, preserving the single-instruction
// atomicity the guest program depends on.
func translateAtomic(e *decode.Env) (Result, error) {
	b := e.B
	destTyp := e.OperandType(0)

	switch e.Inst.Op.String() {
	case "XCHG":
		addr, v, err := atomicMemAndOperand(e, destTyp)
		if err != nil {
			return Fail, err
		}
		prior, err := b.AtomicBinaryRMW(ir.AtomicXchg, addr, v)
		if err != nil {
			return Fail, err
		}
		return writeResult(e, prior)

	case "XADD":
		addr, v, err := atomicMemAndOperand(e, destTyp)
		if err != nil {
			return Fail, err
		}
		prior, err := b.AtomicBinaryRMW(ir.AtomicXadd, addr, v)
		if err != nil {
			return Fail, err
		}
		// XADD also writes the pre-add value back into the source operand.
		if err := e.WriteOperand(1, prior); err != nil {
			return Fail, err
		}
		return Normal, nil

	case "CMPXCHG":
		addr, err := e.EffectiveAddress(0)
		if err != nil {
			addr = nil
		}
		if addr == nil {
			// Register-destination form: fall back to a plain read-compare-write
			// sequence since there is no memory address to operate on.
			return translateCmpxchgReg(e, destTyp)
		}
		expected, err := b.ReadReg(decode.Reg64("RAX"), destTyp)
		if err != nil {
			return Fail, err
		}
		newVal, err := e.ReadOperand(1, destTyp)
		if err != nil {
			return Fail, err
		}
		result, err := b.AtomicCompareExchange(addr, expected, newVal)
		if err != nil {
			return Fail, err
		}
		if err := b.WriteReg(decode.Reg64("RAX"), result.Result); err != nil {
			return Fail, err
		}
		if err := decode.WriteFlags(b, result, decode.Flags{ZF: decode.FlagUpdate}); err != nil {
			return Fail, err
		}
		return Normal, nil

	default:
		return Fail, errors.Errorf("atomic: unhandled mnemonic %q", e.Inst.Op.String())
	}
}

func atomicMemAndOperand(e *decode.Env, typ ir.Type) (*ir.Port, *ir.Port, error) {
	addr, err := e.EffectiveAddress(0)
	if err != nil {
		return nil, nil, err
	}
	v, err := e.ReadOperand(1, typ)
	if err != nil {
		return nil, nil, err
	}
	return addr, v, nil
}

// translateCmpxchgReg handles the (rare, decoder-legal but not guest-emitted
// by a W^X-safe compiler) register-destination CMPXCHG form as a plain
// compare-and-select, since there is no memory location for an atomic RMW.
func translateCmpxchgReg(e *decode.Env, typ ir.Type) (Result, error) {
	b := e.B
	cur, err := e.ReadOperand(0, typ)
	if err != nil {
		return Fail, err
	}
	acc, err := b.ReadReg(decode.Reg64("RAX"), typ)
	if err != nil {
		return Fail, err
	}
	eq, err := b.CmpEq(acc, cur)
	if err != nil {
		return Fail, err
	}
	if err := b.WriteReg(decode.FlagReg("ZF"), eq.Result); err != nil {
		return Fail, err
	}
	src, err := e.ReadOperand(1, typ)
	if err != nil {
		return Fail, err
	}
	sel, err := b.CSelect(eq.Result, src, cur)
	if err != nil {
		return Fail, err
	}
	if err := e.WriteOperand(0, sel.Result); err != nil {
		return Fail, err
	}
	selAcc, err := b.CSelect(eq.Result, acc, cur)
	if err != nil {
		return Fail, err
	}
	return Normal, b.WriteReg(decode.Reg64("RAX"), selAcc.Result)
}
