package lift

import (
	"github.com/pkg/errors"

	"github.com/hexlift/hexlift/decode"
	"github.com/hexlift/hexlift/ir"
)

// translateStack handles the stack group: PUSH/POP adjust RSP by the
// operand width and read/write through it; CALL pushes the return address
// before transferring control; RET pops the return address; LEAVE restores
// RSP/RBP against the frame pointer convention.
func translateStack(e *decode.Env) (Result, error) {
	b := e.B
	switch e.Inst.Op.String() {
	case "PUSH":
		typ := e.OperandType(0)
		v, err := e.ReadOperand(0, typ)
		if err != nil {
			return Fail, err
		}
		if err := pushValue(b, v, typ); err != nil {
			return Fail, err
		}
		return Normal, nil

	case "POP":
		typ := e.OperandType(0)
		v, err := popValue(b, typ)
		if err != nil {
			return Fail, err
		}
		if err := e.WriteOperand(0, v); err != nil {
			return Fail, err
		}
		return Normal, nil

	case "CALL":
		target, err := e.ReadOperand(0, ir.U64)
		if err != nil {
			return Fail, err
		}
		ret, err := b.ConstU64(e.NextAddr())
		if err != nil {
			return Fail, err
		}
		if err := pushValue(b, ret, ir.U64); err != nil {
			return Fail, err
		}
		if err := b.WritePC(target, ir.BrNormal); err != nil {
			return Fail, err
		}
		return EndOfBlock, nil

	case "RET":
		target, err := popValue(b, ir.U64)
		if err != nil {
			return Fail, err
		}
		if err := b.WritePC(target, ir.BrNormal); err != nil {
			return Fail, err
		}
		return EndOfBlock, nil

	case "LEAVE":
		rbp, err := b.ReadReg(decode.Reg64("RBP"), ir.U64)
		if err != nil {
			return Fail, err
		}
		if err := b.WriteReg(decode.Reg64("RSP"), rbp); err != nil {
			return Fail, err
		}
		savedRBP, err := popValue(b, ir.U64)
		if err != nil {
			return Fail, err
		}
		if err := b.WriteReg(decode.Reg64("RBP"), savedRBP); err != nil {
			return Fail, err
		}
		return Normal, nil

	default:
		return Fail, errors.Errorf("stack: unhandled mnemonic %q", e.Inst.Op.String())
	}
}

func pushValue(b *ir.Builder, v *ir.Port, typ ir.Type) error {
	rsp, err := b.ReadReg(decode.Reg64("RSP"), ir.U64)
	if err != nil {
		return err
	}
	size := uint64(typ.Width() / 8)
	sizeConst, err := b.ConstU64(size)
	if err != nil {
		return err
	}
	newRsp, err := b.Sub(rsp, sizeConst)
	if err != nil {
		return err
	}
	if err := b.WriteReg(decode.Reg64("RSP"), newRsp.Result); err != nil {
		return err
	}
	return b.WriteMem(newRsp.Result, v)
}

func popValue(b *ir.Builder, typ ir.Type) (*ir.Port, error) {
	rsp, err := b.ReadReg(decode.Reg64("RSP"), ir.U64)
	if err != nil {
		return nil, err
	}
	v, err := b.ReadMem(rsp, typ)
	if err != nil {
		return nil, err
	}
	size := uint64(typ.Width() / 8)
	sizeConst, err := b.ConstU64(size)
	if err != nil {
		return nil, err
	}
	newRsp, err := b.Add(rsp, sizeConst)
	if err != nil {
		return nil, err
	}
	if err := b.WriteReg(decode.Reg64("RSP"), newRsp.Result); err != nil {
		return nil, err
	}
	return v, nil
}
