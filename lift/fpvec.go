package lift

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/hexlift/hexlift/decode"
	"github.com/hexlift/hexlift/ir"
)

// translateFpvec handles scalar SSE math and conversions: the arithmetic
// operates on lane 0 of the 128-bit XMM register, read out and written back
// via vector_extract/vector_insert; the CVT* family casts between the
// integer and floating-point classes via the convert cast kind.
func translateFpvec(e *decode.Env) (Result, error) {
	b := e.B
	op := e.Inst.Op.String()

	if strings.HasPrefix(op, "CVT") {
		return translateConvert(e, op)
	}

	scalarTyp := ir.F32
	if strings.HasSuffix(op, "SD") {
		scalarTyp = ir.F64
	}
	vecTyp, err := ir.Vector(scalarTyp, 128/scalarTyp.Width())
	if err != nil {
		return Fail, err
	}

	dstVec, err := e.ReadOperand(0, vecTyp)
	if err != nil {
		return Fail, err
	}
	srcVec, err := e.ReadOperand(1, vecTyp)
	if err != nil {
		return Fail, err
	}
	lhs, err := b.VecExtract(dstVec, 0)
	if err != nil {
		return Fail, err
	}
	rhs, err := b.VecExtract(srcVec, 0)
	if err != nil {
		return Fail, err
	}

	var r *ir.BinaryArith
	switch {
	case strings.HasPrefix(op, "ADD"):
		r, err = b.Add(lhs, rhs)
	case strings.HasPrefix(op, "SUB"):
		r, err = b.Sub(lhs, rhs)
	case strings.HasPrefix(op, "MUL"):
		r, err = b.Mul(lhs, rhs)
	case strings.HasPrefix(op, "DIV"):
		r, err = b.Div(lhs, rhs)
	default:
		return Fail, errors.Errorf("fpvec: unhandled mnemonic %q", op)
	}
	if err != nil {
		return Fail, err
	}

	out, err := b.VecInsert(dstVec, 0, r.Result)
	if err != nil {
		return Fail, err
	}
	return writeResult(e, out)
}

func translateConvert(e *decode.Env, op string) (Result, error) {
	b := e.B
	switch op {
	case "CVTSI2SS", "CVTSI2SD":
		outScalar := ir.F32
		if op == "CVTSI2SD" {
			outScalar = ir.F64
		}
		src, err := e.ReadOperand(1, ir.S32)
		if err != nil {
			return Fail, err
		}
		converted, err := b.Convert(src, outScalar, ir.RoundNearest)
		if err != nil {
			return Fail, err
		}
		vecTyp, err := ir.Vector(outScalar, 128/outScalar.Width())
		if err != nil {
			return Fail, err
		}
		dstVec, err := e.ReadOperand(0, vecTyp)
		if err != nil {
			return Fail, err
		}
		out, err := b.VecInsert(dstVec, 0, converted)
		if err != nil {
			return Fail, err
		}
		return writeResult(e, out)

	case "CVTSS2SI", "CVTSD2SI":
		inScalar := ir.F32
		if op == "CVTSD2SI" {
			inScalar = ir.F64
		}
		vecTyp, err := ir.Vector(inScalar, 128/inScalar.Width())
		if err != nil {
			return Fail, err
		}
		srcVec, err := e.ReadOperand(1, vecTyp)
		if err != nil {
			return Fail, err
		}
		lane, err := b.VecExtract(srcVec, 0)
		if err != nil {
			return Fail, err
		}
		converted, err := b.Convert(lane, ir.S32, ir.RoundNearest)
		if err != nil {
			return Fail, err
		}
		if err := e.WriteOperand(0, converted); err != nil {
			return Fail, err
		}
		return Normal, nil

	case "CVTSS2SD", "CVTSD2SS":
		inScalar, outScalar := ir.F32, ir.F64
		if op == "CVTSD2SS" {
			inScalar, outScalar = ir.F64, ir.F32
		}
		inVec, err := ir.Vector(inScalar, 128/inScalar.Width())
		if err != nil {
			return Fail, err
		}
		outVec, err := ir.Vector(outScalar, 128/outScalar.Width())
		if err != nil {
			return Fail, err
		}
		srcVec, err := e.ReadOperand(1, inVec)
		if err != nil {
			return Fail, err
		}
		lane, err := b.VecExtract(srcVec, 0)
		if err != nil {
			return Fail, err
		}
		converted, err := b.Convert(lane, outScalar, ir.RoundNearest)
		if err != nil {
			return Fail, err
		}
		dstVec, err := e.ReadOperand(0, outVec)
		if err != nil {
			return Fail, err
		}
		out, err := b.VecInsert(dstVec, 0, converted)
		if err != nil {
			return Fail, err
		}
		return writeResult(e, out)

	default:
		return Fail, errors.Errorf("fpvec: unhandled convert mnemonic %q", op)
	}
}
