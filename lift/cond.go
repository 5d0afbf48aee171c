// Package lift implements the x86 instruction translators: one file per
// semantic group, dispatched from Translate according to the
// decoded iclass.
package lift

import (
	"github.com/pkg/errors"

	"github.com/hexlift/hexlift/decode"
	"github.com/hexlift/hexlift/ir"
)

// ComputeCond builds a u1 value for one of the sixteen x86 condition codes
// from the CPU state's flag registers, shared by cmov/setcc/jcc.
func ComputeCond(e *decode.Env, cc string) (*ir.Port, error) {
	b := e.B
	zf, err := b.ReadReg(decode.FlagReg("ZF"), ir.U1)
	if err != nil {
		return nil, err
	}
	cf, err := b.ReadReg(decode.FlagReg("CF"), ir.U1)
	if err != nil {
		return nil, err
	}
	sf, err := b.ReadReg(decode.FlagReg("SF"), ir.U1)
	if err != nil {
		return nil, err
	}
	of, err := b.ReadReg(decode.FlagReg("OF"), ir.U1)
	if err != nil {
		return nil, err
	}
	pf, err := b.ReadReg(decode.FlagReg("PF"), ir.U1)
	if err != nil {
		return nil, err
	}

	switch cc {
	case "b", "nae", "c":
		return cf, nil
	case "nb", "ae", "nc":
		return notOf(b, cf)
	case "z", "e":
		return zf, nil
	case "nz", "ne":
		return notOf(b, zf)
	case "be", "na":
		return orOf(b, cf, zf)
	case "nbe", "a":
		cfz, err := orOf(b, cf, zf)
		if err != nil {
			return nil, err
		}
		return notOf(b, cfz)
	case "s":
		return sf, nil
	case "ns":
		return notOf(b, sf)
	case "p", "pe":
		return pf, nil
	case "np", "po":
		return notOf(b, pf)
	case "o":
		return of, nil
	case "no":
		return notOf(b, of)
	case "l", "nge":
		return xorOf(b, sf, of)
	case "nl", "ge":
		x, err := xorOf(b, sf, of)
		if err != nil {
			return nil, err
		}
		return notOf(b, x)
	case "le", "ng":
		x, err := xorOf(b, sf, of)
		if err != nil {
			return nil, err
		}
		return orOf(b, zf, x)
	case "nle", "g":
		x, err := xorOf(b, sf, of)
		if err != nil {
			return nil, err
		}
		zx, err := orOf(b, zf, x)
		if err != nil {
			return nil, err
		}
		return notOf(b, zx)
	default:
		return nil, errors.Errorf("compute_cond: unrecognized condition code %q", cc)
	}
}

func notOf(b *ir.Builder, p *ir.Port) (*ir.Port, error) {
	n, err := b.Bnot(p)
	if err != nil {
		return nil, err
	}
	one, err := b.ConstInt(ir.U1, 1)
	if err != nil {
		return nil, err
	}
	masked, err := b.Band(n.Result, one)
	if err != nil {
		return nil, err
	}
	return masked.Result, nil
}

func orOf(b *ir.Builder, a, c *ir.Port) (*ir.Port, error) {
	r, err := b.Bor(a, c)
	if err != nil {
		return nil, err
	}
	return r.Result, nil
}

func xorOf(b *ir.Builder, a, c *ir.Port) (*ir.Port, error) {
	r, err := b.Bxor(a, c)
	if err != nil {
		return nil, err
	}
	return r.Result, nil
}
