// Package riscv64 implements the RISC-V 64 instruction builder, mirroring
// host/arm64's shape for a second host ISA.
package riscv64

import "github.com/hexlift/hexlift/host"

// X0..X31 name the integer registers; X0 is hard-wired to zero, X2 is the
// stack pointer by the standard calling convention, X1 is the return
// address register.
const (
	X0 host.RealReg = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16
	X17
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	X29
	X30
	X31
)

// F0..F31 name the floating-point registers.
const (
	F0 host.RealReg = iota + 100
	F1
	F2
	F3
	F4
	F5
	F6
	F7
	F8
	F9
	F10
	F11
	F12
	F13
	F14
	F15
	F16
	F17
	F18
	F19
	F20
	F21
	F22
	F23
	F24
	F25
	F26
	F27
	F28
	F29
	F30
	F31
)

// Config returns the host.Config for RISC-V 64: X2 is the stack pointer,
// X8 (s0/fp) holds the CPU-state base pointer by this translator's
// convention, X1 is the return-address register, and X0 is the hard-wired
// zero register excluded from allocation alongside X1/X2/X8.
func Config() host.Config {
	ints := make([]host.RealReg, 0, 28)
	reserved := map[host.RealReg]bool{X0: true, X1: true, X2: true, X8: true}
	for r := X0; r <= X31; r++ {
		if reserved[r] {
			continue
		}
		ints = append(ints, r)
	}
	floats := make([]host.RealReg, 0, 32)
	for r := F0; r <= F31; r++ {
		floats = append(floats, r)
	}
	return host.Config{
		IntRegs:   ints,
		FloatRegs: floats,
		SP:        X2,
		FP:        X8,
		LR:        X1,
		Zero:      X0,
	}
}

// ZeroVReg returns a pre-colored vreg naming the hard-wired zero register.
func ZeroVReg() host.VReg { return host.NewVReg(0, host.ClassInt).WithRealReg(X0) }

// StateVReg returns a pre-colored vreg naming the CPU-state base pointer
// (s0/X8 in this translator's convention).
func StateVReg() host.VReg { return host.NewVReg(0, host.ClassInt).WithRealReg(X8) }

// LRVReg returns a pre-colored vreg naming the return-address register.
func LRVReg() host.VReg { return host.NewVReg(0, host.ClassInt).WithRealReg(X1) }
