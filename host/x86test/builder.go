// Package x86test provides an optional x86-64 host backend for
// self-hosted runs on x86-64 machines; no other package or test in this
// module calls it. It assembles Go-style plan9 asm text into machine code
// via the golang-asm toolchain instead of hand-rolled bit packing, since
// a test-only backend has no call-site pressure to be allocation-free.
package x86test

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
	"github.com/twitchyliquid64/golang-asm/asm/arch"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/hexlift/hexlift/host"
)

// Builder accumulates plan9-syntax instruction lines and assembles them
// into raw bytes on Assemble. It builds host.Instruction values the same
// way host/arm64 and host/riscv64 do, then renders each to text instead
// of packing bits directly.
type Builder struct {
	Instrs []*host.Instruction
	lines  []string
}

// NewBuilder returns an empty instruction builder.
func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) emit(i *host.Instruction, line string) *host.Instruction {
	b.Instrs = append(b.Instrs, i)
	b.lines = append(b.lines, line)
	return i
}

func regName(r host.RealReg) string {
	names := []string{"AX", "CX", "DX", "BX", "SP", "BP", "SI", "DI",
		"R8", "R9", "R10", "R11", "R12", "R13", "R14", "R15"}
	if int(r) < len(names) {
		return names[r]
	}
	return fmt.Sprintf("R%d", r)
}

// MoveImmediate materializes a 64-bit constant with a single MOVQ.
func (b *Builder) MoveImmediate(dst host.VReg, value uint64) *host.Instruction {
	instr := host.NewInstruction("movq").WithDef(host.RegOperand(dst)).
		WithUse(host.ImmOperand(int64(value)))
	return b.emit(instr, fmt.Sprintf("MOVQ $%d, %s", int64(value), regName(dst.RealReg())))
}

func (b *Builder) threeReg(mnemonic, plan9 string, dst, lhs, rhs host.VReg) *host.Instruction {
	instr := host.NewInstruction(mnemonic).
		WithDef(host.RegOperand(dst)).
		WithUse(host.RegOperand(lhs)).
		WithUse(host.RegOperand(rhs))
	// Two-operand destructive form: MOVQ lhs,dst ; OP rhs,dst.
	line := fmt.Sprintf("MOVQ %s, %s\n%s %s, %s",
		regName(lhs.RealReg()), regName(dst.RealReg()),
		plan9, regName(rhs.RealReg()), regName(dst.RealReg()))
	return b.emit(instr, line)
}

func (b *Builder) Add(dst, lhs, rhs host.VReg) *host.Instruction {
	return b.threeReg("add", "ADDQ", dst, lhs, rhs)
}
func (b *Builder) Sub(dst, lhs, rhs host.VReg) *host.Instruction {
	return b.threeReg("sub", "SUBQ", dst, lhs, rhs)
}
func (b *Builder) And(dst, lhs, rhs host.VReg) *host.Instruction {
	return b.threeReg("and", "ANDQ", dst, lhs, rhs)
}
func (b *Builder) Or(dst, lhs, rhs host.VReg) *host.Instruction {
	return b.threeReg("or", "ORQ", dst, lhs, rhs)
}
func (b *Builder) Xor(dst, lhs, rhs host.VReg) *host.Instruction {
	return b.threeReg("xor", "XORQ", dst, lhs, rhs)
}

// Ret emits a bare return.
func (b *Builder) Ret() *host.Instruction {
	return b.emit(host.NewInstruction("ret").MarkKeep(), "RET")
}

// Assemble lowers every emitted instruction's plan9 text to machine code
// via golang-asm's amd64 architecture parser and linker, the same
// text-in/bytes-out shape the twitchyliquid64 fork exposes for assembling
// standalone snippets.
func (b *Builder) Assemble() ([]byte, error) {
	ctxt := obj.Linknew(&x86.Linkamd64)
	ctxt.Bso = nil
	architecture := arch.Set("amd64")
	if architecture.Init == nil {
		return nil, errors.New("x86test: amd64 architecture unavailable")
	}
	architecture.Init(ctxt)

	source := bytes.NewBufferString("TEXT ·body(SB), 0, $0\n")
	for _, l := range b.lines {
		source.WriteString(l)
		source.WriteByte('\n')
	}
	source.WriteString("RET\n")

	parser := arch.NewParser(ctxt, architecture, nil)
	pList, ok := parser.Parse(source.String())
	if !ok {
		return nil, errors.New("x86test: assembly parse failed")
	}
	obj.Flushplist(ctxt, pList, nil, "")

	var out bytes.Buffer
	if err := ctxt.WriteObjFile(&out); err != nil {
		return nil, errors.Wrap(err, "x86test: write object")
	}
	return out.Bytes(), nil
}
