package lift

import (
	"github.com/hexlift/hexlift/decode"
)

// Result is returned by Translate and by every per-category translator.
type Result uint8

const (
	Normal Result = iota
	EndOfBlock
	Noop
	Fail
)

// Translator lowers one decoded instruction's semantics into IR actions
// against e.B (which already has a packet open).
type Translator func(e *decode.Env) (Result, error)

var noopOps = map[string]bool{
	"NOP": true, "HLT": true, "CPUID": true, "PAUSE": true, "PREFETCHNTA": true,
	"FNOP": true, "ENDBR64": true,
}

// category maps an opcode mnemonic to the translator responsible for it.
// Mnemonics are matched on x86asm.Op.String() rather than on the package's
// Op constants so that category membership reads as a flat table instead of
// sixteen near-identical switch statements.
var category = buildCategoryTable()

func buildCategoryTable() map[string]Translator {
	t := make(map[string]Translator)
	reg := func(names []string, fn Translator) {
		for _, n := range names {
			t[n] = fn
		}
	}
	reg([]string{"MOV", "MOVZX", "MOVSX", "MOVSXD", "LEA", "CQO", "CDQ", "MOVUPS", "MOVAPS", "MOVHPS", "MOVQ", "MOVD"}, translateMov)
	reg([]string{"ADD", "SUB", "AND", "OR", "XOR", "CMP", "TEST", "ADC", "SBB",
		"PAND", "POR", "PXOR", "PADDB", "PADDW", "PADDD", "PADDQ", "PSUBB", "PSUBW", "PSUBD", "PSUBQ"}, translateBinop)
	reg([]string{"INC", "DEC", "NEG", "NOT"}, translateUnop)
	reg([]string{"SHL", "SAL", "SHR", "SAR"}, translateShift)
	reg([]string{"IMUL", "MUL", "DIV", "IDIV"}, translateMulDiv)
	reg(jccMnemonics(), translateJcc)
	reg(setccMnemonics(), translateSetcc)
	reg(cmovMnemonics(), translateCmov)
	reg([]string{"PUSH", "POP", "CALL", "RET", "LEAVE"}, translateStack)
	reg([]string{"CMPSB", "MOVSB", "STOSB", "SCASB"}, translateRep)
	reg([]string{"CMPXCHG", "XADD", "XCHG"}, translateAtomic)
	reg([]string{"PSHUFD", "PSHUFB"}, translateShuffle)
	reg([]string{"PUNPCKLBW", "PUNPCKLWD", "PUNPCKLDQ", "PUNPCKLQDQ", "PUNPCKHBW", "PUNPCKHWD", "PUNPCKHDQ"}, translatePunpck)
	reg([]string{"ADDSS", "ADDSD", "SUBSS", "SUBSD", "MULSS", "MULSD", "DIVSS", "DIVSD",
		"CVTSI2SS", "CVTSI2SD", "CVTSS2SI", "CVTSD2SI", "CVTSS2SD", "CVTSD2SS"}, translateFpvec)
	reg([]string{"JMP"}, translateBranch)
	return t
}

func jccMnemonics() []string {
	return []string{
		"JA", "JAE", "JB", "JBE", "JE", "JG", "JGE", "JL", "JLE", "JNE",
		"JNO", "JNP", "JNS", "JO", "JP", "JS", "JCXZ", "JECXZ", "JRCXZ",
	}
}

func setccMnemonics() []string {
	return []string{
		"SETA", "SETAE", "SETB", "SETBE", "SETE", "SETG", "SETGE", "SETL",
		"SETLE", "SETNE", "SETNO", "SETNP", "SETNS", "SETO", "SETP", "SETS",
	}
}

func cmovMnemonics() []string {
	return []string{
		"CMOVA", "CMOVAE", "CMOVB", "CMOVBE", "CMOVE", "CMOVG", "CMOVGE",
		"CMOVL", "CMOVLE", "CMOVNE", "CMOVNO", "CMOVNP", "CMOVNS", "CMOVO", "CMOVP", "CMOVS",
	}
}

// Translate dispatches one decoded instruction to its category translator.
// It is the single entry point the Dynamic Translation Context calls once
// per packet.
func Translate(e *decode.Env) (Result, error) {
	op := e.Inst.Op.String()
	if noopOps[op] {
		return Noop, nil
	}
	if fn, ok := category[op]; ok {
		return fn(e)
	}
	return translateUnimplemented(e)
}

// condSuffix extracts the condition-code suffix from a Jcc/SETcc/CMOVcc
// mnemonic, lower-cased to match ComputeCond's table (e.g. "JNE" -> "ne").
func condSuffix(op string, prefix string) string {
	suffix := op[len(prefix):]
	out := make([]byte, len(suffix))
	for i, c := range []byte(suffix) {
		if c >= 'A' && c <= 'Z' {
			c = c - 'A' + 'a'
		}
		out[i] = c
	}
	return string(out)
}
