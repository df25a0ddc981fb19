// mme_interpreter.go - Reference MME interpreter

/*
 ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████
▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀
▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███
░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄
░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒
░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░
 ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░
 ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░
 ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░

(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionEngine
License: GPLv3 or later
*/

/*
mme_interpreter.go - Macro Interpreter Backend

Executes uploaded macro code one instruction at a time. This is the
reference backend: the JIT must be indistinguishable from it, and the engine
falls back to it whenever native compilation is unavailable.

Execution model:
  - Registers, carry, method address and the delay-slot latch are reset on
    every call. r1 receives the first parameter and the fetch cursor starts
    at the second.
  - A taken branch without annul executes the following word (its delay
    slot) before control transfers. With annul the slot is skipped.
  - An exit flag outside a delay slot also executes the following word
    before the macro stops, unless the exit is the last word. Inside a
    delay slot the flag is ignored.
  - Every fetch past the program, branch inside a delay slot, parameter
    overrun, unused operation and left-over parameter at exit returns a
    *MacroFault. Sends already issued stay issued.
*/

package main

import "slices"

// MacroInterpreter is the interpreting backend.
type MacroInterpreter struct {
	host MacroHost
}

func NewMacroInterpreter(host MacroHost) *MacroInterpreter {
	return &MacroInterpreter{host: host}
}

func (m *MacroInterpreter) Name() string { return "interpreter" }

// Compile binds the code to a fresh program. Nothing is validated here;
// malformed words fault when they are executed.
func (m *MacroInterpreter) Compile(code []uint32) (CachedMacro, error) {
	return &macroInterpreterProgram{host: m.host, code: slices.Clone(code)}, nil
}

type macroInterpreterProgram struct {
	host MacroHost
	code []uint32

	pc           int
	delayedPC    int
	hasDelayedPC bool

	registers     [MME_NUM_REGISTERS]uint32
	methodAddress MacroMethodAddress
	carry         bool

	params    []uint32
	nextParam int
	method    uint32
	exitPC    int
}

func (p *macroInterpreterProgram) reset() {
	p.registers = [MME_NUM_REGISTERS]uint32{}
	p.pc = 0
	p.delayedPC = 0
	p.hasDelayedPC = false
	p.methodAddress = 0
	p.carry = false
	p.params = p.params[:0]
	p.nextParam = 1
	p.exitPC = 0
}

func (p *macroInterpreterProgram) Execute(parameters []uint32, method uint32) error {
	p.reset()
	p.method = method
	if len(parameters) == 0 {
		return newMacroFault(method, 0, 0, ErrMacroNoParameters)
	}
	p.params = append(p.params, parameters...)
	p.registers[MME_PARAM_REGISTER] = p.params[0]

	for {
		running, err := p.step(false)
		if err != nil {
			return err
		}
		if !running {
			break
		}
	}

	if p.nextParam != len(p.params) {
		return newMacroFault(method, uint32(p.exitPC), uint32(p.code[p.exitPC]), ErrMacroParameterMismatch)
	}
	return nil
}

// Registers returns the register file as left by the last Execute.
func (p *macroInterpreterProgram) Registers() [MME_NUM_REGISTERS]uint32 { return p.registers }

func (p *macroInterpreterProgram) CarryFlag() bool { return p.carry }

func (p *macroInterpreterProgram) MethodAddress() MacroMethodAddress { return p.methodAddress }

func (p *macroInterpreterProgram) fault(pc int, word uint32, err error) error {
	return newMacroFault(p.method, uint32(pc), word, err)
}

func (p *macroInterpreterProgram) step(isDelaySlot bool) (bool, error) {
	base := p.pc
	if base < 0 || base >= len(p.code) {
		return false, p.fault(base, 0, ErrMacroPCOutOfRange)
	}
	word := p.code[base]
	op := MacroOpcode(word)
	p.pc++

	if p.hasDelayedPC {
		p.pc = p.delayedPC
		p.hasDelayedPC = false
	}

	switch op.Operation() {
	case MacroOpALU:
		result, err := p.aluResult(op.ALUOperation(), p.reg(op.SrcA()), p.reg(op.SrcB()))
		if err != nil {
			return false, p.fault(base, word, err)
		}
		if err := p.processResult(op.ResultOperation(), op.Dst(), result); err != nil {
			return false, p.fault(base, word, err)
		}

	case MacroOpAddImmediate:
		result := p.reg(op.SrcA()) + uint32(op.Immediate())
		if err := p.processResult(op.ResultOperation(), op.Dst(), result); err != nil {
			return false, p.fault(base, word, err)
		}

	case MacroOpExtractInsert:
		dst := p.reg(op.SrcA())
		src := (p.reg(op.SrcB()) >> op.BfSrcBit()) & op.BitfieldMask()
		dst &^= op.BitfieldMask() << op.BfDstBit()
		dst |= src << op.BfDstBit()
		if err := p.processResult(op.ResultOperation(), op.Dst(), dst); err != nil {
			return false, p.fault(base, word, err)
		}

	case MacroOpExtractShiftLeftImmediate:
		shift := p.reg(op.SrcA()) & 31
		result := ((p.reg(op.SrcB()) >> shift) & op.BitfieldMask()) << op.BfDstBit()
		if err := p.processResult(op.ResultOperation(), op.Dst(), result); err != nil {
			return false, p.fault(base, word, err)
		}

	case MacroOpExtractShiftLeftRegister:
		shift := p.reg(op.SrcA()) & 31
		result := ((p.reg(op.SrcB()) >> op.BfSrcBit()) & op.BitfieldMask()) << shift
		if err := p.processResult(op.ResultOperation(), op.Dst(), result); err != nil {
			return false, p.fault(base, word, err)
		}

	case MacroOpRead:
		result := p.host.GetRegisterValue(p.reg(op.SrcA()) + uint32(op.Immediate()))
		if err := p.processResult(op.ResultOperation(), op.Dst(), result); err != nil {
			return false, p.fault(base, word, err)
		}

	case MacroOpBranch:
		if isDelaySlot {
			return false, p.fault(base, word, ErrMacroBranchInDelaySlot)
		}
		value := p.reg(op.SrcA())
		taken := value == 0
		if op.BranchCondition() == MacroBranchNotZero {
			taken = !taken
		}
		if taken {
			target := base + int(op.BranchTarget())
			if op.BranchAnnul() {
				p.pc = target
				return true, nil
			}
			p.delayedPC = target
			p.hasDelayedPC = true
			return p.step(true)
		}

	default:
		return false, p.fault(base, word, ErrMacroUnsupportedOperation)
	}

	if op.IsExit() && !isDelaySlot {
		p.exitPC = base
		if p.pc == len(p.code) {
			// exit on the last word has no delay slot to run
			return false, nil
		}
		if _, err := p.step(true); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (p *macroInterpreterProgram) aluResult(alu MacroALUOperation, a, b uint32) (uint32, error) {
	switch alu {
	case MacroALUAdd:
		r := uint64(a) + uint64(b)
		p.carry = r > 0xFFFFFFFF
		return uint32(r), nil
	case MacroALUAddWithCarry:
		r := uint64(a) + uint64(b)
		if p.carry {
			r++
		}
		p.carry = r > 0xFFFFFFFF
		return uint32(r), nil
	case MacroALUSubtract:
		r := uint64(a) - uint64(b)
		p.carry = r < 0x100000000
		return uint32(r), nil
	case MacroALUSubtractWithBorrow:
		r := uint64(a) - uint64(b)
		if !p.carry {
			r--
		}
		p.carry = r < 0x100000000
		return uint32(r), nil
	case MacroALUXor:
		return a ^ b, nil
	case MacroALUOr:
		return a | b, nil
	case MacroALUAnd:
		return a & b, nil
	case MacroALUAndNot:
		return a &^ b, nil
	case MacroALUNand:
		return ^(a & b), nil
	}
	return 0, ErrMacroUnsupportedOperation
}

func (p *macroInterpreterProgram) processResult(op MacroResultOperation, reg, result uint32) error {
	switch op {
	case MacroResultIgnoreAndFetch:
		v, err := p.fetchParameter()
		if err != nil {
			return err
		}
		p.setReg(reg, v)
	case MacroResultMove:
		p.setReg(reg, result)
	case MacroResultMoveAndSetMethod:
		p.setReg(reg, result)
		p.methodAddress = MacroMethodAddress(result)
	case MacroResultFetchAndSend:
		v, err := p.fetchParameter()
		if err != nil {
			return err
		}
		p.setReg(reg, v)
		p.send(result)
	case MacroResultMoveAndSend:
		p.setReg(reg, result)
		p.send(result)
	case MacroResultFetchAndSetMethod:
		v, err := p.fetchParameter()
		if err != nil {
			return err
		}
		p.setReg(reg, v)
		p.methodAddress = MacroMethodAddress(result)
	case MacroResultMoveAndSetMethodFetchAndSend:
		p.setReg(reg, result)
		p.methodAddress = MacroMethodAddress(result)
		v, err := p.fetchParameter()
		if err != nil {
			return err
		}
		p.send(v)
	case MacroResultMoveAndSetMethodSend:
		p.setReg(reg, result)
		p.methodAddress = MacroMethodAddress(result)
		p.send((result >> MME_METHOD_INCREMENT_SHIFT) & MME_METHOD_INCREMENT_MASK)
	}
	return nil
}

func (p *macroInterpreterProgram) reg(r uint32) uint32 {
	return p.registers[r]
}

// setReg drops writes to r0.
func (p *macroInterpreterProgram) setReg(r, v uint32) {
	if r == MME_ZERO_REGISTER {
		return
	}
	p.registers[r] = v
}

func (p *macroInterpreterProgram) send(value uint32) {
	p.host.CallMethod(p.methodAddress.Address(), value, true)
	p.methodAddress = p.methodAddress.Advance()
}

func (p *macroInterpreterProgram) fetchParameter() (uint32, error) {
	if p.nextParam >= len(p.params) {
		return 0, ErrMacroParameterOverrun
	}
	v := p.params[p.nextParam]
	p.nextParam++
	return v, nil
}
