// Package compiler implements the single-pass Pratt parser/compiler: it
// scans Lox source with package scanner and emits bytecode directly into a
// value.Function's value.Chunk, with no intermediate AST.
//
// The program-level/function-level state split (Compiler holds the scanner
// and diagnostics; funcState holds one nested function's locals and
// upvalues, linked to its enclosing funcState) is adapted from
// lang/compiler/compiler.go's pcomp/fcomp split in the teacher repo, and
// upvalue resolution (funcState.resolveUpvalue) mirrors the walk
// lang/resolver/resolver.go performs over its env/block chain to turn a free
// variable reference into a Cell.
package compiler

import (
	"fmt"
	gotoken "go/token"

	"github.com/mna/loxvm/lang/scanerr"
	"github.com/mna/loxvm/lang/scanner"
	"github.com/mna/loxvm/lang/token"
	"github.com/mna/loxvm/lang/value"
	"golang.org/x/exp/slices"
)

// funcType distinguishes the kind of function currently being compiled, the
// way clox's FunctionType enum does: it changes how slot 0 is named and
// whether a bare `return` is legal/implicit.
type funcType uint8

const (
	funcTypeFunction funcType = iota
	funcTypeInitializer
	funcTypeMethod
	funcTypeScript
)

// local is one entry of a funcState's bounded local-variable stack.
type local struct {
	name       string
	depth      int // -1 means "declared but not yet initialized"
	isCaptured bool
}

// loopState tracks the bookkeeping needed to compile break inside one loop:
// the list of `break` jump operands still waiting to be patched to the
// loop's exit.
type loopState struct {
	breakJumps []int
	scopeDepth int
}

// funcState holds the compiler state for one function body being compiled:
// its in-progress Function/Chunk, its locals, its resolved upvalues, and a
// stack of enclosing loops for break. It is linked to the function state of
// the lexically enclosing function via enclosing, forming the same shape as
// the teacher's fcomp chain.
type funcState struct {
	enclosing *funcState

	fn       *value.Function
	fnType   funcType
	locals   []local
	upvalues []value.UpvalueDesc

	scopeDepth int
	loops      []loopState
}

func (fs *funcState) currentChunk() *value.Chunk { return &fs.fn.Chunk }

// classCompiler tracks compiler state while inside a `class ... { }` body:
// whether it has a superclass (which makes `super` valid), linked to any
// lexically enclosing class the way the teacher threads a ClassCompiler
// stack through nested class bodies.
type classCompiler struct {
	enclosing     *classCompiler
	hasSuperclass bool
}

// Compiler drives the single-pass compile of one source chunk: the scanner,
// the current/previous token pair, panic-mode error recovery state, and the
// chain of funcState/classCompiler currently open.
type Compiler struct {
	scanner  scanner.Scanner
	current  scanner.Token
	previous scanner.Token

	panicMode bool
	hadError  bool
	errs      scanerr.List

	// strings is the shared intern table: every identifier and string
	// literal constant is looked up or inserted here so that identical
	// lexemes compile to the same *value.ObjString instance, which is what
	// lets the VM key its globals map and every instance's field table by
	// string identity.
	strings *value.Table

	fs    *funcState
	class *classCompiler

	chunkName string
}

// Compile compiles source into a top-level value.Function (a "script"
// function of arity 0) ready to be wrapped in a closure and run by the VM.
// strings is the VM's intern table; Compile looks up and inserts into it so
// that names compiled here compare equal, by identity, to names the VM
// interns at runtime (e.g. via string concatenation).
//
// On any reported error, Compile returns a nil function and a non-nil error
// whose concrete type is scanerr.List (spec section 4.2: "A compilation
// with any error reported returns CompileError and no function").
func Compile(source, chunkName string, strings *value.Table) (*value.Function, error) {
	var c Compiler
	c.chunkName = chunkName
	c.strings = strings
	c.scanner.Init(source)

	c.fs = &funcState{fnType: funcTypeScript, fn: &value.Function{}}
	c.fs.locals = append(c.fs.locals, local{name: "", depth: 0})

	c.advance()
	for !c.match(token.EOF) {
		c.declaration()
	}

	fn, _ := c.endCompiler()
	if c.hadError {
		return nil, c.errs.Err()
	}
	return fn, nil
}

// --- token stream -----------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.scanner.Next()
		if c.current.Kind != token.ILLEGAL {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(kind token.Token) bool { return c.current.Kind == kind }

func (c *Compiler) match(kind token.Token) bool {
	if !c.check(kind) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(kind token.Token, msg string) {
	if c.current.Kind == kind {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

// --- diagnostics --------------------------------------------------------

func (c *Compiler) errorAtCurrent(msg string) { c.errorAt(c.current, msg) }
func (c *Compiler) error(msg string)          { c.errorAt(c.previous, msg) }

func (c *Compiler) errorAt(tok scanner.Token, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true

	var full string
	switch tok.Kind {
	case token.ILLEGAL:
		full = fmt.Sprintf("[line %d] Error: %s", tok.Line, msg)
	case token.EOF:
		full = fmt.Sprintf("[line %d] Error at end: %s", tok.Line, msg)
	default:
		full = fmt.Sprintf("[line %d] Error at '%s': %s", tok.Line, tok.Lexeme, msg)
	}
	c.errs.Add(gotoken.Position{Filename: c.chunkName, Line: tok.Line}, full)
}

// synchronize discards tokens until a likely statement boundary, per spec
// section 4.2's panic-mode recovery rule.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Kind != token.EOF {
		if c.previous.Kind == token.SEMI {
			return
		}
		switch c.current.Kind {
		case token.CLASS, token.FUN, token.VAR, token.FOR, token.IF, token.WHILE, token.PRINT, token.RETURN:
			return
		}
		c.advance()
	}
}

// --- emission -----------------------------------------------------------

func (c *Compiler) emitByte(b byte)        { c.fs.currentChunk().Write(b, c.previous.Line) }
func (c *Compiler) emitOp(op value.Opcode) { c.fs.currentChunk().WriteOp(op, c.previous.Line) }

func (c *Compiler) emitOpByte(op value.Opcode, b byte) {
	c.emitOp(op)
	c.emitByte(b)
}

func (c *Compiler) emitReturn() {
	if c.fs.fnType == funcTypeInitializer {
		c.emitOpByte(value.OpGetLocal, 0)
	} else {
		c.emitOp(value.OpNil)
	}
	c.emitOp(value.OpReturn)
}

func (c *Compiler) makeConstant(v value.Value) byte {
	idx := c.fs.currentChunk().AddConstant(v)
	if idx > 255 {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitOpByte(value.OpConstant, c.makeConstant(v))
}

// emitJump emits op followed by a placeholder 16-bit operand and returns the
// offset of the placeholder's first byte, to be patched later by patchJump.
func (c *Compiler) emitJump(op value.Opcode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.fs.currentChunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.fs.currentChunk().Code) - offset - 2
	if jump > 65535 {
		c.error("Too much code to jump over.")
		return
	}
	code := c.fs.currentChunk().Code
	code[offset] = byte((jump >> 8) & 0xff)
	code[offset+1] = byte(jump & 0xff)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(value.OpLoop)
	offset := len(c.fs.currentChunk().Code) - loopStart + 2
	if offset > 65535 {
		c.error("Loop body too large.")
	}
	c.emitByte(byte((offset >> 8) & 0xff))
	c.emitByte(byte(offset & 0xff))
}

// --- string interning -----------------------------------------------------

func (c *Compiler) internString(s string) *value.ObjString {
	hash := value.HashString(s)
	if found := c.strings.FindString(s, hash); found != nil {
		return found
	}
	obj := &value.ObjString{Chars: s, Hash: hash}
	c.strings.Set(obj, value.Nil)
	return obj
}

// --- scopes, locals, upvalues --------------------------------------------

func (c *Compiler) beginScope() { c.fs.scopeDepth++ }

func (c *Compiler) endScope() {
	c.fs.scopeDepth--
	for len(c.fs.locals) > 0 && c.fs.locals[len(c.fs.locals)-1].depth > c.fs.scopeDepth {
		if c.fs.locals[len(c.fs.locals)-1].isCaptured {
			c.emitOp(value.OpCloseUpvalue)
		} else {
			c.emitOp(value.OpPop)
		}
		c.fs.locals = c.fs.locals[:len(c.fs.locals)-1]
	}
}

// discardLocalsTo emits the pops/closes for every local above depth, without
// actually removing them from fs.locals: used by break, which jumps past
// the normal endScope() that will still run for the enclosing blocks.
func (c *Compiler) discardLocalsTo(depth int) {
	for i := len(c.fs.locals) - 1; i >= 0 && c.fs.locals[i].depth > depth; i-- {
		if c.fs.locals[i].isCaptured {
			c.emitOp(value.OpCloseUpvalue)
		} else {
			c.emitOp(value.OpPop)
		}
	}
}

func (c *Compiler) identifiersEqual(a, b string) bool { return a == b }

func (c *Compiler) resolveLocal(fs *funcState, name string) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if c.identifiersEqual(fs.locals[i].name, name) {
			if fs.locals[i].depth == -1 {
				c.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (c *Compiler) addUpvalue(fs *funcState, index uint8, isLocal bool) int {
	if i := slices.IndexFunc(fs.upvalues, func(u value.UpvalueDesc) bool {
		return u.Index == index && u.IsLocal == isLocal
	}); i != -1 {
		return i
	}
	if len(fs.upvalues) >= 256 {
		c.error("Too many closure variables in function.")
		return 0
	}
	fs.upvalues = append(fs.upvalues, value.UpvalueDesc{Index: index, IsLocal: isLocal})
	fs.fn.UpvalueCount = len(fs.upvalues)
	return len(fs.upvalues) - 1
}

func (c *Compiler) resolveUpvalue(fs *funcState, name string) int {
	if fs.enclosing == nil {
		return -1
	}
	if local := c.resolveLocal(fs.enclosing, name); local != -1 {
		fs.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(fs, uint8(local), true)
	}
	if up := c.resolveUpvalue(fs.enclosing, name); up != -1 {
		return c.addUpvalue(fs, uint8(up), false)
	}
	return -1
}

func (c *Compiler) addLocal(name string) {
	if len(c.fs.locals) >= 256 {
		c.error("Too many local variables in function.")
		return
	}
	c.fs.locals = append(c.fs.locals, local{name: name, depth: -1})
}

func (c *Compiler) declareVariable() {
	if c.fs.scopeDepth == 0 {
		return
	}
	name := c.previous.Lexeme
	for i := len(c.fs.locals) - 1; i >= 0; i-- {
		l := c.fs.locals[i]
		if l.depth != -1 && l.depth < c.fs.scopeDepth {
			break
		}
		if c.identifiersEqual(l.name, name) {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) markInitialized() {
	if c.fs.scopeDepth == 0 {
		return
	}
	c.fs.locals[len(c.fs.locals)-1].depth = c.fs.scopeDepth
}

func (c *Compiler) parseVariable(errMsg string) byte {
	c.consume(token.IDENT, errMsg)
	c.declareVariable()
	if c.fs.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.previous.Lexeme)
}

func (c *Compiler) identifierConstant(name string) byte {
	return c.makeConstant(value.FromObj(c.internString(name)))
}

func (c *Compiler) defineVariable(global byte) {
	if c.fs.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpByte(value.OpDefineGlobal, global)
}

// namedVariable compiles a read of, or (if canAssign and followed by '=') an
// assignment to, the variable named name.
func (c *Compiler) namedVariable(name string, canAssign bool) {
	var getOp, setOp value.Opcode
	var arg int
	if arg = c.resolveLocal(c.fs, name); arg != -1 {
		getOp, setOp = value.OpGetLocal, value.OpSetLocal
	} else if arg = c.resolveUpvalue(c.fs, name); arg != -1 {
		getOp, setOp = value.OpGetUpvalue, value.OpSetUpvalue
	} else {
		arg = int(c.identifierConstant(name))
		getOp, setOp = value.OpGetGlobal, value.OpSetGlobal
	}

	if canAssign && c.match(token.EQ) {
		c.expression()
		c.emitOpByte(setOp, byte(arg))
	} else {
		c.emitOpByte(getOp, byte(arg))
	}
}

// --- declarations & statements --------------------------------------------

func (c *Compiler) declaration() {
	switch {
	case c.match(token.CLASS):
		c.classDeclaration()
	case c.match(token.FUN):
		c.funDeclaration()
	case c.match(token.VAR):
		c.varDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) classDeclaration() {
	c.consume(token.IDENT, "Expect class name.")
	className := c.previous.Lexeme
	nameConstant := c.identifierConstant(className)
	c.declareVariable()

	c.emitOpByte(value.OpClass, nameConstant)
	c.defineVariable(nameConstant)

	cc := &classCompiler{enclosing: c.class}
	c.class = cc

	if c.match(token.LT) {
		c.consume(token.IDENT, "Expect superclass name.")
		superName := c.previous.Lexeme
		c.namedVariable(superName, false)
		if c.identifiersEqual(className, superName) {
			c.error("A class can't inherit from itself.")
		}

		c.beginScope()
		c.addLocal("super")
		c.defineVariable(0)

		c.namedVariable(className, false)
		c.emitOp(value.OpInherit)
		cc.hasSuperclass = true
	}

	c.namedVariable(className, false)
	c.consume(token.LBRACE, "Expect '{' before class body.")
	for !c.check(token.RBRACE) && !c.check(token.EOF) {
		c.method()
	}
	c.consume(token.RBRACE, "Expect '}' after class body.")
	c.emitOp(value.OpPop)

	if cc.hasSuperclass {
		c.endScope()
	}
	c.class = cc.enclosing
}

func (c *Compiler) method() {
	c.consume(token.IDENT, "Expect method name.")
	name := c.previous.Lexeme
	constant := c.identifierConstant(name)

	ft := funcTypeMethod
	if name == "init" {
		ft = funcTypeInitializer
	}
	c.function(ft)
	c.emitOpByte(value.OpMethod, constant)
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.function(funcTypeFunction)
	c.defineVariable(global)
}

func (c *Compiler) function(ft funcType) {
	name := c.previous.Lexeme
	fs := &funcState{enclosing: c.fs, fnType: ft}
	fs.fn = &value.Function{Name: c.internString(name)}

	slot0 := ""
	if ft == funcTypeMethod || ft == funcTypeInitializer {
		slot0 = "this"
	}
	fs.locals = append(fs.locals, local{name: slot0, depth: 0})
	c.fs = fs
	c.beginScope()

	c.consume(token.LPAREN, "Expect '(' after function name.")
	if !c.check(token.RPAREN) {
		for {
			c.fs.fn.Arity++
			if c.fs.fn.Arity > 255 {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			paramConst := c.parseVariable("Expect parameter name.")
			c.defineVariable(paramConst)
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RPAREN, "Expect ')' after parameters.")
	c.consume(token.LBRACE, "Expect '{' before function body.")
	c.block()

	fn, upvalues := c.endCompiler()
	idx := c.makeConstant(value.FromObj(fn))
	c.emitOpByte(value.OpClosure, idx)
	for _, uv := range upvalues {
		if uv.IsLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(uv.Index)
	}
}

// endCompiler finishes the current funcState, restores the enclosing one as
// current, and returns the compiled function along with its resolved
// upvalue descriptors (consumed by the OP_CLOSURE emission in function()).
func (c *Compiler) endCompiler() (*value.Function, []value.UpvalueDesc) {
	c.emitReturn()
	fn := c.fs.fn
	upvalues := c.fs.upvalues
	c.fs = c.fs.enclosing
	return fn, upvalues
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.match(token.EQ) {
		c.expression()
	} else {
		c.emitOp(value.OpNil)
	}
	c.consume(token.SEMI, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *Compiler) statement() {
	switch {
	case c.match(token.PRINT):
		c.printStatement()
	case c.match(token.FOR):
		c.forStatement()
	case c.match(token.IF):
		c.ifStatement()
	case c.match(token.RETURN):
		c.returnStatement()
	case c.match(token.WHILE):
		c.whileStatement()
	case c.match(token.BREAK):
		c.breakStatement()
	case c.match(token.LBRACE):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(token.RBRACE) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RBRACE, "Expect '}' after block.")
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.SEMI, "Expect ';' after expression.")
	c.emitOp(value.OpPop)
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(token.SEMI, "Expect ';' after value.")
	c.emitOp(value.OpPrint)
}

func (c *Compiler) returnStatement() {
	if c.fs.fnType == funcTypeScript {
		c.error("Can't return from top-level code.")
	}
	if c.match(token.SEMI) {
		c.emitReturn()
		return
	}
	if c.fs.fnType == funcTypeInitializer {
		c.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(token.SEMI, "Expect ';' after return value.")
	c.emitOp(value.OpReturn)
}

func (c *Compiler) ifStatement() {
	c.consume(token.LPAREN, "Expect '(' after 'if'.")
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after condition.")

	thenJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.statement()

	elseJump := c.emitJump(value.OpJump)
	c.patchJump(thenJump)
	c.emitOp(value.OpPop)

	if c.match(token.ELSE) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.fs.currentChunk().Code)
	c.fs.loops = append(c.fs.loops, loopState{scopeDepth: c.fs.scopeDepth})

	c.consume(token.LPAREN, "Expect '(' after 'while'.")
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after condition.")

	exitJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(value.OpPop)

	c.finishLoop()
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(token.LPAREN, "Expect '(' after 'for'.")
	switch {
	case c.match(token.SEMI):
		// no initializer
	case c.match(token.VAR):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.fs.currentChunk().Code)
	exitJump := -1
	if !c.match(token.SEMI) {
		c.expression()
		c.consume(token.SEMI, "Expect ';' after loop condition.")
		exitJump = c.emitJump(value.OpJumpIfFalse)
		c.emitOp(value.OpPop)
	}

	if !c.match(token.RPAREN) {
		bodyJump := c.emitJump(value.OpJump)
		incrementStart := len(c.fs.currentChunk().Code)
		c.expression()
		c.emitOp(value.OpPop)
		c.consume(token.RPAREN, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.fs.loops = append(c.fs.loops, loopState{scopeDepth: c.fs.scopeDepth})
	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(value.OpPop)
	}

	c.finishLoop()
	c.endScope()
}

// finishLoop patches every pending break jump of the innermost loop to land
// right after the loop (where its caller has just finished emitting) and
// pops the loop off the loop stack.
func (c *Compiler) finishLoop() {
	loop := c.fs.loops[len(c.fs.loops)-1]
	for _, j := range loop.breakJumps {
		c.patchJump(j)
	}
	c.fs.loops = c.fs.loops[:len(c.fs.loops)-1]
}

func (c *Compiler) currentLoop() *loopState {
	if len(c.fs.loops) == 0 {
		return nil
	}
	return &c.fs.loops[len(c.fs.loops)-1]
}

func (c *Compiler) breakStatement() {
	loop := c.currentLoop()
	if loop == nil {
		c.error("Can't use 'break' outside of a loop.")
		c.consume(token.SEMI, "Expect ';' after 'break'.")
		return
	}
	c.consume(token.SEMI, "Expect ';' after 'break'.")
	c.discardLocalsTo(loop.scopeDepth)
	jump := c.emitJump(value.OpJump)
	loop.breakJumps = append(loop.breakJumps, jump)
}
