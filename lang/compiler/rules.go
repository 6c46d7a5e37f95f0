package compiler

import (
	"github.com/mna/loxvm/lang/token"
	"github.com/mna/loxvm/lang/value"
)

// precedence is the Pratt parser's precedence ladder, lowest to highest, per
// spec section 4.2.
type precedence uint8

const (
	precNone precedence = iota
	precAssignment
	precOr
	precAnd
	precEquality
	precComparison
	precTerm
	precFactor
	precUnary
	precCall
	precPrimary
)

// parseFn is either a prefix or an infix parse rule; canAssign is threaded
// through so that only assignment-precedence contexts accept '='.
type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix parseFn
	infix  parseFn
	prec   precedence
}

// rules is the static table the Pratt parser is driven by, indexed directly
// by token kind, per spec section 4.2's rule(kind) table.
var rules = [token.MaxToken]parseRule{
	token.LPAREN: {prefix: grouping, infix: call, prec: precCall},
	token.DOT:    {infix: dot, prec: precCall},
	token.MINUS:  {prefix: unary, infix: binary, prec: precTerm},
	token.PLUS:   {infix: binary, prec: precTerm},
	token.SLASH:  {infix: binary, prec: precFactor},
	token.STAR:   {infix: binary, prec: precFactor},
	token.BANG:   {prefix: unary},
	token.BANGEQ: {infix: binary, prec: precEquality},
	token.EQEQ:   {infix: binary, prec: precEquality},
	token.GT:     {infix: binary, prec: precComparison},
	token.GE:     {infix: binary, prec: precComparison},
	token.LT:     {infix: binary, prec: precComparison},
	token.LE:     {infix: binary, prec: precComparison},
	token.IDENT:  {prefix: variable},
	token.STRING: {prefix: stringLit},
	token.NUMBER: {prefix: number},
	token.AND:    {infix: and_, prec: precAnd},
	token.FALSE:  {prefix: literal},
	token.NIL:    {prefix: literal},
	token.OR:     {infix: or_, prec: precOr},
	token.SUPER:  {prefix: super_},
	token.THIS:   {prefix: this_},
	token.TRUE:   {prefix: literal},
}

func (c *Compiler) expression() { c.parsePrecedence(precAssignment) }

func (c *Compiler) parsePrecedence(prec precedence) {
	c.advance()
	prefix := rules[c.previous.Kind].prefix
	if prefix == nil {
		c.error("Expect expression.")
		return
	}
	canAssign := prec <= precAssignment
	prefix(c, canAssign)

	for prec <= rules[c.current.Kind].prec {
		c.advance()
		infix := rules[c.previous.Kind].infix
		infix(c, canAssign)
	}

	if canAssign && c.match(token.EQ) {
		c.error("Invalid assignment target.")
	}
}

func grouping(c *Compiler, _ bool) {
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after expression.")
}

func number(c *Compiler, _ bool) {
	c.emitConstant(value.Number(c.previous.Number))
}

func stringLit(c *Compiler, _ bool) {
	raw := c.previous.Lexeme
	s := raw[1 : len(raw)-1] // strip the surrounding quotes
	c.emitConstant(value.FromObj(c.internString(s)))
}

func literal(c *Compiler, _ bool) {
	switch c.previous.Kind {
	case token.FALSE:
		c.emitOp(value.OpFalse)
	case token.NIL:
		c.emitOp(value.OpNil)
	case token.TRUE:
		c.emitOp(value.OpTrue)
	}
}

func unary(c *Compiler, _ bool) {
	opType := c.previous.Kind
	c.parsePrecedence(precUnary)
	switch opType {
	case token.MINUS:
		c.emitOp(value.OpNegate)
	case token.BANG:
		c.emitOp(value.OpNot)
	}
}

func binary(c *Compiler, _ bool) {
	opType := c.previous.Kind
	rule := rules[opType]
	c.parsePrecedence(rule.prec + 1)

	switch opType {
	case token.BANGEQ:
		c.emitOp(value.OpEqual)
		c.emitOp(value.OpNot)
	case token.EQEQ:
		c.emitOp(value.OpEqual)
	case token.GT:
		c.emitOp(value.OpGreater)
	case token.GE:
		c.emitOp(value.OpLess)
		c.emitOp(value.OpNot)
	case token.LT:
		c.emitOp(value.OpLess)
	case token.LE:
		c.emitOp(value.OpGreater)
		c.emitOp(value.OpNot)
	case token.PLUS:
		c.emitOp(value.OpAdd)
	case token.MINUS:
		c.emitOp(value.OpSubtract)
	case token.STAR:
		c.emitOp(value.OpMultiply)
	case token.SLASH:
		c.emitOp(value.OpDivide)
	}
}

func and_(c *Compiler, _ bool) {
	endJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func or_(c *Compiler, _ bool) {
	elseJump := c.emitJump(value.OpJumpIfFalse)
	endJump := c.emitJump(value.OpJump)
	c.patchJump(elseJump)
	c.emitOp(value.OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func variable(c *Compiler, canAssign bool) {
	c.namedVariable(c.previous.Lexeme, canAssign)
}

func this_(c *Compiler, _ bool) {
	if c.class == nil {
		c.error("Can't use 'this' outside of a class.")
		return
	}
	c.namedVariable("this", false)
}

func super_(c *Compiler, _ bool) {
	if c.class == nil {
		c.error("Can't use 'super' outside of a class.")
	} else if !c.class.hasSuperclass {
		c.error("Can't use 'super' in a class with no superclass.")
	}

	c.consume(token.DOT, "Expect '.' after 'super'.")
	c.consume(token.IDENT, "Expect superclass method name.")
	name := c.identifierConstant(c.previous.Lexeme)

	c.namedVariable("this", false)
	if c.match(token.LPAREN) {
		argCount := c.argumentList()
		c.namedVariable("super", false)
		c.emitOp(value.OpSuperInvoke)
		c.emitByte(name)
		c.emitByte(argCount)
	} else {
		c.namedVariable("super", false)
		c.emitOpByte(value.OpGetSuper, name)
	}
}

func call(c *Compiler, _ bool) {
	argCount := c.argumentList()
	c.emitOpByte(value.OpCall, argCount)
}

func dot(c *Compiler, canAssign bool) {
	c.consume(token.IDENT, "Expect property name after '.'.")
	name := c.identifierConstant(c.previous.Lexeme)

	switch {
	case canAssign && c.match(token.EQ):
		c.expression()
		c.emitOpByte(value.OpSetProperty, name)
	case c.match(token.LPAREN):
		argCount := c.argumentList()
		c.emitOp(value.OpInvoke)
		c.emitByte(name)
		c.emitByte(argCount)
	default:
		c.emitOpByte(value.OpGetProperty, name)
	}
}

func (c *Compiler) argumentList() byte {
	var argCount int
	if !c.check(token.RPAREN) {
		for {
			c.expression()
			if argCount == 255 {
				c.error("Can't have more than 255 arguments.")
			}
			argCount++
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RPAREN, "Expect ')' after arguments.")
	return byte(argCount)
}
