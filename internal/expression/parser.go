package expression

import (
	"strconv"
	"strings"
)

// Parser parses expression strings into AST.
//
// Grammar, lowest precedence first:
//
//	or         = and { OR and }
//	and        = not { AND not }
//	not        = NOT not | comparison
//	comparison = additive [ ( == | != | < | > | <= | >= | IN ) additive ]
//	additive   = unary { ( + | - ) unary }
//	unary      = - unary | postfix
//	postfix    = primary { . ident | [ or ] }
//	primary    = literal | ident [ ( args ) ] | ${ or } | ( or ) | [ list ]
type Parser struct {
	input     string
	lexer     *Lexer
	curToken  Token
	peekToken Token
}

// NewParser creates a new Parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{input: input, lexer: NewLexer(input)}
	// Read two tokens to initialize curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// Parse parses the expression and returns the AST.
func (p *Parser) Parse() (*ExpressionAST, error) {
	node, err := p.parseExpression()
	if err != nil {
		return nil, p.wrap(err)
	}

	// Ensure we've consumed all tokens
	if p.curToken.Type != TokenEOF {
		return nil, p.wrap(NewParseError(p.curToken.Pos, "end of expression", p.curToken.Literal))
	}

	return &ExpressionAST{Source: p.input, Root: node}, nil
}

func (p *Parser) wrap(err error) error {
	if ee, ok := err.(*ExpressionError); ok {
		return ee
	}
	pos := -1
	if pe, ok := err.(*ParseError); ok {
		pos = pe.Position
	}
	return NewExpressionError(p.input, pos, err.Error(), err)
}

// parseExpression parses an expression (handles OR - lowest precedence).
func (p *Parser) parseExpression() (Node, error) {
	return p.parseOr()
}

// parseOr parses OR expressions.
func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.curToken.Type == TokenOR {
		p.nextToken()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &LogicalNode{Left: left, Operator: "OR", Right: right}
	}

	return left, nil
}

// parseAnd parses AND expressions.
func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for p.curToken.Type == TokenAND {
		p.nextToken()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &LogicalNode{Left: left, Operator: "AND", Right: right}
	}

	return left, nil
}

// parseNot parses NOT expressions.
func (p *Parser) parseNot() (Node, error) {
	if p.curToken.Type == TokenNOT {
		p.nextToken()
		operand, err := p.parseNot() // NOT is right-associative
		if err != nil {
			return nil, err
		}
		return &NotNode{Operand: operand}, nil
	}

	return p.parseComparison()
}

// parseComparison parses comparison expressions. Comparisons do not chain.
func (p *Parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	if isComparisonOperator(p.curToken.Type) {
		op := p.curToken.Literal
		if p.curToken.Type == TokenIN {
			op = "IN"
		}
		p.nextToken()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &ComparisonNode{Left: left, Operator: op, Right: right}, nil
	}

	return left, nil
}

func (p *Parser) parseAdditive() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.curToken.Type == TokenPlus || p.curToken.Type == TokenMinus {
		op := p.curToken.Literal
		p.nextToken()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ArithmeticNode{Left: left, Operator: op, Right: right}
	}

	return left, nil
}

func (p *Parser) parseUnary() (Node, error) {
	if p.curToken.Type == TokenMinus {
		p.nextToken()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		// fold negative literals so "-1" stays a literal
		if lit, ok := operand.(*LiteralNode); ok {
			switch v := lit.Value.(type) {
			case int64:
				return &LiteralNode{Value: -v}, nil
			case float64:
				return &LiteralNode{Value: -v}, nil
			}
		}
		return &NegateNode{Operand: operand}, nil
	}
	return p.parsePostfix()
}

// parsePostfix parses member and index access chains.
func (p *Parser) parsePostfix() (Node, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		switch p.curToken.Type {
		case TokenDot:
			p.nextToken()
			field, ok := p.memberName()
			if !ok {
				return nil, NewParseError(p.curToken.Pos, "field name", p.curToken.Literal)
			}
			p.nextToken()
			node = &MemberNode{Object: node, Field: field}
		case TokenLBracket:
			p.nextToken()
			idx, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if p.curToken.Type != TokenRBracket {
				return nil, NewParseError(p.curToken.Pos, "]", p.curToken.Literal)
			}
			p.nextToken()
			node = &IndexNode{Object: node, Index: idx}
		default:
			return node, nil
		}
	}
}

// memberName accepts identifiers, keywords and integers after a dot, so
// task.in and items.0 both work.
func (p *Parser) memberName() (string, bool) {
	switch p.curToken.Type {
	case TokenIdent, TokenBool, TokenNull, TokenAND, TokenOR, TokenNOT, TokenIN, TokenInt:
		return p.curToken.Literal, true
	default:
		return "", false
	}
}

// parsePrimary parses primary expressions (literals, variables, calls, lists, parenthesized expressions).
func (p *Parser) parsePrimary() (Node, error) {
	switch p.curToken.Type {
	case TokenLParen:
		p.nextToken() // consume '('
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.curToken.Type != TokenRParen {
			return nil, NewParseError(p.curToken.Pos, ")", p.curToken.Literal)
		}
		p.nextToken() // consume ')'
		return expr, nil

	case TokenLBracket:
		p.nextToken() // consume '['
		elems, err := p.parseList(TokenRBracket)
		if err != nil {
			return nil, err
		}
		return &ListNode{Elements: elems}, nil

	case TokenVarRef:
		tok := p.curToken
		inner, err := ParseExpression(tok.Literal)
		if err != nil {
			return nil, NewParseError(tok.Pos, "valid reference inside ${}", tok.Literal)
		}
		p.nextToken()
		return inner.Root, nil

	case TokenInt:
		val, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
		if err != nil {
			return nil, NewExpressionError(p.input, p.curToken.Pos, "invalid integer: "+p.curToken.Literal, err)
		}
		p.nextToken()
		return &LiteralNode{Value: val}, nil

	case TokenFloat:
		val, err := strconv.ParseFloat(p.curToken.Literal, 64)
		if err != nil {
			return nil, NewExpressionError(p.input, p.curToken.Pos, "invalid float: "+p.curToken.Literal, err)
		}
		p.nextToken()
		return &LiteralNode{Value: val}, nil

	case TokenString:
		node := &LiteralNode{Value: p.curToken.Literal}
		p.nextToken()
		return node, nil

	case TokenBool:
		val := strings.EqualFold(p.curToken.Literal, "true")
		p.nextToken()
		return &LiteralNode{Value: val}, nil

	case TokenNull:
		p.nextToken()
		return &LiteralNode{Value: nil}, nil

	case TokenIdent:
		name := p.curToken.Literal
		p.nextToken()
		if p.curToken.Type == TokenLParen {
			p.nextToken() // consume '('
			args, err := p.parseList(TokenRParen)
			if err != nil {
				return nil, err
			}
			return &CallNode{Name: name, Args: args}, nil
		}
		return &VariableNode{Name: name}, nil

	case TokenEOF:
		return nil, NewParseError(p.curToken.Pos, "expression", "end of input")

	default:
		return nil, NewParseError(p.curToken.Pos, "expression", p.curToken.Literal)
	}
}

// parseList parses comma separated expressions up to and including the closing token.
// A trailing comma is allowed.
func (p *Parser) parseList(closing TokenType) ([]Node, error) {
	elems := make([]Node, 0)
	for p.curToken.Type != closing {
		elem, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)

		if p.curToken.Type == TokenComma {
			p.nextToken()
			continue
		}
		if p.curToken.Type != closing {
			return nil, NewParseError(p.curToken.Pos, closing.String(), p.curToken.Literal)
		}
	}
	p.nextToken() // consume closing token
	return elems, nil
}

// isComparisonOperator returns true if the token is a comparison operator.
func isComparisonOperator(t TokenType) bool {
	switch t {
	case TokenEQ, TokenNE, TokenLT, TokenGT, TokenLE, TokenGE, TokenIN:
		return true
	default:
		return false
	}
}

// ParseExpression is a convenience function to parse an expression string.
func ParseExpression(input string) (*ExpressionAST, error) {
	if strings.TrimSpace(input) == "" {
		return nil, NewExpressionError(input, 0, "empty expression", nil)
	}
	return NewParser(input).Parse()
}
