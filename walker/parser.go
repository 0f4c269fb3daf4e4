package walker

import (
	"fmt"
	"strings"
)

// parser is a recursive descent parser over the token stream of one
// expression:
//
//	union    := typeExpr ('|' typeExpr)*
//	typeExpr := postfix (('as' | 'is') typeSpec)*
//	postfix  := primary ('.' ident ('(' args ')')?)*
//	primary  := '(' union ')' | ident ('(' args ')')?
type parser struct {
	src    string
	tokens []token
	pos    int
}

// parse parses src into an expression tree.
func parse(src string) (expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, tokens: tokens}
	e, err := p.parseUnion()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.unexpected(tok)
	}
	return e, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isSymbol(text string) bool {
	tok := p.peek()
	return tok.kind == tokSymbol && tok.text == text
}

func (p *parser) expectSymbol(text string) (token, error) {
	if !p.isSymbol(text) {
		return token{}, p.unexpected(p.peek())
	}
	return p.next(), nil
}

func (p *parser) unexpected(tok token) error {
	if tok.kind == tokEOF {
		return fmt.Errorf("%w: unexpected end of expression", ErrSyntax)
	}
	return fmt.Errorf("%w: unexpected %s %q at %d", ErrSyntax, tok.kind, tok.text, tok.pos)
}

func (p *parser) parseUnion() (expr, error) {
	first, err := p.parseTypeExpr()
	if err != nil {
		return nil, err
	}
	if !p.isSymbol("|") {
		return first, nil
	}

	u := &union{Parts: []expr{first}}
	for p.isSymbol("|") {
		p.next()
		part, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		u.Parts = append(u.Parts, part)
	}
	return u, nil
}

func (p *parser) parseTypeExpr() (expr, error) {
	operand, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokIdent || (tok.text != "as" && tok.text != "is") {
			return operand, nil
		}
		p.next()
		typeName, err := p.parseTypeSpec()
		if err != nil {
			return nil, err
		}
		operand = &typeOp{Operand: operand, Op: tok.text, Type: typeName}
	}
}

func (p *parser) parsePostfix() (expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.isSymbol(".") {
		p.next()
		tok := p.next()
		if tok.kind != tokIdent {
			return nil, p.unexpected(tok)
		}
		if p.isSymbol("(") {
			e, err = p.parseCall(e, tok.text)
			if err != nil {
				return nil, err
			}
			continue
		}
		e = &member{Target: e, Name: tok.text}
	}
	return e, nil
}

func (p *parser) parsePrimary() (expr, error) {
	tok := p.next()
	switch {
	case tok.kind == tokSymbol && tok.text == "(":
		inner, err := p.parseUnion()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return inner, nil

	case tok.kind == tokIdent:
		if p.isSymbol("(") {
			return p.parseCall(nil, tok.text)
		}
		if strings.HasPrefix(tok.text, "$") {
			return nil, fmt.Errorf("%w: variable %s", ErrUnsupportedFunction, tok.text)
		}
		if isTypeName(tok.text) {
			return &typeFilter{Type: tok.text}, nil
		}
		return &member{Name: tok.text}, nil

	default:
		return nil, p.unexpected(tok)
	}
}

// parseCall parses the argument list of function name. The opening
// parenthesis is the next token.
func (p *parser) parseCall(target expr, name string) (expr, error) {
	open, err := p.expectSymbol("(")
	if err != nil {
		return nil, err
	}

	c := &call{Target: target, Name: name}
	switch name {
	case "where":
		closing, err := p.skipBalanced()
		if err != nil {
			return nil, err
		}
		c.Arg = strings.TrimSpace(p.src[open.end:closing.pos])
		if c.Arg == "" {
			return nil, fmt.Errorf("%w: where() needs criteria", ErrSyntax)
		}
		return c, nil

	case "as", "ofType":
		c.Arg, err = p.parseTypeSpec()
		if err != nil {
			return nil, err
		}

	case "extension":
		tok := p.next()
		if tok.kind != tokString {
			return nil, p.unexpected(tok)
		}
		c.Arg = tok.text

	case "first":

	default:
		return nil, fmt.Errorf("%w: %s()", ErrUnsupportedFunction, name)
	}

	if _, err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return c, nil
}

// skipBalanced advances past the closing parenthesis matching an already
// consumed opening one and returns it.
func (p *parser) skipBalanced() (token, error) {
	depth := 1
	for {
		tok := p.next()
		switch {
		case tok.kind == tokEOF:
			return token{}, p.unexpected(tok)
		case tok.kind == tokSymbol && tok.text == "(":
			depth++
		case tok.kind == tokSymbol && tok.text == ")":
			depth--
			if depth == 0 {
				return tok, nil
			}
		}
	}
}

// parseTypeSpec parses a possibly qualified type name ("Quantity",
// "FHIR.Quantity") and returns the unqualified name.
func (p *parser) parseTypeSpec() (string, error) {
	tok := p.next()
	if tok.kind != tokIdent {
		return "", p.unexpected(tok)
	}
	name := tok.text
	for p.isSymbol(".") {
		p.next()
		part := p.next()
		if part.kind != tokIdent {
			return "", p.unexpected(part)
		}
		name = part.text
	}
	return name, nil
}

// isTypeName reports whether an identifier names a type rather than a member.
func isTypeName(s string) bool {
	return s != "" && s[0] >= 'A' && s[0] <= 'Z'
}
