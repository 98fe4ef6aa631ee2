// Package extract implements the field-pattern mini-language (C1): parsing
// a field-pattern expression into a forest of descent nodes, and walking a
// decoded JSON value against that forest to produce the extracted value map
// described in spec.md §§3-4.1.
package extract

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/rudipoppes/GenHook/internal/domain"
)

// Node is one identifier in a field-pattern expression, with zero or more
// children reached through brace groups. A leaf (no children) denotes a
// terminal extraction; an internal node denotes descent.
type Node struct {
	Name     string
	Children []*Node
}

type parser struct {
	src []rune
	pos int
}

// Parse parses a comma-separated field-pattern expression into a forest of
// root nodes. It fails with domain.ErrBadPattern on any syntax error; it
// never inspects a payload, so it cannot fail on missing fields.
func Parse(expr string) ([]*Node, error) {
	p := &parser{src: []rune(expr)}
	nodes, err := p.parsePatternList()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("%w: unexpected %q at position %d", domain.ErrBadPattern, string(p.src[p.pos]), p.pos)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: empty expression", domain.ErrBadPattern)
	}
	return nodes, nil
}

func (p *parser) parsePatternList() ([]*Node, error) {
	var nodes []*Node
	for {
		node, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)

		p.skipSpace()
		if p.peek() != ',' {
			break
		}
		p.pos++ // consume ','
	}
	return nodes, nil
}

func (p *parser) parsePattern() (*Node, error) {
	p.skipSpace()
	name := p.readIdent()
	if name == "" {
		return nil, fmt.Errorf("%w: expected identifier at position %d", domain.ErrBadPattern, p.pos)
	}

	node := &Node{Name: name}
	for {
		p.skipSpace()
		if p.peek() != '{' {
			break
		}
		p.pos++ // consume '{'
		children, err := p.parsePatternList()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != '}' {
			return nil, fmt.Errorf("%w: unterminated group starting at %q", domain.ErrBadPattern, name)
		}
		p.pos++ // consume '}'
		// Successive brace groups on the same root are a conjunction of
		// descents: accumulate children across every group.
		node.Children = append(node.Children, children...)
	}
	return node, nil
}

func (p *parser) readIdent() string {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '{' || c == '}' || c == ',' || unicode.IsSpace(c) {
			break
		}
		p.pos++
	}
	return strings.TrimSpace(string(p.src[start:p.pos]))
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) peek() rune {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}
