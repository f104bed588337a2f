// Copyright 2024 The Rill Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rill

import (
	"strconv"
	"strings"
)

// The scanning primitives below are methods on Parser rather than a
// separate Lexer type: command substitution (`(Command)`) is a full
// recursive grammar production reachable from inside a string, so the
// string reader has to be able to call back into the command parser.
// Keeping one rune cursor shared by both layers avoids a two-struct
// split that would otherwise need its own plumbing for that
// recursion.

func (p *Parser) eof() bool { return p.pos >= len(p.input) }

func (p *Parser) peek() rune {
	return p.peekAt(0)
}

func (p *Parser) peekAt(n int) rune {
	if p.pos+n >= len(p.input) || p.pos+n < 0 {
		return 0
	}
	return p.input[p.pos+n]
}

func (p *Parser) advance() rune {
	r := p.input[p.pos]
	p.pos++
	if r == '\n' {
		p.line++
	}
	return r
}

// skipHSpace skips spaces, tabs, and `#`-to-end-of-line comments. It
// never consumes the newline that ends a comment; grammar productions
// decide for themselves whether a newline is a separator.
func (p *Parser) skipHSpace() {
	for !p.eof() {
		switch p.peek() {
		case ' ', '\t':
			p.advance()
		case '#':
			for !p.eof() && p.peek() != '\n' {
				p.advance()
			}
		default:
			return
		}
	}
}

// skipBlankSeparators consumes runs of horizontal space plus any
// number of newlines/semicolons between statements.
func (p *Parser) skipBlankSeparators() {
	for {
		p.skipHSpace()
		if !p.eof() && (p.peek() == '\n' || p.peek() == ';') {
			p.advance()
			continue
		}
		return
	}
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || isDigit(r)
}

func isIdentCont(r rune) bool { return isIdentStart(r) }

// isBareStop reports whether r ends a bare word or terminates a
// statement.
func isBareStop(r rune) bool {
	switch r {
	case 0, ' ', '\t', '\n', '\r', '#', '|', '&', ';', '{', '}', ')':
		return true
	}
	return false
}

func (p *Parser) matchesClose(quote rune, n int) bool {
	for i := 0; i < n; i++ {
		if p.peekAt(i) != quote {
			return false
		}
	}
	return true
}

// readRawUntil scans a Raw string body until the closing run of n
// quote runes. Only `\\` and `\'` are escapes here; any other
// backslash is an ordinary character.
func (p *Parser) readRawUntil(quote rune, n int) (string, error) {
	var sb strings.Builder
	for {
		if p.eof() {
			return "", errYet
		}
		if p.matchesClose(quote, n) {
			for i := 0; i < n; i++ {
				p.advance()
			}
			return sb.String(), nil
		}
		c := p.advance()
		if c == '\\' && (p.peek() == '\\' || p.peek() == quote) {
			sb.WriteRune(p.advance())
			continue
		}
		sb.WriteRune(c)
	}
}

// extractRawSpan scans up to the closing run of n quote runes without
// resolving any escapes — used only for a triple-quoted Lit string's
// first pass, which must dedent before a second pass interprets
// escapes and interpolation.
func (p *Parser) extractRawSpan(quote rune, n int) (string, error) {
	var sb strings.Builder
	for {
		if p.eof() {
			return "", errYet
		}
		if p.matchesClose(quote, n) {
			for i := 0; i < n; i++ {
				p.advance()
			}
			return sb.String(), nil
		}
		c := p.advance()
		sb.WriteRune(c)
		if c == '\\' && !p.eof() {
			sb.WriteRune(p.advance())
		}
	}
}

// dedent strips a common leading-whitespace prefix from every
// non-blank line, and drops a leading blank line left by writing the
// opening delimiter on its own line.
func dedent(s string) string {
	lines := strings.Split(s, "\n")
	if len(lines) > 1 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	minIndent := -1
	for _, ln := range lines {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		indent := leadingWS(ln)
		if minIndent == -1 || indent < minIndent {
			minIndent = indent
		}
	}
	if minIndent > 0 {
		for i, ln := range lines {
			if len(ln) >= minIndent {
				lines[i] = ln[minIndent:]
			} else {
				lines[i] = strings.TrimLeft(ln, " \t")
			}
		}
	}
	return strings.Join(lines, "\n")
}

func leadingWS(s string) int {
	n := 0
	for _, r := range s {
		if r == ' ' || r == '\t' {
			n++
		} else {
			break
		}
	}
	return n
}

// readName reads a VarRef name: `#`/`@` stand alone, anything else is
// a run of identifier runes (digits included, since positional
// parameters are named "0", "1", ...).
func (p *Parser) readName() (string, error) {
	if !p.eof() && (p.peek() == '#' || p.peek() == '@') {
		return string(p.advance()), nil
	}
	start := p.pos
	for !p.eof() && isIdentCont(p.peek()) {
		p.advance()
	}
	if p.pos == start {
		return "", newErr(KindParse, "expected a variable name")
	}
	return string(p.input[start:p.pos]), nil
}

func (p *Parser) readVarRef() (Frag, error) {
	p.advance() // '$'
	if !p.eof() && p.peek() == '{' {
		p.advance()
		name, err := p.readName()
		if err != nil {
			return Frag{}, err
		}
		if p.eof() {
			return Frag{}, errYet
		}
		if p.peek() != '}' {
			return Frag{}, newErr(KindParse, "expected '}' to close ${...}")
		}
		p.advance()
		return Frag{Kind: FragVarRef, Name: name}, nil
	}
	name, err := p.readName()
	if err != nil {
		return Frag{}, err
	}
	return Frag{Kind: FragVarRef, Name: name}, nil
}

func (p *Parser) readCmdSub() (Frag, error) {
	p.advance() // '('
	cmd, err := p.parseCommand()
	if err != nil {
		return Frag{}, err
	}
	p.skipHSpace()
	if p.eof() {
		return Frag{}, errYet
	}
	if p.peek() != ')' {
		return Frag{}, newErr(KindParse, "expected ')' to close command substitution")
	}
	p.advance()
	return Frag{Kind: FragCmdSub, Cmd: cmd}, nil
}

func (p *Parser) readJobRef() (Frag, error) {
	p.advance() // '%'
	start := p.pos
	for !p.eof() && isDigit(p.peek()) {
		p.advance()
	}
	n, err := strconv.Atoi(string(p.input[start:p.pos]))
	if err != nil {
		return Frag{}, newErr(KindParse, "invalid job reference")
	}
	return Frag{Kind: FragJobRef, JobID: n}, nil
}

// readEscape decodes one escape sequence after the leading backslash
// has already been consumed by the caller. An unrecognized escape
// yields the escaped character itself rather than a parse error.
func (p *Parser) readEscape() (string, error) {
	if p.eof() {
		return "", errYet
	}
	c := p.advance()
	switch c {
	case 'a':
		return "\a", nil
	case 'b':
		return "\b", nil
	case 'e':
		return "\x1b", nil
	case 'f':
		return "\f", nil
	case 'n':
		return "\n", nil
	case 'r':
		return "\r", nil
	case 't':
		return "\t", nil
	case 'v':
		return "\v", nil
	case '\\':
		return "\\", nil
	case '"':
		return "\"", nil
	case '$':
		return "$", nil
	case '(':
		return "(", nil
	case '%':
		return "%", nil
	case 'x':
		return p.readHexEscape(2)
	case 'u', 'U':
		return p.readBracedHexEscape()
	default:
		return string(c), nil
	}
}

func (p *Parser) readHexEscape(n int) (string, error) {
	if p.pos+n > len(p.input) {
		return "", errYet
	}
	hex := string(p.input[p.pos : p.pos+n])
	v, err := strconv.ParseInt(hex, 16, 32)
	if err != nil {
		return "", wrapErr(KindParse, err, "invalid \\x escape")
	}
	p.pos += n
	return string(rune(v)), nil
}

func (p *Parser) readBracedHexEscape() (string, error) {
	if p.eof() {
		return "", errYet
	}
	if p.peek() != '{' {
		return "", newErr(KindParse, "expected '{' after \\u or \\U")
	}
	p.advance()
	start := p.pos
	for !p.eof() && p.peek() != '}' {
		p.advance()
	}
	if p.eof() {
		return "", errYet
	}
	hex := string(p.input[start:p.pos])
	p.advance()
	v, err := strconv.ParseInt(hex, 16, 32)
	if err != nil {
		return "", wrapErr(KindParse, err, "invalid \\u escape")
	}
	return string(rune(v)), nil
}

// readLitFrags parses the body of a Lit string (Interp | Escape |
// plain char)*. When hasTerm is true it stops at and consumes an
// unescaped closing '"'; when false (the triple-quoted second pass)
// it runs to end of input.
func (p *Parser) readLitFrags(hasTerm bool) ([]Frag, error) {
	var frags []Frag
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			frags = append(frags, Frag{Kind: FragLiteral, Text: lit.String()})
			lit.Reset()
		}
	}
	for {
		if p.eof() {
			if hasTerm {
				return nil, errYet
			}
			flush()
			return frags, nil
		}
		c := p.peek()
		if hasTerm && c == '"' {
			p.advance()
			flush()
			return frags, nil
		}
		switch c {
		case '$':
			flush()
			f, err := p.readVarRef()
			if err != nil {
				return nil, err
			}
			frags = append(frags, f)
		case '(':
			flush()
			f, err := p.readCmdSub()
			if err != nil {
				return nil, err
			}
			frags = append(frags, f)
		case '%':
			if isDigit(p.peekAt(1)) {
				flush()
				f, err := p.readJobRef()
				if err != nil {
					return nil, err
				}
				frags = append(frags, f)
			} else {
				lit.WriteRune(p.advance())
			}
		case '\\':
			p.advance()
			s, err := p.readEscape()
			if err != nil {
				return nil, err
			}
			lit.WriteString(s)
		default:
			lit.WriteRune(p.advance())
		}
	}
}

// readBareFrags parses a Bare word: Interp fragments interleaved with
// runs of ordinary characters, stopping at whitespace or the
// punctuation set isBareStop names.
func (p *Parser) readBareFrags() ([]Frag, error) {
	var frags []Frag
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			frags = append(frags, Frag{Kind: FragLiteral, Text: lit.String()})
			lit.Reset()
		}
	}
	for !p.eof() && !isBareStop(p.peek()) {
		c := p.peek()
		switch c {
		case '$':
			flush()
			f, err := p.readVarRef()
			if err != nil {
				return nil, err
			}
			frags = append(frags, f)
		case '(':
			flush()
			f, err := p.readCmdSub()
			if err != nil {
				return nil, err
			}
			frags = append(frags, f)
		case '%':
			if isDigit(p.peekAt(1)) {
				flush()
				f, err := p.readJobRef()
				if err != nil {
					return nil, err
				}
				frags = append(frags, f)
			} else {
				lit.WriteRune(p.advance())
			}
		default:
			lit.WriteRune(p.advance())
		}
	}
	flush()
	if len(frags) == 0 {
		return nil, newErr(KindParse, "expected a word")
	}
	return frags, nil
}

// ReadSpecialStr is the entry point for the three-tier string
// grammar: it looks at what's under the cursor and dispatches to
// whichever of Raw/RawUnindent/Lit/LitUnindent/Bare applies.
func (p *Parser) ReadSpecialStr() (SpecialStr, error) {
	p.skipHSpace()
	if p.eof() {
		return SpecialStr{}, errYet
	}
	switch {
	case p.peek() == '\'' && p.matchesClose('\'', 3):
		p.pos += 3
		raw, err := p.readRawUntil('\'', 3)
		if err != nil {
			return SpecialStr{}, err
		}
		return Lit(dedent(raw)), nil
	case p.peek() == '\'':
		p.advance()
		raw, err := p.readRawUntil('\'', 1)
		if err != nil {
			return SpecialStr{}, err
		}
		return Lit(raw), nil
	case p.peek() == '"' && p.matchesClose('"', 3):
		p.pos += 3
		span, err := p.extractRawSpan('"', 3)
		if err != nil {
			return SpecialStr{}, err
		}
		sub := &Parser{input: []rune(dedent(span)), line: p.line}
		frags, err := sub.readLitFrags(false)
		if err != nil {
			return SpecialStr{}, err
		}
		return SpecialStr{Frags: frags}, nil
	case p.peek() == '"':
		p.advance()
		frags, err := p.readLitFrags(true)
		if err != nil {
			return SpecialStr{}, err
		}
		return SpecialStr{Frags: frags}, nil
	default:
		frags, err := p.readBareFrags()
		if err != nil {
			return SpecialStr{}, err
		}
		return SpecialStr{Frags: frags}, nil
	}
}
