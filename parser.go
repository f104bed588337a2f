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

import "github.com/pkg/errors"

// errYet is the sentinel that distinguishes "this line is incomplete,
// read more" from a genuine syntax error. It never escapes Parse as
// the public return value — Parse translates it to ok=false.
var errYet = errors.New("incomplete")

// Parser is a recursive-descent parser over a rune buffer. It doubles
// as the lexer: string-reading methods (lexer.go) live on the same
// type so that command substitution, a full Command production
// nested inside a string, can call back into parseCommand without a
// second type threading its own cursor.
type Parser struct {
	input []rune
	pos   int
	line  int
}

// Parse parses one full top-level statement line, which may itself
// contain several `;`/newline separated statements — these are always
// wrapped in a BlockMulti so a single bare command and a `;`-joined
// sequence both get the same mark/drop scoping at top level.
//
// ok is false when the input is well-formed so far but incomplete
// (an unterminated string or an open brace); the caller should read a
// continuation line, append it, and call Parse again on the whole
// accumulated text.
func Parse(src string) (block *Block, ok bool, err error) {
	p := &Parser{input: []rune(src), line: 1}
	p.skipBlankSeparators()
	var lines []*Block
	for {
		p.skipHSpace()
		if p.eof() {
			break
		}
		b, berr := p.parseBlock()
		if berr != nil {
			if errors.Is(berr, errYet) {
				return nil, false, nil
			}
			return nil, false, berr
		}
		lines = append(lines, b)
		p.skipHSpace()
		if p.eof() {
			break
		}
		if p.peek() == ';' || p.peek() == '\n' {
			p.advance()
			p.skipBlankSeparators()
			continue
		}
		return nil, false, newErr(KindParse, "unexpected trailing input")
	}
	return &Block{Kind: BlockMulti, Lines: lines}, true, nil
}

func (p *Parser) parseBlock() (*Block, error) {
	p.skipHSpace()
	if p.eof() {
		return nil, errYet
	}
	switch {
	case p.peek() == '{':
		return p.parseMulti()
	case p.matchKeyword("break"):
		return &Block{Kind: BlockBreak}, nil
	case p.matchKeyword("continue"):
		return &Block{Kind: BlockContinue}, nil
	case p.matchKeyword("while"):
		return p.parseWhile()
	case p.matchKeyword("for"):
		return p.parseFor()
	case p.matchKeyword("case"):
		return p.parseCase()
	case p.matchKeyword("if"):
		return p.parseIf()
	case p.matchKeyword("proc"):
		return p.parseProcKeyword()
	}
	if name, ok := p.tryParseProcHeader(); ok {
		return p.parseProc(name)
	}
	return p.parseCommandBlock()
}

// matchKeyword consumes a reserved word only if it appears whole
// (not as a prefix of a longer bare word) at the cursor.
func (p *Parser) matchKeyword(kw string) bool {
	save := p.pos
	runes := []rune(kw)
	for i, r := range runes {
		if p.peekAt(i) != r {
			return false
		}
	}
	after := p.peekAt(len(runes))
	if isIdentCont(after) {
		return false
	}
	p.pos = save + len(runes)
	return true
}

// tryParseProcHeader looks ahead for `NAME WS? "{"` without consuming
// anything if it doesn't match, leaving the cursor right before the
// `{` on success so parseBlock's BlockMulti path picks it up.
func (p *Parser) tryParseProcHeader() (string, bool) {
	save := p.pos
	if !isIdentStart(p.peek()) {
		return "", false
	}
	start := p.pos
	for !p.eof() && isIdentCont(p.peek()) {
		p.advance()
	}
	name := string(p.input[start:p.pos])
	p.skipHSpace()
	if !p.eof() && p.peek() == '{' {
		return name, true
	}
	p.pos = save
	return "", false
}

func (p *Parser) parseMulti() (*Block, error) {
	p.advance() // '{'
	var lines []*Block
	for {
		p.skipBlankSeparators()
		if p.eof() {
			return nil, errYet
		}
		if p.peek() == '}' {
			p.advance()
			return &Block{Kind: BlockMulti, Lines: lines}, nil
		}
		b, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		lines = append(lines, b)
		p.skipHSpace()
		if p.eof() {
			return nil, errYet
		}
		if p.peek() != ';' && p.peek() != '\n' && p.peek() != '}' {
			return nil, newErr(KindParse, "expected ';', a newline, or '}'")
		}
	}
}

func (p *Parser) parseWhile() (*Block, error) {
	p.skipHSpace()
	cond, err := p.ReadSpecialStr()
	if err != nil {
		return nil, err
	}
	p.skipHSpace()
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &Block{Kind: BlockWhile, Cond: &cond, Body: body}, nil
}

func (p *Parser) parseFor() (*Block, error) {
	p.skipHSpace()
	start := p.pos
	for !p.eof() && isIdentCont(p.peek()) {
		p.advance()
	}
	name := string(p.input[start:p.pos])
	if name == "" {
		return nil, newErr(KindParse, "expected a loop variable name")
	}
	p.skipHSpace()
	if !p.matchKeyword("in") {
		return nil, newErr(KindParse, "expected 'in'")
	}
	p.skipHSpace()
	iter, err := p.ReadSpecialStr()
	if err != nil {
		return nil, err
	}
	p.skipHSpace()
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &Block{Kind: BlockFor, Var: name, Iter: &iter, Body: body}, nil
}

func (p *Parser) parseIf() (*Block, error) {
	p.skipHSpace()
	cond, err := p.ReadSpecialStr()
	if err != nil {
		return nil, err
	}
	p.skipHSpace()
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	blk := &Block{Kind: BlockIf, Cond: &cond, Then: then}
	save := p.pos
	p.skipBlankSeparators()
	if p.matchKeyword("else") {
		p.skipHSpace()
		elseBlk, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		blk.Else = elseBlk
	} else {
		p.pos = save
	}
	return blk, nil
}

func (p *Parser) matchArrow() bool {
	if p.peek() == '=' && p.peekAt(1) == '>' {
		p.advance()
		p.advance()
		return true
	}
	return false
}

func (p *Parser) parseCase() (*Block, error) {
	p.skipHSpace()
	cond, err := p.ReadSpecialStr()
	if err != nil {
		return nil, err
	}
	p.skipHSpace()
	if p.eof() {
		return nil, errYet
	}
	if p.peek() != '{' {
		return nil, newErr(KindParse, "expected '{' after case subject")
	}
	p.advance()
	var branches []CaseBranch
	for {
		p.skipBlankSeparators()
		if p.eof() {
			return nil, errYet
		}
		if p.peek() == '}' {
			p.advance()
			break
		}
		var pats []SpecialStr
		for {
			pat, err := p.ReadSpecialStr()
			if err != nil {
				return nil, err
			}
			pats = append(pats, pat)
			p.skipHSpace()
			if p.peek() == '|' {
				p.advance()
				p.skipHSpace()
				continue
			}
			break
		}
		if !p.matchArrow() {
			return nil, newErr(KindParse, "expected '=>' in case branch")
		}
		p.skipHSpace()
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		branches = append(branches, CaseBranch{Pats: pats, Body: body})
		p.skipHSpace()
	}
	return &Block{Kind: BlockCase, CaseCond: &cond, Branches: branches}, nil
}

// parseProcKeyword handles the explicit `proc NAME { ... }` spelling;
// the bare `NAME { ... }` header form is recognized separately by
// tryParseProcHeader.
func (p *Parser) parseProcKeyword() (*Block, error) {
	p.skipHSpace()
	start := p.pos
	for !p.eof() && isIdentCont(p.peek()) {
		p.advance()
	}
	name := string(p.input[start:p.pos])
	if name == "" {
		return nil, newErr(KindParse, "expected a procedure name")
	}
	p.skipHSpace()
	if p.eof() {
		return nil, errYet
	}
	if p.peek() != '{' {
		return nil, newErr(KindParse, "expected '{' after procedure name")
	}
	return p.parseProc(name)
}

func (p *Parser) parseProc(name string) (*Block, error) {
	body, err := p.parseBlock() // cursor sits right at '{'
	if err != nil {
		return nil, err
	}
	return &Block{Kind: BlockProc, ProcName: name, ProcBody: body}, nil
}

func (p *Parser) parseCommandBlock() (*Block, error) {
	cmd, err := p.parseCommand()
	if err != nil {
		return nil, err
	}
	return &Block{Kind: BlockSingle, Cmd: cmd}, nil
}

// parseCommand implements `SpecialStr (WS Arg)* ("|" Command)?
// ("&")?`. The trailing `&`, if present, is recorded on whichever
// Command object is being built when it's reached — i.e. the last
// stage of a pipe chain — and lastStage() (eval.go) recovers it.
func (p *Parser) parseCommand() (*Command, error) {
	name, err := p.ReadSpecialStr()
	if err != nil {
		return nil, err
	}
	cmd := &Command{Name: name}
	for {
		p.skipHSpace()
		if p.eof() {
			return cmd, nil
		}
		switch p.peek() {
		case '\n', ';', '}', ')':
			return cmd, nil
		case '|':
			p.advance()
			p.skipHSpace()
			sub, err := p.parseCommand()
			if err != nil {
				return nil, err
			}
			cmd.Pipe = sub
			return cmd, nil
		case '&':
			// `&>`/`&>>` is a both-streams redirect, not a
			// background marker; let parseArg pick it up.
			if p.peekAt(1) != '>' {
				p.advance()
				cmd.Bg = true
				return cmd, nil
			}
		}
		arg, err := p.parseArg()
		if err != nil {
			return nil, err
		}
		cmd.Args = append(cmd.Args, arg)
	}
}

func (p *Parser) parseArg() (Arg, error) {
	if red, ok, err := p.tryParseRedirect(); err != nil {
		return Arg{}, err
	} else if ok {
		return Arg{Kind: ArgRedirect, Redirect: red}, nil
	}
	if p.peek() == '!' {
		p.advance()
		s, err := p.ReadSpecialStr()
		if err != nil {
			return Arg{}, err
		}
		return Arg{Kind: ArgExpand, Str: s}, nil
	}
	s, err := p.ReadSpecialStr()
	if err != nil {
		return Arg{}, err
	}
	return Arg{Kind: ArgPlain, Str: s}, nil
}

// tryParseRedirect recognizes the RedKind prefixes at the cursor; on
// no match it restores the cursor and returns ok=false so parseArg
// falls through to an ordinary SpecialStr argument.
func (p *Parser) tryParseRedirect() (Redirect, bool, error) {
	save := p.pos
	switch {
	case p.peek() == '>':
		p.advance()
		kind := RedOverwriteStdout
		if p.peek() == '>' {
			p.advance()
			kind = RedAppendStdout
		}
		return p.finishRedirect(kind)
	case (p.peek() == '1' || p.peek() == '-' || p.peek() == 'o') && p.peekAt(1) == '>':
		p.advance()
		p.advance()
		kind := RedOverwriteStdout
		if p.peek() == '>' {
			p.advance()
			kind = RedAppendStdout
		}
		return p.finishRedirect(kind)
	case (p.peek() == '2' || p.peek() == '=' || p.peek() == 'e') && p.peekAt(1) == '>':
		p.advance()
		p.advance()
		kind := RedOverwriteStderr
		if p.peek() == '>' {
			p.advance()
			kind = RedAppendStderr
		}
		return p.finishRedirect(kind)
	case p.peek() == '&' && p.peekAt(1) == '>':
		p.advance()
		p.advance()
		kind := RedOverwriteBoth
		if p.peek() == '>' {
			p.advance()
			kind = RedAppendBoth
		}
		return p.finishRedirect(kind)
	case p.peek() == '<':
		p.advance()
		switch p.peek() {
		case '<', '-', '=', 'h':
			p.advance()
			return p.finishRedirect(RedHereDoc)
		default:
			return p.finishRedirect(RedStdin)
		}
	default:
		p.pos = save
		return Redirect{}, false, nil
	}
}

func (p *Parser) finishRedirect(kind RedKind) (Redirect, bool, error) {
	p.skipHSpace()
	target, err := p.parseRedTarget()
	if err != nil {
		return Redirect{}, false, err
	}
	return Redirect{Kind: kind, Target: target}, true, nil
}

func (p *Parser) parseRedTarget() (RedTarget, error) {
	if p.peek() == '&' {
		p.advance()
		switch p.peek() {
		case '0':
			p.advance()
			return RedTarget{Kind: RedTargetStdin}, nil
		case '1':
			p.advance()
			return RedTarget{Kind: RedTargetStdout}, nil
		case '2':
			p.advance()
			return RedTarget{Kind: RedTargetStderr}, nil
		case '!':
			p.advance()
			return RedTarget{Kind: RedTargetNull}, nil
		default:
			return RedTarget{}, newErr(KindParse, "expected 0, 1, 2 or ! after '&'")
		}
	}
	s, err := p.ReadSpecialStr()
	if err != nil {
		return RedTarget{}, err
	}
	return RedTarget{Kind: RedTargetOther, Other: s}, nil
}
