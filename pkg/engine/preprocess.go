package engine

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// preprocessSource rewrites meshql Lisp into source zygomys accepts:
//
//  1. :keyword becomes the string literal "__kw_keyword", so keywords need
//     no global symbols and cannot collide with user variables.
//  2. kebab-case identifiers become snake_case (transfinite-auto ->
//     transfinite_auto); zygomys reads a hyphen as subtraction.
//  3. ; line comments become // comments.
//
// String literals, both double-quoted and backtick, pass through untouched,
// so selection predicates keep their operators.
func preprocessSource(source string) string {
	p := preprocessor{src: []byte(source)}
	p.out = make([]byte, 0, len(source)+len(source)/4)
	for p.i < len(p.src) {
		c := p.src[p.i]
		switch {
		case c == '"':
			p.quoted('"', true)
		case c == '`':
			p.quoted('`', false)
		case c == ';':
			p.comment()
		case c == ':' && p.i+1 < len(p.src) && p.src[p.i+1] == '=':
			p.copy(2)
		case c == ':' && p.i+1 < len(p.src) && isLetter(p.src[p.i+1]):
			p.keyword()
		case c == '-' && p.i > 0 && p.i+1 < len(p.src) &&
			isIdentChar(p.src[p.i-1]) && isIdentStartChar(p.src[p.i+1]):
			p.out = append(p.out, '_')
			p.i++
		default:
			p.copy(1)
		}
	}
	return string(p.out)
}

type preprocessor struct {
	src []byte
	out []byte
	i   int
}

func (p *preprocessor) copy(n int) {
	p.out = append(p.out, p.src[p.i:p.i+n]...)
	p.i += n
}

// quoted copies a string literal delimited by q.
func (p *preprocessor) quoted(q byte, escapes bool) {
	p.copy(1)
	for p.i < len(p.src) && p.src[p.i] != q {
		if escapes && p.src[p.i] == '\\' && p.i+1 < len(p.src) {
			p.copy(2)
			continue
		}
		p.copy(1)
	}
	if p.i < len(p.src) {
		p.copy(1)
	}
}

func (p *preprocessor) comment() {
	p.out = append(p.out, '/', '/')
	for p.i < len(p.src) && p.src[p.i] == ';' {
		p.i++
	}
	for p.i < len(p.src) && p.src[p.i] != '\n' {
		p.copy(1)
	}
}

func (p *preprocessor) keyword() {
	j := p.i + 1
	for j < len(p.src) && isKWChar(p.src[j]) {
		j++
	}
	p.out = append(p.out, '"')
	p.out = append(p.out, kwPrefix...)
	p.out = append(p.out, p.src[p.i+1:j]...)
	p.out = append(p.out, '"')
	p.i = j
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}
