package luadec

import (
	"strings"

	"github.com/chazu/romscript/luaval"
)

// scanner states for consumeBlock.
const (
	scanNormal = iota
	scanInString
	scanEscaped
)

// consumeBlock returns the balanced {...} block starting at start and the
// position just past it. Single-quoted string literals are honored so braces
// and quotes inside them do not affect nesting; a backslash escapes the next
// character inside a literal. ok is false when the block never closes.
func consumeBlock(text string, start int) (block string, next int, ok bool) {
	depth := 0
	state := scanNormal
	for i := start; i < len(text); i++ {
		ch := text[i]
		switch state {
		case scanInString:
			switch ch {
			case '\\':
				state = scanEscaped
			case '\'':
				state = scanNormal
			}
		case scanEscaped:
			state = scanInString
		default:
			switch ch {
			case '\'':
				state = scanInString
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return text[start : i+1], i + 1, true
				}
			}
		}
	}
	return "", start, false
}

// ScanSnippets walks already-decoded source text and yields every top-level
// {...} snippet containing an `id=` field. The anchor is deliberately the
// literal substring `id=`: the table dumps this runs against always spell
// the field that way, and widening the match would pull in unrelated tables.
func ScanSnippets(text string) []string {
	var snippets []string
	pos := 0
	for {
		idx := strings.Index(text[pos:], "id=")
		if idx == -1 {
			break
		}
		idx += pos

		start := strings.LastIndexByte(text[:idx], '{')
		if start == -1 {
			pos = idx + 3
			continue
		}
		// Skip sub-tables that are themselves assigned to a field: the
		// enclosing record will be picked up instead.
		if start > 0 {
			prev := text[start-1]
			if prev == '=' || (prev == '{' && start > 1 && text[start-2] == '=') {
				pos = idx + 3
				continue
			}
		}

		block, next, ok := consumeBlock(text, start)
		if !ok {
			pos = idx + 3
			continue
		}
		snippets = append(snippets, block)
		pos = next
	}
	return snippets
}

// ScanRecords parses every snippet ScanSnippets finds. Snippets that fail to
// parse are dropped; a single mangled record must not poison the batch.
func ScanRecords(text string) []luaval.Value {
	var records []luaval.Value
	for _, snippet := range ScanSnippets(text) {
		v, err := ParseLiteral(snippet)
		if err != nil {
			continue
		}
		records = append(records, v)
	}
	return records
}
