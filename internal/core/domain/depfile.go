package domain

import "strings"

// DepFile is the parsed content of a make-style dependency-listing file.
type DepFile struct {
	// Target is the path before the colon on the first line.
	Target string
	// Deps lists every prerequisite in file order, without duplicates.
	Deps []string
	// Command is the build command recorded on a tab-prefixed line, if any.
	Command string
}

// ParseDepFile parses the lines of a dependency-listing file:
//
//	obj/a.o: src/a.cpp include/a.h \
//	  include/b.h
//		c++ -c src/a.cpp -o obj/a.o
//
// A line starting with a tab holds the recorded command and ends parsing.
// Backslash-space is a literal space and a trailing backslash continues the line.
func ParseDepFile(lines []string) DepFile {
	var df DepFile
	seen := make(map[string]struct{})
	first := true

	for _, line := range lines {
		if strings.HasPrefix(line, "\t") {
			df.Command = strings.TrimSpace(line)
			break
		}
		for _, tok := range splitDepTokens(line) {
			if first {
				first = false
				if name, ok := strings.CutSuffix(tok, ":"); ok {
					df.Target = name
					continue
				}
				if name, rest, ok := strings.Cut(tok, ":"); ok && rest != "" {
					df.Target = name
					tok = rest
				} else {
					df.Target = tok
					continue
				}
			}
			if tok == ":" || tok == "\\" {
				continue
			}
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			df.Deps = append(df.Deps, tok)
		}
	}
	return df
}

// splitDepTokens splits one line on unescaped whitespace and drops
// continuation backslashes.
func splitDepTokens(line string) []string {
	var (
		tokens []string
		cur    strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\\' && i+1 < len(line) && line[i+1] == ' ':
			cur.WriteByte(' ')
			i++
		case c == '\\' && i+1 == len(line):
			// continuation marker
		case c == '$' && i+1 < len(line) && line[i+1] == '$':
			cur.WriteByte('$')
			i++
		case c == ' ' || c == '\t' || c == '\r':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return tokens
}

// FormatDepFile renders a dependency-listing file with a recorded command line.
func FormatDepFile(df DepFile) string {
	var b strings.Builder
	b.WriteString(escapeDepPath(df.Target))
	b.WriteString(":")
	for _, dep := range df.Deps {
		b.WriteString(" \\\n  ")
		b.WriteString(escapeDepPath(dep))
	}
	b.WriteString("\n")
	if df.Command != "" {
		b.WriteString("\t")
		b.WriteString(df.Command)
		b.WriteString("\n")
	}
	return b.String()
}

func escapeDepPath(p string) string {
	p = strings.ReplaceAll(p, "$", "$$")
	return strings.ReplaceAll(p, " ", "\\ ")
}
