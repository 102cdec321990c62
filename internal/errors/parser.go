package errors

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParsedError is the location and headline extracted from a tool's error
// output.
type ParsedError struct {
	File    string
	Line    int
	Column  int
	Message string
}

type locationPattern struct {
	regex *regexp.Regexp
	// message is the submatch index of an inline message, or 0 for none.
	message int
}

// locationPatterns recognise the location lines of the tools the stages
// delegate to, most specific first.
var locationPatterns = []locationPattern{
	// esbuild: "    src/main.js:3:7:"
	{regex: regexp.MustCompile(`^(\S+?):(\d+):(\d+):$`)},
	// Dart Sass stack: "  src/styles/_a.scss 12:3  root stylesheet"
	{regex: regexp.MustCompile(`^(\S+\.(?:scss|sass|css)) (\d+):(\d+)\s`)},
	// Inline "file:line:col: message", used by jade and Dart Sass spans.
	{regex: regexp.MustCompile(`^(\S+\.\w+):(\d+):(\d+):?\s+(.+)$`), message: 4},
	// "file:line: message"
	{regex: regexp.MustCompile(`^(\S+\.\w+):(\d+)():?\s+(.+)$`), message: 4},
}

// esbuildLevel matches the severity prefix of formatted esbuild messages.
var esbuildLevel = regexp.MustCompile(`^(?:[✘▲]\s*)?\[(?:ERROR|WARNING)\]\s*`)

// ParseToolOutput extracts the first location and the headline message from
// multi-line compiler output. It returns nil when output is blank.
func ParseToolOutput(output string) *ParsedError {
	var pe *ParsedError
	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if pe == nil {
			pe = &ParsedError{}
		}
		if pe.File == "" {
			if file, ln, col, msg, ok := matchLocation(line); ok {
				pe.File, pe.Line, pe.Column = file, ln, col
				if pe.Message == "" {
					pe.Message = msg
				}
				continue
			}
		}
		if pe.Message == "" {
			pe.Message = esbuildLevel.ReplaceAllString(line, "")
		}
		if pe.File != "" && pe.Message != "" {
			break
		}
	}
	return pe
}

func matchLocation(line string) (file string, ln, col int, msg string, ok bool) {
	for _, p := range locationPatterns {
		m := p.regex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ln, _ = strconv.Atoi(m[2])
		col, _ = strconv.Atoi(m[3])
		if p.message > 0 {
			msg = strings.TrimSpace(m[p.message])
		}
		return m[1], ln, col, msg, true
	}
	return "", 0, 0, "", false
}

// Location formats the position as file:line:col, omitting unknown parts.
func (pe *ParsedError) Location() string {
	if pe.File == "" {
		return ""
	}
	loc := pe.File
	if pe.Line > 0 {
		loc += ":" + strconv.Itoa(pe.Line)
		if pe.Column > 0 {
			loc += ":" + strconv.Itoa(pe.Column)
		}
	}
	return loc
}

// Summary is the location followed by the message, the form shown in
// notifications.
func (pe *ParsedError) Summary() string {
	if loc := pe.Location(); loc != "" {
		return fmt.Sprintf("%s\n%s", loc, pe.Message)
	}
	return pe.Message
}

// NotificationMessage condenses err into the short text of a desktop
// notification.
func NotificationMessage(err error) string {
	if err == nil {
		return ""
	}
	if pe := ParseToolOutput(err.Error()); pe != nil {
		return pe.Summary()
	}
	return err.Error()
}
