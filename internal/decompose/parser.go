package decompose

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/todmy/docguard/pkg/models"
)

var (
	headingLine  = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	fenceLine    = regexp.MustCompile("^\\s*```")
	tableLine    = regexp.MustCompile(`^\s*\|`)
	listItemLine = regexp.MustCompile(`^\s*([-*+]|\d+\.)\s+`)
)

type parseState int

const (
	stateNone parseState = iota
	stateHeading
	stateCode
	stateTable
	stateList
	stateParagraph
)

type sectionBuilder struct {
	sections []models.RawSection

	state   parseState
	lines   []string
	start   int
	end     int
	level   int
	heading string
}

func (b *sectionBuilder) begin(state parseState, lineNo int) {
	b.flush()
	b.state = state
	b.start = lineNo
}

func (b *sectionBuilder) add(line string, lineNo int) {
	b.lines = append(b.lines, line)
	if strings.TrimSpace(line) != "" {
		b.end = lineNo
	}
}

func (b *sectionBuilder) flush() {
	content := strings.TrimRightFunc(strings.Join(b.lines, "\n"), unicode.IsSpace)
	if strings.TrimSpace(content) != "" {
		b.sections = append(b.sections, models.RawSection{
			Content:      content,
			StartLine:    b.start,
			EndLine:      b.end,
			HeadingLevel: b.level,
			HeadingText:  b.heading,
			Type:         sectionType(b.state),
		})
	}
	b.state = stateNone
	b.lines = nil
	b.level = 0
	b.heading = ""
}

func sectionType(s parseState) models.SectionType {
	switch s {
	case stateHeading:
		return models.SectionHeading
	case stateCode:
		return models.SectionCode
	case stateTable:
		return models.SectionTable
	case stateList:
		return models.SectionList
	default:
		return models.SectionParagraph
	}
}

// ParseSections splits markdown into structural sections in one pass.
// A heading section keeps the prose that follows it; code fences, tables
// and lists become sections of their own. Line numbers are 1-based.
func ParseSections(content string) []models.RawSection {
	b := &sectionBuilder{}
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	for i, line := range lines {
		lineNo := i + 1

		if b.state == stateCode {
			b.add(line, lineNo)
			if fenceLine.MatchString(line) {
				b.flush()
			}
			continue
		}

		switch {
		case fenceLine.MatchString(line):
			b.begin(stateCode, lineNo)
			b.add(line, lineNo)

		case headingLine.MatchString(line):
			m := headingLine.FindStringSubmatch(line)
			b.begin(stateHeading, lineNo)
			b.level = len(m[1])
			b.heading = strings.TrimSpace(strings.TrimRight(m[2], "# "))
			b.add(line, lineNo)

		case tableLine.MatchString(line):
			if b.state != stateTable {
				b.begin(stateTable, lineNo)
			}
			b.add(line, lineNo)

		case listItemLine.MatchString(line):
			if b.state != stateList {
				b.begin(stateList, lineNo)
			}
			b.add(line, lineNo)

		case strings.TrimSpace(line) == "":
			switch b.state {
			case stateHeading:
				b.add(line, lineNo)
			case stateParagraph, stateTable, stateList:
				b.flush()
			}

		default:
			switch b.state {
			case stateHeading, stateParagraph:
				b.add(line, lineNo)
			case stateList:
				if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
					b.add(line, lineNo)
					continue
				}
				b.begin(stateParagraph, lineNo)
				b.add(line, lineNo)
			default:
				b.begin(stateParagraph, lineNo)
				b.add(line, lineNo)
			}
		}
	}
	b.flush()

	return b.sections
}
