package decompose

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/todmy/docguard/pkg/models"
)

var anchorLink = regexp.MustCompile(`\[[^\]]*\]\(#([^)\s]+)\)`)

// Slugify lowercases s and joins its alphanumeric runs with dashes
func Slugify(s string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			sb.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return sb.String()
}

type keySet map[string]int

func newKeySet() keySet { return keySet{} }

// unique returns key, or key-N when key was already handed out
func (ks keySet) unique(key string) string {
	if key == "" {
		key = "section"
	}
	ks[key]++
	n := ks[key]
	if n == 1 {
		return key
	}
	candidate := key + "-" + strconv.Itoa(n)
	for ks[candidate] > 0 {
		n++
		candidate = key + "-" + strconv.Itoa(n)
	}
	ks[candidate]++
	return candidate
}

// MapDependencies fills DependsOn from anchor links and whole-word title mentions.
// Edges point at other modules only and are deduplicated in module order.
func MapDependencies(modules []*models.Module) {
	byAnchor := make(map[string]string)
	for _, m := range modules {
		byAnchor[strings.ToLower(m.ModuleKey)] = m.ModuleKey
		if slug := Slugify(m.Title); slug != "" {
			if _, taken := byAnchor[slug]; !taken {
				byAnchor[slug] = m.ModuleKey
			}
		}
	}

	titleMatchers := make([]*regexp.Regexp, len(modules))
	for i, m := range modules {
		title := strings.TrimSpace(m.Title)
		if title == "" {
			continue
		}
		titleMatchers[i] = regexp.MustCompile(`(?i)(^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(title) + `($|[^\p{L}\p{N}_])`)
	}

	for _, m := range modules {
		deps := make(map[string]bool)

		for _, match := range anchorLink.FindAllStringSubmatch(m.Content, -1) {
			if key, ok := byAnchor[strings.ToLower(match[1])]; ok && key != m.ModuleKey {
				deps[key] = true
			}
		}

		body := stripOwnHeading(m.Content)
		for i, other := range modules {
			if other.ModuleKey == m.ModuleKey || titleMatchers[i] == nil {
				continue
			}
			if titleMatchers[i].MatchString(body) {
				deps[other.ModuleKey] = true
			}
		}

		edges := []string{}
		for _, other := range modules {
			if deps[other.ModuleKey] {
				edges = append(edges, other.ModuleKey)
			}
		}
		m.DependsOn = edges
	}
}

// stripOwnHeading drops a leading markdown heading line so a module does not
// depend on every module whose title appears in its own heading
func stripOwnHeading(content string) string {
	if headingLine.MatchString(firstLine(content)) {
		if i := strings.IndexByte(content, '\n'); i >= 0 {
			return content[i+1:]
		}
		return ""
	}
	return content
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
