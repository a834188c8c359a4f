package device

import (
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/devicelab-dev/otpcap/pkg/core"
	"github.com/devicelab-dev/otpcap/pkg/locate"
)

// Element is one node of a uiautomator hierarchy dump.
type Element struct {
	Text        string
	ResourceID  string
	ContentDesc string
	HintText    string
	ClassName   string
	Bounds      core.Bounds
	Enabled     bool
}

// ParseHierarchy parses uiautomator XML into a flat element list in
// document order. Both the <node> format and class-named tags are accepted.
func ParseHierarchy(xmlData string) ([]*Element, error) {
	decoder := xml.NewDecoder(strings.NewReader(xmlData))
	decoder.Strict = false

	var elements []*Element
	foundHierarchy := false

	for {
		token, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if len(elements) == 0 {
				return nil, err
			}
			break
		}

		if t, ok := token.(xml.StartElement); ok {
			if t.Name.Local == "hierarchy" {
				foundHierarchy = true
				continue
			}
			elements = append(elements, newElement(t))
		}
	}

	if !foundHierarchy {
		return nil, fmt.Errorf("invalid page source: no hierarchy element found")
	}
	return elements, nil
}

func newElement(t xml.StartElement) *Element {
	elem := &Element{ClassName: t.Name.Local, Enabled: true}
	for _, attr := range t.Attr {
		switch attr.Name.Local {
		case "text":
			elem.Text = attr.Value
		case "resource-id":
			elem.ResourceID = attr.Value
		case "content-desc":
			elem.ContentDesc = attr.Value
		case "hint":
			elem.HintText = attr.Value
		case "class":
			elem.ClassName = attr.Value
		case "bounds":
			elem.Bounds = parseBounds(attr.Value)
		case "enabled":
			elem.Enabled = attr.Value == "true"
		}
	}
	return elem
}

// parseBounds parses Android bounds string "[x1,y1][x2,y2]" to Bounds.
func parseBounds(s string) core.Bounds {
	s = strings.ReplaceAll(s, "][", ",")
	s = strings.Trim(s, "[]")
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return core.Bounds{}
	}

	x1, _ := strconv.Atoi(parts[0])
	y1, _ := strconv.Atoi(parts[1])
	x2, _ := strconv.Atoi(parts[2])
	y2, _ := strconv.Atoi(parts[3])

	return core.Bounds{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// ElementsText joins the non-empty text and content-desc values, one per line.
func ElementsText(elements []*Element) string {
	var lines []string
	for _, e := range elements {
		for _, v := range []string{e.Text, e.ContentDesc} {
			if v = strings.TrimSpace(v); v != "" {
				lines = append(lines, v)
			}
		}
	}
	return strings.Join(lines, "\n")
}

var (
	attrPatterns  = map[string]*regexp.Regexp{}
	attrPatternMu sync.Mutex
)

// attrPattern returns the cached matcher for name="value".
func attrPattern(name string) *regexp.Regexp {
	attrPatternMu.Lock()
	defer attrPatternMu.Unlock()
	if re, ok := attrPatterns[name]; ok {
		return re
	}
	re := regexp.MustCompile(`(?:^|[^\w-])` + regexp.QuoteMeta(name) + `="([^"]*)"`)
	attrPatterns[name] = re
	return re
}

// AttributeText scans raw dump output line by line and collects the quoted
// values of the named attributes. It works on dumpsys output and on XML that
// failed to parse.
func AttributeText(raw string, names ...string) string {
	patterns := make([]*regexp.Regexp, len(names))
	for i, name := range names {
		patterns[i] = attrPattern(name)
	}
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		for _, re := range patterns {
			for _, m := range re.FindAllStringSubmatch(line, -1) {
				if v := strings.TrimSpace(html.UnescapeString(m[1])); v != "" {
					lines = append(lines, v)
				}
			}
		}
	}
	return strings.Join(lines, "\n")
}

// MatchLocator returns the first element the locator selects. Coords
// locators never match an element.
func MatchLocator(elements []*Element, l locate.Locator) (*Element, bool) {
	for _, e := range elements {
		if matches(e, l) {
			return e, true
		}
	}
	return nil, false
}

func matches(e *Element, l locate.Locator) bool {
	switch l.Kind {
	case locate.KindID:
		return e.ResourceID == l.Value || strings.HasSuffix(e.ResourceID, ":id/"+l.Value)
	case locate.KindText:
		return strings.EqualFold(strings.TrimSpace(e.Text), l.Value)
	case locate.KindDesc:
		return strings.EqualFold(strings.TrimSpace(e.ContentDesc), l.Value)
	case locate.KindHint:
		return strings.EqualFold(strings.TrimSpace(e.HintText), l.Value)
	case locate.KindContains:
		v := strings.ToLower(l.Value)
		return strings.Contains(strings.ToLower(e.Text), v) ||
			strings.Contains(strings.ToLower(e.ContentDesc), v) ||
			strings.Contains(strings.ToLower(e.HintText), v)
	}
	return false
}
