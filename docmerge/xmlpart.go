package docmerge

import (
	"bytes"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/hazyhaar/docmerge/tabular"
)

// xmlDialect describes where flowed text lives inside a packaged XML part.
type xmlDialect struct {
	// paragraphs are the elements bounding a text group. A placeholder
	// may span several text nodes, never several groups.
	paragraphs map[string]bool

	// textElem is the element whose character data is document text.
	// Empty means any character data inside a paragraph.
	textElem string

	// lineBreak replaces "\n" in inserted values.
	lineBreak string

	// preserve adds xml:space="preserve" to rewritten textElem tags.
	preserve bool

	// space encodes spaces and tabs of an escaped value line, for
	// formats that collapse whitespace in character data.
	space func(string) string
}

var docxDialect = &xmlDialect{
	paragraphs: map[string]bool{"w:p": true},
	textElem:   "w:t",
	lineBreak:  `</w:t><w:br/><w:t xml:space="preserve">`,
	preserve:   true,
}

var odtDialect = &xmlDialect{
	paragraphs: map[string]bool{"text:p": true, "text:h": true},
	lineBreak:  `<text:line-break/>`,
	space:      odfSpace,
}

// odfSpace keeps the first space of a run and writes the rest as
// <text:s text:c="n"/>. Tabs become <text:tab/>.
func odfSpace(v string) string {
	if !strings.ContainsAny(v, " \t") {
		return v
	}
	var b strings.Builder
	for i := 0; i < len(v); {
		switch v[i] {
		case '\t':
			b.WriteString("<text:tab/>")
			i++
		case ' ':
			j := i
			for j < len(v) && v[j] == ' ' {
				j++
			}
			b.WriteByte(' ')
			if n := j - i - 1; n == 1 {
				b.WriteString("<text:s/>")
			} else if n > 1 {
				fmt.Fprintf(&b, `<text:s text:c="%d"/>`, n)
			}
			i = j
		default:
			b.WriteByte(v[i])
			i++
		}
	}
	return b.String()
}

var xmlTextEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func (d *xmlDialect) value(v string) string {
	v = strings.ReplaceAll(v, "\r\n", "\n")
	lines := strings.Split(v, "\n")
	for i := range lines {
		lines[i] = xmlTextEscaper.Replace(lines[i])
		if d.space != nil {
			lines[i] = d.space(lines[i])
		}
	}
	return strings.Join(lines, d.lineBreak)
}

// textNode is one run of character data holding document text.
type textNode struct {
	start, end int // escaped character data, byte offsets in the part
	tagEnd     int // end of the enclosing textElem start tag, 0 if none
	tagPreserv bool
	text       string // decoded
}

type textGroup struct {
	nodes   []textNode
	offsets []int // offset of each node in text
	text    string
}

// xmlPart is a scanned XML part. The raw bytes are kept untouched; only
// the byte ranges of rewritten text nodes change on render.
type xmlPart struct {
	name    string
	raw     []byte
	dialect *xmlDialect
	groups  []textGroup
}

func parseXMLPart(name string, raw []byte, d *xmlDialect) (*xmlPart, error) {
	p := &xmlPart{name: name, raw: raw, dialect: d}

	var (
		cur       textGroup
		sb        strings.Builder
		inText    bool
		tagEnd    int
		preserved bool
		depth     int
	)
	flush := func() {
		if len(cur.nodes) > 0 {
			cur.text = sb.String()
			p.groups = append(p.groups, cur)
		}
		cur = textGroup{}
		sb.Reset()
	}

	for i := 0; i < len(raw); {
		if raw[i] != '<' {
			j := bytes.IndexByte(raw[i:], '<')
			if j < 0 {
				j = len(raw)
			} else {
				j += i
			}
			eligible := depth > 0
			if d.textElem != "" {
				eligible = inText
			}
			if eligible {
				text := html.UnescapeString(string(raw[i:j]))
				cur.offsets = append(cur.offsets, sb.Len())
				cur.nodes = append(cur.nodes, textNode{
					start: i, end: j, tagEnd: tagEnd, tagPreserv: preserved, text: text,
				})
				sb.WriteString(text)
			}
			i = j
			continue
		}

		end, isTag, err := scanMarkup(raw, i)
		if err != nil {
			return nil, err
		}
		if isTag {
			tag := raw[i:end]
			elem, closing, selfClosing := tagName(tag)
			if d.paragraphs[elem] {
				flush()
				switch {
				case closing:
					if depth > 0 {
						depth--
					}
				case !selfClosing:
					depth++
				}
			}
			if d.textElem != "" && elem == d.textElem {
				switch {
				case closing:
					inText = false
				case !selfClosing:
					inText = true
					tagEnd = end
					preserved = bytes.Contains(tag, []byte("xml:space"))
				}
			}
		}
		i = end
	}
	flush()
	return p, nil
}

// scanMarkup returns the offset just past the markup starting at raw[i]
// and whether it is an element tag (as opposed to a comment, processing
// instruction, CDATA section or declaration).
func scanMarkup(raw []byte, i int) (int, bool, error) {
	rest := raw[i:]
	find := func(term string) (int, bool, error) {
		k := bytes.Index(rest, []byte(term))
		if k < 0 {
			return 0, false, fmt.Errorf("unterminated markup at offset %d", i)
		}
		return i + k + len(term), false, nil
	}
	switch {
	case bytes.HasPrefix(rest, []byte("<!--")):
		return find("-->")
	case bytes.HasPrefix(rest, []byte("<![CDATA[")):
		return find("]]>")
	case bytes.HasPrefix(rest, []byte("<?")):
		return find("?>")
	case bytes.HasPrefix(rest, []byte("<!")):
		return find(">")
	}

	var quote byte
	for k := 1; k < len(rest); k++ {
		c := rest[k]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return i + k + 1, true, nil
		}
	}
	return 0, false, fmt.Errorf("unterminated tag at offset %d", i)
}

// tagName parses "<name ...>", "</name>" or "<name/>".
func tagName(tag []byte) (name string, closing, selfClosing bool) {
	s := tag[1 : len(tag)-1]
	if len(s) > 0 && s[0] == '/' {
		closing = true
		s = s[1:]
	}
	if len(s) > 0 && s[len(s)-1] == '/' {
		selfClosing = true
		s = s[:len(s)-1]
	}
	end := bytes.IndexAny(s, " \t\r\n/")
	if end < 0 {
		end = len(s)
	}
	return string(s[:end]), closing, selfClosing
}

// Text is the normalized view of the part: one line per non-empty group.
func (p *xmlPart) Text() string {
	lines := make([]string, 0, len(p.groups))
	for _, g := range p.groups {
		if g.text != "" {
			lines = append(lines, g.text)
		}
	}
	return strings.Join(lines, "\n")
}

type xmlEdit struct {
	start, end int
	repl       string
}

type span struct {
	start, end int
	value      string
}

// render substitutes row values into the part. The value of a placeholder
// split over several text nodes goes into the node holding its opening
// brace; the other nodes lose their share of the token.
func (p *xmlPart) render(row tabular.Row, allowed map[string]bool) []byte {
	var edits []xmlEdit
	preserved := make(map[int]bool)
	for _, g := range p.groups {
		var subs []span
		for _, m := range placeholderRe.FindAllStringSubmatchIndex(g.text, -1) {
			name := g.text[m[2]:m[3]]
			if allowed != nil && !allowed[name] {
				continue
			}
			v, ok := row[name]
			if !ok {
				continue
			}
			subs = append(subs, span{start: m[0], end: m[1], value: v})
		}
		if len(subs) == 0 {
			continue
		}

		for ni, n := range g.nodes {
			ns := g.offsets[ni]
			ne := ns + len(n.text)
			var b strings.Builder
			touched := false
			pos := ns
			for _, s := range subs {
				if s.end <= ns || s.start >= ne {
					continue
				}
				touched = true
				if s.start > pos {
					b.WriteString(xmlTextEscaper.Replace(g.text[pos:s.start]))
				}
				if s.start >= ns {
					b.WriteString(p.dialect.value(s.value))
				}
				pos = min(s.end, ne)
			}
			if !touched {
				continue
			}
			if pos < ne {
				b.WriteString(xmlTextEscaper.Replace(g.text[pos:ne]))
			}
			if p.dialect.preserve && n.tagEnd > 0 && !n.tagPreserv && !preserved[n.tagEnd] {
				preserved[n.tagEnd] = true
				at := n.tagEnd - 1
				edits = append(edits, xmlEdit{start: at, end: at, repl: ` xml:space="preserve"`})
			}
			edits = append(edits, xmlEdit{start: n.start, end: n.end, repl: b.String()})
		}
	}
	if len(edits) == 0 {
		return p.raw
	}

	sort.SliceStable(edits, func(i, j int) bool { return edits[i].start < edits[j].start })
	var out bytes.Buffer
	out.Grow(len(p.raw))
	last := 0
	for _, e := range edits {
		out.Write(p.raw[last:e.start])
		out.WriteString(e.repl)
		last = e.end
	}
	out.Write(p.raw[last:])
	return out.Bytes()
}
