package docmerge

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/hazyhaar/docmerge/tabular"
)

func prepare(t *testing.T, f Format, raw []byte) Prepared {
	t.Helper()
	a, err := AdapterFor(f, EscapeNone)
	if err != nil {
		t.Fatal(err)
	}
	p, err := a.Prepare(raw)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	return p
}

func TestDocx_SplitRuns(t *testing.T) {
	raw := buildDocx(t,
		`<w:p><w:r><w:t>Dear {na</w:t></w:r><w:r><w:rPr><w:b/></w:rPr><w:t>me}, hi</w:t></w:r></w:p>`)
	p := prepare(t, FormatDocx, raw)

	if got := p.Text(); got != "Dear {name}, hi" {
		t.Fatalf("Text = %q", got)
	}
	names, err := Extract(p.Text())
	if err != nil || !reflect.DeepEqual(names, []string{"name"}) {
		t.Fatalf("Extract = %v, %v", names, err)
	}

	out, err := p.Render(tabular.Row{"name": "Alice"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	doc := readEntry(t, out, "word/document.xml")
	want := docxBody(`<w:p><w:r><w:t xml:space="preserve">Dear Alice</w:t></w:r>` +
		`<w:r><w:rPr><w:b/></w:rPr><w:t xml:space="preserve">, hi</w:t></w:r></w:p>`)
	if doc != want {
		t.Fatalf("document.xml:\n got %s\nwant %s", doc, want)
	}

	again := prepare(t, FormatDocx, out)
	if again.Text() != "Dear Alice, hi" {
		t.Fatalf("re-read text = %q", again.Text())
	}
}

func TestDocx_EscapingAndLineBreaks(t *testing.T) {
	raw := buildDocx(t, `<w:p><w:r><w:t xml:space="preserve">Tom &amp; {who}: {addr}</w:t></w:r></w:p>`)
	p := prepare(t, FormatDocx, raw)
	if got := p.Text(); got != "Tom & {who}: {addr}" {
		t.Fatalf("Text = %q", got)
	}

	out, err := p.Render(tabular.Row{"who": "A<B>", "addr": "1 Main St\nSpringfield"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	doc := readEntry(t, out, "word/document.xml")
	want := `<w:t xml:space="preserve">Tom &amp; A&lt;B&gt;: 1 Main St</w:t><w:br/><w:t xml:space="preserve">Springfield</w:t>`
	if !strings.Contains(doc, want) {
		t.Fatalf("document.xml = %s", doc)
	}
	if strings.Count(doc, `xml:space="preserve"`) != 2 {
		t.Fatalf("xml:space duplicated: %s", doc)
	}
}

func TestDocx_MissingKeyAndFilter(t *testing.T) {
	raw := buildDocx(t, `<w:p><w:r><w:t>{a} {b} {c}</w:t></w:r></w:p>`)
	p := prepare(t, FormatDocx, raw)

	out, err := p.Render(tabular.Row{"a": "1", "b": "2"}, []string{"a", "c"})
	if err != nil {
		t.Fatal(err)
	}
	doc := readEntry(t, out, "word/document.xml")
	if !strings.Contains(doc, ">1 {b} {c}</w:t>") {
		t.Fatalf("document.xml = %s", doc)
	}
}

func TestDocx_UntouchedPartsPreserved(t *testing.T) {
	styles := `<w:styles xmlns:w="x"><w:style w:styleId="Normal"/></w:styles>`
	raw := buildDocx(t, `<w:p><w:r><w:t>no placeholder here</w:t></w:r></w:p><w:p><w:r><w:t>{x}</w:t></w:r></w:p>`,
		zipEntry{"word/styles.xml", styles})
	p := prepare(t, FormatDocx, raw)

	out, err := p.Render(tabular.Row{"x": "y"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := readEntry(t, out, "word/styles.xml"); got != styles {
		t.Fatalf("styles.xml changed: %s", got)
	}
	if got := readEntry(t, out, "[Content_Types].xml"); got != docxContentTypes {
		t.Fatalf("content types changed: %s", got)
	}
	doc := readEntry(t, out, "word/document.xml")
	if !strings.Contains(doc, "<w:t>no placeholder here</w:t>") {
		t.Fatalf("untouched run rewritten: %s", doc)
	}

	same, err := p.Render(tabular.Row{"other": "z"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if readEntry(t, same, "word/document.xml") != docxBody(`<w:p><w:r><w:t>no placeholder here</w:t></w:r></w:p><w:p><w:r><w:t>{x}</w:t></w:r></w:p>`) {
		t.Fatal("render without matching keys must keep the part intact")
	}
}

func TestDocx_HeaderFooter(t *testing.T) {
	hdr := `<w:hdr xmlns:w="x"><w:p><w:r><w:t>{company}</w:t></w:r></w:p></w:hdr>`
	ftr := `<w:ftr xmlns:w="x"><w:p><w:r><w:t>Page of {name}</w:t></w:r></w:p></w:ftr>`
	raw := buildDocx(t, `<w:p><w:r><w:t>Hello {name}</w:t></w:r></w:p>`,
		zipEntry{"word/header1.xml", hdr},
		zipEntry{"word/footer2.xml", ftr})
	p := prepare(t, FormatDocx, raw)

	names, err := Extract(p.Text())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(names, []string{"name", "company"}) {
		t.Fatalf("placeholders = %v", names)
	}

	out, err := p.Render(tabular.Row{"name": "Alice", "company": "ACME"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := readEntry(t, out, "word/header1.xml"); !strings.Contains(got, ">ACME</w:t>") {
		t.Fatalf("header = %s", got)
	}
	if got := readEntry(t, out, "word/footer2.xml"); !strings.Contains(got, ">Page of Alice</w:t>") {
		t.Fatalf("footer = %s", got)
	}
}

func TestDocx_PlaceholderNeverSpansParagraphs(t *testing.T) {
	raw := buildDocx(t, `<w:p><w:r><w:t>{na</w:t></w:r></w:p><w:p><w:r><w:t>me}</w:t></w:r></w:p>`)
	p := prepare(t, FormatDocx, raw)
	if p.Text() != "{na\nme}" {
		t.Fatalf("Text = %q", p.Text())
	}
	if names := p.Placeholders(); len(names) != 0 {
		t.Fatalf("placeholders = %q", names)
	}
	out, err := p.Render(tabular.Row{"na\nme": "x", "name": "y"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if doc := readEntry(t, out, "word/document.xml"); strings.Contains(doc, ">x<") || strings.Contains(doc, ">y<") {
		t.Fatalf("substituted across paragraphs: %s", doc)
	}
}

func TestDocx_InvalidPackage(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		part string
	}{
		{"not a zip", []byte("definitely not a zip"), ""},
		{"missing document", buildZip(t, zipEntry{"[Content_Types].xml", docxContentTypes}), "word/document.xml"},
		{"unterminated tag", buildZip(t, zipEntry{"word/document.xml", `<w:document><w:p><w:t>x</w:t`}), "word/document.xml"},
		{"unterminated comment", buildZip(t, zipEntry{"word/document.xml", `<w:document><!-- x`}), "word/document.xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := docxAdapter.Prepare(tt.raw)
			if !errors.Is(err, ErrInvalidPackage) {
				t.Fatalf("expected ErrInvalidPackage, got %v", err)
			}
			var pe *PackageError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *PackageError, got %T", err)
			}
			if pe.Part != tt.part {
				t.Errorf("Part = %q, want %q", pe.Part, tt.part)
			}
			if Kind(err) != KindInvalidPackage {
				t.Errorf("Kind = %q", Kind(err))
			}
		})
	}
}

func TestDocx_MarkupSkipped(t *testing.T) {
	raw := buildDocx(t, `<w:p><!-- {comment} --><w:r><w:t>{a}</w:t></w:r>`+
		`<w:r><w:instrText>{field}</w:instrText></w:r><w:r><w:tab/><w:t a="{attr}">b</w:t></w:r></w:p>`)
	p := prepare(t, FormatDocx, raw)
	if got := p.Text(); got != "{a}b" {
		t.Fatalf("Text = %q", got)
	}
}

func TestDocx_ConcurrentRender(t *testing.T) {
	raw := buildDocx(t, `<w:p><w:r><w:t>{n}</w:t></w:r></w:p>`)
	p := prepare(t, FormatDocx, raw)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := strings.Repeat("x", i+1)
			out, err := p.Render(tabular.Row{"n": v}, nil)
			if err != nil {
				errs <- err
				return
			}
			doc, err := entryText(out, "word/document.xml")
			if err != nil {
				errs <- err
				return
			}
			if !strings.Contains(doc, ">"+v+"</w:t>") {
				errs <- errors.New("wrong value in " + doc)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestODT_SpansAndStyles(t *testing.T) {
	styles := `<office:document-styles xmlns:office="o" xmlns:text="t"><office:master-styles>` +
		`<style:master-page><style:header><text:p>{company}</text:p></style:header></style:master-page>` +
		`</office:master-styles></office:document-styles>`
	raw := buildODT(t,
		`<text:h text:outline-level="1">{title}</text:h>`+
			`<text:p text:style-name="P1">Dear <text:span text:style-name="T1">{na</text:span>me}</text:p>`+
			`<text:p>{addr}</text:p>`,
		zipEntry{"styles.xml", styles})
	p := prepare(t, FormatODT, raw)

	if got := p.Text(); got != "{title}\nDear {name}\n{addr}\n{company}" {
		t.Fatalf("Text = %q", got)
	}

	out, err := p.Render(tabular.Row{
		"title": "Q&A", "name": "Alice", "addr": "a\nb", "company": "ACME",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	content := readEntry(t, out, "content.xml")
	for _, want := range []string{
		`<text:h text:outline-level="1">Q&amp;A</text:h>`,
		`Dear <text:span text:style-name="T1">Alice</text:span></text:p>`,
		`<text:p>a<text:line-break/>b</text:p>`,
	} {
		if !strings.Contains(content, want) {
			t.Errorf("content.xml missing %s:\n%s", want, content)
		}
	}
	if got := readEntry(t, out, "styles.xml"); !strings.Contains(got, "<text:p>ACME</text:p>") {
		t.Errorf("styles.xml = %s", got)
	}
	if got := readEntry(t, out, "mimetype"); got != "application/vnd.oasis.opendocument.text" {
		t.Errorf("mimetype = %q", got)
	}
}

func TestODT_SpacesAndTabs(t *testing.T) {
	p := prepare(t, FormatODT, buildODT(t, `<text:p>Hi {v}!</text:p>`))
	tests := []struct {
		value, want string
	}{
		{"A B", `<text:p>Hi A B!</text:p>`},
		{"A  B", `<text:p>Hi A <text:s/>B!</text:p>`},
		{"A    B\tC", `<text:p>Hi A <text:s text:c="3"/>B<text:tab/>C!</text:p>`},
		{"x &  y\n  z", `<text:p>Hi x &amp; <text:s/>y<text:line-break/> <text:s/>z!</text:p>`},
	}
	for _, tt := range tests {
		out, err := p.Render(tabular.Row{"v": tt.value}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if got := readEntry(t, out, "content.xml"); !strings.Contains(got, tt.want) {
			t.Errorf("%q: content.xml = %s", tt.value, got)
		}
	}
}

func TestODT_MissingContent(t *testing.T) {
	raw := buildZip(t, zipEntry{"mimetype", "application/vnd.oasis.opendocument.text"})
	_, err := odtAdapter.Prepare(raw)
	var pe *PackageError
	if !errors.As(err, &pe) || pe.Part != "content.xml" {
		t.Fatalf("expected PackageError on content.xml, got %v", err)
	}
	if d := Details(err); d["part"] != "content.xml" {
		t.Errorf("details = %v", d)
	}
}

func TestPlain_HTMLAndText(t *testing.T) {
	raw := append([]byte("\xef\xbb\xbf"), "<p>{a}</p>"...)
	p := prepare(t, FormatHTML, raw)
	if p.Text() != "<p>{a}</p>" {
		t.Fatalf("BOM not dropped: %q", p.Text())
	}

	a, _ := AdapterFor(FormatHTML, EscapeHTML)
	esc, err := a.Prepare([]byte("<p>{a}</p>"))
	if err != nil {
		t.Fatal(err)
	}
	out, _ := esc.Render(tabular.Row{"a": "<i>x</i>"}, nil)
	if string(out) != "<p>&lt;i&gt;x&lt;/i&gt;</p>" {
		t.Fatalf("escaped render = %q", out)
	}

	txt, _ := AdapterFor(FormatText, EscapeHTML)
	tp, _ := txt.Prepare([]byte("{a}"))
	out, _ = tp.Render(tabular.Row{"a": "<i>"}, nil)
	if string(out) != "<i>" {
		t.Fatalf("text templates are never escaped: %q", out)
	}
}

func TestNormalizeReserialize(t *testing.T) {
	raw := buildDocx(t, `<w:p><w:r><w:t>{a}</w:t></w:r></w:p>`)
	text, err := Normalize(FormatDocx, raw)
	if err != nil || text != "{a}" {
		t.Fatalf("Normalize = %q, %v", text, err)
	}
	out, err := Reserialize(FormatDocx, raw, tabular.Row{"a": "<1>"})
	if err != nil {
		t.Fatal(err)
	}
	text, _ = Normalize(FormatDocx, out)
	if text != "<1>" {
		t.Fatalf("round trip = %q", text)
	}
}

func TestDetectFormat(t *testing.T) {
	for name, want := range map[string]Format{
		"a.docx": FormatDocx, "A.DOC": FormatDocx, "b.odt": FormatODT,
		"c.html": FormatHTML, "c.htm": FormatHTML, "d.txt": FormatText,
	} {
		got, err := DetectFormat(name)
		if err != nil || got != want {
			t.Errorf("DetectFormat(%q) = %q, %v", name, got, err)
		}
	}
	for _, name := range []string{"e.pdf", "noext", "x.csv"} {
		if _, err := DetectFormat(name); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("DetectFormat(%q): expected ErrUnsupportedFormat, got %v", name, err)
		}
	}
}

func TestDocx_PlaceholdersPerParagraph(t *testing.T) {
	raw := buildDocx(t, `<w:p><w:r><w:t>{a} {</w:t></w:r></w:p>`+
		`<w:p><w:r><w:t>b}</w:t></w:r><w:r><w:t>{c}</w:t></w:r></w:p>`+
		`<w:p><w:r><w:t>{a}</w:t></w:r></w:p>`)
	b, err := testEngine(Config{}).Generate(context.Background(), Request{
		TemplateName: "t.docx", Template: raw, DataName: "d.csv", Data: []byte("a,c\n1,2\n"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(b.Placeholders, []string{"a", "c"}) {
		t.Fatalf("placeholders = %q", b.Placeholders)
	}
	if len(b.Reconciliation.Unmatched) != 0 {
		t.Fatalf("unmatched = %q", b.Reconciliation.Unmatched)
	}
}
