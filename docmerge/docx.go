package docmerge

import "regexp"

// docxHeaderFooter matches the header and footer parts of a .docx package.
var docxHeaderFooter = regexp.MustCompile(`^word/(header|footer)[0-9]*\.xml$`)

// docxAdapter templates word/document.xml plus headers and footers.
// Text lives in <w:t> runs; <w:p> bounds a paragraph.
var docxAdapter = &packageAdapter{
	format:   FormatDocx,
	dialect:  docxDialect,
	required: "word/document.xml",
	optional: docxHeaderFooter.MatchString,
}
