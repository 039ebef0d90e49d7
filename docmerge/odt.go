package docmerge

// odtAdapter templates content.xml, and styles.xml where page headers and
// footers live. Text is the character data of <text:p> and <text:h>.
var odtAdapter = &packageAdapter{
	format:   FormatODT,
	dialect:  odtDialect,
	required: "content.xml",
	optional: func(name string) bool { return name == "styles.xml" },
}
