package docmerge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docmerge/kit"
	"github.com/hazyhaar/docmerge/tabular"
)

// RegisterMCP registers docmerge tools on an MCP server.
func (e *Engine) RegisterMCP(srv *mcp.Server) {
	e.registerFormatsTool(srv)
	e.registerAnalyzeTemplateTool(srv)
	e.registerAnalyzeDataTool(srv)
	e.registerGenerateTool(srv)
}

// instrument wraps a tool endpoint with call logging.
func (e *Engine) instrument(op string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Logging(e.logger, op))(ep)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// fileContent is file content passed either as text or as base64.
type fileContent struct {
	Content       string `json:"content,omitempty"`
	ContentBase64 string `json:"content_base64,omitempty"`
}

func (p fileContent) bytes() ([]byte, error) {
	if p.ContentBase64 != "" {
		b, err := base64.StdEncoding.DecodeString(p.ContentBase64)
		if err != nil {
			return nil, fmt.Errorf("content_base64: %w", err)
		}
		return b, nil
	}
	return []byte(p.Content), nil
}

func fileProps(what string) map[string]any {
	return map[string]any{
		"name":           map[string]any{"type": "string", "description": what + " file name, the extension selects the format"},
		"content":        map[string]any{"type": "string", "description": what + " content as text"},
		"content_base64": map[string]any{"type": "string", "description": what + " content as base64 (binary formats)"},
	}
}

func decodeArgs[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r T
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

// --- formats ---

func (e *Engine) registerFormatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docmerge_formats",
		Description: "List supported template and data formats and the built-in templates.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return map[string]any{
			"template_formats":  SupportedFormats(),
			"data_formats":      tabular.SupportedFormats(),
			"default_templates": Defaults(),
		}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, e.instrument(tool.Name, endpoint), decode)
}

// --- analyze template ---

type analyzeTemplateReq struct {
	Name string `json:"name"`
	fileContent
}

func (e *Engine) registerAnalyzeTemplateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docmerge_analyze_template",
		Description: "List the {placeholders} of a template (html, txt, docx, odt).",
		InputSchema: inputSchema(fileProps("Template"), []string{"name"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*analyzeTemplateReq)
		raw, err := r.bytes()
		if err != nil {
			return nil, err
		}
		return e.AnalyzeTemplate(r.Name, raw)
	}

	kit.RegisterMCPTool(srv, tool, e.instrument(tool.Name, endpoint), decodeArgs[analyzeTemplateReq])
}

// --- analyze data ---

type analyzeDataReq struct {
	Name  string `json:"name"`
	Sheet string `json:"sheet,omitempty"`
	fileContent
}

func (e *Engine) registerAnalyzeDataTool(srv *mcp.Server) {
	props := fileProps("Data")
	props["sheet"] = map[string]any{"type": "string", "description": "Spreadsheet sheet (default: first sheet)"}
	tool := &mcp.Tool{
		Name:        "docmerge_analyze_data",
		Description: "Parse a csv or xlsx data file and report its headers, row count and empty rows.",
		InputSchema: inputSchema(props, []string{"name"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*analyzeDataReq)
		raw, err := r.bytes()
		if err != nil {
			return nil, err
		}
		return e.AnalyzeData(r.Name, raw, tabular.WithSheet(r.Sheet))
	}

	kit.RegisterMCPTool(srv, tool, e.instrument(tool.Name, endpoint), decodeArgs[analyzeDataReq])
}

// --- generate ---

type generateReq struct {
	TemplateID string   `json:"template_id,omitempty"`
	Template   *fileArg `json:"template,omitempty"`
	Data       fileArg  `json:"data"`
	Sheet      string   `json:"sheet,omitempty"`
}

type fileArg struct {
	Name string `json:"name"`
	fileContent
}

// GeneratedFile is a document as returned over MCP and connectivity.
// Text formats carry Content, packaged formats carry ContentBase64.
type GeneratedFile struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Data          map[string]string `json:"data"`
	Content       string            `json:"content,omitempty"`
	ContentBase64 string            `json:"content_base64,omitempty"`
}

// GenerateResult is the wire form of a completed batch.
type GenerateResult struct {
	Batch     Batch           `json:"batch"`
	Documents []GeneratedFile `json:"documents"`
}

func newGenerateResult(b *Batch) *GenerateResult {
	res := &GenerateResult{Batch: b.Summary()}
	for _, d := range b.Documents {
		f := GeneratedFile{ID: d.ID, Title: d.Title, Data: d.Data}
		if d.Format.Packaged() {
			f.ContentBase64 = base64.StdEncoding.EncodeToString(d.Content)
		} else {
			f.Content = string(d.Content)
		}
		res.Documents = append(res.Documents, f)
	}
	return res
}

func (e *Engine) generate(ctx context.Context, r *generateReq) (*GenerateResult, error) {
	data, err := r.Data.bytes()
	if err != nil {
		return nil, err
	}
	var b *Batch
	if r.TemplateID != "" {
		b, err = e.GenerateFromDefault(ctx, r.TemplateID, r.Data.Name, data)
	} else {
		if r.Template == nil {
			return nil, fmt.Errorf("template or template_id is required")
		}
		var tpl []byte
		tpl, err = r.Template.bytes()
		if err != nil {
			return nil, err
		}
		b, err = e.Generate(ctx, Request{
			TemplateName: r.Template.Name,
			Template:     tpl,
			DataName:     r.Data.Name,
			Data:         data,
			Sheet:        r.Sheet,
		})
	}
	if err != nil {
		return nil, err
	}
	return newGenerateResult(b), nil
}

func (e *Engine) registerGenerateTool(srv *mcp.Server) {
	fileSchema := func(what string) map[string]any {
		return map[string]any{"type": "object", "properties": fileProps(what), "required": []string{"name"}}
	}
	tool := &mcp.Tool{
		Name:        "docmerge_generate",
		Description: "Fill a template once per data row. Give either an uploaded template or the id of a built-in template (invoice, receipt, contract).",
		InputSchema: inputSchema(map[string]any{
			"template_id": map[string]any{"type": "string", "description": "Built-in template id"},
			"template":    fileSchema("Template"),
			"data":        fileSchema("Data"),
			"sheet":       map[string]any{"type": "string", "description": "Spreadsheet sheet (default: first sheet)"},
		}, []string{"data"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		return e.generate(ctx, req.(*generateReq))
	}

	kit.RegisterMCPTool(srv, tool, e.instrument(tool.Name, endpoint), decodeArgs[generateReq])
}
