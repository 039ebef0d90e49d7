package docmerge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/docmerge/connectivity"
	"github.com/hazyhaar/docmerge/kit"
)

// RegisterConnectivity registers docmerge service handlers on a connectivity Router.
//
// Registered services:
//
//	docmerge_analyze_template: list the placeholders of a template
//	docmerge_generate:         fill a template once per data row
func (e *Engine) RegisterConnectivity(router *connectivity.Router) {
	wrap := func(service string, h connectivity.Handler) connectivity.Handler {
		return connectivity.Chain(
			connectivity.Recovery(e.logger),
			connectivity.Logging(e.logger, service),
			connectivity.Timeout(e.cfg.CallTimeout),
		)(h)
	}
	router.RegisterLocal("docmerge_analyze_template", wrap("docmerge_analyze_template", e.handleAnalyzeTemplate))
	router.RegisterLocal("docmerge_generate", wrap("docmerge_generate", e.handleGenerate))
}

func (e *Engine) handleAnalyzeTemplate(_ context.Context, payload []byte) ([]byte, error) {
	var req analyzeTemplateReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	raw, err := req.bytes()
	if err != nil {
		return nil, err
	}
	a, err := e.AnalyzeTemplate(req.Name, raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(a)
}

func (e *Engine) handleGenerate(ctx context.Context, payload []byte) ([]byte, error) {
	ctx = kit.WithTransport(ctx, "connectivity")
	var req generateReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	res, err := e.generate(ctx, &req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}
