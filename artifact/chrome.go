package artifact

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// PDFRenderer renders one HTML page to PDF.
type PDFRenderer interface {
	PDF(ctx context.Context, html []byte) ([]byte, error)
}

// ChromeConfig configures a ChromeRenderer.
type ChromeConfig struct {
	// ControlURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local headless Chrome on first use.
	ControlURL string

	// Timeout bounds one page render. Default: 30s.
	Timeout time.Duration

	Logger *slog.Logger
}

func (c *ChromeConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// A4 in inches.
const (
	a4Width  = 8.27
	a4Height = 11.69
)

// ChromeRenderer prints HTML to A4 PDF with headless Chrome via Rod.
// The browser is started lazily and shared by concurrent renders.
type ChromeRenderer struct {
	cfg     ChromeConfig
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

var _ PDFRenderer = (*ChromeRenderer)(nil)

// NewChromeRenderer creates a renderer. Chrome is not started until the
// first call to PDF or Start.
func NewChromeRenderer(cfg ChromeConfig) *ChromeRenderer {
	cfg.defaults()
	return &ChromeRenderer{cfg: cfg}
}

// Start connects to Chrome, launching it when no ControlURL is configured.
func (r *ChromeRenderer) Start() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("artifact: renderer is closed")
	}
	if r.browser != nil {
		return r.browser, nil
	}

	wsURL := r.cfg.ControlURL
	if wsURL == "" {
		l := launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("artifact: launch chrome: %w", err)
		}
		wsURL = u
		r.lnch = l
		r.cfg.Logger.Info("artifact: launched local chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		r.killLauncher()
		return nil, fmt.Errorf("artifact: connect chrome: %w", err)
	}
	r.browser = b
	return b, nil
}

// PDF renders html in a fresh tab and returns the printed PDF.
func (r *ChromeRenderer) PDF(ctx context.Context, html []byte) ([]byte, error) {
	b, err := r.Start()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	page, err := b.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("artifact: open tab: %w", err)
	}
	defer page.Close()

	if err := page.SetDocumentContent(string(html)); err != nil {
		return nil, fmt.Errorf("artifact: set content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("artifact: wait load: %w", err)
	}

	width, height := a4Width, a4Height
	stream, err := page.PDF(&proto.PagePrintToPDF{
		PaperWidth:      &width,
		PaperHeight:     &height,
		PrintBackground: true,
	})
	if err != nil {
		return nil, fmt.Errorf("artifact: print pdf: %w", err)
	}
	out, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("artifact: read pdf: %w", err)
	}
	return out, nil
}

// Close disconnects from Chrome and kills it when it was launched locally.
func (r *ChromeRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true

	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	r.killLauncher()
	return err
}

func (r *ChromeRenderer) killLauncher() {
	if r.lnch != nil {
		r.lnch.Kill()
		r.lnch = nil
	}
}
