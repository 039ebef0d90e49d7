package docmerge

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/docmerge/idgen"
	"github.com/hazyhaar/docmerge/observability"
)

// DefaultTitleFields is the priority list scanned for a document title.
var DefaultTitleFields = []string{
	"name", "title", "id", "subject", "number", "reference",
	"invoice_number", "receipt_number", "contract_number",
	"customer_name", "receiver_name",
}

// EventLogger receives batch lifecycle events.
type EventLogger interface {
	LogEvent(ctx context.Context, event observability.BusinessEvent)
}

// Config configures the merge engine.
type Config struct {
	// MaxRows caps the rows of one batch (default: 100). Negative disables the cap.
	MaxRows int `json:"max_rows" yaml:"max_rows"`

	// Workers bounds concurrent row rendering (default: 4).
	Workers int `json:"workers" yaml:"workers"`

	// Escape applies to values written into HTML templates (default: none).
	Escape Escape `json:"escape" yaml:"escape"`

	// TitleFields overrides DefaultTitleFields.
	TitleFields []string `json:"title_fields" yaml:"title_fields"`

	// MaxTemplateSize is the largest accepted template payload (default: 25 MB).
	MaxTemplateSize int64 `json:"max_template_size" yaml:"max_template_size"`

	// CallTimeout bounds one connectivity service call (default: 2m).
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout"`

	// Logger for state transitions.
	Logger *slog.Logger `json:"-" yaml:"-"`

	// Events records batch lifecycle events. Optional.
	Events EventLogger `json:"-" yaml:"-"`

	// NewID generates the suffix of batch ids (default: UUIDv7).
	NewID idgen.Generator `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxRows == 0 {
		c.MaxRows = 100
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Escape == "" {
		c.Escape = EscapeNone
	}
	if len(c.TitleFields) == 0 {
		c.TitleFields = DefaultTitleFields
	}
	if c.MaxTemplateSize <= 0 {
		c.MaxTemplateSize = 25 * 1024 * 1024
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 2 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.NewID == nil {
		c.NewID = idgen.Default
	}
}
