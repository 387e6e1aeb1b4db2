package repl

import (
	"io"
	"log/slog"

	"github.com/musher-dev/ember/internal/arbiter"
	"github.com/musher-dev/ember/internal/config"
	"github.com/musher-dev/ember/internal/inputcycle"
	"github.com/musher-dev/ember/internal/interrupt"
	"github.com/musher-dev/ember/internal/pager"
	"github.com/musher-dev/ember/internal/resize"
)

// Option configures a session.
type Option func(*options)

type options struct {
	configure    func(*Session)
	startupFiles []string
	promptStyle  string
	pager        *bool
	title        *string
	renderer     inputcycle.Renderer
	validator    inputcycle.Validator
	history      inputcycle.History
	out          io.Writer
	logger       *slog.Logger
	arb          *arbiter.Arbiter
	notifier     interrupt.Notifier
	capability   func() error
	cfg          *config.Config
	size         resize.SizeFunc
	prompter     pager.Prompter
}

// WithConfigure registers fn to run once before the first prompt. fn may
// adjust the session and seed its namespace.
func WithConfigure(fn func(*Session)) Option {
	return func(o *options) { o.configure = fn }
}

// WithStartupFiles runs the given Starlark files before the first prompt.
func WithStartupFiles(paths ...string) Option {
	return func(o *options) { o.startupFiles = append(o.startupFiles, paths...) }
}

// WithPromptStyle selects "classic" or "ipython" prompts.
func WithPromptStyle(style string) Option {
	return func(o *options) { o.promptStyle = style }
}

// WithPager turns paging of long results on or off.
func WithPager(enabled bool) Option {
	return func(o *options) { o.pager = &enabled }
}

// WithTitle sets the terminal title shown while prompting.
func WithTitle(title string) Option {
	return func(o *options) { o.title = &title }
}

// WithRenderer replaces the bubbletea prompt.
func WithRenderer(r inputcycle.Renderer) Option {
	return func(o *options) { o.renderer = r }
}

// WithValidator replaces the Starlark syntax check run before submission.
func WithValidator(v inputcycle.Validator) Option {
	return func(o *options) { o.validator = v }
}

// WithHistory supplies recall entries. A history that also records
// submissions (RecordInput, RecordResult) is kept up to date.
func WithHistory(h inputcycle.History) Option {
	return func(o *options) { o.history = h }
}

// WithOutput sets where the session draws. Ignored when WithArbiter is given.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithLogger sets the session's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithArbiter shares terminal ownership with the host, so host background
// output is interleaved with the prompt instead of corrupting it.
func WithArbiter(a *arbiter.Arbiter) Option {
	return func(o *options) { o.arb = a }
}

// WithInterruptNotifier replaces os/signal as the interrupt source.
func WithInterruptNotifier(n interrupt.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithCapabilityCheck replaces the terminal probe run before every prompt.
func WithCapabilityCheck(fn func() error) Option {
	return func(o *options) { o.capability = fn }
}

// WithConfig supplies defaults for everything not set by another option.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithSizeFunc sets how the terminal size is read for prompts and paging.
func WithSizeFunc(fn resize.SizeFunc) Option {
	return func(o *options) { o.size = fn }
}

// WithPagerPrompter replaces the bubbletea MORE prompt.
func WithPagerPrompter(p pager.Prompter) Option {
	return func(o *options) { o.prompter = p }
}

// resolve fills unset settings from the config file values, then defaults.
func (o *options) resolve() {
	if o.promptStyle == "" {
		o.promptStyle = config.DefaultPromptStyle
		if o.cfg != nil {
			o.promptStyle = o.cfg.PromptStyle()
		}
	}

	if o.pager == nil {
		enabled := true
		if o.cfg != nil {
			enabled = o.cfg.PagerEnabled()
		}

		o.pager = &enabled
	}

	if o.title == nil {
		title := ""
		if o.cfg != nil {
			title = o.cfg.Title()
		}

		o.title = &title
	}

	if o.cfg != nil {
		o.startupFiles = append(o.cfg.StartupFiles(), o.startupFiles...)
	}
}
