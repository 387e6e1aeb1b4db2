package interrupt

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
)

// Notifier relays process signals to a channel. The default implementation
// is backed by os/signal.
type Notifier interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

type signalNotifier struct{}

func (signalNotifier) Notify(c chan<- os.Signal, sig ...os.Signal) { signal.Notify(c, sig...) }
func (signalNotifier) Stop(c chan<- os.Signal)                     { signal.Stop(c) }

// OSNotifier returns the os/signal backed Notifier.
func OSNotifier() Notifier {
	return signalNotifier{}
}

// Controller owns the process interrupt handler for one session.
type Controller struct {
	router   *Router
	notifier Notifier
	logger   *slog.Logger

	sigCh chan os.Signal
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// Option configures a Controller.
type Option func(*Controller)

// WithNotifier replaces the os/signal notifier.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Install registers for os.Interrupt and starts routing each interrupt
// through router. The caller must Close the controller on every exit path.
func Install(router *Router, opts ...Option) *Controller {
	c := &Controller{
		router:   router,
		notifier: signalNotifier{},
		logger:   slog.New(slog.DiscardHandler),
		sigCh:    make(chan os.Signal, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.notifier.Notify(c.sigCh, os.Interrupt)

	go c.handle()

	c.logger.Debug("interrupt handler installed", slog.String("event.type", "interrupt.install"))

	return c
}

func (c *Controller) handle() {
	defer close(c.done)

	for {
		select {
		case <-c.sigCh:
			c.router.Deliver()
		case <-c.quit:
			return
		}
	}
}

// Close stops signal delivery and waits for the handler goroutine to exit.
func (c *Controller) Close() error {
	c.once.Do(func() {
		c.notifier.Stop(c.sigCh)
		close(c.quit)
		<-c.done

		c.logger.Debug("interrupt handler removed", slog.String("event.type", "interrupt.remove"))
	})

	return nil
}
