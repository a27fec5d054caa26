// Package sink provides consumers of decoded samples.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/robotalks/openbci.go/pkg/bci/wire"
	fx "github.com/robotalks/openbci.go/pkg/framework"
)

// ErrLimitReached is returned by a Limit handler after enough samples.
var ErrLimitReached = errors.New("sample limit reached")

// Mux passes each sample to all handlers.
type Mux struct {
	Handlers []wire.SampleHandler
}

// HandleSample implements wire.SampleHandler.
func (m *Mux) HandleSample(ctx context.Context, s *wire.Sample) error {
	var errs fx.AggregatedError
	for _, h := range m.Handlers {
		errs.Add(h.HandleSample(ctx, s))
	}
	return errs.Aggregate()
}

// Add adds more handlers.
func (m *Mux) Add(handlers ...wire.SampleHandler) *Mux {
	m.Handlers = append(m.Handlers, handlers...)
	return m
}

// Printer writes one line per sample.
type Printer struct {
	W io.Writer

	lock sync.Mutex
}

// HandleSample implements wire.SampleHandler.
func (p *Printer) HandleSample(ctx context.Context, s *wire.Sample) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	_, err := fmt.Fprintln(p.W, s.String())
	return err
}

// Limit returns a handler which stops with ErrLimitReached after n samples.
func Limit(n int, h wire.SampleHandler) wire.SampleHandler {
	count := 0
	return wire.HandleSampleFunc(func(ctx context.Context, s *wire.Sample) error {
		if err := h.HandleSample(ctx, s); err != nil {
			return err
		}
		if count++; n > 0 && count >= n {
			return ErrLimitReached
		}
		return nil
	})
}
