package control

import (
	"bufio"
	"context"
	"io"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
)

// ConsoleReader reads newline separated commands, usually from stdin
type ConsoleReader struct {
	logger  *logpkg.Logger
	in      io.Reader
	handler Handler
	replier Replier
}

func NewConsoleReader(logger *logpkg.Logger, in io.Reader, handler Handler, replier Replier) *ConsoleReader {
	return &ConsoleReader{logger, in, handler, replier}
}

// Run hands every line to the handler until the input ends or ctx is done.
// A read blocked on the input is left behind when ctx is done; it does nothing with what it reads afterwards.
func (r *ConsoleReader) Run(ctx context.Context) errorsx.Error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				scanErr <- nil
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			if err != nil {
				return errorsx.Wrap(err)
			}
			r.logger.Debug("console input closed")
			return nil
		case line := <-lines:
			r.handler.Handle(ctx, line, r.replier)
		}
	}
}
