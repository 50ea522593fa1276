package control

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/ownmap-paparazzi/paparazzi"
	"github.com/jamesrr39/ownmap-paparazzi/viewstate"
	"github.com/jamesrr39/ownmap-paparazzi/worker"
)

// Executor runs work on the goroutine that owns a Paparazzi. *worker.Owner and *worker.Pool are both one.
type Executor interface {
	Do(ctx context.Context, fn worker.WorkFunc) errorsx.Error
}

// Handler takes a line of commands from a reader
type Handler interface {
	Handle(ctx context.Context, line string, replier Replier)
}

// Session is a persistent view that commands change step by step. Values stick until they are changed again.
// Readers only hand lines to the Session; the Paparazzi is only touched through the Executor.
type Session struct {
	logger   *logpkg.Logger
	fs       gofs.Fs
	executor Executor

	quitOnce sync.Once
	quit     chan struct{}
}

func NewSession(logger *logpkg.Logger, fs gofs.Fs, executor Executor) *Session {
	return &Session{
		logger:   logger,
		fs:       fs,
		executor: executor,
		quit:     make(chan struct{}),
	}
}

// Quit is closed once a quit command has been handled
func (s *Session) Quit() <-chan struct{} {
	return s.quit
}

func (s *Session) Handle(ctx context.Context, line string, replier Replier) {
	commands, err := Parse(line)
	if err != nil {
		s.reply(replier, fmt.Sprintf("error: %s", err))
		return
	}

	for _, command := range commands {
		if command.Verb == VerbQuit {
			s.reply(replier, "bye")
			s.quitOnce.Do(func() {
				close(s.quit)
			})
			return
		}

		var execErr errorsx.Error
		err = s.executor.Do(ctx, func(p *paparazzi.Paparazzi) {
			execErr = s.execute(p, command, replier)
		})
		if err == nil {
			err = execErr
		}
		if err != nil {
			s.reply(replier, fmt.Sprintf("error: %s: %s", command.Verb, err))
			// the rest of the line may depend on this command
			return
		}
	}
}

func (s *Session) reply(replier Replier, message string) {
	err := replier.Reply(message)
	if err != nil {
		s.logger.Warn("couldn't send reply %q: %s", message, err)
	}
}

// execute runs on the owner goroutine
func (s *Session) execute(p *paparazzi.Paparazzi, command Command, replier Replier) errorsx.Error {
	switch command.Verb {
	case VerbScene:
		p.SetScene(command.Scene)
	case VerbSize:
		return p.SetSize(command.Size)
	case VerbDensity:
		size := p.View().Size
		if size.Width == 0 || size.Height == 0 {
			size = viewstate.Size{Width: viewstate.DefaultWidth, Height: viewstate.DefaultHeight}
		}
		size.Density = command.Density
		return p.SetSize(size)
	case VerbPosition:
		p.SetPosition(command.Position)
	case VerbZoom:
		p.SetZoom(command.Value)
	case VerbTilt:
		p.SetTilt(command.Value)
	case VerbRotation:
		p.SetRotation(command.Value)
	case VerbPrint:
		return s.print(p, command.Path, replier)
	case VerbStatus:
		b, err := json.Marshal(p.Status())
		if err != nil {
			return errorsx.Wrap(err)
		}
		s.reply(replier, string(b))
	default:
		return errorsx.Errorf("cannot execute %s", command.Verb)
	}

	return nil
}

// print settles the current view, then writes it to path, or sends it back when path is empty
func (s *Session) print(p *paparazzi.Paparazzi, path string, replier Replier) errorsx.Error {
	pngBytes, err := p.Shoot()
	if err != nil {
		return err
	}

	if path == "" {
		return replier.SendImage(pngBytes)
	}

	writeErr := s.fs.WriteFile(path, pngBytes, 0644)
	if writeErr != nil {
		return errorsx.Wrap(writeErr, "path", path)
	}

	s.reply(replier, fmt.Sprintf("wrote %s", path))

	return nil
}
