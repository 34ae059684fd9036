package listener

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/CZERTAINLY/ddns/internal/supervisor"
)

const ConsoleName = "console-listener"

type line struct {
	text string
	err  error
}

// Lines reads lines from a reader shared by all consoles of the process.
// Stdin has a single reader goroutine which outlives the epochs, and only
// one console consumes it at a time.
type Lines struct {
	r     io.Reader
	once  sync.Once
	lines chan line
	turn  chan struct{}
}

func NewLines(r io.Reader) *Lines {
	return &Lines{
		r:     r,
		lines: make(chan line, 2),
		turn:  make(chan struct{}, 1),
	}
}

var (
	stdinOnce  sync.Once
	stdinLines *Lines
)

// Stdin returns the process wide Lines reading os.Stdin.
func Stdin() *Lines {
	stdinOnce.Do(func() {
		stdinLines = NewLines(os.Stdin)
	})
	return stdinLines
}

func (l *Lines) start() {
	l.once.Do(func() {
		go func() {
			defer close(l.lines)
			scanner := bufio.NewScanner(l.r)
			for scanner.Scan() {
				l.lines <- line{text: scanner.Text()}
			}
			if err := scanner.Err(); err != nil {
				l.lines <- line{err: err}
			}
		}()
	})
}

type consoleAction int

const (
	consoleDone consoleAction = iota
	consoleExit
	consoleRestart
)

// Console returns a service reading commands from src:
// update or resolve ask for an update, exit and restart are forwarded to the
// daemon. End of input ends the service successfully.
func Console(src *Lines) func(h *supervisor.Handle) {
	return func(h *supervisor.Handle) {
		action, err := src.listen(h)
		if err != nil {
			h.ReportError(err)
			return
		}
		switch action {
		case consoleExit:
			h.ReportExit(0)
		case consoleRestart:
			h.ReportRestart()
		}
	}
}

func (l *Lines) listen(h *supervisor.Handle) (consoleAction, error) {
	select {
	case l.turn <- struct{}{}:
	case <-h.ShutdownC():
		return consoleDone, nil
	}
	defer func() { <-l.turn }()
	l.start()

	for {
		select {
		case <-h.ShutdownC():
			return consoleDone, nil
		case ln, ok := <-l.lines:
			if !ok {
				return consoleDone, nil
			}
			if ln.err != nil {
				return consoleDone, ln.err
			}
			switch strings.ToLower(strings.TrimSpace(ln.text)) {
			case "update", "resolve":
				if err := h.RequestUpdate(); err != nil {
					return consoleDone, nil
				}
			case "exit":
				return consoleExit, nil
			case "restart":
				return consoleRestart, nil
			case "":
			default:
				slog.Warn("unknown console command", "command", ln.text)
			}
		}
	}
}
