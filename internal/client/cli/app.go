package cli

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/dmitrijs2005/gophdrive/internal/client/services"
	"github.com/dmitrijs2005/gophdrive/internal/identity"
)

// EventSource exposes the security log. *identity.Auditor satisfies it.
type EventSource interface {
	Events() []identity.Event
}

type App struct {
	svc    services.AnnotationService
	data   services.UserDataService
	events EventSource
	out    io.Writer
	reader *bufio.Reader

	readFile  func(string) ([]byte, error)
	writeFile func(string, []byte, os.FileMode) error
}

func NewApp(svc services.AnnotationService, data services.UserDataService, events EventSource, in io.Reader, out io.Writer) *App {
	return &App{
		svc:       svc,
		data:      data,
		events:    events,
		out:       out,
		reader:    bufio.NewReader(in),
		readFile:  os.ReadFile,
		writeFile: os.WriteFile,
	}
}

// Exec runs one command. It reports whether the user asked to quit.
func (a *App) Exec(ctx context.Context, args []string) (bool, error) {
	return execute(ctx, a, a.out, args)
}
