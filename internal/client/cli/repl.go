package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

const helpText = `Available commands:
  upload <json> <pdf> [set name]
  history, clear-history
  annotations [key]
  progress
  csv save <file> | csv list | csv show <file id>
  export [file], delete-data
  folders, events, help, exit`

// execIface is the command surface the REPL dispatches to. The real App
// satisfies it; tests provide a lightweight stub.
type execIface interface {
	Upload(ctx context.Context, args []string) error
	History(ctx context.Context) error
	ClearHistory(ctx context.Context) error
	Folders(ctx context.Context) error
	Events(ctx context.Context) error
	Annotations(ctx context.Context, args []string) error
	Progress(ctx context.Context) error
	CSV(ctx context.Context, args []string) error
	Export(ctx context.Context, args []string) error
	DeleteData(ctx context.Context) error
}

// execute runs a single command line already split into fields.
func execute(ctx context.Context, a execIface, w io.Writer, parts []string) (quit bool, err error) {
	if len(parts) == 0 {
		return false, nil
	}
	cmd, args := parts[0], parts[1:]

	switch cmd {
	case "help":
		fmt.Fprintln(w, helpText)
	case "upload":
		err = a.Upload(ctx, args)
	case "history":
		err = a.History(ctx)
	case "clear-history":
		err = a.ClearHistory(ctx)
	case "folders":
		err = a.Folders(ctx)
	case "events":
		err = a.Events(ctx)
	case "annotations":
		err = a.Annotations(ctx, args)
	case "progress":
		err = a.Progress(ctx)
	case "csv":
		err = a.CSV(ctx, args)
	case "export":
		err = a.Export(ctx, args)
	case "delete-data":
		err = a.DeleteData(ctx)
	case "exit", "quit":
		fmt.Fprintln(w, "Bye!")
		return true, nil
	default:
		return false, fmt.Errorf("unknown command: %s", cmd)
	}
	return false, err
}

// runREPL reads commands from r until EOF or exit. Command errors are
// printed and the loop carries on. Commands that prompt read from the same
// reader.
func runREPL(ctx context.Context, a execIface, r *bufio.Reader, w io.Writer) {
	for {
		fmt.Fprint(w, "gophdrive> ")
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(w)
			return
		}
		if ctx.Err() != nil {
			return
		}
		quit, err := execute(ctx, a, w, strings.Fields(line))
		if err != nil {
			fmt.Fprintln(w, "Error:", err)
		}
		if quit {
			return
		}
	}
}
