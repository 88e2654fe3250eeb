package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/gophdrive/internal/client/client"
	"github.com/dmitrijs2005/gophdrive/internal/client/config"
	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/flagx"
	"golang.org/x/term"
)

const userAgent = "gophdrive-cli"

var isTerminal = term.IsTerminal

// Run loads configuration, starts the client and runs the command given in
// args, or the REPL when there is none.
func Run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	cfg, err := config.LoadConfig(args)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	_, positional := flagx.SplitArgs(args, config.Flags)

	pass, err := passphrase(cfg, out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pass)

	app, err := client.New(ctx, cfg, client.Options{Passphrase: pass, UserAgent: userAgent})
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Start(ctx); err != nil {
		return err
	}

	a := NewApp(app.Annotations, app.UserData, app.Auditor, in, out)
	if len(positional) > 0 {
		_, err := a.Exec(ctx, positional)
		return err
	}

	fmt.Fprintln(out, "gophdrive (type 'help' for commands)")
	runREPL(ctx, a, a.reader, out)
	return nil
}

// passphrase returns the configured token passphrase or prompts for one on
// an interactive terminal. An empty result keeps the OAuth token in memory.
func passphrase(cfg *config.Config, w io.Writer) ([]byte, error) {
	if cfg.TokenPassphrase != "" {
		return []byte(cfg.TokenPassphrase), nil
	}
	if !isTerminal(int(os.Stdin.Fd())) {
		return nil, nil
	}
	return GetPassword("Token store passphrase (empty to skip)", w)
}
