package cli

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func (a *App) History(ctx context.Context) error {
	list, err := a.svc.History(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No uploads yet.")
		return nil
	}
	for _, r := range list {
		status := "ok"
		if !r.Success {
			status = "failed"
		}
		fmt.Fprintf(a.out, "%s  %-6s  %s\n", r.Timestamp.Local().Format(time.DateTime), status, r.SetName)
		if r.JSONSheetURL != "" {
			fmt.Fprintf(a.out, "    sheet: %s\n", r.JSONSheetURL)
		}
		if r.PDFFileURL != "" {
			fmt.Fprintf(a.out, "    pdf:   %s\n", r.PDFFileURL)
		}
		if len(r.Errors) > 0 {
			fmt.Fprintf(a.out, "    errors: %s\n", strings.Join(r.Errors, "; "))
		}
	}
	return nil
}

// ClearHistory asks for confirmation before wiping the log.
func (a *App) ClearHistory(ctx context.Context) error {
	answer, err := GetSimpleText(a.reader, "Clear upload history? [y/N]", a.out)
	if err != nil {
		return err
	}
	if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
		fmt.Fprintln(a.out, "Cancelled.")
		return nil
	}
	if err := a.svc.ClearHistory(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "History cleared.")
	return nil
}
