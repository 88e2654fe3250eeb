package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/client/services"
	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/docker/go-units"
)

var (
	errCSVUsage    = errors.New("usage: csv save <file> | csv list | csv show <file id>")
	errExportUsage = errors.New("usage: export [output file]")
)

// saveUserData keeps a copy of the uploaded annotations and the progress
// document after an upload. Failures are printed, not returned.
func (a *App) saveUserData(ctx context.Context, res *services.SetResult, data []byte) {
	meta := map[string]any{"setName": res.SetName}
	if s := res.JSONSheet; s != nil {
		meta["spreadsheetId"] = s.SpreadsheetID
	}
	if p := res.PDFFile; p != nil {
		meta["pdfFileId"] = p.ID
	}
	if _, err := a.data.SaveAnnotations(ctx, res.SetName, data, meta); err != nil {
		fmt.Fprintf(a.out, "  warning: annotations not saved: %v\n", err)
	}

	err := a.data.SaveProgress(ctx, map[string]any{
		"lastSet":      res.SetName,
		"lastUploadAt": res.Timestamp.Format(time.RFC3339),
		"lastSuccess":  res.Success,
	})
	if err != nil {
		fmt.Fprintf(a.out, "  warning: progress not saved: %v\n", err)
	}
}

func (a *App) Progress(ctx context.Context) error {
	doc, err := a.data.Progress(ctx)
	if errors.Is(err, common.ErrorNotFound) {
		fmt.Fprintln(a.out, "No progress saved yet.")
		return nil
	}
	if err != nil {
		return err
	}
	for _, k := range slices.Sorted(maps.Keys(doc)) {
		fmt.Fprintf(a.out, "%-14s %v\n", k+":", doc[k])
	}
	return nil
}

// Annotations lists the saved annotation files, or prints one by key.
func (a *App) Annotations(ctx context.Context, args []string) error {
	if len(args) > 0 {
		key := strings.Join(args, " ")
		doc, err := a.data.LoadAnnotations(ctx, key)
		if err != nil {
			return err
		}
		return a.writeJSON(doc)
	}

	list, err := a.data.UserAnnotations(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No saved annotations.")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	for _, f := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.FileName, f.ModifiedTime, f.ID)
	}
	return tw.Flush()
}

func (a *App) CSV(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errCSVUsage
	}
	switch args[0] {
	case "save":
		if len(args) != 2 {
			return errCSVUsage
		}
		content, err := a.readFile(args[1])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[1], err)
		}
		res, err := a.data.SaveCSV(ctx, filepath.Base(args[1]), string(content))
		if err != nil {
			return err
		}
		if !res.Saved {
			fmt.Fprintf(a.out, "Already stored as %s (%s)\n", res.FileName, res.FileID)
			return nil
		}
		fmt.Fprintf(a.out, "Stored %s (%s, %s compressed)\n", res.FileName,
			units.BytesSize(float64(res.OriginalSize)), units.BytesSize(float64(res.CompressedSize)))
	case "list":
		list, err := a.data.ListCSV(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(a.out, "No stored CSV files.")
			return nil
		}
		tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
		for _, c := range list {
			fmt.Fprintf(tw, "%s\t%s\t%d rows\t%s\t%s\n", c.FileName, c.UploadDate.Local().Format(time.DateTime),
				c.RowCount, units.BytesSize(float64(c.FileSize)), c.FileID)
		}
		return tw.Flush()
	case "show":
		if len(args) != 2 {
			return errCSVUsage
		}
		rec, err := a.data.LoadCSV(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, rec.Content)
	default:
		return errCSVUsage
	}
	return nil
}

// Export prints everything stored for the user as JSON, or writes it to a
// file.
func (a *App) Export(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return errExportUsage
	}
	exp, err := a.data.Export(ctx)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return a.writeJSON(exp)
	}

	b, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return err
	}
	if err := a.writeFile(args[0], b, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", args[0], err)
	}
	fmt.Fprintf(a.out, "Exported %d annotation files and %d CSV files to %s\n",
		len(exp.Annotations), len(exp.CSVFiles), args[0])
	return nil
}

// DeleteData asks for confirmation before removing the stored user data.
func (a *App) DeleteData(ctx context.Context) error {
	answer, err := GetSimpleText(a.reader, "Delete saved annotations, CSV files and progress from Drive? [y/N]", a.out)
	if err != nil {
		return err
	}
	if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
		fmt.Fprintln(a.out, "Cancelled.")
		return nil
	}
	n, err := a.data.DeleteAll(ctx)
	fmt.Fprintf(a.out, "Deleted %d files.\n", n)
	return err
}

func (a *App) writeJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
