package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/gophdrive/internal/client/services"
	"github.com/docker/go-units"
)

var errUploadUsage = errors.New("usage: upload <json file> <pdf file> [set name]")

// Upload sends a JSON file and a PDF as one annotation set.
func (a *App) Upload(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUploadUsage
	}
	jsonPath, pdfPath := args[0], args[1]

	data, err := a.readFile(jsonPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", jsonPath, err)
	}
	pdf, err := a.readFile(pdfPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", pdfPath, err)
	}

	set := services.AnnotationSet{
		SetName: strings.Join(args[2:], " "),
		JSON:    data,
		PDF: services.PDFFile{
			Name:        filepath.Base(pdfPath),
			ContentType: http.DetectContentType(pdf),
			Data:        pdf,
		},
		Metadata: map[string]string{"jsonFile": filepath.Base(jsonPath)},
	}

	res, err := a.svc.UploadSet(ctx, set)
	if err != nil {
		return err
	}
	a.printResult(res)
	a.saveUserData(ctx, res, data)

	if anns, err := services.ParseAnnotations(data); err == nil {
		a.printBreakdown(services.NewChartData(anns))
	}
	return nil
}

func (a *App) printResult(res *services.SetResult) {
	status := "uploaded"
	if !res.Success {
		status = "partially failed"
	}
	fmt.Fprintf(a.out, "Set %q %s\n", res.SetName, status)

	if s := res.JSONSheet; s != nil {
		fmt.Fprintf(a.out, "  JSON sheet: %s (%d rows, %d columns)\n", s.SpreadsheetURL, s.RowsImported, s.ColumnsImported)
	}
	if p := res.PDFFile; p != nil {
		link := p.WebViewLink
		if link == "" {
			link = p.DriveViewLink
		}
		fmt.Fprintf(a.out, "  PDF: %s (%s, %d pages)\n", link, units.BytesSize(float64(p.Size)), p.PageCount)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(a.out, "  error: %s\n", e)
	}
}

func (a *App) printBreakdown(c services.ChartData) {
	if c.TotalAnnotations == 0 {
		return
	}
	fmt.Fprintf(a.out, "Annotations: %d\n", c.TotalAnnotations)

	cats := make([]string, 0, len(c.ErrorBreakdown))
	for k := range c.ErrorBreakdown {
		cats = append(cats, k)
	}
	// Largest first, then by name.
	slices.SortFunc(cats, func(x, y string) int {
		if d := c.ErrorBreakdown[y] - c.ErrorBreakdown[x]; d != 0 {
			return d
		}
		return strings.Compare(x, y)
	})

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, k := range cats {
		fmt.Fprintf(tw, "  %s\t%d\n", k, c.ErrorBreakdown[k])
	}
	_ = tw.Flush()
}
