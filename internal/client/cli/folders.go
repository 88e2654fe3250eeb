package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"
)

func (a *App) Folders(ctx context.Context) error {
	info := a.svc.FolderStructure()
	if info.ProjectFolderID == "" {
		fmt.Fprintln(a.out, "Folders are not provisioned yet.")
		return nil
	}
	fmt.Fprintf(a.out, "Project: %s\n", info.ProjectFolderURL)
	fmt.Fprintf(a.out, "JSON:    %s\n", info.JSONFolderURL)
	fmt.Fprintf(a.out, "PDF:     %s\n", info.PDFFolderURL)
	return nil
}

func (a *App) Events(ctx context.Context) error {
	events := a.events.Events()
	if len(events) == 0 {
		fmt.Fprintln(a.out, "No security events.")
		return nil
	}
	for _, e := range events {
		fmt.Fprintf(a.out, "%s  %s", e.Timestamp.Local().Format(time.DateTime), e.Type)
		for _, k := range slices.Sorted(maps.Keys(e.Details)) {
			fmt.Fprintf(a.out, " %s=%v", k, e.Details[k])
		}
		fmt.Fprintln(a.out)
	}
	return nil
}
