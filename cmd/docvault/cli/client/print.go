package client

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/mwantia/docvault/pkg/vault"
)

var (
	headerColor  = color.New(color.Bold)
	successColor = color.New(color.FgGreen)
	favoriteMark = color.New(color.FgYellow).Sprint("*")
)

func humanSize(n int64) string {
	return units.HumanSize(float64(n))
}

func printDocuments(w io.Writer, docs []*vault.Document) {
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	headerColor.Fprintln(tw, "ID\tTITLE\tPAGES\tSIZE\tOCR\tUPDATED\t")
	for _, d := range docs {
		title := d.Title
		if d.IsFavorite {
			title = favoriteMark + " " + title
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t\n",
			d.ID, title, d.PageCount(), humanSize(d.SizeBytes), d.OcrStatus,
			units.HumanDuration(time.Since(d.UpdatedAt))+" ago")
	}
	tw.Flush()
}

func printDocument(w io.Writer, d *vault.Document, tags []*vault.Tag) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row := func(k, v string) { fmt.Fprintf(tw, "%s\t%s\n", headerColor.Sprint(k), v) }

	row("ID", d.ID)
	row("Title", d.Title)
	if d.Description != nil {
		row("Description", *d.Description)
	}
	row("Original file", d.OriginalFilename)
	row("MIME type", d.MimeType)
	row("Size", humanSize(d.SizeBytes))
	row("Pages", fmt.Sprint(d.PageCount()))
	row("Thumbnail", fmt.Sprint(d.HasThumbnail()))
	row("Favorite", fmt.Sprint(d.IsFavorite))
	if d.FolderID != nil {
		row("Folder", *d.FolderID)
	}
	row("OCR", string(d.OcrStatus))
	if len(tags) > 0 {
		names := make([]string, len(tags))
		for i, t := range tags {
			names[i] = t.Name
		}
		row("Tags", strings.Join(names, ", "))
	}
	row("Created", d.CreatedAt.Local().Format(time.DateTime))
	row("Updated", d.UpdatedAt.Local().Format(time.DateTime))
	tw.Flush()

	if d.OcrText != nil && *d.OcrText != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, *d.OcrText)
	}
}

func printTags(w io.Writer, tags []*vault.Tag) {
	if len(tags) == 0 {
		fmt.Fprintln(w, "No tags")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	headerColor.Fprintln(tw, "ID\tNAME\tCOLOR\t")
	for _, t := range tags {
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", t.ID, t.Name, t.Color)
	}
	tw.Flush()
}
