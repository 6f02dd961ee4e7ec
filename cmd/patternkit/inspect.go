package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/patternkit/patternkit/pkg/models"
	"github.com/patternkit/patternkit/pkg/store"
)

func inspectCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect [project-id]",
		Short: "List stored projects, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				records, err := st.List(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, records)
				}
				return writeRecords(out, records)
			}

			data, err := st.LoadSnapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			p, err := models.ProjectFromJSON(data)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, p.ToJSON())
			}
			return writeProject(out, p)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeRecords(w io.Writer, records []store.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPATH\tUPDATED")
	for _, r := range records {
		name := r.Name
		if r.Draft {
			name += " (draft)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, name, r.Path, r.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func writeProject(w io.Writer, p *models.Project) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Project:\t%s\n", p.Name())
	fmt.Fprintf(tw, "ID:\t%s\n", p.ID())
	if p.Path() != "" {
		fmt.Fprintf(tw, "Path:\t%s\n", p.Path())
	}
	fmt.Fprintf(tw, "Elements:\t%d\n", len(p.Elements()))

	fmt.Fprintln(tw, "\nPAGE\tID")
	for _, pg := range p.Pages() {
		name := pg.Name()
		if pg.Active() {
			name += " *"
		}
		fmt.Fprintf(tw, "%s\t%s\n", name, pg.ID())
	}

	fmt.Fprintln(tw, "\nLIBRARY\tVERSION\tORIGIN\tSTATE\tPATTERNS")
	for _, l := range p.PatternLibraries() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", l.Name(), l.Version(), l.Origin(), l.State(), len(l.Patterns()))
	}
	return tw.Flush()
}
