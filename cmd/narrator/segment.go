package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/narrator-go/internal/narrative"
	"github.com/dgnsrekt/narrator-go/internal/playback"
)

func segmentCmd(a *app) *cobra.Command {
	var (
		format string
		raw    bool
	)
	cmd := &cobra.Command{
		Use:   "segment [file|-]",
		Short: "Show how narrative text is attributed without speaking it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "table" && format != "json" {
				return fmt.Errorf("unknown format %q (want table or json)", format)
			}
			text, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			seg := newSegmenter(a.cfg, nil)
			n := playback.NewNarrator(rosterSource(a.cfg), seg, narrative.NewState(), nil, a.logger)

			var segs []narrative.Segment
			if raw {
				segs = n.Attribute(cmd.Context(), text)
			} else {
				segs = n.Preview(cmd.Context(), text, false)
			}
			return printSegments(cmd.OutOrStdout(), segs, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table or json")
	cmd.Flags().BoolVar(&raw, "raw", false, "show attributed pieces before merging and chunking")
	return cmd
}

func printSegments(w io.Writer, segs []narrative.Segment, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(segs)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tKIND\tSPEAKER\tVOICE\tRULE\tTEXT")
	for i, s := range segs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", i, s.Kind, s.Speaker, s.Voice, s.Rule, s.Text)
	}
	return tw.Flush()
}
