package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c360/vmeflow/engine"
	"github.com/c360/vmeflow/param"
)

type decodeOptions struct {
	*rootOptions
	Format    string
	Sizes     []int
	JSON      bool
	MaxEvents int
}

func newDecodeCommand(root *rootOptions) *cobra.Command {
	opts := &decodeOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "decode <file>",
		Short: "Decode an export stream into readable events",
		Long: `Decode a file written by an export sink. The stream carries no layout
information, so the vector sizes of the writing sink's data inputs must
be given in order. Compressed streams are detected automatically.

Example:
  vmeflow decode runs/amplitudes.vmex
  vmeflow decode --format full --sizes 16,4 --json run001.bin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Format, "format", "sparse", "stream format: full or sparse")
	cmd.Flags().IntSliceVar(&opts.Sizes, "sizes", []int{demoChannelCount},
		"vector sizes per event, in sink input order")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "emit one JSON object per event")
	cmd.Flags().IntVar(&opts.MaxEvents, "max-events", 0, "stop after this many events, 0 for all")

	return cmd
}

func runDecode(cmd *cobra.Command, opts *decodeOptions, path string) error {
	var format engine.ExportFormat
	switch strings.ToLower(opts.Format) {
	case "full":
		format = engine.ExportFull
	case "sparse":
		format = engine.ExportSparse
	default:
		return fmt.Errorf("unknown format %q, must be full or sparse", opts.Format)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	r, err := engine.SniffZlib(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	reader, err := engine.NewExportReader(r, format, opts.Sizes)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	count := 0
	for opts.MaxEvents <= 0 || count < opts.MaxEvents {
		event, err := reader.ReadEvent()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("decode event %d: %w", count, err)
		}

		if opts.JSON {
			if err := writeEventJSON(out, count, event); err != nil {
				return err
			}
		} else {
			writeEventText(out, count, event)
		}
		count++
	}

	if !opts.JSON {
		fmt.Fprintf(out, "decoded %d events\n", count)
	}
	return nil
}

// writeEventText prints one event with one vector per line. Invalid
// elements print as "-".
func writeEventText(w io.Writer, index int, event []param.Vec) {
	fmt.Fprintf(w, "event %d\n", index)
	for vi, vec := range event {
		fmt.Fprintf(w, "  [%d]", vi)
		for _, v := range vec {
			if param.IsValid(v) {
				fmt.Fprintf(w, " %g", v)
			} else {
				fmt.Fprint(w, " -")
			}
		}
		fmt.Fprintln(w)
	}
}

// writeEventJSON emits one JSON object per event. Invalid elements become
// null, JSON has no NaN.
func writeEventJSON(w io.Writer, index int, event []param.Vec) error {
	type jsonEvent struct {
		Event   int          `json:"event"`
		Vectors [][]*float64 `json:"vectors"`
	}

	je := jsonEvent{Event: index, Vectors: make([][]*float64, len(event))}
	for vi, vec := range event {
		elems := make([]*float64, len(vec))
		for i := range vec {
			if param.IsValid(vec[i]) {
				v := vec[i]
				elems[i] = &v
			}
		}
		je.Vectors[vi] = elems
	}

	return json.NewEncoder(w).Encode(je)
}
