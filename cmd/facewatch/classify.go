package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/facewatch/facewatch/internal/expression"
)

func newClassifyCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "classify [file|-]",
		Short: "Classify blend shape samples read from a file or stdin",
		Long: `Reads a stream of JSON objects, each either {"blend_shapes": {...}} or a
bare map of blend shape name to coefficient, and prints the expressions
found in each. Unknown names are ignored and missing ones read as zero.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return classifyStream(in, cmd.OutOrStdout(), asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON result per sample")

	return cmd
}

type classifyResult struct {
	Labels []string `json:"labels"`
	Text   string   `json:"text"`
}

// classifyStream classifies every JSON object in r. Text output separates
// samples with a line holding only "--".
func classifyStream(r io.Reader, w io.Writer, asJSON bool) error {
	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)

	for n := 0; ; n++ {
		var raw map[string]json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("sample %d: %w", n+1, err)
		}

		sample, err := decodeSample(raw)
		if err != nil {
			return fmt.Errorf("sample %d: %w", n+1, err)
		}
		report := expression.Classify(sample)

		if asJSON {
			if err := enc.Encode(classifyResult{Labels: report.Strings(), Text: report.Text()}); err != nil {
				return err
			}
			continue
		}

		if n > 0 {
			fmt.Fprintln(w, "--")
		}
		if len(report) > 0 {
			fmt.Fprintln(w, report.Text())
		}
	}
}

func decodeSample(raw map[string]json.RawMessage) (expression.Sample, error) {
	if shapes, ok := raw["blend_shapes"]; ok {
		var m map[string]float64
		if err := json.Unmarshal(shapes, &m); err != nil {
			return nil, fmt.Errorf("decode blend_shapes: %w", err)
		}
		return expression.ParseSample(m), nil
	}

	m := make(map[string]float64, len(raw))
	for k, v := range raw {
		if !expression.BlendShape(k).IsKnown() {
			continue
		}
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", k, err)
		}
		m[k] = f
	}
	return expression.ParseSample(m), nil
}
