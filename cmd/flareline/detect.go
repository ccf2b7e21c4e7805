package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/flareline/internal/detector"
	"github.com/rewired-gh/flareline/internal/models"
)

var detectFormat string

// detectCmd runs detection over a JSON file without touching the database.
var detectCmd = &cobra.Command{
	Use:   "detect [file]",
	Short: "Detect patterns from a JSON file of events and correlations",
	Long: `Detect patterns from a JSON document of the form
{"events": [...], "correlations": [...]} read from a file or stdin.

Examples:
  flareline detect history.json
  cat history.json | flareline detect - --format text`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDetect,
}

func init() {
	detectCmd.Flags().StringVar(&detectFormat, "format", "json", "Output format: json or text")
}

// detectInput is the document read by the detect command.
type detectInput struct {
	Events       []models.TimelineEvent     `json:"events"`
	Correlations []models.CorrelationRecord `json:"correlations"`
}

func runDetect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var r io.Reader = os.Stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var in detectInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return fmt.Errorf("failed to decode input: %w", err)
	}

	res := detector.New(windowPolicy(cfg)).Detect(in.Events, in.Correlations)
	return writePatterns(cmd.OutOrStdout(), detectFormat, res)
}

func writePatterns(w io.Writer, format string, res detector.Result) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		patterns := res.Patterns
		if patterns == nil {
			patterns = []models.DetectedPattern{}
		}
		return enc.Encode(patterns)
	case "text":
		if len(res.Patterns) == 0 {
			fmt.Fprintln(w, "No patterns detected.")
		}
		for _, p := range res.Patterns {
			fmt.Fprintf(w, "[%s] %s (r=%+.2f, %s, %s confidence, lag %.1fh, observed %.1fh)\n",
				p.Type, p.Description, p.Coefficient, p.Strength, p.Confidence, p.LagHours, p.ObservedLagHours)
			for _, o := range p.Occurrences {
				fmt.Fprintf(w, "    %s %s -> %s %s\n",
					o.Event1.Timestamp.Format("2006-01-02 15:04"), o.Event1.ID,
					o.Event2.Timestamp.Format("2006-01-02 15:04"), o.Event2.ID)
			}
		}
		for _, s := range res.Skipped {
			fmt.Fprintf(w, "skipped %s %q -> %q: %s\n", s.Record.Type, s.Record.ItemAName, s.Record.ItemBName, s.Reason)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (want json or text)", format)
	}
}
