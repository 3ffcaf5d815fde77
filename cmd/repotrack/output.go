package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/repotrack/internal/dictionary"
)

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// table writes tab-separated rows aligned in columns.
func table(w io.Writer, header string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

func optString(p *int64) string {
	if p == nil {
		return "-"
	}
	return itoa(*p)
}

// optInt64 returns the flag's value when it was set on the command line.
func optInt64(cmd *cobra.Command, name string) (*int64, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	v, err := cmd.Flags().GetInt64(name)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// parseQNames parses {uri}local names.
func parseQNames(raw []string) ([]dictionary.QName, error) {
	if raw == nil {
		return nil, nil
	}
	out := make([]dictionary.QName, 0, len(raw))
	for _, s := range raw {
		q, err := dictionary.ParseQName(s)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// parseInt64Arg parses a positional argument.
func parseInt64Arg(name, s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return v, nil
}
