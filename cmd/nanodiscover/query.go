package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/coffersTech/nanodiscover/internal/docsource"
	"github.com/coffersTech/nanodiscover/internal/engine"
	"github.com/coffersTech/nanodiscover/internal/model"
	"github.com/coffersTech/nanodiscover/internal/pkg/lucene"
)

var (
	queryFrom     string
	queryTo       string
	queryLimit    int
	queryNested   bool
	queryFreeText string
	queryField    string
	queryBucket   int
)

var queryCmd = &cobra.Command{
	Use:   "query <query> <file-glob>...",
	Short: "Run one discover request over files and print the result as JSON",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		tr, err := cliTimeRange(queryFrom, queryTo)
		if err != nil {
			return err
		}

		docs, err := docsource.New(args[1:], docsource.Options{}).Load()
		if err != nil {
			return err
		}
		table := engine.NewDocumentTable(0)
		table.Replace(docs)

		res, err := engine.New(table, engine.Config{}).Discover(engine.Request{
			Query:         args[0],
			Nested:        queryNested,
			FreeText:      queryFreeText,
			TimeRange:     tr,
			Limit:         queryLimit,
			BucketMinutes: queryBucket,
			StatsField:    queryField,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryFrom, "from", "", "start of the time range (RFC 3339)")
	queryCmd.Flags().StringVar(&queryTo, "to", "", "end of the time range (RFC 3339)")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0, "maximum documents returned")
	queryCmd.Flags().BoolVar(&queryNested, "nested", false, "parse the query as a full boolean expression")
	queryCmd.Flags().StringVar(&queryFreeText, "text", "", "free-text filter")
	queryCmd.Flags().StringVar(&queryField, "field", "", "also compute the value distribution of this field")
	queryCmd.Flags().IntVar(&queryBucket, "bucket", 0, "histogram bucket width in minutes")
}

func cliTimeRange(from, to string) (model.TimeRange, error) {
	var tr model.TimeRange
	for _, p := range []struct {
		flag string
		raw  string
		dst  *time.Time
	}{{"from", from, &tr.From}, {"to", to, &tr.To}} {
		if p.raw == "" {
			continue
		}
		t, ok := model.ParseTimestamp(p.raw)
		if !ok {
			return tr, fmt.Errorf("--%s: invalid time %q", p.flag, p.raw)
		}
		*p.dst = t
	}
	return tr, nil
}

var validateCmd = &cobra.Command{
	Use:   "validate <query>",
	Short: "Check a query for syntax problems",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		diags := lucene.Validate(args[0])
		if len(diags) == 0 {
			if _, err := lucene.ParseExpr(args[0]); err != nil {
				diags = append(diags, err.Error())
			}
		}
		if len(diags) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		}
		for _, d := range diags {
			fmt.Fprintln(cmd.OutOrStdout(), d)
		}
		return fmt.Errorf("%d problem(s) found", len(diags))
	},
}
