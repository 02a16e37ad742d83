package pgrest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edgeflare/pgrest/pkg/client"
)

var queryCmd = &cobra.Command{
	Use:   "query <resource>",
	Short: "Run a query against a resource",
	Long:  `Queries a table or view and prints the result rows as JSON`,
	Args:  cobra.ExactArgs(1),
	Run:   runQuery,
}

func init() {
	f := queryCmd.Flags()
	f.StringSlice("select", nil, "columns to select (default all)")
	f.StringSlice("filter", nil, "filter as column=op.value, e.g. status=eq.active (repeatable)")
	f.StringSlice("order", nil, "order as column[.desc][.nullsfirst] (repeatable)")
	f.Int("limit", 0, "maximum number of rows")
	f.Int("offset", 0, "number of rows to skip")
	f.Int("page", 0, "page number (1-based, with --page-size)")
	f.Int("page-size", 0, "rows per page (with --page)")
	f.Bool("single", false, "expect exactly one row")
	f.Bool("count", false, "print the matching row count instead of rows")
	f.Bool("no-store", false, "bypass the result cache")

	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) {
	c, err := buildClient()
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	b := c.From(args[0])
	applyQueryFlags(b, cmd)

	var execOpts []client.ExecOption
	if noStore, _ := cmd.Flags().GetBool("no-store"); noStore {
		execOpts = append(execOpts, client.WithNoStore())
	}

	ctx := context.Background()

	if count, _ := cmd.Flags().GetBool("count"); count {
		n, err := b.Count(ctx, execOpts...)
		if err != nil {
			log.Fatalf("Count failed: %v", err)
		}
		fmt.Println(n)
		return
	}

	if page, _ := cmd.Flags().GetInt("page"); page > 0 {
		res, err := b.ExecuteWithPagination(ctx, execOpts...)
		if err != nil {
			log.Fatalf("Query failed: %v", err)
		}
		if res.Err != nil {
			log.Fatalf("Query failed: %v", res.Err)
		}
		printJSON(map[string]any{
			"data":            res.Data,
			"page":            res.Page,
			"pageSize":        res.PageSize,
			"totalCount":      res.TotalCount,
			"hasNextPage":     res.HasNextPage,
			"hasPreviousPage": res.HasPreviousPage,
		})
		return
	}

	res, err := b.Execute(ctx, execOpts...)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	if res.Err != nil {
		log.Fatalf("Query failed: %v", res.Err)
	}
	printJSON(res.Data)
}

func applyQueryFlags(b *client.QueryBuilder, cmd *cobra.Command) {
	if cols, _ := cmd.Flags().GetStringSlice("select"); len(cols) > 0 {
		b.Select(cols...)
	}

	filters, _ := cmd.Flags().GetStringSlice("filter")
	for _, f := range filters {
		column, rest, found := strings.Cut(f, "=")
		if !found {
			log.Fatalf("Invalid filter %q, want column=op.value", f)
		}
		op, value, found := strings.Cut(rest, ".")
		if !found {
			// bare value defaults to equality
			op, value = "eq", rest
		}
		b.Filter(column, op, value)
	}

	orders, _ := cmd.Flags().GetStringSlice("order")
	for _, o := range orders {
		column, opts := parseOrderSpec(o)
		b.Order(column, &opts)
	}

	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
		b.Limit(limit)
	}
	if offset, _ := cmd.Flags().GetInt("offset"); offset > 0 {
		b.Offset(offset)
	}
	if page, _ := cmd.Flags().GetInt("page"); page > 0 {
		pageSize, _ := cmd.Flags().GetInt("page-size")
		b.Paginate(page, pageSize)
	}
	if single, _ := cmd.Flags().GetBool("single"); single {
		b.Single()
	}
}

// parseOrderSpec reads a column[.desc][.nullsfirst] directive.
func parseOrderSpec(spec string) (string, client.OrderOpts) {
	column := spec
	opts := client.OrderOpts{Ascending: true}
	if strings.HasSuffix(column, ".nullsfirst") {
		column = strings.TrimSuffix(column, ".nullsfirst")
		opts.NullsFirst = true
	}
	if strings.HasSuffix(column, ".desc") {
		column = strings.TrimSuffix(column, ".desc")
		opts.Ascending = false
	} else {
		column = strings.TrimSuffix(column, ".asc")
	}
	return column, opts
}

func printJSON(data any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
}
