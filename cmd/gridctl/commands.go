package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/gnemet/admingrid"
	"github.com/gnemet/admingrid/internal/config"
	"github.com/spf13/cobra"
)

// env is what every command needs: config, catalog and a logger.
type env struct {
	configPath  string
	catalogPath string
	lang        string
	endpoint    string
	verbose     bool

	cfg     *config.Config
	catalog *admingrid.Catalog
	logger  *slog.Logger
}

func (e *env) load(cmd *cobra.Command) error {
	cfg, err := config.Load(e.configPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg, err = config.Parse(nil)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if e.catalogPath != "" {
		cfg.Catalog.Path = e.catalogPath
	}
	if e.lang != "" {
		cfg.Catalog.Lang = e.lang
	}
	if e.verbose {
		cfg.Logging.Level = "debug"
	}
	if cfg.Catalog.Path == "" {
		return errors.New("no catalog: set catalog.path or pass --catalog")
	}

	catalog, err := admingrid.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	e.cfg, e.catalog = cfg, catalog
	e.logger = cfg.NewLogger(cmd.ErrOrStderr())
	return nil
}

func (e *env) model(identity string) (*admingrid.ModelDef, *admingrid.ColumnTable, error) {
	m, ok := e.catalog.Model(identity)
	if !ok {
		return nil, nil, fmt.Errorf("unknown model %q", identity)
	}
	table, err := e.catalog.Table(identity, e.cfg.Catalog.Lang)
	if err != nil {
		return nil, nil, err
	}
	return m, table, nil
}

func (e *env) source(m *admingrid.ModelDef) *admingrid.HTTPDataSource {
	endpoint := e.endpoint
	if endpoint == "" {
		endpoint = e.cfg.DataSource(m)
	}
	src := admingrid.NewHTTPDataSource(endpoint, e.cfg.Grid.Headers, e.cfg.Grid.RequestTimeout)
	src.Logger = e.logger
	return src
}

// criteria reads a filter-builder tree given inline or as @file.
func criteria(arg string) (admingrid.CriteriaNode, error) {
	data := []byte(arg)
	if strings.HasPrefix(arg, "@") {
		var err error
		if data, err = os.ReadFile(arg[1:]); err != nil {
			return nil, err
		}
	}
	return admingrid.ParseCriteria(data)
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:          "gridctl",
		Short:        "Query and maintain grid data endpoints",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&e.configPath, "config", "config.yaml", "Path to config.yaml")
	root.PersistentFlags().StringVar(&e.catalogPath, "catalog", "", "Catalog file, overrides catalog.path")
	root.PersistentFlags().StringVar(&e.lang, "lang", "", "Label language, overrides catalog.lang")
	root.PersistentFlags().StringVar(&e.endpoint, "endpoint", "", "Data endpoint URL, overrides the model datasource")
	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "Log requests")

	root.AddCommand(newFetchCmd(e), newCompileCmd(e), newDeleteCmd(e), newExportCmd(e))
	return root
}

func newFetchCmd(e *env) *cobra.Command {
	var (
		page, length, sortCol int
		dir, filter, output   string
	)
	cmd := &cobra.Command{
		Use:   "fetch <model>",
		Short: "Fetch one page of a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, table, err := e.model(args[0])
			if err != nil {
				return err
			}
			tree, err := criteria(filter)
			if err != nil {
				return err
			}
			if length <= 0 {
				length = e.cfg.Grid.PageLength
			}

			adapter := admingrid.NewAdapter(table, e.source(m), e.logger, admingrid.WithGapPolicy(e.cfg.GapPolicy()))
			var sorts []admingrid.SortInstruction
			if sortCol >= 0 {
				sorts = []admingrid.SortInstruction{{Column: sortCol, Dir: admingrid.SortDirection(dir)}}
			}
			resp, err := adapter.FetchPage(cmd.Context(), admingrid.PageState{Index: page, Length: length}, tree, sorts)
			if err != nil {
				return err
			}

			if output == "json" {
				items := make([]map[string]interface{}, len(resp.Items))
				for i, row := range resp.Items {
					items[i] = row.Values
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{"items": items, "total": resp.Total})
			}

			registry := admingrid.NewRegistry(e.urls())
			if err := printTable(cmd.OutOrStdout(), registry, table, resp.Items); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d rows (page %d)\n", len(resp.Items), resp.Total, page)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "Page index, zero based")
	cmd.Flags().IntVar(&length, "length", 0, "Page length (default grid.page_length)")
	cmd.Flags().IntVar(&sortCol, "sort", 0, "Listed column index to sort by, -1 for none")
	cmd.Flags().StringVar(&dir, "dir", "asc", "Sort direction: asc or desc")
	cmd.Flags().StringVar(&filter, "filter", "", "Filter-builder criteria as JSON, or @file")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json")
	return cmd
}

func newCompileCmd(e *env) *cobra.Command {
	var (
		filter string
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "compile <model>",
		Short: "Compile filter-builder criteria into a backend filter expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, table, err := e.model(args[0])
			if err != nil {
				return err
			}
			tree, err := criteria(filter)
			if err != nil {
				return err
			}
			if strict {
				if err := admingrid.ValidateCriteria(tree, table); err != nil {
					return err
				}
			}

			compiler := admingrid.NewCompiler(table,
				admingrid.WithGapPolicy(e.cfg.GapPolicy()),
				admingrid.WithCompilerLogger(e.logger))
			expr, gaps, err := compiler.CompileReport(tree)
			if err != nil {
				return err
			}
			for _, gap := range gaps {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", gap)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(expr)
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "Filter-builder criteria as JSON, or @file")
	cmd.Flags().BoolVar(&strict, "strict", false, "Reject conditions the filter builder does not offer for a column")
	return cmd
}

// cliView reports bulk-delete progress on the terminal.
type cliView struct {
	admingrid.NopBulkView
	out io.Writer
}

func (v cliView) ShowConfirm(count int) {
	_, _ = fmt.Fprintf(v.out, "About to delete %d rows; pass --yes to proceed\n", count)
}

func (v cliView) ShowLoading() { _, _ = fmt.Fprintln(v.out, "Deleting...") }

func (v cliView) ShowError(err error) { _, _ = fmt.Fprintf(v.out, "Delete failed: %v\n", err) }

func newDeleteCmd(e *env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <model> <pk>...",
		Short: "Delete rows by primary key",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, table, err := e.model(args[0])
			if err != nil {
				return err
			}
			opts := e.cfg.GridOptions(e.logger)
			opts.View = cliView{out: cmd.OutOrStdout()}
			grid, err := admingrid.NewGrid(table, e.source(m), opts)
			if err != nil {
				return err
			}

			pks := make([]interface{}, 0, len(args)-1)
			for _, a := range args[1:] {
				pks = append(pks, a)
			}
			grid.Select(admingrid.IdentitiesOf(pks...)...)

			bulk := grid.Bulk()
			if err := bulk.Request(); err != nil {
				return err
			}
			if !yes {
				bulk.Cancel()
				return nil
			}
			if err := bulk.Confirm(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d rows from %s\n", len(pks), m.Identity)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Delete without asking")
	return cmd
}

func newExportCmd(e *env) *cobra.Command {
	var (
		out, filter string
		batch       int
	)
	cmd := &cobra.Command{
		Use:   "export <model>",
		Short: "Export every row of a model matching a filter as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, table, err := e.model(args[0])
			if err != nil {
				return err
			}
			tree, err := criteria(filter)
			if err != nil {
				return err
			}
			if batch <= 0 {
				return fmt.Errorf("batch must be positive, got %d", batch)
			}

			adapter := admingrid.NewAdapter(table, e.source(m), e.logger, admingrid.WithGapPolicy(e.cfg.GapPolicy()))
			sorts := []admingrid.SortInstruction{{Column: 0, Dir: admingrid.SortAsc}}

			var rows []*admingrid.Row
			for page := 0; ; page++ {
				resp, err := adapter.FetchPage(cmd.Context(), admingrid.PageState{Index: page, Length: batch}, tree, sorts)
				if err != nil {
					return err
				}
				rows = append(rows, resp.Items...)
				if len(resp.Items) == 0 || len(rows) >= resp.Total {
					break
				}
			}

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := admingrid.WriteCSV(w, admingrid.NewRegistry(e.urls()), table, rows); err != nil {
				return err
			}
			e.logger.Info("Export written", "model", m.Identity, "rows", len(rows), "out", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&filter, "filter", "", "Filter-builder criteria as JSON, or @file")
	cmd.Flags().IntVar(&batch, "batch", 100, "Rows per request")
	return cmd
}

func (e *env) urls() admingrid.URLBuilder {
	return admingrid.URLBuilder{FileBase: e.cfg.Grid.FileBaseURL, AdminBase: e.cfg.Grid.AdminBaseURL}
}

func printTable(w io.Writer, registry *admingrid.Registry, table *admingrid.ColumnTable, rows []*admingrid.Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	listed := table.Listed()
	labels := make([]string, len(listed))
	for i, c := range listed {
		labels[i] = c.Label
	}
	_, _ = fmt.Fprintln(tw, strings.Join(labels, "\t"))

	for _, row := range rows {
		cells, err := registry.RenderRow(table, row, admingrid.ModeExport)
		if err != nil {
			return err
		}
		texts := make([]string, len(cells))
		for i, c := range cells {
			texts[i] = admingrid.CellText(c)
		}
		_, _ = fmt.Fprintln(tw, strings.Join(texts, "\t"))
	}
	return tw.Flush()
}
