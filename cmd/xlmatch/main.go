package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kokistudios/xlmatch/internal/app"
	xlmcp "github.com/kokistudios/xlmatch/internal/mcp"
	"github.com/kokistudios/xlmatch/internal/sheet"
	"github.com/kokistudios/xlmatch/internal/store"
	"github.com/kokistudios/xlmatch/internal/ui"
	"github.com/kokistudios/xlmatch/internal/web"
)

// Set via ldflags at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func buildVersion() string {
	if commit == "none" {
		return version
	}
	return fmt.Sprintf("%s (%s, %s)", version, commit, date)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var noColor, verbose bool

	rootCmd := &cobra.Command{
		Use:   "xlmatch",
		Short: "xlmatch — spreadsheet lookup and match list builder",
		Long:  "Load a two-column spreadsheet as reference data, look terms up in it one at a time or in bulk, and export the confirmed matches as a new workbook.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ui.Init(noColor)
			ui.SetVerbose(verbose)
		},
	}

	rootCmd.Version = buildVersion()
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Reference Data:"},
		&cobra.Group{ID: "match", Title: "Matching:"},
		&cobra.Group{ID: "results", Title: "Result List:"},
		&cobra.Group{ID: "serve", Title: "Servers:"},
		&cobra.Group{ID: "config", Title: "Configuration:"},
	)

	add := func(group string, cmds ...*cobra.Command) {
		for _, c := range cmds {
			c.GroupID = group
			rootCmd.AddCommand(c)
		}
	}
	add("data", loadCmd(), resetCmd(), statusCmd())
	add("match", findCmd(), addCmd(), searchCmd(), batchCmd())
	add("results", resultsCmd(), removeCmd(), clearCmd(), exportCmd())
	add("serve", serveCmd(), mcpServeCmd())
	add("config", initCmd(), configCmd(), doctorCmd())
	rootCmd.AddCommand(completionCmd())

	return rootCmd
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:     "init",
		Short:   "Initialize XLMATCH_HOME directory structure",
		Long:    "Create the XLMATCH_HOME directory (~/.xlmatch by default) with exports/ and config.yaml. Other commands create it on first use, so this is only needed to reset the config.",
		Example: "  xlmatch init\n  xlmatch init --force",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := store.Home()
			if err := store.Init(home, force); err != nil {
				return err
			}
			ui.Success("xlmatch initialized")
			ui.Detail("Home:", home)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Reinitialize even if XLMATCH_HOME already exists")
	return cmd
}

func loadStore() (*store.Store, error) {
	s, err := store.Open(store.Home())
	if err != nil {
		return nil, fmt.Errorf("cannot open XLMATCH_HOME: %w", err)
	}
	return s, nil
}

// session is an App rehydrated from XLMATCH_HOME and wired to persist every change.
type session struct {
	store *store.Store
	slots *store.Slots
	app   *app.App
}

func openSession(ctx context.Context) (*session, error) {
	s, err := loadStore()
	if err != nil {
		return nil, err
	}
	slots, err := store.OpenSlots(s.StatePath())
	if err != nil {
		return nil, err
	}
	cfg := s.Config
	a := app.New(app.Options{
		Observer: app.SlotObserver{Slots: slots},
		Logger:   ui.Logger,
		MaxCells: cfg.Batch.MaxCells,
		Export: sheet.ExportOptions{
			SheetName:   cfg.Export.SheetName,
			KeyHeader:   cfg.Export.KeyHeader,
			ValueHeader: cfg.Export.ValueHeader,
		},
		ExportPrefix:  cfg.Export.FilenamePrefix,
		ConfirmWindow: time.Duration(cfg.Confirm.WindowSeconds) * time.Second,
	})
	if err := a.Rehydrate(ctx, slots); err != nil {
		slots.Close()
		return nil, err
	}
	return &session{store: s, slots: slots, app: a}, nil
}

func (s *session) Close() error { return s.slots.Close() }

func (s *session) sheetOptions() ui.SheetOptions {
	return ui.SheetOptions{
		KeyHeader:   s.store.Config.Export.KeyHeader,
		ValueHeader: s.store.Config.Export.ValueHeader,
		MinRows:     s.store.Config.Display.MinRows,
		Selected:    -1,
	}
}

// withSession opens a session for the duration of fn.
func withSession(cmd *cobra.Command, fn func(s *session) error) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// confirmPrompt asks a yes/no question on the terminal.
var confirmPrompt = ui.Confirm

// confirmed asks before a destructive action unless --yes was given.
func confirmed(yes bool, prompt string) (bool, error) {
	if yes {
		return true, nil
	}
	ok, err := confirmPrompt(prompt)
	if err != nil {
		return false, err
	}
	if !ok {
		ui.Info("Cancelled.")
	}
	return ok, nil
}

func loadCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Replace the reference data with a spreadsheet",
		Long:  "Read the first sheet of an .xlsx, .xls or .csv file. Column A becomes the key and column B the value; rows without a key are skipped. The result list is kept. Replacing reference data that is already loaded asks for confirmation.",
		Example: `  xlmatch load people.xlsx
  xlmatch load legacy.xls
  xlmatch load ids.csv --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				if loaded := s.app.ReferenceCount(); loaded > 0 {
					prompt := fmt.Sprintf("Replace the %s loaded reference rows with %s?", ui.Bold(fmt.Sprint(loaded)), ui.Bold(filepath.Base(args[0])))
					ok, err := confirmed(yes, prompt)
					if err != nil || !ok {
						return err
					}
				}
				n, err := s.app.LoadReference(args[0])
				if err != nil {
					return err
				}
				ui.Success(fmt.Sprintf("Loaded %d reference rows from %s", n, filepath.Base(args[0])))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Replace loaded reference data without asking")
	return cmd
}

func findCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find <term>",
		Short: "Look a term up without adding it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				if s.app.Status() == app.StatusEmpty {
					return fmt.Errorf("%w: run 'xlmatch load <file>' first", app.ErrNoReferenceData)
				}
				m, ok := s.app.Preview(args[0])
				if !ok {
					ui.EmptyState(fmt.Sprintf("No match for %q", args[0]))
					return nil
				}
				ui.KeyValue(s.store.Config.Export.KeyHeader+":", m.Key)
				ui.KeyValue(s.store.Config.Export.ValueHeader+":", m.Value)
				return nil
			})
		},
	}
}

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "add <term>...",
		Short:   "Add the match for each term to the result list",
		Example: "  xlmatch add alice\n  xlmatch add alice 200 carol",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				if s.app.Status() == app.StatusEmpty {
					return fmt.Errorf("%w: run 'xlmatch load <file>' first", app.ErrNoReferenceData)
				}
				for _, term := range args {
					res := s.app.AddTerm(term)
					switch {
					case !res.Found:
						ui.Warning(fmt.Sprintf("No match for %q", term))
					case res.Inserted:
						ui.Success(fmt.Sprintf("Added %s → %s %s", ui.Bold(res.Match.Key), res.Match.Value, ui.Dim("("+res.Entry.ID+")")))
					default:
						ui.Info(fmt.Sprintf("%s is already in the list", res.Match.Key))
					}
				}
				return nil
			})
		},
	}
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search",
		Short: "Interactive live search",
		Long:  "Open a full-screen search box. The best match is previewed as you type; enter adds it to the result list.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				return ui.RunSearch(s.app, ui.SearchOptions{
					Sheet:     s.sheetOptions(),
					ExportDir: s.store.ExportsDir(),
				})
			})
		},
	}
}

func batchCmd() *cobra.Command {
	var notify bool
	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Match every row of a spreadsheet",
		Long:  "Each row is matched by its first cells in order; the first cell with a match decides the row. New distinct matches are added to the top of the result list in row order.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				spin := ui.NewSpinner("Matching " + filepath.Base(args[0]) + "...")
				added, err := s.app.ImportBatch(args[0])
				spin.Stop()

				switch {
				case errors.Is(err, app.ErrNoNewMatches):
					ui.Warning("Batch import finished, but no new matches were found.")
					return nil
				case err != nil:
					return err
				}
				msg := fmt.Sprintf("Batch import added %d new match(es)", len(added))
				ui.Success(msg)
				if notify {
					ui.Notify("xlmatch", msg)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", false, "Send a desktop notification when the import finishes")
	return cmd
}

func resultsCmd() *cobra.Command {
	var asJSON, ids bool
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show the result list",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				results := s.app.Results()
				switch {
				case asJSON:
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(s.app.Snapshot().Results)
				case ids:
					if len(results) == 0 {
						ui.EmptyState(ui.EmptyLedgerHint)
						return nil
					}
					var rows [][]string
					for i, r := range results {
						rows = append(rows, []string{fmt.Sprint(i + 2), r.ID, r.Key, r.Value})
					}
					ui.Table([]string{"ROW", "ID", "NAME", "VALUE"}, rows)
				default:
					fmt.Println(ui.RenderSheet(results, s.sheetOptions()))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result list as JSON")
	cmd.Flags().BoolVar(&ids, "ids", false, "Include entry ids (for 'xlmatch remove')")
	return cmd
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>...",
		Short: "Remove entries from the result list",
		Long:  "Remove entries by id. Use 'xlmatch results --ids' to see them. Unknown ids are reported and skipped.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				for _, id := range args {
					if s.app.Remove(id) {
						ui.Success(fmt.Sprintf("Removed %s", id))
					} else {
						ui.Warning(fmt.Sprintf("No entry with id %s", id))
					}
				}
				return nil
			})
		},
	}
}

func clearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the result list",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				n := len(s.app.Results())
				if n == 0 {
					ui.EmptyState("Nothing to clear.")
					return nil
				}
				ok, err := confirmed(yes, fmt.Sprintf("Discard all %s result(s)?", ui.Bold(fmt.Sprint(n))))
				if err != nil || !ok {
					return err
				}
				s.app.Clear()
				ui.Success(fmt.Sprintf("Cleared %d result(s)", n))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget the reference data and the result list",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				ok, err := confirmed(yes, "Forget the reference data and every result?")
				if err != nil || !ok {
					return err
				}
				s.app.Reset()
				ui.Success("All data cleared")
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func exportCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:     "export",
		Short:   "Write the result list to a new .xlsx workbook",
		Example: "  xlmatch export\n  xlmatch export -o ~/Desktop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				out := dir
				if out == "" {
					out = s.store.ExportsDir()
				}
				path, err := s.app.ExportFile(out)
				if err != nil {
					return err
				}
				ui.Success("Exported result list")
				ui.Detail("File:", path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&dir, "output", "o", "", "Destination directory (default: XLMATCH_HOME/exports)")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize the loaded data and the result list",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				ui.RenderMarkdown(ui.StatusMarkdown(ui.StatusReport{
					Home:     s.store.Home,
					Snapshot: s.app.Snapshot(),
					Latest:   10,
				}))
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and edit xlmatch configuration",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configSetCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(s.Config)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  "Set an xlmatch configuration value. Valid keys: batch.max_cells, export.sheet_name, export.key_header, export.value_header, export.filename_prefix, confirm.window_seconds, display.min_rows, serve.addr.",
		Example: `  xlmatch config set batch.max_cells 8
  xlmatch config set export.sheet_name "Matches"
  xlmatch config set serve.addr 127.0.0.1:9000`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			if err := s.SetConfigValue(args[0], args[1]); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("Set %s = %s", args[0], args[1]))
			return nil
		},
	}
}

func doctorCmd() *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check health of XLMATCH_HOME and the saved state",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := store.Home()

			if fix {
				ui.CommandBanner("DOCTOR", "repair mode")
				fixed := store.FixIssues(home)
				for _, f := range fixed {
					ui.Success(fmt.Sprintf("[FIXED] %s", f))
				}
				if len(fixed) == 0 {
					ui.EmptyState("Nothing to fix.")
				}
			} else {
				ui.CommandBanner("DOCTOR", "health check")
			}

			issues := store.CheckHealth(home)
			issues = append(issues, checkState(cmd.Context(), home)...)

			if len(issues) == 0 {
				ui.Success("Everything looks good")
				os.Exit(0)
			}

			hasError := false
			for _, issue := range issues {
				if issue.Severity == "error" {
					ui.Error(fmt.Sprintf("[ERR]  %s", issue.Message))
					hasError = true
				} else {
					ui.Warning(fmt.Sprintf("[WARN] %s", issue.Message))
				}
			}

			if hasError {
				os.Exit(2)
			}
			os.Exit(1)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "Recreate missing directories and config")
	return cmd
}

// checkState reports unreadable or undecodable persisted slots.
func checkState(ctx context.Context, home string) []store.Issue {
	path := filepath.Join(home, "state.db")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	slots, err := store.OpenSlots(path)
	if err != nil {
		return []store.Issue{{Severity: "error", Message: fmt.Sprintf("cannot open state.db: %v", err)}}
	}
	defer slots.Close()

	st, warnings, err := slots.LoadState(ctx)
	if err != nil {
		return []store.Issue{{Severity: "error", Message: fmt.Sprintf("cannot read state.db: %v", err)}}
	}
	var issues []store.Issue
	for _, w := range warnings {
		issues = append(issues, store.Issue{Severity: "warning", Message: w})
	}
	if app.ParseStatus(st.Status) == app.StatusBusy {
		issues = append(issues, store.Issue{Severity: "warning", Message: "a batch import did not finish; status will reset on next use"})
	}
	return issues
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON HTTP API",
		Long:  "Serve the reference data and result list over HTTP so a browser front-end or script can drive them. Destructive calls must be repeated within the confirmation window.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withSession(cmd, func(s *session) error {
				if addr == "" {
					addr = s.store.Config.Serve.Addr
				}
				srv := web.New(s.app, web.Options{
					Logger:        ui.Logger,
					ConfirmWindow: time.Duration(s.store.Config.Confirm.WindowSeconds) * time.Second,
				})
				ui.Info(fmt.Sprintf("Serving on http://%s (ctrl+c to stop)", addr))
				return srv.ListenAndServe(ctx, addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: serve.addr from config)")
	return cmd
}

func mcpServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-serve",
		Short: "Run xlmatch as an MCP server",
		Long:  "Start xlmatch as a Model Context Protocol (MCP) server over stdio so MCP-compatible assistants can look terms up and build the result list.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				server := xlmcp.NewServer(s.app, xlmcp.Options{
					Version:   version,
					ExportDir: s.store.ExportsDir(),
					Logger:    ui.Logger,
				})
				return server.Run(cmd.Context())
			})
		},
	}
}

func completionCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish]",
		Short:     "Generate shell completion scripts",
		Long:      "Generate shell completion scripts for bash, zsh, or fish. Output the script to stdout for sourcing in your shell profile.",
		Example:   "  xlmatch completion bash > ~/.bashrc.d/xlmatch\n  xlmatch completion zsh > ~/.zfunc/_xlmatch\n  xlmatch completion fish > ~/.config/fish/completions/xlmatch.fish",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			default:
				return fmt.Errorf("unsupported shell: %s (use bash, zsh, or fish)", args[0])
			}
		},
	}
}
