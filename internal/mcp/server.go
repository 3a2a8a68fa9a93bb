package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kokistudios/xlmatch/internal/app"
	"github.com/kokistudios/xlmatch/internal/record"
)

// Server exposes an xlmatch App as MCP tools.
type Server struct {
	app       *app.App
	exportDir string
	logger    *log.Logger
	server    *mcp.Server
}

// Options configures NewServer.
type Options struct {
	Version   string
	ExportDir string
	Logger    *log.Logger
}

// NewServer creates a new xlmatch MCP server.
func NewServer(a *app.App, opts Options) *Server {
	s := &Server{app: a, exportDir: opts.ExportDir, logger: opts.Logger}
	if s.logger == nil {
		s.logger = log.Default()
	}

	impl := &mcp.Implementation{
		Name:    "xlmatch",
		Version: opts.Version,
	}

	s.server = mcp.NewServer(impl, nil)
	s.registerTools()

	return s
}

// Run starts the MCP server on stdio.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunTransport serves on an arbitrary transport.
func (s *Server) RunTransport(ctx context.Context, t mcp.Transport) error {
	return s.server.Run(ctx, t)
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "xlmatch_find",
		Description: "Look up a term in the loaded reference data without changing anything. " +
			"Matching is a case-insensitive substring test against both the key and the value of each row; " +
			"the first row in file order wins. Use this to preview before calling xlmatch_add.",
	}, s.handleFind)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "xlmatch_add",
		Description: "Find a term in the reference data and add the match to the result list. " +
			"A match already in the list (same key and value) is not added twice; inserted=false tells you so.",
	}, s.handleAdd)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "xlmatch_results",
		Description: "List the result list, newest first, with the id needed by xlmatch_remove. Also reports status and reference row count.",
	}, s.handleResults)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "xlmatch_remove",
		Description: "Remove one entry from the result list by id. Unknown ids are ignored (removed=false).",
	}, s.handleRemove)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "xlmatch_batch",
		Description: "Match many rows at once. Provide either a spreadsheet path (.xlsx or .csv) or rows as JSON arrays of cells. " +
			"Each row is matched by its first cells in order (up to the configured limit); the first cell with a match decides the row. " +
			"New distinct matches are prepended to the result list as one block, in row order.",
	}, s.handleBatch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "xlmatch_load",
		Description: "Load the rows of a spreadsheet on disk (.xlsx, .xls or .csv) as the reference data. Column A is the key, column B the value. The result list is kept. " +
			"If reference data is already loaded it is replaced, so BEFORE CALLING: tell the user how many reference rows will be replaced, " +
			"ask for explicit permission, and only then call with user_confirmed=true.",
	}, s.handleLoad)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "xlmatch_clear",
		Description: "Empty the result list. " +
			"BEFORE CALLING: You MUST (1) tell the user how many results will be discarded, " +
			"(2) ask for explicit permission, (3) only then call with user_confirmed=true.",
	}, s.handleClear)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "xlmatch_export",
		Description: "Write the result list to a timestamped .xlsx workbook and return its path.",
	}, s.handleExport)
}

// FindArgs defines the input for xlmatch_find.
type FindArgs struct {
	Term string `json:"term" jsonschema:"Search term, e.g. a name or an id. Leading and trailing spaces are ignored."`
}

// FindResult is the output of xlmatch_find.
type FindResult struct {
	Found bool           `json:"found"`
	Match *record.Record `json:"match,omitempty"`
}

func (s *Server) handleFind(ctx context.Context, req *mcp.CallToolRequest, args FindArgs) (*mcp.CallToolResult, any, error) {
	s.logger.Debug("mcp tool", "tool", "xlmatch_find", "term", args.Term)
	if s.app.Status() == app.StatusEmpty {
		return nil, nil, fmt.Errorf("%w: load a spreadsheet with xlmatch_load first", app.ErrNoReferenceData)
	}
	m, ok := s.app.Preview(args.Term)
	out := FindResult{Found: ok}
	if ok {
		out.Match = &m
	}
	return nil, out, nil
}

// AddArgs defines the input for xlmatch_add.
type AddArgs struct {
	Term string `json:"term" jsonschema:"Search term whose first match is added to the result list"`
}

func (s *Server) handleAdd(ctx context.Context, req *mcp.CallToolRequest, args AddArgs) (*mcp.CallToolResult, any, error) {
	s.logger.Debug("mcp tool", "tool", "xlmatch_add", "term", args.Term)
	if strings.TrimSpace(args.Term) == "" {
		return nil, nil, fmt.Errorf("term is required")
	}
	if s.app.Status() == app.StatusEmpty {
		return nil, nil, fmt.Errorf("%w: load a spreadsheet with xlmatch_load first", app.ErrNoReferenceData)
	}
	return nil, s.app.AddTerm(args.Term), nil
}

// ResultsArgs defines the input for xlmatch_results.
type ResultsArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of entries to return (default: all)"`
}

// ResultsResult is the output of xlmatch_results.
type ResultsResult struct {
	Status         app.Status             `json:"status"`
	ReferenceCount int                    `json:"reference_count"`
	Total          int                    `json:"total"`
	Results        []record.MatchedResult `json:"results"`
}

func (s *Server) handleResults(ctx context.Context, req *mcp.CallToolRequest, args ResultsArgs) (*mcp.CallToolResult, any, error) {
	snap := s.app.Snapshot()
	out := ResultsResult{
		Status:         snap.Status,
		ReferenceCount: snap.ReferenceCount,
		Total:          len(snap.Results),
		Results:        snap.Results,
	}
	if args.Limit > 0 && args.Limit < len(out.Results) {
		out.Results = out.Results[:args.Limit]
	}
	return nil, out, nil
}

// RemoveArgs defines the input for xlmatch_remove.
type RemoveArgs struct {
	ID string `json:"id" jsonschema:"Entry id as returned by xlmatch_results"`
}

// RemoveResult is the output of xlmatch_remove.
type RemoveResult struct {
	Removed bool `json:"removed"`
	Total   int  `json:"total"`
}

func (s *Server) handleRemove(ctx context.Context, req *mcp.CallToolRequest, args RemoveArgs) (*mcp.CallToolResult, any, error) {
	if args.ID == "" {
		return nil, nil, fmt.Errorf("id is required")
	}
	removed := s.app.Remove(args.ID)
	return nil, RemoveResult{Removed: removed, Total: len(s.app.Results())}, nil
}

// BatchArgs defines the input for xlmatch_batch.
type BatchArgs struct {
	Path string  `json:"path,omitempty" jsonschema:"Spreadsheet to import (.xlsx or .csv). Either path or rows is required."`
	Rows [][]any `json:"rows,omitempty" jsonschema:"Rows of cells (strings, numbers or null), used when no path is given"`
}

// BatchResult is the output of xlmatch_batch.
type BatchResult struct {
	Added   int                    `json:"added"`
	Total   int                    `json:"total"`
	Results []record.MatchedResult `json:"results"`
	Message string                 `json:"message,omitempty"`
}

func (s *Server) handleBatch(ctx context.Context, req *mcp.CallToolRequest, args BatchArgs) (*mcp.CallToolResult, any, error) {
	s.logger.Debug("mcp tool", "tool", "xlmatch_batch", "path", args.Path, "rows", len(args.Rows))

	var (
		added []record.MatchedResult
		err   error
	)
	switch {
	case args.Path != "":
		added, err = s.app.ImportBatch(args.Path)
	case len(args.Rows) > 0:
		rows := make([]record.Row, len(args.Rows))
		for i, r := range args.Rows {
			rows[i] = record.RowFrom(r)
		}
		added, err = s.app.ImportBatchRows(rows)
	default:
		return nil, nil, fmt.Errorf("either path or rows is required")
	}

	out := BatchResult{Added: len(added), Results: added}
	switch {
	case errors.Is(err, app.ErrNoNewMatches):
		out.Message = "No new matches: every matched row is already in the result list."
	case err != nil:
		return nil, nil, fmt.Errorf("batch import failed: %w", err)
	}
	out.Total = len(s.app.Results())
	return nil, out, nil
}

// LoadArgs defines the input for xlmatch_load.
type LoadArgs struct {
	Path          string `json:"path" jsonschema:"Spreadsheet with the reference data (.xlsx, .xls or .csv)"`
	UserConfirmed bool   `json:"user_confirmed,omitempty" jsonschema:"Required when reference data is already loaded. Set true ONLY after the user approved replacing it."`
}

// LoadResult is the output of xlmatch_load.
type LoadResult struct {
	Records int    `json:"records"`
	Status  string `json:"status"`
}

func (s *Server) handleLoad(ctx context.Context, req *mcp.CallToolRequest, args LoadArgs) (*mcp.CallToolResult, any, error) {
	if args.Path == "" {
		return nil, nil, fmt.Errorf("path is required")
	}
	if loaded := s.app.ReferenceCount(); loaded > 0 && !args.UserConfirmed {
		return nil, nil, fmt.Errorf("%d reference rows are already loaded and would be replaced. Tell the user, get explicit permission, then call again with user_confirmed=true", loaded)
	}
	n, err := s.app.LoadReference(args.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load reference data: %w", err)
	}
	return nil, LoadResult{Records: n, Status: string(s.app.Status())}, nil
}

// ClearArgs defines the input for xlmatch_clear.
type ClearArgs struct {
	UserConfirmed bool `json:"user_confirmed" jsonschema:"REQUIRED. Set true ONLY after explicitly asking the user and receiving approval."`
}

// ClearResult is the output of xlmatch_clear.
type ClearResult struct {
	Discarded int `json:"discarded"`
}

func (s *Server) handleClear(ctx context.Context, req *mcp.CallToolRequest, args ClearArgs) (*mcp.CallToolResult, any, error) {
	if !args.UserConfirmed {
		return nil, nil, fmt.Errorf("user_confirmed must be true. Before calling this tool, tell the user how many results will be discarded and get explicit permission")
	}
	n := len(s.app.Results())
	if n > 0 {
		s.app.Clear()
	}
	return nil, ClearResult{Discarded: n}, nil
}

// ExportArgs defines the input for xlmatch_export.
type ExportArgs struct {
	Dir string `json:"dir,omitempty" jsonschema:"Destination directory (default: the exports directory in XLMATCH_HOME)"`
}

// ExportResult is the output of xlmatch_export.
type ExportResult struct {
	Path    string `json:"path"`
	Entries int    `json:"entries"`
}

func (s *Server) handleExport(ctx context.Context, req *mcp.CallToolRequest, args ExportArgs) (*mcp.CallToolResult, any, error) {
	dir := args.Dir
	if dir == "" {
		dir = s.exportDir
	}
	path, err := s.app.ExportFile(dir)
	if err != nil {
		return nil, nil, err
	}
	return nil, ExportResult{Path: path, Entries: len(s.app.Results())}, nil
}
