package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/guillermoBallester/tally/internal/core/domain"
	"github.com/guillermoBallester/tally/internal/core/service"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server metadata
const serverName = "tally"

// Tool descriptions
const (
	descRegisterDataset = "Register an uploaded dataset table for profiling. " +
		"Profiling runs in the background: poll dataset_status until the status is ready or error. " +
		"Queries against a dataset that is still processing are refused."

	descDatasetStatus = "Return the schema profile of a dataset: status, inferred column types, " +
		"per-column statistics (distinct counts, min/max, top values, cardinality), the role mapping " +
		"(region, item_type, channel, date, units_sold, revenue, avg_selling_price), " +
		"roles left unmapped because several columns tied, observed values per categorical role, " +
		"and the row count and date span. Read this before building a query intent."

	descListDatasets = "List every registered dataset with its profiling status."

	descIntent = "Query intent object: {filters:{region?,item_type?,channel?,date?:[start,end]}, " +
		"extraFilter?:[{column,op,value}], metrics?:[{function,column}], group_by?:[...], " +
		"order_by?:[{function?,column,direction}], limit?, notes?:[...]}. " +
		"Columns may name a role or a raw column; group_by also accepts year, quarter, month."

	descCompileQuery = "Compile a query intent into a parameterized SQL statement without running it. " +
		"Returns the SQL template with named placeholders and the bound parameter values. " +
		"Use this to check how an intent resolves against the dataset's roles and columns."

	descRunQuery = "Compile a query intent, validate it against the dataset's column allow-list, " +
		"and execute it read-only. A server-side row limit and query timeout are enforced. " +
		"Returns the compiled statement and the result rows."

	descAsk = "Answer a natural-language question about a dataset. The question is planned into a " +
		"query intent, compiled, validated and executed. Returns the intent, the statement and the rows."

	descTableParam = "Name of the dataset table"
)

func RegisterTools(s *server.MCPServer, profiler *service.ProfilerService, query *service.QueryService, logger *slog.Logger) {
	s.AddTool(
		mcp.NewTool("register_dataset",
			mcp.WithDescription(descRegisterDataset),
			mcp.WithString("table_name", mcp.Required(), mcp.Description(descTableParam)),
			mcp.WithString("file_name", mcp.Description("Original upload file name (optional)")),
		),
		registerDatasetHandler(profiler, logger),
	)

	s.AddTool(
		mcp.NewTool("dataset_status",
			mcp.WithDescription(descDatasetStatus),
			mcp.WithString("table_name", mcp.Required(), mcp.Description(descTableParam)),
		),
		datasetStatusHandler(profiler, logger),
	)

	s.AddTool(
		mcp.NewTool("list_datasets",
			mcp.WithDescription(descListDatasets),
		),
		listDatasetsHandler(profiler, logger),
	)

	s.AddTool(
		mcp.NewTool("compile_query",
			mcp.WithDescription(descCompileQuery),
			mcp.WithString("table_name", mcp.Required(), mcp.Description(descTableParam)),
			mcp.WithObject("intent", mcp.Required(), mcp.Description(descIntent)),
		),
		compileQueryHandler(query, logger),
	)

	s.AddTool(
		mcp.NewTool("run_query",
			mcp.WithDescription(descRunQuery),
			mcp.WithString("table_name", mcp.Required(), mcp.Description(descTableParam)),
			mcp.WithObject("intent", mcp.Required(), mcp.Description(descIntent)),
		),
		runQueryHandler(query, logger),
	)

	if query.CanAsk() {
		s.AddTool(
			mcp.NewTool("ask",
				mcp.WithDescription(descAsk),
				mcp.WithString("table_name", mcp.Required(), mcp.Description(descTableParam)),
				mcp.WithString("question", mcp.Required(), mcp.Description("The question to answer")),
			),
			askHandler(query, logger),
		)
	}
}

func registerDatasetHandler(profiler *service.ProfilerService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, ok := request.GetArguments()["table_name"].(string)
		if !ok || table == "" {
			return mcp.NewToolResultError("table_name is required"), nil
		}
		fileName, _ := request.GetArguments()["file_name"].(string)

		if err := profiler.Register(ctx, table, fileName); err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "register dataset")), nil
		}
		return jsonResult(map[string]any{
			"tableName": table,
			"status":    domain.StatusProcessing,
		})
	}
}

func datasetStatusHandler(profiler *service.ProfilerService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, ok := request.GetArguments()["table_name"].(string)
		if !ok || table == "" {
			return mcp.NewToolResultError("table_name is required"), nil
		}

		profile, err := profiler.Status(ctx, table)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "dataset status")), nil
		}
		return jsonResult(profile)
	}
}

func listDatasetsHandler(profiler *service.ProfilerService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list, err := profiler.List(ctx)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "list datasets")), nil
		}
		return jsonResult(list)
	}
}

// compiledView adds the rendered template to the compiled query document.
type compiledView struct {
	SQL string `json:"sql"`
	*domain.CompiledQuery
}

func compileQueryHandler(query *service.QueryService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, intent, errResult := tableAndIntent(request)
		if errResult != nil {
			return errResult, nil
		}

		ctx = service.WithToolName(ctx, "compile_query")
		q, err := query.Compile(ctx, table, intent)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "compile")), nil
		}
		return jsonResult(compiledView{SQL: q.SQL(), CompiledQuery: q})
	}
}

type resultView struct {
	RequestID string              `json:"requestId"`
	Intent    *domain.QueryIntent `json:"intent,omitempty"`
	Query     compiledView        `json:"query"`
	Executed  bool                `json:"executed"`
	Rows      []map[string]any    `json:"rows"`
}

func newResultView(res *service.Result, intent *domain.QueryIntent) resultView {
	rows := res.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	return resultView{
		RequestID: res.RequestID,
		Intent:    intent,
		Query:     compiledView{SQL: res.Query.SQL(), CompiledQuery: res.Query},
		Executed:  res.Executed,
		Rows:      rows,
	}
}

func runQueryHandler(query *service.QueryService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, intent, errResult := tableAndIntent(request)
		if errResult != nil {
			return errResult, nil
		}

		ctx = service.WithToolName(ctx, "run_query")
		res, err := query.Execute(ctx, table, intent)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "query")), nil
		}
		return jsonResult(newResultView(res, nil))
	}
}

func askHandler(query *service.QueryService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, ok := request.GetArguments()["table_name"].(string)
		if !ok || table == "" {
			return mcp.NewToolResultError("table_name is required"), nil
		}
		question, ok := request.GetArguments()["question"].(string)
		if !ok || question == "" {
			return mcp.NewToolResultError("question is required"), nil
		}

		ctx = service.WithToolName(ctx, "ask")
		ans, err := query.Ask(ctx, table, question)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "ask")), nil
		}
		return jsonResult(newResultView(ans.Result, ans.Intent))
	}
}

// tableAndIntent reads the table_name and intent arguments. The intent may
// arrive as an object or as a JSON string.
func tableAndIntent(request mcp.CallToolRequest) (string, *domain.QueryIntent, *mcp.CallToolResult) {
	args := request.GetArguments()
	table, ok := args["table_name"].(string)
	if !ok || table == "" {
		return "", nil, mcp.NewToolResultError("table_name is required")
	}

	var raw []byte
	switch v := args["intent"].(type) {
	case nil:
		return "", nil, mcp.NewToolResultError("intent is required")
	case string:
		raw = []byte(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", nil, mcp.NewToolResultError("intent must be a JSON object")
		}
		raw = data
	}

	intent, err := domain.ParseQueryIntent(raw)
	if err != nil {
		return "", nil, mcp.NewToolResultError(fmt.Sprintf("%s: %v", domain.ErrorKind(err), err))
	}
	return table, intent, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// sanitizeError maps err to a message safe to return to the client. Domain
// errors carry only caller-supplied names and pass through with their kind.
// Everything else is logged and replaced.
func sanitizeError(logger *slog.Logger, err error, operation string) string {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &pgErr) && pgErr.Code == "57014":
		return fmt.Sprintf("%s: query timed out", operation)
	case errors.Is(err, service.ErrPlannerUnavailable):
		return fmt.Sprintf("%s: %v", operation, err)
	}

	if kind := domain.ErrorKind(err); kind != "internal" {
		return fmt.Sprintf("%s failed (%s): %v", operation, kind, err)
	}

	logger.Error("tool error",
		slog.String("operation", operation),
		slog.String("error.type", "internal"),
		slog.String("error", err.Error()),
	)
	return fmt.Sprintf("%s failed: internal error, check server logs", operation)
}
