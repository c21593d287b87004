package enola

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const executionsPath = "/v1/executions/query"

// ExecutionDataFilter filters executions on one data item.
type ExecutionDataFilter struct {
	Name    string      `json:"name"`
	Value   any         `json:"value"`
	Type    DataType    `json:"type"`
	Compare CompareType `json:"compare"`
}

// ExecutionEvalFilter filters executions on evaluation ids. Include
// selects executions carrying the ids; false excludes them.
type ExecutionEvalFilter struct {
	EvalIDs []string `json:"evalId"`
	Include bool     `json:"include"`
}

// ExecutionQuery describes one paginated execution search. DateFrom and
// DateTo are required, as is at least one of ChamberIDs, AgentIDs, or
// AgentDeployIDs (service-account tokens bound to a deploy get their
// deploy id injected automatically).
type ExecutionQuery struct {
	DateFrom time.Time
	DateTo   time.Time

	ChamberIDs     []string
	AgentIDs       []string
	AgentDeployIDs []string
	UserIDs        []string
	SessionIDs     []string
	ChannelIDs     []string

	DataFilters  []ExecutionDataFilter
	EvalUser     *ExecutionEvalFilter
	EvalInternal *ExecutionEvalFilter
	EvalAuto     *ExecutionEvalFilter

	Environment *Environment
	IsTestPlan  *bool
	Finished    *bool

	// Limit is the page size. Zero means 100.
	Limit int

	IncludeTags   bool
	IncludeData   bool
	IncludeErrors bool
	IncludeEvals  bool
}

// GetExecutionsConfig holds the settings for an execution-query session.
type GetExecutionsConfig struct {
	// Token is the JWT issued by the Enola admin app.
	Token string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// GetExecutions pages through past executions matching a query. Start
// with Query, then call NextPage until it reports no more data. Not safe
// for concurrent use.
type GetExecutions struct {
	tokenInfo *TokenInfo
	conn      *connection
	logger    *slog.Logger

	query      *executionQueryPayload
	pageNumber int
	hasMore    bool
	rowsTotal  int
}

// NewGetExecutions decodes the token and prepares a query session.
// Service-account tokens without the get-executions capability fail with
// *UnauthorizedError.
func NewGetExecutions(cfg GetExecutionsConfig) (*GetExecutions, error) {
	info, err := DecodeToken(cfg.Token)
	if err != nil {
		return nil, err
	}
	if info.IsServiceAccount && !info.CanGetExecutions {
		return nil, &UnauthorizedError{Reason: "service account token is not allowed to get executions"}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GetExecutions{
		tokenInfo: info,
		conn:      newConnection(info.BackendURL, cfg.Token, info.OrgID, cfg.HTTPClient),
		logger:    logger,
	}, nil
}

// Query validates and runs the first page of a search. A token scoped to
// one agent deploy may only query that deploy: requesting another deploy
// id fails with *UnauthorizedError, and an empty AgentDeployIDs gets the
// token's deploy id injected.
func (g *GetExecutions) Query(ctx context.Context, q ExecutionQuery) (*ExecutionPage, error) {
	if q.DateFrom.IsZero() {
		return nil, &ConfigurationError{Message: "date_from is empty"}
	}
	if q.DateTo.IsZero() {
		return nil, &ConfigurationError{Message: "date_to is empty"}
	}
	if q.Limit < 0 {
		return nil, &ConfigurationError{Message: "limit must be greater than 0"}
	}
	limit := q.Limit
	if limit == 0 {
		limit = 100
	}

	deployIDs := q.AgentDeployIDs
	if scoped := g.tokenInfo.AgentDeployID; scoped != "" && scoped != "0" {
		switch {
		case len(deployIDs) > 1:
			return nil, &UnauthorizedError{Reason: "token is not allowed to access more than one agent deploy"}
		case len(deployIDs) == 1 && deployIDs[0] != scoped:
			return nil, &UnauthorizedError{Reason: "token is not allowed to access this agent deploy"}
		case len(deployIDs) == 0:
			deployIDs = []string{scoped}
		}
	}
	if len(q.ChamberIDs) == 0 && len(q.AgentIDs) == 0 && len(deployIDs) == 0 {
		return nil, &ConfigurationError{Message: "chamber_id, agent_id, or agent_deploy_id must be filled"}
	}

	g.query = &executionQueryPayload{
		DateFrom:       q.DateFrom.UTC().Format(apiTimeLayout),
		DateTo:         q.DateTo.UTC().Format(apiTimeLayout),
		ChamberIDs:     emptyIfNil(q.ChamberIDs),
		AgentIDs:       emptyIfNil(q.AgentIDs),
		AgentDeployIDs: emptyIfNil(deployIDs),
		UserIDs:        emptyIfNil(q.UserIDs),
		SessionIDs:     emptyIfNil(q.SessionIDs),
		ChannelIDs:     emptyIfNil(q.ChannelIDs),
		DataFilters:    emptyIfNil(q.DataFilters),
		EvalUser:       q.EvalUser,
		EvalInternal:   q.EvalInternal,
		EvalAuto:       q.EvalAuto,
		Environment:    q.Environment,
		IsTestPlan:     q.IsTestPlan,
		Finished:       q.Finished,
		Limit:          limit,
		PageNumber:     0,
		IncludeTags:    q.IncludeTags,
		IncludeData:    q.IncludeData,
		IncludeErrors:  q.IncludeErrors,
		IncludeEvals:   q.IncludeEvals,
	}
	g.pageNumber = 0
	g.rowsTotal = 0
	g.hasMore = true
	return g.NextPage(ctx)
}

// NextPage fetches the following page of the current query. It fails
// when no query is active or the previous page was the last one.
//
// The server does not report a total: a page is assumed to be the last
// when it comes back with fewer rows than the limit. A result set whose
// size is an exact multiple of the limit therefore costs one extra
// (empty) page fetch.
func (g *GetExecutions) NextPage(ctx context.Context) (*ExecutionPage, error) {
	if g.query == nil {
		return nil, &ConfigurationError{Message: "no active query, call Query first"}
	}
	if !g.hasMore {
		return nil, fmt.Errorf("enola: no more data to show")
	}

	g.pageNumber++
	g.query.PageNumber = g.pageNumber

	var page ExecutionPage
	if err := g.conn.post(ctx, executionsPath, g.query, &page); err != nil {
		return nil, fmt.Errorf("enola: query executions: %w", err)
	}

	rows := len(page.Data)
	g.hasMore = rows == g.query.Limit && rows != 0
	g.rowsTotal += rows
	g.logger.Info("enola: executions page fetched", "page", g.pageNumber, "rows", rows, "total", g.rowsTotal)
	return &page, nil
}

// HasMore reports whether another NextPage call may return data.
func (g *GetExecutions) HasMore() bool { return g.hasMore }

// PageNumber returns the number of the last fetched page, starting at 1.
func (g *GetExecutions) PageNumber() int { return g.pageNumber }

// RowsFetched returns the accumulated row count across fetched pages.
func (g *GetExecutions) RowsFetched() int { return g.rowsTotal }

// executionQueryPayload is the wire format for POST /v1/executions/query.
type executionQueryPayload struct {
	DateFrom       string                `json:"dateFrom"`
	DateTo         string                `json:"dateTo"`
	ChamberIDs     []string              `json:"chamberIdList"`
	AgentIDs       []string              `json:"agentIdList"`
	AgentDeployIDs []string              `json:"agentDeployIdList"`
	UserIDs        []string              `json:"userIdList"`
	SessionIDs     []string              `json:"sessionIdList"`
	ChannelIDs     []string              `json:"channelIdList"`
	DataFilters    []ExecutionDataFilter `json:"dataFilterList"`
	EvalUser       *ExecutionEvalFilter  `json:"evalIdUser"`
	EvalInternal   *ExecutionEvalFilter  `json:"evalIdInternal"`
	EvalAuto       *ExecutionEvalFilter  `json:"evalIdAuto"`
	Environment    *Environment          `json:"environmentId"`
	IsTestPlan     *bool                 `json:"isTestPlan"`
	Finished       *bool                 `json:"finished"`
	Limit          int                   `json:"limit"`
	PageNumber     int                   `json:"pageNumber"`
	IncludeTags    bool                  `json:"includeTags"`
	IncludeData    bool                  `json:"includeData"`
	IncludeErrors  bool                  `json:"includeErrors"`
	IncludeEvals   bool                  `json:"includeEvals"`
}
