package enola

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

const evaluationPath = "/v1/evaluation"

// EvaluationConfig holds the settings for an evaluation session.
type EvaluationConfig struct {
	// Token is the service-account JWT issued by the Enola admin app.
	Token string

	// EvalType categorizes every evaluation in this session. Empty
	// defaults to EvalTypeAuto.
	EvalType EvalType

	// ResultScore carries actual-versus-predicted score context.
	// Mutually exclusive with ResultLLM; when both are set, ResultScore
	// wins.
	ResultScore *ResultScore

	// ResultLLM carries the best-output context for LLM evaluations.
	ResultLLM *ResultLLM

	// Caller identity.
	AppID       string
	AppName     string
	UserID      string
	UserName    string
	SessionID   string
	SessionName string
	ChannelID   string
	ChannelName string
	IP          string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Evaluation collects evaluation entries for past executions and submits
// them grouped per execution. Not safe for concurrent use.
type Evaluation struct {
	tokenInfo *TokenInfo
	conn      *connection
	evalType  EvalType
	score     *ResultScore
	llm       *ResultLLM
	sender    Sender
	logger    *slog.Logger

	// groups keeps one entry per execution id, in first-seen order.
	groups []*evalGroup
}

type evalGroup struct {
	executionID string
	evals       map[string]evalDetail
	order       []string
}

type evalDetail struct {
	Value   *float64 `json:"value"`
	Level   *int     `json:"level"`
	Comment string   `json:"comment"`
}

// NewEvaluation decodes the token and prepares an evaluation session.
// It fails with *UnauthorizedError when the claims are not a service
// account or lack the evaluation capability.
func NewEvaluation(cfg EvaluationConfig) (*Evaluation, error) {
	info, err := DecodeToken(cfg.Token)
	if err != nil {
		return nil, err
	}
	if !info.IsServiceAccount {
		return nil, &UnauthorizedError{Reason: "token is not a service account"}
	}
	if !info.CanEvaluate {
		return nil, &UnauthorizedError{Reason: "service account can't evaluate"}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	evalType := cfg.EvalType
	if evalType == "" {
		evalType = EvalTypeAuto
	}

	return &Evaluation{
		tokenInfo: info,
		conn:      newConnection(info.ServiceURL, cfg.Token, info.OrgID, cfg.HTTPClient),
		evalType:  evalType,
		score:     cfg.ResultScore,
		llm:       cfg.ResultLLM,
		logger:    logger,
		sender: Sender{
			AppID:       cfg.AppID,
			AppName:     cfg.AppName,
			UserID:      cfg.UserID,
			UserName:    cfg.UserName,
			SessionID:   cfg.SessionID,
			SessionName: cfg.SessionName,
			ChannelID:   cfg.ChannelID,
			ChannelName: cfg.ChannelName,
			IP:          cfg.IP,
		},
	}, nil
}

// AddEvaluation records a value-based evaluation of one execution.
// Entries for the same execution id are grouped into a single
// submission; a repeated eval id within a group keeps the first entry.
func (e *Evaluation) AddEvaluation(executionID, evalID string, value float64, comment string) {
	e.group(executionID).add(evalID, evalDetail{Value: &value, Comment: comment})
}

// AddEvaluationByLevel records a level-based evaluation (1 to 5) of one
// execution, grouped the same way as AddEvaluation.
func (e *Evaluation) AddEvaluationByLevel(executionID, evalID string, level int, comment string) {
	e.group(executionID).add(evalID, evalDetail{Level: &level, Comment: comment})
}

func (e *Evaluation) group(executionID string) *evalGroup {
	for _, g := range e.groups {
		if g.executionID == executionID {
			return g
		}
	}
	g := &evalGroup{executionID: executionID, evals: map[string]evalDetail{}}
	e.groups = append(e.groups, g)
	return g
}

func (g *evalGroup) add(evalID string, detail evalDetail) {
	if _, exists := g.evals[evalID]; exists {
		return
	}
	g.evals[evalID] = detail
	g.order = append(g.order, evalID)
}

// EvaluationResult summarizes one Execute run.
type EvaluationResult struct {
	TotalGroups  int
	TotalSuccess int
	TotalErrors  int
	// Errors holds the server messages of the failed groups.
	Errors []string
}

// Execute submits every collected group, one request per execution id,
// continuing past failures. The returned result counts accepted and
// rejected groups; transport errors of individual groups are counted and
// collected, not returned.
func (e *Evaluation) Execute(ctx context.Context) EvaluationResult {
	result := EvaluationResult{TotalGroups: len(e.groups)}

	for _, g := range e.groups {
		payload := e.buildPayload(g)
		var resp EvaluationResponse
		err := e.conn.post(ctx, evaluationPath, payload, &resp)
		switch {
		case err != nil:
			result.TotalErrors++
			result.Errors = append(result.Errors, err.Error())
			e.logger.Error("enola: evaluation failed", "execution_id", g.executionID, "error", err)
		case !resp.Successful:
			result.TotalErrors++
			result.Errors = append(result.Errors, resp.Message)
			e.logger.Error("enola: evaluation rejected", "execution_id", g.executionID, "message", resp.Message)
		default:
			result.TotalSuccess++
			e.logger.Info("enola: evaluation accepted", "execution_id", g.executionID, "eval_id", resp.EvalID)
		}
	}
	return result
}

// evaluationPayload is the wire format for POST /v1/evaluation: one
// execution's evaluations keyed by eval id.
type evaluationPayload struct {
	ExecutionID string                `json:"enolaId"`
	EvalType    EvalType              `json:"evalType"`
	Sender      evalSenderPayload     `json:"sender"`
	Results     *resultPayload        `json:"results"`
	Evals       map[string]evalDetail `json:"evals"`
}

type evalSenderPayload struct {
	AppID       string `json:"app_id"`
	AppName     string `json:"app_name"`
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	SessionID   string `json:"session_id"`
	SessionName string `json:"session_name"`
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	IP          string `json:"ip"`
}

func (e *Evaluation) buildPayload(g *evalGroup) evaluationPayload {
	var results *resultPayload
	if e.score != nil {
		results = e.score.payload()
	} else if e.llm != nil {
		results = e.llm.payload()
	}
	return evaluationPayload{
		ExecutionID: g.executionID,
		EvalType:    e.evalType,
		Sender: evalSenderPayload{
			AppID:       e.sender.AppID,
			AppName:     e.sender.AppName,
			UserID:      e.sender.UserID,
			UserName:    e.sender.UserName,
			SessionID:   e.sender.SessionID,
			SessionName: e.sender.SessionName,
			ChannelID:   e.sender.ChannelID,
			ChannelName: e.sender.ChannelName,
			IP:          e.sender.IP,
		},
		Results: results,
		Evals:   g.evals,
	}
}

func (e *Evaluation) String() string {
	return fmt.Sprintf("Evaluation: %d executions", len(e.groups))
}
