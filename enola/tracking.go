package enola

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const trackingPath = "/v1/tracking"

// TrackingConfig holds the settings needed to construct a Tracking
// session.
type TrackingConfig struct {
	// Token is the service-account JWT issued by the Enola admin app.
	Token string

	// Name of this execution. It also names the implicit first step.
	Name string

	// MessageInput is the message received from the user, or an
	// explanation of the execution.
	MessageInput string

	// PreviousExecutionID links this execution to a prior one in an
	// agent sequence.
	PreviousExecutionID string

	// IsTest marks the execution as a test run.
	IsTest bool

	// Caller identity.
	AppID       string
	AppName     string
	UserID      string
	UserName    string
	SessionID   string
	SessionName string
	ChannelID   string
	ChannelName string
	ClientID    string
	ProductID   string
	ExternalID  string
	IP          string

	// HTTPClient is an optional custom HTTP client. If nil, a default
	// client with a 30-second timeout is used.
	HTTPClient *http.Client

	// Logger for submission progress. Defaults to slog.Default().
	Logger *slog.Logger
}

// Tracking aggregates one logical agent execution: an ordered list of
// steps plus sender identity, finalized and submitted by Execute.
//
// An implicit first step is created at construction; the top-level Add*
// convenience methods act on that first step only. Multi-step executions
// open further steps with NewStep and close them with the CloseStep*
// methods. Not safe for concurrent use.
type Tracking struct {
	Name string

	tokenInfo *TokenInfo
	conn      *connection
	sender    Sender
	isTest    bool
	prevID    string
	logger    *slog.Logger

	stepList  []*Step
	steps     int
	firstStep *Step

	executionID   string
	agentDeployID string
	evalDefURL    string
	evalPostURL   string
	status        string
}

// NewTracking decodes the token and prepares a tracking session.
// It fails when the token is empty or invalid, and with
// *UnauthorizedError when the claims are not a service account, lack the
// tracking capability, or carry no agent-deploy id.
func NewTracking(cfg TrackingConfig) (*Tracking, error) {
	info, err := DecodeToken(cfg.Token)
	if err != nil {
		return nil, err
	}
	if err := info.requireServiceAccount(); err != nil {
		return nil, err
	}
	if !info.CanTracking {
		return nil, &UnauthorizedError{Reason: "service account can't execute tracking"}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tracking{
		Name:      cfg.Name,
		tokenInfo: info,
		conn:      newConnection(info.ServiceURL, cfg.Token, info.OrgID, cfg.HTTPClient),
		isTest:    cfg.IsTest,
		prevID:    cfg.PreviousExecutionID,
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
			ClientID:    cfg.ClientID,
			ProductID:   cfg.ProductID,
			ExternalID:  cfg.ExternalID,
			IP:          cfg.IP,
		},
		agentDeployID: info.AgentDeployID,
	}
	t.firstStep = t.NewStep(cfg.Name, cfg.MessageInput)
	return t, nil
}

// NewStep opens a new step. The step is not part of the execution until
// one of the CloseStep* methods closes it.
func (t *Tracking) NewStep(name, messageInput string) *Step {
	t.steps++
	return newStep(name, messageInput)
}

// AddDataReceived records a data item received from the user on the
// first step.
func (t *Tracking) AddDataReceived(name string, value any, dataType DataType) {
	t.firstStep.DataList = append(t.firstStep.DataList, DataItem{
		Kind: DataKindReceiver, Name: name, Type: dataType, Value: value,
	})
}

// AddDataSend records a data item sent to the user on the first step.
func (t *Tracking) AddDataSend(name string, value any, dataType DataType) {
	t.firstStep.DataList = append(t.firstStep.DataList, DataItem{
		Kind: DataKindSender, Name: name, Type: dataType, Value: value,
	})
}

// AddTag adds a searchable tag to the first step.
func (t *Tracking) AddTag(key string, value any) {
	t.firstStep.AddTag(key, value)
}

// AddExtraInfo adds debug/test info to the first step.
func (t *Tracking) AddExtraInfo(key string, value any) {
	t.firstStep.AddExtraInfo(key, value)
}

// AddError registers an error on the first step.
func (t *Tracking) AddError(id, message string, kind ErrOrWarnKind) {
	t.firstStep.AddError(id, message, kind)
}

// AddWarning registers a warning on the first step.
func (t *Tracking) AddWarning(id, message string, kind ErrOrWarnKind) {
	t.firstStep.AddWarning(id, message, kind)
}

// AddFileLink adds a file reference to the first step.
func (t *Tracking) AddFileLink(file FileInfo) {
	t.firstStep.AddFileLink(file)
}

// StepClose carries the fields shared by every step-closing operation.
type StepClose struct {
	Successful    bool
	MessageOutput string

	// StepID links this step to an external call of the caller's own.
	StepID string
	// PreviousStepID links this step to the step that preceded it.
	PreviousStepID string
	// AgentDeployID links this step to an agent of another deployment.
	AgentDeployID string
}

// TokenStepClose closes a step that consumed LLM tokens.
type TokenStepClose struct {
	StepClose
	Usage      TokenUsage
	InputCost  float64
	OutputCost float64
	TotalCost  float64
}

// VideoStepClose closes a step that processed video.
type VideoStepClose struct {
	StepClose
	Metrics VideoMetrics
	Cost    float64
}

// AudioStepClose closes a step that processed audio.
type AudioStepClose struct {
	StepClose
	Metrics AudioMetrics
	Cost    float64
}

// ImageStepClose closes a step that processed images.
type ImageStepClose struct {
	StepClose
	Metrics ImageMetrics
	Cost    float64
}

// DocumentStepClose closes a step that processed documents.
type DocumentStepClose struct {
	StepClose
	Metrics DocMetrics
	Cost    float64
}

// OtherStepClose closes a step of no specific media kind.
type OtherStepClose struct {
	StepClose
	Cost float64
}

// ScoreStepClose closes a scoring step.
type ScoreStepClose struct {
	StepClose
	Cost float64
}

// CloseStepToken closes the step as kind TOKEN and appends it to the
// execution. Closing an already-closed step is a no-op.
func (t *Tracking) CloseStepToken(step *Step, req TokenStepClose) {
	if step.closed {
		return
	}
	step.Type = StepTypeToken
	step.Token = req.Usage
	step.Cost.TokenInput = req.InputCost
	step.Cost.TokenOutput = req.OutputCost
	step.Cost.TokenTotal = req.TotalCost
	t.finishStep(step, req.StepClose)
}

// CloseStepVideo closes the step as kind VIDEO.
func (t *Tracking) CloseStepVideo(step *Step, req VideoStepClose) {
	if step.closed {
		return
	}
	step.Type = StepTypeVideo
	step.Video = req.Metrics
	step.Cost.Videos = req.Cost
	t.finishStep(step, req.StepClose)
}

// CloseStepAudio closes the step as kind AUDIO.
func (t *Tracking) CloseStepAudio(step *Step, req AudioStepClose) {
	if step.closed {
		return
	}
	step.Type = StepTypeAudio
	step.Audio = req.Metrics
	step.Cost.Audio = req.Cost
	t.finishStep(step, req.StepClose)
}

// CloseStepImage closes the step as kind IMAGE.
func (t *Tracking) CloseStepImage(step *Step, req ImageStepClose) {
	if step.closed {
		return
	}
	step.Type = StepTypeImage
	step.Image = req.Metrics
	step.Cost.Images = req.Cost
	t.finishStep(step, req.StepClose)
}

// CloseStepDocument closes the step as kind DOCUMENT.
func (t *Tracking) CloseStepDocument(step *Step, req DocumentStepClose) {
	if step.closed {
		return
	}
	step.Type = StepTypeDocument
	step.Doc = req.Metrics
	step.Cost.Docs = req.Cost
	t.finishStep(step, req.StepClose)
}

// CloseStepOther closes the step as kind OTHER.
func (t *Tracking) CloseStepOther(step *Step, req OtherStepClose) {
	if step.closed {
		return
	}
	step.Type = StepTypeOther
	step.Cost.Others = req.Cost
	t.finishStep(step, req.StepClose)
}

// CloseStepScore closes the step as kind SCORE. Scoring steps keep any
// timestamps backdated via SetScore.
func (t *Tracking) CloseStepScore(step *Step, req ScoreStepClose) {
	if step.closed {
		return
	}
	step.Type = StepTypeScore
	step.Cost.Others = req.Cost
	t.finishStep(step, req.StepClose)
}

func (t *Tracking) finishStep(step *Step, req StepClose) {
	step.StepID = req.StepID
	step.PreviousID = req.PreviousStepID
	step.AgentDeployID = req.AgentDeployID
	step.close(req.Successful, req.MessageOutput)
	t.stepList = append(t.stepList, step)
}

// ExecuteOptions are the finalization parameters for Execute.
type ExecuteOptions struct {
	MessageOutput string
	NumIterations int

	// Final execution score.
	ScoreValue   float64
	ScoreGroup   string
	ScoreCluster string
	// ScoreDate backdates the first step. Zero means wall-clock time.
	ScoreDate time.Time

	// ExternalID overwrites the sender's external id when non-empty.
	ExternalID string
}

// Execute finalizes the execution and submits it. The first step is
// closed as kind OTHER with the synthetic step id "AGENT", the final
// score applied, and the whole execution serialized and sent in one
// request.
//
// A server-accepted submission captures the execution id, deploy id, and
// evaluation URLs and returns (true, nil). A server-reported failure
// records the status message and returns (false, nil). Transport and
// encoding problems return a non-nil error. There is no retry.
func (t *Tracking) Execute(ctx context.Context, successful bool, opts ExecuteOptions) (bool, error) {
	t.firstStep.NumIterations = opts.NumIterations
	if opts.ExternalID != "" {
		t.sender.ExternalID = opts.ExternalID
	}

	t.CloseStepOther(t.firstStep, OtherStepClose{
		StepClose: StepClose{
			Successful:    successful,
			MessageOutput: opts.MessageOutput,
			StepID:        "AGENT",
		},
	})
	t.firstStep.SetScore(opts.ScoreValue, opts.ScoreGroup, opts.ScoreCluster, opts.ScoreDate)

	t.logger.Info("enola: sending tracking to server", "name", t.Name)

	payload := buildTrackingPayload(t.sender, t.isTest, t.prevID, t.stepList, t.steps)
	var resp TrackingResponse
	if err := t.conn.post(ctx, trackingPath, payload, &resp); err != nil {
		t.status = err.Error()
		return false, fmt.Errorf("enola: submit tracking: %w", err)
	}

	if !resp.Successful {
		t.status = resp.Message
		t.logger.Error("enola: tracking finished with error", "name", t.Name, "message", resp.Message)
		return false, nil
	}

	t.executionID = resp.ExecutionID
	t.agentDeployID = resp.AgentDeployID
	t.evalPostURL = resp.EvalPostURL
	t.evalDefURL = resp.EvalDefURL
	t.logger.Info("enola: tracking finished", "name", t.Name, "execution_id", t.executionID)
	return true, nil
}

// ExecutionID returns the server-assigned execution id, set after a
// successful Execute.
func (t *Tracking) ExecutionID() string { return t.executionID }

// AgentDeployID returns the deploy id bound to this execution.
func (t *Tracking) AgentDeployID() string { return t.agentDeployID }

// EvaluationPostURL returns the URL to post evaluations against this
// execution, set after a successful Execute.
func (t *Tracking) EvaluationPostURL() string { return t.evalPostURL }

// EvaluationDefURL returns the URL to fetch evaluation definitions, set
// after a successful Execute.
func (t *Tracking) EvaluationDefURL() string { return t.evalDefURL }

// Status returns the last submission status message.
func (t *Tracking) Status() string { return t.status }

func (t *Tracking) String() string {
	return fmt.Sprintf("Agent/Model: %s, Steps: %d", t.Name, t.steps)
}

// trackingPayload is the wire format for POST /v1/tracking.
type trackingPayload struct {
	AppID       string        `json:"app_id"`
	AppName     string        `json:"app_name"`
	UserID      string        `json:"user_id"`
	UserName    string        `json:"user_name"`
	SessionID   string        `json:"session_id"`
	ChannelID   string        `json:"channel_id"`
	SessionName string        `json:"session_name"`
	ClientID    string        `json:"client_id"`
	ProductID   string        `json:"product_id"`
	BatchID     string        `json:"agentExecBatchId"`
	IP          string        `json:"ip"`
	ExternalID  string        `json:"code_api"`
	IsTest      bool          `json:"isTest"`
	StepList    []stepPayload `json:"step_list"`
	Steps       int           `json:"steps"`
	PreviousID  string        `json:"enola_id_prev"`
}

func buildTrackingPayload(sender Sender, isTest bool, prevID string, steps []*Step, count int) trackingPayload {
	stepPayloads := make([]stepPayload, 0, len(steps))
	for _, step := range steps {
		stepPayloads = append(stepPayloads, step.payload())
	}
	return trackingPayload{
		AppID:       sender.AppID,
		AppName:     sender.AppName,
		UserID:      sender.UserID,
		UserName:    sender.UserName,
		SessionID:   sender.SessionID,
		ChannelID:   sender.ChannelID,
		SessionName: sender.SessionName,
		ClientID:    sender.ClientID,
		ProductID:   sender.ProductID,
		BatchID:     sender.BatchID,
		IP:          sender.IP,
		ExternalID:  sender.ExternalID,
		IsTest:      isTest,
		StepList:    stepPayloads,
		Steps:       count,
		PreviousID:  prevID,
	}
}
