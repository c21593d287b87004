package enola

import (
	"fmt"
	"time"
)

// apiTimeLayout is the timestamp format the Enola API expects: ISO-8601
// in UTC with millisecond precision.
const apiTimeLayout = "2006-01-02T15:04:05.000Z"

// Step accumulates everything produced during one unit of work within an
// execution: tags, extra info, errors and warnings, data items, file
// references, outbound API calls, and one kind-specific metric group.
//
// A step is created open (start timestamp set) via Tracking.NewStep,
// mutated by Add* calls, and closed exactly once by one of the
// Tracking.CloseStep* methods, which stamps its type, end time, duration,
// and success flag and appends it to the execution's step list.
type Step struct {
	Name          string
	ExecutionID   string // linked execution, when this step called another agent
	PreviousID    string
	AgentDeployID string
	StepID        string
	MessageInput  string
	MessageOutput string
	NumIterations int

	DateStart time.Time
	DateEnd   time.Time
	// DurationMs is end minus start in whole milliseconds, stamped at
	// close.
	DurationMs int64

	Type       StepType
	Successful bool

	NumErrors   int
	NumWarnings int

	ScoreValue   float64
	ScoreGroup   string
	ScoreCluster string

	Token TokenUsage
	Video VideoMetrics
	Audio AudioMetrics
	Image ImageMetrics
	Doc   DocMetrics
	Cost  StepCost

	IncomeTotal float64

	DataList      []DataItem
	ErrOrWarnList []ErrorOrWarning
	ExtraInfoList []Info
	FileInfoList  []FileInfo
	APICallList   []APICall

	closed    bool
	backdated bool
}

func newStep(name, messageInput string) *Step {
	now := time.Now().UTC()
	return &Step{
		Name:         name,
		MessageInput: messageInput,
		DateStart:    now,
		DateEnd:      now,
		Type:         StepTypeOther,
	}
}

// AddTag appends a searchable tag entry.
func (s *Step) AddTag(key string, value any) {
	s.ExtraInfoList = append(s.ExtraInfoList, newInfo("tag", key, value))
}

// AddExtraInfo appends a free-form info entry, useful for testing or
// debugging.
func (s *Step) AddExtraInfo(key string, value any) {
	s.ExtraInfoList = append(s.ExtraInfoList, newInfo("info", key, value))
}

// AddError appends an error entry and increments the error counter.
func (s *Step) AddError(id, message string, kind ErrOrWarnKind) {
	s.NumErrors++
	s.ErrOrWarnList = append(s.ErrOrWarnList, ErrorOrWarning{
		ID:       id,
		Message:  message,
		Severity: SeverityError,
		Kind:     kind,
	})
}

// AddWarning appends a warning entry and increments the warning counter.
func (s *Step) AddWarning(id, message string, kind ErrOrWarnKind) {
	s.NumWarnings++
	s.ErrOrWarnList = append(s.ErrOrWarnList, ErrorOrWarning{
		ID:       id,
		Message:  message,
		Severity: SeverityWarning,
		Kind:     kind,
	})
}

// AddAPIData appends a record of one outbound API call.
func (s *Step) AddAPIData(call APICall) {
	s.APICallList = append(s.APICallList, call)
}

// AddFileLink appends a file reference.
func (s *Step) AddFileLink(file FileInfo) {
	s.FileInfoList = append(s.FileInfoList, file)
}

// SetScore overwrites the step's score triple. A non-zero date backdates
// both the start and end timestamps, which batch runs use to attribute
// rows to a business period instead of wall-clock time.
func (s *Step) SetScore(value float64, group, cluster string, date time.Time) {
	s.ScoreValue = value
	s.ScoreGroup = group
	s.ScoreCluster = cluster
	if !date.IsZero() {
		s.DateStart = date
		s.DateEnd = date
		s.backdated = true
	}
}

// close stamps the shared close fields. Unless the step was backdated,
// the end timestamp is taken as now and the duration derived from it.
func (s *Step) close(successful bool, messageOutput string) {
	if !s.backdated {
		s.DateEnd = time.Now().UTC()
	}
	s.DurationMs = s.DateEnd.Sub(s.DateStart).Milliseconds()
	if s.DurationMs < 0 {
		s.DurationMs = 0
	}
	s.MessageOutput = messageOutput
	s.Successful = successful
	s.closed = true
}

func (s *Step) String() string {
	return fmt.Sprintf("Step: %s, Duration: %g seconds", s.Name, float64(s.DurationMs)/1000)
}

// stepPayload is the wire format of one step inside an execution
// submission.
type stepPayload struct {
	StepID          string           `json:"stepId"`
	StepIDPrev      string           `json:"stepIdPrev"`
	DateStart       string           `json:"stepDateStart"`
	DateEnd         string           `json:"stepDateEnd"`
	AgentDeployID   string           `json:"agentDeployId"`
	Name            string           `json:"agentExecName"`
	DurationMs      int64            `json:"agentExecDurationMs"`
	Successful      bool             `json:"agentExecSuccessfull"`
	NumErrors       int              `json:"agentExecNumErrors"`
	NumWarnings     int              `json:"agentExecNumWarnings"`
	NumVideos       int              `json:"agentExecNumVideos"`
	SecVideos       int              `json:"agentExecSecVideos"`
	SizeVideos      int              `json:"agentExecSizeVideos"`
	NumAudio        int              `json:"agentExecNumAudio"`
	SecAudio        int              `json:"agentExecSecAudio"`
	SizeAudio       int              `json:"agentExecSizeAudio"`
	NumImages       int              `json:"agentExecNumImages"`
	SizeImages      int              `json:"agentExecSizeImages"`
	NumDocs         int              `json:"agentExecNumDocs"`
	NumPages        int              `json:"agentExecNumPages"`
	SizeDocs        int              `json:"agentExecSizeDocs"`
	NumChar         int              `json:"agentExecNumChar"`
	TokenInput      int              `json:"agentExecTokenInput"`
	TokenOutput     int              `json:"agentExecTokenOutput"`
	TokenTotal      int              `json:"agentExecTokenTotal"`
	CostTokenInput  float64          `json:"agentExecCostTokenInput"`
	CostTokenOutput float64          `json:"agentExecCostTokenOutput"`
	CostTokenTotal  float64          `json:"agentExecCostTokenTotal"`
	CostVideos      float64          `json:"agentExecCostVideos"`
	CostAudio       float64          `json:"agentExecCostAudio"`
	CostImages      float64          `json:"agentExecCostImages"`
	CostDocs        float64          `json:"agentExecCostDocs"`
	CostInfra       float64          `json:"agentExecCostInfra"`
	CostOthers      float64          `json:"agentExecCostOthers"`
	CostTotal       float64          `json:"agentExecCostTotal"`
	IncomeTotal     float64          `json:"agentExecIncomeTotal"`
	ScoreValue      float64          `json:"agentExecScoreValue"`
	ScoreGroup      string           `json:"agentExecScoreGroup"`
	ScoreCluster    string           `json:"agentExecScoreCluster"`
	Type            StepType         `json:"agentExecType"`
	MessageInput    string           `json:"agentExecMessageInput"`
	MessageOutput   string           `json:"agentExecMessageOutput"`
	NumIterations   int              `json:"agentExecCliNumIter"`
	AgentData       []DataItem       `json:"agentData"`
	ErrorOrWarning  []ErrorOrWarning `json:"errorOrWarning"`
	ExtraInfo       []Info           `json:"extraInfo"`
	FileInfo        []FileInfo       `json:"fileInfo"`
	StepAPIData     []APICall        `json:"stepApiData"`
}

func (s *Step) payload() stepPayload {
	return stepPayload{
		StepID:          s.StepID,
		StepIDPrev:      s.PreviousID,
		DateStart:       s.DateStart.Format(apiTimeLayout),
		DateEnd:         s.DateEnd.Format(apiTimeLayout),
		AgentDeployID:   s.AgentDeployID,
		Name:            s.Name,
		DurationMs:      s.DurationMs,
		Successful:      s.Successful,
		NumErrors:       s.NumErrors,
		NumWarnings:     s.NumWarnings,
		NumVideos:       s.Video.Count,
		SecVideos:       s.Video.Seconds,
		SizeVideos:      s.Video.SizeKB,
		NumAudio:        s.Audio.Count,
		SecAudio:        s.Audio.Seconds,
		SizeAudio:       s.Audio.SizeKB,
		NumImages:       s.Image.Count,
		SizeImages:      s.Image.SizeKB,
		NumDocs:         s.Doc.Count,
		NumPages:        s.Doc.Pages,
		SizeDocs:        s.Doc.SizeKB,
		NumChar:         s.Doc.Chars + s.Token.Chars,
		TokenInput:      s.Token.Input,
		TokenOutput:     s.Token.Output,
		TokenTotal:      s.Token.Total,
		CostTokenInput:  s.Cost.TokenInput,
		CostTokenOutput: s.Cost.TokenOutput,
		CostTokenTotal:  s.Cost.TokenTotal,
		CostVideos:      s.Cost.Videos,
		CostAudio:       s.Cost.Audio,
		CostImages:      s.Cost.Images,
		CostDocs:        s.Cost.Docs,
		CostInfra:       s.Cost.Infra,
		CostOthers:      s.Cost.Others,
		CostTotal:       s.Cost.Total,
		IncomeTotal:     s.IncomeTotal,
		ScoreValue:      s.ScoreValue,
		ScoreGroup:      s.ScoreGroup,
		ScoreCluster:    s.ScoreCluster,
		Type:            s.Type,
		MessageInput:    s.MessageInput,
		MessageOutput:   s.MessageOutput,
		NumIterations:   s.NumIterations,
		AgentData:       emptyIfNil(s.DataList),
		ErrorOrWarning:  emptyIfNil(s.ErrOrWarnList),
		ExtraInfo:       emptyIfNil(s.ExtraInfoList),
		FileInfo:        emptyIfNil(s.FileInfoList),
		StepAPIData:     emptyIfNil(s.APICallList),
	}
}

// emptyIfNil keeps sub-lists as [] rather than null on the wire.
func emptyIfNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
