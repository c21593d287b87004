package enola

import (
	"encoding/json"
	"reflect"
)

// Environment identifies the deployment environment of an execution.
type Environment string

const (
	EnvironmentDev  Environment = "DEV"
	EnvironmentQA   Environment = "QA"
	EnvironmentProd Environment = "PROD"
)

// DataType describes the type of a data item or filter value.
type DataType string

const (
	DataTypeText    DataType = "TEXT"
	DataTypeNumber  DataType = "NUMBER"
	DataTypeDate    DataType = "DATE"
	DataTypeBoolean DataType = "BOOLEAN"
)

// CompareType is the comparison operator used by execution data filters.
type CompareType string

const (
	CompareEqual        CompareType = "EQUAL"
	CompareGreater      CompareType = "GREATER"
	CompareLess         CompareType = "LESS"
	CompareGreaterEqual CompareType = "GREATER_EQUAL"
	CompareLessEqual    CompareType = "LESS_EQUAL"
	CompareNotEqual     CompareType = "NOT_EQUAL"
	CompareContains     CompareType = "CONTAINS"
)

// DataKind indicates whether a data item was received from or sent to
// the user.
type DataKind string

const (
	DataKindReceiver DataKind = "RECEIVER"
	DataKindSender   DataKind = "SENDER"
)

// Severity distinguishes errors from warnings.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// ErrOrWarnKind classifies the origin of an error or warning entry.
type ErrOrWarnKind string

const (
	// KindExternal: an external agent call produced the problem.
	KindExternal ErrOrWarnKind = "EXTERNAL"
	// KindInternalControlled: an internal call produced an unexpected
	// but handled problem.
	KindInternalControlled ErrOrWarnKind = "INTERNAL_CONTROLLED"
	// KindInternalToUser: a controlled message meant for the end user.
	KindInternalToUser ErrOrWarnKind = "INTERNAL_TOUSER"
)

// StepType is the kind a step is closed into. Exactly one per step.
type StepType string

const (
	StepTypeToken    StepType = "TOKEN"
	StepTypeVideo    StepType = "VIDEO"
	StepTypeAudio    StepType = "AUDIO"
	StepTypeImage    StepType = "IMAGE"
	StepTypeDocument StepType = "DOCUMENT"
	StepTypeOther    StepType = "OTHER"
	StepTypeScore    StepType = "SCORE"
)

// EvalType is the category of an evaluation submission.
type EvalType string

const (
	EvalTypeAuto     EvalType = "AUTO"
	EvalTypeUser     EvalType = "USER"
	EvalTypeInternal EvalType = "INTERNAL"
)

// Sender identifies the calling application, user, session, channel,
// client, and product for one execution or batch run. Batch runs mutate
// it in place while iterating rows; it must not be shared across
// concurrent runs.
type Sender struct {
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
	BatchID     string
	IP          string
}

// DataItem is one entry in a step's data list.
type DataItem struct {
	Kind  DataKind `json:"kind"`
	Name  string   `json:"name"`
	Type  DataType `json:"data_type"`
	Value any      `json:"value"`
}

// ErrorOrWarning is one append-only error or warning entry on a step.
type ErrorOrWarning struct {
	ID       string        `json:"id"`
	Message  string        `json:"error"`
	Severity Severity      `json:"error_type"`
	Kind     ErrOrWarnKind `json:"kind"`
}

// Info is a tag or extra-info entry on a step, distinguished by the
// Type discriminator ("tag" or "info").
type Info struct {
	Type  string `json:"type"`
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// newInfo normalizes the value: maps are serialized to a JSON string,
// numbers and plain strings pass through unchanged.
func newInfo(typ, key string, value any) Info {
	if value != nil && reflect.TypeOf(value).Kind() == reflect.Map {
		if encoded, err := json.Marshal(value); err == nil {
			value = string(encoded)
		}
	}
	return Info{Type: typ, Key: key, Value: value}
}

// FileInfo references a file produced or consumed during a step.
type FileInfo struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Type        string `json:"type"`
	SizeKB      int    `json:"size"`
	Description string `json:"description"`
}

// APICall records one outbound API call made during a step.
type APICall struct {
	Name        string `json:"name"`
	Method      string `json:"method"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Body        string `json:"body"`
	Header      string `json:"header"`
	Payload     string `json:"payload"`
}

// TokenUsage counts characters and tokens for a TOKEN step.
type TokenUsage struct {
	Chars  int
	Input  int
	Output int
	Total  int
}

// VideoMetrics counts videos for a VIDEO step.
type VideoMetrics struct {
	Count   int
	Seconds int
	SizeKB  int
}

// AudioMetrics counts audio clips for an AUDIO step.
type AudioMetrics struct {
	Count   int
	Seconds int
	SizeKB  int
}

// ImageMetrics counts images for an IMAGE step.
type ImageMetrics struct {
	Count  int
	SizeKB int
}

// DocMetrics counts documents for a DOCUMENT step.
type DocMetrics struct {
	Count  int
	Pages  int
	SizeKB int
	Chars  int
}

// StepCost is the per-step cost breakdown. All categories default to
// zero; closing a step populates the one matching its kind.
type StepCost struct {
	TokenInput  float64
	TokenOutput float64
	TokenTotal  float64
	Videos      float64
	Audio       float64
	Images      float64
	Docs        float64
	Infra       float64
	Others      float64
	Total       float64
}

// ResultScore carries the actual-versus-predicted score context for an
// evaluation session.
type ResultScore struct {
	ValueActual   float64
	GroupActual   string
	ClusterActual string
	ValueDiff     float64
	GroupDiff     string
	ClusterDiff   string
}

// ResultLLM carries the best-output context for an LLM evaluation
// session. Mutually exclusive with ResultScore.
type ResultLLM struct {
	BestOutput string
}

type resultPayload struct {
	ScoreValueReal    float64 `json:"scoreValueReal"`
	ScoreGroupReal    string  `json:"scoreGroupReal"`
	ScoreClusterReal  string  `json:"scoreClusterReal"`
	ScoreValueDif     float64 `json:"scoreValueDif"`
	ScoreGroupDif     string  `json:"scoreGroupDif"`
	ScoreClusterDif   string  `json:"scoreClusterDif"`
	MessageOutputBest string  `json:"messageOutputBest"`
}

func (r *ResultScore) payload() *resultPayload {
	return &resultPayload{
		ScoreValueReal:   r.ValueActual,
		ScoreGroupReal:   r.GroupActual,
		ScoreClusterReal: r.ClusterActual,
		ScoreValueDif:    r.ValueDiff,
		ScoreGroupDif:    r.GroupDiff,
		ScoreClusterDif:  r.ClusterDiff,
	}
}

func (r *ResultLLM) payload() *resultPayload {
	return &resultPayload{MessageOutputBest: r.BestOutput}
}
