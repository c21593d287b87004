package enola

import (
	"encoding/json"
)

// Response models decode the fields this client understands and keep
// everything else the server sent in an Extra bag, so forward-compatible
// additions are preserved without masking typos in known field names.
// The server historically answered with more than one spelling for some
// keys; the alternates are accepted here.

// TrackingResponse is the server's answer to one execution submission.
type TrackingResponse struct {
	ExecutionID   string
	AgentDeployID string
	EvalDefURL    string
	EvalPostURL   string
	Successful    bool
	Message       string
	Extra         map[string]any
}

func (r *TrackingResponse) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.ExecutionID = rawString(raw, "enolaId", "agentExecuteId")
	r.AgentDeployID = rawString(raw, "agentDeployId")
	r.EvalDefURL = rawString(raw, "urlEvaluationDefGet")
	r.EvalPostURL = rawString(raw, "urlEvaluationPost")
	r.Successful = rawBool(raw, "successfull", "isSuccessful")
	r.Message = rawString(raw, "message")
	r.Extra = rawExtras(raw,
		"enolaId", "agentExecuteId", "agentDeployId", "urlEvaluationDefGet",
		"urlEvaluationPost", "successfull", "isSuccessful", "message")
	return nil
}

// BatchHeadResponse is the server's answer to a batch head submission.
type BatchHeadResponse struct {
	BatchID       string
	AgentDeployID string
	Successful    bool
	Message       string
	Extra         map[string]any
}

func (r *BatchHeadResponse) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.BatchID = rawString(raw, "batch_id", "agentExecBatchId")
	r.AgentDeployID = rawString(raw, "agentDeployId")
	r.Successful = rawBool(raw, "successfull", "agentExecBatchSuccessfull")
	r.Message = rawString(raw, "message")
	r.Extra = rawExtras(raw,
		"batch_id", "agentExecBatchId", "agentDeployId", "successfull",
		"agentExecBatchSuccessfull", "message")
	return nil
}

// batchDetailResponse is the server's answer to one batch flush: one
// tracking response per submitted row.
type batchDetailResponse struct {
	TrackingList  []TrackingResponse
	AgentDeployID string
	Successful    bool
	Message       string
}

func (r *batchDetailResponse) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if list, ok := raw["trackingList"]; ok {
		if err := json.Unmarshal(list, &r.TrackingList); err != nil {
			return err
		}
	}
	r.AgentDeployID = rawString(raw, "agentDeployId")
	r.Successful = rawBool(raw, "isSuccessful", "successfull")
	r.Message = rawString(raw, "message")
	return nil
}

// EvaluationResponse is the server's answer to one evaluation group
// submission.
type EvaluationResponse struct {
	ExecutionID   string
	AgentDeployID string
	EvalID        string
	Successful    bool
	Message       string
	Extra         map[string]any
}

func (r *EvaluationResponse) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.ExecutionID = rawString(raw, "enolaId")
	r.AgentDeployID = rawString(raw, "agentDeployId")
	r.EvalID = rawString(raw, "enolaEvalId")
	r.Successful = rawBool(raw, "successfull", "isSuccessfull", "isSuccessful")
	r.Message = rawString(raw, "message")
	r.Extra = rawExtras(raw,
		"enolaId", "agentDeployId", "enolaEvalId", "successfull",
		"isSuccessfull", "isSuccessful", "message")
	return nil
}

// Execution is one past execution returned by a query.
type Execution struct {
	ExecutionID        string          `json:"agentExecId"`
	RelatedExecutionID string          `json:"agentExecIdRelated"`
	AgentDeployID      string          `json:"agentDeployId"`
	AgentDeployName    string          `json:"agentDeployName"`
	AgentID            string          `json:"agentId"`
	AgentName          string          `json:"agentName"`
	Name               string          `json:"agentExecName"`
	StartedAt          string          `json:"agentExecStartDT"`
	EndedAt            string          `json:"agentExecEndDT"`
	DurationMs         int64           `json:"agentExecDurationMs"`
	NumTracking        json.Number     `json:"agentExecNumTracking"`
	IsTest             bool            `json:"agentExecIsTest"`
	EnvironmentID      string          `json:"environmentId"`
	AppID              string          `json:"agentExecCliAppId"`
	AppName            string          `json:"agentExecCliAppName"`
	UserID             string          `json:"agentExecCliUserId"`
	UserName           string          `json:"agentExecCliUserName"`
	SessionID          string          `json:"agentExecCliSessionId"`
	SessionName        string          `json:"agentExecCliSessionName"`
	ChannelID          string          `json:"agentExecCliChannel"`
	ChannelName        string          `json:"agentExecCliChannelName"`
	MessageInput       string          `json:"agentExecMessageInput"`
	MessageOutput      string          `json:"agentExecMessageOutput"`
	Tags               json.RawMessage `json:"agentExecTagJson"`
	Files              json.RawMessage `json:"agentExecFileInfoJson"`
	Data               json.RawMessage `json:"agentExecDataJson"`
	ErrorsOrWarnings   json.RawMessage `json:"agentExecErrorOrWarningJson"`
	APICalls           json.RawMessage `json:"agentExecStepApiDataJson"`
	Infos              json.RawMessage `json:"agentExecInfoJson"`
	Evals              json.RawMessage `json:"agentExecEvals"`
	IP                 string          `json:"agentExecCliIP"`
	NumIterations      int             `json:"agentExecCliNumIter"`
	ExternalID         string          `json:"agentExecCliCodeApi"`
	Successful         bool            `json:"agentExecSuccessfull"`
}

// ExecutionPage is one page of query results.
type ExecutionPage struct {
	Data       []Execution
	Successful bool
	Message    string
	Extra      map[string]any
}

func (p *ExecutionPage) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if list, ok := raw["data"]; ok {
		if err := json.Unmarshal(list, &p.Data); err != nil {
			return err
		}
	}
	p.Successful = rawBool(raw, "isSuccessful", "successfull")
	p.Message = rawString(raw, "message")
	p.Extra = rawExtras(raw, "data", "isSuccessful", "successfull", "message")
	return nil
}

func rawString(raw map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		if msg, ok := raw[key]; ok {
			var s string
			if err := json.Unmarshal(msg, &s); err == nil && s != "" {
				return s
			}
		}
	}
	return ""
}

func rawBool(raw map[string]json.RawMessage, keys ...string) bool {
	for _, key := range keys {
		if msg, ok := raw[key]; ok {
			var b bool
			if err := json.Unmarshal(msg, &b); err == nil {
				return b
			}
		}
	}
	return false
}

func rawExtras(raw map[string]json.RawMessage, known ...string) map[string]any {
	for _, key := range known {
		delete(raw, key)
	}
	if len(raw) == 0 {
		return nil
	}
	extras := make(map[string]any, len(raw))
	for key, msg := range raw {
		var v any
		if err := json.Unmarshal(msg, &v); err == nil {
			extras[key] = v
		}
	}
	return extras
}
