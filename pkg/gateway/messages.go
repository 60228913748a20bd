package gateway

import "encoding/json"

// ClientMessage is every inbound message shape, tagged by Type
// (spec.md §6). Unused fields are simply left zero for a given type;
// this flat-struct-with-type-tag idiom matches the agenterm example's
// ClientMessage rather than Rust's serde enum, since Go has no tagged
// union type.
type ClientMessage struct {
	Type       string          `json:"type"`
	ID         string          `json:"id,omitempty"`
	Function   string          `json:"function,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	JobID      string          `json:"job_id,omitempty"`
	WorkflowID string          `json:"workflow_id,omitempty"`
	Token      string          `json:"token,omitempty"`
}

const (
	msgSubscribe           = "subscribe"
	msgUnsubscribe         = "unsubscribe"
	msgSubscribeJob        = "subscribe_job"
	msgUnsubscribeJob      = "unsubscribe_job"
	msgSubscribeWorkflow   = "subscribe_workflow"
	msgUnsubscribeWorkflow = "unsubscribe_workflow"
	msgPing                = "ping"
	msgAuth                = "auth"
)

// Error codes surfaced in the error message's "code" field.
const (
	CodeInvalidUUID     = "invalid_uuid"
	CodeUnknownFunction = "unknown_function"
	CodeQueryFailed     = "query_failed"
	CodeInvalidMessage  = "invalid_message"
)

// JobData is the subset of Job pushed to clients (spec.md §6
// job_update).
type JobData struct {
	JobID           string          `json:"job_id"`
	Status          string          `json:"status"`
	ProgressPercent *int            `json:"progress_percent,omitempty"`
	ProgressMessage string          `json:"progress_message,omitempty"`
	Output          json.RawMessage `json:"output,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// WorkflowData is the subset of a workflow run pushed to clients
// (spec.md §6 workflow_update).
type WorkflowData struct {
	WorkflowID  string          `json:"workflow_id"`
	Status      string          `json:"status"`
	CurrentStep string          `json:"current_step,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func connectedMessage() []byte {
	return mustMarshal(struct {
		Type string `json:"type"`
	}{Type: "connected"})
}

func pongMessage() []byte {
	return mustMarshal(struct {
		Type string `json:"type"`
	}{Type: "pong"})
}

func dataMessage(id string, data json.RawMessage) []byte {
	return mustMarshal(struct {
		Type string          `json:"type"`
		ID   string          `json:"id"`
		Data json.RawMessage `json:"data"`
	}{Type: "data", ID: id, Data: data})
}

func jobUpdateMessage(id string, job JobData) []byte {
	return mustMarshal(struct {
		Type string  `json:"type"`
		ID   string  `json:"id"`
		Job  JobData `json:"job"`
	}{Type: "job_update", ID: id, Job: job})
}

func workflowUpdateMessage(id string, wf WorkflowData) []byte {
	return mustMarshal(struct {
		Type     string       `json:"type"`
		ID       string       `json:"id"`
		Workflow WorkflowData `json:"workflow"`
	}{Type: "workflow_update", ID: id, Workflow: wf})
}

func errorMessage(id, code, message string) []byte {
	return mustMarshal(struct {
		Type    string `json:"type"`
		ID      string `json:"id,omitempty"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}{Type: "error", ID: id, Code: code, Message: message})
}

// mustMarshal panics only on a programmer error (an unmarshalable
// literal above); never on caller-supplied data.
func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic("gateway: failed to marshal server message: " + err.Error())
	}
	return b
}
