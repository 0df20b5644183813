package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Status events that mark nodes as executed.
const (
	EventExecuting       = "executing"
	EventExecutionCached = "execution_cached"
)

type ImageType string

const (
	ImageTypeOutput ImageType = "output"
	ImageTypeTemp   ImageType = "temp"
	ImageTypeInput  ImageType = "input"
)

// ImageDescriptor addresses one file on the backend (/view query params).
type ImageDescriptor struct {
	Filename  string    `json:"filename"`
	Subfolder string    `json:"subfolder"`
	Type      ImageType `json:"type"`
}

type NodeOutput struct {
	Images []ImageDescriptor `json:"images,omitempty"`
}

// StatusMessage is one ["event-name", {payload}] pair of status.messages.
type StatusMessage struct {
	Event   string
	Payload json.RawMessage
}

func (m *StatusMessage) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("status message is not a list: %w", err)
	}
	if len(pair) == 0 {
		return fmt.Errorf("status message is empty")
	}
	if err := json.Unmarshal(pair[0], &m.Event); err != nil {
		return fmt.Errorf("status message event is not a string: %w", err)
	}
	if len(pair) > 1 {
		m.Payload = pair[1]
	}
	return nil
}

func (m StatusMessage) MarshalJSON() ([]byte, error) {
	payload := m.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return json.Marshal([]any{m.Event, payload})
}

// Nodes returns the payload's "nodes" list. Numeric ids are accepted and
// returned in their decimal form.
func (m StatusMessage) Nodes() []string {
	if len(m.Payload) == 0 {
		return nil
	}
	var p struct {
		Nodes []json.RawMessage `json:"nodes"`
	}
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return nil
	}
	out := make([]string, 0, len(p.Nodes))
	for _, raw := range p.Nodes {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out = append(out, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			out = append(out, n.String())
		}
	}
	return out
}

type JobStatus struct {
	StatusStr string          `json:"status_str"`
	Completed bool            `json:"completed"`
	Messages  []StatusMessage `json:"messages"`
}

// HistoryEntry is the value of GET /history/{prompt_id} for one prompt.
type HistoryEntry struct {
	Prompt  json.RawMessage       `json:"prompt"`
	Outputs map[string]NodeOutput `json:"outputs"`
	Status  JobStatus             `json:"status"`
}

// TotalNodes is the progress denominator: the size of the submitted node
// mapping (prompt[1]) when present, otherwise the number of outputs produced
// so far. The fallback can grow between polls, so progress computed from it
// is not monotonic.
func (h *HistoryEntry) TotalNodes() int {
	raw := bytes.TrimSpace(h.Prompt)
	if len(raw) > 0 && raw[0] == '[' {
		var parts []json.RawMessage
		if err := json.Unmarshal(raw, &parts); err == nil && len(parts) > 1 {
			var nodes map[string]json.RawMessage
			if err := json.Unmarshal(parts[1], &nodes); err == nil && nodes != nil {
				return len(nodes)
			}
		}
	}
	return len(h.Outputs)
}

// ExecutedNodes is the set union of the node ids reported by executing and
// execution_cached messages.
func (h *HistoryEntry) ExecutedNodes() map[string]struct{} {
	set := map[string]struct{}{}
	for _, m := range h.Status.Messages {
		if m.Event != EventExecuting && m.Event != EventExecutionCached {
			continue
		}
		for _, id := range m.Nodes() {
			set[id] = struct{}{}
		}
	}
	return set
}

// Progress estimates completion in percent, rounded to two decimals.
// Completion reported by the backend is authoritative.
func (h *HistoryEntry) Progress() float64 {
	if h == nil {
		return 0
	}
	if h.Status.Completed {
		return 100
	}
	total := h.TotalNodes()
	if total == 0 {
		return 0
	}
	p := float64(len(h.ExecutedNodes())) / float64(total) * 100
	return math.Min(math.Round(p*100)/100, 100)
}

// FirstImage returns the first image of the first output node (in
// SortNodeIDs order) that has any images.
func (h *HistoryEntry) FirstImage() (nodeID string, img ImageDescriptor, ok bool) {
	ids := make([]string, 0, len(h.Outputs))
	for id := range h.Outputs {
		ids = append(ids, id)
	}
	SortNodeIDs(ids)
	for _, id := range ids {
		if imgs := h.Outputs[id].Images; len(imgs) > 0 {
			return id, imgs[0], true
		}
	}
	return "", ImageDescriptor{}, false
}
