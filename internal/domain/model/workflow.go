package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"comfy-gateway/internal/domain"
)

// Class types the gateway knows how to patch.
const (
	ClassKSampler       = "KSampler"
	ClassCLIPTextEncode = "CLIPTextEncode"
	ClassLoadImage      = "LoadImage"
)

// NodeKind is the decoded form of a node's class_type.
// Anything the gateway does not patch is Opaque and passes through untouched.
type NodeKind int

const (
	NodeKindOpaque NodeKind = iota
	NodeKindSampler
	NodeKindTextEncode
	NodeKindLoadImage
)

func KindOf(classType string) NodeKind {
	switch classType {
	case ClassKSampler:
		return NodeKindSampler
	case ClassCLIPTextEncode:
		return NodeKindTextEncode
	case ClassLoadImage:
		return NodeKindLoadImage
	default:
		return NodeKindOpaque
	}
}

func (k NodeKind) String() string {
	switch k {
	case NodeKindSampler:
		return "sampler"
	case NodeKindTextEncode:
		return "text_encode"
	case NodeKindLoadImage:
		return "load_image"
	default:
		return "opaque"
	}
}

// Reference points at another node's output: ["<node-id>", <output-index>].
type Reference struct {
	NodeID string
	Output int
}

// Node is one entry of a workflow graph. Input values are kept as raw JSON so
// that values the gateway does not touch keep their exact encoding.
type Node struct {
	ClassType string
	Kind      NodeKind
	Inputs    map[string]json.RawMessage

	// keys other than class_type/inputs (e.g. "_meta")
	extra map[string]json.RawMessage
}

func (n *Node) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("node is not an object: %w", err)
	}
	ct, ok := raw["class_type"]
	if !ok {
		return fmt.Errorf("node has no class_type")
	}
	if err := json.Unmarshal(ct, &n.ClassType); err != nil {
		return fmt.Errorf("class_type is not a string: %w", err)
	}
	n.Kind = KindOf(n.ClassType)

	n.Inputs = map[string]json.RawMessage{}
	if in, ok := raw["inputs"]; ok && !isNull(in) {
		if err := json.Unmarshal(in, &n.Inputs); err != nil {
			return fmt.Errorf("inputs of %s is not an object: %w", n.ClassType, err)
		}
	}
	delete(raw, "class_type")
	delete(raw, "inputs")
	if len(raw) > 0 {
		n.extra = raw
	}
	return nil
}

func (n Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.extra)+2)
	for k, v := range n.extra {
		out[k] = v
	}
	out["class_type"] = n.ClassType
	inputs := n.Inputs
	if inputs == nil {
		inputs = map[string]json.RawMessage{}
	}
	out["inputs"] = inputs
	return json.Marshal(out)
}

// Reference decodes input name as a node reference. ok is false when the
// input is missing or holds a literal value.
func (n *Node) Reference(name string) (Reference, bool) {
	raw, ok := n.Inputs[name]
	if !ok {
		return Reference{}, false
	}
	return decodeReference(raw)
}

// SetInput replaces (or adds) a literal input value.
func (n *Node) SetInput(name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if n.Inputs == nil {
		n.Inputs = map[string]json.RawMessage{}
	}
	n.Inputs[name] = b
	return nil
}

// Input decodes a literal input into dst.
func (n *Node) Input(name string, dst any) error {
	raw, ok := n.Inputs[name]
	if !ok {
		return fmt.Errorf("%w: input %q", domain.ErrNotFound, name)
	}
	return json.Unmarshal(raw, dst)
}

func (n *Node) clone() *Node {
	cp := &Node{ClassType: n.ClassType, Kind: n.Kind}
	cp.Inputs = make(map[string]json.RawMessage, len(n.Inputs))
	for k, v := range n.Inputs {
		cp.Inputs[k] = append(json.RawMessage(nil), v...)
	}
	if n.extra != nil {
		cp.extra = make(map[string]json.RawMessage, len(n.extra))
		for k, v := range n.extra {
			cp.extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return cp
}

// WorkflowGraph is a ComfyUI "API format" prompt: node-id -> node.
type WorkflowGraph struct {
	nodes map[string]*Node
}

// ParseWorkflow decodes a workflow document and checks that every reference
// resolves inside the graph.
func ParseWorkflow(b []byte) (*WorkflowGraph, error) {
	g := &WorkflowGraph{}
	if err := json.Unmarshal(b, g); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	if g.nodes == nil {
		return nil, fmt.Errorf("%w: workflow document is null", domain.ErrParse)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *WorkflowGraph) UnmarshalJSON(b []byte) error {
	if isNull(b) {
		return fmt.Errorf("workflow document is null")
	}
	nodes := map[string]*Node{}
	if err := json.Unmarshal(b, &nodes); err != nil {
		return err
	}
	for id, n := range nodes {
		if n == nil {
			return fmt.Errorf("node %s is null", id)
		}
	}
	g.nodes = nodes
	return nil
}

func (g *WorkflowGraph) MarshalJSON() ([]byte, error) {
	if g == nil || g.nodes == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(g.nodes)
}

// Validate reports a dangling reference as a parse error.
func (g *WorkflowGraph) Validate() error {
	for _, id := range g.SortedIDs() {
		n := g.nodes[id]
		for name, raw := range n.Inputs {
			ref, ok := decodeReference(raw)
			if !ok {
				continue
			}
			if _, exists := g.nodes[ref.NodeID]; !exists {
				return fmt.Errorf("%w: node %s input %q references missing node %s",
					domain.ErrParse, id, name, ref.NodeID)
			}
		}
	}
	return nil
}

func (g *WorkflowGraph) Len() int { return len(g.nodes) }

func (g *WorkflowGraph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// SortedIDs returns node ids in a stable order (see SortNodeIDs).
func (g *WorkflowGraph) SortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	SortNodeIDs(ids)
	return ids
}

// NodesByType returns the ids of every node with the given class_type.
func (g *WorkflowGraph) NodesByType(classType string) []string {
	var ids []string
	for _, id := range g.SortedIDs() {
		if g.nodes[id].ClassType == classType {
			ids = append(ids, id)
		}
	}
	return ids
}

// FindNodeByType returns the single node of the given class_type.
func (g *WorkflowGraph) FindNodeByType(classType string) (string, error) {
	ids := g.NodesByType(classType)
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: no %s node", domain.ErrStructural, classType)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %d %s nodes (%v), expected exactly one",
			domain.ErrStructural, len(ids), classType, ids)
	}
}

// Clone returns a deep copy; patches are always applied to a copy.
func (g *WorkflowGraph) Clone() *WorkflowGraph {
	cp := &WorkflowGraph{nodes: make(map[string]*Node, len(g.nodes))}
	for id, n := range g.nodes {
		cp.nodes[id] = n.clone()
	}
	return cp
}

// SortNodeIDs orders numeric ids numerically ("2" < "10") followed by
// non-numeric ids in lexical order.
func SortNodeIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, aErr := strconv.ParseInt(ids[i], 10, 64)
		b, bErr := strconv.ParseInt(ids[j], 10, 64)
		switch {
		case aErr == nil && bErr == nil:
			if a != b {
				return a < b
			}
			return ids[i] < ids[j]
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
}

func decodeReference(raw json.RawMessage) (Reference, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return Reference{}, false
	}
	var tuple []json.RawMessage
	if err := json.Unmarshal(raw, &tuple); err != nil || len(tuple) != 2 {
		return Reference{}, false
	}
	var id string
	if err := json.Unmarshal(tuple[0], &id); err != nil {
		var num json.Number
		if err := json.Unmarshal(tuple[0], &num); err != nil {
			return Reference{}, false
		}
		id = num.String()
	}
	var out int
	if err := json.Unmarshal(tuple[1], &out); err != nil {
		return Reference{}, false
	}
	return Reference{NodeID: id, Output: out}, true
}

func isNull(b []byte) bool {
	return bytes.Equal(bytes.TrimSpace(b), []byte("null"))
}
