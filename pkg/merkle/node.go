// Package merkle content-addresses conversation turns. Each turn is a node
// whose hash covers its parent hash, so identical prefixes shared by
// several conversations collapse into one chain.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/papercomputeco/ligandx/pkg/llm"
)

// Bucket is the hashed content of a node.
type Bucket struct {
	// Role of the turn ("system", "user", "assistant")
	Role string `json:"role"`

	// Content is the turn text
	Content string `json:"content"`

	// Model that produced an assistant turn, empty otherwise
	Model string `json:"model,omitempty"`
}

// Node represents a single content-addressed turn.
type Node struct {
	// Hash is the content-addressed identifier (SHA-256, hex-encoded)
	Hash string `json:"hash"`

	// ParentHash links to the previous turn; nil for a first turn.
	ParentHash *string `json:"parent_hash"`

	Bucket Bucket `json:"bucket"`
}

// NewNode creates a node for bucket under parent (nil for a root).
func NewNode(bucket Bucket, parent *Node) *Node {
	n := &Node{Bucket: bucket}
	if parent != nil {
		h := parent.Hash
		n.ParentHash = &h
	}
	n.Hash = n.computeHash()
	return n
}

// computeHash hashes the parent hash and bucket. Struct fields marshal in
// declaration order, so equal inputs always hash equally.
func (n *Node) computeHash() string {
	parent := ""
	if n.ParentHash != nil {
		parent = *n.ParentHash
	}

	data, err := json.Marshal(struct {
		Parent  string `json:"parent"`
		Content Bucket `json:"content"`
	}{
		Parent:  parent,
		Content: n.Bucket,
	})
	if err != nil {
		panic("failed to marshal hash input: " + err.Error())
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Message returns the node as a conversation message.
func (n *Node) Message() llm.Message {
	return llm.NewTextMessage(n.Bucket.Role, n.Bucket.Content)
}

// Chain builds the nodes of one exchange: every message of history, then
// the answer. Assistant turns are stamped with model so that an answer and
// the same answer replayed as history share a node.
func Chain(history []llm.Message, answer, model string) []*Node {
	nodes := make([]*Node, 0, len(history)+1)
	var parent *Node
	for _, m := range history {
		b := Bucket{Role: m.Role, Content: m.Content}
		if m.Role == llm.RoleAssistant {
			b.Model = model
		}
		parent = NewNode(b, parent)
		nodes = append(nodes, parent)
	}
	nodes = append(nodes, NewNode(Bucket{Role: llm.RoleAssistant, Content: answer, Model: model}, parent))
	return nodes
}

// Head returns the last node of a chain, or nil.
func Head(nodes []*Node) *Node {
	if len(nodes) == 0 {
		return nil
	}
	return nodes[len(nodes)-1]
}
