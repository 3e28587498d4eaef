package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/ligandx/pkg/storage"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HistoryResponse contains the conversation history for a given node.
type HistoryResponse struct {
	// Messages in chronological order (oldest first, up to and including the requested node)
	Messages []HistoryMessage `json:"messages"`
	// HeadHash is the hash of the node that was requested
	HeadHash string `json:"head_hash"`
	// Depth is the number of messages in the history
	Depth int `json:"depth"`
}

// HistoryMessage represents a message in the conversation history.
type HistoryMessage struct {
	Hash       string  `json:"hash"`
	ParentHash *string `json:"parent_hash,omitempty"`
	Role       string  `json:"role"`
	Content    string  `json:"content"`
	Model      string  `json:"model,omitempty"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

func (s *Server) handleListRuns(c *fiber.Ctx) error {
	runs, err := s.storer.ListRuns(c.UserContext())
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list runs"})
	}
	if runs == nil {
		runs = []storage.Run{}
	}

	return c.JSON(map[string]any{
		"count": len(runs),
		"runs":  runs,
	})
}

func (s *Server) handleGetRun(c *fiber.Ctx) error {
	run, err := s.storer.GetRun(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.storeError(c, err, "run")
	}
	return c.JSON(run)
}

func (s *Server) handleListDocuments(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")

	if _, err := s.storer.GetRun(ctx, id); err != nil {
		return s.storeError(c, err, "run")
	}

	docs, err := s.storer.ListDocuments(ctx, id)
	if err != nil {
		s.logger.Error("failed to list documents", "run_id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list documents"})
	}

	return c.JSON(map[string]any{
		"run_id":    id,
		"count":     len(docs),
		"documents": docs,
	})
}

// handleGetTurn returns a single node by its hash.
func (s *Server) handleGetTurn(c *fiber.Ctx) error {
	node, err := s.storer.Get(c.UserContext(), c.Params("hash"))
	if err != nil {
		return s.storeError(c, err, "node")
	}
	return c.JSON(node)
}

// handleGetHistory returns the full conversation leading up to a given node.
func (s *Server) handleGetHistory(c *fiber.Ctx) error {
	history, err := s.buildHistory(c.UserContext(), c.Params("hash"))
	if err != nil {
		return s.storeError(c, err, "node")
	}
	return c.JSON(history)
}

// buildHistory constructs a HistoryResponse for the given node hash.
func (s *Server) buildHistory(ctx context.Context, hash string) (*HistoryResponse, error) {
	ancestry, err := s.storer.Ancestry(ctx, hash)
	if err != nil {
		return nil, err
	}

	messages := make([]HistoryMessage, len(ancestry))
	for i, node := range ancestry {
		messages[len(ancestry)-1-i] = HistoryMessage{
			Hash:       node.Hash,
			ParentHash: node.ParentHash,
			Role:       node.Bucket.Role,
			Content:    node.Bucket.Content,
			Model:      node.Bucket.Model,
		}
	}

	return &HistoryResponse{
		Messages: messages,
		HeadHash: hash,
		Depth:    len(messages),
	}, nil
}

// storeError maps a storage error to a response.
func (s *Server) storeError(c *fiber.Ctx, err error, kind string) error {
	var nf storage.NotFoundError
	if errors.As(err, &nf) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: kind + " not found"})
	}
	s.logger.Error("store lookup failed", "kind", kind, "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to get " + kind})
}
