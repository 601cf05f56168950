// Package gateway defines the persistence contract of the editor: the
// function catalog, the window rule, the processor node and its inbound
// edge.
package gateway

import (
	"context"

	"github.com/goliatone/go-errors"

	windowagg "github.com/goliatone/go-windowagg"
)

type Gateway interface {
	GetAggregateFunctions(ctx context.Context) ([]windowagg.Function, error)
	GetRule(ctx context.Context, ruleID string) (windowagg.RuleNode, error)
	// CreateRule persists a new rule and returns it with its id set.
	CreateRule(ctx context.Context, rule windowagg.RuleNode) (windowagg.RuleNode, error)
	UpdateRule(ctx context.Context, ruleID string, rule windowagg.RuleNode) error
	UpdateNode(ctx context.Context, nodeID string, node windowagg.Node) error
	UpdateEdge(ctx context.Context, edgeID string, edge windowagg.EdgeUpdate) error
}

const (
	ErrCodeNotFound  = "NOT_FOUND"
	ErrCodeRemote    = "REMOTE_ERROR"
	ErrCodeTransport = "TRANSPORT_ERROR"
	ErrCodeStore     = "STORE_ERROR"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("entity not found", errors.CategoryBadInput).
			WithTextCode(ErrCodeNotFound)

	// ErrRemote carries a failure reported by the remote service.
	ErrRemote = errors.New("remote request failed", errors.CategoryExternal).
			WithTextCode(ErrCodeRemote)

	ErrTransport = errors.New("request could not be sent", errors.CategoryExternal).
			WithTextCode(ErrCodeTransport)

	ErrStore = errors.New("store operation failed", errors.CategoryExternal).
			WithTextCode(ErrCodeStore)
)
