// Package sqlstore implements the gateway on top of SQLite, for embedding
// the editor without a catalog service and for offline editing.
package sqlstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	_ "modernc.org/sqlite"

	windowagg "github.com/goliatone/go-windowagg"
	"github.com/goliatone/go-windowagg/config"
	"github.com/goliatone/go-windowagg/flow"
	"github.com/goliatone/go-windowagg/gateway"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const schema = `
CREATE TABLE IF NOT EXISTS functions (
    name TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    body TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rules (
    id TEXT PRIMARY KEY,
    body TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS nodes (
    id TEXT PRIMARY KEY,
    body TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- groupings holds the JSON list of stream groupings of the edge
CREATE TABLE IF NOT EXISTS edges (
    id TEXT PRIMARY KEY,
    from_id TEXT NOT NULL,
    to_id TEXT NOT NULL,
    groupings TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

type Option func(*Store)

func WithLogger(l flow.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Store is a gateway backed by a SQLite database.
type Store struct {
	db     *sql.DB
	logger flow.Logger
}

var _ gateway.Gateway = (*Store)(nil)

// Open opens the database at dsn and creates the tables when missing.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storeError("open database", err, map[string]any{"dsn": dsn})
	}
	// SQLite single writer; also keeps one in memory database per store
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = flow.NormalizeLogger(s.logger)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, storeError("create schema", err, map[string]any{"dsn": dsn})
	}
	return s, nil
}

// FromConfig opens the store at the configured DSN.
func FromConfig(ctx context.Context, cfg config.StoreConfig, opts ...Option) (*Store, error) {
	return Open(ctx, cfg.DSN, opts...)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetAggregateFunctions(ctx context.Context) ([]windowagg.Function, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM functions ORDER BY position, name`)
	if err != nil {
		return nil, storeError("query functions", err, nil)
	}
	defer rows.Close()

	var out []windowagg.Function
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, storeError("scan function", err, nil)
		}
		var fn windowagg.Function
		if err := json.UnmarshalFromString(body, &fn); err != nil {
			return nil, storeError("decode function", err, nil)
		}
		out = append(out, fn)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate functions", err, nil)
	}
	return out, nil
}

func (s *Store) GetRule(ctx context.Context, ruleID string) (windowagg.RuleNode, error) {
	var rule windowagg.RuleNode
	if err := s.get(ctx, "rules", ruleID, &rule); err != nil {
		return windowagg.RuleNode{}, err
	}
	rule.ID = ruleID
	return rule, nil
}

// CreateRule stores rule under a new random id.
func (s *Store) CreateRule(ctx context.Context, rule windowagg.RuleNode) (windowagg.RuleNode, error) {
	rule.ID = uuid.NewString()
	body, err := json.MarshalToString(rule)
	if err != nil {
		return windowagg.RuleNode{}, storeError("encode rule", err, nil)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO rules (id, body) VALUES (?, ?)`, rule.ID, body); err != nil {
		return windowagg.RuleNode{}, storeError("insert rule", err, map[string]any{"id": rule.ID})
	}
	s.logger.Debug("rule %s created", rule.ID)
	return rule, nil
}

func (s *Store) UpdateRule(ctx context.Context, ruleID string, rule windowagg.RuleNode) error {
	rule.ID = ruleID
	return s.update(ctx, "rules", ruleID, rule)
}

func (s *Store) UpdateNode(ctx context.Context, nodeID string, node windowagg.Node) error {
	node.ID = nodeID
	return s.update(ctx, "nodes", nodeID, node)
}

func (s *Store) UpdateEdge(ctx context.Context, edgeID string, edge windowagg.EdgeUpdate) error {
	groupings, err := json.MarshalToString(edge.StreamGroupings)
	if err != nil {
		return storeError("encode edge", err, map[string]any{"id": edgeID})
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE edges SET from_id = ?, to_id = ?, groupings = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		edge.FromID, edge.ToID, groupings, edgeID)
	return s.checkUpdated("edges", edgeID, res, err)
}

// Node returns the stored node.
func (s *Store) Node(ctx context.Context, nodeID string) (windowagg.Node, error) {
	var node windowagg.Node
	err := s.get(ctx, "nodes", nodeID, &node)
	return node, err
}

// Edge returns the stored edge body.
func (s *Store) Edge(ctx context.Context, edgeID string) (windowagg.EdgeUpdate, error) {
	var (
		out       windowagg.EdgeUpdate
		groupings string
	)
	err := s.db.QueryRowContext(ctx, `SELECT from_id, to_id, groupings FROM edges WHERE id = ?`, edgeID).
		Scan(&out.FromID, &out.ToID, &groupings)
	if err != nil {
		return out, readError("edges", edgeID, err)
	}
	if err := json.UnmarshalFromString(groupings, &out.StreamGroupings); err != nil {
		return out, storeError("decode edge", err, map[string]any{"id": edgeID})
	}
	return out, nil
}

// SeedFunctions replaces the function catalog, keeping the given order.
func (s *Store) SeedFunctions(ctx context.Context, functions ...windowagg.Function) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin seed", err, nil)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM functions`); err != nil {
		return storeError("clear functions", err, nil)
	}
	for i, fn := range functions {
		body, err := json.MarshalToString(fn)
		if err != nil {
			return storeError("encode function", err, map[string]any{"name": fn.Name})
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO functions (name, position, body) VALUES (?, ?, ?)`, fn.Name, i, body); err != nil {
			return storeError("insert function", err, map[string]any{"name": fn.Name})
		}
	}
	if err := tx.Commit(); err != nil {
		return storeError("commit seed", err, nil)
	}
	return nil
}

// SeedNode inserts or replaces a node.
func (s *Store) SeedNode(ctx context.Context, node windowagg.Node) error {
	body, err := json.MarshalToString(node)
	if err != nil {
		return storeError("encode node", err, map[string]any{"id": node.ID})
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO nodes (id, body) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET body = excluded.body, updated_at = CURRENT_TIMESTAMP`,
		node.ID, body)
	if err != nil {
		return storeError("seed node", err, map[string]any{"id": node.ID})
	}
	return nil
}

// SeedEdge inserts or replaces an edge of the topology.
func (s *Store) SeedEdge(ctx context.Context, edge windowagg.Edge) error {
	groupings, err := json.MarshalToString([]windowagg.StreamGrouping{edge.StreamGrouping})
	if err != nil {
		return storeError("encode edge", err, map[string]any{"id": edge.ID})
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO edges (id, from_id, to_id, groupings) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET from_id = excluded.from_id, to_id = excluded.to_id,
		   groupings = excluded.groupings, updated_at = CURRENT_TIMESTAMP`,
		edge.ID, edge.FromID, edge.ToID, groupings)
	if err != nil {
		return storeError("seed edge", err, map[string]any{"id": edge.ID})
	}
	return nil
}

// table is always one of the constant table names above.
func (s *Store) get(ctx context.Context, table, id string, out any) error {
	var body string
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT body FROM %s WHERE id = ?`, table), id).Scan(&body)
	if err != nil {
		return readError(table, id, err)
	}
	if err := json.UnmarshalFromString(body, out); err != nil {
		return storeError("decode "+table, err, map[string]any{"id": id})
	}
	return nil
}

func (s *Store) update(ctx context.Context, table, id string, v any) error {
	body, err := json.MarshalToString(v)
	if err != nil {
		return storeError("encode "+table, err, map[string]any{"id": id})
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET body = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, table), body, id)
	return s.checkUpdated(table, id, res, err)
}

func (s *Store) checkUpdated(table, id string, res sql.Result, err error) error {
	if err != nil {
		return storeError("update "+table, err, map[string]any{"id": id})
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeError("update "+table, err, map[string]any{"id": id})
	}
	if n == 0 {
		return notFound(table, id)
	}
	s.logger.Debug("%s %s updated", table, id)
	return nil
}

func readError(table, id string, err error) error {
	if stderrors.Is(err, sql.ErrNoRows) {
		return notFound(table, id)
	}
	return storeError("read "+table, err, map[string]any{"id": id})
}

func notFound(table, id string) error {
	return windowagg.NewError(gateway.ErrNotFound, "", fmt.Sprintf("%s %s not found", table, id), nil,
		map[string]any{"table": table, "id": id})
}

func storeError(op string, err error, metadata map[string]any) error {
	return windowagg.NewError(gateway.ErrStore, "", fmt.Sprintf("failed to %s", op), err, metadata)
}
