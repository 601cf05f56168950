// Package rest implements the gateway against the topology catalog REST API.
package rest

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	jsoniter "github.com/json-iterator/go"

	windowagg "github.com/goliatone/go-windowagg"
	"github.com/goliatone/go-windowagg/config"
	"github.com/goliatone/go-windowagg/flow"
	"github.com/goliatone/go-windowagg/gateway"
	"github.com/goliatone/go-windowagg/runner"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	catalogPath = "/api/v1/catalog"
	rulesType   = "windows"
	edgesType   = "edges"
)

// HTTPClient is the subset of *http.Client the gateway needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Option func(*Client)

func WithHTTPClient(c HTTPClient) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func WithNodeType(nodeType string) Option {
	return func(cl *Client) {
		if nodeType != "" {
			cl.nodeType = nodeType
		}
	}
}

// WithRunnerOptions sets the retry behaviour of every request.
func WithRunnerOptions(opts ...runner.Option) Option {
	return func(cl *Client) {
		cl.runnerOpts = append(cl.runnerOpts, opts...)
	}
}

func WithLogger(l flow.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

func WithTimeout(t time.Duration) Option {
	return func(cl *Client) {
		cl.timeout = t
	}
}

// Client talks to one topology version of the catalog API.
type Client struct {
	baseURL    string
	topologyID string
	versionID  string
	nodeType   string
	timeout    time.Duration

	http       HTTPClient
	runnerOpts []runner.Option
	logger     flow.Logger
}

var _ gateway.Gateway = (*Client)(nil)

func New(baseURL, topologyID, versionID string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		topologyID: topologyID,
		versionID:  versionID,
		nodeType:   "processors",
		http:       http.DefaultClient,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = flow.NormalizeLogger(c.logger)
	return c
}

// FromConfig builds a client from the gateway and retry sections.
func FromConfig(gw config.GatewayConfig, retry config.RetryConfig, opts ...Option) *Client {
	base := []Option{
		WithNodeType(gw.NodeType),
		WithTimeout(gw.Timeout),
		WithRunnerOptions(retry.RunnerOptions()...),
	}
	return New(gw.BaseURL, gw.TopologyID, gw.VersionID, append(base, opts...)...)
}

type entities[T any] struct {
	Entities []T `json:"entities"`
}

type remoteError struct {
	ResponseMessage string `json:"responseMessage"`
}

func (c *Client) GetAggregateFunctions(ctx context.Context) ([]windowagg.Function, error) {
	var out entities[windowagg.Function]
	if err := c.do(ctx, http.MethodGet, catalogPath+"/streams/udfs", nil, &out); err != nil {
		return nil, err
	}
	return out.Entities, nil
}

func (c *Client) GetRule(ctx context.Context, ruleID string) (windowagg.RuleNode, error) {
	var rule windowagg.RuleNode
	err := c.do(ctx, http.MethodGet, c.entityPath(rulesType, ruleID), nil, &rule)
	return rule, err
}

func (c *Client) CreateRule(ctx context.Context, rule windowagg.RuleNode) (windowagg.RuleNode, error) {
	var created windowagg.RuleNode
	err := c.do(ctx, http.MethodPost, c.entityPath(rulesType, ""), rule, &created)
	return created, err
}

func (c *Client) UpdateRule(ctx context.Context, ruleID string, rule windowagg.RuleNode) error {
	return c.do(ctx, http.MethodPut, c.entityPath(rulesType, ruleID), rule, nil)
}

func (c *Client) UpdateNode(ctx context.Context, nodeID string, node windowagg.Node) error {
	return c.do(ctx, http.MethodPut, c.entityPath(c.nodeType, nodeID), node, nil)
}

func (c *Client) UpdateEdge(ctx context.Context, edgeID string, edge windowagg.EdgeUpdate) error {
	return c.do(ctx, http.MethodPut, c.entityPath(edgesType, edgeID), edge, nil)
}

func (c *Client) entityPath(kind, id string) string {
	p := fmt.Sprintf("%s/topologies/%s/versions/%s/%s",
		catalogPath, url.PathEscape(c.topologyID), url.PathEscape(c.versionID), kind)
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	return p
}

// do sends one request with retries. Only transport failures and 5xx
// responses are retried.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return errors.Wrap(err, errors.CategoryBadInput, "failed to encode request body").
				WithTextCode("ENCODE_FAILED")
		}
	}

	opts := append([]runner.Option{
		runner.WithTimeout(c.timeout),
		runner.WithLogger(c.logger),
		runner.WithErrorHandler(nil),
		runner.WithRetryIf(retryable),
	}, c.runnerOpts...)
	h := runner.NewHandler(opts...)

	log := flow.WithFields(c.logger, map[string]any{"method": method, "path": path})
	err := h.Run(ctx, func(ctx context.Context) error {
		return c.send(ctx, method, path, payload, out)
	})
	if err != nil {
		log.Debug("request failed: %v", err)
		return err
	}
	log.Trace("request succeeded")
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return windowagg.NewError(gateway.ErrTransport, "", "", err, map[string]any{"path": path})
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return windowagg.NewError(gateway.ErrTransport, "", fmt.Sprintf("%s %s failed", method, path), err,
			map[string]any{"path": path, "method": method})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return windowagg.NewError(gateway.ErrTransport, "", "failed to read response", err,
			map[string]any{"path": path, "status": resp.StatusCode})
	}

	var remote remoteError
	_ = json.Unmarshal(data, &remote)

	if resp.StatusCode >= http.StatusBadRequest {
		base := gateway.ErrRemote
		if resp.StatusCode == http.StatusNotFound {
			base = gateway.ErrNotFound
		}
		msg := remote.ResponseMessage
		if msg == "" {
			msg = fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode)
		}
		return windowagg.NewError(base, "", msg, nil,
			map[string]any{"path": path, "method": method, "status": resp.StatusCode})
	}
	if remote.ResponseMessage != "" {
		return windowagg.NewError(gateway.ErrRemote, "", remote.ResponseMessage, nil,
			map[string]any{"path": path, "method": method, "status": resp.StatusCode})
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, errors.CategoryExternal, "failed to decode response").
			WithTextCode("DECODE_FAILED").
			WithMetadata(map[string]any{"path": path})
	}
	return nil
}

func retryable(err error) bool {
	if windowagg.HasCode(err, gateway.ErrCodeTransport) {
		return true
	}
	var ge *errors.Error
	if stderrors.As(err, &ge) && ge.TextCode == gateway.ErrCodeRemote {
		status, _ := ge.Metadata["status"].(int)
		return status >= http.StatusInternalServerError
	}
	return false
}
