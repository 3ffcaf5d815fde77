package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fyrsmithlabs/repotrack/internal/diagstream"
	"github.com/fyrsmithlabs/repotrack/internal/dictionary"
	"github.com/fyrsmithlabs/repotrack/internal/logging"
	"github.com/fyrsmithlabs/repotrack/internal/property"
	"github.com/fyrsmithlabs/repotrack/internal/wire"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Operation names used in errors, logs, spans and metrics.
const (
	OpGetAclChangeSets        = "GetAclChangeSets"
	OpGetAcls                 = "GetAcls"
	OpGetAclReaders           = "GetAclReaders"
	OpGetTransactions         = "GetTransactions"
	OpGetNodes                = "GetNodes"
	OpGetNodesMetaData        = "GetNodesMetaData"
	OpGetTextContent          = "GetTextContent"
	OpGetModelsDiff           = "GetModelsDiff"
	OpGetModel                = "GetModel"
	OpGetNextTxCommitTime     = "GetNextTxCommitTime"
	OpGetTxIntervalCommitTime = "GetTxIntervalCommitTime"
)

// HTTPClient is a Client talking to a repository over HTTP(S).
// It is safe for concurrent use.
type HTTPClient struct {
	base    *url.URL
	http    *http.Client
	logger  *zap.Logger
	deser   *property.Deserializer
	diag    diagstream.Strategy
	diagSet bool
	window  int
	metrics *Metrics
	closed  atomic.Bool
}

// HTTPClientOption configures an HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithHTTPClient sets the underlying http.Client (see the transport package).
func WithHTTPClient(hc *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) HTTPClientOption {
	return func(c *HTTPClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the request metrics.
func WithMetrics(m *Metrics) HTTPClientOption {
	return func(c *HTTPClient) {
		c.metrics = m
	}
}

// WithDiagnostics overrides the diagnostic strategy chosen from the logger.
func WithDiagnostics(s diagstream.Strategy) HTTPClientOption {
	return func(c *HTTPClient) {
		c.diag = s
		c.diagSet = true
	}
}

// WithDiagnosticsWindow sets the window used when the logger is at debug level.
func WithDiagnosticsWindow(n int) HTTPClientOption {
	return func(c *HTTPClient) {
		c.window = n
	}
}

// NewHTTPClient returns a client for the repository at baseURL
// (for example http://localhost:8080/alfresco/service). Property values are typed
// with lookup; a nil lookup decodes every property as a Single.
func NewHTTPClient(baseURL string, lookup dictionary.Lookup, opts ...HTTPClientOption) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: base url: %v", ErrInvalidArgument, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: base url scheme must be http or https, got %q", ErrInvalidArgument, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: base url has no host", ErrInvalidArgument)
	}

	c := &HTTPClient{
		base:   u,
		http:   &http.Client{},
		logger: zap.NewNop(),
		deser:  property.NewDeserializer(lookup),
		window: diagstream.DefaultWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	if !c.diagSet {
		c.diag = diagstream.ForLogger(c.logger, c.window)
	}
	return c, nil
}

// BaseURL returns the repository base URL.
func (c *HTTPClient) BaseURL() string {
	return c.base.String()
}

// Close releases idle connections. Later calls fail with ErrClosed.
func (c *HTTPClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.http.CloseIdleConnections()
	return nil
}

// GetAclChangeSets implements Client.
func (c *HTTPClient) GetAclChangeSets(ctx context.Context, q CursorQuery) (page *AclChangeSets, err error) {
	ctx, span := StartSpan(ctx, OpGetAclChangeSets, cursorAttrs(q)...)
	start := time.Now()
	defer func() {
		n := 0
		if page != nil {
			n = len(page.ChangeSets)
		}
		c.finish(ctx, span, OpGetAclChangeSets, start, n, err)
	}()

	params := url.Values{}
	wire.SetInt64(params, wire.ParamFromTime, q.FromCommitTime)
	wire.SetInt64(params, wire.ParamFromID, q.MinID)
	wire.SetInt64(params, wire.ParamToTime, q.ToCommitTime)
	wire.SetInt64(params, wire.ParamToID, q.MaxID)
	setMaxResults(params, q.MaxResults)

	var w wire.AclChangeSetsResponse
	u, err := c.call(ctx, OpGetAclChangeSets, http.MethodGet, wire.PathAclChangeSets, params, nil, &w)
	if err != nil {
		return nil, err
	}
	if w.AclChangeSets == nil {
		return nil, missing(OpGetAclChangeSets, u, "aclChangeSets")
	}
	return AclChangeSetsFromWire(w), nil
}

// GetAcls implements Client.
func (c *HTTPClient) GetAcls(ctx context.Context, changeSets []AclChangeSet, minAclID *int64, maxResults int) (acls []Acl, err error) {
	ctx, span := StartSpan(ctx, OpGetAcls, attribute.Int("tracking.change_sets", len(changeSets)))
	start := time.Now()
	defer func() { c.finish(ctx, span, OpGetAcls, start, len(acls), err) }()

	params := url.Values{}
	wire.SetInt64(params, wire.ParamFromID, minAclID)
	setMaxResults(params, maxResults)

	body := wire.AclsRequest{AclChangeSetIDs: make([]int64, 0, len(changeSets))}
	for _, cs := range changeSets {
		body.AclChangeSetIDs = append(body.AclChangeSetIDs, cs.ID)
	}

	var w wire.AclsResponse
	u, err := c.call(ctx, OpGetAcls, http.MethodPost, wire.PathAcls, params, body, &w)
	if err != nil {
		return nil, err
	}
	if w.Acls == nil {
		return nil, missing(OpGetAcls, u, "acls")
	}
	return AclsFromWire(w), nil
}

// GetAclReaders implements Client.
func (c *HTTPClient) GetAclReaders(ctx context.Context, acls []Acl) (readers []AclReaders, err error) {
	ctx, span := StartSpan(ctx, OpGetAclReaders, attribute.Int("tracking.acls", len(acls)))
	start := time.Now()
	defer func() { c.finish(ctx, span, OpGetAclReaders, start, len(readers), err) }()

	body := wire.AclReadersRequest{AclIDs: make([]int64, 0, len(acls))}
	for _, a := range acls {
		body.AclIDs = append(body.AclIDs, a.ID)
	}

	var w wire.AclReadersResponse
	u, err := c.call(ctx, OpGetAclReaders, http.MethodPost, wire.PathAclReaders, nil, body, &w)
	if err != nil {
		return nil, err
	}
	if w.AclsReaders == nil {
		return nil, missing(OpGetAclReaders, u, "aclsReaders")
	}
	return orderReaders(acls, AclReadersFromWire(w))
}

// orderReaders returns one entry per acl in input order.
func orderReaders(acls []Acl, got []AclReaders) ([]AclReaders, error) {
	byID := make(map[int64]AclReaders, len(got))
	for _, r := range got {
		byID[r.AclID] = r
	}
	out := make([]AclReaders, 0, len(acls))
	for _, a := range acls {
		r, ok := byID[a.ID]
		if !ok {
			return nil, fmt.Errorf("%w: acl %d", ErrMissingAclReaders, a.ID)
		}
		out = append(out, r)
	}
	return out, nil
}

// GetTransactions implements Client.
func (c *HTTPClient) GetTransactions(ctx context.Context, q CursorQuery, shard *ShardState) (page *Transactions, err error) {
	attrs := cursorAttrs(q)
	attrs = append(attrs, attribute.Bool("tracking.sharded", shard != nil))
	ctx, span := StartSpan(ctx, OpGetTransactions, attrs...)
	start := time.Now()
	defer func() {
		n := 0
		if page != nil {
			n = len(page.Transactions)
		}
		c.finish(ctx, span, OpGetTransactions, start, n, err)
	}()

	params := url.Values{}
	wire.SetInt64(params, wire.ParamFromCommitTime, q.FromCommitTime)
	wire.SetInt64(params, wire.ParamMinTxnID, q.MinID)
	wire.SetInt64(params, wire.ParamToCommitTime, q.ToCommitTime)
	wire.SetInt64(params, wire.ParamMaxTxnID, q.MaxID)
	setMaxResults(params, q.MaxResults)
	if shard != nil {
		shard.Encode(params)
	}

	var w wire.TransactionsResponse
	u, err := c.call(ctx, OpGetTransactions, http.MethodGet, wire.PathTransactions, params, nil, &w)
	if err != nil {
		return nil, err
	}
	if w.Transactions == nil {
		return nil, missing(OpGetTransactions, u, "transactions")
	}
	return TransactionsFromWire(w), nil
}

// GetNodes implements Client.
func (c *HTTPClient) GetNodes(ctx context.Context, p GetNodesParameters, maxResults int) (nodes []Node, err error) {
	ctx, span := StartSpan(ctx, OpGetNodes, attribute.Int("tracking.transactions", len(p.TransactionIDs)))
	start := time.Now()
	defer func() { c.finish(ctx, span, OpGetNodes, start, len(nodes), err) }()

	var w wire.NodesResponse[wire.Node]
	u, err := c.call(ctx, OpGetNodes, http.MethodPost, wire.PathNodes, nil, NodesRequestToWire(p, maxResults), &w)
	if err != nil {
		return nil, err
	}
	if w.Nodes == nil {
		return nil, missing(OpGetNodes, u, "nodes")
	}
	return NodesFromWire(w), nil
}

// GetNodesMetaData implements Client.
func (c *HTTPClient) GetNodesMetaData(ctx context.Context, p NodeMetaDataParameters) (nodes []NodeMetaData, err error) {
	ctx, span := StartSpan(ctx, OpGetNodesMetaData, attribute.Int("tracking.node_ids", len(p.NodeIDs)))
	start := time.Now()
	defer func() { c.finish(ctx, span, OpGetNodesMetaData, start, len(nodes), err) }()

	var w wire.NodesResponse[wire.NodeMetaData]
	u, err := c.call(ctx, OpGetNodesMetaData, http.MethodPost, wire.PathMetadata, nil, MetadataRequestToWire(p), &w)
	if err != nil {
		return nil, err
	}
	if w.Nodes == nil {
		return nil, missing(OpGetNodesMetaData, u, "nodes")
	}

	nodes = make([]NodeMetaData, 0, len(w.Nodes))
	for _, wn := range w.Nodes {
		md, err := NodeMetaDataFromWire(wn, c.deser)
		if err != nil {
			return nil, &ParseError{Op: OpGetNodesMetaData, URL: u, Err: err}
		}
		nodes = append(nodes, md)
	}
	return nodes, nil
}

// GetTextContent implements Client.
func (c *HTTPClient) GetTextContent(ctx context.Context, nodeID int64, propertyQName dictionary.QName, modifiedSince *time.Time) (tc *TextContent, err error) {
	ctx, span := StartSpan(ctx, OpGetTextContent, attribute.Int64("tracking.node_id", nodeID))
	start := time.Now()
	defer func() {
		n := 0
		if tc != nil && tc.Status == ContentOK {
			n = 1
		}
		c.finish(ctx, span, OpGetTextContent, start, n, err)
	}()

	params := url.Values{}
	params.Set(wire.ParamNodeID, strconv.FormatInt(nodeID, 10))
	if !propertyQName.IsZero() {
		params.Set(wire.ParamPropertyQName, propertyQName.String())
	}
	header := http.Header{}
	if modifiedSince != nil {
		header.Set(wire.HeaderIfModifiedSince, modifiedSince.UTC().Format(http.TimeFormat))
	}

	resp, u, err := c.send(ctx, OpGetTextContent, http.MethodGet, wire.PathTextContent, params, nil, header)
	if err != nil {
		return nil, err
	}
	return textContentFromResponse(OpGetTextContent, u, resp)
}

// GetModelsDiff implements Client.
func (c *HTTPClient) GetModelsDiff(ctx context.Context, models []ModelRef) (diffs []ModelDiff, err error) {
	ctx, span := StartSpan(ctx, OpGetModelsDiff, attribute.Int("tracking.models", len(models)))
	start := time.Now()
	defer func() { c.finish(ctx, span, OpGetModelsDiff, start, len(diffs), err) }()

	var w wire.ModelsDiffResponse
	u, err := c.call(ctx, OpGetModelsDiff, http.MethodPost, wire.PathModelsDiff, nil, ModelRefsToWire(models), &w)
	if err != nil {
		return nil, err
	}
	if w.Diffs == nil {
		return nil, missing(OpGetModelsDiff, u, "diffs")
	}

	diffs = make([]ModelDiff, 0, len(w.Diffs))
	for _, wd := range w.Diffs {
		d, err := ModelDiffFromWire(wd)
		if err != nil {
			return nil, &ParseError{Op: OpGetModelsDiff, URL: u, Err: err}
		}
		diffs = append(diffs, d)
	}
	return diffs, nil
}

// GetModel implements Client.
func (c *HTTPClient) GetModel(ctx context.Context, name dictionary.QName, expected *int64) (m *Model, err error) {
	ctx, span := StartSpan(ctx, OpGetModel, attribute.String("tracking.model", name.String()))
	start := time.Now()
	defer func() {
		n := 0
		if m != nil {
			n = 1
		}
		c.finish(ctx, span, OpGetModel, start, n, err)
	}()

	params := url.Values{}
	params.Set(wire.ParamModelQName, name.String())

	resp, u, err := c.send(ctx, OpGetModel, http.MethodGet, wire.PathModel, params, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UnexpectedStatusError{Op: OpGetModel, URL: u, StatusCode: resp.StatusCode}
	}

	header := resp.Header.Get(wire.HeaderModelChecksum)
	if header == "" {
		return nil, &ParseError{Op: OpGetModel, URL: u, Err: fmt.Errorf("missing %s header", wire.HeaderModelChecksum)}
	}
	checksum, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return nil, &ParseError{Op: OpGetModel, URL: u, Err: fmt.Errorf("invalid %s header: %w", wire.HeaderModelChecksum, err)}
	}
	if expected != nil && *expected != checksum {
		return nil, &ChecksumMismatchError{Model: name, Expected: *expected, Actual: checksum}
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: reading model body: %w", OpGetModel, err)
	}
	return &Model{Name: name, Checksum: checksum, Content: content}, nil
}

// GetNextTxCommitTime implements Client.
func (c *HTTPClient) GetNextTxCommitTime(ctx context.Context, fromCommitTime int64) (next int64, err error) {
	ctx, span := StartSpan(ctx, OpGetNextTxCommitTime, attribute.Int64("tracking.from_commit_time", fromCommitTime))
	start := time.Now()
	defer func() { c.finish(ctx, span, OpGetNextTxCommitTime, start, 1, err) }()

	params := url.Values{}
	params.Set(wire.ParamFromCommitTime, strconv.FormatInt(fromCommitTime, 10))

	var w wire.NextTransactionResponse
	if _, err := c.callOptional(ctx, OpGetNextTxCommitTime, wire.PathNextTransaction, params, &w); err != nil {
		return 0, err
	}
	if w.NextTransactionCommitTimeMs == nil {
		return 0, fmt.Errorf("%s: %w after %d", OpGetNextTxCommitTime, ErrNoTransaction, fromCommitTime)
	}
	return *w.NextTransactionCommitTimeMs, nil
}

// GetTxIntervalCommitTime implements Client.
func (c *HTTPClient) GetTxIntervalCommitTime(ctx context.Context, fromNodeID, toNodeID int64) (iv CommitTimeInterval, err error) {
	ctx, span := StartSpan(ctx, OpGetTxIntervalCommitTime,
		attribute.Int64("tracking.from_node_id", fromNodeID),
		attribute.Int64("tracking.to_node_id", toNodeID),
	)
	start := time.Now()
	defer func() { c.finish(ctx, span, OpGetTxIntervalCommitTime, start, 1, err) }()

	params := url.Values{}
	params.Set(wire.ParamFromNodeID, strconv.FormatInt(fromNodeID, 10))
	params.Set(wire.ParamToNodeID, strconv.FormatInt(toNodeID, 10))

	var w wire.TransactionIntervalResponse
	if _, err := c.callOptional(ctx, OpGetTxIntervalCommitTime, wire.PathTransactionInterval, params, &w); err != nil {
		return iv, err
	}
	if w.MinTransactionCommitTimeMs == nil || w.MaxTransactionCommitTimeMs == nil {
		return iv, fmt.Errorf("%s: %w for nodes [%d, %d]", OpGetTxIntervalCommitTime, ErrNoTransaction, fromNodeID, toNodeID)
	}
	return CommitTimeInterval{
		MinCommitTimeMs: *w.MinTransactionCommitTimeMs,
		MaxCommitTimeMs: *w.MaxTransactionCommitTimeMs,
	}, nil
}

// send performs one request and returns the response with its URL. The caller
// owns the response body.
func (c *HTTPClient) send(ctx context.Context, op, method, path string, params url.Values, body any, header http.Header) (*http.Response, string, error) {
	if c.closed.Load() {
		return nil, "", fmt.Errorf("%s: %w", op, ErrClosed)
	}

	u := c.base.JoinPath(path)
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	target := u.String()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, target, fmt.Errorf("%s: encoding request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, target, fmt.Errorf("%s: building request: %w", op, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, target, fmt.Errorf("%s: %s %s: %w", op, method, target, err)
	}
	return resp, target, nil
}

// call sends a request expecting 200 and a JSON body decoded into out.
func (c *HTTPClient) call(ctx context.Context, op, method, path string, params url.Values, body, out any) (string, error) {
	resp, u, err := c.send(ctx, op, method, path, params, body, nil)
	if err != nil {
		return u, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return u, &UnexpectedStatusError{Op: op, URL: u, StatusCode: resp.StatusCode}
	}
	return u, c.decode(op, u, resp.Body, out)
}

// callOptional is call for methods a repository may not provide: any transport
// failure or non-200 status is a MethodUnreachableError.
func (c *HTTPClient) callOptional(ctx context.Context, op, path string, params url.Values, out any) (string, error) {
	resp, u, err := c.send(ctx, op, http.MethodGet, path, params, nil, nil)
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return u, err
		}
		return u, &MethodUnreachableError{Op: op, URL: u, Err: err}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return u, &MethodUnreachableError{Op: op, URL: u, StatusCode: resp.StatusCode}
	}
	return u, c.decode(op, u, resp.Body, out)
}

// decode reads one JSON document from body, recording it for diagnostics.
func (c *HTTPClient) decode(op, u string, body io.Reader, out any) error {
	r, snippet := c.diag.Wrap(body)
	if err := json.NewDecoder(r).Decode(out); err != nil {
		perr := &ParseError{Op: op, URL: u, Err: err}
		if c.diag.Enabled() {
			perr.Snippet = snippet.Collect()
		}
		c.logger.Error("malformed payload",
			zap.String("operation", op),
			zap.String("url", u),
			zap.String("data", snippet.Collect()),
			zap.Error(err),
		)
		return perr
	}
	if ce := c.logger.Check(logging.TraceLevel, "response body"); ce != nil {
		ce.Write(zap.String("operation", op), zap.String("url", u), zap.String("body", snippet.Collect()))
	}
	return nil
}

// finish ends the span and records metrics and the debug log line for a call.
func (c *HTTPClient) finish(ctx context.Context, span trace.Span, op string, start time.Time, records int, err error) {
	elapsed := time.Since(start)
	endSpan(span, err)
	c.metrics.RecordRequest(ctx, op, records, elapsed, err)
	if err != nil {
		c.logger.Debug("tracking request failed",
			zap.String("operation", op),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return
	}
	c.logger.Debug("tracking request",
		zap.String("operation", op),
		zap.Duration("duration", elapsed),
		zap.Int("records", records),
	)
}

func missing(op, u, field string) error {
	return &ParseError{Op: op, URL: u, Err: fmt.Errorf("missing %q", field)}
}

func setMaxResults(params url.Values, n int) {
	if n > 0 {
		params.Set(wire.ParamMaxResults, strconv.Itoa(n))
	}
}

func cursorAttrs(q CursorQuery) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Bool("tracking.time_range", q.TimeRange()),
		attribute.Int("tracking.max_results", q.MaxResults),
	}
	if q.MinID != nil {
		attrs = append(attrs, attribute.Int64("tracking.min_id", *q.MinID))
	}
	if q.FromCommitTime != nil {
		attrs = append(attrs, attribute.Int64("tracking.from_commit_time", *q.FromCommitTime))
	}
	return attrs
}

// drainAndClose discards a bounded remainder so the connection can be reused.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
