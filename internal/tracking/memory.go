package tracking

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fyrsmithlabs/repotrack/internal/dictionary"
	"github.com/fyrsmithlabs/repotrack/internal/property"
	"go.uber.org/zap"
)

// memoryURL is the URL reported in errors raised by MemoryRepository.
const memoryURL = "memory://repository"

// StoredContent is text content held by a MemoryRepository.
type StoredContent struct {
	Status             ContentStatus
	Text               []byte
	Modified           time.Time
	TransformException string
	TransformDuration  *time.Duration
}

type contentKey struct {
	nodeID int64
	prop   dictionary.QName
}

// MemoryRepository is an in-memory Client. It answers every operation from
// records added with its Put methods and is safe for concurrent use.
//
// SetFailure makes every operation fail with ErrInjectedFailure.
type MemoryRepository struct {
	mu            sync.RWMutex
	aclChangeSets map[int64]AclChangeSet
	acls          map[int64]Acl
	readers       map[int64]AclReaders
	transactions  map[int64]Transaction
	nodes         map[int64]Node
	metadata      map[int64]NodeMetaData
	content       map[contentKey]StoredContent
	models        map[dictionary.QName]Model
	lastShard     *ShardState

	logger  *zap.Logger
	failing atomic.Bool
	closed  atomic.Bool
}

// NewMemoryRepository returns an empty repository. A nil logger discards logs.
func NewMemoryRepository(logger *zap.Logger) *MemoryRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryRepository{
		aclChangeSets: make(map[int64]AclChangeSet),
		acls:          make(map[int64]Acl),
		readers:       make(map[int64]AclReaders),
		transactions:  make(map[int64]Transaction),
		nodes:         make(map[int64]Node),
		metadata:      make(map[int64]NodeMetaData),
		content:       make(map[contentKey]StoredContent),
		models:        make(map[dictionary.QName]Model),
		logger:        logger,
	}
}

// PutAclChangeSets stores change sets, replacing any with the same id.
func (r *MemoryRepository) PutAclChangeSets(sets ...AclChangeSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cs := range sets {
		r.aclChangeSets[cs.ID] = cs
	}
}

// PutAcls stores ACLs, replacing any with the same id.
func (r *MemoryRepository) PutAcls(acls ...Acl) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range acls {
		r.acls[a.ID] = a
	}
}

// PutAclReaders stores reader sets keyed by ACL id.
func (r *MemoryRepository) PutAclReaders(readers ...AclReaders) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ar := range readers {
		ar.Readers = slices.Clone(ar.Readers)
		ar.Denied = slices.Clone(ar.Denied)
		r.readers[ar.AclID] = ar
	}
}

// PutTransactions stores transactions, replacing any with the same id.
func (r *MemoryRepository) PutTransactions(txs ...Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range txs {
		r.transactions[tx.ID] = tx
	}
}

// PutNodes stores node change records, replacing any with the same id.
func (r *MemoryRepository) PutNodes(nodes ...Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range nodes {
		r.nodes[n.ID] = n
	}
}

// PutNodeMetaData stores node metadata, replacing any with the same id.
func (r *MemoryRepository) PutNodeMetaData(mds ...NodeMetaData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, md := range mds {
		r.metadata[md.ID] = cloneMetaData(md)
	}
}

// PutTextContent stores the content of a node property. A zero prop is the
// node's default content property.
func (r *MemoryRepository) PutTextContent(nodeID int64, prop dictionary.QName, c StoredContent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.Text = slices.Clone(c.Text)
	r.content[contentKey{nodeID: nodeID, prop: prop}] = c
}

// PutModel stores a model, replacing any with the same name.
func (r *MemoryRepository) PutModel(m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.Content = slices.Clone(m.Content)
	r.models[m.Name] = m
}

// RemoveModel deletes a model.
func (r *MemoryRepository) RemoveModel(name dictionary.QName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.models, name)
}

// SetFailure turns the failure switch on or off.
func (r *MemoryRepository) SetFailure(on bool) {
	r.failing.Store(on)
}

// LastShardState returns the shard state of the latest GetTransactions call.
func (r *MemoryRepository) LastShardState() *ShardState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastShard
}

// Close makes later calls fail with ErrClosed.
func (r *MemoryRepository) Close() error {
	r.closed.Store(true)
	return nil
}

func (r *MemoryRepository) check(ctx context.Context, op string) error {
	if r.closed.Load() {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}
	if r.failing.Load() {
		r.logger.Debug("injected failure", zap.String("operation", op))
		return fmt.Errorf("%s: %w", op, ErrInjectedFailure)
	}
	return ctx.Err()
}

// GetAclChangeSets implements Client.
func (r *MemoryRepository) GetAclChangeSets(ctx context.Context, q CursorQuery) (*AclChangeSets, error) {
	if err := r.check(ctx, OpGetAclChangeSets); err != nil {
		return nil, err
	}
	r.mu.RLock()
	page := selectPage(slices.Collect(maps.Values(r.aclChangeSets)), q)
	r.mu.RUnlock()

	out := &AclChangeSets{ChangeSets: page}
	out.MaxCommitTime, out.MaxID = pageWatermarks(page)
	return out, nil
}

// GetAcls implements Client.
func (r *MemoryRepository) GetAcls(ctx context.Context, changeSets []AclChangeSet, minAclID *int64, maxResults int) ([]Acl, error) {
	if err := r.check(ctx, OpGetAcls); err != nil {
		return nil, err
	}
	wanted := make(map[int64]struct{}, len(changeSets))
	for _, cs := range changeSets {
		wanted[cs.ID] = struct{}{}
	}

	r.mu.RLock()
	out := []Acl{}
	for _, a := range r.acls {
		if _, ok := wanted[a.AclChangeSetID]; !ok {
			continue
		}
		if minAclID != nil && a.ID < *minAclID {
			continue
		}
		out = append(out, a)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

// GetAclReaders implements Client.
func (r *MemoryRepository) GetAclReaders(ctx context.Context, acls []Acl) ([]AclReaders, error) {
	if err := r.check(ctx, OpGetAclReaders); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]AclReaders, 0, len(acls))
	for _, a := range acls {
		ar, ok := r.readers[a.ID]
		if !ok {
			return nil, fmt.Errorf("%s: %w: acl %d", OpGetAclReaders, ErrMissingAclReaders, a.ID)
		}
		ar.Readers = slices.Clone(ar.Readers)
		ar.Denied = slices.Clone(ar.Denied)
		out = append(out, ar)
	}
	return out, nil
}

// GetTransactions implements Client. The shard state is recorded but does not
// filter the page.
func (r *MemoryRepository) GetTransactions(ctx context.Context, q CursorQuery, shard *ShardState) (*Transactions, error) {
	if err := r.check(ctx, OpGetTransactions); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.lastShard = shard
	page := selectPage(slices.Collect(maps.Values(r.transactions)), q)
	r.mu.Unlock()

	out := &Transactions{Transactions: page}
	out.MaxCommitTime, out.MaxID = pageWatermarks(page)
	return out, nil
}

// GetNodes implements Client. Results are ordered by transaction then node id.
func (r *MemoryRepository) GetNodes(ctx context.Context, p GetNodesParameters, maxResults int) ([]Node, error) {
	if err := r.check(ctx, OpGetNodes); err != nil {
		return nil, err
	}
	var txns map[int64]struct{}
	if p.TransactionIDs != nil {
		txns = make(map[int64]struct{}, len(p.TransactionIDs))
		for _, id := range p.TransactionIDs {
			txns[id] = struct{}{}
		}
	}
	storePrefix := ""
	if p.StoreProtocol != "" || p.StoreIdentifier != "" {
		storePrefix = p.StoreProtocol + "://" + p.StoreIdentifier + "/"
	}

	r.mu.RLock()
	out := []Node{}
	for _, n := range r.nodes {
		if txns != nil {
			if _, ok := txns[n.TxnID]; !ok {
				continue
			}
		}
		if p.FromNodeID != nil && n.ID < *p.FromNodeID {
			continue
		}
		if p.ToNodeID != nil && n.ID > *p.ToNodeID {
			continue
		}
		if storePrefix != "" && !strings.HasPrefix(n.NodeRef, storePrefix) {
			continue
		}
		if !r.aspectsMatch(n.ID, p.IncludeAspects, p.ExcludeAspects) {
			continue
		}
		out = append(out, n)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].TxnID != out[j].TxnID {
			return out[i].TxnID < out[j].TxnID
		}
		return out[i].ID < out[j].ID
	})
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

// aspectsMatch applies include and exclude aspect filters using stored
// metadata. Nodes without metadata pass. The caller holds r.mu.
func (r *MemoryRepository) aspectsMatch(nodeID int64, include, exclude []dictionary.QName) bool {
	md, ok := r.metadata[nodeID]
	if !ok {
		return true
	}
	if len(include) > 0 && !slices.ContainsFunc(include, func(q dictionary.QName) bool {
		return slices.Contains(md.Aspects, q)
	}) {
		return false
	}
	return !slices.ContainsFunc(exclude, func(q dictionary.QName) bool {
		return slices.Contains(md.Aspects, q)
	})
}

// GetNodesMetaData implements Client. Explicit ids keep their order and unknown
// ids are skipped; a range is ordered by id.
func (r *MemoryRepository) GetNodesMetaData(ctx context.Context, p NodeMetaDataParameters) ([]NodeMetaData, error) {
	if err := r.check(ctx, OpGetNodesMetaData); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var selected []NodeMetaData
	if p.NodeIDs != nil {
		for _, id := range p.NodeIDs {
			if md, ok := r.metadata[id]; ok {
				selected = append(selected, md)
			}
		}
	} else {
		for _, md := range r.metadata {
			if p.FromNodeID != nil && md.ID < *p.FromNodeID {
				continue
			}
			if p.ToNodeID != nil && md.ID > *p.ToNodeID {
				continue
			}
			selected = append(selected, md)
		}
		sort.Slice(selected, func(i, j int) bool { return selected[i].ID < selected[j].ID })
	}
	if p.MaxResults != nil && *p.MaxResults > 0 && len(selected) > *p.MaxResults {
		selected = selected[:*p.MaxResults]
	}

	out := make([]NodeMetaData, 0, len(selected))
	for _, md := range selected {
		out = append(out, filterMetaData(cloneMetaData(md), p))
	}
	r.mu.RUnlock()
	return out, nil
}

// filterMetaData clears the fields p does not ask for. ID, TenantDomain and
// Ancestors are always returned.
func filterMetaData(md NodeMetaData, p NodeMetaDataParameters) NodeMetaData {
	if !p.IncludeAclID {
		md.AclID = nil
	}
	if !p.IncludeAspects {
		md.Aspects = nil
	}
	if !p.IncludeProperties {
		md.Properties = nil
	}
	if !p.IncludeChildAssociations {
		md.ChildAssocs = nil
	}
	if !p.IncludeParentAssociations {
		md.ParentAssocs = nil
		md.ParentAssocsCrc = nil
	}
	if !p.IncludeChildIDs {
		md.ChildIDs = nil
	}
	if !p.IncludePaths {
		md.Paths = nil
		md.NamePaths = nil
		md.AncestorPaths = nil
	}
	if !p.IncludeOwner {
		md.Owner = nil
	}
	if !p.IncludeNodeRef {
		md.NodeRef = nil
	}
	if !p.IncludeTxnID {
		md.TxnID = nil
	}
	if !p.IncludeType {
		md.Type = nil
	}
	return md
}

// GetTextContent implements Client. Unknown content yields a 404
// UnexpectedStatusError, as a repository would.
func (r *MemoryRepository) GetTextContent(ctx context.Context, nodeID int64, propertyQName dictionary.QName, modifiedSince *time.Time) (*TextContent, error) {
	if err := r.check(ctx, OpGetTextContent); err != nil {
		return nil, err
	}
	r.mu.RLock()
	c, ok := r.content[contentKey{nodeID: nodeID, prop: propertyQName}]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnexpectedStatusError{Op: OpGetTextContent, URL: memoryURL, StatusCode: http.StatusNotFound}
	}

	status := c.Status
	// If-Modified-Since has second precision.
	if status == ContentOK && modifiedSince != nil && !c.Modified.Truncate(time.Second).After(modifiedSince.Truncate(time.Second)) {
		status = ContentNotModified
	}

	var body io.ReadCloser
	if status == ContentOK {
		body = io.NopCloser(bytes.NewReader(c.Text))
	}
	tc := NewTextContent(status, body)
	_, tc.TransformStatus = StatusCodeFor(status)
	tc.TransformException = c.TransformException
	tc.TransformDuration = c.TransformDuration
	return tc, nil
}

// GetModelsDiff implements Client. Diffs are ordered by model name.
func (r *MemoryRepository) GetModelsDiff(ctx context.Context, models []ModelRef) ([]ModelDiff, error) {
	if err := r.check(ctx, OpGetModelsDiff); err != nil {
		return nil, err
	}
	held := make(map[dictionary.QName]int64, len(models))
	for _, m := range models {
		held[m.Name] = m.Checksum
	}

	r.mu.RLock()
	diffs := []ModelDiff{}
	for name, m := range r.models {
		newSum := m.Checksum
		old, ok := held[name]
		switch {
		case !ok:
			diffs = append(diffs, ModelDiff{Name: name, Type: ModelNew, NewChecksum: &newSum})
		case old != newSum:
			diffs = append(diffs, ModelDiff{Name: name, Type: ModelChanged, OldChecksum: &old, NewChecksum: &newSum})
		}
	}
	for name, old := range held {
		if _, ok := r.models[name]; !ok {
			diffs = append(diffs, ModelDiff{Name: name, Type: ModelRemoved, OldChecksum: &old})
		}
	}
	r.mu.RUnlock()

	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Name.String() < diffs[j].Name.String() })
	return diffs, nil
}

// GetModel implements Client.
func (r *MemoryRepository) GetModel(ctx context.Context, name dictionary.QName, expected *int64) (*Model, error) {
	if err := r.check(ctx, OpGetModel); err != nil {
		return nil, err
	}
	r.mu.RLock()
	m, ok := r.models[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnexpectedStatusError{Op: OpGetModel, URL: memoryURL, StatusCode: http.StatusNotFound}
	}
	if expected != nil && *expected != m.Checksum {
		return nil, &ChecksumMismatchError{Model: name, Expected: *expected, Actual: m.Checksum}
	}
	m.Content = slices.Clone(m.Content)
	return &m, nil
}

// GetNextTxCommitTime implements Client: the earliest commit time strictly
// after fromCommitTime.
func (r *MemoryRepository) GetNextTxCommitTime(ctx context.Context, fromCommitTime int64) (int64, error) {
	if err := r.check(ctx, OpGetNextTxCommitTime); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var next *int64
	for _, tx := range r.transactions {
		ct := tx.CommitTimeMs
		if ct > fromCommitTime && (next == nil || ct < *next) {
			next = &ct
		}
	}
	if next == nil {
		return 0, fmt.Errorf("%s: %w after %d", OpGetNextTxCommitTime, ErrNoTransaction, fromCommitTime)
	}
	return *next, nil
}

// GetTxIntervalCommitTime implements Client: the commit time span of the
// transactions that touched nodes fromNodeID..toNodeID inclusive.
func (r *MemoryRepository) GetTxIntervalCommitTime(ctx context.Context, fromNodeID, toNodeID int64) (CommitTimeInterval, error) {
	var iv CommitTimeInterval
	if err := r.check(ctx, OpGetTxIntervalCommitTime); err != nil {
		return iv, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	found := false
	for _, n := range r.nodes {
		if n.ID < fromNodeID || n.ID > toNodeID {
			continue
		}
		tx, ok := r.transactions[n.TxnID]
		if !ok {
			continue
		}
		if !found || tx.CommitTimeMs < iv.MinCommitTimeMs {
			iv.MinCommitTimeMs = tx.CommitTimeMs
		}
		if !found || tx.CommitTimeMs > iv.MaxCommitTimeMs {
			iv.MaxCommitTimeMs = tx.CommitTimeMs
		}
		found = true
	}
	if !found {
		return iv, fmt.Errorf("%s: %w for nodes [%d, %d]", OpGetTxIntervalCommitTime, ErrNoTransaction, fromNodeID, toNodeID)
	}
	return iv, nil
}

// cloneMetaData copies md so the result shares no mutable state with it.
func cloneMetaData(md NodeMetaData) NodeMetaData {
	md.TxnID = clonePtr(md.TxnID)
	md.AclID = clonePtr(md.AclID)
	md.NodeRef = clonePtr(md.NodeRef)
	md.Type = clonePtr(md.Type)
	md.ParentAssocsCrc = clonePtr(md.ParentAssocsCrc)
	md.Owner = clonePtr(md.Owner)
	md.Aspects = slices.Clone(md.Aspects)
	md.AncestorPaths = slices.Clone(md.AncestorPaths)
	md.Ancestors = slices.Clone(md.Ancestors)
	md.ParentAssocs = slices.Clone(md.ParentAssocs)
	md.ChildAssocs = slices.Clone(md.ChildAssocs)
	md.ChildIDs = slices.Clone(md.ChildIDs)
	if md.Paths != nil {
		paths := make([]Path, len(md.Paths))
		for i, p := range md.Paths {
			paths[i] = Path{Path: p.Path, QName: clonePtr(p.QName), APath: clonePtr(p.APath)}
		}
		md.Paths = paths
	}
	if md.NamePaths != nil {
		namePaths := make([][]string, len(md.NamePaths))
		for i, np := range md.NamePaths {
			namePaths[i] = slices.Clone(np)
		}
		md.NamePaths = namePaths
	}
	if md.Properties != nil {
		props := make(map[dictionary.QName]property.Value, len(md.Properties))
		for k, v := range md.Properties {
			props[k] = property.Clone(v)
		}
		md.Properties = props
	}
	return md
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
