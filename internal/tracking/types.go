package tracking

import (
	"io"
	"sync"
	"time"

	"github.com/fyrsmithlabs/repotrack/internal/dictionary"
	"github.com/fyrsmithlabs/repotrack/internal/property"
)

// ChangeSet is the common view of ACL change sets and transactions.
type ChangeSet interface {
	GetID() int64
	GetCommitTimeMs() int64
	// Count is the number of changed entities: ACLs for a change set, updates
	// plus deletes for a transaction.
	Count() int64
}

// AclChangeSet is a batch of ACL changes committed together.
type AclChangeSet struct {
	ID           int64
	CommitTimeMs int64
	AclCount     int
}

func (c AclChangeSet) GetID() int64           { return c.ID }
func (c AclChangeSet) GetCommitTimeMs() int64 { return c.CommitTimeMs }
func (c AclChangeSet) Count() int64           { return int64(c.AclCount) }

// Transaction is a batch of node changes committed together.
type Transaction struct {
	ID           int64
	CommitTimeMs int64
	Updates      int64
	Deletes      int64
}

func (t Transaction) GetID() int64           { return t.ID }
func (t Transaction) GetCommitTimeMs() int64 { return t.CommitTimeMs }
func (t Transaction) Count() int64           { return t.Updates + t.Deletes }

// AclChangeSets is one page of ACL change sets.
type AclChangeSets struct {
	ChangeSets []AclChangeSet
	// MaxCommitTime and MaxID are the watermarks reported with the page.
	// nil when the server did not report them.
	MaxCommitTime *int64
	MaxID         *int64
}

// Transactions is one page of transactions.
type Transactions struct {
	Transactions  []Transaction
	MaxCommitTime *int64
	MaxID         *int64
}

// CursorQuery selects a page of change sets or transactions.
//
// With both commit-time bounds nil the query is in id-range mode:
// MinID <= id < MaxID, ordered by id. Otherwise it is in time-range mode:
// FromCommitTime <= commitTime <= ToCommitTime with nil bounds open, ordered by
// commit time then id. MaxResults <= 0 leaves the page size to the server.
type CursorQuery struct {
	FromCommitTime *int64
	MinID          *int64
	ToCommitTime   *int64
	MaxID          *int64
	MaxResults     int
}

// TimeRange reports whether q is in time-range mode.
func (q CursorQuery) TimeRange() bool {
	return q.FromCommitTime != nil || q.ToCommitTime != nil
}

// Acl is an access control list touched by a change set.
type Acl struct {
	ID             int64
	AclChangeSetID int64
}

// AclReaders is the resolved authority set of an ACL.
type AclReaders struct {
	AclID          int64
	Readers        []string
	Denied         []string
	AclChangeSetID int64
	// TenantDomain is empty for the default domain.
	TenantDomain string
}

// ShardState describes the requesting shard so the repository can filter
// transactions down to what the shard owns.
type ShardState struct {
	BaseURL         string
	HostName        string
	Port            int
	Template        string
	Instance        int
	NumberOfShards  int
	StoreRefs       []string
	Master          bool
	HasContent      bool
	ShardMethod     string
	FlocProperties  map[string]string
	StateProperties map[string]string

	LastUpdated                    int64
	LastIndexedChangeSetCommitTime int64
	LastIndexedChangeSetID         int64
	LastIndexedTxCommitTime        int64
	LastIndexedTxID                int64
}

// NodeStatus is the change kind of a node in a transaction.
type NodeStatus int

const (
	NodeStatusUnknown NodeStatus = iota
	NodeStatusUpdated
	NodeStatusDeleted
	NodeStatusNonShardUpdated
	NodeStatusNonShardDeleted
)

// String returns the status name.
func (s NodeStatus) String() string {
	switch s {
	case NodeStatusUpdated:
		return "updated"
	case NodeStatusDeleted:
		return "deleted"
	case NodeStatusNonShardUpdated:
		return "non_shard_updated"
	case NodeStatusNonShardDeleted:
		return "non_shard_deleted"
	default:
		return "unknown"
	}
}

// Node is a node change record.
type Node struct {
	ID                 int64
	NodeRef            string
	TxnID              int64
	Status             NodeStatus
	Tenant             string
	AclID              int64
	ShardPropertyValue *string
	ExplicitShardID    *int
}

// GetNodesParameters selects node change records.
type GetNodesParameters struct {
	TransactionIDs  []int64
	FromNodeID      *int64
	ToNodeID        *int64
	IncludeAspects  []dictionary.QName
	ExcludeAspects  []dictionary.QName
	StoreProtocol   string
	StoreIdentifier string
	ShardProperty   *dictionary.QName
	CoreName        string
}

// NodeMetaDataParameters selects nodes and the metadata fields to return.
type NodeMetaDataParameters struct {
	NodeIDs    []int64
	FromNodeID *int64
	ToNodeID   *int64
	MaxResults *int

	IncludeAclID              bool
	IncludeAspects            bool
	IncludeProperties         bool
	IncludeChildAssociations  bool
	IncludeParentAssociations bool
	IncludeChildIDs           bool
	IncludePaths              bool
	IncludeOwner              bool
	IncludeNodeRef            bool
	IncludeTxnID              bool
	IncludeType               bool
}

// NewNodeMetaDataParameters returns parameters with every include flag set.
func NewNodeMetaDataParameters() NodeMetaDataParameters {
	return NodeMetaDataParameters{
		IncludeAclID:              true,
		IncludeAspects:            true,
		IncludeProperties:         true,
		IncludeChildAssociations:  true,
		IncludeParentAssociations: true,
		IncludeChildIDs:           true,
		IncludePaths:              true,
		IncludeOwner:              true,
		IncludeNodeRef:            true,
		IncludeTxnID:              true,
		IncludeType:               true,
	}
}

// Path is one primary or secondary path of a node. APath is the path of
// ancestor node ids, when the repository sent one.
type Path struct {
	Path  string
	QName *dictionary.QName
	APath *string
}

// NodeMetaData is the rich metadata of a node. Fields not requested, or not
// returned, are nil.
type NodeMetaData struct {
	ID              int64
	TenantDomain    string
	TxnID           *int64
	AclID           *int64
	NodeRef         *string
	Type            *dictionary.QName
	Aspects         []dictionary.QName
	Properties      map[dictionary.QName]property.Value
	Paths           []Path
	NamePaths       [][]string
	// AncestorPaths lists the APath of every path that has one, in order.
	AncestorPaths   []string
	Ancestors       []string
	ParentAssocs    []string
	ParentAssocsCrc *int64
	ChildAssocs     []string
	ChildIDs        []int64
	Owner           *string
}

// ContentStatus is the outcome of a text content request.
type ContentStatus int

const (
	ContentOK ContentStatus = iota
	ContentNotModified
	ContentNoTransform
	ContentTransformFailed
	ContentNoContent
	ContentUnknown
)

// String returns the status name.
func (s ContentStatus) String() string {
	switch s {
	case ContentOK:
		return "OK"
	case ContentNotModified:
		return "NOT_MODIFIED"
	case ContentNoTransform:
		return "NO_TRANSFORM"
	case ContentTransformFailed:
		return "TRANSFORM_FAILED"
	case ContentNoContent:
		return "NO_CONTENT"
	default:
		return "UNKNOWN"
	}
}

// TextContent is the extracted text of a node property. The caller must Close it.
type TextContent struct {
	Status             ContentStatus
	TransformStatus    string
	TransformException string
	TransformDuration  *time.Duration
	ContentEncoding    string

	body      io.ReadCloser
	closeOnce sync.Once
	closeErr  error
}

// NewTextContent returns a TextContent reading from body. A nil body reads as empty.
func NewTextContent(status ContentStatus, body io.ReadCloser) *TextContent {
	if body == nil {
		body = io.NopCloser(eofReader{})
	}
	return &TextContent{Status: status, body: body}
}

// Read implements io.Reader.
func (t *TextContent) Read(p []byte) (int, error) {
	return t.body.Read(p)
}

// Close releases the underlying body. It is safe to call more than once.
func (t *TextContent) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.body.Close()
	})
	return t.closeErr
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// ModelRef identifies a model version held by the client.
type ModelRef struct {
	Name     dictionary.QName
	Checksum int64
}

// Model is a model definition fetched from the repository.
type Model struct {
	Name     dictionary.QName
	Checksum int64
	Content  []byte
}

// ModelDiffType is the kind of change to a model.
type ModelDiffType string

const (
	ModelNew     ModelDiffType = "NEW"
	ModelChanged ModelDiffType = "CHANGED"
	ModelRemoved ModelDiffType = "REMOVED"
)

// ModelDiff is a change between the client's models and the repository's.
type ModelDiff struct {
	Name        dictionary.QName
	Type        ModelDiffType
	OldChecksum *int64
	NewChecksum *int64
}

// CommitTimeInterval is the commit time span of a node id range.
type CommitTimeInterval struct {
	MinCommitTimeMs int64
	MaxCommitTimeMs int64
}
