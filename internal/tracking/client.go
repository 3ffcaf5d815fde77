// Package tracking implements the change tracking client used by an indexer to
// follow a content repository: ACL change sets, transactions, node changes, node
// metadata, extracted text and model changes.
//
// Every operation is one synchronous round trip. Clients keep no cursor state;
// callers carry their own high-water marks (see Watermark).
package tracking

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/repotrack/internal/dictionary"
)

// Client is the change tracking protocol. HTTPClient talks to a repository;
// MemoryRepository answers from memory with the same semantics.
type Client interface {
	// GetAclChangeSets returns a page of ACL change sets.
	GetAclChangeSets(ctx context.Context, q CursorQuery) (*AclChangeSets, error)

	// GetAcls returns the ACLs of changeSets with id >= minAclID (nil for no bound),
	// ordered by id and capped at maxResults (<= 0 for no cap).
	GetAcls(ctx context.Context, changeSets []AclChangeSet, minAclID *int64, maxResults int) ([]Acl, error)

	// GetAclReaders returns one AclReaders per ACL, in input order.
	GetAclReaders(ctx context.Context, acls []Acl) ([]AclReaders, error)

	// GetTransactions returns a page of transactions, filtered for shard when non-nil.
	GetTransactions(ctx context.Context, q CursorQuery, shard *ShardState) (*Transactions, error)

	// GetNodes returns the node change records selected by p.
	GetNodes(ctx context.Context, p GetNodesParameters, maxResults int) ([]Node, error)

	// GetNodesMetaData returns node metadata limited to the fields p includes.
	GetNodesMetaData(ctx context.Context, p NodeMetaDataParameters) ([]NodeMetaData, error)

	// GetTextContent returns the extracted text of a node property. A zero
	// propertyQName selects the default content property. The result must be closed.
	GetTextContent(ctx context.Context, nodeID int64, propertyQName dictionary.QName, modifiedSince *time.Time) (*TextContent, error)

	// GetModelsDiff compares the given models with the repository's.
	GetModelsDiff(ctx context.Context, models []ModelRef) ([]ModelDiff, error)

	// GetModel fetches a model definition. When expected is non-nil the
	// returned checksum must equal it.
	GetModel(ctx context.Context, name dictionary.QName, expected *int64) (*Model, error)

	// GetNextTxCommitTime returns the first commit time strictly after fromCommitTime.
	GetNextTxCommitTime(ctx context.Context, fromCommitTime int64) (int64, error)

	// GetTxIntervalCommitTime returns the commit time span of transactions
	// touching nodes in [fromNodeID, toNodeID].
	GetTxIntervalCommitTime(ctx context.Context, fromNodeID, toNodeID int64) (CommitTimeInterval, error)

	// Close releases the client's resources.
	Close() error
}
