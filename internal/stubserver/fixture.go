package stubserver

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fyrsmithlabs/repotrack/internal/dictionary"
	"github.com/fyrsmithlabs/repotrack/internal/property"
	"github.com/fyrsmithlabs/repotrack/internal/tracking"
	"github.com/fyrsmithlabs/repotrack/internal/wire"
	"gopkg.in/yaml.v3"
)

// Fixture is the YAML layout of a repository fixture file:
//
//	aclChangeSets:
//	  - {id: 1, commitTimeMs: 100, aclCount: 2}
//	acls:
//	  - {id: 11, aclChangeSetId: 1}
//	aclReaders:
//	  - {aclId: 11, readers: [GROUP_EVERYONE], aclChangeSetId: 1}
//	transactions:
//	  - {id: 1, commitTimeMs: 100, updates: 3}
//	nodes:
//	  - {id: 100, nodeRef: workspace://SpacesStore/a, txnId: 1, status: u}
//	metadata:
//	  - id: 100
//	    type: "{http://www.alfresco.org/model/content/1.0}content"
//	    properties:
//	      "{http://www.alfresco.org/model/content/1.0}title": [{locale: en, value: Hello}]
//	content:
//	  - {nodeId: 100, status: OK, text: hello, modified: 2026-01-02T03:04:05Z}
//	models:
//	  - {name: "{http://example.com/model}model", checksum: 42, content: "<model/>"}
//
// Metadata entries use the JSON field names of the metadata response; their
// properties are typed with the dictionary given to Load.
type Fixture struct {
	AclChangeSets []FixtureChangeSet   `yaml:"aclChangeSets"`
	Acls          []FixtureAcl         `yaml:"acls"`
	AclReaders    []FixtureAclReaders  `yaml:"aclReaders"`
	Transactions  []FixtureTransaction `yaml:"transactions"`
	Nodes         []FixtureNode        `yaml:"nodes"`
	Metadata      []map[string]any     `yaml:"metadata"`
	Content       []FixtureContent     `yaml:"content"`
	Models        []FixtureModel       `yaml:"models"`
}

type FixtureChangeSet struct {
	ID           int64 `yaml:"id"`
	CommitTimeMs int64 `yaml:"commitTimeMs"`
	AclCount     int   `yaml:"aclCount"`
}

type FixtureAcl struct {
	ID             int64 `yaml:"id"`
	AclChangeSetID int64 `yaml:"aclChangeSetId"`
}

type FixtureAclReaders struct {
	AclID          int64    `yaml:"aclId"`
	Readers        []string `yaml:"readers"`
	Denied         []string `yaml:"denied"`
	AclChangeSetID int64    `yaml:"aclChangeSetId"`
	TenantDomain   string   `yaml:"tenantDomain"`
}

type FixtureTransaction struct {
	ID           int64 `yaml:"id"`
	CommitTimeMs int64 `yaml:"commitTimeMs"`
	Updates      int64 `yaml:"updates"`
	Deletes      int64 `yaml:"deletes"`
}

// FixtureNode uses the wire status codes u, d, nu and nd.
type FixtureNode struct {
	ID                 int64   `yaml:"id"`
	NodeRef            string  `yaml:"nodeRef"`
	TxnID              int64   `yaml:"txnId"`
	Status             string  `yaml:"status"`
	Tenant             string  `yaml:"tenant"`
	AclID              int64   `yaml:"aclId"`
	ShardPropertyValue *string `yaml:"shardPropertyValue"`
	ExplicitShardID    *int    `yaml:"explicitShardId"`
}

// FixtureContent is the extracted text of a node property. An empty property
// is the default content property; an empty status is OK.
type FixtureContent struct {
	NodeID              int64     `yaml:"nodeId"`
	Property            string    `yaml:"property"`
	Status              string    `yaml:"status"`
	Text                string    `yaml:"text"`
	Modified            time.Time `yaml:"modified"`
	TransformException  string    `yaml:"transformException"`
	TransformDurationMs *int64    `yaml:"transformDurationMs"`
}

type FixtureModel struct {
	Name     string `yaml:"name"`
	Checksum int64  `yaml:"checksum"`
	Content  string `yaml:"content"`
}

// ParseFixture decodes a fixture document.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return &f, nil
}

// LoadFixtureFile reads a fixture file into repo.
func LoadFixtureFile(path string, repo *tracking.MemoryRepository, lookup dictionary.Lookup) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read fixture file: %w", err)
	}
	f, err := ParseFixture(data)
	if err != nil {
		return err
	}
	return f.Load(repo, lookup)
}

// Load stores the fixture's records in repo. Nothing is stored when an entry
// is invalid.
func (f *Fixture) Load(repo *tracking.MemoryRepository, lookup dictionary.Lookup) error {
	deser := property.NewDeserializer(lookup)

	mds := make([]tracking.NodeMetaData, 0, len(f.Metadata))
	for i, raw := range f.Metadata {
		md, err := metadataEntry(raw, deser)
		if err != nil {
			return fmt.Errorf("metadata %d: %w", i, err)
		}
		mds = append(mds, md)
	}

	type storedContent struct {
		nodeID int64
		prop   dictionary.QName
		c      tracking.StoredContent
	}
	contents := make([]storedContent, 0, len(f.Content))
	for i, c := range f.Content {
		var prop dictionary.QName
		if c.Property != "" {
			q, err := dictionary.ParseQName(c.Property)
			if err != nil {
				return fmt.Errorf("content %d: %w", i, err)
			}
			prop = q
		}
		status, err := parseContentStatus(c.Status)
		if err != nil {
			return fmt.Errorf("content %d: %w", i, err)
		}
		sc := tracking.StoredContent{
			Status:             status,
			Text:               []byte(c.Text),
			Modified:           c.Modified,
			TransformException: c.TransformException,
		}
		if c.TransformDurationMs != nil {
			d := time.Duration(*c.TransformDurationMs) * time.Millisecond
			sc.TransformDuration = &d
		}
		contents = append(contents, storedContent{nodeID: c.NodeID, prop: prop, c: sc})
	}

	models := make([]tracking.Model, 0, len(f.Models))
	for i, m := range f.Models {
		name, err := dictionary.ParseQName(m.Name)
		if err != nil {
			return fmt.Errorf("model %d: %w", i, err)
		}
		models = append(models, tracking.Model{Name: name, Checksum: m.Checksum, Content: []byte(m.Content)})
	}

	for _, cs := range f.AclChangeSets {
		repo.PutAclChangeSets(tracking.AclChangeSet(cs))
	}
	for _, a := range f.Acls {
		repo.PutAcls(tracking.Acl(a))
	}
	for _, r := range f.AclReaders {
		repo.PutAclReaders(tracking.AclReaders(r))
	}
	for _, tx := range f.Transactions {
		repo.PutTransactions(tracking.Transaction(tx))
	}
	for _, n := range f.Nodes {
		repo.PutNodes(tracking.Node{
			ID:                 n.ID,
			NodeRef:            n.NodeRef,
			TxnID:              n.TxnID,
			Status:             tracking.NodeStatusFromWire(n.Status),
			Tenant:             n.Tenant,
			AclID:              n.AclID,
			ShardPropertyValue: n.ShardPropertyValue,
			ExplicitShardID:    n.ExplicitShardID,
		})
	}
	repo.PutNodeMetaData(mds...)
	for _, c := range contents {
		repo.PutTextContent(c.nodeID, c.prop, c.c)
	}
	for _, m := range models {
		repo.PutModel(m)
	}
	return nil
}

// metadataEntry converts a YAML metadata entry through its wire form.
func metadataEntry(raw map[string]any, deser *property.Deserializer) (tracking.NodeMetaData, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return tracking.NodeMetaData{}, err
	}
	var w wire.NodeMetaData
	if err := json.Unmarshal(data, &w); err != nil {
		return tracking.NodeMetaData{}, err
	}
	return tracking.NodeMetaDataFromWire(w, deser)
}

func parseContentStatus(s string) (tracking.ContentStatus, error) {
	if s == "" {
		return tracking.ContentOK, nil
	}
	for _, st := range []tracking.ContentStatus{
		tracking.ContentOK,
		tracking.ContentNotModified,
		tracking.ContentNoTransform,
		tracking.ContentTransformFailed,
		tracking.ContentNoContent,
		tracking.ContentUnknown,
	} {
		if st.String() == s {
			return st, nil
		}
	}
	return tracking.ContentUnknown, fmt.Errorf("unknown content status %q", s)
}
