package modelsync

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/goccy/go-yaml"
	"github.com/modelsync/modelsync/pkg/constants"
	"github.com/modelsync/modelsync/pkg/models"
	"golang.org/x/mod/semver"
)

// Snapshot is the complete serialized state of a document.
type Snapshot struct {
	Version string        `json:"version,omitempty" cbor:"version,omitempty"`
	Title   string        `json:"title" cbor:"title"`
	Roots   SnapshotRoots `json:"roots" cbor:"roots"`
}

type SnapshotRoots struct {
	RootIDs    []string    `json:"root_ids" cbor:"root_ids"`
	References []ModelJSON `json:"references" cbor:"references"`
}

// ToJSON serializes every attached model. Without includeDefaults only
// explicitly set attributes are written.
func (d *Document) ToJSON(includeDefaults bool) *Snapshot {
	rootIDs := make([]string, len(d.roots))
	for i, r := range d.roots {
		rootIDs[i] = r.ID()
	}
	return &Snapshot{
		Version: constants.Version,
		Title:   d.title,
		Roots: SnapshotRoots{
			RootIDs:    rootIDs,
			References: referencesJSON(d.allModels.Models(), includeDefaults),
		},
	}
}

func (d *Document) ToJSONString(includeDefaults bool) (string, error) {
	data, err := json.Marshal(d.ToJSON(includeDefaults))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromJSON builds a document from a snapshot. Model types are looked up in
// the registry given with WithRegistry.
func FromJSON(s *Snapshot, opts ...Option) (*Document, error) {
	d := NewDocument(opts...)
	d.logger.Debug("creating document from JSON")
	d.checkVersion(s.Version)

	table, err := instantiate(s.Roots.References, models.NewRefSet(), d.registry)
	if err != nil {
		return nil, err
	}
	if err := table.resolveAll(); err != nil {
		return nil, err
	}
	roots := make([]*models.Model, len(s.Roots.RootIDs))
	for i, id := range s.Roots.RootIDs {
		r, ok := table.lookup(id)
		if !ok {
			return nil, fmt.Errorf("%w: root %s", constants.ErrUnresolvedReference, id)
		}
		roots[i] = r
	}
	if err := table.initialize(); err != nil {
		return nil, err
	}

	err = d.Batch(func() error {
		for _, r := range roots {
			if err := d.AddRoot(r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.SetTitle(s.Title)
	return d, nil
}

func FromJSONString(s string, opts ...Option) (*Document, error) {
	var snap Snapshot
	if err := json.Unmarshal([]byte(s), &snap); err != nil {
		return nil, err
	}
	return FromJSON(&snap, opts...)
}

// FromYAML reads a snapshot written as YAML, as used for fixtures.
func FromYAML(data []byte, opts ...Option) (*Document, error) {
	js, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, err
	}
	return FromJSONString(string(js), opts...)
}

// ReplaceWithJSON replaces the content of d with the snapshot.
func (d *Document) ReplaceWithJSON(s *Snapshot) error {
	replacement, err := FromJSON(s, WithRegistry(d.registry), WithLogger(d.logger))
	if err != nil {
		return err
	}
	return replacement.DestructivelyMove(d)
}

// checkVersion warns when a peer runs a different release. Development
// builds, whose versions carry a pre-release or build suffix, never warn.
func (d *Document) checkVersion(peer string) {
	if peer == "" {
		return
	}
	versions := fmt.Sprintf("library versions: local (%s) / peer (%s)", constants.Version, peer)
	isDev := strings.ContainsAny(peer, "+-")
	if isDev || peer == constants.Version {
		d.logger.Debug(versions)
		return
	}

	relation := "different"
	if v := "v" + peer; semver.IsValid(v) {
		switch semver.Compare(v, "v"+constants.Version) {
		case -1:
			relation = "older"
		case 1:
			relation = "newer"
		}
	}
	d.logger.Warn("peer version mismatch", "relation", relation, "local", constants.Version, "peer", peer)
}
