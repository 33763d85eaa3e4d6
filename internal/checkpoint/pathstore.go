package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dgallion1/chunkgate/internal/pathstore"
)

const pathstorePrefix = "chunkgate/checkpoints"

// PathstoreStore keeps checkpoints as nodes in a pathstore service.
type PathstoreStore struct {
	client *pathstore.Client
	prefix string
}

func NewPathstoreStore(client *pathstore.Client, prefix string) *PathstoreStore {
	if prefix == "" {
		prefix = pathstorePrefix
	}
	return &PathstoreStore{client: client, prefix: prefix}
}

func (p *PathstoreStore) key(docID string) string {
	return p.prefix + "/" + Key(docID)
}

func (p *PathstoreStore) Load(ctx context.Context, docID string) (*State, error) {
	node, err := p.client.GetNode(ctx, p.key(docID))
	if err != nil || node == nil {
		return nil, err
	}
	return decodeNode(node)
}

func (p *PathstoreStore) Save(ctx context.Context, s *State) error {
	prev, err := p.Load(ctx, s.DocumentID)
	if err != nil {
		return err
	}
	if err := checkForward(prev, s); err != nil {
		return err
	}
	return p.client.PutNode(ctx, p.key(s.DocumentID), pathstore.NodeRequest{
		Value:     s,
		MergeMode: "replace",
		Source:    "chunkgate",
	})
}

func (p *PathstoreStore) Delete(ctx context.Context, docID string) error {
	return p.client.DeleteNode(ctx, p.key(docID))
}

func (p *PathstoreStore) List(ctx context.Context) ([]State, error) {
	nodes, err := p.client.ListChildren(ctx, p.prefix, 0)
	if err != nil {
		return nil, err
	}
	out := make([]State, 0, len(nodes))
	for i := range nodes {
		s, err := decodeNode(&nodes[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out, nil
}

func (p *PathstoreStore) Close() error {
	p.client.Close()
	return nil
}

func decodeNode(node *pathstore.Node) (*State, error) {
	var s State
	if err := json.Unmarshal(node.Value, &s); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", node.Key, err)
	}
	return &s, nil
}
