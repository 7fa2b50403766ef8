package networks

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"herald/pkg/models"
)

// PublishInput is the adapted content handed to a network client.
type PublishInput struct {
	Content  string
	ImageURL string
}

// PublishResult carries the network's identifiers for the created post.
type PublishResult struct {
	PostID   string
	Metadata map[string]interface{}
}

// Publisher publishes adapted content to one network. Implementations do a
// single attempt per call; retry policy lives with the caller.
type Publisher interface {
	Network() models.Network
	Publish(ctx context.Context, input PublishInput) (*PublishResult, error)
}

// Registry maps networks to their publishers.
type Registry struct {
	publishers map[models.Network]Publisher
}

func NewRegistry(publishers ...Publisher) *Registry {
	r := &Registry{publishers: make(map[models.Network]Publisher)}
	for _, p := range publishers {
		r.publishers[p.Network()] = p
	}
	return r
}

// Register adds or replaces the publisher for a network.
func (r *Registry) Register(p Publisher) {
	r.publishers[p.Network()] = p
}

// Get returns the publisher for a network.
func (r *Registry) Get(network models.Network) (Publisher, error) {
	p, ok := r.publishers[network]
	if !ok {
		return nil, fmt.Errorf("no publisher registered for network %q", network)
	}
	return p, nil
}

// Networks lists the registered networks.
func (r *Registry) Networks() []models.Network {
	networks := make([]models.Network, 0, len(r.publishers))
	for _, n := range models.AllNetworks {
		if _, ok := r.publishers[n]; ok {
			networks = append(networks, n)
		}
	}
	return networks
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}
