// Package registry wraps Consul service discovery for the pipeline
// services: TTL-checked registration with a heartbeat worker, healthy-only
// lookup, and client-side load balancing across instances.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/justinndidit/eventPipeline/internal/config"
	"github.com/rs/zerolog"
)

// Instance is one discovered service endpoint.
type Instance struct {
	ID      string
	Service string
	Host    string
	Port    int
	// Weight biases health_weighted selection; derived from the check
	// state at lookup time (passing > warning).
	Weight int
}

func (i Instance) Address() string {
	return fmt.Sprintf("%s:%d", i.Host, i.Port)
}

// Client registers this process in Consul and discovers peers.
type Client struct {
	consul    *api.Client
	logger    *zerolog.Logger
	serviceID string
	checkID   string
	refresh   time.Duration
	done      chan struct{}
}

func NewClient(cfg config.RegistryConfig, logger *zerolog.Logger) (*Client, error) {
	consulCfg := api.DefaultConfig()
	consulCfg.Address = cfg.Address()

	consul, err := api.NewClient(consulCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	return &Client{
		consul:  consul,
		logger:  logger,
		refresh: cfg.RefreshInterval,
		done:    make(chan struct{}),
	}, nil
}

// Register announces (name, port, tags, meta) with a TTL health check.
// The TTL is three refresh intervals; a stopped heartbeat marks the
// instance critical and Consul evicts it after the deregister grace.
func (c *Client) Register(name, host string, port int, tags []string, meta map[string]string) error {
	c.serviceID = fmt.Sprintf("%s-%s-%d", name, host, port)
	c.checkID = "ttl:" + c.serviceID

	ttl := 3 * c.refresh
	registration := &api.AgentServiceRegistration{
		ID:      c.serviceID,
		Name:    name,
		Address: host,
		Port:    port,
		Tags:    tags,
		Meta:    meta,
		Check: &api.AgentServiceCheck{
			CheckID:                        c.checkID,
			TTL:                            ttl.String(),
			DeregisterCriticalServiceAfter: (2 * ttl).String(),
		},
	}

	if err := c.consul.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("failed to register service %s: %w", name, err)
	}

	// First pass immediately, before the heartbeat loop starts.
	if err := c.consul.Agent().UpdateTTL(c.checkID, "registered", api.HealthPassing); err != nil {
		return fmt.Errorf("failed to pass initial TTL check: %w", err)
	}

	c.logger.Info().
		Str("service_id", c.serviceID).
		Str("ttl", ttl.String()).
		Msg("Registered with service registry")

	return nil
}

// StartHeartbeat refreshes the TTL check until ctx is cancelled or the
// client is deregistered.
func (c *Client) StartHeartbeat(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.refresh)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-ticker.C:
				if err := c.consul.Agent().UpdateTTL(c.checkID, "heartbeat", api.HealthPassing); err != nil {
					c.logger.Warn().Err(err).Msg("Failed to refresh registry TTL")
				}
			}
		}
	}()
}

// Deregister removes this instance and stops the heartbeat.
func (c *Client) Deregister() error {
	close(c.done)
	if c.serviceID == "" {
		return nil
	}
	if err := c.consul.Agent().ServiceDeregister(c.serviceID); err != nil {
		return fmt.Errorf("failed to deregister %s: %w", c.serviceID, err)
	}
	c.logger.Info().Str("service_id", c.serviceID).Msg("Deregistered from service registry")
	return nil
}

// Lookup returns instances with an active (passing or warning) check.
func (c *Client) Lookup(serviceName string) ([]Instance, error) {
	entries, _, err := c.consul.Health().Service(serviceName, "", false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", serviceName, err)
	}

	instances := make([]Instance, 0, len(entries))
	for _, entry := range entries {
		status := entry.Checks.AggregatedStatus()
		if status == api.HealthCritical {
			continue
		}
		weight := 1
		if status == api.HealthPassing {
			weight = 3
		}
		host := entry.Service.Address
		if host == "" {
			host = entry.Node.Address
		}
		instances = append(instances, Instance{
			ID:      entry.Service.ID,
			Service: serviceName,
			Host:    host,
			Port:    entry.Service.Port,
			Weight:  weight,
		})
	}

	return instances, nil
}

// LookupWithFallback tolerates transient empty results by returning the
// provided default endpoint.
func (c *Client) LookupWithFallback(serviceName string, fallback Instance) []Instance {
	instances, err := c.Lookup(serviceName)
	if err != nil || len(instances) == 0 {
		if err != nil {
			c.logger.Warn().Err(err).Str("service", serviceName).Msg("Registry lookup failed, using fallback endpoint")
		}
		return []Instance{fallback}
	}
	return instances
}
