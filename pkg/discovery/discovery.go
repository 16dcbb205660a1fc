package discovery

import (
	"context"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/example/storefront/pkg/config"
)

// Registry announces the storefront instance in etcd so edge proxies can
// find it. Registration is lease-based; the instance disappears from the
// registry within the lease TTL after a crash.
type Registry struct {
	client *clientv3.Client
	config *config.EtcdConfig
}

type Instance struct {
	Name string
	Host string
	Port int
}

func NewRegistry(cfg *config.EtcdConfig) (*Registry, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	return &Registry{
		client: cli,
		config: cfg,
	}, nil
}

func (r *Registry) Register(ctx context.Context, instance *Instance) error {
	key := instanceKey(r.config.Prefix, instance)
	value := fmt.Sprintf("%s:%d", instance.Host, instance.Port)

	lease, err := r.client.Grant(ctx, 30)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	_, err = r.client.Put(ctx, key, value, clientv3.WithLease(lease.ID))
	if err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	ch, kaerr := r.client.KeepAlive(ctx, lease.ID)
	if kaerr != nil {
		return fmt.Errorf("failed to keep alive: %w", kaerr)
	}

	go func() {
		for ka := range ch {
			_ = ka
		}
	}()

	return nil
}

func (r *Registry) Deregister(ctx context.Context, instance *Instance) error {
	key := instanceKey(r.config.Prefix, instance)
	_, err := r.client.Delete(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}
	return nil
}

func (r *Registry) Close() error {
	return r.client.Close()
}

func instanceKey(prefix string, instance *Instance) string {
	return fmt.Sprintf("%s%s/%s:%d", prefix, instance.Name, instance.Host, instance.Port)
}
