package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"planora/internal/services/gateway/esewa"
	"planora/internal/services/gateway/khalti"
)

// Factory implements GatewayFactory.
type Factory struct{}

// NewFactory creates a new gateway factory.
func NewFactory() *Factory {
	return &Factory{}
}

// CreateGateway creates a gateway instance based on provider type and configuration.
func (f *Factory) CreateGateway(ctx context.Context, provider Provider, config interface{}) (Gateway, error) {
	switch provider {
	case ProviderESewa:
		esewaConfig, ok := config.(*esewa.Config)
		if !ok {
			return nil, fmt.Errorf("invalid eSewa config type, expected *esewa.Config")
		}
		return NewESewaAdapter(esewaConfig), nil

	case ProviderKhalti:
		khaltiConfig, ok := config.(*khalti.Config)
		if !ok {
			return nil, fmt.Errorf("invalid Khalti config type, expected *khalti.Config")
		}
		return NewKhaltiAdapter(ctx, khaltiConfig)

	default:
		return nil, fmt.Errorf("unsupported gateway provider: %s", provider)
	}
}

// GetSupportedProviders returns list of supported gateway providers.
func (f *Factory) GetSupportedProviders() []Provider {
	return []Provider{
		ProviderESewa,
		ProviderKhalti,
	}
}

// Registry manages multiple gateway instances.
type Registry struct {
	gateways map[Provider]Gateway
	factory  GatewayFactory
	primary  Provider
}

// NewRegistry creates a new gateway registry.
func NewRegistry(factory GatewayFactory) *Registry {
	return &Registry{
		gateways: make(map[Provider]Gateway),
		factory:  factory,
	}
}

// Register registers a gateway instance.
func (r *Registry) Register(ctx context.Context, provider Provider, config interface{}) error {
	gw, err := r.factory.CreateGateway(ctx, provider, config)
	if err != nil {
		return fmt.Errorf("failed to create %s gateway: %w", provider, err)
	}

	r.gateways[provider] = gw

	// Set first registered gateway as primary
	if r.primary == "" {
		r.primary = provider
	}

	return nil
}

// Get returns a gateway instance by provider.
func (r *Registry) Get(provider Provider) (Gateway, error) {
	gw, exists := r.gateways[provider]
	if !exists {
		return nil, fmt.Errorf("gateway provider %s not registered", provider)
	}
	return gw, nil
}

// GetPrimary returns the primary gateway instance.
func (r *Registry) GetPrimary() (Gateway, error) {
	if r.primary == "" {
		return nil, fmt.Errorf("no primary gateway configured")
	}
	return r.Get(r.primary)
}

// SetPrimary sets the primary gateway provider.
func (r *Registry) SetPrimary(provider Provider) error {
	if _, exists := r.gateways[provider]; !exists {
		return fmt.Errorf("gateway provider %s not registered", provider)
	}
	r.primary = provider
	return nil
}

// Available returns the registered gateway providers.
func (r *Registry) Available() []Provider {
	providers := make([]Provider, 0, len(r.gateways))
	for provider := range r.gateways {
		providers = append(providers, provider)
	}
	return providers
}

// Close gracefully closes all gateway connections.
func (r *Registry) Close(ctx context.Context) error {
	for provider, gw := range r.gateways {
		if err := gw.Close(ctx); err != nil {
			slog.Error("error closing gateway", "provider", provider, "error", err)
		}
	}
	return nil
}
