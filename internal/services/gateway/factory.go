package gateway

import (
	"context"
	"fmt"
	"log"

	"tickethub/internal/services/gateway/psebank"
	"tickethub/internal/services/gateway/stripepay"
)

// DefaultFactory implements Factory for the built-in providers.
type DefaultFactory struct{}

func NewFactory() *DefaultFactory {
	return &DefaultFactory{}
}

// CreateGateway creates a gateway instance based on provider type and configuration
func (f *DefaultFactory) CreateGateway(ctx context.Context, provider Provider, config any) (Gateway, error) {
	switch provider {
	case ProviderStripePay:
		cfg, ok := config.(*stripepay.Config)
		if !ok {
			return nil, fmt.Errorf("invalid stripepay config type, expected *stripepay.Config")
		}
		return NewStripePayAdapter(ctx, cfg)

	case ProviderPSEBank:
		cfg, ok := config.(*psebank.Config)
		if !ok {
			return nil, fmt.Errorf("invalid psebank config type, expected *psebank.Config")
		}
		return NewPSEBankAdapter(ctx, cfg)

	default:
		return nil, fmt.Errorf("unsupported gateway provider: %s", provider)
	}
}

// GetSupportedProviders returns list of supported gateway providers
func (f *DefaultFactory) GetSupportedProviders() []Provider {
	return []Provider{
		ProviderStripePay,
		ProviderPSEBank,
	}
}

// Registry manages the configured gateway instances and maps payment
// methods to the provider that serves them.
type Registry struct {
	gateways map[Provider]Gateway
	methods  map[string]Provider
	factory  Factory
}

func NewRegistry(factory Factory) *Registry {
	return &Registry{
		gateways: make(map[Provider]Gateway),
		methods:  make(map[string]Provider),
		factory:  factory,
	}
}

// Register creates and registers a gateway instance for the given payment
// methods (e.g. "card" -> stripepay, "pse" -> psebank).
func (r *Registry) Register(ctx context.Context, provider Provider, config any, methods ...string) error {
	gw, err := r.factory.CreateGateway(ctx, provider, config)
	if err != nil {
		return fmt.Errorf("failed to create %s gateway: %w", provider, err)
	}

	r.gateways[provider] = gw
	for _, method := range methods {
		r.methods[method] = provider
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

// ByMethod returns the gateway that serves the given payment method.
func (r *Registry) ByMethod(method string) (Gateway, error) {
	provider, exists := r.methods[method]
	if !exists {
		return nil, fmt.Errorf("no gateway registered for payment method %q", method)
	}
	return r.Get(provider)
}

// Providers returns the registered provider types.
func (r *Registry) Providers() []Provider {
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
			// Log and continue closing the rest.
			log.Printf("Error closing %s gateway: %v", provider, err)
		}
	}
	return nil
}
