package factory

import (
	"github.com/inercia/go-llm-eval/pkg/llm"
	"github.com/inercia/go-llm-eval/pkg/providerwrap"
	"github.com/inercia/go-llm-eval/pkg/ratelimit"
)

// CreateDispatchedClient builds a provider client the same way CreateClient
// does, then wraps it with providerwrap.Wrap so every call is routed
// through registry's per-provider slot queue and retry policy. The
// provider identity registry uses is derived from config (provider name
// as ID, provider/model as the human-readable label).
func (f *Factory) CreateDispatchedClient(config llm.ClientConfig, registry *ratelimit.RateLimitRegistry) (llm.Client, error) {
	client, err := f.CreateClient(config)
	if err != nil {
		return nil, err
	}

	provider := config.Provider
	if provider == "" {
		provider = DefaultProvider
	}

	id := ratelimit.ProviderID{
		ID:    provider,
		Label: provider + "/" + config.Model,
	}

	return providerwrap.Wrap(client, registry, id), nil
}
