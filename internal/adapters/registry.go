package adapters

import (
	"sync"

	apperrors "brokerbridge/internal/errors"
	"brokerbridge/internal/models"
)

var (
	registryMu sync.RWMutex
	registry   = map[models.BrokerProvider]func() SourceAdapter{}
)

// Register installs an adapter factory for a provider. Called from package
// init for the built-in adapters; calling it again for the same provider
// replaces the factory.
func Register(provider models.BrokerProvider, factory func() SourceAdapter) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[provider] = factory
}

// ForProvider returns a fresh adapter for the given provider, or
// UNKNOWN_PROVIDER when none is registered.
func ForProvider(provider models.BrokerProvider) (SourceAdapter, error) {
	registryMu.RLock()
	factory, ok := registry[provider]
	registryMu.RUnlock()
	if !ok {
		return nil, apperrors.WithMessage(apperrors.ErrUnknownProvider,
			"No adapter registered for provider "+string(provider))
	}
	return factory(), nil
}

func init() {
	Register(models.ProviderCSVImport, func() SourceAdapter { return &CSVAdapter{} })
	Register(models.ProviderEtrade, func() SourceAdapter { return NewEtradeAdapter() })
}
