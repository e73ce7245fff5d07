package provider

import (
	"errors"
	"fmt"

	"payflow/internal/config"
)

// ErrUnknownProvider is returned when a request names a provider that is
// not registered.
var ErrUnknownProvider = errors.New("unknown payment provider")

// Registry holds the configured provider adapters keyed by name.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from configuration. A provider with
// incomplete configuration is skipped rather than registered half-wired;
// callers asking for it get ErrUnknownProvider instead of a runtime
// panic deep inside a request.
func NewRegistry(qpay config.QPayConfig, card config.CardGateConfig) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter)}

	if qpay.BaseURL != "" {
		if qpay.Username == "" || qpay.Password == "" || qpay.InvoiceCode == "" {
			return nil, fmt.Errorf("qpay config incomplete: username, password and invoice code are required")
		}
		r.register(NewQPayAdapter(qpay))
	}

	if card.BaseURL != "" {
		if card.SecretKey == "" {
			return nil, fmt.Errorf("cardgate config incomplete: secret key is required")
		}
		r.register(NewCardGateAdapter(card))
	}

	if len(r.adapters) == 0 {
		return nil, errors.New("no payment provider configured")
	}
	return r, nil
}

// NewRegistryWith builds a registry from pre-built adapters.
func NewRegistryWith(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.register(a)
	}
	return r
}

func (r *Registry) register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Get returns the adapter for the given provider name.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return a, nil
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
