package deposit

import (
	"sync"

	"github.com/solfortune/custody-service/internal/domain/entities"
)

// AddressRegistry is the in-memory set of addresses the webhook parser cares
// about: the hot wallet plus every active deposit address. Loaded at startup,
// appended on address creation. Deactivating an address must call Remove as
// well, the set has no other eviction.
type AddressRegistry struct {
	mu        sync.RWMutex
	addresses map[entities.Chain]map[string]struct{}
}

// NewAddressRegistry creates an empty registry
func NewAddressRegistry() *AddressRegistry {
	return &AddressRegistry{
		addresses: make(map[entities.Chain]map[string]struct{}),
	}
}

// Add registers an address for a chain
func (r *AddressRegistry) Add(chain entities.Chain, address string) {
	if address == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.addresses[chain]
	if !ok {
		set = make(map[string]struct{})
		r.addresses[chain] = set
	}
	set[address] = struct{}{}
}

// Remove unregisters an address, for deactivation
func (r *AddressRegistry) Remove(chain entities.Chain, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.addresses[chain]; ok {
		delete(set, address)
	}
}

// Contains reports whether an address is monitored on a chain
func (r *AddressRegistry) Contains(chain entities.Chain, address string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.addresses[chain]
	if !ok {
		return false
	}
	_, found := set[address]
	return found
}

// Size returns the number of monitored addresses on a chain
func (r *AddressRegistry) Size(chain entities.Chain) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.addresses[chain])
}
