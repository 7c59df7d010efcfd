package console

import (
	"errors"
	"fmt"
	"iter"
	"sort"
)

var (
	ErrDuplicateService = errors.New("console: service id already registered")
	ErrSealed           = errors.New("console: registry sealed")
	ErrNilSubscription  = errors.New("console: subscription is nil")
	ErrNoCapability     = errors.New("console: subscription handles neither typed nor text commands")
	ErrReservedService  = errors.New("console: service id 0 is reserved")
)

// ServiceInfo describes one registered subscription.
type ServiceInfo struct {
	ID    ServiceID `json:"id"`
	Name  string    `json:"name"`
	Typed bool      `json:"typed"`
	Text  bool      `json:"text"`
}

type registration struct {
	id    ServiceID
	name  string
	typed TypedHandler
	text  TextHandler
}

// Registry maps ServiceIDs to subscriptions. It is filled at build time and
// sealed before any session reads it; after Seal it is immutable and safe
// for concurrent readers without locking. Register is not safe for
// concurrent use.
type Registry struct {
	byID   map[ServiceID]*registration
	order  []*registration
	text   []*registration
	sealed bool
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[ServiceID]*registration)}
}

// Register binds sub to id. Failures are returned as *ConfigError.
func (r *Registry) Register(id ServiceID, sub Subscription) error {
	field := fmt.Sprintf("subscriptions[%s]", id)
	if r.sealed {
		return &ConfigError{Field: field, Reason: "registry sealed", Err: ErrSealed}
	}
	if id == 0 {
		return &ConfigError{Field: field, Reason: "reserved id", Err: ErrReservedService}
	}
	if sub == nil {
		return &ConfigError{Field: field, Reason: "nil subscription", Err: ErrNilSubscription}
	}
	if _, ok := r.byID[id]; ok {
		return &ConfigError{Field: field, Reason: "duplicate service id", Err: ErrDuplicateService}
	}

	reg := &registration{id: id, name: id.String()}
	reg.typed, _ = sub.(TypedHandler)
	reg.text, _ = sub.(TextHandler)
	if reg.typed == nil && reg.text == nil {
		return &ConfigError{Field: field, Reason: fmt.Sprintf("%T has no handler capability", sub), Err: ErrNoCapability}
	}
	if named, ok := sub.(Named); ok && named.Name() != "" {
		reg.name = named.Name()
	}

	r.byID[id] = reg
	r.order = append(r.order, reg)
	if reg.text != nil {
		r.text = append(r.text, reg)
	}
	return nil
}

// Seal freezes the registry. Further Register calls fail with ErrSealed.
func (r *Registry) Seal() {
	r.sealed = true
}

func (r *Registry) Sealed() bool {
	return r.sealed
}

func (r *Registry) Len() int {
	return len(r.order)
}

// ResolveTyped returns the typed handler bound to id.
func (r *Registry) ResolveTyped(id ServiceID) (TypedHandler, bool) {
	reg, ok := r.byID[id]
	if !ok || reg.typed == nil {
		return nil, false
	}
	return reg.typed, true
}

// ResolveText yields text-capable handlers in registration order.
func (r *Registry) ResolveText() iter.Seq2[ServiceID, TextHandler] {
	return func(yield func(ServiceID, TextHandler) bool) {
		for _, reg := range r.text {
			if !yield(reg.id, reg.text) {
				return
			}
		}
	}
}

// NameOf returns the display name registered for id.
func (r *Registry) NameOf(id ServiceID) string {
	if reg, ok := r.byID[id]; ok {
		return reg.name
	}
	return id.String()
}

// Services returns deterministic metadata ordering by id.
func (r *Registry) Services() []ServiceInfo {
	list := make([]ServiceInfo, 0, len(r.order))
	for _, reg := range r.order {
		list = append(list, ServiceInfo{
			ID:    reg.id,
			Name:  reg.name,
			Typed: reg.typed != nil,
			Text:  reg.text != nil,
		})
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list
}
