package main

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/imattdu/orbitrace/tracex"
)

var errCustomerNotFound = errors.New("customer not found")

type Customer struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
}

// customerStore 进程内存储
type customerStore struct {
	mu        sync.RWMutex
	customers map[string]Customer
}

func newCustomerStore() *customerStore {
	return &customerStore{customers: make(map[string]Customer)}
}

func (s *customerStore) put(c Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
}

func (s *customerStore) replace(c Customer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[c.ID]; !ok {
		return false
	}
	s.customers[c.ID] = c
	return true
}

func (s *customerStore) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[id]; !ok {
		return false
	}
	delete(s.customers, id)
	return true
}

func (s *customerStore) get(id string) (Customer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	return c, ok
}

// controller 每个方法在当前请求 span 下开一个子 span
type controller struct {
	tracer *tracex.Tracer
	store  *customerStore
}

func newController(tracer *tracex.Tracer, store *customerStore) *controller {
	return &controller{tracer: tracer, store: store}
}

// childOptions 以 ctx 中的请求 span 为父，子 span 总是采样，并在父 span 上记一条 controller 标注
func (ctl *controller) childOptions(ctx context.Context, name string) []tracex.StartOption {
	parent := tracex.SpanFromContext(ctx)
	parent.AddAnnotation("controller", map[string]string{"method": name})
	return []tracex.StartOption{
		tracex.WithParent(parent),
		tracex.WithSpanSampler(tracex.AlwaysSample()),
		tracex.WithRecordEvents(true),
	}
}

func (ctl *controller) hello(ctx context.Context) string {
	scope := ctl.tracer.StartScoped(ctx, "controller#hello", ctl.childOptions(ctx, "hello")...)
	defer scope.Close()
	return "world!"
}

func (ctl *controller) create(ctx context.Context, c Customer) Customer {
	scope := ctl.tracer.StartScoped(ctx, "controller#create", ctl.childOptions(ctx, "create")...)
	defer scope.Close()

	c.ID = uuid.NewString()
	ctl.store.put(c)
	scope.Span().SetString("customer.id", c.ID)
	return c
}

func (ctl *controller) update(ctx context.Context, c Customer) (Customer, error) {
	err := ctl.tracer.InSpan(ctx, "controller#update", func(ctx context.Context) error {
		tracex.SpanFromContext(ctx).SetString("customer.id", c.ID)
		if !ctl.store.replace(c) {
			return errCustomerNotFound
		}
		return nil
	}, ctl.childOptions(ctx, "update")...)
	return c, err
}

func (ctl *controller) delete(ctx context.Context, id string) error {
	return ctl.tracer.InSpan(ctx, "controller#delete", func(ctx context.Context) error {
		tracex.SpanFromContext(ctx).SetString("customer.id", id)
		if !ctl.store.remove(id) {
			return errCustomerNotFound
		}
		return nil
	}, ctl.childOptions(ctx, "delete")...)
}
