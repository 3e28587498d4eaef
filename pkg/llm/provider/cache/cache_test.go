package cache_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ligandx/pkg/llm"
	"github.com/papercomputeco/ligandx/pkg/llm/provider/cache"
	testutils "github.com/papercomputeco/ligandx/pkg/utils/test"
)

type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	failGet error
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	v, ok := m.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

var _ = Describe("Provider", func() {
	var (
		mock  *testutils.MockProvider
		store *memStore
		p     *cache.Provider
		ctx   context.Context
		req   *llm.ChatRequest
	)

	BeforeEach(func() {
		ctx = context.Background()
		mock = &testutils.MockProvider{Default: "AO"}
		store = newMemStore()
		p = cache.Wrap(mock, cache.Config{Store: store})
		req = &llm.ChatRequest{
			Model:       "gpt-4",
			Temperature: llm.Float64(0),
			Messages:    []llm.Message{llm.NewTextMessage(llm.RoleUser, "Which ligands?")},
		}
	})

	It("reports the wrapped provider name", func() {
		Expect(p.Name()).To(Equal(mock.Name()))
	})

	It("serves the second identical request from the store", func() {
		first, err := p.Complete(ctx, req)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Cached).To(BeFalse())

		second, err := p.Complete(ctx, req)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Cached).To(BeTrue())
		Expect(second.Message.Content).To(Equal("AO"))
		Expect(mock.Calls()).To(Equal(1))

		key, err := cache.Key(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.ttls[key]).To(Equal(cache.DefaultTTL))
	})

	It("misses when a sampling parameter changes", func() {
		_, err := p.Complete(ctx, req)
		Expect(err).NotTo(HaveOccurred())

		req.Temperature = llm.Float64(0.7)
		resp, err := p.Complete(ctx, req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Cached).To(BeFalse())
		Expect(mock.Calls()).To(Equal(2))
	})

	It("does not cache failures", func() {
		mock.FailNext(&llm.TransportError{Provider: "mock", StatusCode: 503, Err: errors.New("unavailable")})
		_, err := p.Complete(ctx, req)
		Expect(err).To(HaveOccurred())
		Expect(store.data).To(BeEmpty())

		resp, err := p.Complete(ctx, req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Cached).To(BeFalse())
	})

	It("falls through when the store fails", func() {
		store.failGet = errors.New("connection refused")
		resp, err := p.Complete(ctx, req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Message.Content).To(Equal("AO"))
	})
})

var _ = Describe("NewRedisStore", func() {
	It("fails when redis is unreachable", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _, err := cache.NewRedisStore(ctx, cache.RedisConfig{Addr: "127.0.0.1:1"})
		Expect(err).To(HaveOccurred())
	})
})
