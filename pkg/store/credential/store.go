/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package credential stores claimed credentials on an aries storage provider and serves them back
// page by page for presentation requests.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluele/gcache"
	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/api"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/claim"
)

var logger = log.New("vcapi-exchange/store/credential")

const (
	// DefaultStoreName is the name of the underlying store.
	DefaultStoreName = "vcapi_exchange_credentials"
	// DefaultPageLimit is used when a page has no limit.
	DefaultPageLimit = 50

	contentType      = "credential"
	tagCategory      = "category"
	indexKey         = "index_" + contentType
	defaultCacheSize = 32
)

// ErrAlreadyExists is returned when a credential with the same id is already stored.
var ErrAlreadyExists = errors.New("content with same type and id already exists in this wallet")

// Record is a stored credential.
type Record struct {
	ID         string          `json:"id"`
	Credential json.RawMessage `json:"credential"`
	Metadata   *claim.Metadata `json:"metadata,omitempty"`
	AddedAt    time.Time       `json:"addedAt"`
}

// Option configures a Store.
type Option func(s *Store)

// WithStoreName overrides DefaultStoreName.
func WithStoreName(name string) Option {
	return func(s *Store) {
		s.name = name
	}
}

// WithCacheSize sets how many pages are cached.
func WithCacheSize(size int) Option {
	return func(s *Store) {
		s.cacheSize = size
	}
}

// Store is the wallet credential store. It implements claim.Store and api.CredentialIndex.
type Store struct {
	name      string
	cacheSize int
	store     storage.Store
	pages     gcache.Cache
	// generation changes on every write so cached pages of older generations are never read.
	generation uint64
	mu         sync.Mutex
}

type pageKey struct {
	generation uint64
	offset     int
	limit      int
}

// New opens the credential store on p.
func New(p storage.Provider, opts ...Option) (*Store, error) {
	s := &Store{name: DefaultStoreName, cacheSize: defaultCacheSize}

	for _, opt := range opts {
		opt(s)
	}

	if s.cacheSize <= 0 {
		s.cacheSize = defaultCacheSize
	}

	store, err := p.OpenStore(s.name)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store '%s': %w", s.name, err)
	}

	err = p.SetStoreConfig(s.name, storage.StoreConfiguration{TagNames: []string{contentType, tagCategory}})
	if err != nil {
		return nil, fmt.Errorf("failed to set store config for '%s': %w", s.name, err)
	}

	s.store = store
	s.pages = gcache.New(s.cacheSize).LRU().LoaderFunc(func(key interface{}) (interface{}, error) {
		k, ok := key.(pageKey)
		if !ok {
			return nil, fmt.Errorf("invalid page key %v", key)
		}

		return s.loadPage(k.offset, k.limit)
	}).Build()

	return s, nil
}

// StoreAndAddCredentialToWallet saves a credential unless one with the same id is already stored.
func (s *Store) StoreAndAddCredentialToWallet(_ context.Context, credential json.RawMessage,
	meta *claim.Metadata) error {
	id, err := credentialID(credential)
	if err != nil {
		return err
	}

	rec, err := json.Marshal(&Record{ID: id, Credential: credential, Metadata: meta, AddedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal credential record: %w", err)
	}

	tags := []storage.Tag{{Name: contentType}}
	if meta != nil && meta.Category != "" {
		tags = append(tags, storage.Tag{Name: tagCategory, Value: meta.Category})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err = s.safeSave(contentKey(id), rec, tags...); err != nil {
		return err
	}

	index, err := s.index()
	if err != nil {
		return err
	}

	if err = s.putIndex(append(index, id)); err != nil {
		return err
	}

	atomic.AddUint64(&s.generation, 1)
	s.pages.Purge()

	logger.Debugf("stored credential [%s]", id)

	return nil
}

// Get returns the stored record of the credential with the given id.
func (s *Store) Get(_ context.Context, id string) (*Record, error) {
	b, err := s.store.Get(contentKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get credential '%s': %w", id, err)
	}

	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("failed to read credential record '%s': %w", id, err)
	}

	return &rec, nil
}

// Count returns the number of stored credentials.
func (s *Store) Count(_ context.Context) (int, error) {
	index, err := s.index()

	return len(index), err
}

// GetCredentials returns stored credentials in the order they were added.
func (s *Store) GetCredentials(_ context.Context, page api.Page) (*api.CredentialPage, error) {
	if page.Offset < 0 {
		return nil, fmt.Errorf("invalid page offset %d", page.Offset)
	}

	if page.Limit <= 0 {
		page.Limit = DefaultPageLimit
	}

	v, err := s.pages.Get(pageKey{
		generation: atomic.LoadUint64(&s.generation),
		offset:     page.Offset,
		limit:      page.Limit,
	})
	if err != nil {
		return nil, err
	}

	cached, ok := v.(*api.CredentialPage)
	if !ok {
		return nil, fmt.Errorf("unexpected cached page type %T", v)
	}

	return &api.CredentialPage{
		Credentials: append([]json.RawMessage(nil), cached.Credentials...),
		HasMore:     cached.HasMore,
	}, nil
}

// QueryCredentials returns the candidates matching at least one predicate, in candidate order.
// Without predicates every candidate matches.
func (s *Store) QueryCredentials(_ context.Context, candidates []json.RawMessage,
	predicates []interface{}) ([]json.RawMessage, error) {
	return Query(candidates, predicates)
}

func (s *Store) loadPage(offset, limit int) (*api.CredentialPage, error) {
	index, err := s.index()
	if err != nil {
		return nil, err
	}

	page := &api.CredentialPage{}

	if offset >= len(index) {
		return page, nil
	}

	end := offset + limit
	if end >= len(index) {
		end = len(index)
	} else {
		page.HasMore = true
	}

	for _, id := range index[offset:end] {
		b, err := s.store.Get(contentKey(id))
		if err != nil {
			return nil, fmt.Errorf("failed to get credential '%s': %w", id, err)
		}

		var rec Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("failed to read credential record '%s': %w", id, err)
		}

		page.Credentials = append(page.Credentials, rec.Credential)
	}

	return page, nil
}

// safeSave saves content under key but fails if the key is already taken.
func (s *Store) safeSave(key string, content []byte, tags ...storage.Tag) error {
	_, err := s.store.Get(key)
	if errors.Is(err, storage.ErrDataNotFound) {
		return s.store.Put(key, content, tags...)
	} else if err != nil {
		return err
	}

	return ErrAlreadyExists
}

func (s *Store) index() ([]string, error) {
	b, err := s.store.Get(indexKey)
	if errors.Is(err, storage.ErrDataNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read credential index: %w", err)
	}

	var index []string
	if err := json.Unmarshal(b, &index); err != nil {
		return nil, fmt.Errorf("failed to parse credential index: %w", err)
	}

	return index, nil
}

func (s *Store) putIndex(index []string) error {
	b, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("failed to marshal credential index: %w", err)
	}

	return s.store.Put(indexKey, b)
}

// credentialID is the credential id, the JWT id of a JWT credential, or a new uuid.
func credentialID(credential json.RawMessage) (string, error) {
	doc, err := decodeDocument(credential)
	if err != nil {
		return "", fmt.Errorf("failed to read credential to be saved: %w", err)
	}

	if id, ok := doc["id"].(string); ok && strings.TrimSpace(id) != "" {
		return id, nil
	}

	return uuid.New().String(), nil
}

func contentKey(id string) string {
	return fmt.Sprintf("%s_%s", contentType, id)
}
