package store

import "sync"

// CollectionEventType enumerates collection-set changes.
type CollectionEventType string

const (
	CollectionCreated CollectionEventType = "created"
	CollectionRenamed CollectionEventType = "renamed"
	CollectionDeleted CollectionEventType = "deleted"
)

// CollectionEvent describes one change to the set of collections. OldName is
// populated for renames only.
type CollectionEvent struct {
	Type    CollectionEventType
	Name    string
	OldName string
}

const subBuffer = 16

type subscribers struct {
	mu              sync.Mutex
	nextID          int
	collectionSubs  map[int]chan CollectionEvent
	invalidationSub map[int]chan []string
	closed          bool
}

// SubscribeCollections returns a channel of collection-set change events and
// a cancel func. Slow consumers drop events rather than block mutations.
func (s *Store) SubscribeCollections() (<-chan CollectionEvent, func()) {
	s.subs.mu.Lock()
	defer s.subs.mu.Unlock()

	if s.subs.collectionSubs == nil {
		s.subs.collectionSubs = make(map[int]chan CollectionEvent)
	}
	id := s.subs.nextID
	s.subs.nextID++
	ch := make(chan CollectionEvent, subBuffer)
	s.subs.collectionSubs[id] = ch

	cancel := func() {
		s.subs.mu.Lock()
		defer s.subs.mu.Unlock()
		if c, ok := s.subs.collectionSubs[id]; ok {
			delete(s.subs.collectionSubs, id)
			close(c)
		}
	}
	return ch, cancel
}

// SubscribeInvalidations returns a channel broadcasting item identifiers
// whose backing data is about to disappear, so open detail views can release
// their image handles and close first.
func (s *Store) SubscribeInvalidations() (<-chan []string, func()) {
	s.subs.mu.Lock()
	defer s.subs.mu.Unlock()

	if s.subs.invalidationSub == nil {
		s.subs.invalidationSub = make(map[int]chan []string)
	}
	id := s.subs.nextID
	s.subs.nextID++
	ch := make(chan []string, subBuffer)
	s.subs.invalidationSub[id] = ch

	cancel := func() {
		s.subs.mu.Lock()
		defer s.subs.mu.Unlock()
		if c, ok := s.subs.invalidationSub[id]; ok {
			delete(s.subs.invalidationSub, id)
			close(c)
		}
	}
	return ch, cancel
}

// PublishCollectionChange broadcasts a collection-set change to subscribers.
// Exposed for the collection manager, which commits its own transactions.
func (s *Store) PublishCollectionChange(ev CollectionEvent) {
	s.subs.publishCollection(ev)
}

// PublishInvalidation broadcasts item ids whose data is about to disappear.
func (s *Store) PublishInvalidation(ids []string) {
	s.subs.publishInvalidation(ids)
}

func (b *subscribers) publishCollection(ev CollectionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.collectionSubs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *subscribers) publishInvalidation(ids []string) {
	if len(ids) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.invalidationSub {
		select {
		case ch <- ids:
		default:
		}
	}
}

func (b *subscribers) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.collectionSubs {
		delete(b.collectionSubs, id)
		close(ch)
	}
	for id, ch := range b.invalidationSub {
		delete(b.invalidationSub, id)
		close(ch)
	}
}
