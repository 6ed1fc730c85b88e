// Package firestore stores documents in Cloud Firestore. Keys are document
// paths ("users/u1/finance/roundups") and must have an even segment count.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	gfirestore "cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"finboard/internal/core"
	"finboard/internal/store"
)

// ErrInvalidKey is returned for keys that do not name a document.
var ErrInvalidKey = errors.New("invalid firestore document path")

// record is the stored shape. Data stays an opaque JSON string so decimal
// amounts survive without float conversion.
type record struct {
	Data      string    `firestore:"data"`
	Version   int64     `firestore:"version"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

type Store struct {
	client *gfirestore.Client
	now    func() time.Time
}

// New connects to projectID. FIRESTORE_EMULATOR_HOST is honoured by the client.
func New(ctx context.Context, projectID string, opts ...option.ClientOption) (*Store, error) {
	client, err := gfirestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return &Store{client: client, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// Ping reads a sentinel document; NotFound still proves connectivity.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.Doc("_health/ping").Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("firestore ping: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (store.Document, error) {
	ref, err := s.ref(key)
	if err != nil {
		return store.Document{}, err
	}
	snap, err := ref.Get(ctx)
	return decode(key, snap, err)
}

func (s *Store) Set(ctx context.Context, key string, data []byte) error {
	ref, err := s.ref(key)
	if err != nil {
		return err
	}
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *gfirestore.Transaction) error {
		snap, err := tx.Get(ref)
		doc, err := decode(key, snap, err)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return err
		}
		return tx.Set(ref, s.record(data, doc.Version+1))
	})
}

func (s *Store) Update(ctx context.Context, key string, patch map[string]any) error {
	ref, err := s.ref(key)
	if err != nil {
		return err
	}
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *gfirestore.Transaction) error {
		snap, err := tx.Get(ref)
		doc, err := decode(key, snap, err)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return err
		}
		merged, err := store.Merge(doc.Data, patch)
		if err != nil {
			return fmt.Errorf("update %s: %w", key, err)
		}
		return tx.Set(ref, s.record(merged, doc.Version+1))
	})
}

// RunTransaction maps onto a Firestore transaction. Firestore may invoke fn
// more than once; contention that outlasts its retries becomes ErrStaleState.
func (s *Store) RunTransaction(ctx context.Context, fn store.TxFunc) error {
	var fnErr error
	err := s.client.RunTransaction(ctx, func(ctx context.Context, ftx *gfirestore.Transaction) error {
		t := &fsTx{store: s, tx: ftx, versions: make(map[string]int64), writes: make(map[string][]byte)}
		fnErr = fn(ctx, t)
		if fnErr != nil {
			return fnErr
		}
		for key, data := range t.writes {
			ref, err := s.ref(key)
			if err != nil {
				return err
			}
			if err := ftx.Set(ref, s.record(data, t.versions[key]+1)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && fnErr == nil && status.Code(err) == codes.Aborted {
		return fmt.Errorf("%w: %v", core.ErrStaleState, err)
	}
	return err
}

func (s *Store) ref(key string) (*gfirestore.DocumentRef, error) {
	ref := s.client.Doc(key)
	if ref == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return ref, nil
}

func (s *Store) record(data []byte, version int64) record {
	return record{Data: string(data), Version: version, UpdatedAt: s.now().UTC()}
}

func decode(key string, snap *gfirestore.DocumentSnapshot, err error) (store.Document, error) {
	if status.Code(err) == codes.NotFound || (err == nil && (snap == nil || !snap.Exists())) {
		return store.Document{}, fmt.Errorf("%s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("get %s: %w", key, err)
	}
	var rec record
	if err := snap.DataTo(&rec); err != nil {
		return store.Document{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return store.Document{Key: key, Data: []byte(rec.Data), Version: rec.Version, UpdatedAt: rec.UpdatedAt}, nil
}

type fsTx struct {
	store    *Store
	tx       *gfirestore.Transaction
	versions map[string]int64
	writes   map[string][]byte
}

// Get reads through the Firestore transaction so the server tracks the read
// set. Firestore rejects reads after writes, hence the write buffer.
func (t *fsTx) Get(key string) (store.Document, error) {
	if data, ok := t.writes[key]; ok {
		return store.Document{Key: key, Data: append([]byte(nil), data...), Version: t.versions[key]}, nil
	}
	ref, err := t.store.ref(key)
	if err != nil {
		return store.Document{}, err
	}
	snap, err := t.tx.Get(ref)
	doc, err := decode(key, snap, err)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return store.Document{}, err
	}
	if _, seen := t.versions[key]; !seen {
		t.versions[key] = doc.Version
	}
	return doc, err
}

func (t *fsTx) Set(key string, data []byte) error {
	ref, err := t.store.ref(key)
	if err != nil {
		return err
	}
	if _, seen := t.versions[key]; !seen {
		// blind write: the version continues from whatever is stored
		snap, err := t.tx.Get(ref)
		doc, err := decode(key, snap, err)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return err
		}
		t.versions[key] = doc.Version
	}
	t.writes[key] = append([]byte(nil), data...)
	return nil
}
