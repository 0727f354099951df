package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"piccsync-backend/internal/directory"
	"piccsync-backend/internal/models"
	"piccsync-backend/internal/services"
	"piccsync-backend/internal/storage"

	"github.com/aws/smithy-go"
)

// Objects is an in-memory object store. The bucket starts out existing unless BucketMissing is set.
type Objects struct {
	mu            sync.Mutex
	data          map[string][]byte
	types         map[string]string
	BucketMissing bool
	BucketCreates int
	PutErr        error
	PresignErr    func(key string) error
}

// NewObjects creates an empty object store
func NewObjects() *Objects {
	return &Objects{
		data:  make(map[string][]byte),
		types: make(map[string]string),
	}
}

func (o *Objects) Put(_ context.Context, key, contentType string, body io.Reader) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.BucketMissing {
		return fmt.Errorf("put %s: %w", key, errors.Join(storage.ErrNoSuchBucket, &smithy.GenericAPIError{Code: "NoSuchBucket"}))
	}
	if o.PutErr != nil {
		return o.PutErr
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	o.data[key] = b
	o.types[key] = contentType
	return nil
}

func (o *Objects) Get(_ context.Context, key string) (*storage.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.data[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, storage.ErrNoSuchKey)
	}
	return &storage.Object{
		Body:          io.NopCloser(bytes.NewReader(b)),
		ContentLength: int64(len(b)),
		ContentType:   o.types[key],
	}, nil
}

func (o *Objects) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.data, key)
	delete(o.types, key)
	return nil
}

func (o *Objects) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	if o.PresignErr != nil {
		if err := o.PresignErr(key); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("https://objects.test/%s?expires=%d", key, int(ttl.Seconds())), nil
}

func (o *Objects) CreateBucket(_ context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.BucketMissing = false
	o.BucketCreates++
	return nil
}

// Bytes returns a stored object's payload
func (o *Objects) Bytes(key string) ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.data[key]
	return b, ok
}

// Len returns the number of stored objects
func (o *Objects) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.data)
}

// Directory is a fixed account directory
type Directory struct {
	mu       sync.Mutex
	Accounts []*models.Account
	Tokens   map[string]*models.Account
	Err      error
}

// NewDirectory creates a directory holding the given accounts
func NewDirectory(accounts ...*models.Account) *Directory {
	return &Directory{Accounts: accounts, Tokens: make(map[string]*models.Account)}
}

func (d *Directory) LookupUser(_ context.Context, token string) (*models.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	a, ok := d.Tokens[token]
	if !ok {
		return nil, fmt.Errorf("lookup: %w", directory.ErrInvalidToken)
	}
	return a, nil
}

func (d *Directory) ListAccounts(_ context.Context) ([]*models.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	return append([]*models.Account(nil), d.Accounts...), nil
}

// Recorder captures realtime notifications
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

// Event is one recorded notification
type Event struct {
	UserIDs []string
	Message services.WSMessage
}

func (r *Recorder) NotifyUsers(userIDs []string, message services.WSMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Event{UserIDs: append([]string(nil), userIDs...), Message: message})
}

// Types returns the recorded event types in order
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Message.Type)
	}
	return out
}
