package archive

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendLog       = "log"
	BackendAzure     = "azure"
	BackendFirestore = "firestore"
	BackendKafka     = "kafka"
)

// Options selects and configures a backend.
type Options struct {
	Backend   string
	Azure     AzureConfig
	Firestore FirestoreConfig
	// Kafka is used for BackendKafka; typically the events publisher.
	Kafka Store
}

// Open builds the configured store. The returned closer is never nil.
func Open(ctx context.Context, opts Options) (Store, io.Closer, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendLog:
		return LogStore{}, nopCloser{}, nil
	case BackendAzure:
		s, err := NewAzureStore(opts.Azure)
		if err != nil {
			return nil, nopCloser{}, err
		}
		if err := s.EnsureContainer(ctx); err != nil {
			return nil, nopCloser{}, err
		}
		return s, nopCloser{}, nil
	case BackendFirestore:
		s, err := NewFirestoreStore(ctx, opts.Firestore)
		if err != nil {
			return nil, nopCloser{}, err
		}
		return s, s, nil
	case BackendKafka:
		if opts.Kafka == nil {
			return nil, nopCloser{}, fmt.Errorf("kafka archive: publisher is required")
		}
		return opts.Kafka, nopCloser{}, nil
	default:
		return nil, nopCloser{}, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
