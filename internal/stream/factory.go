package stream

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jpalmerr/streampoll/internal/events"
	"github.com/jpalmerr/streampoll/internal/store"
)

// Factory builds units from stored stream definitions.
type Factory struct {
	account Account
	fetcher Fetcher
	sink    store.IssueSink
	events  events.Publisher
	logger  *slog.Logger
	now     func() time.Time
}

// FactoryOption configures a [Factory].
type FactoryOption func(*Factory)

// WithClock replaces time.Now for the searched-at timestamp.
func WithClock(now func() time.Time) FactoryOption {
	return func(f *Factory) {
		f.now = now
	}
}

// NewFactory creates a [Factory]. A nil logger discards logs; a nil
// publisher drops events.
func NewFactory(account Account, fetcher Fetcher, sink store.IssueSink, pub events.Publisher, logger *slog.Logger, opts ...FactoryOption) *Factory {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if pub == nil {
		pub = discardPublisher{}
	}
	f := &Factory{
		account: account,
		fetcher: fetcher,
		sink:    sink,
		events:  pub,
		logger:  logger.With("component", "stream"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Account returns the account system units derive their queries from.
func (f *Factory) Account() Account {
	return f.account
}

// New builds the unit for def. It returns a *ConfigurationError when the
// definition's kind or system id is unknown.
func (f *Factory) New(def store.Stream) (*StreamUnit, error) {
	variant, queries, target, err := f.resolve(def)
	if err != nil {
		return nil, err
	}
	return &StreamUnit{
		id:         def.ID,
		name:       def.Name,
		variant:    variant,
		queries:    queries,
		target:     target,
		fetcher:    f.fetcher,
		sink:       f.sink,
		events:     f.events,
		logger:     f.logger,
		now:        f.now,
		searchedAt: def.SearchedAt,
	}, nil
}

func (f *Factory) resolve(def store.Stream) (Variant, []string, store.Target, error) {
	switch def.Kind {
	case store.KindUser:
		return VariantUser, copyStrings(def.Queries), store.TargetStream, nil
	case store.KindProject:
		return VariantProject, copyStrings(def.Queries), store.TargetProject, nil
	case store.KindSystem:
		switch def.ID {
		case store.TeamStreamID:
			return VariantTeam, f.account.teamQueries(), store.TargetSystem, nil
		case store.WatchingStreamID:
			return VariantWatching, f.account.watchingQueries(), store.TargetSystem, nil
		case store.SubscriptionStreamID:
			for _, ref := range f.account.Subscriptions {
				if _, err := ParseIssueRef(ref); err != nil {
					return 0, nil, "", &ConfigurationError{StreamID: def.ID, Kind: def.Kind, Reason: err.Error()}
				}
			}
			return VariantSubscription, copyStrings(f.account.Subscriptions), store.TargetSystem, nil
		}
		return 0, nil, "", &ConfigurationError{
			StreamID: def.ID,
			Kind:     def.Kind,
			Reason:   fmt.Sprintf("unknown system stream id %d", def.ID),
		}
	default:
		return 0, nil, "", &ConfigurationError{StreamID: def.ID, Kind: def.Kind, Reason: "unknown stream kind"}
	}
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

type discardPublisher struct{}

func (discardPublisher) Publish(events.Event) {}

// Build is [Factory.New] returning the [Unit] interface.
func (f *Factory) Build(def store.Stream) (Unit, error) {
	u, err := f.New(def)
	if err != nil {
		return nil, err
	}
	return u, nil
}
