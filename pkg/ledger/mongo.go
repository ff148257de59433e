package ledger

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/Gobusters/ectologger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/Ramsey-B/marigold/config"
	"github.com/Ramsey-B/marigold/pkg/metrics"
	"github.com/Ramsey-B/marigold/pkg/models"
)

const maxRetryDelay = 30 * time.Second

// Mongo streams the ledger from MongoDB. Each subscription loads a snapshot with Find,
// then re-loads it on every change stream event. A failed stream is reported and
// re-opened with backoff until the subscription is released.
type Mongo struct {
	client   *mongo.Client
	students *mongo.Collection
	payments *mongo.Collection
	logger   ectologger.Logger
	// retryUnit scales the reconnect backoff
	retryUnit time.Duration
}

var _ Gateway = (*Mongo)(nil)

// NewMongo connects to the ledger database named by LedgerProjectID.
func NewMongo(ctx context.Context, cfg config.Config, logger ectologger.Logger) (*Mongo, error) {
	opts := options.Client().
		ApplyURI(cfg.LedgerURI).
		SetConnectTimeout(cfg.LedgerConnectTimeout).
		SetAppName(cfg.AppName)
	if cfg.LedgerAPIKey != "" {
		opts.SetAuth(options.Credential{Username: cfg.LedgerUserName, Password: cfg.LedgerAPIKey})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ledger: %w", err)
	}

	db := client.Database(cfg.LedgerProjectID)
	return &Mongo{
		client:    client,
		students:  db.Collection(cfg.LedgerStudentsCollection),
		payments:  db.Collection(cfg.LedgerPaymentsCollection),
		logger:    logger,
		retryUnit: time.Second,
	}, nil
}

func (m *Mongo) SubscribeStudents(ctx context.Context, listener Listener[models.Student]) Unsubscribe {
	ctx, cancel := context.WithCancel(ctx)
	sub := newSubscription(listener, cancel)

	load := func(ctx context.Context) ([]models.Student, error) {
		cursor, err := m.students.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
		if err != nil {
			return nil, fmt.Errorf("failed to find students: %w", err)
		}
		var docs []studentDocument
		if err := cursor.All(ctx, &docs); err != nil {
			return nil, fmt.Errorf("failed to decode students: %w", err)
		}
		students := make([]models.Student, 0, len(docs))
		for _, doc := range docs {
			students = append(students, doc.toModel())
		}
		return students, nil
	}

	go watch(ctx, m, "students", m.opener(m.students, mongo.Pipeline{}), load, nil, sub)
	return sub.unsubscribe
}

func (m *Mongo) SubscribePayments(ctx context.Context, studentID string, listener Listener[models.Payment]) Unsubscribe {
	ctx, cancel := context.WithCancel(ctx)
	sub := newSubscription(listener, cancel)

	load := func(ctx context.Context) ([]models.Payment, error) {
		cursor, err := m.payments.Find(ctx, bson.D{{Key: "studentId", Value: studentID}}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
		if err != nil {
			return nil, fmt.Errorf("failed to find payments for student %s: %w", studentID, err)
		}
		var docs []paymentDocument
		if err := cursor.All(ctx, &docs); err != nil {
			return nil, fmt.Errorf("failed to decode payments for student %s: %w", studentID, err)
		}
		payments := make([]models.Payment, 0, len(docs))
		for _, doc := range docs {
			payments = append(payments, doc.toModel())
		}
		return payments, nil
	}

	// Deletes carry only the document key, so every delete reaches every student's
	// stream. Those of payments this student does not have are skipped without a reload.
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "fullDocument.studentId", Value: studentID}},
		bson.D{{Key: "operationType", Value: "delete"}},
	}}}}}}

	go watch(ctx, m, "payments", m.opener(m.payments, pipeline), load, deletesOtherPayment, sub)
	return sub.unsubscribe
}

// deletesOtherPayment reports whether a change event deletes a payment outside current.
func deletesOtherPayment(event bson.Raw, current []models.Payment) bool {
	if op, _ := event.Lookup("operationType").StringValueOK(); op != "delete" {
		return false
	}
	id := rawText(event.Lookup("documentKey", "_id"))
	for _, payment := range current {
		if payment.ID == id {
			return false
		}
	}
	return true
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// changeStream is the part of a MongoDB change stream the watch loop reads.
type changeStream interface {
	Next(ctx context.Context) bool
	Event() bson.Raw
	Err() error
	Close(ctx context.Context) error
}

type mongoStream struct {
	*mongo.ChangeStream
}

func (s mongoStream) Event() bson.Raw {
	return s.Current
}

type openStream func(ctx context.Context) (changeStream, error)

func (m *Mongo) opener(coll *mongo.Collection, pipeline mongo.Pipeline) openStream {
	return func(ctx context.Context) (changeStream, error) {
		stream, err := coll.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
		if err != nil {
			return nil, err
		}
		return mongoStream{stream}, nil
	}
}

// watch delivers a fresh snapshot after every relevant change until ctx is done. skip,
// when set, filters out events that cannot change the current snapshot.
func watch[T any](ctx context.Context, m *Mongo, source string, open openStream, load func(context.Context) ([]T, error), skip func(bson.Raw, []T) bool, sub *subscription[T]) {
	var last []T
	loaded := false
	publish := func() error {
		items, err := load(ctx)
		if err != nil {
			return err
		}
		if loaded && reflect.DeepEqual(items, last) {
			return nil
		}
		last, loaded = items, true
		metrics.LedgerSnapshots.WithLabelValues(source).Inc()
		sub.deliver(items)
		return nil
	}
	relevant := func(event bson.Raw) bool {
		return skip == nil || !loaded || !skip(event, last)
	}

	attempt := 0
	for {
		err := follow(ctx, open, publish, relevant, func() { attempt = 0 })
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errors.New("change stream closed")
		}
		// the next successful load is delivered even if unchanged, clearing the failure
		loaded = false
		attempt++
		metrics.LedgerErrors.WithLabelValues(source).Inc()
		m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"source":  source,
			"attempt": attempt,
		}).Warn("ledger subscription failed, retrying")
		sub.fail(err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay(m.retryUnit, attempt)):
		}
	}
}

func follow(ctx context.Context, open openStream, publish func() error, relevant func(bson.Raw) bool, opened func()) error {
	// the stream opens before the first load so no change falls between the two
	stream, err := open(ctx)
	if err != nil {
		if loadErr := publish(); loadErr != nil {
			return loadErr
		}
		return fmt.Errorf("failed to open change stream: %w", err)
	}
	defer stream.Close(context.Background())

	if err := publish(); err != nil {
		return err
	}
	opened()

	for stream.Next(ctx) {
		if !relevant(stream.Event()) {
			continue
		}
		if err := publish(); err != nil {
			return err
		}
	}
	return stream.Err()
}

func retryDelay(unit time.Duration, attempt int) time.Duration {
	a, b := 0, 1
	for i := 0; i < attempt; i++ {
		a, b = b, a+b
		if time.Duration(a)*unit >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return time.Duration(a) * unit
}
