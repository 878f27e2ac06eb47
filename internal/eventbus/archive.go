package eventbus

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/drogue-iot/drogue-cloud-sub001/pkg/config"
	"github.com/drogue-iot/drogue-cloud-sub001/pkg/event"
)

// archivedEvent is the document shape stored per published event,
// capped by a size-bounded capped collection so the archive only ever
// holds the most recent window of traffic used to seed Integration
// Streams (§4.8).
type archivedEvent struct {
	App         string    `bson:"app"`
	Device      string    `bson:"device"`
	Channel     string    `bson:"channel"`
	Sender      string    `bson:"sender"`
	AsDevice    string    `bson:"as_device,omitempty"`
	ContentType string    `bson:"content_type,omitempty"`
	Payload     []byte    `bson:"payload,omitempty"`
	Timestamp   time.Time `bson:"ts"`
}

// MongoArchive is the Event Archive: one capped MongoDB collection,
// shared by all applications, that retains the most recent events so an
// Integration Stream consumer that connects late can replay a bounded
// backlog of its application's events before switching to live
// delivery. The cap applies to the collection as a whole, not per
// application.
type MongoArchive struct {
	collection *mongo.Collection
	ttl        time.Duration
}

// NewMongoArchive connects to conf.Uri and ensures the archive
// collection exists as a capped collection sized by conf.Capacity,
// grounded on the teacher's own mongo.Connect/options.Client idiom
// (internal/database/mongo.go).
func NewMongoArchive(ctx context.Context, conf config.EventArchive) (*MongoArchive, error) {
	clientOpts := options.Client().ApplyURI(conf.Uri)
	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, err
	}
	db := client.Database(conf.Database)

	names, err := db.ListCollectionNames(ctx, bson.M{"name": conf.Collection})
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		createOpts := options.CreateCollection().SetCapped(true).SetSizeInBytes(int64(conf.Capacity))
		if err := db.CreateCollection(ctx, conf.Collection, createOpts); err != nil {
			return nil, err
		}
	}

	return &MongoArchive{collection: db.Collection(conf.Collection), ttl: conf.TTL}, nil
}

// Append records env with the current timestamp.
func (a *MongoArchive) Append(ctx context.Context, env event.Envelope) error {
	doc := archivedEvent{
		App:         env.App,
		Device:      env.Device,
		Channel:     env.Channel,
		Sender:      env.Sender,
		AsDevice:    env.AsDevice,
		ContentType: env.ContentType,
		Payload:     env.Payload,
		Timestamp:   time.Now().UTC(),
	}
	_, err := a.collection.InsertOne(ctx, doc)
	return err
}

// Replay returns every archived event for app no older than a.ttl,
// oldest first, used to seed an Integration Stream consumer's initial
// backlog before it switches to live reads.
func (a *MongoArchive) Replay(ctx context.Context, app string) ([]event.Envelope, error) {
	filter := bson.M{"app": app}
	if a.ttl > 0 {
		filter["ts"] = bson.M{"$gte": time.Now().UTC().Add(-a.ttl)}
	}

	cursor, err := a.collection.Find(ctx, filter, options.Find().SetSort(bson.M{"ts": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []archivedEvent
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]event.Envelope, len(docs))
	for i, d := range docs {
		out[i] = event.Envelope{
			App:         d.App,
			Device:      d.Device,
			Channel:     d.Channel,
			Sender:      d.Sender,
			AsDevice:    d.AsDevice,
			ContentType: d.ContentType,
			Payload:     d.Payload,
		}
	}
	return out, nil
}
