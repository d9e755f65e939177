package notification

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the Mongo collection notifications are stored in.
const CollectionName = "notifications"

type notificationDoc struct {
	ID              string    `bson:"_id"`
	DoctorID        string    `bson:"doctor_id"`
	PatientID       string    `bson:"patient_id"`
	BookingID       string    `bson:"booking_id"`
	AppointmentDate string    `bson:"appointment_date"`
	AppointmentDay  string    `bson:"appointment_day"`
	AppointmentTime string    `bson:"appointment_time"`
	Status          string    `bson:"status"`
	Message         string    `bson:"message"`
	IsRead          bool      `bson:"is_read"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

func toDoc(n *Notification) notificationDoc {
	return notificationDoc{
		ID:              n.ID.String(),
		DoctorID:        n.DoctorID,
		PatientID:       n.PatientID,
		BookingID:       n.BookingID.String(),
		AppointmentDate: n.AppointmentDate.String(),
		AppointmentDay:  n.AppointmentDay,
		AppointmentTime: n.AppointmentTime,
		Status:          string(n.Status),
		Message:         n.Message,
		IsRead:          n.IsRead,
		CreatedAt:       n.CreatedAt,
		UpdatedAt:       n.UpdatedAt,
	}
}

func (d notificationDoc) toNotification() (*Notification, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("notification id %q: %w", d.ID, err)
	}
	bookingID, err := uuid.Parse(d.BookingID)
	if err != nil {
		return nil, fmt.Errorf("notification %s booking id: %w", d.ID, err)
	}
	date, err := civil.ParseDate(d.AppointmentDate)
	if err != nil {
		return nil, fmt.Errorf("notification %s date: %w", d.ID, err)
	}
	return &Notification{
		ID:              id,
		DoctorID:        d.DoctorID,
		PatientID:       d.PatientID,
		BookingID:       bookingID,
		AppointmentDate: date,
		AppointmentDay:  d.AppointmentDay,
		AppointmentTime: d.AppointmentTime,
		Status:          Status(d.Status),
		Message:         d.Message,
		IsRead:          d.IsRead,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}, nil
}

type storeMongo struct{ coll *mongo.Collection }

// NewStoreMongo returns a Store backed by the notifications collection.
func NewStoreMongo(database *mongo.Database) Store {
	return &storeMongo{coll: database.Collection(CollectionName)}
}

func (s *storeMongo) Create(ctx context.Context, n *Notification) error {
	_, err := s.coll.InsertOne(ctx, toDoc(n))
	return err
}

func userFilter(userID string) bson.M {
	return bson.M{"$or": bson.A{bson.M{"doctor_id": userID}, bson.M{"patient_id": userID}}}
}

func (s *storeMongo) ListForUser(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, userFilter(userID), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*Notification
	for cur.Next(ctx) {
		var d notificationDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		n, err := d.toNotification()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, cur.Err()
}

func (s *storeMongo) MarkRead(ctx context.Context, id uuid.UUID, userID string, at time.Time) error {
	filter := userFilter(userID)
	filter["_id"] = id.String()
	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"is_read": true, "updated_at": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureIndexes creates the per-user listing indexes.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	_, err := database.Collection(CollectionName).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "doctor_id", Value: 1}, {Key: "created_at", Value: -1}}, Options: options.Index().SetName("doctor_created_idx")},
		{Keys: bson.D{{Key: "patient_id", Value: 1}, {Key: "created_at", Value: -1}}, Options: options.Index().SetName("patient_created_idx")},
	})
	if err != nil {
		return fmt.Errorf("create notification indexes: %w", err)
	}
	return nil
}
