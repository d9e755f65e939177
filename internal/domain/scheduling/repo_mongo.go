package scheduling

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	templatesCollection = "availability_templates"
	bookingsCollection  = "bookings"
	doctorsCollection   = "doctors"
)

// Documents keep dates as YYYY-MM-DD strings so range queries compare lexically.

type windowDoc struct {
	StartTime string `bson:"start_time"`
	EndTime   string `bson:"end_time"`
}

type dayDoc struct {
	IsAvailable bool        `bson:"is_available"`
	TimeSlots   []windowDoc `bson:"time_slots"`
}

type exclusionDoc struct {
	StartDate string `bson:"start_date"`
	EndDate   string `bson:"end_date"`
	Type      string `bson:"type"`
}

type templateDoc struct {
	DoctorID            string            `bson:"doctor_id"`
	SlotDurationMinutes int               `bson:"slot_duration_minutes"`
	ActiveStart         string            `bson:"active_start"`
	ActiveEnd           string            `bson:"active_end"`
	WeeklySchedule      map[string]dayDoc `bson:"weekly_schedule"`
	ExcludedPeriods     []exclusionDoc    `bson:"excluded_periods"`
	CreatedAt           time.Time         `bson:"created_at"`
	UpdatedAt           time.Time         `bson:"updated_at"`
}

type reviewDoc struct {
	Rating    int       `bson:"rating"`
	Review    string    `bson:"review"`
	CreatedAt time.Time `bson:"created_at"`
}

type bookingDoc struct {
	ID        string      `bson:"_id"`
	DoctorID  string      `bson:"doctor_id"`
	PatientID string      `bson:"patient_id"`
	StartDate string      `bson:"start_date"`
	EndDate   string      `bson:"end_date"`
	Weekday   string      `bson:"weekday"`
	StartTime string      `bson:"start_time"`
	EndTime   string      `bson:"end_time"`
	Status    string      `bson:"status"`
	Kind      string      `bson:"kind"`
	HoldsSlot bool        `bson:"holds_slot"`
	Reviews   []reviewDoc `bson:"reviews"`
	CreatedAt time.Time   `bson:"created_at"`
	UpdatedAt time.Time   `bson:"updated_at"`
}

type doctorDoc struct {
	ID   string `bson:"_id"`
	Name string `bson:"name"`
}

func toTemplateDoc(t *Template) templateDoc {
	doc := templateDoc{
		DoctorID:            string(t.DoctorID),
		SlotDurationMinutes: t.SlotDurationMinutes,
		ActiveStart:         t.ActiveRange.StartDate.String(),
		ActiveEnd:           t.ActiveRange.EndDate.String(),
		WeeklySchedule:      make(map[string]dayDoc, len(t.WeeklySchedule)),
		ExcludedPeriods:     make([]exclusionDoc, 0, len(t.ExcludedPeriods)),
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
	}
	for day, avail := range t.WeeklySchedule {
		windows, ok := avail.Windows()
		d := dayDoc{IsAvailable: ok, TimeSlots: make([]windowDoc, 0, len(windows))}
		for _, w := range windows {
			d.TimeSlots = append(d.TimeSlots, windowDoc{StartTime: w.StartTime, EndTime: w.EndTime})
		}
		doc.WeeklySchedule[string(day)] = d
	}
	for _, p := range t.ExcludedPeriods {
		doc.ExcludedPeriods = append(doc.ExcludedPeriods, exclusionDoc{
			StartDate: p.StartDate.String(),
			EndDate:   p.EndDate.String(),
			Type:      string(p.Kind),
		})
	}
	return doc
}

func (doc templateDoc) toTemplate() (*Template, error) {
	start, err := civil.ParseDate(doc.ActiveStart)
	if err != nil {
		return nil, fmt.Errorf("decode active_start: %w", err)
	}
	end, err := civil.ParseDate(doc.ActiveEnd)
	if err != nil {
		return nil, fmt.Errorf("decode active_end: %w", err)
	}
	t := &Template{
		DoctorID:            DoctorID(doc.DoctorID),
		SlotDurationMinutes: doc.SlotDurationMinutes,
		ActiveRange:         DateRange{StartDate: start, EndDate: end},
		WeeklySchedule:      make(WeeklySchedule, len(doc.WeeklySchedule)),
		CreatedAt:           doc.CreatedAt,
		UpdatedAt:           doc.UpdatedAt,
	}
	for day, d := range doc.WeeklySchedule {
		if !d.IsAvailable {
			t.WeeklySchedule[Weekday(day)] = Unavailable()
			continue
		}
		windows := make([]TimeWindow, 0, len(d.TimeSlots))
		for _, w := range d.TimeSlots {
			windows = append(windows, TimeWindow{StartTime: w.StartTime, EndTime: w.EndTime})
		}
		t.WeeklySchedule[Weekday(day)] = Available(windows...)
	}
	for _, p := range doc.ExcludedPeriods {
		ps, err := civil.ParseDate(p.StartDate)
		if err != nil {
			return nil, fmt.Errorf("decode excluded period: %w", err)
		}
		pe, err := civil.ParseDate(p.EndDate)
		if err != nil {
			return nil, fmt.Errorf("decode excluded period: %w", err)
		}
		t.ExcludedPeriods = append(t.ExcludedPeriods, ExcludedPeriod{StartDate: ps, EndDate: pe, Kind: ExclusionKind(p.Type)})
	}
	return t, nil
}

func toBookingDoc(b *Booking) bookingDoc {
	doc := bookingDoc{
		ID:        b.ID.String(),
		DoctorID:  string(b.DoctorID),
		PatientID: string(b.PatientID),
		StartDate: b.DateRange.StartDate.String(),
		EndDate:   b.DateRange.EndDate.String(),
		Weekday:   string(b.Weekday),
		StartTime: b.TimeSlot.StartTime,
		EndTime:   b.TimeSlot.EndTime,
		Status:    string(b.Status),
		Kind:      string(b.Kind),
		HoldsSlot: b.HoldsSlot,
		Reviews:   make([]reviewDoc, 0, len(b.Reviews)),
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
	for _, r := range b.Reviews {
		doc.Reviews = append(doc.Reviews, reviewDoc{Rating: r.Rating, Review: r.Text, CreatedAt: r.CreatedAt})
	}
	return doc
}

func (doc bookingDoc) toBooking() (*Booking, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("decode booking id: %w", err)
	}
	start, err := civil.ParseDate(doc.StartDate)
	if err != nil {
		return nil, fmt.Errorf("decode start_date: %w", err)
	}
	end, err := civil.ParseDate(doc.EndDate)
	if err != nil {
		return nil, fmt.Errorf("decode end_date: %w", err)
	}
	b := &Booking{
		ID:        id,
		DoctorID:  DoctorID(doc.DoctorID),
		PatientID: PatientID(doc.PatientID),
		DateRange: DateRange{StartDate: start, EndDate: end},
		Weekday:   Weekday(doc.Weekday),
		TimeSlot:  Slot{StartTime: doc.StartTime, EndTime: doc.EndTime},
		Status:    Status(doc.Status),
		Kind:      Kind(doc.Kind),
		HoldsSlot: doc.HoldsSlot,
		Reviews:   make([]Review, 0, len(doc.Reviews)),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	for _, r := range doc.Reviews {
		b.Reviews = append(b.Reviews, Review{Rating: r.Rating, Text: r.Review, CreatedAt: r.CreatedAt})
	}
	return b, nil
}

// =========== Template Repository ===========

type templateRepoMongo struct{ coll *mongo.Collection }

func NewTemplateRepoMongo(database *mongo.Database) TemplateRepository {
	return &templateRepoMongo{coll: database.Collection(templatesCollection)}
}

func (r *templateRepoMongo) Upsert(ctx context.Context, t *Template) error {
	doc := toTemplateDoc(t)
	filter := bson.M{"doctor_id": doc.DoctorID}
	update := bson.M{
		"$set": bson.M{
			"slot_duration_minutes": doc.SlotDurationMinutes,
			"active_start":          doc.ActiveStart,
			"active_end":            doc.ActiveEnd,
			"weekly_schedule":       doc.WeeklySchedule,
			"excluded_periods":      doc.ExcludedPeriods,
			"updated_at":            doc.UpdatedAt,
		},
		"$setOnInsert": bson.M{"created_at": doc.UpdatedAt},
	}
	if _, err := r.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("error upserting template for doctor %s: %w", doc.DoctorID, err)
	}

	var stored struct {
		CreatedAt time.Time `bson:"created_at"`
	}
	if err := r.coll.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"created_at": 1})).Decode(&stored); err != nil {
		return fmt.Errorf("error reading template for doctor %s: %w", doc.DoctorID, err)
	}
	t.CreatedAt = stored.CreatedAt
	return nil
}

func (r *templateRepoMongo) GetByDoctor(ctx context.Context, doctorID DoctorID) (*Template, error) {
	var doc templateDoc
	if err := r.coll.FindOne(ctx, bson.M{"doctor_id": string(doctorID)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error fetching template for doctor %s: %w", doctorID, err)
	}
	return doc.toTemplate()
}

// =========== Booking Repository ===========

type bookingRepoMongo struct{ coll *mongo.Collection }

func NewBookingRepoMongo(database *mongo.Database) BookingRepository {
	return &bookingRepoMongo{coll: database.Collection(bookingsCollection)}
}

func (r *bookingRepoMongo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*Booking, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error fetching bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var items []*Booking
	for cursor.Next(ctx) {
		var doc bookingDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("error decoding booking: %w", err)
		}
		b, err := doc.toBooking()
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return items, nil
}

func (r *bookingRepoMongo) page(ctx context.Context, filter bson.M, sort bson.D, limit, offset int) ([]*Booking, int, error) {
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("error counting bookings: %w", err)
	}
	opts := options.Find().SetSort(sort).SetSkip(int64(offset)).SetLimit(int64(limit))
	items, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return items, int(total), nil
}

func (r *bookingRepoMongo) InsertIfSlotFree(ctx context.Context, b *Booking) error {
	if _, err := r.coll.InsertOne(ctx, toBookingDoc(b)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("error creating booking: %w", err)
	}
	return nil
}

func (r *bookingRepoMongo) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	var doc bookingDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error fetching booking %s: %w", id, err)
	}
	return doc.toBooking()
}

func (r *bookingRepoMongo) ListByDoctorDate(ctx context.Context, doctorID DoctorID, date civil.Date) ([]*Booking, error) {
	filter := bson.M{"doctor_id": string(doctorID), "start_date": date.String()}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}}))
}

// ListByDoctorRange compares ISO dates as strings; their order is the date order.
func (r *bookingRepoMongo) ListByDoctorRange(ctx context.Context, doctorID DoctorID, from, to civil.Date) ([]*Booking, error) {
	filter := bson.M{
		"doctor_id":  string(doctorID),
		"start_date": bson.M{"$gte": from.String(), "$lte": to.String()},
	}
	sort := bson.D{{Key: "start_date", Value: 1}, {Key: "start_time", Value: 1}}
	return r.find(ctx, filter, options.Find().SetSort(sort))
}

func (r *bookingRepoMongo) ListByDoctor(ctx context.Context, doctorID DoctorID, date *civil.Date, limit, offset int) ([]*Booking, int, error) {
	filter := bson.M{"doctor_id": string(doctorID)}
	if date != nil {
		filter["start_date"] = date.String()
	}
	sort := bson.D{{Key: "start_date", Value: 1}, {Key: "start_time", Value: 1}}
	return r.page(ctx, filter, sort, limit, offset)
}

func (r *bookingRepoMongo) ListByPatient(ctx context.Context, patientID PatientID, limit, offset int) ([]*Booking, int, error) {
	sort := bson.D{{Key: "start_date", Value: -1}, {Key: "start_time", Value: -1}}
	return r.page(ctx, bson.M{"patient_id": string(patientID)}, sort, limit, offset)
}

func (r *bookingRepoMongo) UpdateStatus(ctx context.Context, b *Booking, from Status) error {
	filter := bson.M{"_id": b.ID.String(), "status": string(from)}
	update := bson.M{"$set": bson.M{
		"status":     string(b.Status),
		"holds_slot": b.HoldsSlot,
		"updated_at": b.UpdatedAt,
	}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("error updating booking %s: %w", b.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrStale
	}
	return nil
}

func (r *bookingRepoMongo) AppendReview(ctx context.Context, id uuid.UUID, rv Review) error {
	update := bson.M{
		"$push": bson.M{"reviews": reviewDoc{Rating: rv.Rating, Review: rv.Text, CreatedAt: rv.CreatedAt}},
		"$set":  bson.M{"updated_at": rv.CreatedAt},
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id.String()}, update)
	if err != nil {
		return fmt.Errorf("error appending review to booking %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// =========== Doctor Directory ===========

type doctorDirectoryMongo struct{ coll *mongo.Collection }

func NewDoctorDirectoryMongo(database *mongo.Database) DoctorDirectory {
	return &doctorDirectoryMongo{coll: database.Collection(doctorsCollection)}
}

func (r *doctorDirectoryMongo) FindByName(ctx context.Context, name string) (*Doctor, error) {
	filter := bson.M{"name": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(name) + "$", Options: "i"}}
	var doc doctorDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error fetching doctor %q: %w", name, err)
	}
	return &Doctor{ID: DoctorID(doc.ID), Name: doc.Name}, nil
}

// EnsureIndexes creates the indexes the Mongo repositories rely on, including
// the partial unique index that stops two bookings from holding one slot.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	templates := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "doctor_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_doctor_id"),
		},
	}
	if _, err := database.Collection(templatesCollection).Indexes().CreateMany(ctx, templates); err != nil {
		return fmt.Errorf("failed to create template indexes: %w", err)
	}

	bookings := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "doctor_id", Value: 1}, {Key: "start_date", Value: 1},
				{Key: "start_time", Value: 1}, {Key: "end_time", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"holds_slot": true}).
				SetName("unique_held_slot"),
		},
		{
			Keys:    bson.D{{Key: "doctor_id", Value: 1}, {Key: "start_date", Value: 1}},
			Options: options.Index().SetName("doctor_date_idx"),
		},
		{
			Keys:    bson.D{{Key: "patient_id", Value: 1}, {Key: "start_date", Value: -1}},
			Options: options.Index().SetName("patient_date_idx"),
		},
	}
	if _, err := database.Collection(bookingsCollection).Indexes().CreateMany(ctx, bookings); err != nil {
		return fmt.Errorf("failed to create booking indexes: %w", err)
	}

	doctors := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetName("name_idx"),
		},
	}
	if _, err := database.Collection(doctorsCollection).Indexes().CreateMany(ctx, doctors); err != nil {
		return fmt.Errorf("failed to create doctor indexes: %w", err)
	}
	return nil
}
