package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/saturday/internal/calendar"
)

func TestAvailabilityService_RequiresSchool(t *testing.T) {
	f := newFixture(t)
	drifter := f.register(t, "drifter", "")
	saturday := calendar.MustParseDate("2025-03-08")

	_, err := f.availability.List(context.Background(), drifter, calendar.Date{}, calendar.Date{})
	assertErrorIs(t, err, ErrSchoolRequired)
	_, err = f.availability.Set(context.Background(), drifter, saturday, calendar.StateAvailable)
	assertErrorIs(t, err, ErrSchoolRequired)
	assertErrorIs(t, f.availability.Clear(context.Background(), drifter, saturday), ErrSchoolRequired)

	_, err = f.availability.List(context.Background(), Principal{}, calendar.Date{}, calendar.Date{})
	assertErrorIs(t, err, ErrUnauthorized)
}

func TestAvailabilityService_CycleThroughStates(t *testing.T) {
	f := newFixture(t)
	sam := f.register(t, "sam", "state")
	ctx := context.Background()
	saturday := calendar.MustParseDate("2025-03-08")

	state := calendar.StateUnset
	for step := 0; step < 3; step++ {
		state = state.Next()
		if state.Stored() {
			record, err := f.availability.Set(ctx, sam, saturday, state)
			if err != nil {
				t.Fatalf("Set(%s) failed: %v", state, err)
			}
			if record.State != state || record.Date != saturday || record.UserID != sam.UserID {
				t.Fatalf("unexpected record %+v", record)
			}
		} else if err := f.availability.Clear(ctx, sam, saturday); err != nil {
			t.Fatalf("Clear failed: %v", err)
		}
	}

	records, err := f.availability.List(ctx, sam, calendar.Date{}, calendar.Date{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected the day to be unset after a full cycle, got %+v", records)
	}

	if err := f.availability.Clear(ctx, sam, saturday); err != nil {
		t.Fatalf("clearing an unset day should succeed, got %v", err)
	}
}

func TestAvailabilityService_List(t *testing.T) {
	f := newFixture(t)
	sam := f.register(t, "sam", "state")
	ctx := context.Background()

	for _, day := range []string{"2025-03-01", "2025-03-08", "2025-05-31", "2025-06-14"} {
		if _, err := f.availability.Set(ctx, sam, calendar.MustParseDate(day), calendar.StateAvailable); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	t.Run("defaults to today through three months", func(t *testing.T) {
		records, err := f.availability.List(ctx, sam, calendar.Date{}, calendar.Date{})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(records) != 2 || records[0].Date.String() != "2025-03-08" || records[1].Date.String() != "2025-05-31" {
			t.Fatalf("unexpected records %+v", records)
		}
	})

	t.Run("honors explicit bounds", func(t *testing.T) {
		records, err := f.availability.List(ctx, sam, calendar.MustParseDate("2025-03-01"), calendar.MustParseDate("2025-03-01"))
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("expected one record, got %d", len(records))
		}
	})

	t.Run("validates the range", func(t *testing.T) {
		_, err := f.availability.List(ctx, sam, calendar.MustParseDate("2025-04-01"), calendar.MustParseDate("2025-03-01"))
		assertValidationField(t, err, "endDate")
		_, err = f.availability.List(ctx, sam, calendar.MustParseDate("2025-01-01"), calendar.MustParseDate("2026-06-01"))
		assertValidationField(t, err, "endDate")
	})

	t.Run("only returns the caller's records", func(t *testing.T) {
		other := f.register(t, "alex", "state")
		records, err := f.availability.List(ctx, other, calendar.Date{}, calendar.Date{})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(records) != 0 {
			t.Fatalf("expected no records for another user, got %d", len(records))
		}
	})
}

func TestAvailabilityService_SetValidatesInput(t *testing.T) {
	f := newFixture(t)
	sam := f.register(t, "sam", "state")

	_, err := f.availability.Set(context.Background(), sam, calendar.Date{}, calendar.StateUnset)
	assertValidationField(t, err, "date")
	assertValidationField(t, err, "state")
}

func TestAvailabilityService_SetSurfacesStorageFailures(t *testing.T) {
	f := newFixture(t)
	sam := f.register(t, "sam", "state")
	f.store.failUpsert = errors.New("disk full")

	_, err := f.availability.Set(context.Background(), sam, calendar.MustParseDate("2025-03-08"), calendar.StateAvailable)
	if err == nil || ErrorKind(err) != "unexpected" {
		t.Fatalf("expected unexpected storage error, got %v", err)
	}
}

func TestAvailabilityService_SchoolDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sam := f.register(t, "sam", "state")
	alex := f.register(t, "alex", "state")
	tess := f.register(t, "tess", "tech")
	saturday := calendar.MustParseDate("2025-03-08")

	for _, p := range []Principal{sam, alex, tess} {
		if _, err := f.availability.Set(ctx, p, saturday, calendar.StateAvailable); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	entries, err := f.availability.SchoolDay(ctx, sam, saturday)
	if err != nil {
		t.Fatalf("SchoolDay failed: %v", err)
	}
	if len(entries) != 1 || entries[0].User.ID != alex.UserID || entries[0].State != calendar.StateAvailable {
		t.Fatalf("expected only alex, got %+v", entries)
	}
}
