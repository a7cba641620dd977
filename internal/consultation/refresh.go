package consultation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-capacity-scheduling/internal/audit"
	"github.com/hackgods/hospital-capacity-scheduling/internal/notify"
	redisclient "github.com/hackgods/hospital-capacity-scheduling/internal/redis"
	"github.com/hackgods/hospital-capacity-scheduling/internal/retry"
)

const refreshLockKey = "refresh"

type RefreshResult struct {
	Notified     int  `json:"notified"`
	Elapsed      int  `json:"elapsed"`
	Materialized int  `json:"materialized"`
	Failed       int  `json:"failed"`
	Skipped      bool `json:"skipped"`
}

// RefreshSchedules runs one tick: slot flag transitions, reminder dispatch and
// recurrence materialization. A failure on one slot or consultation is logged
// and counted; the rest of the batch still runs. When a Locker is configured
// and another replica holds the tick, the run is skipped.
func (s *Service) RefreshSchedules(ctx context.Context) (RefreshResult, error) {
	if s.opts.Locker == nil {
		return s.refresh(ctx)
	}

	var res RefreshResult
	err := s.opts.Locker.WithLock(ctx, refreshLockKey, func(lockCtx context.Context) error {
		var err error
		res, err = s.refresh(lockCtx)
		return err
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		zerolog.Ctx(ctx).Info().Msg("refresh tick already running elsewhere, skipping")
		return RefreshResult{Skipped: true}, nil
	}
	return res, err
}

func (s *Service) refresh(ctx context.Context) (RefreshResult, error) {
	var res RefreshResult
	log := zerolog.Ctx(ctx)
	now := s.now()

	slots, err := s.repo.ListSlotsForRefresh(ctx, now, s.opts.NotifyWindow)
	if err != nil {
		return res, fmt.Errorf("list slots for refresh: %w", err)
	}

	for i := range slots {
		notified, elapsed, err := s.refreshSlot(ctx, slots[i], now)
		if notified {
			res.Notified++
		}
		if elapsed {
			res.Elapsed++
		}
		if err != nil {
			res.Failed++
			log.Error().Err(err).
				Str("consultation_id", slots[i].ConsultationID.String()).
				Int("slot_index", slots[i].Index).
				Msg("slot refresh failed")
		}
	}

	due, err := s.repo.ListDueRecurrences(ctx, now)
	if err != nil {
		return res, fmt.Errorf("list due recurrences: %w", err)
	}

	for i := range due {
		created, err := s.materialize(ctx, due[i], now)
		if err != nil {
			res.Failed++
			log.Error().Err(err).
				Str("consultation_id", due[i].ID.String()).
				Msg("recurrence materialization failed")
			continue
		}
		if created {
			res.Materialized++
		}
	}

	s.opts.Metrics.RecordTransition(ctx, "notified", res.Notified)
	s.opts.Metrics.RecordTransition(ctx, "elapsed", res.Elapsed)

	return res, nil
}

// refreshSlot applies the notify and elapsed transitions with one
// compare-and-swap. Reminders go out only after the notified flag is committed,
// so a tick that loses the race never sends them.
func (s *Service) refreshSlot(ctx context.Context, listed Slot, now time.Time) (notified, elapsed bool, err error) {
	var committed Slot

	err = retry.OnConflict(ctx, s.opts.Retry, func(attempt int) error {
		notified, elapsed = false, false

		slot := listed
		if attempt > 1 {
			fresh, err := s.repo.GetSlot(ctx, listed.ConsultationID, listed.Index)
			if err != nil {
				return err
			}
			slot = *fresh
		}

		if !slot.Notified && slot.StartTime.After(now) && !slot.StartTime.After(now.Add(s.opts.NotifyWindow)) {
			slot.Notified = true
			notified = true
		}
		if !slot.Elapsed && !slot.EndTime.After(now) {
			slot.Elapsed = true
			elapsed = true
		}
		if !notified && !elapsed {
			return nil
		}

		if err := s.repo.UpdateSlot(ctx, &slot); err != nil {
			if errors.Is(err, retry.ErrConflict) {
				s.opts.Metrics.RecordConflict(ctx, "slot")
			}
			return err
		}
		committed = slot
		return nil
	})
	if err != nil {
		return false, false, err
	}

	if notified {
		err = s.dispatchReminders(ctx, committed)
	}
	return notified, elapsed, err
}

func (s *Service) dispatchReminders(ctx context.Context, slot Slot) error {
	var errs []error
	for _, u := range slot.Users {
		n := notify.SlotReminder(u.PatientID, slot.ConsultationID, slot.Index, slot.StartTime)
		if err := s.opts.Notifier.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("notify patient %s: %w", u.PatientID, err))
		}
	}
	return errors.Join(errs...)
}

// materialize creates the occurrence at the series' next anchor, then advances
// the descriptor by one step. The store refuses a second occurrence for the
// same series and anchor, so a retried or concurrent tick only advances.
func (s *Service) materialize(ctx context.Context, root Consultation, now time.Time) (bool, error) {
	var occurrence *Consultation
	var next time.Time

	err := retry.OnConflict(ctx, s.opts.Retry, func(attempt int) error {
		cur := &root
		if attempt > 1 {
			fresh, err := s.repo.GetConsultation(ctx, root.ID)
			if err != nil {
				return err
			}
			cur = fresh
		}

		rec := cur.Recurrence
		if !cur.Recurring || rec == nil || rec.Paused || rec.NextOccurrence.After(now) {
			return nil
		}

		anchor := rec.NextOccurrence
		candidate := s.newOccurrence(cur, anchor)
		switch err := s.repo.CreateConsultation(ctx, candidate); {
		case err == nil:
			occurrence = candidate
		case errors.Is(err, ErrOccurrenceExists):
		default:
			return fmt.Errorf("create occurrence: %w", err)
		}

		n, err := NextOccurrence(anchor, rec.Frequency, s.opts.Location)
		if err != nil {
			return err
		}
		rec.NextOccurrence = n

		if err := s.repo.UpdateRecurrence(ctx, cur); err != nil {
			if errors.Is(err, retry.ErrConflict) {
				s.opts.Metrics.RecordConflict(ctx, "consultation")
			}
			return err
		}
		next = n
		return nil
	})
	if occurrence == nil {
		return false, err
	}

	s.opts.Metrics.RecordMaterialization(ctx, string(root.Recurrence.Frequency))
	zerolog.Ctx(ctx).Info().
		Str("series_id", root.ID.String()).
		Str("consultation_id", occurrence.ID.String()).
		Time("anchor_time", occurrence.AnchorTime).
		Time("next_occurrence", next).
		Msg("occurrence materialized")
	audit.Log(ctx, s.opts.Events, occurrence.ID, audit.EventOccurrenceCreated, map[string]any{
		"series_id":   root.ID.String(),
		"anchor_time": occurrence.AnchorTime,
	})

	return true, err
}

func (s *Service) newOccurrence(root *Consultation, anchor time.Time) *Consultation {
	series := root.ID
	if root.SeriesID != nil {
		series = *root.SeriesID
	}

	end := anchor.Add(root.Window())
	return &Consultation{
		ID:           uuid.New(),
		HospitalID:   root.HospitalID,
		HospitalName: root.HospitalName,
		DoctorID:     root.DoctorID,
		DoctorName:   root.DoctorName,
		Specialty:    root.Specialty,
		AnchorTime:   anchor,
		EndTime:      end,
		SlotDuration: root.SlotDuration,
		SeriesID:     &series,
		Slots:        GenerateSlots(anchor, end, root.SlotDuration),
	}
}
