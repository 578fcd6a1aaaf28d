// Package attendance implements the QR-driven check-in/check-out workflow:
// scan, geolocation capture, proximity gate, photo capture and submission.
package attendance

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	domain "kstu-mobile/internal/domain/attendance"
	xerrors "kstu-mobile/internal/pkg/errors"
)

// MaxFinishDistanceMeters is the proximity gate: a check-out farther than
// this from the check-in point is rejected without submission.
const MaxFinishDistanceMeters = 20.0

// RecordAPI is the slice of the portal client the protocol needs.
type RecordAPI interface {
	LastRecord(ctx context.Context) (*domain.Record, error)
	SubmitCheckIn(ctx context.Context, sub domain.Submission) error
}

// Locator is the device geolocation capability. RequestPermission returns
// ErrPermissionDenied when the user declines; Current reports the device
// position at balanced accuracy.
type Locator interface {
	RequestPermission(ctx context.Context) error
	Current(ctx context.Context) (domain.Coordinates, error)
}

// Camera is the device photo capability for the self-identifying check-out
// shot. Implementations return ErrPhotoCaptureCancelled or
// ErrPhotoCaptureFailed when no usable image results.
type Camera interface {
	CapturePhoto(ctx context.Context) ([]byte, error)
}

type Protocol struct {
	api     RecordAPI
	locator Locator
	camera  Camera
	logger  *zap.Logger

	qrAuthority string

	// scanning is the re-entrancy latch. The camera can emit several scan
	// events for one physical code before the UI dismisses; the latch is
	// flipped synchronously on accepting a scan, before anything suspends,
	// so the duplicates cannot start a second submission.
	scanning atomic.Bool

	mu         sync.Mutex
	open       *domain.OpenCheckIn
	lastStatus string
	lastDate   string
}

func NewProtocol(api RecordAPI, locator Locator, camera Camera, qrAuthority string, logger *zap.Logger) *Protocol {
	return &Protocol{
		api:         api,
		locator:     locator,
		camera:      camera,
		qrAuthority: qrAuthority,
		logger:      logger,
	}
}

// Sync refreshes the read model from the most recent remote record and
// reconstructs the open check-in, if any. The open record is inferred from
// record content alone: status "Начат" with parseable start coordinates.
func (p *Protocol) Sync(ctx context.Context) error {
	rec, err := p.api.LastRecord(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.open = nil
	p.lastStatus = ""
	p.lastDate = ""
	if rec == nil {
		return nil
	}

	p.lastStatus = rec.Status
	p.lastDate = rec.Date
	if rec.Status == domain.StatusStarted {
		start, err := domain.ParseGeo(rec.StartGeo)
		if err != nil {
			p.logger.Warn("started record has unparseable geo, treating as closed",
				zap.String("geo", rec.StartGeo))
			return nil
		}
		p.open = &domain.OpenCheckIn{
			Auditorium: rec.Auditorium,
			Start:      start,
		}
	}
	return nil
}

// Open returns the currently open check-in, nil when none.
func (p *Protocol) Open() *domain.OpenCheckIn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// CanStart reports whether the start action is available: no open check-in
// and no record already finished today.
func (p *Protocol) CanStart(now time.Time) bool {
	return p.startAvailable(now) == nil
}

// startAvailable returns the reason the start action is blocked, nil when it
// is available. A finished record with no date is treated as today's.
func (p *Protocol) startAvailable(now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.open != nil {
		return xerrors.ErrCheckInAlreadyOpen
	}
	if p.lastStatus == domain.StatusFinished {
		if p.lastDate == "" || p.lastDate == now.Format("2006-01-02") {
			return xerrors.ErrWorkdayFinished
		}
	}
	return nil
}

// Start handles an accepted QR scan: validate the payload, capture location
// and submit the check-in. Exactly one scan may be in flight; duplicates are
// rejected with ErrScanInProgress until this attempt fully resolves. A scan
// while a check-in is open or after today's record finished is rejected
// before anything is submitted.
func (p *Protocol) Start(ctx context.Context, qrPayload string) error {
	if !p.scanning.CompareAndSwap(false, true) {
		return xerrors.ErrScanInProgress
	}
	defer p.scanning.Store(false)

	// A duplicate start while a record is open would be taken for a finish
	// by the server, skipping the proximity gate and the photo.
	if err := p.startAvailable(time.Now()); err != nil {
		return err
	}

	aud, err := ParseQR(qrPayload, p.qrAuthority)
	if err != nil {
		return err
	}

	if err := p.locator.RequestPermission(ctx); err != nil {
		return err
	}
	coords, err := p.locator.Current(ctx)
	if err != nil {
		return err
	}

	sub := domain.Submission{
		Auditorium: aud.ID(),
		Geo:        coords.Format(),
	}
	if err := p.api.SubmitCheckIn(ctx, sub); err != nil {
		return err
	}

	p.logger.Info("check-in started",
		zap.String("auditorium", sub.Auditorium),
		zap.String("geo", sub.Geo),
	)

	if err := p.Sync(ctx); err != nil {
		// Submission succeeded; a stale read model is recoverable.
		p.logger.Warn("post-start sync failed", zap.Error(err))
	}
	return nil
}

// Finish closes the open check-in: capture location, enforce the proximity
// gate against the recorded start point, capture a photo and submit.
func (p *Protocol) Finish(ctx context.Context) error {
	open := p.Open()
	if open == nil {
		return xerrors.ErrNoActiveCheckIn
	}

	if err := p.locator.RequestPermission(ctx); err != nil {
		return err
	}
	coords, err := p.locator.Current(ctx)
	if err != nil {
		return err
	}

	dist := Distance(open.Start, coords)
	if dist > MaxFinishDistanceMeters {
		return &xerrors.TooFarError{
			Distance: int(math.Round(dist)),
			Limit:    MaxFinishDistanceMeters,
		}
	}

	img, err := p.camera.CapturePhoto(ctx)
	if err != nil {
		return err
	}

	sub := domain.Submission{
		Auditorium: open.Auditorium,
		Geo:        coords.Format(),
		Image:      img,
		ImageName:  "finish.jpg",
	}
	if err := p.api.SubmitCheckIn(ctx, sub); err != nil {
		return err
	}

	p.logger.Info("check-in finished",
		zap.String("auditorium", sub.Auditorium),
		zap.Float64("distance_m", dist),
	)

	if err := p.Sync(ctx); err != nil {
		p.logger.Warn("post-finish sync failed", zap.Error(err))
	}
	return nil
}
