package events

import (
	"villaops/internal/models"

	"github.com/rs/zerolog"
)

// Sync event types written to the sync log.
const (
	EventBookingCreated   = "booking.created"
	EventBookingImported  = "booking.imported"
	EventBookingUpdated   = "booking.updated"
	EventBookingApproved  = "booking.approved"
	EventBookingRejected  = "booking.rejected"
	EventBookingCancelled = "booking.cancelled"
	EventBookingCompleted = "booking.completed"
	EventJobCreated       = "job.created"
	EventJobAssigned      = "job.assigned"
	EventJobStatus        = "job.status_changed"
	EventConflictDetected = "conflict.detected"
	EventAIDecision       = "ai.decision"
	EventAIResolved       = "ai.resolved"
)

// SyncService wraps the feed with typed publish and subscribe helpers.
// Subscribers get decoded records; changes that fail to decode are logged
// and skipped.
type SyncService struct {
	feed   *Feed
	logger *zerolog.Logger
}

func NewSyncService(feed *Feed, logger *zerolog.Logger) *SyncService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &SyncService{feed: feed, logger: logger}
}

func (s *SyncService) Feed() *Feed {
	return s.feed
}

func (s *SyncService) PublishBooking(op Op, b *models.Booking) {
	s.publish(CollectionBookings, op, b.ID, b.PropertyID, 0, b)
}

func (s *SyncService) PublishJob(op Op, j *models.Job) {
	var staffID int64
	if j.StaffID != nil {
		staffID = *j.StaffID
	}
	s.publish(CollectionJobs, op, j.ID, j.PropertyID, staffID, j)
}

func (s *SyncService) PublishNotification(op Op, n *models.Notification) {
	s.publish(CollectionNotifications, op, n.ID, 0, n.StaffID, n)
}

func (s *SyncService) PublishConflict(op Op, c *models.Conflict) {
	s.publish(CollectionConflicts, op, c.ID, c.PropertyID, c.StaffID, c)
}

func (s *SyncService) PublishStaff(op Op, p *models.StaffProfile) {
	s.publish(CollectionStaff, op, p.ID, 0, p.ID, p)
}

func (s *SyncService) publish(collection string, op Op, id, propertyID, staffID int64, record interface{}) {
	c, err := NewChange(collection, op, id, record)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to build change")
		return
	}
	c.PropertyID = propertyID
	c.StaffID = staffID
	s.feed.Publish(c)
}

// Local reports whether c was published by this process rather than
// relayed from another instance.
func (s *SyncService) Local(c Change) bool {
	return c.Origin == "" || c.Origin == s.feed.Origin()
}

// SubscribeBookings delivers booking changes matching filter together with
// the change envelope, so callers can tell relayed changes apart.
func (s *SyncService) SubscribeBookings(filter Filter, fn func(Change, *models.Booking)) func() {
	filter.Collections = []string{CollectionBookings}
	return s.feed.Subscribe(filter, func(c Change) {
		var b models.Booking
		if !s.decode(c, &b) {
			return
		}
		fn(c, &b)
	})
}

// SubscribeJobs delivers job changes matching filter. A StaffID filter
// matches the staff member the job is assigned to.
func (s *SyncService) SubscribeJobs(filter Filter, fn func(Change, *models.Job)) func() {
	filter.Collections = []string{CollectionJobs}
	return s.feed.Subscribe(filter, func(c Change) {
		var j models.Job
		if !s.decode(c, &j) {
			return
		}
		fn(c, &j)
	})
}

// SubscribeNotifications delivers notifications addressed to staffID.
func (s *SyncService) SubscribeNotifications(staffID int64, fn func(Op, *models.Notification)) func() {
	filter := Filter{Collections: []string{CollectionNotifications}, StaffID: staffID}
	return s.feed.Subscribe(filter, func(c Change) {
		var n models.Notification
		if !s.decode(c, &n) {
			return
		}
		fn(c.Op, &n)
	})
}

func (s *SyncService) SubscribeConflicts(filter Filter, fn func(Op, *models.Conflict)) func() {
	filter.Collections = []string{CollectionConflicts}
	return s.feed.Subscribe(filter, func(c Change) {
		var conflict models.Conflict
		if !s.decode(c, &conflict) {
			return
		}
		fn(c.Op, &conflict)
	})
}

func (s *SyncService) decode(c Change, v interface{}) bool {
	if err := c.Decode(v); err != nil {
		s.logger.Warn().
			Err(err).
			Str("collection", c.Collection).
			Str("change_id", c.ID).
			Msg("skipping undecodable change")
		return false
	}
	return true
}
