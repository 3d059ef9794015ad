package machine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"docguard/internal/integrity"
	"docguard/internal/session/models"
	"docguard/internal/watermark"
	dErrors "docguard/pkg/domain-errors"
)

type MachineSuite struct {
	suite.Suite
	now      time.Time
	content  []byte
	session  *models.Session
	machine  *Machine
	locks    []models.LockReason
	closed   int
	pages    []int
	verifier *integrity.Verifier
}

func TestMachineSuite(t *testing.T) {
	suite.Run(t, new(MachineSuite))
}

func (s *MachineSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.content = []byte("%PDF-1.7 licensed content")
	s.locks = nil
	s.closed = 0
	s.pages = nil
	s.verifier = integrity.NewVerifier()

	sess, err := models.NewSession("B1", "viewer-7", "device-abcdef123456", watermark.Identity{DisplayName: "Dana"}, models.Grant{
		ContentChecksum: integrity.Sum(s.content),
		ExpiresAt:       s.now.Add(time.Hour),
		TotalPages:      240,
	}, s.now)
	s.Require().NoError(err)
	s.session = sess
	s.machine = New(sess,
		WithClock(func() time.Time { return s.now }),
		WithHardLockHook(func(_ *models.Session, reason models.LockReason) {
			s.locks = append(s.locks, reason)
		}),
		WithTeardownHook(func(*models.Session) { s.closed++ }),
		WithPageObserver(func(page int) { s.pages = append(s.pages, page) }),
	)
}

func (s *MachineSuite) verified() integrity.Verified {
	v, err := s.verifier.VerifyBytes(append([]byte(nil), s.content...), integrity.Sum(s.content))
	s.Require().NoError(err)
	return v
}

func (s *MachineSuite) activate() {
	d, err := s.machine.Activate(s.verified())
	s.Require().NoError(err)
	s.Require().True(d.MayRender)
}

func (s *MachineSuite) event(kind models.EventKind) models.SecurityEvent {
	return models.NewSecurityEvent(kind, s.now, "")
}

func (s *MachineSuite) TestScenarioAActivatesOnFirstPage() {
	d := s.machine.CurrentDecision()
	s.False(d.MayRender)
	s.Equal(models.StateInitializing, d.State)

	d, err := s.machine.Activate(s.verified())
	s.Require().NoError(err)
	s.True(d.MayRender)
	s.Equal(models.StateActive, d.State)
	s.Equal(1, d.CurrentPage)
	s.Equal(240, d.TotalPages)
	s.NotNil(s.session.ActivatedAt)
}

func (s *MachineSuite) TestScenarioBScreenshotLocksForGood() {
	s.activate()
	s.Require().NoError(s.machine.AdvancePage(10))

	d := s.machine.SubmitEvent(s.event(models.EventScreenshot))
	s.False(d.MayRender)
	s.Equal(models.StateLocked, d.State)
	s.Equal(models.LockReasonScreenshot, d.LockReason)

	d = s.machine.SubmitEvent(s.event(models.EventForegrounded))
	s.Equal(models.LockReasonScreenshot, d.LockReason)
	s.False(d.MayRender)

	err := s.machine.AdvancePage(11)
	s.True(dErrors.HasCode(err, dErrors.CodeSessionLocked))
	s.Equal(10, s.session.CurrentPage)
	s.Equal([]models.LockReason{models.LockReasonScreenshot}, s.locks)
}

func (s *MachineSuite) TestScenarioCMismatchedVerificationNeverActivates() {
	other, err := s.verifier.VerifyBytes([]byte("other bytes"), integrity.Sum([]byte("other bytes")))
	s.Require().NoError(err)

	d, err := s.machine.Activate(other)
	s.True(dErrors.HasCode(err, dErrors.CodeChecksumMismatch))
	s.False(d.MayRender)
	s.Equal(models.LockReasonIntegrityFailed, d.LockReason)

	_, err = s.machine.Activate(s.verified())
	s.True(dErrors.HasCode(err, dErrors.CodeSessionLocked))
	s.False(s.machine.CurrentDecision().MayRender)
}

func (s *MachineSuite) TestZeroVerifiedIsRejected() {
	_, err := s.machine.Activate(integrity.Verified{})
	s.True(dErrors.HasCode(err, dErrors.CodeChecksumMismatch))
	s.Equal(models.StateLocked, s.session.State)
}

func (s *MachineSuite) TestScenarioDSoftBlurIsReversible() {
	s.activate()
	s.Require().NoError(s.machine.AdvancePage(37))

	d := s.machine.SubmitEvent(s.event(models.EventBackgrounded))
	s.Equal(models.StateBlurredSoft, d.State)
	s.Equal(models.BlurReasonBackground, d.BlurReason)
	s.False(d.MayRender)
	s.True(d.Dismissible)

	d = s.machine.SubmitEvent(s.event(models.EventForegrounded))
	s.Equal(models.StateActive, d.State)
	s.True(d.MayRender)
	s.Equal(37, d.CurrentPage)
	s.Empty(s.locks)
}

func (s *MachineSuite) TestActivateRejectsExpiredGrant() {
	s.now = s.session.ExpiresAt
	_, err := s.machine.Activate(s.verified())
	s.True(dErrors.HasCode(err, dErrors.CodeSessionExpired))
	s.Equal(models.StateInitializing, s.session.State)
}

func (s *MachineSuite) TestActivateTwiceIsInvalid() {
	s.activate()
	_, err := s.machine.Activate(s.verified())
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *MachineSuite) TestRecordingDuringInitializingLocksOnActivation() {
	d := s.machine.SubmitEvent(s.event(models.EventRecording))
	s.Equal(models.StateInitializing, d.State)

	d, err := s.machine.Activate(s.verified())
	s.Require().NoError(err)
	s.False(d.MayRender)
	s.Equal(models.LockReasonRecording, d.LockReason)
	s.Equal([]models.LockReason{models.LockReasonRecording}, s.locks)
}

func (s *MachineSuite) TestInitializingIgnoresSoftAndCaptureEvents() {
	for _, kind := range []models.EventKind{
		models.EventScreenshot,
		models.EventBackgrounded,
		models.EventForegrounded,
		models.EventSessionExpired,
	} {
		d := s.machine.SubmitEvent(s.event(kind))
		s.Equal(models.StateInitializing, d.State, kind)
	}
	s.Equal(4, s.session.Log.Len())
}

func (s *MachineSuite) TestInitializingLocksOnFatalEvents() {
	for _, kind := range []models.EventKind{
		models.EventIntegrityFailed,
		models.EventRootDetected,
		models.EventRevoked,
	} {
		s.Run(kind.String(), func() {
			s.SetupTest()
			d := s.machine.SubmitEvent(s.event(kind))
			s.Equal(models.StateLocked, d.State)
			s.Equal(kind.LockReason(), d.LockReason)
		})
	}
}

func (s *MachineSuite) TestBlurredSessionLocksOnHardEvents() {
	for _, kind := range []models.EventKind{
		models.EventScreenshot,
		models.EventRecording,
		models.EventSessionExpired,
		models.EventRevoked,
		models.EventRootDetected,
		models.EventIntegrityFailed,
	} {
		s.Run(kind.String(), func() {
			s.SetupTest()
			s.activate()
			s.machine.SubmitEvent(s.event(models.EventBackgrounded))
			d := s.machine.SubmitEvent(s.event(kind))
			s.Equal(models.StateLocked, d.State)
			s.Equal(kind.LockReason(), d.LockReason)
			s.Equal(models.BlurReasonNone, d.BlurReason)
		})
	}
}

func (s *MachineSuite) TestBatchHighestSeverityWins() {
	s.activate()
	d := s.machine.SubmitBatch([]models.SecurityEvent{
		s.event(models.EventBackgrounded),
		s.event(models.EventSessionExpired),
		s.event(models.EventScreenshot),
		s.event(models.EventRootDetected),
		s.event(models.EventRecording),
	})
	s.Equal(models.LockReasonRootDetected, d.LockReason)
	s.Equal(5, s.session.Log.Len())
	s.Equal([]models.LockReason{models.LockReasonRootDetected}, s.locks)
}

func (s *MachineSuite) TestBatchFirstArrivalBreaksTies() {
	s.activate()
	d := s.machine.SubmitBatch([]models.SecurityEvent{
		s.event(models.EventRecording),
		s.event(models.EventScreenshot),
	})
	s.Equal(models.LockReasonRecording, d.LockReason)

	s.SetupTest()
	s.activate()
	d = s.machine.SubmitBatch([]models.SecurityEvent{
		s.event(models.EventRevoked),
		s.event(models.EventSessionExpired),
	})
	s.Equal(models.LockReasonRevoked, d.LockReason)
}

func (s *MachineSuite) TestBatchLastLifecycleSignalDecides() {
	s.Run("foreground then background from active ends blurred", func() {
		s.SetupTest()
		s.activate()
		d := s.machine.SubmitBatch([]models.SecurityEvent{
			s.event(models.EventForegrounded),
			s.event(models.EventBackgrounded),
		})
		s.Equal(models.StateBlurredSoft, d.State)
		s.False(d.MayRender)
	})
	s.Run("foreground then background from blurred stays blurred", func() {
		s.SetupTest()
		s.activate()
		s.machine.SubmitEvent(s.event(models.EventBackgrounded))
		d := s.machine.SubmitBatch([]models.SecurityEvent{
			s.event(models.EventForegrounded),
			s.event(models.EventBackgrounded),
		})
		s.Equal(models.StateBlurredSoft, d.State)
		s.False(d.MayRender)
	})
	s.Run("background then foreground from active ends active", func() {
		s.SetupTest()
		s.activate()
		d := s.machine.SubmitBatch([]models.SecurityEvent{
			s.event(models.EventBackgrounded),
			s.event(models.EventForegrounded),
		})
		s.Equal(models.StateActive, d.State)
		s.True(d.MayRender)
	})
	s.Run("lock outranks any lifecycle sequence", func() {
		s.SetupTest()
		s.activate()
		d := s.machine.SubmitBatch([]models.SecurityEvent{
			s.event(models.EventBackgrounded),
			s.event(models.EventScreenshot),
			s.event(models.EventForegrounded),
		})
		s.Equal(models.LockReasonScreenshot, d.LockReason)
		s.False(d.MayRender)
		s.Equal([]models.LockReason{models.LockReasonScreenshot}, s.locks)
	})
}

func (s *MachineSuite) TestUserExitAppliedAfterWinner() {
	s.activate()
	d := s.machine.SubmitBatch([]models.SecurityEvent{
		s.event(models.EventUserExit),
		s.event(models.EventScreenshot),
	})
	s.True(d.Closed)
	s.False(d.MayRender)
	s.Equal(models.LockReasonScreenshot, d.LockReason)
	s.Equal([]models.LockReason{models.LockReasonScreenshot}, s.locks)
	s.Equal(1, s.closed)
}

func (s *MachineSuite) TestEventsAfterTeardownAreIgnored() {
	s.activate()
	s.machine.SubmitEvent(s.event(models.EventUserExit))
	s.True(s.machine.Closed())

	d := s.machine.SubmitEvent(s.event(models.EventScreenshot))
	s.True(d.Closed)
	s.Equal(models.StateActive, d.State)
	s.Equal(1, s.session.Log.Len())
	s.Equal(1, s.closed)

	err := s.machine.AdvancePage(2)
	s.True(dErrors.HasCode(err, dErrors.CodeSessionLocked))
}

func (s *MachineSuite) TestCloseWithoutEvent() {
	s.activate()
	s.machine.Close()
	s.machine.Close()

	s.True(s.machine.Closed())
	s.Equal(1, s.closed)
	s.Equal(0, s.session.Log.Len())
	s.False(s.machine.CurrentDecision().MayRender)
}

func (s *MachineSuite) TestLockedIsIdempotent() {
	s.activate()
	s.machine.SubmitEvent(s.event(models.EventScreenshot))
	first := s.machine.CurrentDecision()
	for i := 0; i < 3; i++ {
		s.Equal(first, s.machine.SubmitEvent(s.event(models.EventScreenshot)))
	}
	s.Len(s.locks, 1)
	s.Equal(4, s.session.Log.Len())
}

func (s *MachineSuite) TestAdvancePage() {
	s.activate()

	err := s.machine.AdvancePage(0)
	s.True(dErrors.HasCode(err, dErrors.CodePageOutOfRange))
	err = s.machine.AdvancePage(241)
	s.True(dErrors.HasCode(err, dErrors.CodePageOutOfRange))

	s.Require().NoError(s.machine.AdvancePage(240))
	s.Require().NoError(s.machine.AdvancePage(240))
	s.Equal(240, s.session.CurrentPage)
	s.Equal([]int{240}, s.pages)

	s.machine.SubmitEvent(s.event(models.EventBackgrounded))
	err = s.machine.AdvancePage(3)
	s.True(dErrors.HasCode(err, dErrors.CodeSessionLocked))
	s.Equal(240, s.session.CurrentPage)
}

func (s *MachineSuite) TestOutOfRangeReportedBeforeLocked() {
	err := s.machine.AdvancePage(500)
	s.True(dErrors.HasCode(err, dErrors.CodePageOutOfRange))
}

func (s *MachineSuite) TestHardLockIsMonotone() {
	kinds := models.AllEventKinds()
	hard := []models.EventKind{
		models.EventScreenshot,
		models.EventRecording,
		models.EventSessionExpired,
		models.EventRevoked,
		models.EventRootDetected,
		models.EventIntegrityFailed,
	}
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		s.SetupTest()
		s.activate()
		if rng.Intn(2) == 0 {
			s.machine.SubmitEvent(s.event(models.EventBackgrounded))
		}
		lockKind := hard[rng.Intn(len(hard))]
		s.machine.SubmitEvent(s.event(lockKind))
		s.Require().Equal(models.StateLocked, s.session.State)
		reason := s.session.LockReason

		for step := 0; step < 30; step++ {
			var d models.DecisionSnapshot
			if rng.Intn(3) == 0 {
				batch := make([]models.SecurityEvent, 1+rng.Intn(4))
				for i := range batch {
					batch[i] = s.event(kinds[rng.Intn(len(kinds))])
				}
				d = s.machine.SubmitBatch(batch)
			} else {
				d = s.machine.SubmitEvent(s.event(kinds[rng.Intn(len(kinds))]))
			}
			s.Require().False(d.MayRender)
			s.Require().Equal(models.StateLocked, d.State)
			s.Require().Equal(reason, d.LockReason)
			s.Require().Error(s.machine.AdvancePage(1 + rng.Intn(240)))
		}
		s.Require().Len(s.locks, 1)
	}
}
