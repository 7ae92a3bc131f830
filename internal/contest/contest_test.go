package contest_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/garnizeh/contest/internal/contest"
	"github.com/garnizeh/contest/internal/grading"
	"github.com/garnizeh/contest/internal/jobs"
	"github.com/garnizeh/contest/internal/repository/sqlite"
	"github.com/garnizeh/contest/internal/storage"
	"github.com/garnizeh/contest/internal/testdb"
	"github.com/garnizeh/contest/pkg/models"
	"github.com/garnizeh/contest/pkg/repository"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type env struct {
	svc   *contest.Service
	repo  *sqlite.SQLiteRepo
	clock *clock
	files *storage.LocalStore
}

func newEnv(t *testing.T, tweak ...func(*contest.Options)) *env {
	t.Helper()
	_, repo := testdb.Open(t)
	files, err := storage.NewLocalStore(t.TempDir(), "http://files.test/uploads")
	require.NoError(t, err)
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	opts := contest.Options{
		Store:             repo,
		Files:             files,
		AllowedExtensions: []string{"png", "txt"},
		Logger:            slog.New(slog.DiscardHandler),
		Clock:             clk.Now,
	}
	for _, f := range tweak {
		f(&opts)
	}
	svc, err := contest.New(opts)
	require.NoError(t, err)
	return &env{svc: svc, repo: repo, clock: clk, files: files}
}

func (e *env) user(t *testing.T, name string) *models.User {
	t.Helper()
	u, err := e.svc.Register(context.Background(), name, name+"@example.com", "password1")
	require.NoError(t, err)
	return u
}

func (e *env) competition(t *testing.T, minutes int, challenges ...int) (*models.Competition, []*models.Challenge) {
	t.Helper()
	ctx := context.Background()
	c, err := e.svc.CreateCompetition(ctx, contest.CompetitionInput{Name: "Finals", CountdownMinutes: minutes})
	require.NoError(t, err)
	var out []*models.Challenge
	for i, pts := range challenges {
		p := pts
		ch, err := e.svc.CreateChallenge(ctx, contest.ChallengeInput{CompetitionID: c.ID, Title: "C" + string(rune('A'+i)), Points: &p})
		require.NoError(t, err)
		out = append(out, ch)
	}
	return c, out
}

func (e *env) submit(t *testing.T, userID, challengeID int64) *models.Submission {
	t.Helper()
	sub, err := e.svc.Submit(context.Background(), contest.SubmitRequest{UserID: userID, ChallengeID: challengeID, Answer: "flag{x}"})
	require.NoError(t, err)
	return sub
}

func (e *env) approve(t *testing.T, subID, reviewerID int64, points int) {
	t.Helper()
	_, err := e.svc.Review(context.Background(), subID, reviewerID, contest.Decision{Approved: true, Points: &points})
	require.NoError(t, err)
}

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	c, _ := e.competition(t, 30)

	_, err := e.svc.Pause(ctx, c.ID)
	require.ErrorIs(t, err, contest.ErrInvalidTransition)

	started, err := e.svc.Start(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusRunning, started.Status)
	require.NotNil(t, started.CountdownStartedAt)
	require.True(t, e.clock.Now().Equal(*started.CountdownStartedAt))

	_, err = e.svc.Start(ctx, c.ID)
	require.ErrorIs(t, err, contest.ErrInvalidTransition)

	paused, err := e.svc.Pause(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPaused, paused.Status)
	require.NotNil(t, paused.CountdownStartedAt, "pausing keeps the countdown")

	resumed, err := e.svc.Pause(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusRunning, resumed.Status)

	stopped, err := e.svc.Stop(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusStopped, stopped.Status)

	_, err = e.svc.Reset(ctx, c.ID)
	require.NoError(t, err)
	got, err := e.svc.Competition(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusDraft, got.Status)
	require.Nil(t, got.CountdownStartedAt)

	_, err = e.svc.Start(ctx, 9999)
	require.ErrorIs(t, err, contest.ErrNotFound)
}

func TestStartWithoutCountdown(t *testing.T) {
	e := newEnv(t)
	c, _ := e.competition(t, 0)
	started, err := e.svc.Start(context.Background(), c.ID)
	require.NoError(t, err)
	require.Nil(t, started.CountdownStartedAt)

	view, err := e.svc.ViewCompetition(context.Background(), c.ID, contest.Viewer{})
	require.NoError(t, err)
	require.Nil(t, view.RemainingSeconds)
}

func TestSubmit_RequiresRunningCompetition(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u := e.user(t, "alice")
	c, chs := e.competition(t, 0, 100)

	_, err := e.svc.Submit(ctx, contest.SubmitRequest{UserID: u.ID, ChallengeID: chs[0].ID, Answer: "a"})
	require.ErrorIs(t, err, contest.ErrCompetitionInactive)

	_, err = e.svc.Start(ctx, c.ID)
	require.NoError(t, err)
	_, err = e.svc.Submit(ctx, contest.SubmitRequest{UserID: u.ID, ChallengeID: chs[0].ID, Answer: "  "})
	require.ErrorIs(t, err, contest.ErrInvalidInput)

	e.submit(t, u.ID, chs[0].ID)
	e.submit(t, u.ID, chs[0].ID)

	n, err := e.repo.CountSubmissions(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n, "resubmission is always allowed")
}

func TestCountdownExpiryAutoPauses(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u := e.user(t, "alice")
	c, chs := e.competition(t, 10, 100)
	_, err := e.svc.Start(ctx, c.ID)
	require.NoError(t, err)

	e.clock.Advance(4 * time.Minute)
	view, err := e.svc.ViewChallenge(ctx, chs[0].ID, contest.Viewer{UserID: u.ID})
	require.NoError(t, err)
	require.Equal(t, int64(360), *view.RemainingSeconds)

	e.clock.Advance(6 * time.Minute)
	_, err = e.svc.ViewChallenge(ctx, chs[0].ID, contest.Viewer{UserID: u.ID})
	require.ErrorIs(t, err, contest.ErrCountdownExpired)

	got, err := e.svc.Competition(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPaused, got.Status)

	_, err = e.svc.Submit(ctx, contest.SubmitRequest{UserID: u.ID, ChallengeID: chs[0].ID, Answer: "late"})
	require.ErrorIs(t, err, contest.ErrCompetitionInactive)
}

func TestSubmit_ExpiredCountdownPausesAndWritesNothing(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u := e.user(t, "alice")
	c, chs := e.competition(t, 1, 100)
	_, err := e.svc.Start(ctx, c.ID)
	require.NoError(t, err)
	e.clock.Advance(61 * time.Second)

	_, err = e.svc.Submit(ctx, contest.SubmitRequest{
		UserID: u.ID, ChallengeID: chs[0].ID, Answer: "late",
		Files: []contest.Attachment{{Filename: "proof.png", Body: strings.NewReader("png")}},
	})
	require.ErrorIs(t, err, contest.ErrCountdownExpired)

	got, err := e.svc.Competition(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPaused, got.Status)

	n, err := e.repo.CountSubmissions(ctx, c.ID)
	require.NoError(t, err)
	require.Zero(t, n)
}

// slowStore moves the clock forward while an attachment is being saved and
// records deleted tokens.
type slowStore struct {
	*storage.LocalStore
	clock   *clock
	advance time.Duration

	mu      sync.Mutex
	deleted []string
}

func (s *slowStore) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	token, err := s.LocalStore.Save(ctx, filename, r)
	s.clock.Advance(s.advance)
	return token, err
}

func (s *slowStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	s.deleted = append(s.deleted, token)
	s.mu.Unlock()
	return s.LocalStore.Delete(ctx, token)
}

func TestSubmit_ExpiresWhileStoringAttachments(t *testing.T) {
	ctx := context.Background()
	slow := &slowStore{advance: 2 * time.Minute}
	e := newEnv(t, func(o *contest.Options) { o.Files = slow })
	slow.clock = e.clock
	slow.LocalStore = e.files

	u := e.user(t, "alice")
	c, chs := e.competition(t, 1, 100)
	_, err := e.svc.Start(ctx, c.ID)
	require.NoError(t, err)

	_, err = e.svc.Submit(ctx, contest.SubmitRequest{
		UserID: u.ID, ChallengeID: chs[0].ID, Answer: "just in time",
		Files: []contest.Attachment{{Filename: "proof.png", Body: strings.NewReader("png")}},
	})
	require.ErrorIs(t, err, contest.ErrCountdownExpired)

	got, err := e.svc.Competition(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPaused, got.Status)

	n, err := e.repo.CountSubmissions(ctx, c.ID)
	require.NoError(t, err)
	require.Zero(t, n)

	require.Len(t, slow.deleted, 1)
	_, err = e.files.Open(slow.deleted[0])
	require.Error(t, err)
}

func TestSubmit_ConcurrentAfterExpiry(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	c, chs := e.competition(t, 5, 100)
	var users []*models.User
	for _, name := range []string{"a1", "a2", "a3", "a4", "a5", "a6"} {
		users = append(users, e.user(t, name))
	}
	_, err := e.svc.Start(ctx, c.ID)
	require.NoError(t, err)
	e.clock.Advance(5 * time.Minute)

	var wg sync.WaitGroup
	errs := make([]error, len(users))
	for i, u := range users {
		wg.Add(1)
		go func(i int, uid int64) {
			defer wg.Done()
			_, errs[i] = e.svc.Submit(ctx, contest.SubmitRequest{UserID: uid, ChallengeID: chs[0].ID, Answer: "x"})
		}(i, u.ID)
	}
	wg.Wait()

	for _, err := range errs {
		require.True(t, errors.Is(err, contest.ErrCountdownExpired) || errors.Is(err, contest.ErrCompetitionInactive), "got %v", err)
	}
	n, err := e.repo.CountSubmissions(ctx, c.ID)
	require.NoError(t, err)
	require.Zero(t, n)

	got, err := e.svc.Competition(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPaused, got.Status)
}

func TestSubmit_FiltersAttachmentsAndEnqueuesGrading(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, func(o *contest.Options) { o.GradingEnabled = true; o.GradingMaxAttempts = 3 })
	u := e.user(t, "alice")
	c, chs := e.competition(t, 0, 100)
	_, err := e.svc.Start(ctx, c.ID)
	require.NoError(t, err)

	sub, err := e.svc.Submit(ctx, contest.SubmitRequest{
		UserID: u.ID, ChallengeID: chs[0].ID, Answer: "see files",
		Files: []contest.Attachment{
			{Filename: "proof.png", Body: strings.NewReader("png-bytes")},
			{Filename: "run.exe", Body: strings.NewReader("nope")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, models.SubmissionPending, sub.Status)
	require.Len(t, sub.Files, 1)
	require.Equal(t, "proof.png", sub.Files[0].Filename)

	stored, err := e.svc.Submission(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, stored.Files, 1)
	f, err := e.files.Open(stored.Files[0].StorageToken)
	require.NoError(t, err)
	_ = f.Close()

	job, err := e.repo.FetchNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, contest.JobGradeSubmission, job.Type)
	require.Equal(t, 3, job.MaxAttempts)
	require.JSONEq(t, `{"submission_id":`+strconv.FormatInt(sub.ID, 10)+`}`, string(job.Payload))
}

type graderFunc func(ctx context.Context, req grading.Request) (*grading.Result, error)

func (f graderFunc) Grade(ctx context.Context, req grading.Request) (*grading.Result, error) {
	return f(ctx, req)
}

func score(v float64) *float64 { return &v }

func TestGradingHandler_IdempotentApproval(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, func(o *contest.Options) { o.GradingEnabled = true })
	u := e.user(t, "alice")
	c, chs := e.competition(t, 0, 100)
	_, err := e.svc.Start(ctx, c.ID)
	require.NoError(t, err)
	_, err = e.svc.Submit(ctx, contest.SubmitRequest{
		UserID: u.ID, ChallengeID: chs[0].ID, Answer: "42",
		Files: []contest.Attachment{{Filename: "notes.txt", Body: strings.NewReader("n")}},
	})
	require.NoError(t, err)

	var seen grading.Request
	h := e.svc.GradingHandler(graderFunc(func(_ context.Context, req grading.Request) (*grading.Result, error) {
		seen = req
		return &grading.Result{Success: true, AutoApproved: true, Score: score(75)}, nil
	}), "salt")

	job, err := e.repo.FetchNext(ctx)
	require.NoError(t, err)
	require.NoError(t, h(ctx, job))

	sub, err := e.svc.Submissions(ctx, repository.SubmissionFilter{UserID: u.ID})
	require.NoError(t, err)
	require.Len(t, sub, 1)
	first := sub[0]
	require.Equal(t, models.SubmissionApproved, first.Status)
	require.Equal(t, 75, first.PointsAwarded)
	require.Equal(t, models.ReviewerAutomated, first.Reviewer.Kind)
	require.Nil(t, first.Reviewer.UserID)

	require.Equal(t, "42", seen.AnswerText)
	require.Equal(t, grading.UserRef("salt", u.ID), seen.OpaqueUserRef)
	require.Len(t, seen.AttachmentURLs, 1)
	require.True(t, strings.HasPrefix(seen.AttachmentURLs[0], "http://files.test/uploads/"))

	// a redelivered job changes nothing
	e.clock.Advance(time.Minute)
	require.NoError(t, h(ctx, job))
	sub, err = e.svc.Submissions(ctx, repository.SubmissionFilter{UserID: u.ID})
	require.NoError(t, err)
	require.Equal(t, first, sub[0])
}

func TestGradingHandler_Failures(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, func(o *contest.Options) { o.GradingEnabled = true })
	u := e.user(t, "alice")
	c, chs := e.competition(t, 0, 100)
	_, err := e.svc.Start(ctx, c.ID)
	require.NoError(t, err)
	s := e.submit(t, u.ID, chs[0].ID)
	job, err := e.repo.FetchNext(ctx)
	require.NoError(t, err)

	malformed := e.svc.GradingHandler(graderFunc(func(context.Context, grading.Request) (*grading.Result, error) {
		return nil, grading.ErrMalformedResult
	}), "")
	err = malformed(ctx, job)
	require.Error(t, err)
	require.True(t, jobs.IsPermanent(err))

	transport := e.svc.GradingHandler(graderFunc(func(context.Context, grading.Request) (*grading.Result, error) {
		return nil, errors.New("connection refused")
	}), "")
	err = transport(ctx, job)
	require.Error(t, err)
	require.False(t, jobs.IsPermanent(err))

	declined := e.svc.GradingHandler(graderFunc(func(context.Context, grading.Request) (*grading.Result, error) {
		return &grading.Result{Success: true, AutoApproved: false, Score: score(100)}, nil
	}), "")
	require.NoError(t, declined(ctx, job))

	overflow := e.svc.GradingHandler(graderFunc(func(context.Context, grading.Request) (*grading.Result, error) {
		return &grading.Result{Success: true, AutoApproved: true, Score: score(1e300)}, nil
	}), "")
	require.NoError(t, overflow(ctx, job))

	got, err := e.svc.Submission(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionPending, got.Status)
	require.Zero(t, got.PointsAwarded)
	require.Nil(t, got.ReviewedAt)

	bad := &models.BackgroundJob{Type: contest.JobGradeSubmission, Payload: []byte(`{}`)}
	require.True(t, jobs.IsPermanent(declined(ctx, bad)))

	gone := &models.BackgroundJob{Type: contest.JobGradeSubmission, Payload: []byte(`{"submission_id":424242}`)}
	require.NoError(t, declined(ctx, gone))
}

func TestReview_LastWriterWins(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	admin := e.user(t, "judge")
	u := e.user(t, "alice")
	c, chs := e.competition(t, 0, 100)
	_, err := e.svc.Start(ctx, c.ID)
	require.NoError(t, err)
	s := e.submit(t, u.ID, chs[0].ID)

	changed, err := e.svc.ApplyGrade(ctx, s.ID, &grading.Result{Success: true, AutoApproved: true, Score: score(60)})
	require.NoError(t, err)
	require.True(t, changed)

	got, err := e.svc.Review(ctx, s.ID, admin.ID, contest.Decision{Approved: false})
	require.NoError(t, err)
	require.Equal(t, models.SubmissionRejected, got.Status)
	require.Zero(t, got.PointsAwarded)
	require.Equal(t, models.ReviewerHuman, got.Reviewer.Kind)
	require.Equal(t, admin.ID, *got.Reviewer.UserID)

	got, err = e.svc.Review(ctx, s.ID, admin.ID, contest.Decision{Approved: true})
	require.NoError(t, err)
	require.Equal(t, 100, got.PointsAwarded, "approval defaults to the challenge points")

	changed, err = e.svc.ApplyGrade(ctx, s.ID, &grading.Result{Success: true, AutoApproved: true, Score: score(60)})
	require.NoError(t, err)
	require.True(t, changed)
	got, err = e.svc.Submission(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, 60, got.PointsAwarded)
	require.Equal(t, models.ReviewerAutomated, got.Reviewer.Kind)

	neg := -1
	_, err = e.svc.Review(ctx, s.ID, admin.ID, contest.Decision{Approved: true, Points: &neg})
	require.ErrorIs(t, err, contest.ErrInvalidInput)
	_, err = e.svc.Review(ctx, 777, admin.ID, contest.Decision{Approved: true})
	require.ErrorIs(t, err, contest.ErrNotFound)
}

func TestLeaderboard_MaxNotSum(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	judge := e.user(t, "judge")
	alice := e.user(t, "alice")
	bob := e.user(t, "bob")
	c, chs := e.competition(t, 0, 100, 50)
	_, err := e.svc.Start(ctx, c.ID)
	require.NoError(t, err)

	e.approve(t, e.submit(t, alice.ID, chs[0].ID).ID, judge.ID, 40)
	e.clock.Advance(time.Minute)
	e.approve(t, e.submit(t, alice.ID, chs[0].ID).ID, judge.ID, 100)
	e.clock.Advance(time.Minute)
	// a lower later resubmission does not lower the total
	e.approve(t, e.submit(t, alice.ID, chs[0].ID).ID, judge.ID, 10)
	e.clock.Advance(time.Minute)
	e.approve(t, e.submit(t, bob.ID, chs[1].ID).ID, judge.ID, 50)
	// pending and rejected submissions do not count
	e.submit(t, bob.ID, chs[0].ID)

	lb, err := e.svc.Leaderboard(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, c.ID, lb.Competition.ID)
	require.True(t, lb.Competition.IsRunning)
	require.Len(t, lb.Standings, 2)
	require.Equal(t, "alice", lb.Standings[0].Username)
	require.Equal(t, 100, lb.Standings[0].TotalPoints)
	require.Equal(t, 1, lb.Standings[0].Rank)
	require.Equal(t, "bob", lb.Standings[1].Username)
	require.Equal(t, 50, lb.Standings[1].TotalPoints)
	require.Equal(t, 2, lb.Standings[1].Rank)
}

func TestRank_TieBreakAndContributingTime(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	at := func(m int) time.Time { return t0.Add(time.Duration(m) * time.Minute) }

	solves := []models.Solve{
		// user 1 reaches 100 on challenge 1 at minute 1 and again at minute 9
		{UserID: 1, Username: "u1", ChallengeID: 1, Points: 100, ReviewedAt: at(1)},
		{UserID: 1, Username: "u1", ChallengeID: 1, Points: 100, ReviewedAt: at(9)},
		{UserID: 1, Username: "u1", ChallengeID: 2, Points: 20, ReviewedAt: at(3)},
		// user 2 has the same total but solved later
		{UserID: 2, Username: "u2", ChallengeID: 1, Points: 120, ReviewedAt: at(5)},
		// user 3 ties user 2 exactly and loses on id
		{UserID: 3, Username: "u3", ChallengeID: 1, Points: 120, ReviewedAt: at(5)},
		{UserID: 4, Username: "u4", ChallengeID: 2, Points: 500, ReviewedAt: at(30)},
	}

	got := contest.Rank(solves)
	require.Len(t, got, 4)

	names := []string{got[0].Username, got[1].Username, got[2].Username, got[3].Username}
	require.Equal(t, []string{"u4", "u1", "u2", "u3"}, names)
	require.Equal(t, 120, got[1].TotalPoints)
	require.True(t, at(3).Equal(*got[1].LastSolveTime), "the earliest review reaching the max contributes")
	for i, st := range got {
		require.Equal(t, i+1, st.Rank)
	}

	require.Empty(t, contest.Rank(nil))
}

func TestReset_ArchivesAndEmptiesLeaderboard(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	judge := e.user(t, "judge")
	alice := e.user(t, "alice")
	c, chs := e.competition(t, 15, 100)
	_, err := e.svc.Start(ctx, c.ID)
	require.NoError(t, err)

	first, err := e.svc.Submit(ctx, contest.SubmitRequest{
		UserID: alice.ID, ChallengeID: chs[0].ID, Answer: "a",
		Files: []contest.Attachment{{Filename: "proof.png", Body: strings.NewReader("x")}},
	})
	require.NoError(t, err)
	e.approve(t, first.ID, judge.ID, 100)
	e.submit(t, alice.ID, chs[0].ID)

	archived, err := e.svc.Reset(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 2, archived)

	lb, err := e.svc.Leaderboard(ctx, c.ID)
	require.NoError(t, err)
	require.Empty(t, lb.Standings)

	stats, err := e.svc.Stats(ctx, c.ID)
	require.NoError(t, err)
	require.Zero(t, stats.SubmissionsCount)
	require.Equal(t, 1, stats.ChallengesCount)
	require.False(t, stats.IsRunning)

	hist, err := e.svc.History(ctx, models.HistoryFilter{CompetitionID: c.ID})
	require.NoError(t, err)
	require.Len(t, hist, 2)
	for _, h := range hist {
		if h.OriginalSubmissionID != first.ID {
			continue
		}
		require.Equal(t, models.SubmissionApproved, h.Status)
		require.Equal(t, 100, h.PointsAwarded)
		entry, err := e.svc.HistoryEntry(ctx, h.ID)
		require.NoError(t, err)
		require.Len(t, entry.Files, 1)
		require.Equal(t, first.Files[0].StorageToken, entry.Files[0].StorageToken)
	}
}

func TestCascadeDeletes(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	admin := e.user(t, "admin")
	alice := e.user(t, "alice")
	c, chs := e.competition(t, 0, 100)
	_, err := e.svc.Start(ctx, c.ID)
	require.NoError(t, err)
	s := e.submit(t, alice.ID, chs[0].ID)

	require.NoError(t, e.svc.DeleteUser(ctx, admin.ID, alice.ID))
	_, err = e.svc.Submission(ctx, s.ID)
	require.ErrorIs(t, err, contest.ErrNotFound)

	require.NoError(t, e.svc.DeleteCompetition(ctx, c.ID))
	_, err = e.svc.Challenge(ctx, chs[0].ID)
	require.ErrorIs(t, err, contest.ErrNotFound)
	require.ErrorIs(t, e.svc.DeleteCompetition(ctx, c.ID), contest.ErrNotFound)
}

func TestViewCompetition(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.user(t, "alice")
	c, chs := e.competition(t, 0, 100, 50)

	_, err := e.svc.ViewCompetition(ctx, c.ID, contest.Viewer{UserID: alice.ID})
	require.ErrorIs(t, err, contest.ErrNotFound, "drafts are hidden")

	_, err = e.svc.Start(ctx, c.ID)
	require.NoError(t, err)
	_, err = e.svc.ToggleChallenge(ctx, chs[1].ID)
	require.NoError(t, err)
	s := e.submit(t, alice.ID, chs[0].ID)

	view, err := e.svc.ViewCompetition(ctx, c.ID, contest.Viewer{UserID: alice.ID})
	require.NoError(t, err)
	require.Len(t, view.Challenges, 1, "inactive challenges are hidden")
	require.Equal(t, s.ID, view.Challenges[0].LatestSubmission.ID)

	_, err = e.svc.Pause(ctx, c.ID)
	require.NoError(t, err)
	_, err = e.svc.ViewCompetition(ctx, c.ID, contest.Viewer{UserID: alice.ID})
	require.ErrorIs(t, err, contest.ErrCompetitionInactive)
	_, err = e.svc.ViewCompetition(ctx, c.ID, contest.Viewer{UserID: alice.ID, IsAdmin: true})
	require.NoError(t, err)

	visible, err := e.svc.VisibleCompetitions(ctx)
	require.NoError(t, err)
	require.Len(t, visible, 1)
}
