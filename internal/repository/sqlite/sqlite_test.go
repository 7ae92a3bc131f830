package sqlite_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/garnizeh/contest/internal/repository/sqlite"
	"github.com/garnizeh/contest/internal/testdb"
	"github.com/garnizeh/contest/pkg/models"
	"github.com/garnizeh/contest/pkg/repository"
)

type fixture struct {
	repo        *sqlite.SQLiteRepo
	userID      int64
	competition int64
	challenge   int64
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	_, repo := testdb.Open(t)

	uid, err := repo.CreateUser(ctx, &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "h"})
	require.NoError(t, err)
	cid, err := repo.CreateCompetition(ctx, &models.Competition{Name: "Spring"})
	require.NoError(t, err)
	chID, err := repo.CreateChallenge(ctx, &models.Challenge{CompetitionID: cid, Title: "Warmup", Points: 100, IsActive: true})
	require.NoError(t, err)

	return fixture{repo: repo, userID: uid, competition: cid, challenge: chID}
}

func TestUserCRUD(t *testing.T) {
	ctx := context.Background()
	_, repo := testdb.Open(t)

	_, err := repo.CreateUser(ctx, nil)
	require.Error(t, err)

	got, err := repo.GetUserByID(ctx, 9999)
	require.NoError(t, err)
	require.Nil(t, got)

	id, err := repo.CreateUser(ctx, &models.User{Username: "bob", Email: "bob@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	require.NotZero(t, id)

	_, err = repo.CreateUser(ctx, &models.User{Username: "bob", Email: "other@example.com", PasswordHash: "x"})
	require.Error(t, err, "duplicate username must be refused")

	u, err := repo.GetUserByUsername(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, id, u.ID)
	require.False(t, u.IsAdmin)

	require.NoError(t, repo.SetAdmin(ctx, id, true))
	require.NoError(t, repo.UpdatePassword(ctx, id, "y"))
	u, err = repo.GetUserByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	require.True(t, u.IsAdmin)
	require.Equal(t, "y", u.PasswordHash)

	n, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, repo.DeleteUser(ctx, id))
	u, err = repo.GetUserByID(ctx, id)
	require.NoError(t, err)
	require.Nil(t, u)
}

func TestCompetitionStateAndPause(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	c, err := f.repo.GetCompetition(ctx, f.competition)
	require.NoError(t, err)
	require.Equal(t, models.StatusDraft, c.Status)
	require.Nil(t, c.CountdownStartedAt)

	changed, err := f.repo.PauseIfRunning(ctx, f.competition)
	require.NoError(t, err)
	require.False(t, changed, "draft competitions are not paused")

	c.CountdownMinutes = 10
	require.NoError(t, f.repo.UpdateCompetition(ctx, c))

	started := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, f.repo.SetCompetitionState(ctx, f.competition, models.StatusRunning, &started))

	c, err = f.repo.GetCompetition(ctx, f.competition)
	require.NoError(t, err)
	require.Equal(t, models.StatusRunning, c.Status)
	require.NotNil(t, c.CountdownStartedAt)
	require.True(t, started.Equal(*c.CountdownStartedAt))

	changed, err = f.repo.PauseIfRunning(ctx, f.competition)
	require.NoError(t, err)
	require.True(t, changed)
	changed, err = f.repo.PauseIfRunning(ctx, f.competition)
	require.NoError(t, err)
	require.False(t, changed)

	visible, err := f.repo.ListCompetitions(ctx, true)
	require.NoError(t, err)
	require.Len(t, visible, 1)
}

func TestChallengeOrdering(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	next, err := f.repo.NextChallengeOrder(ctx, f.competition)
	require.NoError(t, err)
	require.Equal(t, 1, next)

	id2, err := f.repo.CreateChallenge(ctx, &models.Challenge{CompetitionID: f.competition, Title: "Second", Points: 50, OrderIndex: next})
	require.NoError(t, err)

	require.NoError(t, f.repo.SetChallengeOrder(ctx, id2, -1))
	list, err := f.repo.ListChallenges(ctx, f.competition, false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, id2, list[0].ID)

	active, err := f.repo.ListChallenges(ctx, f.competition, true)
	require.NoError(t, err)
	require.Len(t, active, 1)

	n, err := f.repo.CountChallenges(ctx, 0, false)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestReviewSubmission_DefaultsToChallengePoints(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	sid, err := f.repo.CreateSubmission(ctx, &models.Submission{UserID: f.userID, ChallengeID: f.challenge, AnswerText: "flag{x}"})
	require.NoError(t, err)

	ok, err := f.repo.ReviewSubmission(ctx, sid, true, nil, models.HumanReviewer(f.userID), time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	s, err := f.repo.GetSubmission(ctx, sid)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionApproved, s.Status)
	require.Equal(t, 100, s.PointsAwarded)
	require.NotNil(t, s.ReviewedAt)
	require.Equal(t, models.ReviewerHuman, s.Reviewer.Kind)
	require.Equal(t, f.userID, *s.Reviewer.UserID)

	// rejection always zeroes points, even when points are supplied
	pts := 40
	ok, err = f.repo.ReviewSubmission(ctx, sid, false, &pts, models.HumanReviewer(f.userID), time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	s, err = f.repo.GetSubmission(ctx, sid)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionRejected, s.Status)
	require.Zero(t, s.PointsAwarded)

	ok, err = f.repo.ReviewSubmission(ctx, 424242, true, nil, models.HumanReviewer(f.userID), time.Now())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestApplyAutomatedApproval_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	sid, err := f.repo.CreateSubmission(ctx, &models.Submission{UserID: f.userID, ChallengeID: f.challenge, AnswerText: "a"})
	require.NoError(t, err)

	changed, err := f.repo.ApplyAutomatedApproval(ctx, sid, 70, time.Now())
	require.NoError(t, err)
	require.True(t, changed)

	first, err := f.repo.GetSubmission(ctx, sid)
	require.NoError(t, err)

	changed, err = f.repo.ApplyAutomatedApproval(ctx, sid, 70, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.False(t, changed)

	second, err := f.repo.GetSubmission(ctx, sid)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, models.ReviewerAutomated, second.Reviewer.Kind)
	require.Nil(t, second.Reviewer.UserID)
}

func TestArchiveCompetition(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	sid, err := f.repo.CreateSubmission(ctx, &models.Submission{UserID: f.userID, ChallengeID: f.challenge, AnswerText: "a"})
	require.NoError(t, err)
	_, err = f.repo.AddSubmissionFile(ctx, &models.SubmissionFile{SubmissionID: sid, Filename: "proof.png", StorageToken: "tok-1"})
	require.NoError(t, err)
	_, err = f.repo.CreateSubmission(ctx, &models.Submission{UserID: f.userID, ChallengeID: f.challenge, AnswerText: "b"})
	require.NoError(t, err)

	var archived int
	err = f.repo.InTx(ctx, func(tx repository.Store) error {
		var err error
		archived, err = tx.ArchiveCompetition(ctx, f.competition, time.Now())
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 2, archived)

	n, err := f.repo.CountSubmissions(ctx, f.competition)
	require.NoError(t, err)
	require.Zero(t, n)

	hist, err := f.repo.ListHistory(ctx, models.HistoryFilter{CompetitionID: f.competition})
	require.NoError(t, err)
	require.Len(t, hist, 2)

	var withFile *models.SubmissionHistory
	for i := range hist {
		require.Equal(t, f.competition, hist[i].CompetitionID)
		if hist[i].OriginalSubmissionID == sid {
			withFile, err = f.repo.GetHistory(ctx, hist[i].ID)
			require.NoError(t, err)
		}
	}
	require.NotNil(t, withFile)
	require.Len(t, withFile.Files, 1)
	require.Equal(t, "tok-1", withFile.Files[0].StorageToken)
}

func TestCascadeDeletes(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	sid, err := f.repo.CreateSubmission(ctx, &models.Submission{UserID: f.userID, ChallengeID: f.challenge, AnswerText: "a"})
	require.NoError(t, err)

	require.NoError(t, f.repo.DeleteUser(ctx, f.userID))
	s, err := f.repo.GetSubmission(ctx, sid)
	require.NoError(t, err)
	require.Nil(t, s)

	require.NoError(t, f.repo.DeleteCompetition(ctx, f.competition))
	ch, err := f.repo.GetChallenge(ctx, f.challenge)
	require.NoError(t, err)
	require.Nil(t, ch)
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	_, repo := testdb.Open(t)

	s, err := repo.GetSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, "CTF Platform", s.Get("platform_name", ""))

	require.NoError(t, repo.SetSetting(ctx, "platform_name", "Arena"))
	s, err = repo.GetSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, "Arena", s["platform_name"])
}

func TestJobQueue_ClaimRetryDeadLetter(t *testing.T) {
	ctx := context.Background()
	_, repo := testdb.Open(t)

	payload, _ := json.Marshal(map[string]int64{"submission_id": 1})
	id, err := repo.Enqueue(ctx, &models.BackgroundJob{Type: "t", Payload: payload, Priority: 10, MaxAttempts: 2})
	require.NoError(t, err)

	j, err := repo.FetchNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, j)
	require.Equal(t, id, j.ID)
	require.Equal(t, "running", j.Status)
	require.JSONEq(t, string(payload), string(j.Payload))

	// a claimed job is not handed out twice
	again, err := repo.FetchNext(ctx)
	require.NoError(t, err)
	require.Nil(t, again)

	future := time.Now().Add(time.Hour)
	j.Status = "retry"
	j.Attempts = 1
	j.NextTryAt = &future
	require.NoError(t, repo.UpdateJob(ctx, j))
	again, err = repo.FetchNext(ctx)
	require.NoError(t, err)
	require.Nil(t, again, "retry is not due yet")

	j.LastError = "boom"
	require.NoError(t, repo.MoveToDeadLetter(ctx, j))
	dl, err := repo.ListDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dl, 1)
	require.Equal(t, id, dl[0].JobID)
	require.Equal(t, "boom", dl[0].LastError)
}
