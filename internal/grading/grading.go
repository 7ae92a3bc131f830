// Package grading talks to external graders. A grader receives a
// submission's answer, attachment URLs and an opaque user reference and
// replies with a verdict that may auto-approve the submission.
package grading

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"

	"github.com/garnizeh/contest/internal/schemas"
)

var (
	// ErrMalformedResult means the grader answered with something that is
	// not a valid verdict. Retrying will not help.
	ErrMalformedResult = errors.New("grading: malformed result")
	// ErrRejected means the grader refused the request (4xx). Retrying
	// will not help either.
	ErrRejected = errors.New("grading: request rejected")
)

// Request is the payload sent to a grader. Only the JSON-tagged fields cross
// the wire; the challenge fields feed prompt rendering.
type Request struct {
	AnswerText     string   `json:"answer_text"`
	AttachmentURLs []string `json:"attachment_urls"`
	OpaqueUserRef  string   `json:"opaque_user_ref"`

	ChallengeTitle       string `json:"-"`
	ChallengeDescription string `json:"-"`
	MaxPoints            int    `json:"-"`
}

// Result is a grader verdict.
type Result struct {
	Success      bool     `json:"success"`
	AutoApproved bool     `json:"auto_approved"`
	Score        *float64 `json:"score,omitempty"`
	Feedback     *string  `json:"feedback,omitempty"`
}

// MaxScore is the largest score a verdict may carry and still approve.
const MaxScore = math.MaxInt32

// Approval returns the points to award when the verdict auto-approves the
// submission. Fractional scores round half away from zero. Scores outside
// [0, MaxScore] never approve.
func (r *Result) Approval() (int, bool) {
	if r == nil || !r.Success || !r.AutoApproved || r.Score == nil {
		return 0, false
	}
	s := *r.Score
	if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 || s > MaxScore {
		return 0, false
	}
	return int(math.Round(s)), true
}

// Grader produces a verdict for one submission.
type Grader interface {
	Grade(ctx context.Context, req Request) (*Result, error)
}

// Parse validates a raw verdict against the grade_result schema and decodes it.
func Parse(ctx context.Context, loader *schemas.Loader, data []byte) (*Result, error) {
	if err := loader.Validate(ctx, schemas.GradeResult, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	var r Result
	if err := jsonUnmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	return &r, nil
}

var userRefNamespace = uuid.MustParse("6f0e9a8e-4c36-4d53-9d7a-6a7c0f1d2b11")

// UserRef derives the stable opaque reference sent to graders instead of
// the user id.
func UserRef(salt string, userID int64) string {
	return uuid.NewSHA1(userRefNamespace, []byte(salt+":"+strconv.FormatInt(userID, 10))).String()
}
