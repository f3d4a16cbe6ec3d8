// Package feedback はベンダーへのフィードバック投稿を提供する。
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/vendorhub/internal/model"
	"github.com/hitoshi/vendorhub/internal/repository"
)

const (
	maxTextLength = 2000
	maxTags       = 20
	maxTagLength  = 50
	anonAuthor    = "anon"
)

// Author はフィードバック投稿者のセッション情報。
type Author struct {
	ID    string
	Name  string
	Email string
}

// SubmitInput はフィードバック投稿の入力。
type SubmitInput struct {
	VendorID      string   `json:"vendorId"`
	RatingQuality Rating   `json:"ratingQuality"`
	RatingSpeed   Rating   `json:"ratingSpeed"`
	RatingComm    Rating   `json:"ratingComm"`
	Text          string   `json:"text"`
	Tags          []string `json:"tags"`
	Link          *string  `json:"link"`
	IsPrivate     bool     `json:"isPrivate"`
}

// TextSanitizer は本文からマークアップを除去する。
type TextSanitizer interface {
	SanitizeText(raw string) string
}

// LinkValidator は参考リンクの宛先を検証する。
type LinkValidator interface {
	ValidateURL(rawURL string) error
}

// Recorder はフィードバック投稿を記録する。
type Recorder interface {
	RecordFeedbackSubmitted()
}

type nopRecorder struct{}

func (nopRecorder) RecordFeedbackSubmitted() {}

// Service はフィードバック投稿のビジネスロジックを提供する。
type Service struct {
	feedback  repository.FeedbackRepository
	vendors   repository.VendorRepository
	sanitizer TextSanitizer
	links     LinkValidator
	recorder  Recorder
	now       func() time.Time
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(
	feedback repository.FeedbackRepository,
	vendors repository.VendorRepository,
	sanitizer TextSanitizer,
	links LinkValidator,
	recorder Recorder,
) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		feedback:  feedback,
		vendors:   vendors,
		sanitizer: sanitizer,
		links:     links,
		recorder:  recorder,
		now:       time.Now,
	}
}

// Submit はフィードバックを1件追加し、そのIDを返す。
// 既存のフィードバックを更新・削除することはない。
func (s *Service) Submit(ctx context.Context, author Author, in SubmitInput) (string, error) {
	if author.ID == "" && author.Email == "" {
		return "", model.NewUnauthorizedError()
	}

	fb, fields := s.build(in)
	if len(fields) > 0 {
		return "", model.NewValidationError(fields)
	}

	exists, err := s.vendors.Exists(ctx, fb.VendorID)
	if err != nil {
		return "", fmt.Errorf("failed to check vendor: %w", err)
	}
	if !exists {
		return "", model.NewVendorNotFoundError(fb.VendorID)
	}

	fb.ID = uuid.New().String()
	fb.AuthorID = author.ID
	fb.Author = AuthorName(author)
	fb.CreatedAt = s.now()

	if err := s.feedback.Create(ctx, fb); err != nil {
		return "", fmt.Errorf("failed to create feedback: %w", err)
	}

	slog.Info("feedback submitted",
		slog.String("feedback_id", fb.ID),
		slog.String("vendor_id", fb.VendorID),
		slog.Bool("private", fb.IsPrivate),
	)
	s.recorder.RecordFeedbackSubmitted()
	return fb.ID, nil
}

// AuthorName は表示名、メールアドレスのローカル部、"anon"の順に投稿者名を決める。
func AuthorName(a Author) string {
	if name := strings.TrimSpace(a.Name); name != "" {
		return name
	}
	if local, _, _ := strings.Cut(a.Email, "@"); strings.TrimSpace(local) != "" {
		return strings.TrimSpace(local)
	}
	return anonAuthor
}

func (s *Service) build(in SubmitInput) (*model.Feedback, []model.FieldError) {
	var fields []model.FieldError
	fail := func(field, msg string) {
		fields = append(fields, model.FieldError{Field: field, Message: msg})
	}

	fb := &model.Feedback{
		VendorID:  strings.TrimSpace(in.VendorID),
		IsPrivate: in.IsPrivate,
		Tags:      []string{},
	}
	if fb.VendorID == "" {
		fail("vendorId", "required")
	}

	ratings := []struct {
		field string
		in    Rating
		out   **int
	}{
		{"ratingQuality", in.RatingQuality, &fb.RatingQuality},
		{"ratingSpeed", in.RatingSpeed, &fb.RatingSpeed},
		{"ratingComm", in.RatingComm, &fb.RatingComm},
	}
	for _, r := range ratings {
		v, ok := r.in.resolve()
		if !ok {
			fail(r.field, "must be an integer between 1 and 5")
			continue
		}
		*r.out = v
	}

	text := strings.TrimSpace(in.Text)
	if utf8.RuneCountInString(text) > maxTextLength {
		fail("text", fmt.Sprintf("must be at most %d characters", maxTextLength))
	}
	fb.Text = s.sanitizer.SanitizeText(text)

	for _, tag := range in.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if utf8.RuneCountInString(tag) > maxTagLength {
			fail("tags", fmt.Sprintf("each tag must be at most %d characters", maxTagLength))
			break
		}
		fb.Tags = append(fb.Tags, tag)
	}
	if len(fb.Tags) > maxTags {
		fail("tags", fmt.Sprintf("must have at most %d tags", maxTags))
	}

	if in.Link != nil {
		if link := strings.TrimSpace(*in.Link); link != "" {
			if !isAbsoluteHTTP(link) {
				fail("link", "must be an absolute http(s) URL")
			} else if err := s.links.ValidateURL(link); err != nil {
				fail("link", "must not point to an internal address")
			} else {
				fb.Link = &link
			}
		}
	}

	return fb, fields
}

func isAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
