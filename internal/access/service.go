// Package access は未登録ユーザーのアクセス申請と管理者による承認・却下を提供する。
package access

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/vendorhub/internal/auth"
	"github.com/hitoshi/vendorhub/internal/model"
	"github.com/hitoshi/vendorhub/internal/notify"
	"github.com/hitoshi/vendorhub/internal/repository"
)

// 申請処理結果のメトリクスラベル
const (
	OutcomeCreated  = "created"
	OutcomeHoneypot = "honeypot"
	OutcomeInvalid  = "invalid"
	OutcomeApproved = "approved"
	OutcomeRejected = "rejected"
)

const (
	maxNameLength    = 200
	maxMessageLength = 2000
)

// Recorder はアクセス申請の処理結果を記録する。
type Recorder interface {
	RecordAccessRequest(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAccessRequest(string) {}

// Inviter は承認時に招待URLを発行する。auth.Serviceが実装する。
type Inviter interface {
	CreateInvite(ctx context.Context, email string) (string, error)
}

// SubmitInput はアクセス申請フォームの入力。
// Companyはボット検出用の隠しフィールドで、人間の利用者は空のまま送信する。
type SubmitInput struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Message string `json:"message"`
	Company string `json:"company"`
}

// SubmitResult は申請受付の結果。ハニーポットに掛かった場合はIDとMailtoが空になる。
type SubmitResult struct {
	ID     string `json:"id,omitempty"`
	Mailto string `json:"mailto,omitempty"`
}

// ServiceConfig はアクセス申請サービスの設定。
type ServiceConfig struct {
	AllowedEmailDomain string
	AdminContactEmail  string
	NotifyTimeout      time.Duration
}

// Service はアクセス申請のビジネスロジックを提供する。
type Service struct {
	requests repository.AccessRequestRepository
	inviter  Inviter
	notifier notify.Notifier
	recorder Recorder
	config   ServiceConfig
	now      func() time.Time
}

// NewService はServiceを生成する。notifierとrecorderはnilでもよい。
func NewService(
	requests repository.AccessRequestRepository,
	inviter Inviter,
	notifier notify.Notifier,
	recorder Recorder,
	config ServiceConfig,
) *Service {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		requests: requests,
		inviter:  inviter,
		notifier: notifier,
		recorder: recorder,
		config:   config,
		now:      time.Now,
	}
}

// Submit はアクセス申請を受け付ける。
// メールアドレスの検証はハニーポット判定より先に行う。
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	email, err := auth.NormalizeEmail(in.Email, s.config.AllowedEmailDomain)
	if err != nil {
		s.recorder.RecordAccessRequest(OutcomeInvalid)
		return nil, err
	}

	if strings.TrimSpace(in.Company) != "" {
		slog.Info("access request dropped by honeypot", slog.String("email", email))
		s.recorder.RecordAccessRequest(OutcomeHoneypot)
		return &SubmitResult{}, nil
	}

	name := strings.TrimSpace(in.Name)
	message := strings.TrimSpace(in.Message)
	var fields []model.FieldError
	if utf8.RuneCountInString(name) > maxNameLength {
		fields = append(fields, model.FieldError{Field: "name", Message: fmt.Sprintf("must be at most %d characters", maxNameLength)})
	}
	if utf8.RuneCountInString(message) > maxMessageLength {
		fields = append(fields, model.FieldError{Field: "message", Message: fmt.Sprintf("must be at most %d characters", maxMessageLength)})
	}
	if len(fields) > 0 {
		s.recorder.RecordAccessRequest(OutcomeInvalid)
		return nil, model.NewValidationError(fields)
	}

	now := s.now()
	req := &model.AccessRequest{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      name,
		Message:   message,
		Status:    model.AccessRequestPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create access request: %w", err)
	}

	ev := notify.AccessRequestEvent{
		ID:        req.ID,
		Email:     req.Email,
		Name:      req.Name,
		Message:   req.Message,
		CreatedAt: req.CreatedAt,
	}
	s.notify(ctx, ev)

	slog.Info("access request created", slog.String("request_id", req.ID), slog.String("email", email))
	s.recorder.RecordAccessRequest(OutcomeCreated)
	return &SubmitResult{ID: req.ID, Mailto: notify.MailtoLink(s.config.AdminContactEmail, ev)}, nil
}

// notify はWebhook通知を送信する。失敗しても申請自体は成功として扱う。
func (s *Service) notify(ctx context.Context, ev notify.AccessRequestEvent) {
	if s.config.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.NotifyTimeout)
		defer cancel()
	}
	if err := s.notifier.NotifyAccessRequest(ctx, ev); err != nil {
		slog.Warn("failed to notify admin of access request",
			slog.String("request_id", ev.ID),
			slog.String("error", err.Error()),
		)
	}
}

// ListPending は未処理の申請を新しい順に返す。
func (s *Service) ListPending(ctx context.Context) ([]model.AccessRequest, error) {
	reqs, err := s.requests.ListByStatus(ctx, model.AccessRequestPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending access requests: %w", err)
	}
	if reqs == nil {
		reqs = []model.AccessRequest{}
	}
	return reqs, nil
}

// Approve は申請を承認し、申請者の招待URLを返す。
// 状態遷移に成功した管理者だけがユーザーを作成し招待を発行する。
// 招待の発行に失敗した場合、申請は承認済みのまま残るため管理者の招待発行で再送する。
func (s *Service) Approve(ctx context.Context, id string) (string, error) {
	req, err := s.pending(ctx, id)
	if err != nil {
		return "", err
	}

	if err := s.decide(ctx, req, model.AccessRequestApproved); err != nil {
		return "", err
	}

	inviteURL, err := s.inviter.CreateInvite(ctx, req.Email)
	if err != nil {
		slog.Error("access request approved but invite creation failed",
			slog.String("request_id", id),
			slog.String("email", req.Email),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("failed to create invite for access request: %w", err)
	}

	slog.Info("access request approved", slog.String("request_id", id), slog.String("email", req.Email))
	s.recorder.RecordAccessRequest(OutcomeApproved)
	return inviteURL, nil
}

// Reject は申請を却下する。
func (s *Service) Reject(ctx context.Context, id string) error {
	req, err := s.pending(ctx, id)
	if err != nil {
		return err
	}

	if err := s.decide(ctx, req, model.AccessRequestRejected); err != nil {
		return err
	}

	slog.Info("access request rejected", slog.String("request_id", id))
	s.recorder.RecordAccessRequest(OutcomeRejected)
	return nil
}

func (s *Service) pending(ctx context.Context, id string) (*model.AccessRequest, error) {
	req, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find access request: %w", err)
	}
	if req == nil {
		return nil, model.NewAccessRequestNotFoundError(id)
	}
	if req.Status != model.AccessRequestPending {
		return nil, model.NewAccessRequestDecidedError(req.Status)
	}
	return req, nil
}

// decide はPENDINGの申請を指定状態へ遷移させる。
// 他の管理者が先に処理していた場合は処理済みエラーを返す。
func (s *Service) decide(ctx context.Context, req *model.AccessRequest, status model.AccessRequestStatus) error {
	ok, err := s.requests.UpdateStatus(ctx, req.ID, status, s.now())
	if err != nil {
		return fmt.Errorf("failed to update access request status: %w", err)
	}
	if !ok {
		return model.NewAccessRequestDecidedError(status)
	}
	return nil
}
