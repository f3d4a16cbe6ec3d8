package model

import "time"

// AccessRequestStatus はアクセス申請の状態。
type AccessRequestStatus string

const (
	AccessRequestPending  AccessRequestStatus = "PENDING"
	AccessRequestApproved AccessRequestStatus = "APPROVED"
	AccessRequestRejected AccessRequestStatus = "REJECTED"
)

// AccessRequest は未登録ユーザーからの利用申請を表す。
// PENDINGからAPPROVEDまたはREJECTEDへ一度だけ遷移する。
type AccessRequest struct {
	ID        string
	Email     string
	Name      string
	Message   string
	Status    AccessRequestStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
