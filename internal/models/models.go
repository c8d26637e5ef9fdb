package models

import (
	"time"
)

// Grade is a user's permission level in the portal.
type Grade string

const (
	GradeAdmin  Grade = "admin"  // 관리자
	GradeLeader Grade = "leader" // 팀장
	GradeMember Grade = "member" // 팀원
	GradeGuest  Grade = "guest"  // 게스트
)

var gradeRank = map[Grade]int{
	GradeGuest:  0,
	GradeMember: 1,
	GradeLeader: 2,
	GradeAdmin:  3,
}

// Valid reports whether g is a known grade.
func (g Grade) Valid() bool {
	_, ok := gradeRank[g]
	return ok
}

// Rank returns the ordinal of g; unknown grades rank below guest.
func (g Grade) Rank() int {
	if r, ok := gradeRank[g]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether g is the same as or above min.
func (g Grade) AtLeast(min Grade) bool {
	return g.Valid() && g.Rank() >= min.Rank()
}

// User is a portal account.
type User struct {
	ID        string    `json:"id"`
	LoginID   string    `json:"login_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Grade     Grade     `json:"grade"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Notice is a team announcement (공지사항).
type Notice struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	ContentHTML string    `json:"content_html"`
	Important   bool      `json:"important"`
	AuthorID    string    `json:"author_id"`
	AuthorName  string    `json:"author_name"`
	Views       int       `json:"views"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Post is a blog article.
type Post struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	ContentHTML string    `json:"content_html"`
	Tags        []string  `json:"tags"`
	AuthorID    string    `json:"author_id"`
	AuthorName  string    `json:"author_name"`
	Comments    int       `json:"comments"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PostComment is a comment under a blog post.
type PostComment struct {
	ID         string    `json:"id"`
	PostID     string    `json:"post_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// VacationKind is the type of leave.
type VacationKind string

const (
	VacationAnnual  VacationKind = "annual"  // 연차
	VacationHalfAM  VacationKind = "half_am" // 오전 반차
	VacationHalfPM  VacationKind = "half_pm" // 오후 반차
	VacationSick    VacationKind = "sick"    // 병가
	VacationSpecial VacationKind = "special" // 경조사 등
)

// Valid reports whether k is a known kind.
func (k VacationKind) Valid() bool {
	switch k {
	case VacationAnnual, VacationHalfAM, VacationHalfPM, VacationSick, VacationSpecial:
		return true
	}
	return false
}

// HalfDay reports whether k covers half a working day.
func (k VacationKind) HalfDay() bool {
	return k == VacationHalfAM || k == VacationHalfPM
}

// ConsumesAllowance reports whether k is deducted from the annual allowance.
func (k VacationKind) ConsumesAllowance() bool {
	return k == VacationAnnual || k.HalfDay()
}

// VacationStatus is the approval state of a vacation request.
type VacationStatus string

const (
	VacationPending   VacationStatus = "pending"
	VacationApproved  VacationStatus = "approved"
	VacationRejected  VacationStatus = "rejected"
	VacationCancelled VacationStatus = "cancelled"
)

// Active reports whether a request in status s still occupies the calendar.
func (s VacationStatus) Active() bool {
	return s == VacationPending || s == VacationApproved
}

// Vacation is a leave request.
type Vacation struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	UserName   string         `json:"user_name"`
	Kind       VacationKind   `json:"kind"`
	StartDate  string         `json:"start_date"`
	EndDate    string         `json:"end_date"`
	Days       float64        `json:"days"`
	Reason     string         `json:"reason"`
	Status     VacationStatus `json:"status"`
	ApproverID string         `json:"approver_id,omitempty"`
	DecidedAt  *time.Time     `json:"decided_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// EquipmentStatus is the lifecycle state of a piece of equipment.
type EquipmentStatus string

const (
	EquipmentAvailable EquipmentStatus = "available"
	EquipmentAssigned  EquipmentStatus = "assigned"
	EquipmentRepair    EquipmentStatus = "repair"
	EquipmentRetired   EquipmentStatus = "retired"
)

// Valid reports whether s is a known status.
func (s EquipmentStatus) Valid() bool {
	switch s {
	case EquipmentAvailable, EquipmentAssigned, EquipmentRepair, EquipmentRetired:
		return true
	}
	return false
}

// Equipment is a tracked asset (장비).
type Equipment struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	SerialNo     string          `json:"serial_no"`
	Status       EquipmentStatus `json:"status"`
	AssigneeID   string          `json:"assignee_id,omitempty"`
	AssigneeName string          `json:"assignee_name,omitempty"`
	PurchasedAt  string          `json:"purchased_at,omitempty"`
	Note         string          `json:"note"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// EquipmentEvent is one entry of an equipment's history.
type EquipmentEvent struct {
	ID          int64           `json:"id"`
	EquipmentID string          `json:"equipment_id"`
	Action      string          `json:"action"` // create, assign, return, status
	FromStatus  EquipmentStatus `json:"from_status,omitempty"`
	ToStatus    EquipmentStatus `json:"to_status"`
	UserID      string          `json:"user_id,omitempty"`
	ActorID     string          `json:"actor_id"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Tool is an entry in the collaboration-tool directory.
type Tool struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	OwnerName   string    `json:"owner_name"`
	OrderNo     int       `json:"order_no"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Report is a weekly report (주간보고).
type Report struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	UserName  string         `json:"user_name"`
	WeekStart string         `json:"week_start"`
	Done      string         `json:"done"`
	Plan      string         `json:"plan"`
	Issues    string         `json:"issues"`
	Replies   []*ReportReply `json:"replies,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ReportReply is a reply in a weekly report thread.
type ReportReply struct {
	ID         string         `json:"id"`
	ReportID   string         `json:"report_id"`
	ParentID   string         `json:"parent_id,omitempty"`
	AuthorID   string         `json:"author_id"`
	AuthorName string         `json:"author_name"`
	Body       string         `json:"body"`
	Deleted    bool           `json:"deleted,omitempty"`
	Children   []*ReportReply `json:"children,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// EmploymentStatus is an HR record status.
type EmploymentStatus string

const (
	EmploymentActive   EmploymentStatus = "active"   // 재직
	EmploymentLeave    EmploymentStatus = "leave"    // 휴직
	EmploymentResigned EmploymentStatus = "resigned" // 퇴사
)

// Valid reports whether s is a known status.
func (s EmploymentStatus) Valid() bool {
	return s == EmploymentActive || s == EmploymentLeave || s == EmploymentResigned
}

// Employee is an HR record (인사 기록).
type Employee struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id,omitempty"`
	Name           string           `json:"name"`
	Department     string           `json:"department"`
	Position       string           `json:"position"`
	EmploymentType string           `json:"employment_type"`
	Status         EmploymentStatus `json:"status"`
	JoinedOn       string           `json:"joined_on"`
	ResignedOn     string           `json:"resigned_on,omitempty"`
	Phone          string           `json:"phone"`
	Email          string           `json:"email"`
	Memo           string           `json:"memo"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// AuditEntry records one successful mutation.
type AuditEntry struct {
	ID         int64     `json:"id"`
	ActorID    string    `json:"actor_id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	CreatedAt  time.Time `json:"created_at"`
}
