package store

import "time"

type User struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	AvatarURL    string     `json:"avatar_url,omitempty"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"-"`
}

type Project struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	CreatedBy   int64      `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Membership invite lifecycle.
const (
	MemberInvited  = "invited"
	MemberAccepted = "accepted"
	MemberDeclined = "declined"
)

type ProjectMember struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	UserID    int64     `json:"user_id"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	InvitedBy int64     `json:"invited_by,omitempty"`
	UserName  string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type MemberInvite struct {
	ProjectMember
	InvitedByName string `json:"invited_by_name"`
	ProjectName   string `json:"project_name"`
}

type Task struct {
	ID             int64      `json:"id"`
	ProjectID      int64      `json:"project_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	StartDate      *time.Time `json:"start_date"`
	DueDate        *time.Time `json:"due_date"`
	CreatedBy      int64      `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	LatestProgress float64    `json:"latest_progress"`
}

// TaskUpdate carries the optional fields of a task edit; nil means
// leave unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	StartDate   *time.Time
	DueDate     *time.Time
}

type TaskAssignee struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	// Skipped marks the idempotent no-op: the pair was already assigned
	// and the existing row is returned untouched.
	Skipped bool `json:"skipped,omitempty"`
}

type TaskRole struct {
	IsCreator  bool `json:"is_creator"`
	IsAssigned bool `json:"is_assigned"`
}

type ActivityEntry struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	ActorID   int64     `json:"actor_id"`
	ActorName string    `json:"actor_name,omitempty"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification read-state lifecycle.
const (
	NotificationNew    = "new"
	NotificationUnread = "unread"
	NotificationRead   = "read"
)

type Notification struct {
	ID            int64     `json:"id"`
	RecipientID   int64     `json:"recipient_id"`
	ActorID       int64     `json:"actor_id"`
	ActorName     string    `json:"actor_name,omitempty"`
	Type          string    `json:"type"`
	ReferenceType string    `json:"reference_type"`
	ReferenceID   int64     `json:"reference_id"`
	Message       string    `json:"message"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

type NotificationFilter struct {
	RecipientID int64
	Type        string
	Status      string
}

type ChatChannel struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	Members     []int64   `json:"members,omitempty"`
}

type ChannelMember struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

type MentionedUser struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Attachment struct {
	ID        string    `json:"id"`
	FileName  string    `json:"file_name"`
	FileType  string    `json:"file_type"`
	FileURL   string    `json:"file_url"`
	Size      int64     `json:"size"`
	CreatedBy int64     `json:"created_by"`
	ProjectID int64     `json:"project_id,omitempty"`
	TaskID    int64     `json:"task_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ChatMessage struct {
	ID           int64           `json:"id"`
	ChannelID    int64           `json:"channel_id"`
	SenderID     int64           `json:"sender_id"`
	SenderName   string          `json:"sender_name"`
	SenderAvatar string          `json:"sender_avatar,omitempty"`
	Content      string          `json:"content"`
	HaveFile     bool            `json:"have_file"`
	Mentions     []MentionedUser `json:"mentions"`
	Files        []Attachment    `json:"files"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Comment struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ProgressLog struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	Progress  float64   `json:"progress"`
	UpdatedBy int64     `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
}

type Installation struct {
	InstallationID int64  `json:"installation_id"`
	AccountLogin   string `json:"account_login"`
}

type Repository struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	RepoID    int64  `json:"repo_id"`
	FullName  string `json:"full_name"`
	HTMLURL   string `json:"html_url"`
	IsPrivate bool   `json:"is_private"`
}

// Report aggregates for one project.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

type PriorityCount struct {
	Priority string `json:"priority"`
	Count    int    `json:"count"`
}

type MemberWorkload struct {
	Name            string `json:"name"`
	AssignedTasks   int    `json:"assigned_tasks"`
	WorkloadPercent int    `json:"workload_percent"`
}
