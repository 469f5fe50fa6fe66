// ============================================================================
// FILE: internal/models/models.go
// PURPOSE: Persistent entities of the auto-publish core
// ============================================================================

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

// PipelineStatus is the lifecycle state of a registered pipeline.
type PipelineStatus string

const (
	PipelineActive     PipelineStatus = "active"
	PipelineDeprecated PipelineStatus = "deprecated"
	PipelineTesting    PipelineStatus = "testing"
)

// Pipeline is a registered content-producing pipeline descriptor. The
// implementation behind ImplementationRef is an external collaborator; the
// core only validates parameters and dispatches invocations.
type Pipeline struct {
	PipelineID         string               `gorm:"primary_key" json:"pipeline_id"`
	DisplayName        string               `gorm:"not null" json:"display_name"`
	TypeTag            string               `gorm:"index" json:"type_tag"`
	ImplementationRef  string               `gorm:"not null" json:"implementation_ref"`
	ParameterSchema    pqtype.NullRawMessage `gorm:"type:jsonb" json:"parameter_schema"`
	SupportedPlatforms pq.StringArray       `gorm:"type:text[]" json:"supported_platforms"`
	Version            string               `gorm:"default:1.0.0" json:"version"`
	Status             PipelineStatus       `gorm:"default:active;index" json:"status"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// GroupType classifies an account group.
type GroupType string

const (
	GroupProduction GroupType = "production"
	GroupExperiment GroupType = "experiment"
	GroupTest       GroupType = "test"
)

// AccountGroup owns an ordered set of members, each pointing at an account.
type AccountGroup struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null" json:"name"`
	GroupType   GroupType `gorm:"default:production" json:"group_type"`
	Description string    `json:"description"`
	Active      bool      `gorm:"default:true" json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GroupMember links an account into a group with an ordering rank.
type GroupMember struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	GroupID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_group_account" json:"group_id"`
	AccountID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_group_account" json:"account_id"`
	Role        string    `json:"role"`
	Rank        int       `gorm:"default:0" json:"rank"`
	VariantName *string   `json:"variant_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Account is an externally managed channel identity. ProfileRef is the opaque
// handle the upload transport understands.
type Account struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	DisplayName string    `gorm:"not null" json:"display_name"`
	Platform    string    `gorm:"default:youtube" json:"platform"`
	ProfileRef  string    `gorm:"not null" json:"profile_ref"`
	Active      bool      `gorm:"default:true" json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TriggerKind selects how a publish config is fired.
type TriggerKind string

const (
	TriggerScheduled TriggerKind = "scheduled"
	TriggerMonitor   TriggerKind = "monitor"
)

// PublishConfig is the recipe tying a group, a pipeline and a trigger
// together. TriggerConfig and PipelineParams are structured JSON.
type PublishConfig struct {
	ID             uuid.UUID             `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name           string                `gorm:"uniqueIndex;not null" json:"name"`
	GroupID        uuid.UUID             `gorm:"type:uuid;not null;index" json:"group_id"`
	PipelineID     string                `gorm:"not null;index" json:"pipeline_id"`
	TriggerKind    TriggerKind           `gorm:"not null" json:"trigger_kind"`
	TriggerConfig  pqtype.NullRawMessage `gorm:"type:jsonb" json:"trigger_config"`
	PublishPolicy  pqtype.NullRawMessage `gorm:"type:jsonb" json:"publish_policy"`
	StrategyID     *uuid.UUID            `gorm:"type:uuid" json:"strategy_id,omitempty"`
	MonitorID      *uuid.UUID            `gorm:"type:uuid;index" json:"monitor_id,omitempty"`
	Priority       int                   `gorm:"default:50" json:"priority"`
	Active         bool                  `gorm:"default:true;index" json:"active"`
	PipelineParams pqtype.NullRawMessage `gorm:"type:jsonb" json:"pipeline_params"`
	LastFire       *time.Time            `json:"last_fire,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// SlotStatus is the lifecycle state of a ring slot.
type SlotStatus string

const (
	SlotPending   SlotStatus = "pending"
	SlotScheduled SlotStatus = "scheduled"
	SlotCompleted SlotStatus = "completed"
	SlotFailed    SlotStatus = "failed"
	SlotCancelled SlotStatus = "cancelled"
)

// RingSlot is one (config, date, time, account) tuple produced by the ring
// scheduler. Unique on the full tuple so regeneration upserts cleanly.
type RingSlot struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ConfigID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_ring_slot" json:"config_id"`
	AccountID  uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_ring_slot" json:"account_id"`
	SlotDate   string     `gorm:"type:date;not null;uniqueIndex:idx_ring_slot" json:"slot_date"`
	SlotHour   int        `gorm:"not null;uniqueIndex:idx_ring_slot" json:"slot_hour"`
	SlotMinute int        `gorm:"not null;uniqueIndex:idx_ring_slot" json:"slot_minute"`
	SlotIndex  int        `gorm:"default:0" json:"slot_index"`
	Status     SlotStatus `gorm:"default:pending;index" json:"status"`
	TaskID     *uuid.UUID `gorm:"type:uuid" json:"task_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// SlotTime returns the slot's absolute UTC time.
func (s *RingSlot) SlotTime() time.Time {
	d, _ := time.ParseInLocation("2006-01-02", s.SlotDate, time.UTC)
	return d.Add(time.Duration(s.SlotHour)*time.Hour + time.Duration(s.SlotMinute)*time.Minute)
}

// StrategyType selects the variant selection algorithm.
type StrategyType string

const (
	StrategyABTest     StrategyType = "ab_test"
	StrategyRoundRobin StrategyType = "round_robin"
	StrategyWeighted   StrategyType = "weighted"
)

// Strategy is an experiment definition applied to a group at publish time.
type Strategy struct {
	ID         uuid.UUID             `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name       string                `gorm:"uniqueIndex;not null" json:"name"`
	Type       StrategyType          `gorm:"not null" json:"type"`
	Parameters pqtype.NullRawMessage `gorm:"type:jsonb" json:"parameters"`
	Active     bool                  `gorm:"default:true" json:"active"`
	StartDate  *time.Time            `json:"start_date,omitempty"`
	EndDate    *time.Time            `json:"end_date,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// StrategyAssignment defines one variant of a strategy for a group.
type StrategyAssignment struct {
	ID          uuid.UUID             `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	StrategyID  uuid.UUID             `gorm:"type:uuid;not null;index" json:"strategy_id"`
	GroupID     uuid.UUID             `gorm:"type:uuid;not null;index" json:"group_id"`
	VariantName string                `gorm:"not null" json:"variant_name"`
	Payload     pqtype.NullRawMessage `gorm:"type:jsonb" json:"payload"`
	Weight      int                   `gorm:"default:1" json:"weight"`
	IsControl   bool                  `gorm:"default:false" json:"is_control"`
	CreatedAt   time.Time             `json:"created_at"`
}

// PipelinePhase is the pipeline half of an auto-publish task's state.
type PipelinePhase string

const (
	PipelinePending   PipelinePhase = "pending"
	PipelineRunning   PipelinePhase = "running"
	PipelineCompleted PipelinePhase = "completed"
	PipelineFailed    PipelinePhase = "failed"
)

// PublishPhase is the publish half of an auto-publish task's state.
type PublishPhase string

const (
	PublishPending   PublishPhase = "pending"
	PublishScheduled PublishPhase = "scheduled"
	PublishPublished PublishPhase = "published"
	PublishFailed    PublishPhase = "failed"
	PublishCancelled PublishPhase = "cancelled"
)

// AutoPublishTask is one scheduled unit of work: one pipeline invocation
// fanning out into publish tasks once the pipeline completes. The two status
// fields are independent state machines run in sequence.
type AutoPublishTask struct {
	ID             uuid.UUID             `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ConfigID       uuid.UUID             `gorm:"type:uuid;not null;index" json:"config_id"`
	GroupID        uuid.UUID             `gorm:"type:uuid;not null" json:"group_id"`
	AccountID      *uuid.UUID            `gorm:"type:uuid" json:"account_id,omitempty"`
	PipelineID     string                `gorm:"not null" json:"pipeline_id"`
	SlotID         *uuid.UUID            `gorm:"type:uuid" json:"slot_id,omitempty"`
	StrategyID     *uuid.UUID            `gorm:"type:uuid" json:"strategy_id,omitempty"`
	VariantName    *string               `json:"variant_name,omitempty"`
	PipelineStatus PipelinePhase         `gorm:"default:pending;index" json:"pipeline_status"`
	PublishStatus  PublishPhase          `gorm:"default:pending;index" json:"publish_status"`
	PipelineParams pqtype.NullRawMessage `gorm:"type:jsonb" json:"pipeline_params"`
	PipelineResult pqtype.NullRawMessage `gorm:"type:jsonb" json:"pipeline_result"`
	PublishResult  pqtype.NullRawMessage `gorm:"type:jsonb" json:"publish_result"`
	Priority       int                   `gorm:"default:50" json:"priority"`
	RetryCount     int                   `gorm:"default:0" json:"retry_count"`
	RetryOf        *uuid.UUID            `gorm:"type:uuid" json:"retry_of,omitempty"`
	Error          string                `json:"error,omitempty"`
	ErrorCode      string                `json:"error_code,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	ScheduledAt    time.Time             `gorm:"index" json:"scheduled_at"`
	StartedAt      *time.Time            `json:"started_at,omitempty"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
}

// PublishState is the lifecycle state of a publish task.
type PublishState string

const (
	PublishTaskPending   PublishState = "pending"
	PublishTaskScheduled PublishState = "scheduled"
	PublishTaskUploading PublishState = "uploading"
	PublishTaskSuccess   PublishState = "success"
	PublishTaskFailed    PublishState = "failed"
	PublishTaskCancelled PublishState = "cancelled"
)

// PublishTask is one upload of one rendered video to one account. Status
// transitions are strictly monotonic; a retry yields a new row linked via
// RetryOf.
type PublishTask struct {
	ID              uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TaskID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"task_id"`
	AccountID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"account_id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Tags            pq.StringArray `gorm:"type:text[]" json:"tags"`
	ThumbnailRef    string         `json:"thumbnail_ref,omitempty"`
	Privacy         string         `gorm:"default:public" json:"privacy"`
	VideoRef        string         `gorm:"not null" json:"video_ref"`
	VariantName     *string        `json:"variant_name,omitempty"`
	Status          PublishState   `gorm:"default:pending;index" json:"status"`
	ScheduledTime   time.Time      `gorm:"index" json:"scheduled_time"`
	IsScheduled     bool           `gorm:"default:false" json:"is_scheduled"`
	RetryCount      int            `gorm:"default:0" json:"retry_count"`
	RetryOf         *uuid.UUID     `gorm:"type:uuid" json:"retry_of,omitempty"`
	Error           string         `json:"error,omitempty"`
	ErrorCode       string         `json:"error_code,omitempty"`
	PlatformVideoID string         `json:"platform_video_id,omitempty"`
	PlatformURL     string         `json:"platform_url,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	UploadedAt      *time.Time     `json:"uploaded_at,omitempty"`
}

// MonitorType classifies what a monitor watches.
type MonitorType string

const (
	MonitorCompetitor MonitorType = "competitor"
	MonitorTrending   MonitorType = "trending"
	MonitorKeyword    MonitorType = "keyword"
)

// Monitor watches an external source and feeds monitor-triggered configs.
type Monitor struct {
	ID                   uuid.UUID             `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Platform             string                `gorm:"default:youtube" json:"platform"`
	MonitorType          MonitorType           `gorm:"not null" json:"monitor_type"`
	TargetIdentifier     string                `gorm:"not null" json:"target_identifier"`
	CheckIntervalSeconds int                   `gorm:"default:300" json:"check_interval_seconds"`
	LastCheck            *time.Time            `json:"last_check,omitempty"`
	Active               bool                  `gorm:"default:true;index" json:"active"`
	Config               pqtype.NullRawMessage `gorm:"type:jsonb" json:"config"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// MonitorResult is one captured piece of source content, unique per
// (monitor, content) so processing is at-most-once.
type MonitorResult struct {
	ID        uuid.UUID             `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	MonitorID uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:idx_monitor_content" json:"monitor_id"`
	ContentID string                `gorm:"not null;uniqueIndex:idx_monitor_content" json:"content_id"`
	Title     string                `json:"title"`
	URL       string                `json:"url"`
	Payload   pqtype.NullRawMessage `gorm:"type:jsonb" json:"payload"`
	Processed bool                  `gorm:"default:false;index" json:"processed"`
	CreatedAt time.Time             `json:"created_at"`
}
