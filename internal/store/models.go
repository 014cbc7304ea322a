// Package store implements the configuration-store binding: the external
// collaborator §1/§6 describe but keep out of the core's scope. It
// persists the five schema row types (IOT_Rule_Config, IOT_Manager_Config,
// Openflow_Tag, Openflow_Tag_Group, AWLAN_Node) via gorm/sqlite — the teacher's own
// persistence stack, repurposed from virtual-device history rows to
// IoTM's configuration rows — and replays them into the rule index, tag
// store, and session registry's Insert/Update/Delete entry points.
//
// The core itself never imports this package; it only sees the plain row
// structs defined in internal/rules and internal/session.
package store

import (
	"time"

	"gorm.io/gorm"
)

// RuleConfigModel is the persisted row for one IOT_Rule_Config entry. The
// four column groups (filter/params/actions keys+values) are stored as
// newline-joined strings rather than a child table — this mirrors the
// teacher's preference for one flat row per entity (models.go) over a
// normalized join, and keeps the sqlite schema trivial for a config store
// whose row count is always small.
type RuleConfigModel struct {
	Name        string `gorm:"primaryKey;type:text"`
	EventName   string `gorm:"not null;index"`
	FilterKeys  string `gorm:"type:text"`
	FilterVals  string `gorm:"type:text"`
	ParamsKeys  string `gorm:"type:text"`
	ParamsVals  string `gorm:"type:text"`
	ActionsKeys string `gorm:"type:text"`
	ActionsVals string `gorm:"type:text"`
	UpdatedAt   time.Time
}

// TableName overrides the default table name.
func (RuleConfigModel) TableName() string { return "iot_rule_config" }

// ManagerConfigModel is the persisted row for one IOT_Manager_Config entry.
type ManagerConfigModel struct {
	Handler         string `gorm:"primaryKey;type:text"`
	Plugin          string `gorm:"type:text"`
	OtherConfigKeys string `gorm:"type:text"`
	OtherConfigVals string `gorm:"type:text"`
	UpdatedAt       time.Time
}

// TableName overrides the default table name.
func (ManagerConfigModel) TableName() string { return "iot_manager_config" }

// TagModel is the persisted row for one Openflow_Tag entry.
type TagModel struct {
	Name         string `gorm:"primaryKey;type:text"`
	DeviceValues string `gorm:"type:text"`
	CloudValues  string `gorm:"type:text"`
	UpdatedAt    time.Time
}

// TableName overrides the default table name.
func (TagModel) TableName() string { return "openflow_tag" }

// TagGroupModel is the persisted row for one Openflow_Tag_Group entry. Per
// §9's open question, monitoring for this row type is registered but its
// effect on core behaviour is undefined upstream; this binding persists
// the row for completeness, and the watcher's callback for it
// (Watcher.OnTagGroupInsert) only stores it: it does not touch the tag
// store, rule index, or sessions.
type TagGroupModel struct {
	Name      string `gorm:"primaryKey;type:text"`
	TagNames  string `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName overrides the default table name.
func (TagGroupModel) TableName() string { return "openflow_tag_group" }

// AWLANNodeModel is the persisted row supplying MQTT header strings
// (locationId, nodeId) cached on the manager and copied by reference into
// every Session.
type AWLANNodeModel struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	LocationID string `gorm:"type:text"`
	NodeID     string `gorm:"type:text"`
	UpdatedAt  time.Time
}

// TableName overrides the default table name.
func (AWLANNodeModel) TableName() string { return "awlan_node" }

// AutoMigrateModels runs GORM auto-migration for every configuration-store
// model.
func AutoMigrateModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&RuleConfigModel{},
		&ManagerConfigModel{},
		&TagModel{},
		&TagGroupModel{},
		&AWLANNodeModel{},
	)
}
