package store

import (
	"fmt"
	"log"
	"sync"

	"gorm.io/gorm"

	"github.com/hackerspacekrk/iotm/internal/rules"
	"github.com/hackerspacekrk/iotm/internal/session"
)

// Store is the configuration-store binding: a gorm/sqlite-backed
// implementation of session.ConfigWriter (rule/tag write-back) plus a
// boot-time loader that replays persisted rows into the rule index, tag
// store, and session registry.
type Store struct {
	db *gorm.DB
	mu sync.Mutex
}

// Open binds a Store to an already-opened gorm database and runs
// auto-migration for every configuration-store model.
func Open(db *gorm.DB) (*Store, error) {
	if err := AutoMigrateModels(db); err != nil {
		return nil, fmt.Errorf("store: automigrate: %w", err)
	}
	return &Store{db: db}, nil
}

// LoadRuleRows returns every persisted rule row, converted to rules.Row,
// in the order the store will replay them at boot.
func (s *Store) LoadRuleRows() ([]rules.Row, error) {
	var models []RuleConfigModel
	if err := s.db.Order("name").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]rules.Row, 0, len(models))
	for _, m := range models {
		out = append(out, ruleRowFromModel(m))
	}
	return out, nil
}

// LoadManagerConfigRows returns every persisted manager-config row.
func (s *Store) LoadManagerConfigRows() ([]session.ManagerConfigRow, error) {
	var models []ManagerConfigModel
	if err := s.db.Order("handler").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]session.ManagerConfigRow, 0, len(models))
	for _, m := range models {
		out = append(out, session.ManagerConfigRow{
			Handler:         m.Handler,
			Plugin:          m.Plugin,
			OtherConfigKeys: splitColumn(m.OtherConfigKeys),
			OtherConfigVals: splitColumn(m.OtherConfigVals),
		})
	}
	return out, nil
}

// TagRow is the plain-struct shape of an Openflow_Tag row (§6).
type TagRow struct {
	Name         string
	DeviceValues []string
	CloudValues  []string
}

// LoadTagRows returns every persisted tag row.
func (s *Store) LoadTagRows() ([]TagRow, error) {
	var models []TagModel
	if err := s.db.Order("name").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]TagRow, 0, len(models))
	for _, m := range models {
		out = append(out, TagRow{
			Name:         m.Name,
			DeviceValues: splitColumn(m.DeviceValues),
			CloudValues:  splitColumn(m.CloudValues),
		})
	}
	return out, nil
}

// LoadAWLANNode returns the single cached AWLAN_Node row, if any.
func (s *Store) LoadAWLANNode() (locationID, nodeID string, ok bool) {
	var m AWLANNodeModel
	if err := s.db.Order("id desc").First(&m).Error; err != nil {
		return "", "", false
	}
	return m.LocationID, m.NodeID, true
}

func ruleRowFromModel(m RuleConfigModel) rules.Row {
	return rules.Row{
		Name:        m.Name,
		EventName:   m.EventName,
		FilterKeys:  splitColumn(m.FilterKeys),
		FilterVals:  splitColumn(m.FilterVals),
		ParamsKeys:  splitColumn(m.ParamsKeys),
		ParamsVals:  splitColumn(m.ParamsVals),
		ActionsKeys: splitColumn(m.ActionsKeys),
		ActionsVals: splitColumn(m.ActionsVals),
	}
}

// UpsertRuleConfig writes row back to the store, keyed by name — used by
// the boot-time loader's own ingest path is read-only; this is the
// write-back side an external cloud-config push would normally drive, and
// that the session.ConfigWriter.UpsertRules wires adapters into.
func (s *Store) UpsertRuleConfig(row rules.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := RuleConfigModel{
		Name:        row.Name,
		EventName:   row.EventName,
		FilterKeys:  joinColumn(row.FilterKeys),
		FilterVals:  joinColumn(row.FilterVals),
		ParamsKeys:  joinColumn(row.ParamsKeys),
		ParamsVals:  joinColumn(row.ParamsVals),
		ActionsKeys: joinColumn(row.ActionsKeys),
		ActionsVals: joinColumn(row.ActionsVals),
	}
	return s.db.Save(&m).Error
}

// UpsertRules implements session.ConfigWriter: mark-all-present upsert
// keyed by name (§6's ovsdb_upsert_rules).
func (s *Store) UpsertRules(rows []rules.Row) error {
	for _, row := range rows {
		if err := s.UpsertRuleConfig(row); err != nil {
			return err
		}
	}
	return nil
}

// RemoveRules implements session.ConfigWriter: delete by name (§6's
// ovsdb_remove_rules).
func (s *Store) RemoveRules(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(names) == 0 {
		return nil
	}
	return s.db.Where("name IN ?", names).Delete(&RuleConfigModel{}).Error
}

// UpsertTag implements session.ConfigWriter: upsert by name (§6's
// ovsdb_upsert_tag).
func (s *Store) UpsertTag(name string, deviceValues, cloudValues []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := TagModel{
		Name:         name,
		DeviceValues: joinColumn(deviceValues),
		CloudValues:  joinColumn(cloudValues),
	}
	return s.db.Save(&m).Error
}

// DeleteTag removes a persisted tag row (driven by the watcher on a
// delete notification from the upstream config feed, or by admin tooling).
func (s *Store) DeleteTag(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete(&TagModel{}, "name = ?", name).Error
}

// DeleteManagerConfig removes a persisted manager-config row.
func (s *Store) DeleteManagerConfig(handler string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete(&ManagerConfigModel{}, "handler = ?", handler).Error
}

// UpsertManagerConfig writes a manager-config row back to the store.
func (s *Store) UpsertManagerConfig(row session.ManagerConfigRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := ManagerConfigModel{
		Handler:         row.Handler,
		Plugin:          row.Plugin,
		OtherConfigKeys: joinColumn(row.OtherConfigKeys),
		OtherConfigVals: joinColumn(row.OtherConfigVals),
	}
	return s.db.Save(&m).Error
}

// UpsertTagGroup persists an Openflow_Tag_Group row. Per §9's open
// question, the core does nothing with tag groups today; this exists only
// so the row survives restarts for whenever that behaviour is defined.
func (s *Store) UpsertTagGroup(name string, tagNames []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := TagGroupModel{Name: name, TagNames: joinColumn(tagNames)}
	if err := s.db.Save(&m).Error; err != nil {
		return err
	}
	log.Printf("[store] debug: Openflow_Tag_Group %q persisted; no core behaviour is defined for it", name)
	return nil
}

// UpsertAWLANNode persists the MQTT header strings supplied by an
// AWLAN_Node row.
func (s *Store) UpsertAWLANNode(locationID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := AWLANNodeModel{LocationID: locationID, NodeID: nodeID}
	return s.db.Save(&m).Error
}
