package infrastructure

import (
	"context"
	"errors"
	"strings"

	"github.com/AzielCF/az-gallery/core/settings/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EngineSettingModel struct {
	Key   string `gorm:"primaryKey;column:key"`
	Value string `gorm:"column:value"`
}

func (EngineSettingModel) TableName() string {
	return "engine_settings"
}

type SettingsGormRepository struct {
	db *gorm.DB
}

func NewSettingsGormRepository(db *gorm.DB) *SettingsGormRepository {
	return &SettingsGormRepository{db: db}
}

func (r *SettingsGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&EngineSettingModel{})
}

// Get returns "" for an unknown key.
func (r *SettingsGormRepository) Get(ctx context.Context, key string) (string, error) {
	var m EngineSettingModel
	if err := r.db.WithContext(ctx).First(&m, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(m.Value), nil
}

func (r *SettingsGormRepository) Set(ctx context.Context, key string, value string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{"value": value}),
	}).Create(&EngineSettingModel{Key: key, Value: value}).Error
}

func (r *SettingsGormRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Delete(&EngineSettingModel{}, "key = ?", key).Error
}

func (r *SettingsGormRepository) List(ctx context.Context) ([]domain.Setting, error) {
	var rows []EngineSettingModel
	if err := r.db.WithContext(ctx).Order("key").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Setting, len(rows))
	for i, m := range rows {
		out[i] = domain.Setting{Key: m.Key, Value: strings.TrimSpace(m.Value)}
	}
	return out, nil
}
