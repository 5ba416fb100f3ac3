package services

import (
	"strconv"

	"github.com/songcraft/backend/internal/models"
	"gorm.io/gorm"
)

type SystemConfigService struct {
	db *gorm.DB
}

func NewSystemConfigService(db *gorm.DB) *SystemConfigService {
	return &SystemConfigService{db: db}
}

func (s *SystemConfigService) Get(key string) (string, error) {
	var cfg models.SystemConfig
	if err := s.db.Where("`key` = ?", key).First(&cfg).Error; err != nil {
		return "", err
	}
	return cfg.Value, nil
}

func (s *SystemConfigService) GetWithDefault(key, defaultValue string) string {
	value, err := s.Get(key)
	if err != nil {
		return defaultValue
	}
	return value
}

func (s *SystemConfigService) GetInt(key string, defaultValue int) int {
	value, err := s.Get(key)
	if err != nil {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func (s *SystemConfigService) Set(key, value string) error {
	var cfg models.SystemConfig
	err := s.db.Where("`key` = ?", key).First(&cfg).Error
	if err == gorm.ErrRecordNotFound {
		cfg = models.SystemConfig{
			Key:   key,
			Value: value,
		}
		return s.db.Create(&cfg).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&cfg).Update("value", value).Error
}

func (s *SystemConfigService) GetByGroup(group string) ([]models.SystemConfig, error) {
	var configs []models.SystemConfig
	if err := s.db.Where("`group` = ?", group).Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

func (s *SystemConfigService) setWithGroup(key, value, group string) error {
	var cfg models.SystemConfig
	err := s.db.Where("`key` = ?", key).First(&cfg).Error
	if err == gorm.ErrRecordNotFound {
		cfg = models.SystemConfig{
			Key:   key,
			Value: value,
			Group: group,
		}
		return s.db.Create(&cfg).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&cfg).Updates(map[string]interface{}{"value": value, "group": group}).Error
}

type DailyReportConfig struct {
	Enabled bool   `json:"enabled"`
	Time    string `json:"time"`
}

type UpdateDailyReportConfigRequest struct {
	Enabled *bool   `json:"enabled"`
	Time    *string `json:"time"`
}

func (s *SystemConfigService) GetDailyReportConfig() *DailyReportConfig {
	return &DailyReportConfig{
		Enabled: s.GetWithDefault("daily_report_enabled", "false") == "true",
		Time:    s.GetWithDefault("daily_report_time", "18:00"),
	}
}

func (s *SystemConfigService) UpdateDailyReportConfig(req *UpdateDailyReportConfigRequest) error {
	if req.Enabled != nil {
		if err := s.setWithGroup("daily_report_enabled", strconv.FormatBool(*req.Enabled), "report"); err != nil {
			return err
		}
	}
	if req.Time != nil {
		if err := s.setWithGroup("daily_report_time", *req.Time, "report"); err != nil {
			return err
		}
	}
	return nil
}

type UpdateConfigItem struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value"`
	Group string `json:"group"`
}

// UpdateBatch writes a set of config entries in one call. Used by the admin
// UI for free-form groups like email settings.
func (s *SystemConfigService) UpdateBatch(items []UpdateConfigItem) error {
	for _, item := range items {
		group := item.Group
		if group == "" {
			group = "general"
		}
		if err := s.setWithGroup(item.Key, item.Value, group); err != nil {
			return err
		}
	}
	return nil
}
