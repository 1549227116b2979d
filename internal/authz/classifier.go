package authz

import (
	"fmt"
	"sort"

	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
)

var (
	DefaultPublicSettings = []string{
		"STORE_NAME", "STORE_ADDRESS", "STORE_PHONE", "CURRENCY", "TAX_RATE", "RECEIPT_FOOTER", "TIMEZONE",
	}
	DefaultPrivateSettings = []string{
		"ADMIN_EMAIL", "SMTP_HOST", "SMTP_PORT", "SMTP_USER", "BACKUP_SCHEDULE", "LOW_STOCK_THRESHOLD",
	}
	DefaultCriticalSettings = []string{
		"SII_CERT_PASSWORD", "SII_RUT_EMISOR", "SII_API_KEY", "SMTP_PASSWORD", "DB_BACKUP_KEY",
		domain.SettingMaxLoginAttempts, domain.SettingLockoutDurationMinutes,
	}
)

// Classifier maps whitelisted setting keys to their category. It is immutable after construction.
type Classifier struct {
	categories map[string]domain.SettingCategory
}

// NewClassifier builds a classifier from three disjoint key lists. Keys are normalized to upper case.
func NewClassifier(public, private, critical []string) (*Classifier, error) {
	c := &Classifier{categories: make(map[string]domain.SettingCategory)}
	groups := []struct {
		category domain.SettingCategory
		keys     []string
	}{
		{domain.SettingPublic, public},
		{domain.SettingPrivate, private},
		{domain.SettingCritical, critical},
	}
	for _, g := range groups {
		for _, raw := range g.keys {
			key := domain.NormalizeSettingKey(raw)
			if key == "" {
				continue
			}
			if existing, ok := c.categories[key]; ok && existing != g.category {
				return nil, fmt.Errorf("setting %s is listed as both %s and %s", key, existing, g.category)
			}
			c.categories[key] = g.category
		}
	}
	return c, nil
}

// DefaultClassifier uses the built-in whitelist.
func DefaultClassifier() *Classifier {
	c, err := NewClassifier(DefaultPublicSettings, DefaultPrivateSettings, DefaultCriticalSettings)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the category of key, or false for keys outside the whitelist.
func (c *Classifier) Classify(key string) (domain.SettingCategory, bool) {
	category, ok := c.categories[domain.NormalizeSettingKey(key)]
	return category, ok
}

// Keys lists the whitelisted keys of one category in sorted order.
func (c *Classifier) Keys(category domain.SettingCategory) []string {
	keys := make([]string, 0)
	for key, cat := range c.categories {
		if cat == category {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
