package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

// Окружение молчит — значения из JSON-файла применяются.
func TestApplyFileConfig_JSONOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg := &Config{MaxRedirectDepth: 5, DefaultRedirectCode: 301}
	fileCfg := &Config{
		MaxRedirectDepth:    10,
		DefaultRedirectCode: 308,
		DatabaseDSN:         "postgres://file/db",
	}

	applyFileConfig(cfg, fileCfg)

	assert.Equal(t, 10, cfg.MaxRedirectDepth)
	assert.Equal(t, 308, cfg.DefaultRedirectCode)
	assert.Equal(t, "postgres://file/db", cfg.DatabaseDSN)
}

// Переменная окружения сильнее JSON-файла; незатронутые ею поля
// по-прежнему берутся из файла.
func TestApplyFileConfig_EnvWins(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("MAX_REDIRECT_DEPTH", "7")

	cfg := &Config{
		MaxRedirectDepth:    7,
		DefaultRedirectCode: 301,
		DatabaseDSN:         "postgres://env/db",
	}
	fileCfg := &Config{
		MaxRedirectDepth:    10,
		DefaultRedirectCode: 308,
		DatabaseDSN:         "postgres://file/db",
	}

	applyFileConfig(cfg, fileCfg)

	assert.Equal(t, 7, cfg.MaxRedirectDepth)
	assert.Equal(t, 308, cfg.DefaultRedirectCode)
	assert.Equal(t, "postgres://env/db", cfg.DatabaseDSN)
}

// Нулевые поля JSON-файла ничего не перетирают.
func TestApplyFileConfig_EmptyFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg := &Config{MaxRedirectDepth: 5, DefaultRedirectCode: 301}
	applyFileConfig(cfg, &Config{})

	assert.Equal(t, 5, cfg.MaxRedirectDepth)
	assert.Equal(t, 301, cfg.DefaultRedirectCode)
}

// SetDefault сам по себе не делает ключ "заданным" — иначе переопределения
// из JSON-файла никогда бы не срабатывали.
func TestSetExplicitly_DefaultOnly(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.SetDefault("MAX_REDIRECT_DEPTH", 5)
	assert.False(t, setExplicitly("MAX_REDIRECT_DEPTH"))

	t.Setenv("MAX_REDIRECT_DEPTH", "9")
	assert.True(t, setExplicitly("MAX_REDIRECT_DEPTH"))
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		ServerAddress:       "localhost:8080",
		BaseURL:             "http://localhost:8080",
		MaxRedirectDepth:    5,
		DefaultRedirectCode: 301,
	}
	assert.NoError(t, cfg.Validate())

	bad := *cfg
	bad.MaxRedirectDepth = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.DefaultRedirectCode = 200
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.ServerAddress = ""
	assert.Error(t, bad.Validate())
}
