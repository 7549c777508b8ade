// ==================================
// File: internal/logger/config.go
// ==================================
package logger

// Config описывает вывод логов: консоль плюс опциональный JSON-файл с ротацией.
type Config struct {
	// debug, info, warn, error
	Level string `mapstructure:"level"`
	// console, pretty, json
	Format string `mapstructure:"format"`
	// пусто - без файла
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`    // мегабайты
	MaxAge     int    `mapstructure:"max_age"`     // дни
	MaxBackups int    `mapstructure:"max_backups"` // количество файлов
	Compress   bool   `mapstructure:"compress"`

	Development bool `mapstructure:"development"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		File:       "logs/settlement.log",
		MaxSize:    100,
		MaxAge:     7,
		MaxBackups: 3,
		Compress:   true,
	}
}
