package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/spf13/viper"
)

// Config хранит конфигурацию сервиса
type Config struct {
	ServerAddress       string `json:"server_address"`
	BaseURL             string `json:"base_url"`
	FileStoragePath     string `json:"file_storage_path"`
	DatabaseDSN         string `json:"database_dsn"`
	PgMigrationsPath    string `json:"pg_migrations_path"`
	MaxRedirectDepth    int    `json:"max_redirect_depth"`
	DefaultRedirectCode int    `json:"default_redirect_code"`
	TrackVisits         bool   `json:"track_visits"`
	VisitQueueSize      int    `json:"visit_queue_size"`
	AuthSecret          string `json:"auth_secret"`
	EnableHTTPS         bool   `json:"enable_https"`
	TLSCertPath         string `json:"tls_cert_path"`
	TLSKeyPath          string `json:"tls_key_path"`
	Mode                string `json:"-"`
	TrustedSubnet       string `json:"trusted_subnet"`
}

// NewConfig инициализирует конфигурацию на основе аргументов командной строки
func NewConfig() *Config {

	viper.SetDefault("SERVER_ADDRESS", "localhost:8080") // Значения по умолчанию
	viper.SetDefault("BASE_URL", "http://localhost:8080")
	viper.SetDefault("FILE_STORAGE_PATH", "urls.json")
	viper.SetDefault("DATABASE_DSN", "")
	viper.SetDefault("PG_MIGRATIONS_PATH", "internal/migrations")
	viper.SetDefault("MAX_REDIRECT_DEPTH", 5)
	viper.SetDefault("DEFAULT_REDIRECT_CODE", 301)
	viper.SetDefault("TRACK_VISITS", true)
	viper.SetDefault("VISIT_QUEUE_SIZE", 1024)
	viper.SetDefault("AUTH_SECRET", "url-manager-secret")
	viper.SetDefault("ENABLE_HTTPS", false)
	viper.SetDefault("TLS_CERT_PATH", "cert.pem")
	viper.SetDefault("TLS_KEY_PATH", "key.pem")
	viper.SetDefault("TRUSTED_SUBNET", "")

	viper.AutomaticEnv()

	// Читаем .env, если есть (не переопределяет переменные окружения!)
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig() // Ошибку игнорируем, если файла нет

	// Определяем флаги, но НЕ задаем в них значения по умолчанию
	serverAddress := flag.String("a", "", "server address")
	baseURL := flag.String("b", "", "base URL")
	fileStoragePath := flag.String("f", "", "file storage path (JSON journal)")
	databaseDSN := flag.String("d", "", "PostgreSQL DSN")
	maxDepth := flag.Int("r", 0, "max redirect depth")
	enableHTTPS := flag.Bool("s", false, "enable HTTPS")
	tlsCertPath := flag.String("cert", "", "path to TLS certificate")
	tlsKeyPath := flag.String("key", "", "path to TLS key")
	configPath := flag.String("c", "", "path to JSON config file")
	trustedSubnet := flag.String("t", "", "trusted subnet in CIDR format")
	flag.StringVar(configPath, "config", "", "path to JSON config file")

	flag.Parse()

	// Загружаем JSON-конфигурацию (если указана)
	if *configPath == "" {
		*configPath = os.Getenv("CONFIG")
	}

	type rawJSON Config
	jsonCfg := &rawJSON{}
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			log.Printf("Не удалось прочитать JSON-файл конфигурации %q: %v", *configPath, err)
		} else if err := json.Unmarshal(data, jsonCfg); err != nil {
			log.Printf("Ошибка разбора JSON-файла конфигурации: %v", err)
		}
	}

	cfg := &Config{
		ServerAddress:       viper.GetString("SERVER_ADDRESS"),
		BaseURL:             viper.GetString("BASE_URL"),
		FileStoragePath:     viper.GetString("FILE_STORAGE_PATH"),
		DatabaseDSN:         viper.GetString("DATABASE_DSN"),
		PgMigrationsPath:    viper.GetString("PG_MIGRATIONS_PATH"),
		MaxRedirectDepth:    viper.GetInt("MAX_REDIRECT_DEPTH"),
		DefaultRedirectCode: viper.GetInt("DEFAULT_REDIRECT_CODE"),
		TrackVisits:         viper.GetBool("TRACK_VISITS"),
		VisitQueueSize:      viper.GetInt("VISIT_QUEUE_SIZE"),
		AuthSecret:          viper.GetString("AUTH_SECRET"),
		EnableHTTPS:         viper.GetBool("ENABLE_HTTPS"),
		TLSCertPath:         viper.GetString("TLS_CERT_PATH"),
		TLSKeyPath:          viper.GetString("TLS_KEY_PATH"),
		TrustedSubnet:       viper.GetString("TRUSTED_SUBNET"),
	}

	// Значения из JSON-файла применяются там, где окружение молчит
	applyFileConfig(cfg, (*Config)(jsonCfg))

	// Если флаг передан, но переменной окружения нет — используем флаг
	if *serverAddress != "" {
		cfg.ServerAddress = *serverAddress
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *fileStoragePath != "" {
		cfg.FileStoragePath = *fileStoragePath
	}
	if *databaseDSN != "" {
		cfg.DatabaseDSN = *databaseDSN
		os.Setenv("DATABASE_DSN", cfg.DatabaseDSN)
	}
	if *maxDepth > 0 {
		cfg.MaxRedirectDepth = *maxDepth
	}
	if *trustedSubnet != "" {
		cfg.TrustedSubnet = *trustedSubnet
	}

	// Определяем режим работы
	if cfg.DatabaseDSN != "" {
		cfg.Mode = "database"
	} else if cfg.FileStoragePath != "" {
		cfg.Mode = "file"
	} else {
		cfg.Mode = "in-memory"
	}

	// Включаем TLS
	if *enableHTTPS {
		cfg.EnableHTTPS = true
	}
	if *tlsCertPath != "" {
		cfg.TLSCertPath = *tlsCertPath
	}
	if *tlsKeyPath != "" {
		cfg.TLSKeyPath = *tlsKeyPath
	}

	log.Printf("Инициализация конфигурации: ServerAddress=%s", cfg.ServerAddress)
	log.Printf("Инициализация конфигурации: BaseURL=%s", cfg.BaseURL)
	log.Printf("Инициализация конфигурации: Mode=%s", cfg.Mode)
	log.Printf("Инициализация конфигурации: MaxRedirectDepth=%d", cfg.MaxRedirectDepth)
	log.Printf("Инициализация конфигурации: DefaultRedirectCode=%d", cfg.DefaultRedirectCode)
	log.Printf("Инициализация конфигурации: TrackVisits=%v", cfg.TrackVisits)

	// Проверка корректности конфигурации
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Ошибка конфигурации: %v\n", err)
	}

	return cfg
}

// applyFileConfig накладывает значения из JSON-файла там, где окружение
// и .env молчат. Флаги применяются позже и перекрывают оба источника.
func applyFileConfig(cfg, fileCfg *Config) {
	if fileCfg.MaxRedirectDepth > 0 && !setExplicitly("MAX_REDIRECT_DEPTH") {
		cfg.MaxRedirectDepth = fileCfg.MaxRedirectDepth
	}
	if fileCfg.DefaultRedirectCode > 0 && !setExplicitly("DEFAULT_REDIRECT_CODE") {
		cfg.DefaultRedirectCode = fileCfg.DefaultRedirectCode
	}
	if fileCfg.DatabaseDSN != "" && cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = fileCfg.DatabaseDSN
	}
}

// setExplicitly сообщает, задан ли ключ переменной окружения или .env.
// viper.IsSet здесь не подходит: он возвращает true и для значений,
// заданных через SetDefault.
func setExplicitly(key string) bool {
	if _, ok := os.LookupEnv(key); ok {
		return true
	}
	return viper.InConfig(key)
}

// Validate проверяет корректность конфигурации
func (cfg *Config) Validate() error {
	if cfg.ServerAddress == "" {
		return fmt.Errorf("адрес сервера не может быть пустым")
	}
	if cfg.BaseURL == "" {
		return fmt.Errorf("базовый URL не может быть пустым")
	}
	if cfg.MaxRedirectDepth <= 0 {
		return fmt.Errorf("глубина редиректов должна быть положительной")
	}
	switch cfg.DefaultRedirectCode {
	case 301, 302, 307, 308:
	default:
		return fmt.Errorf("недопустимый код редиректа: %d", cfg.DefaultRedirectCode)
	}
	return nil
}
