package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App     AppConfig
	DB      DBConfig
	HTTP    HTTPConfig
	ARCA    ARCAConfig
	Storage StorageConfig
	Redis   RedisConfig
}

// ARCAConfig configuración de los web services de ARCA (ex AFIP) para autorización de comprobantes.
type ARCAConfig struct {
	Environment string        // "homologacion" o "produccion"
	WSAAURL     string        // Opcional: sobrescribe el endpoint LoginCms del entorno
	WSFEURL     string        // Opcional: sobrescribe el endpoint WSFEv1 del entorno
	HTTPTimeout time.Duration // Timeout de red para WSAA/WSFE
	BatchSize   int           // Tamaño de lote por defecto del reintento masivo
	InternalKey string        // Clave para el endpoint interno de reintento masivo (header X-Internal-Key)

	// Modo simulado (entornos no productivos). Se pasa al constructor del servicio de reintentos.
	Mock        bool   // ARCA_MOCK=true
	MockOutcome string // APPROVED | REJECTED | PENDING; si está definido habilita el modo simulado
}

// MockEnabled indica si el reintento masivo debe simular las respuestas de ARCA.
func (c ARCAConfig) MockEnabled() bool {
	return c.Mock || strings.TrimSpace(c.MockOutcome) != ""
}

// StorageConfig selecciona el backend desde el que se leen certificados y llaves.
type StorageConfig struct {
	Backend    string // "local" o "s3"
	LocalRoot  string // Directorio base para rutas relativas (backend local)
	S3Bucket   string // Bucket por defecto cuando la ruta no trae s3://bucket/
	S3Region   string
	S3Endpoint string // Opcional: endpoint compatible S3 (MinIO, Supabase Storage)
}

// RedisConfig conexión opcional a Redis (lock distribuido del reintento masivo).
// Addr vacío = sin lock.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
}

// DBConfig configuración de PostgreSQL.
// Si DatabaseURL no está vacío, se usa como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN devuelve el connection string para PostgreSQL con URL encoding para caracteres especiales.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host        string
	Port        int
	SwaggerFile string
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, DB_HOST, ARCA_ENVIRONMENT, ARCA_MOCK, etc.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := fromViper(v)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		App: AppConfig{
			Env:      getString(v, "APP_ENV", "development"),
			Name:     getString(v, "APP_NAME", "arca-facturacion"),
			LogLevel: getString(v, "LOG_LEVEL", "info"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "arca_facturacion"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
		},
		HTTP: HTTPConfig{
			Host:        getString(v, "HTTP_HOST", "0.0.0.0"),
			Port:        getInt(v, "HTTP_PORT", 8080),
			SwaggerFile: getString(v, "HTTP_SWAGGER_FILE", "./docs/swagger.json"),
		},
		ARCA: ARCAConfig{
			Environment: strings.ToLower(getString(v, "ARCA_ENVIRONMENT", "homologacion")),
			WSAAURL:     getString(v, "ARCA_WSAA_URL", ""),
			WSFEURL:     getString(v, "ARCA_WSFE_URL", ""),
			HTTPTimeout: time.Duration(getInt(v, "ARCA_HTTP_TIMEOUT_SECONDS", 60)) * time.Second,
			BatchSize:   getInt(v, "ARCA_RETRY_BATCH_SIZE", 25),
			InternalKey: getString(v, "ARCA_INTERNAL_KEY", ""),
			Mock:        getBool(v, "ARCA_MOCK", false),
			MockOutcome: strings.ToUpper(getString(v, "ARCA_MOCK_OUTCOME", "")),
		},
		Storage: StorageConfig{
			Backend:    strings.ToLower(getString(v, "STORAGE_BACKEND", "local")),
			LocalRoot:  getString(v, "STORAGE_LOCAL_ROOT", ""),
			S3Bucket:   getString(v, "STORAGE_S3_BUCKET", ""),
			S3Region:   getString(v, "STORAGE_S3_REGION", ""),
			S3Endpoint: getString(v, "STORAGE_S3_ENDPOINT", ""),
		},
		Redis: RedisConfig{
			Addr:     getString(v, "REDIS_ADDR", ""),
			Password: getString(v, "REDIS_PASSWORD", ""),
			DB:       getInt(v, "REDIS_DB", 0),
		},
	}
}

func (c *Config) validate() error {
	switch c.ARCA.Environment {
	case "homologacion", "produccion":
	default:
		return fmt.Errorf("config: ARCA_ENVIRONMENT desconocido %q (usar homologacion|produccion)", c.ARCA.Environment)
	}
	switch c.ARCA.MockOutcome {
	case "", "APPROVED", "REJECTED", "PENDING":
	default:
		return fmt.Errorf("config: ARCA_MOCK_OUTCOME inválido %q (usar APPROVED|REJECTED|PENDING)", c.ARCA.MockOutcome)
	}
	if c.App.Env == "production" && c.ARCA.MockEnabled() {
		return fmt.Errorf("config: el modo simulado de ARCA no se permite con APP_ENV=production")
	}
	switch c.Storage.Backend {
	case "local", "s3":
	default:
		return fmt.Errorf("config: STORAGE_BACKEND desconocido %q (usar local|s3)", c.Storage.Backend)
	}
	return nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
			if err != nil {
				return def
			}
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getBool(v *viper.Viper, key string, def bool) bool {
	if !v.IsSet(key) {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return def
	}
	return b
}
