package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Corpus    CorpusConfig    `mapstructure:"corpus"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Chunk     ChunkConfig     `mapstructure:"chunk"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	Embed     EmbedConfig     `mapstructure:"embed"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	History   HistoryConfig   `mapstructure:"history"`
	VectorDB  VectorDBConfig  `mapstructure:"vectordb"`
	Index     IndexConfig     `mapstructure:"index"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`          // 服务器主机
	Port         int           `mapstructure:"port"`          // 服务器端口
	Mode         string        `mapstructure:"mode"`          // gin运行模式 debug/release
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`  // 读取超时
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // 写入超时
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`        // 日志级别
	File       string `mapstructure:"file"`         // 日志文件，为空则只输出到stdout
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // 单文件最大尺寸
	MaxBackups int    `mapstructure:"max_backups"`  // 保留文件数
	MaxAgeDays int    `mapstructure:"max_age_days"` // 保留天数
}

// CorpusConfig 语料来源配置
type CorpusConfig struct {
	CSVPath string `mapstructure:"csv_path"` // 抓取结果CSV路径
	PDFDir  string `mapstructure:"pdf_dir"`  // 本地PDF目录
	Source  string `mapstructure:"source"`   // PDF来源：local 或 minio
}

// StorageConfig MinIO存储配置
type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"` // MinIO端点
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`  // 桶名称
	Prefix    string `mapstructure:"prefix"`  // PDF对象前缀
	UseSSL    bool   `mapstructure:"use_ssl"` // 是否使用SSL
}

// ChunkConfig 分块配置
type ChunkConfig struct {
	MaxChars int `mapstructure:"max_chars"` // 每块最大字符数
	Overlap  int `mapstructure:"overlap"`   // 相邻块重叠字符数
}

// OCRConfig OCR配置
type OCRConfig struct {
	Enabled  bool   `mapstructure:"enabled"`  // 是否启用OCR回退
	Language string `mapstructure:"language"` // tesseract语言，如 eng
	DPI      int    `mapstructure:"dpi"`      // 栅格化分辨率
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider    string        `mapstructure:"provider"`    // 提供商：openai, tongyi
	Model       string        `mapstructure:"model"`       // 模型名称
	APIKey      string        `mapstructure:"api_key"`     // API密钥
	Endpoint    string        `mapstructure:"endpoint"`    // API端点
	Dimensions  int           `mapstructure:"dimensions"`  // 向量维度
	BatchSize   int           `mapstructure:"batch_size"`  // 批处理大小
	Concurrency int           `mapstructure:"concurrency"` // 构建索引时的并发数
	Timeout     time.Duration `mapstructure:"timeout"`     // 单次调用超时
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`    // 提供商：openai, tongyi
	Model       string        `mapstructure:"model"`       // 模型名称
	APIKey      string        `mapstructure:"api_key"`     // API密钥
	Endpoint    string        `mapstructure:"endpoint"`    // API端点
	MaxTokens   int           `mapstructure:"max_tokens"`  // 最大生成token数量
	Temperature float32       `mapstructure:"temperature"` // 采样温度
	Timeout     time.Duration `mapstructure:"timeout"`     // 单次调用超时
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	TopK      int    `mapstructure:"top_k"`     // 每轮检索的段落数
	Separator string `mapstructure:"separator"` // 拼接上下文的分隔符
}

// HistoryConfig 对话历史配置
type HistoryConfig struct {
	Window int `mapstructure:"window"` // 提示词中保留的最近轮次（一问一答为一轮）
}

// VectorDBConfig 向量数据库配置
type VectorDBConfig struct {
	Type       string `mapstructure:"type"`        // 向量数据库类型：memory, faiss, qdrant
	Path       string `mapstructure:"path"`        // faiss索引文件路径
	Distance   string `mapstructure:"distance"`    // 距离度量方式：cosine, l2, dot
	QdrantHost string `mapstructure:"qdrant_host"` // qdrant主机
	QdrantPort int    `mapstructure:"qdrant_port"` // qdrant gRPC端口
	Collection string `mapstructure:"collection"`  // qdrant集合名称
}

// IndexConfig 索引检查点配置
type IndexConfig struct {
	CheckpointDir string `mapstructure:"checkpoint_dir"` // 检查点目录，为空则不持久化
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Enable   bool   `mapstructure:"enable"`   // 是否启用嵌入缓存
	Type     string `mapstructure:"type"`     // 缓存类型：memory 或 redis
	Address  string `mapstructure:"address"`  // Redis地址
	Password string `mapstructure:"password"` // Redis密码
	DB       int    `mapstructure:"db"`       // Redis数据库
	TTL      int    `mapstructure:"ttl"`      // 缓存TTL（秒）
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Enable        bool   `mapstructure:"enable"`         // 是否启用任务队列
	RedisAddr     string `mapstructure:"redis_addr"`     // Redis地址
	RedisPassword string `mapstructure:"redis_password"` // Redis密码
	RedisDB       int    `mapstructure:"redis_db"`       // Redis数据库编号
	Concurrency   int    `mapstructure:"concurrency"`    // 任务处理并发数
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // 数据库类型: sqlite
	DSN  string `mapstructure:"dsn"`  // 数据源名称
}

// Load 从文件和环境变量加载配置
func Load(configPath string) (*Config, error) {
	var config Config

	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			log.Printf("Warning: Config file not found at %s, using defaults", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		log.Printf("Using config file: %s", v.ConfigFileUsed())
	}

	// 支持环境变量覆盖，例如 LLM_API_KEY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	processEnvironmentVariables(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// WriteDefault 将默认配置写入指定路径
func WriteDefault(configPath string) error {
	v := viper.New()
	setDefaults(v)
	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}
	return v.WriteConfigAs(configPath)
}

// processEnvironmentVariables 展开 ${ENV} 形式的配置值
func processEnvironmentVariables(cfg *Config) {
	for _, field := range []*string{
		&cfg.Embed.APIKey,
		&cfg.LLM.APIKey,
		&cfg.Storage.AccessKey,
		&cfg.Storage.SecretKey,
		&cfg.Cache.Password,
		&cfg.Queue.RedisPassword,
	} {
		*field = expandEnv(*field)
	}
}

func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		if envVal := os.Getenv(value[2 : len(value)-1]); envVal != "" {
			return envVal
		}
	}
	return value
}

// Validate 校验配置取值范围
func (c *Config) Validate() error {
	if c.Chunk.MaxChars <= 0 {
		return fmt.Errorf("chunk.max_chars must be positive, got %d", c.Chunk.MaxChars)
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.MaxChars {
		return fmt.Errorf("chunk.overlap must be in [0, %d), got %d", c.Chunk.MaxChars, c.Chunk.Overlap)
	}
	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > 20 {
		return fmt.Errorf("retrieval.top_k must be in [1, 20], got %d", c.Retrieval.TopK)
	}
	if c.History.Window < 1 {
		return fmt.Errorf("history.window must be at least 1, got %d", c.History.Window)
	}
	switch c.Corpus.Source {
	case "local", "minio":
	default:
		return fmt.Errorf("unsupported corpus.source: %s", c.Corpus.Source)
	}
	return nil
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)

	// 语料默认配置
	v.SetDefault("corpus.csv_path", "data/scraped_data.csv")
	v.SetDefault("corpus.pdf_dir", "data/pdfs")
	v.SetDefault("corpus.source", "local")

	// MinIO默认配置
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.bucket", "advisor-corpus")
	v.SetDefault("storage.prefix", "pdfs/")
	v.SetDefault("storage.use_ssl", false)

	// 分块默认配置
	v.SetDefault("chunk.max_chars", 10000)
	v.SetDefault("chunk.overlap", 100)

	// OCR默认配置
	v.SetDefault("ocr.enabled", true)
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.dpi", 200)

	// Embedding默认配置
	v.SetDefault("embed.provider", "openai")
	v.SetDefault("embed.model", "text-embedding-3-small")
	v.SetDefault("embed.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("embed.endpoint", "")
	v.SetDefault("embed.dimensions", 1536)
	v.SetDefault("embed.batch_size", 16)
	v.SetDefault("embed.concurrency", 4)
	v.SetDefault("embed.timeout", "30s")

	// LLM默认配置
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout", "60s")

	// 检索默认配置
	v.SetDefault("retrieval.top_k", 4)
	v.SetDefault("retrieval.separator", "\n")

	// 对话历史默认配置
	v.SetDefault("history.window", 10)

	// 向量数据库默认配置
	v.SetDefault("vectordb.type", "memory")
	v.SetDefault("vectordb.path", "data/vectordb/index.faiss")
	v.SetDefault("vectordb.distance", "cosine")
	v.SetDefault("vectordb.qdrant_host", "localhost")
	v.SetDefault("vectordb.qdrant_port", 6334)
	v.SetDefault("vectordb.collection", "advisor_chunks")

	// 检查点默认配置
	v.SetDefault("index.checkpoint_dir", "data/index")

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.ttl", 7*24*3600)

	// 队列默认配置
	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 1)

	// 数据库默认配置
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/advisor.db")
}
