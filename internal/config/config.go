package config

import (
	"log"

	"github.com/BurntSushi/toml"
)

type MainConfig struct {
	AppName string `toml:"appName"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

type MysqlConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DatabaseName string `toml:"databaseName"`
}

type LogConfig struct {
	LogPath string `toml:"logPath"`
}

type JwtConfig struct {
	Key         string `toml:"key"`
	ExpireHours int    `toml:"expireHours"`
	Issuer      string `toml:"issuer"`
}

type MilvusConfig struct {
	Address        string `toml:"address"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	DBName         string `toml:"dbName"`
	CollectionName string `toml:"collectionName"`
	VectorDim      int    `toml:"vectorDim"`
	MetricType     string `toml:"metricType"`
}

type KafkaConfig struct {
	Brokers         []string `toml:"brokers"`
	ClientID        string   `toml:"clientID"`
	IngestTopic     string   `toml:"ingestTopic"`
	ConsumerGroupID string   `toml:"consumerGroupID"`
	Partitions      int32    `toml:"partitions"`
	Replication     int16    `toml:"replication"`
}

type AIEmbeddingConfig struct {
	Provider        string `toml:"provider"`
	APIKey          string `toml:"apiKey"`
	AccessKey       string `toml:"accessKey"`
	SecretKey       string `toml:"secretKey"`
	BaseURL         string `toml:"baseURL"`
	Region          string `toml:"region"`
	Model           string `toml:"model"`
	Dimensions      int    `toml:"dimensions"`
	TimeoutSeconds  int    `toml:"timeoutSeconds"`
	RetryTimes      int    `toml:"retryTimes"`
	User            string `toml:"user"`
	ByAzure         bool   `toml:"byAzure"`
	AzureAPIVersion string `toml:"azureApiVersion"`
}

type AIChatModelConfig struct {
	Provider        string `toml:"provider"`
	APIKey          string `toml:"apiKey"`
	AccessKey       string `toml:"accessKey"`
	SecretKey       string `toml:"secretKey"`
	BaseURL         string `toml:"baseURL"`
	Region          string `toml:"region"`
	Model           string `toml:"model"`
	TimeoutSeconds  int    `toml:"timeoutSeconds"`
	RetryTimes      int    `toml:"retryTimes"`
	ByAzure         bool   `toml:"byAzure"`
	AzureAPIVersion string `toml:"azureApiVersion"`
}

type AIConfig struct {
	Embedding AIEmbeddingConfig `toml:"embedding"`
	ChatModel AIChatModelConfig `toml:"chatModel"`
}

// ParserConfig 外部 PDF 解析服务配置
type ParserConfig struct {
	APIKey              string `toml:"apiKey"`
	BaseURL             string `toml:"baseURL"`
	PollIntervalSeconds int    `toml:"pollIntervalSeconds"`
	MaxPollAttempts     int    `toml:"maxPollAttempts"`
	// 超过该大小的文件不再走视觉模型兜底
	MaxFallbackBytes int64 `toml:"maxFallbackBytes"`
}

// IngestConfig 知识库摄取管线配置
type IngestConfig struct {
	Strategy         string `toml:"strategy"`
	ChunkSize        int    `toml:"chunkSize"`
	ChunkOverlap     int    `toml:"chunkOverlap"`
	MaxSemanticChunk int    `toml:"maxSemanticChunk"`
	BreakpointPct    int    `toml:"breakpointPct"`
	SweepBatchSize   int    `toml:"sweepBatchSize"`
	SweepMaxPasses   int    `toml:"sweepMaxPasses"`
	ListMinScan      int    `toml:"listMinScan"`
	ListMaxScan      int    `toml:"listMaxScan"`
}

type RetrievalConfig struct {
	StrictThreshold  float64 `toml:"strictThreshold"`
	LenientThreshold float64 `toml:"lenientThreshold"`
	SearchLimit      int     `toml:"searchLimit"`
	MinKeywordLength int     `toml:"minKeywordLength"`
}

type RedisConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"poolSize"`
	MinIdleConns int    `toml:"minIdleConns"`
}

type Config struct {
	MainConfig      `toml:"mainConfig"`
	MysqlConfig     `toml:"mysqlConfig"`
	JwtConfig       `toml:"jwtConfig"`
	MilvusConfig    `toml:"milvusConfig"`
	KafkaConfig     `toml:"kafkaConfig"`
	AIConfig        `toml:"aiConfig"`
	LogConfig       `toml:"logConfig"`
	ParserConfig    `toml:"parserConfig"`
	IngestConfig    `toml:"ingestConfig"`
	RetrievalConfig `toml:"retrievalConfig"`
	RedisConfig     `toml:"redisConfig"`
}

var config *Config

func LoadConfig() error {

	configPath := "configs/config_local.toml"
	if _, err := toml.DecodeFile(configPath, config); err != nil {
		log.Printf("加载配置文件失败: %v, 尝试使用默认设置", err)
		return err
	}
	return nil
}

func GetConfig() *Config {
	if config == nil {
		config = new(Config)
		_ = LoadConfig()
	}
	return config
}
