package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port   int   `mapstructure:"port"`
	NodeID int64 `mapstructure:"node_id"` // 雪花算法节点ID
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"` // silent / error / warn / info
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	Fund    string `mapstructure:"fund"`    // 充值、提现审核结果
	Product string `mapstructure:"product"` // 产品结算
}

type BusinessConfig struct {
	MaxRetryCount          int    `mapstructure:"max_retry_count"`
	DefaultAnnualRate      string `mapstructure:"default_annual_rate"` // 百分数，sys_config 缺失时使用
	AccrualCron            string `mapstructure:"accrual_cron"`
	WorkerPoolSize         int    `mapstructure:"worker_pool_size"`
	WorkerQueueSize        int    `mapstructure:"worker_queue_size"`
	SettlementSweepSeconds int    `mapstructure:"settlement_sweep_seconds"`
	CreditRetrySeconds     int    `mapstructure:"credit_retry_seconds"`
	LockTTLSeconds         int    `mapstructure:"lock_ttl_seconds"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json / console
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.node_id", 1)

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.log_level", "warn")

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.enabled", true)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.fund", "wealth_fund_event")
	v.SetDefault("kafka.topic.product", "wealth_product_event")

	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.default_annual_rate", "2")
	v.SetDefault("business.accrual_cron", "0 0 1 * * *")
	v.SetDefault("business.worker_pool_size", 4)
	v.SetDefault("business.worker_queue_size", 1024)
	v.SetDefault("business.settlement_sweep_seconds", 60)
	v.SetDefault("business.credit_retry_seconds", 30)
	v.SetDefault("business.lock_ttl_seconds", 30)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig 加载配置文件，环境变量 WEALTH_<SECTION>_<KEY> 覆盖文件中的值
// configPath 为空时只使用默认值和环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WEALTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验启动必需的配置
func (c *Config) Validate() error {
	if c.Business.WorkerPoolSize <= 0 {
		return fmt.Errorf("business.worker_pool_size 必须大于0")
	}
	if c.Business.WorkerQueueSize <= 0 {
		return fmt.Errorf("business.worker_queue_size 必须大于0")
	}
	if c.Business.MaxRetryCount <= 0 {
		return fmt.Errorf("business.max_retry_count 必须大于0")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers 不能为空")
	}
	return nil
}

// DSN MySQL 连接串
func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
