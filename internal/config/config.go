package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Cashback CashbackConfig `mapstructure:"cashback"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	CashbackEarned string `mapstructure:"cashback_earned"`
}

// TierConfig 返现档位：订单小计达到 threshold 时按 percentage 返现
// percentage <= 0 表示该档位停用
type TierConfig struct {
	Threshold  float64 `mapstructure:"threshold"`
	Percentage float64 `mapstructure:"percentage"`
}

// BrandRuleConfig 品牌/商品级返现规则
// type 为 product 时按商品ID匹配，为 brand 时按品牌/类目ID匹配
type BrandRuleConfig struct {
	Type       string  `mapstructure:"type"`
	IDs        []int64 `mapstructure:"ids"`
	Percentage float64 `mapstructure:"percentage"`
}

// CashbackConfig 返现业务配置
//
// 三个档位是固定槽位而不是有序列表：计算时永远先查第3档、再第2档、
// 再第1档，与配置的阈值大小无关（沿用老系统的行为，见 Validate 的告警）。
type CashbackConfig struct {
	Tier1 TierConfig `mapstructure:"tier_1"`
	Tier2 TierConfig `mapstructure:"tier_2"`
	Tier3 TierConfig `mapstructure:"tier_3"`

	// UsageLimitPercentage 单笔订单最多可抵扣小计的百分比
	UsageLimitPercentage float64 `mapstructure:"usage_limit_percentage"`
	// MaxCashbackLimit 全局余额上限，0 表示不限制；用户行上的 max_limit 优先
	MaxCashbackLimit float64 `mapstructure:"max_cashback_limit"`

	// PerBrandLogic 开启后按行项目解析返现比例（商品规则 > 品牌规则 > 档位）
	PerBrandLogic bool              `mapstructure:"per_brand_logic"`
	BrandRules    []BrandRuleConfig `mapstructure:"brand_rules"`

	// PaidStatuses 视作"已支付"的订单状态，状态变更信号据此过滤
	PaidStatuses []string `mapstructure:"paid_statuses"`
	// FeeLabels 用于在订单缺少返现快照时，从费用明细里兜底识别返现折扣行
	FeeLabels []string `mapstructure:"fee_labels"`

	// PendingTTLMinutes 待使用返现在会话中的保留时长
	PendingTTLMinutes int `mapstructure:"pending_ttl_minutes"`
	// SweepIntervalSeconds 结算补偿扫描间隔
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
	// SweepGraceSeconds 订单进入已支付状态后多久未结算才触发补偿
	SweepGraceSeconds int `mapstructure:"sweep_grace_seconds"`
	// MaxRetryCount outbox 消息最大重试次数
	MaxRetryCount int `mapstructure:"max_retry_count"`
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	config.Cashback.Validate()

	GlobalConfig = config
	return config
}

// Validate 校验返现配置
//
// 阈值乱序（比如第2档阈值高于第3档）会导致低档位被跳过。为了和
// 老系统行为保持兼容，这里只告警不纠正，也不重新排序。
func (c *CashbackConfig) Validate() {
	if c.Tier1.Threshold > c.Tier2.Threshold || c.Tier2.Threshold > c.Tier3.Threshold {
		log.Printf("[Config] 警告: 返现档位阈值未按升序配置 (tier1=%.2f tier2=%.2f tier3=%.2f)，匹配时仍按 3→2→1 固定顺序检查",
			c.Tier1.Threshold, c.Tier2.Threshold, c.Tier3.Threshold)
	}
	if c.UsageLimitPercentage < 0 || c.UsageLimitPercentage > 100 {
		log.Printf("[Config] 警告: usage_limit_percentage=%.2f 超出 [0,100]", c.UsageLimitPercentage)
	}
	for i, r := range c.BrandRules {
		if r.Type != "product" && r.Type != "brand" {
			log.Printf("[Config] 警告: brand_rules[%d] 类型 %q 无效，该规则不会命中任何行项目", i, r.Type)
		}
	}
}
