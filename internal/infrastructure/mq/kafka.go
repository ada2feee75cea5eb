package mq

import (
	"fmt"

	"wealthledger/internal/config"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Producer 通知事件的出口，OutboxSender 只依赖这个接口
type Producer interface {
	Send(topic, key, value string) error
	Close() error
}

type KafkaProducer struct {
	producer sarama.SyncProducer
}

// NewKafkaProducer 创建 Kafka 同步生产者
func NewKafkaProducer(cfg *config.KafkaConfig) (*KafkaProducer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}
	return &KafkaProducer{producer: producer}, nil
}

// NewKafkaProducerFrom 包装已有的 SyncProducer，测试中传入 sarama/mocks
func NewKafkaProducerFrom(producer sarama.SyncProducer) *KafkaProducer {
	return &KafkaProducer{producer: producer}
}

func (p *KafkaProducer) Send(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}
	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *KafkaProducer) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

// LogProducer 未启用 Kafka 时使用，只打日志
type LogProducer struct {
	Log *zap.Logger
}

func (p LogProducer) Send(topic, key, value string) error {
	p.Log.Info("事件", zap.String("topic", topic), zap.String("key", key), zap.String("payload", value))
	return nil
}

func (p LogProducer) Close() error { return nil }
