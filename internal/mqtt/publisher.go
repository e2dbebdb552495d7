package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ivalenzuelan/GridIncidentAgent/internal/report"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	enabled     bool
}

type PublisherConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Enabled     bool
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return &Publisher{enabled: false}, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			log.Printf("MQTT connection lost: %v", err)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Println("MQTT connected")
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Publisher{
		client:      client,
		topicPrefix: cfg.TopicPrefix,
		enabled:     true,
	}, nil
}

// PublishReport pushes the headline figures on individual topics and the
// full report JSON as a retained message.
func (p *Publisher) PublishReport(rep *report.Report) error {
	if !p.enabled {
		return nil
	}

	topics := map[string]interface{}{
		"status":           string(rep.GridStatus),
		"voltage_min":      rep.VoltageStats.Min,
		"voltage_max":      rep.VoltageStats.Max,
		"voltage_avg":      rep.VoltageStats.Avg,
		"voltage_std":      rep.VoltageStats.Std,
		"active_outages":   len(rep.ActiveOutages),
		"resolved_outages": len(rep.ResolvedOutages),
		"alerts":           len(rep.Alerts),
	}

	for name, value := range topics {
		topic := fmt.Sprintf("%s/grid/%s", p.topicPrefix, name)
		payload := fmt.Sprintf("%v", value)
		token := p.client.Publish(topic, 0, false, payload)
		token.Wait()
		if token.Error() != nil {
			log.Printf("Failed to publish to %s: %v", topic, token.Error())
		}
	}

	reportJSON, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	reportTopic := fmt.Sprintf("%s/grid/report", p.topicPrefix)
	token := p.client.Publish(reportTopic, 0, true, reportJSON)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish report: %w", token.Error())
	}

	return nil
}

func (p *Publisher) IsConnected() bool {
	if !p.enabled {
		return false
	}
	return p.client.IsConnected()
}

func (p *Publisher) Close() {
	if p.enabled && p.client != nil {
		p.client.Disconnect(1000)
	}
}
