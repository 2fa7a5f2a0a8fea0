package mqtt

import (
	"strings"
	"testing"

	"github.com/stagelink/tally-core/internal/infrastructure/config"
)

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"system status", topics.SystemStatus(), "tallycore/system/status"},
		{"obs status", topics.OBSStatus(), "tallycore/obs/status"},
		{"tally", topics.TallyStatus("esp32-001"), "tallycore/tally/esp32-001"},
		{"tally with wildcard", topics.TallyStatus("esp32/+/#"), "tallycore/tally/esp32___"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("topic = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "broker.local",
			Port:     1883,
			ClientID: "tallycore-test",
		},
		Auth: config.MQTTAuthConfig{
			Username: "tally",
			Password: "secret",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     60,
		},
	}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://broker.local:1883" {
		t.Errorf("broker servers = %v", opts.Servers)
	}
	if opts.ClientID != "tallycore-test" {
		t.Errorf("client id = %q", opts.ClientID)
	}
	if opts.Username != "tally" {
		t.Errorf("username = %q", opts.Username)
	}
	if !opts.AutoReconnect {
		t.Error("auto reconnect disabled")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "broker.local",
			Port:     8883,
			ClientID: "tallycore",
			TLS:      true,
		},
	}

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %v, want ssl", opts.Servers)
	}
	if opts.TLSConfig == nil {
		t.Fatal("TLS config not set")
	}
}

func TestConfigureLWT(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "h", Port: 1883, ClientID: "tallycore"},
	}
	opts := buildClientOptions(cfg)
	configureLWT(opts, "tallycore")

	if !opts.WillEnabled {
		t.Fatal("LWT not enabled")
	}
	if opts.WillTopic != "tallycore/system/status" {
		t.Errorf("will topic = %q", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("will message not retained")
	}
	payload := string(opts.WillPayload)
	if !strings.Contains(payload, `"status":"offline"`) ||
		!strings.Contains(payload, "unexpected_disconnect") {
		t.Errorf("will payload = %s", payload)
	}
}

func TestPublish_Validation(t *testing.T) {
	c := &Client{}

	if err := c.Publish("", []byte("x"), 0, false); err != ErrInvalidTopic {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("t", []byte("x"), 3, false); err != ErrInvalidQoS {
		t.Errorf("bad qos error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Publish("t", make([]byte, maxPayloadSize+1), 0, false); err == nil {
		t.Error("oversized payload accepted")
	}
	if err := c.Publish("t", []byte("x"), 0, false); err != ErrNotConnected {
		t.Errorf("disconnected error = %v, want ErrNotConnected", err)
	}
}

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("tallycore")
	if !strings.Contains(online, `"status":"online"`) || !strings.Contains(online, "tallycore") {
		t.Errorf("online payload = %s", online)
	}

	offline := buildOfflinePayload("tallycore")
	if !strings.Contains(offline, `"status":"offline"`) || !strings.Contains(offline, "graceful_shutdown") {
		t.Errorf("offline payload = %s", offline)
	}
}
