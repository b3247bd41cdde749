package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/sleepgrind/internal/infrastructure/config"
)

// ─── Mock Dependencies ─────────────────────────────────────────────

// fakeToken completes immediately with err.
type fakeToken struct {
	err     error
	timeout bool
}

func (t fakeToken) Wait() bool                     { return !t.timeout }
func (t fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t fakeToken) Error() error                   { return t.err }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho implements the parts of pahomqtt.Client the wrapper uses.
type fakePaho struct {
	pahomqtt.Client

	mu           sync.Mutex
	connected    bool
	published    []published
	subscribed   map[string]pahomqtt.MessageHandler
	unsubscribed []string
	disconnected bool
	publishErr   error
	subTimeout   bool
}

func newFakePaho() *fakePaho {
	return &fakePaho{connected: true, subscribed: make(map[string]pahomqtt.MessageHandler)}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	f.published = append(f.published, published{topic: topic, qos: qos, retained: retained, payload: b})
	return fakeToken{err: f.publishErr}
}

func (f *fakePaho) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subTimeout {
		return fakeToken{timeout: true}
	}
	f.subscribed[topic] = cb
	return fakeToken{}
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topics...)
	return fakeToken{}
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
	f.connected = false
}

// deliver invokes the handler registered for topic.
func (f *fakePaho) deliver(topic string, payload []byte) {
	f.mu.Lock()
	cb := f.subscribed[topic]
	f.mu.Unlock()
	cb(nil, fakeMessage{topic: topic, payload: payload})
}

type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "sleepgrind-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
		TopicPrefix: "lab",
	}
}

func connectedClient() (*Client, *fakePaho) {
	pc := newFakePaho()
	c := newClient(testConfig(), pc)
	c.setConnected(true)
	return c, pc
}

// ─── Publish ───────────────────────────────────────────────────────

func TestPublish(t *testing.T) {
	c, pc := connectedClient()

	if err := c.Publish("lab/run/step", []byte(`{"step":1}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(pc.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(pc.published))
	}
	got := pc.published[0]
	if got.topic != "lab/run/step" || got.qos != 1 || got.retained || string(got.payload) != `{"step":1}` {
		t.Errorf("published %+v", got)
	}
}

func TestPublish_Validation(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{name: "empty topic", topic: "", qos: 0, wantErr: ErrInvalidTopic},
		{name: "qos too high", topic: "a", qos: 3, wantErr: ErrInvalidQoS},
		{name: "payload too large", topic: "a", payload: make([]byte, maxPayloadSize+1), wantErr: ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, pc := connectedClient()
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
			if len(pc.published) != 0 {
				t.Errorf("published %d messages, want 0", len(pc.published))
			}
		})
	}
}

func TestPublish_Disconnected(t *testing.T) {
	c := newClient(testConfig(), newFakePaho())
	if err := c.Publish("a", nil, 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestPublish_BrokerError(t *testing.T) {
	c, pc := connectedClient()
	pc.publishErr = errors.New("not authorized")
	if err := c.Publish("a", nil, 0, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishJSON(t *testing.T) {
	c, pc := connectedClient()

	if err := c.PublishJSON(c.Topics().RunState(), map[string]int{"steps": 3}, true); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}
	got := pc.published[0]
	if got.topic != "lab/run/state" || !got.retained || got.qos != 1 {
		t.Errorf("published %+v", got)
	}
	var decoded map[string]int
	if err := json.Unmarshal(got.payload, &decoded); err != nil || decoded["steps"] != 3 {
		t.Errorf("payload = %s, err = %v", got.payload, err)
	}

	if err := c.PublishJSON("a", make(chan int), false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON(chan) error = %v, want ErrPublishFailed", err)
	}
}

// ─── Subscribe ─────────────────────────────────────────────────────

// tracked reports whether topic is in the reconnect set.
func tracked(c *Client, topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscriptions[topic]
	return ok
}

func TestSubscribe_DeliversAndTracks(t *testing.T) {
	c, pc := connectedClient()

	var got []string
	sub, err := c.Subscribe("lab/command/stop", 1, func(topic string, payload []byte) error {
		got = append(got, topic+"="+string(payload))
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if sub.Topic() != "lab/command/stop" || !tracked(c, "lab/command/stop") {
		t.Error("subscription not tracked")
	}

	pc.deliver("lab/command/stop", []byte("now"))
	if len(got) != 1 || got[0] != "lab/command/stop=now" {
		t.Errorf("handler saw %v", got)
	}
}

func TestSubscription_Cancel(t *testing.T) {
	c, pc := connectedClient()
	sub, err := c.Subscribe("lab/command/stop", 1, func(string, []byte) error { return nil })
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := sub.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if err := sub.Cancel(); err != nil {
		t.Fatalf("second Cancel() error = %v", err)
	}
	if tracked(c, "lab/command/stop") {
		t.Error("subscription still tracked after Cancel()")
	}
	if len(pc.unsubscribed) != 1 || pc.unsubscribed[0] != "lab/command/stop" {
		t.Errorf("broker unsubscribes = %v, want exactly one", pc.unsubscribed)
	}

	// A cancelled topic is not restored on reconnect.
	pc.subscribed = make(map[string]pahomqtt.MessageHandler)
	c.handleConnect()
	if _, ok := pc.subscribed["lab/command/stop"]; ok {
		t.Error("cancelled subscription restored after reconnect")
	}
}

func TestSubscription_CancelWhileDisconnected(t *testing.T) {
	c, pc := connectedClient()
	sub, err := c.Subscribe("lab/command/stop", 1, func(string, []byte) error { return nil })
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	c.handleDisconnect(errors.New("network down"))
	if err := sub.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if len(pc.unsubscribed) != 0 {
		t.Errorf("broker unsubscribes = %v, want none while offline", pc.unsubscribed)
	}
	if tracked(c, "lab/command/stop") {
		t.Error("subscription still tracked after Cancel()")
	}
}

func TestSubscribe_Validation(t *testing.T) {
	noop := func(string, []byte) error { return nil }
	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		wantErr error
	}{
		{name: "empty topic", topic: "", handler: noop, wantErr: ErrInvalidTopic},
		{name: "qos too high", topic: "a", qos: 5, handler: noop, wantErr: ErrInvalidQoS},
		{name: "nil handler", topic: "a", wantErr: ErrSubscribeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := connectedClient()
			sub, err := c.Subscribe(tt.topic, tt.qos, tt.handler)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
			if sub != nil {
				t.Error("Subscribe() returned a subscription on error")
			}
		})
	}
}

func TestSubscribe_TimeoutIsNotTracked(t *testing.T) {
	c, pc := connectedClient()
	pc.subTimeout = true

	_, err := c.Subscribe("a", 0, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if tracked(c, "a") {
		t.Error("timed out subscription is tracked")
	}
}

func TestHandler_ErrorsAndPanicsAreLogged(t *testing.T) {
	c, pc := connectedClient()
	logger := &mockLogger{}
	c.SetLogger(logger)

	_, _ = c.Subscribe("err", 0, func(string, []byte) error { return errors.New("bad payload") })
	_, _ = c.Subscribe("panic", 0, func(string, []byte) error { panic("boom") })

	pc.deliver("err", nil)
	pc.deliver("panic", nil)

	if len(logger.warns) != 1 || len(logger.errors) != 1 {
		t.Errorf("warns = %v, errors = %v", logger.warns, logger.errors)
	}
}

// ─── Connection Lifecycle ──────────────────────────────────────────

func TestReconnect_RestoresSubscriptionsAndStatus(t *testing.T) {
	c, pc := connectedClient()
	_, _ = c.Subscribe("lab/command/stop", 1, func(string, []byte) error { return nil })

	var connects int
	c.SetOnConnect(func() { connects++ })
	var lost error
	c.SetOnDisconnect(func(err error) { lost = err })

	c.handleDisconnect(errors.New("network down"))
	if c.IsConnected() {
		t.Error("IsConnected() = true after disconnect")
	}
	if lost == nil {
		t.Error("OnDisconnect callback not called")
	}

	pc.subscribed = make(map[string]pahomqtt.MessageHandler)
	c.handleConnect()

	if _, ok := pc.subscribed["lab/command/stop"]; !ok {
		t.Error("subscription not restored")
	}
	if connects != 1 {
		t.Errorf("OnConnect called %d times, want 1", connects)
	}
	last := pc.published[len(pc.published)-1]
	if last.topic != "lab/system/status" || !last.retained || !strings.Contains(string(last.payload), `"status":"online"`) {
		t.Errorf("status publish = %+v", last)
	}
}

func TestClose_PublishesOfflineStatus(t *testing.T) {
	c, pc := connectedClient()

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !pc.disconnected {
		t.Error("paho client not disconnected")
	}
	if len(pc.published) != 1 || !strings.Contains(string(pc.published[0].payload), "graceful_shutdown") {
		t.Errorf("published %+v", pc.published)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestClose_Nil(t *testing.T) {
	c := newClient(testConfig(), nil)
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	c, pc := connectedClient()
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v", err)
	}

	pc.connected = false
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck(disconnected) error = %v, want ErrNotConnected", err)
	}
}

func TestConnect_BrokerRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 1
	cfg.Reconnect.InitialDelay = 0

	// With connect retry enabled paho keeps trying until the timeout, so
	// only check the failure is reported, not how fast.
	if testing.Short() {
		t.Skip("waits for the connect timeout")
	}
	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

// ─── Options ───────────────────────────────────────────────────────

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "runner"
	cfg.Auth.Password = "secret"
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "sleepgrind-test" || opts.Username != "runner" || opts.Password != "secret" {
		t.Errorf("identity = %q %q %q", opts.ClientID, opts.Username, opts.Password)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS not configured")
	}
	if !opts.CleanSession || !opts.AutoReconnect {
		t.Error("clean session and auto reconnect should be enabled")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, NewTopics("lab"), "runner-1")

	if !opts.WillEnabled || opts.WillTopic != "lab/system/status" || !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will = %v %q %v %d", opts.WillEnabled, opts.WillTopic, opts.WillRetained, opts.WillQos)
	}
	var p statusPayload
	if err := json.Unmarshal(opts.WillPayload, &p); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if p.Status != "offline" || p.ClientID != "runner-1" || p.Reason != "unexpected_disconnect" {
		t.Errorf("will payload = %+v", p)
	}
}

// ─── Topics ────────────────────────────────────────────────────────

func TestTopics(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"status", NewTopics("lab").SystemStatus(), "lab/system/status"},
		{"state", NewTopics("lab").RunState(), "lab/run/state"},
		{"step", NewTopics("lab").RunStep(), "lab/run/step"},
		{"finished", NewTopics("lab").RunFinished(), "lab/run/finished"},
		{"stop", NewTopics("lab").CommandStop(), "lab/command/stop"},
		{"default prefix", NewTopics("").RunStep(), "sleepgrind/run/step"},
		{"zero value", Topics{}.RunStep(), "sleepgrind/run/step"},
		{"trimmed slashes", NewTopics("/site/a/").RunStep(), "site/a/run/step"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
