package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	mqttv2 "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/nergy-se/heatharmony/pkg/api/v1/config"
	"github.com/nergy-se/heatharmony/pkg/changelog"
	"github.com/sirupsen/logrus"
)

const heishaSubscriptionID = 1

// Broker is an embedded MQTT broker. HeishaMon publishes its readings to it
// and audit changes are published from it.
type Broker struct {
	config config.MQTT
	server *mqttv2.Server
}

func New(c config.MQTT) *Broker {
	server := mqttv2.New(&mqttv2.Options{
		InlineClient: true,
	})
	return &Broker{
		config: c,
		server: server,
	}
}

func (b *Broker) Start(ctx context.Context, wg *sync.WaitGroup) error {
	// Allow all connections.
	_ = b.server.AddHook(new(auth.AllowHook), nil)

	if b.config.Address != "" {
		tcp := listeners.NewTCP(listeners.Config{ID: "t1", Address: b.config.Address})
		err := b.server.AddListener(tcp)
		if err != nil {
			return err
		}
	}

	err := b.server.Serve()
	if err != nil {
		return err
	}
	logrus.WithField("address", b.config.Address).Info("mqtt: broker started")

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		b.server.Close()
	}()
	return nil
}

// SubscribeHeisha calls fn with the topic below HeishaPrefix and the payload of
// every message HeishaMon publishes.
func (b *Broker) SubscribeHeisha(fn func(topic, value string)) error {
	prefix := strings.TrimSuffix(b.config.HeishaPrefix, "/") + "/"
	return b.server.Subscribe(prefix+"#", heishaSubscriptionID, func(cl *mqttv2.Client, sub packets.Subscription, pk packets.Packet) {
		fn(strings.TrimPrefix(pk.TopicName, prefix), string(pk.Payload))
	})
}

// PublishChange publishes c as json to ChangesTopic.
func (b *Broker) PublishChange(c changelog.Change) {
	payload, err := json.Marshal(NewChangeMessage(c))
	if err != nil {
		logrus.Errorf("mqtt: marshal change: %s", err)
		return
	}
	err = b.server.Publish(b.config.ChangesTopic, payload, false, 0)
	if err != nil {
		logrus.Errorf("mqtt: publish change: %s", err)
	}
}
