package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/cyrilix/robocar-lfsd/pkg/gateway"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/protobuf/proto"
	"go.uber.org/zap"
)

// Topics lists the mqtt topics to publish to, an empty topic is not published.
type Topics struct {
	Frame    string
	Steering string
	Throttle string
	Snapshot string
}

func NewMsgPublisher(srcEvents gateway.SimulatorSource, p Publisher, topics Topics) *MsgPublisher {
	return &MsgPublisher{
		p:         p,
		topics:    topics,
		srcEvents: srcEvents,
		muCancel:  sync.Mutex{},
		cancel:    nil,
	}
}

type MsgPublisher struct {
	p      Publisher
	topics Topics

	srcEvents gateway.SimulatorSource

	muCancel sync.Mutex
	cancel   chan interface{}
}

func (m *MsgPublisher) Start() {
	m.muCancel.Lock()
	defer m.muCancel.Unlock()

	m.cancel = make(chan interface{})

	if m.topics.Throttle != "" {
		go m.listenThrottle(m.cancel)
	}
	if m.topics.Steering != "" {
		go m.listenSteering(m.cancel)
	}
	if m.topics.Frame != "" {
		go m.listenFrame(m.cancel)
	}
	if m.topics.Snapshot != "" {
		go m.listenSnapshot(m.cancel)
	}
}

func (m *MsgPublisher) Stop() {
	m.muCancel.Lock()
	defer m.muCancel.Unlock()
	if m.cancel == nil {
		return
	}
	close(m.cancel)
	m.cancel = nil
}

func (m *MsgPublisher) listenThrottle(cancel <-chan interface{}) {
	logr := zap.S().With("msg_type", "throttleChan")
	msgChan := m.srcEvents.SubscribeThrottle()
	for {
		select {
		case <-cancel:
			logr.Debug("exit listen throttleChan loop")
			return
		case msg, ok := <-msgChan:
			if !ok {
				return
			}
			m.publish(logr, m.topics.Throttle, msg)
		}
	}
}

func (m *MsgPublisher) listenSteering(cancel <-chan interface{}) {
	logr := zap.S().With("msg_type", "steeringChan")
	msgChan := m.srcEvents.SubscribeSteering()
	for {
		select {
		case <-cancel:
			logr.Debug("exit listen steeringChan loop")
			return
		case msg, ok := <-msgChan:
			if !ok {
				return
			}
			m.publish(logr, m.topics.Steering, msg)
		}
	}
}

func (m *MsgPublisher) listenFrame(cancel <-chan interface{}) {
	logr := zap.S().With("msg_type", "frame")
	msgChan := m.srcEvents.SubscribeFrame()
	for {
		select {
		case <-cancel:
			logr.Debug("exit listen frame loop")
			return
		case msg, ok := <-msgChan:
			if !ok {
				return
			}
			logr.Debugf("new frame %v", msg.Id)
			m.publish(logr, m.topics.Frame, msg)
		}
	}
}

func (m *MsgPublisher) listenSnapshot(cancel <-chan interface{}) {
	logr := zap.S().With("msg_type", "snapshot")
	msgChan := m.srcEvents.SubscribeSnapshot()
	for {
		select {
		case <-cancel:
			logr.Debug("exit listen snapshot loop")
			return
		case snapshot, ok := <-msgChan:
			if !ok {
				return
			}
			msg, err := SnapshotMessage(snapshot)
			if err != nil {
				logr.Errorf("unable to convert snapshot: %v", err)
				continue
			}
			m.publish(logr, m.topics.Snapshot, msg)
		}
	}
}

func (m *MsgPublisher) publish(logr *zap.SugaredLogger, topic string, msg proto.Message) {
	payload, err := proto.Marshal(msg)
	if err != nil {
		logr.Errorf("unable to marshal protobuf message: %v", err)
		return
	}
	if err = m.p.Publish(topic, payload); err != nil {
		logr.Errorf("unable to publish events message: %v", err)
	}
}

type Publisher interface {
	Publish(topic string, payload []byte) error
}

func NewMqttPublisher(client mqtt.Client, qos byte, retain bool) *MqttPublisher {
	return &MqttPublisher{client: client, qos: qos, retain: retain}
}

type MqttPublisher struct {
	client mqtt.Client
	qos    byte
	retain bool
}

func (m *MqttPublisher) Publish(topic string, payload []byte) error {
	token := m.client.Publish(topic, m.qos, m.retain, payload)
	token.WaitTimeout(10 * time.Millisecond)
	if err := token.Error(); err != nil {
		return fmt.Errorf("unable to events to topic: %v", err)
	}
	return nil
}
