package broadcast

import (
	"encoding/json"
	"time"

	"github.com/bellapacxx/bingo-live/events"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// publisher is the slice of *nats.Conn the sink uses.
type publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSSink mirrors room-wide events to <subject>.<type>. Targeted events
// stay inside the process.
type NATSSink struct {
	nc      publisher
	subject string
	log     *zap.SugaredLogger
}

func ConnectNATS(url, subject string, log *zap.SugaredLogger) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("bingo-live"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(5),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("[NATS] disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("[NATS] reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	log.Infof("[NATS] connected to %s, mirroring to %s.*", nc.ConnectedUrl(), subject)
	return &NATSSink{nc: nc, subject: subject, log: log}, nil
}

func (s *NATSSink) Publish(ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Errorf("[NATS] encode %s: %v", ev.Type, err)
		return
	}
	if err := s.nc.Publish(s.subject+"."+string(ev.Type), data); err != nil {
		s.log.Warnf("[NATS] publish %s: %v", ev.Type, err)
	}
}

// Close flushes pending messages before disconnecting.
func (s *NATSSink) Close() error {
	return s.nc.Drain()
}
