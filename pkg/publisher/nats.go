package publisher

import (
	"encoding/json"
	"time"

	"github.com/lintang-b-s/transitx/pkg/datastructure"
	"github.com/lintang-b-s/transitx/pkg/util"
	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	URL                string
	AvlSubject         string
	PredictionsSubject string
	ArrivalsSubject    string
	EventsSubject      string
	ReconnectWait      time.Duration
	MaxReconnects      int
}

func NewConfig() Config {
	viper.SetDefault("NATS_URL", nats.DefaultURL)
	viper.SetDefault("NATS_AVL_SUBJECT", "transitx.avl")
	viper.SetDefault("NATS_PREDICTIONS_SUBJECT", "transitx.predictions")
	viper.SetDefault("NATS_ARRIVALS_SUBJECT", "transitx.arrivals")
	viper.SetDefault("NATS_EVENTS_SUBJECT", "transitx.events")
	viper.SetDefault("NATS_RECONNECT_WAIT", 2*time.Second)
	viper.SetDefault("NATS_MAX_RECONNECTS", -1)

	return Config{
		URL:                viper.GetString("NATS_URL"),
		AvlSubject:         viper.GetString("NATS_AVL_SUBJECT"),
		PredictionsSubject: viper.GetString("NATS_PREDICTIONS_SUBJECT"),
		ArrivalsSubject:    viper.GetString("NATS_ARRIVALS_SUBJECT"),
		EventsSubject:      viper.GetString("NATS_EVENTS_SUBJECT"),
		ReconnectWait:      viper.GetDuration("NATS_RECONNECT_WAIT"),
		MaxReconnects:      viper.GetInt("NATS_MAX_RECONNECTS"),
	}
}

// Publisher bridges the pipeline to NATS: derived records go out on their
// subjects, AVL reports come in on the feed subject. It implements
// tracker.Output.
type Publisher struct {
	log  *zap.Logger
	cfg  Config
	conn *nats.Conn
}

func New(log *zap.Logger, cfg Config) (*Publisher, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("transitx-tracker"),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, util.WrapErrorf(err, util.ErrInternalServerError,
			"publisher.New: connect %s", cfg.URL)
	}
	return &Publisher{log: log, cfg: cfg, conn: conn}, nil
}

func (p *Publisher) publish(subject string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.log.Error("marshal for publish", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		p.log.Error("nats publish", zap.String("subject", subject), zap.Error(err))
	}
}

func (p *Publisher) PublishPredictions(predictions []datastructure.Prediction) {
	p.publish(p.cfg.PredictionsSubject, predictions)
}

func (p *Publisher) PublishArrivalDepartures(records []datastructure.ArrivalDeparture) {
	p.publish(p.cfg.ArrivalsSubject, records)
}

func (p *Publisher) PublishEvent(event datastructure.VehicleEvent) {
	p.publish(p.cfg.EventsSubject, event)
}

// SubscribeAvl delivers decoded AVL reports from the feed subject. Bad
// payloads are logged and dropped, never propagated.
func (p *Publisher) SubscribeAvl(handler func(datastructure.AvlReport)) (*nats.Subscription, error) {
	sub, err := p.conn.Subscribe(p.cfg.AvlSubject, func(msg *nats.Msg) {
		var report datastructure.AvlReport
		if err := json.Unmarshal(msg.Data, &report); err != nil {
			p.log.Warn("dropping undecodable avl payload",
				zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		handler(report)
	})
	if err != nil {
		return nil, util.WrapErrorf(err, util.ErrInternalServerError,
			"publisher.SubscribeAvl: %s", p.cfg.AvlSubject)
	}
	return sub, nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.log.Warn("nats drain", zap.Error(err))
	}
}
