// Package publisher implements the Publisher of spec.md §4.7: it projects
// Pipeline output onto an MQTT topic hierarchy rooted at a configurable
// prefix, with retained/non-retained discipline and a lifecycle contract
// for auto-discovered entities.
//
// Grounded on the teacher's packages/engine/output.OutputSink interface for
// the shape of a pluggable publish boundary, and on the MQTT-domain pattern
// surfaced by the retrieval pack's trunk-recorder/tr-engine example for how
// an ingest pipeline's typed events become topic publishes.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/heytcass/f12mqtt/model"
	"github.com/heytcass/f12mqtt/telemetry/logging"
	"github.com/heytcass/f12mqtt/telemetry/metrics"
)

// Bus is the narrow MQTT surface the Publisher needs; satisfied by
// mqtt.Client and fakeable in tests.
type Bus interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	IsConnected() bool
}

// Client adapts a real paho mqtt.Client to Bus.
type Client struct{ Inner mqtt.Client }

func (c Client) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	return c.Inner.Publish(topic, qos, retained, payload)
}
func (c Client) IsConnected() bool { return c.Inner.IsConnected() }

// NewMQTTClientOptions returns paho ClientOptions wired with the last-will
// P/status=offline contract of spec.md §4.7 and a 2-second reconnect
// backoff matching the upstream feed's client-side policy (spec.md §5).
func NewMQTTClientOptions(brokerURL, topicPrefix, clientID string) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(2 * time.Second)
	opts.SetWill(topicPrefix+"/status", "offline", 1, true)
	return opts
}

// flagAppearance is one row of spec.md §4.7's flag appearance table.
type flagAppearance struct {
	BGColor  string
	Text     string
	Effect   string
	DarkText bool
}

var flagAppearances = map[model.Flag]flagAppearance{
	model.FlagGreen:     {BGColor: "00FF00", Text: "GREEN"},
	model.FlagYellow:    {BGColor: "FFFF00", Text: "YELLOW", DarkText: true},
	model.FlagRed:       {BGColor: "FF0000", Text: "RED FLAG", Effect: "Pulse"},
	model.FlagSC:        {BGColor: "FFA500", Text: "SAFETY CAR", Effect: "Pulse"},
	model.FlagVSC:       {BGColor: "FFA500", Text: "VSC"},
	model.FlagVSCEnding: {BGColor: "00FF00", Text: "VSC END"},
	model.FlagChequered: {BGColor: "FFFFFF", Text: "CHEQUERED", DarkText: true},
}

// Config configures a Publisher.
type Config struct {
	TopicPrefix      string
	FavouriteDrivers []string
	NotifierEnabled  bool
}

// Publisher projects Pipeline output onto the bus. Not safe for concurrent
// PublishState/PublishEvents calls from multiple Pipelines at once (only one
// Pipeline drives a given session at a time per spec.md §5), but
// register/deregister's ephemeral-topic set is guarded by a mutex since it
// may be read by a concurrent deregister from a shutdown path.
type Publisher struct {
	bus    Bus
	prefix string
	cfg    Config
	log    logging.Logger

	mu               sync.Mutex
	sessionActive    bool
	ephemeralTopics  []string

	publishSuccess metrics.Counter
}

// New returns a Publisher writing to bus under cfg's topic prefix.
func New(bus Bus, cfg Config, log logging.Logger, provider metrics.Provider) *Publisher {
	if provider == nil {
		provider = metrics.NewNoopProvider()
	}
	return &Publisher{
		bus:    bus,
		prefix: cfg.TopicPrefix,
		cfg:    cfg,
		log:    log,
		publishSuccess: provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
			Namespace: "f12mqtt", Subsystem: "publisher", Name: "publish_total", Help: "publish attempts by outcome", Labels: []string{"outcome"},
		}}),
	}
}

// UpdateConfig replaces the favourite-driver list and notifier-enabled flag
// live, per SPEC_FULL.md §0.5's hot-reload contract — everything else in
// Config (TopicPrefix) is fixed at construction. Safe to call concurrently
// with PublishState/PublishEvents.
func (p *Publisher) UpdateConfig(favouriteDrivers []string, notifierEnabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.FavouriteDrivers = favouriteDrivers
	p.cfg.NotifierEnabled = notifierEnabled
}

func (p *Publisher) favouriteDrivers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.FavouriteDrivers
}

func (p *Publisher) notifierEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.NotifierEnabled
}

func (p *Publisher) topic(parts ...string) string {
	out := p.prefix
	for _, part := range parts {
		out += "/" + part
	}
	return out
}

// publish writes payload as JSON to topic, discipline per spec.md §7:
// "Publisher disconnected: publishes become no-ops with a warning; no
// queuing, no retry at this layer."
func (p *Publisher) publish(topic string, retained bool, payload any) {
	if !p.bus.IsConnected() {
		p.warn("publisher: not connected, dropping publish", topic)
		p.publishSuccess.Inc(1, "dropped")
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.warn("publisher: marshal failed", topic)
		p.publishSuccess.Inc(1, "error")
		return
	}
	token := p.bus.Publish(topic, 0, retained, data)
	token.Wait()
	if err := token.Error(); err != nil {
		p.warn("publisher: publish failed: "+err.Error(), topic)
		p.publishSuccess.Inc(1, "error")
		return
	}
	p.publishSuccess.Inc(1, "ok")
}

func (p *Publisher) warn(msg, topic string) {
	if p.log != nil {
		p.log.WarnCtx(context.Background(), msg, "topic", topic)
	}
}

// publishClear publishes an empty retained payload, the platform's signal
// to remove a previously-published discovery entity.
func (p *Publisher) publishClear(topic string) {
	if !p.bus.IsConnected() {
		return
	}
	token := p.bus.Publish(topic, 0, true, []byte{})
	token.Wait()
}

// SetStatus publishes the bridge's own online/offline status (the will
// message covers the abnormal-disconnect case; this covers clean startup).
func (p *Publisher) SetStatus(online bool) {
	status := "offline"
	if online {
		status = "online"
	}
	p.publish(p.topic("status"), true, status)
}

// RegisterPersistentEntities publishes discovery configs for the
// season-long entities (standings, next race) once at startup.
func (p *Publisher) RegisterPersistentEntities() {
	for _, key := range []string{"last_winner", "drivers_leader", "constructors_leader"} {
		p.publishDiscovery(p.topic("standings", key))
	}
	p.publishDiscovery(p.topic("schedule", "next_race"))
}

// RegisterSessionEntities publishes discovery configs for the base session
// entities plus three per favourite driver plus the playback-status entity,
// remembers their topic names, and marks the session active — after this
// call, PublishState stops short-circuiting.
func (p *Publisher) RegisterSessionEntities() {
	p.mu.Lock()
	defer p.mu.Unlock()

	var topics []string
	base := []string{"flag", "leader", "lap", "weather", "race_control"}
	for _, key := range base {
		t := p.topic("session", key)
		p.publishDiscovery(t)
		topics = append(topics, t)
	}
	for _, driver := range p.cfg.FavouriteDrivers {
		for _, field := range []string{"position", "gap", "tyre"} {
			t := p.topic("driver", driver, field)
			p.publishDiscovery(t)
			topics = append(topics, t)
		}
	}
	playbackTopic := p.topic("playback", "state")
	p.publishDiscovery(playbackTopic)
	topics = append(topics, playbackTopic)

	p.ephemeralTopics = topics
	p.sessionActive = true
	p.publish(p.topic("session", "status"), true, "active")
}

// DeregisterSessionEntities clears each remembered discovery topic with an
// empty retained payload, marks the session finished, and disables state
// publication.
func (p *Publisher) DeregisterSessionEntities() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, t := range p.ephemeralTopics {
		p.publishClear(t)
	}
	p.ephemeralTopics = nil
	p.sessionActive = false
	p.publish(p.topic("session", "status"), true, "finished")
}

func (p *Publisher) publishDiscovery(topic string) {
	p.publish(topic+"/config", true, map[string]any{"topic": topic})
}

func (p *Publisher) isActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionActive
}

// PublishState implements spec.md §4.7's publishState: flag, lap, weather,
// sessionInfo, race control, leader, and per-favourite-driver state.
func (p *Publisher) PublishState(s model.Snapshot) {
	if !p.isActive() {
		return
	}

	p.publish(p.topic("session", "flag"), true, s.TrackStatus)

	if s.LapCount.Total > 0 {
		p.publish(p.topic("session", "lap"), true, s.LapCount)
	}
	if s.Weather != nil {
		p.publish(p.topic("session", "weather"), true, s.Weather)
	}
	if s.SessionInfo != nil {
		p.publish(p.topic("session", "info"), true, s.SessionInfo)
	}
	if s.LatestRaceControlMessage != nil {
		p.publish(p.topic("session", "race_control"), true, s.LatestRaceControlMessage)
	}

	if leaderNum, leader, ok := findLeader(s); ok {
		p.publish(p.topic("session", "leader"), true, map[string]any{
			"driverNumber": leaderNum,
			"abbreviation": leader.Abbreviation,
			"teamColor":    leader.TeamColor,
			"gap":          "LEADER",
		})
	}

	for _, driverNum := range p.favouriteDrivers() {
		p.publishDriverState(s, driverNum)
	}

	if p.notifierEnabled() {
		p.publishNotifierState(s)
	}
}

func findLeader(s model.Snapshot) (string, model.Driver, bool) {
	for num, t := range s.Timing {
		if t.Position == 1 {
			return num, s.Drivers[num], true
		}
	}
	return "", model.Driver{}, false
}

func (p *Publisher) publishDriverState(s model.Snapshot, driverNum string) {
	timing, hasTiming := s.Timing[driverNum]
	stint := s.Stints[driverNum]

	if hasTiming {
		p.publish(p.topic("driver", driverNum, "position"), true, timing.Position)
		gap := timing.GapToLeader
		if timing.Position == 1 {
			gap = "LEADER"
		}
		p.publish(p.topic("driver", driverNum, "gap"), true, gap)
	}
	p.publish(p.topic("driver", driverNum, "tyre"), true, stint)
	p.publish(p.topic("driver", driverNum, "status"), true, driverStatus(timing))
}

func driverStatus(t model.Timing) model.DriverStatus {
	switch {
	case t.Retired:
		return model.DriverRetired
	case t.InPit:
		return model.DriverInPit
	default:
		return model.DriverRacing
	}
}

// notifierFlagPayload is the compact per-app payload for the notifier's
// flag app, per SPEC_FULL.md §2's favourite-driver notifier supplement.
type notifierFlagPayload struct {
	Color    string `json:"color"`
	Text     string `json:"text"`
	Effect   string `json:"effect,omitempty"`
	DarkText bool   `json:"darkText"`
}

func (p *Publisher) publishNotifierState(s model.Snapshot) {
	if fa, ok := flagAppearances[s.TrackStatus.Flag]; ok {
		p.publish(p.topic("notifier", "flag"), true, notifierFlagPayload{Color: fa.BGColor, Text: fa.Text, Effect: fa.Effect, DarkText: fa.DarkText})
	}
	if s.LapCount.Total > 0 {
		p.publish(p.topic("notifier", "lap"), true, s.LapCount)
	}
	for i, driverNum := range p.favouriteDrivers() {
		if i >= 3 {
			break
		}
		timing := s.Timing[driverNum]
		driver := s.Drivers[driverNum]
		p.publish(p.topic("notifier", "driver"+strconv.Itoa(i+1)), true, map[string]any{
			"abbreviation": driver.Abbreviation,
			"position":     timing.Position,
			"teamColor":    driver.TeamColor,
		})
	}
	if len(s.TopThree) > 0 {
		p.publish(p.topic("notifier", "top3"), true, s.TopThree)
	}
}

// PublishEvents implements spec.md §4.7's publishEvents: each event is
// published unretained to its event topic. When the notifier is enabled,
// flag changes, overtakes and pit stops also get a notifier payload;
// weather changes get none.
func (p *Publisher) PublishEvents(events []model.Event) {
	if !p.isActive() {
		return
	}
	for _, ev := range events {
		p.publishOneEvent(ev)
	}
}

func (p *Publisher) publishOneEvent(ev model.Event) {
	switch ev.Kind {
	case model.EventFlagChange:
		p.publish(p.topic("event", "flag"), false, ev.FlagChange)
		if p.notifierEnabled() {
			if fa, ok := flagAppearances[ev.FlagChange.NewFlag]; ok {
				p.publish(p.topic("notifier", "flag"), true, notifierFlagPayload{Color: fa.BGColor, Text: fa.Text, Effect: fa.Effect, DarkText: fa.DarkText})
			}
		}
	case model.EventOvertake:
		p.publish(p.topic("event", "overtake"), false, ev.Overtake)
		if p.notifierEnabled() {
			p.publish(p.topic("notifier", "overtake"), false, map[string]any{
				"text": fmt.Sprintf("%s OVERTAKES %s", ev.Overtake.OvertakingAbbreviation, ev.Overtake.OvertakenAbbreviation),
			})
		}
	case model.EventPitStop:
		p.publish(p.topic("event", "pit_stop"), false, ev.PitStop)
		if p.notifierEnabled() {
			p.publish(p.topic("notifier", "pit_stop"), false, map[string]any{
				"text": fmt.Sprintf("%s PIT: %s", ev.PitStop.Abbreviation, ev.PitStop.NewCompound),
			})
		}
	case model.EventWeatherChange:
		p.publish(p.topic("event", "weather"), false, ev.WeatherChange)
	}
}

// PublishPlaybackState publishes the playback controller's current status
// string to P/playback/state.
func (p *Publisher) PublishPlaybackState(status string) {
	p.publish(p.topic("playback", "state"), true, status)
}
