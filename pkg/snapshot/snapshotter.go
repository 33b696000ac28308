package snapshot

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"sort"

	"github.com/zeroshot-dev/zeroshot/pkg/bus"
	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
)

const sender = "state-snapshotter"

// Bus is the subset of MessageBus a Snapshotter depends on.
type Bus interface {
	Query(ledger.QueryFilter) ([]ledger.Message, error)
	FindLast(clusterID, topic, sender string) (*ledger.Message, error)
	SubscribeTopics(topics []string, fn bus.Subscriber) bus.Unsubscribe
	Publish(ledger.Message) (ledger.Message, error)
}

// Snapshotter folds state-affecting topics into a compact State and
// republishes STATE_SNAPSHOT whenever the content changes (spec §4.5).
type Snapshotter struct {
	bus       Bus
	clusterID string

	state    *State
	lastHash [32]byte
	unsub    func()
}

// New creates a Snapshotter bound to bus for clusterID. Call Start to
// bootstrap and begin live folding.
func New(bus Bus, clusterID string) *Snapshotter {
	return &Snapshotter{bus: bus, clusterID: clusterID}
}

// Start bootstraps state — loading an existing STATE_SNAPSHOT if one exists,
// otherwise replaying the most recent message per subscribed topic in
// timestamp order — publishes the resulting snapshot if there was history
// to replay, then
// subscribes for live updates (spec §4.5, testable property 8).
func (s *Snapshotter) Start() error {
	if err := s.bootstrap(); err != nil {
		return err
	}
	s.unsub = s.bus.SubscribeTopics(SubscribedTopics, s.onMessage)
	return nil
}

// Stop unsubscribes from the bus. Safe to call multiple times or before Start.
func (s *Snapshotter) Stop() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}

// State returns the current snapshot state. Never nil after Start.
func (s *Snapshotter) State() *State {
	return s.state
}

func (s *Snapshotter) bootstrap() error {
	last, err := s.bus.FindLast(s.clusterID, ledger.TopicStateSnapshot, sender)
	if err != nil {
		return err
	}
	if last != nil {
		st, hash, ok := decodeState(last.Content.Data)
		if ok {
			s.state = st
			s.lastHash = hash
			return nil
		}
	}

	return s.bootstrapFromHistory()
}

// bootstrapFromHistory replays the most recent message of each subscribed
// topic, applied in timestamp order, and publishes the resulting snapshot
// (spec §4.5 bootstrap, testable property 8). With no such message in the
// ledger it publishes nothing.
func (s *Snapshotter) bootstrapFromHistory() error {
	type topicMsg struct {
		topic string
		msg   ledger.Message
	}

	var latest []topicMsg
	for _, topic := range SubscribedTopics {
		msg, err := s.bus.FindLast(s.clusterID, topic, "")
		if err != nil {
			return err
		}
		if msg != nil {
			latest = append(latest, topicMsg{topic: topic, msg: *msg})
		}
	}

	sort.SliceStable(latest, func(i, j int) bool {
		return latest[i].msg.Timestamp < latest[j].msg.Timestamp
	})

	state := &State{Version: schemaVersion}
	for _, tm := range latest {
		state = Fold(state, tm.msg)
	}
	s.state = state
	s.lastHash = [32]byte{}
	if len(latest) == 0 {
		return nil
	}

	return s.publishIfChanged()
}

// onMessage folds msg into state and republishes only when content changed
// (spec §4.5, testable property 7: snapshot idempotence).
func (s *Snapshotter) onMessage(msg ledger.Message) {
	if msg.ClusterID != s.clusterID {
		return
	}
	if s.state == nil {
		s.state = &State{Version: schemaVersion}
	}
	s.state = Fold(s.state, msg)
	_ = s.publishIfChanged()
}

func (s *Snapshotter) publishIfChanged() error {
	data, err := stateToData(s.state)
	if err != nil {
		return err
	}
	hash := hashData(data)

	if subtle.ConstantTimeCompare(hash[:], s.lastHash[:]) == 1 {
		return nil
	}
	s.lastHash = hash

	_, err = s.bus.Publish(ledger.Message{
		ClusterID: s.clusterID,
		Topic:     ledger.TopicStateSnapshot,
		Sender:    sender,
		Content: ledger.Content{
			Text: Summary(s.state),
			Data: data,
		},
	})
	return err
}

func stateToData(state *State) (map[string]any, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func hashData(data map[string]any) [32]byte {
	raw, err := json.Marshal(data)
	if err != nil {
		return sha256.Sum256(nil)
	}
	return sha256.Sum256(raw)
}

// decodeState rebuilds a State from a previously published STATE_SNAPSHOT's
// content.data, along with the hash it corresponds to.
func decodeState(data map[string]any) (*State, [32]byte, bool) {
	if data == nil {
		return nil, [32]byte{}, false
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, [32]byte{}, false
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, [32]byte{}, false
	}
	return &state, hashData(data), true
}
