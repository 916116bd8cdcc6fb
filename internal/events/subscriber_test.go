package events

import (
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/mclink/internal/services/membership"
	"github.com/mcoot/mclink/internal/testutil"
)

const subject = "mclink.membership"

type recordingDispatcher struct {
	events chan membership.Event
}

func (d *recordingDispatcher) Dispatch(event membership.Event) {
	d.events <- event
}

type SubscriberSuite struct {
	suite.Suite
	server     *natsserver.Server
	publisher  *nats.Conn
	dispatcher *recordingDispatcher
	subscriber *Subscriber
}

func TestSubscriberSuite(t *testing.T) {
	suite.Run(t, new(SubscriberSuite))
}

func (s *SubscriberSuite) SetupTest() {
	ns, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	s.Require().NoError(err)
	go ns.Start()
	s.Require().True(ns.ReadyForConnections(5 * time.Second))
	s.server = ns

	s.dispatcher = &recordingDispatcher{events: make(chan membership.Event, 10)}
	s.subscriber, err = Subscribe(ns.ClientURL(), subject, s.dispatcher, testutil.NopLogger())
	s.Require().NoError(err)

	s.publisher, err = nats.Connect(ns.ClientURL())
	s.Require().NoError(err)
}

func (s *SubscriberSuite) TearDownTest() {
	s.publisher.Close()
	_ = s.subscriber.Close()
	s.server.Shutdown()
}

func (s *SubscriberSuite) publish(data []byte) {
	s.Require().NoError(s.publisher.Publish(subject, data))
	s.Require().NoError(s.publisher.Flush())
}

func (s *SubscriberSuite) next() membership.Event {
	select {
	case e := <-s.dispatcher.events:
		return e
	case <-time.After(5 * time.Second):
		s.FailNow("no event delivered")
		return membership.Event{}
	}
}

func (s *SubscriberSuite) TestDeliversEvents() {
	data, err := json.Marshal(membership.Event{Type: membership.EventMemberLeave, GuildID: "g1", ChatUserID: "c1"})
	s.Require().NoError(err)
	s.publish(data)

	e := s.next()
	s.Equal(membership.EventMemberLeave, e.Type)
	s.Equal("g1", string(e.GuildID))
	s.Equal("c1", e.ChatUserID)
}

func (s *SubscriberSuite) TestDropsBadEvents() {
	s.publish([]byte("not json"))
	s.publish([]byte(`{"type":"member_ban","guildId":"g1","userId":"c1"}`))
	s.publish([]byte(`{"type":"member_join","guildId":"g1","userId":"c2"}`))

	// Messages on one subscription arrive in order, so only the valid one is seen
	e := s.next()
	s.Equal(membership.EventMemberJoin, e.Type)
	s.Equal("c2", e.ChatUserID)
	s.Empty(s.dispatcher.events)
}

func (s *SubscriberSuite) TestSubscribeFailsWithoutServer() {
	_, err := Subscribe("nats://127.0.0.1:1", subject, s.dispatcher, testutil.NopLogger())
	s.Error(err)
}
