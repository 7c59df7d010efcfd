// Package status reports console health. Typed commands receive a CBOR
// Report; the text command "status" receives a one-line summary.
package status

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/danmuck/tcpconsole/console"
)

const Name = "status"

// Report is the typed status response.
type Report struct {
	Status         string   `cbor:"1,keyasint" json:"status"`
	Node           string   `cbor:"2,keyasint" json:"node"`
	UptimeSeconds  int64    `cbor:"3,keyasint" json:"uptime_seconds"`
	ActiveSessions int64    `cbor:"4,keyasint" json:"active_sessions"`
	Services       []string `cbor:"5,keyasint,omitempty" json:"services,omitempty"`
}

type SessionCounter interface {
	ActiveSessions() int64
}

type ServiceLister interface {
	Services() []console.ServiceInfo
}

type sources struct {
	sessions SessionCounter
	services ServiceLister
}

type Service struct {
	node    string
	started time.Time
	now     func() time.Time
	src     atomic.Pointer[sources]
}

func New(node string) *Service {
	return &Service{node: node, started: time.Now(), now: time.Now}
}

func (*Service) Name() string {
	return Name
}

// Attach wires the running console in. Either argument may be nil. Until
// Attach is called reports carry zero sessions and no services.
func (s *Service) Attach(sessions SessionCounter, services ServiceLister) {
	s.src.Store(&sources{sessions: sessions, services: services})
}

func (s *Service) Snapshot() Report {
	r := Report{
		Status:        "ok",
		Node:          s.node,
		UptimeSeconds: int64(s.now().Sub(s.started) / time.Second),
	}
	src := s.src.Load()
	if src == nil {
		return r
	}
	if src.sessions != nil {
		r.ActiveSessions = src.sessions.ActiveSessions()
	}
	if src.services != nil {
		for _, info := range src.services.Services() {
			r.Services = append(r.Services, info.Name)
		}
	}
	return r
}

func (s *Service) HandleTyped(context.Context, []byte) ([]byte, error) {
	return console.MarshalPayload(s.Snapshot())
}

func (s *Service) HandleText(_ context.Context, text []byte) ([]byte, bool, error) {
	if strings.TrimSpace(string(text)) != Name {
		return nil, false, nil
	}
	r := s.Snapshot()
	line := fmt.Sprintf("%s node=%s uptime=%s sessions=%d services=%s",
		r.Status, r.Node, time.Duration(r.UptimeSeconds)*time.Second, r.ActiveSessions, strings.Join(r.Services, ","))
	return []byte(line), true, nil
}
