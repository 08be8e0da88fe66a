package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"pedsim.ai/internal/observerproto"
	"pedsim.ai/internal/sim/cluster"
	"pedsim.ai/internal/sim/scene"
	"pedsim.ai/internal/sim/waypoint"
)

const clientBuffer = 256

// Server streams scene and cluster changes to loopback observers. It keeps
// its own copy of cluster state so HTTP handlers never touch the clusters,
// which belong to the spawning goroutine.
type Server struct {
	hub *Hub
	log *slog.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	seq      atomic.Uint64

	mu       sync.Mutex
	scenario string
	seed     int64
	agents   int
	clusters map[int]observerproto.ClusterState
}

func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub: NewHub(),
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only
		},
		clusters: map[int]observerproto.ClusterState{},
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Attach replaces the observed state with a new scene and cluster set and
// subscribes to their changes. It must be called from the goroutine that
// owns the clusters; detach must be called from that goroutine too.
func (s *Server) Attach(name string, seed int64, sc *scene.Scene, clusters []*cluster.AgentCluster) (detach func()) {
	s.mu.Lock()
	s.scenario = name
	s.seed = seed
	s.agents = 0
	if sc != nil {
		s.agents = sc.Len()
	}
	s.clusters = make(map[int]observerproto.ClusterState, len(clusters))
	for _, c := range clusters {
		s.clusters[c.ID()] = clusterState(c)
	}
	s.mu.Unlock()

	var unsubs []func()
	for _, c := range clusters {
		unsubs = append(unsubs, c.Subscribe(s.onClusterEvent))
	}
	if sc != nil {
		unsubs = append(unsubs, sc.Subscribe(s.onSceneEvent))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Replace is Attach followed by a SCENE_REPLACED event carrying the new
// agent count.
func (s *Server) Replace(name string, seed int64, sc *scene.Scene, clusters []*cluster.AgentCluster) (detach func()) {
	detach = s.Attach(name, seed, sc, clusters)
	msg := s.event()
	msg.Kind = observerproto.KindSceneReplaced
	s.mu.Lock()
	msg.AgentCount = s.agents
	s.mu.Unlock()
	s.publish(msg)
	return detach
}

func clusterState(c *cluster.AgentCluster) observerproto.ClusterState {
	p, d := c.Position(), c.Distribution()
	return observerproto.ClusterState{
		ID:           c.ID(),
		Pos:          [2]float64{p.X, p.Y},
		Count:        c.Count(),
		Type:         c.Type().String(),
		Distribution: [2]float64{d.Width, d.Height},
		Waypoints:    waypoint.IDs(c.Waypoints()),
	}
}

func (s *Server) onClusterEvent(e cluster.Event) {
	msg := s.event()
	msg.ClusterID = e.ClusterID

	s.mu.Lock()
	st := s.clusters[e.ClusterID]
	switch e.Kind {
	case cluster.PositionChanged:
		st.Pos = [2]float64{e.X, e.Y}
		msg.Kind = observerproto.KindClusterMoved
		msg.Pos = &st.Pos
	case cluster.TypeChanged:
		st.Type = e.Type.String()
		msg.Kind = observerproto.KindClusterRetyped
		msg.AgentType = st.Type
	}
	s.clusters[e.ClusterID] = st
	msg.AgentCount = s.agents
	s.mu.Unlock()

	s.publish(msg)
}

func (s *Server) onSceneEvent(e scene.Event) {
	msg := s.event()
	switch e.Kind {
	case scene.AgentAdded:
		msg.Kind = observerproto.KindAgentAdded
		if a := e.Agent; a != nil {
			p := a.Position()
			msg.Agent = &observerproto.AgentState{
				AgentID: a.AgentID,
				Name:    a.Name,
				Type:    a.Type().String(),
				Pos:     [2]float64{p.X, p.Y},
				Vmax:    a.Vmax(),
			}
		}
	case scene.Cleared:
		msg.Kind = observerproto.KindSceneCleared
	}
	msg.AgentCount = e.Count

	s.mu.Lock()
	s.agents = e.Count
	s.mu.Unlock()

	s.publish(msg)
}

func (s *Server) event() observerproto.EventMsg {
	return observerproto.EventMsg{
		Type:            observerproto.TypeEvent,
		ProtocolVersion: observerproto.Version,
		Seq:             s.seq.Add(1),
	}
}

func (s *Server) publish(msg observerproto.EventMsg) {
	if err := s.hub.Publish(msg); err != nil {
		s.log.Warn("observer publish failed", "kind", msg.Kind, "err", err)
	}
}

// Bootstrap returns the current observed state.
func (s *Server) Bootstrap() observerproto.BootstrapResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		Scenario:        s.scenario,
		Seed:            s.seed,
		AgentCount:      s.agents,
		Clusters:        make([]observerproto.ClusterState, 0, len(s.clusters)),
	}
	for _, st := range s.clusters {
		resp.Clusters = append(resp.Clusters, st)
	}
	sort.Slice(resp.Clusters, func(i, j int) bool { return resp.Clusters[i].ID < resp.Clusters[j].ID })
	return resp
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.Bootstrap())
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		out, cancelSub := s.hub.Subscribe(clientBuffer)
		defer cancelSub()

		ack, _ := json.Marshal(observerproto.SubscribedMsg{
			Type:            observerproto.TypeSubscribed,
			ProtocolVersion: observerproto.Version,
			SessionID:       sid,
		})
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
			return
		}
		s.log.Info("observer subscribed", "session", sid, "remote", r.RemoteAddr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-out:
					if !ok {
						writeErr <- nil
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: only detects the client going away.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		s.log.Info("observer left", "session", sid)
	}
}

// Handler mounts the observer endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/observer/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/observer/ws", s.WSHandler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	return mux
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
