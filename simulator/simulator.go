package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"glooo/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const defaultPassword = "simpass123"

type SimConfig struct {
	NumUsers          int
	NumGroups         int
	GroupSize         int
	SimulationTime    time.Duration
	MessageFrequency  float64 // messages per connected user per minute
	GroupMessageShare float64 // fraction of messages sent to a group
	DisconnectRate    float64
	ReconnectRate     float64
	ZipfS             float64
	Workers           int
	EngineURL         string
	Tick              time.Duration
}

// DefaultConfig is a small local run.
func DefaultConfig() SimConfig {
	return SimConfig{
		NumUsers:          20,
		NumGroups:         3,
		GroupSize:         5,
		SimulationTime:    time.Minute,
		MessageFrequency:  30,
		GroupMessageShare: 0.25,
		DisconnectRate:    0.01,
		ReconnectRate:     0.05,
		ZipfS:             1.07,
		Workers:           5,
		EngineURL:         "http://localhost:8080",
		Tick:              500 * time.Millisecond,
	}
}

type SimulationStats struct {
	mu                sync.RWMutex
	StartTime         time.Time
	TotalRequests     int64
	SuccessRequests   int64
	FailedRequests    int64
	AverageLatency    time.Duration
	Friendships       int
	Groups            int
	DirectSent        int
	GroupSent         int
	Received          int
	ErrorFrames       int
	Reconnects        int
	AverageDelivery   time.Duration

	deliveries int64
}

// SimulatedUser is one account driven by the simulator.
type SimulatedUser struct {
	ID       uuid.UUID
	Username string
	Email    string
	Token    string

	mu      sync.Mutex
	conn    *websocket.Conn
	Chats   map[uuid.UUID]uuid.UUID // friend id -> chat id
	Friends []uuid.UUID
	Groups  []uuid.UUID
}

func (u *SimulatedUser) connected() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.conn != nil
}

type Simulator struct {
	config SimConfig
	stats  *SimulationStats
	users  []*SimulatedUser
	client *http.Client
	dialer *websocket.Dialer
	logger *slog.Logger
	rng    *rand.Rand
	rngMu  sync.Mutex
	wg     sync.WaitGroup
}

func NewSimulator(config SimConfig, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.Tick <= 0 {
		config.Tick = 500 * time.Millisecond
	}
	if config.ZipfS <= 1 {
		config.ZipfS = 1.07
	}
	return &Simulator{
		config: config,
		stats:  &SimulationStats{StartTime: time.Now()},
		client: &http.Client{Timeout: 10 * time.Second},
		dialer: &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		logger: logger.With("component", "simulator"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run sets up the social graph, opens every session and drives traffic
// until ctx ends.
func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Info("starting simulation", "users", s.config.NumUsers, "groups", s.config.NumGroups, "duration", s.config.SimulationTime)

	if err := s.initialize(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer s.disconnectAll()

	var wg sync.WaitGroup
	for _, loop := range []func(context.Context){s.simulateMessaging, s.simulateConnectivity, s.collectMetrics} {
		wg.Add(1)
		go func(loop func(context.Context)) {
			defer wg.Done()
			loop(ctx)
		}(loop)
	}
	wg.Wait()
	return nil
}

func (s *Simulator) initialize(ctx context.Context) error {
	s.logger.Info("phase 1: creating users", "count", s.config.NumUsers)
	if err := s.createUsers(ctx); err != nil {
		return fmt.Errorf("failed to create users: %w", err)
	}

	s.logger.Info("phase 2: befriending users in a ring")
	if err := s.befriendRing(ctx); err != nil {
		return fmt.Errorf("failed to befriend users: %w", err)
	}

	s.logger.Info("phase 3: creating groups", "count", s.config.NumGroups)
	if err := s.createGroups(ctx); err != nil {
		return fmt.Errorf("failed to create groups: %w", err)
	}

	s.logger.Info("phase 4: opening websocket sessions")
	for _, user := range s.users {
		if err := s.connect(ctx, user); err != nil {
			return fmt.Errorf("failed to connect %s: %w", user.Username, err)
		}
	}

	s.logger.Info("initialization completed")
	return nil
}

func (s *Simulator) createUsers(ctx context.Context) error {
	runID := uuid.NewString()[:8]
	s.users = make([]*SimulatedUser, s.config.NumUsers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)
	for i := range s.users {
		i := i
		g.Go(func() error {
			user := &SimulatedUser{
				Username: fmt.Sprintf("sim_%s_%d", runID, i),
				Email:    fmt.Sprintf("sim_%s_%d@sim.test", runID, i),
				Chats:    make(map[uuid.UUID]uuid.UUID),
			}

			var err error
			for retries := 0; retries < 3; retries++ {
				if err = s.registerUser(gctx, user); err == nil {
					s.users[i] = user
					return nil
				}
				backoff := time.Duration(math.Pow(2, float64(retries))) * 100 * time.Millisecond
				s.logger.Warn("retrying signup", "user", user.Username, "attempt", retries+1, "error", err)
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-time.After(backoff):
				}
			}
			return err
		})
	}
	return g.Wait()
}

func (s *Simulator) registerUser(ctx context.Context, user *SimulatedUser) error {
	resp, err := s.makeRequest(ctx, http.MethodPost, "/auth/signup", "", map[string]string{
		"name":     user.Username,
		"username": user.Username,
		"email":    user.Email,
		"password": defaultPassword,
	})
	if err != nil {
		return fmt.Errorf("signup: %w", err)
	}
	var created struct {
		InsertedID string `json:"inserted_id"`
	}
	if err := json.Unmarshal(resp, &created); err != nil {
		return fmt.Errorf("parsing signup response: %w", err)
	}

	resp, err = s.makeRequest(ctx, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    user.Email,
		"password": defaultPassword,
	})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	var login struct {
		Token  string `json:"token"`
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(resp, &login); err != nil {
		return fmt.Errorf("parsing login response: %w", err)
	}

	id, err := uuid.Parse(login.UserID)
	if err != nil {
		return fmt.Errorf("invalid user ID returned: %w", err)
	}
	user.ID = id
	user.Token = login.Token
	return nil
}

// ringPairs lists each (requester, responder) index pair of a ring once.
func ringPairs(n int) [][2]int {
	if n < 2 {
		return nil
	}
	if n == 2 {
		return [][2]int{{0, 1}}
	}
	pairs := make([][2]int, 0, n)
	for i := 0; i < n; i++ {
		pairs = append(pairs, [2]int{i, (i + 1) % n})
	}
	return pairs
}

func (s *Simulator) befriendRing(ctx context.Context) error {
	for _, pair := range ringPairs(len(s.users)) {
		from, to := s.users[pair[0]], s.users[pair[1]]

		if _, err := s.makeRequest(ctx, http.MethodPost, "/user/send_request", from.Token,
			map[string]string{"to_id": to.ID.String()}); err != nil {
			return fmt.Errorf("send request %s -> %s: %w", from.Username, to.Username, err)
		}

		resp, err := s.makeRequest(ctx, http.MethodPost, "/api/requests/handle_request", to.Token,
			map[string]string{"action": string(models.ActionAccept), "from_id": from.ID.String()})
		if err != nil {
			return fmt.Errorf("accept %s -> %s: %w", from.Username, to.Username, err)
		}
		var result struct {
			ChatID uuid.UUID `json:"chat_id"`
		}
		if err := json.Unmarshal(resp, &result); err != nil {
			return fmt.Errorf("parsing resolve response: %w", err)
		}

		from.Friends = append(from.Friends, to.ID)
		from.Chats[to.ID] = result.ChatID
		to.Friends = append(to.Friends, from.ID)
		to.Chats[from.ID] = result.ChatID

		s.stats.mu.Lock()
		s.stats.Friendships++
		s.stats.mu.Unlock()
	}
	return nil
}

func (s *Simulator) createGroups(ctx context.Context) error {
	if len(s.users) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*SimulatedUser, len(s.users))
	for _, u := range s.users {
		byID[u.ID] = u
	}

	for i := 0; i < s.config.NumGroups; i++ {
		creator := s.users[s.getZipfNumber(len(s.users))-1]
		members := make([]string, 0, s.config.GroupSize)
		for _, u := range s.pickUsers(s.config.GroupSize) {
			if u.ID != creator.ID {
				members = append(members, u.ID.String())
			}
		}

		resp, err := s.makeRequest(ctx, http.MethodPost, "/create/group", creator.Token, map[string]interface{}{
			"name":    fmt.Sprintf("sim-group-%d", i),
			"members": members,
		})
		if err != nil {
			return err
		}
		var group models.Group
		if err := json.Unmarshal(resp, &group); err != nil {
			return fmt.Errorf("parsing group response: %w", err)
		}
		for _, id := range group.Members {
			if u, ok := byID[id]; ok {
				u.Groups = append(u.Groups, group.ID)
			}
		}

		s.stats.mu.Lock()
		s.stats.Groups++
		s.stats.mu.Unlock()
	}
	return nil
}

// pickUsers returns up to n distinct users, favouring low indexes.
func (s *Simulator) pickUsers(n int) []*SimulatedUser {
	seen := make(map[int]bool)
	picked := make([]*SimulatedUser, 0, n)
	for attempts := 0; len(picked) < n && attempts < n*10; attempts++ {
		idx := s.getZipfNumber(len(s.users)) - 1
		if seen[idx] {
			continue
		}
		seen[idx] = true
		picked = append(picked, s.users[idx])
	}
	return picked
}

func (s *Simulator) getZipfNumber(max int) int {
	if max <= 1 {
		return 1
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	zipf := rand.NewZipf(s.rng, s.config.ZipfS, 1, uint64(max-1))
	return int(zipf.Uint64()) + 1
}

func (s *Simulator) chance(p float64) bool {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64() < p
}

func (s *Simulator) intn(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Intn(n)
}

// makeRequest issues one JSON request and returns the body of a 2xx reply.
func (s *Simulator) makeRequest(ctx context.Context, method, endpoint, token string, data interface{}) ([]byte, error) {
	var body io.Reader
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.EngineURL+endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.recordRequestMetrics(start, err)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err == nil && resp.StatusCode >= 400 {
		err = fmt.Errorf("%s %s failed with status %d: %s", method, endpoint, resp.StatusCode, bytes.TrimSpace(respBody))
	}
	s.recordRequestMetrics(start, err)
	if err != nil {
		return nil, err
	}
	return respBody, nil
}

func (s *Simulator) recordRequestMetrics(start time.Time, err error) {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()

	latency := time.Since(start)
	s.stats.TotalRequests++
	if err != nil {
		s.stats.FailedRequests++
	} else {
		s.stats.SuccessRequests++
	}

	totalLatency := s.stats.AverageLatency * time.Duration(s.stats.TotalRequests-1)
	s.stats.AverageLatency = (totalLatency + latency) / time.Duration(s.stats.TotalRequests)
}

// SimulationMetrics holds the metrics of the simulation
type SimulationMetrics struct {
	TotalUsers        int
	ActiveUsers       int
	Friendships       int
	Groups            int
	DirectSent        int
	GroupSent         int
	Received          int
	ErrorFrames       int
	Reconnects        int
	AverageLatency    time.Duration
	AverageDelivery   time.Duration
	ErrorCount        int
	RequestsPerSecond float64
}

// GetMetrics returns the current simulation metrics
func (s *Simulator) GetMetrics() SimulationMetrics {
	active := 0
	for _, u := range s.users {
		if u != nil && u.connected() {
			active++
		}
	}

	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()

	elapsed := time.Since(s.stats.StartTime)
	return SimulationMetrics{
		TotalUsers:        len(s.users),
		ActiveUsers:       active,
		Friendships:       s.stats.Friendships,
		Groups:            s.stats.Groups,
		DirectSent:        s.stats.DirectSent,
		GroupSent:         s.stats.GroupSent,
		Received:          s.stats.Received,
		ErrorFrames:       s.stats.ErrorFrames,
		Reconnects:        s.stats.Reconnects,
		AverageLatency:    s.stats.AverageLatency,
		AverageDelivery:   s.stats.AverageDelivery,
		ErrorCount:        int(s.stats.FailedRequests),
		RequestsPerSecond: float64(s.stats.TotalRequests) / elapsed.Seconds(),
	}
}
