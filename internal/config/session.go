package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration written as a TOML string ("30s", "1m").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Session is the per-session ~/.rentchat/sessions/<name>/session.toml.
type Session struct {
	Server   Server   `toml:"server"`
	Realtime Realtime `toml:"realtime"`
	Outbox   Outbox   `toml:"outbox"`
	Typing   Typing   `toml:"typing"`
	Daemon   Daemon   `toml:"daemon"`
}

type Server struct {
	MessagingURL string `toml:"messaging_url"`
	PresenceURL  string `toml:"presence_url"`
	RESTURL      string `toml:"rest_url"`
	Token        string `toml:"token"`
	// TokenParam, when set, also sends the token as this query parameter
	// for servers that cannot read upgrade headers.
	TokenParam string `toml:"token_param"`
	UserID     string `toml:"user_id"`
}

type Realtime struct {
	HeartbeatInterval         Duration `toml:"heartbeat_interval"`
	PresenceHeartbeatInterval Duration `toml:"presence_heartbeat_interval"`
	// HeartbeatTimeout bounds the wait for a websocket pong on either channel.
	HeartbeatTimeout Duration `toml:"heartbeat_timeout"`
	ReconnectInitial Duration `toml:"reconnect_initial"`
	ReconnectMax     Duration `toml:"reconnect_max"`
	// MaxReconnectAttempts bounds consecutive reconnects; 0 retries forever.
	MaxReconnectAttempts *int `toml:"max_reconnect_attempts"`
}

type Outbox struct {
	SendTimeout Duration `toml:"send_timeout"`
}

type Typing struct {
	IdleTimeout Duration `toml:"idle_timeout"`
	Expiry      Duration `toml:"expiry"`
}

type Daemon struct {
	// MetricsAddr enables the /metrics and /healthz listener when set.
	MetricsAddr string `toml:"metrics_addr"`
}

// Defaults.
const (
	DefaultHeartbeatInterval         = 30 * time.Second
	DefaultPresenceHeartbeatInterval = 60 * time.Second
	DefaultReconnectInitial          = time.Second
	DefaultReconnectMax              = 30 * time.Second
	DefaultMaxReconnectAttempts      = 10
	DefaultSendTimeout               = 5 * time.Second
	DefaultTypingIdle                = 3 * time.Second
	DefaultTypingExpiry              = 5 * time.Second
)

// ApplyDefaults fills every unset field.
func (s *Session) ApplyDefaults() {
	setDefault(&s.Realtime.HeartbeatInterval, DefaultHeartbeatInterval)
	setDefault(&s.Realtime.PresenceHeartbeatInterval, DefaultPresenceHeartbeatInterval)
	setDefault(&s.Realtime.HeartbeatTimeout, 2*s.Realtime.HeartbeatInterval.Duration)
	setDefault(&s.Realtime.ReconnectInitial, DefaultReconnectInitial)
	setDefault(&s.Realtime.ReconnectMax, DefaultReconnectMax)
	if s.Realtime.MaxReconnectAttempts == nil {
		n := DefaultMaxReconnectAttempts
		s.Realtime.MaxReconnectAttempts = &n
	}
	setDefault(&s.Outbox.SendTimeout, DefaultSendTimeout)
	setDefault(&s.Typing.IdleTimeout, DefaultTypingIdle)
	setDefault(&s.Typing.Expiry, DefaultTypingExpiry)
}

func setDefault(d *Duration, v time.Duration) {
	if d.Duration <= 0 {
		d.Duration = v
	}
}

// MaxAttempts returns the reconnect bound after defaults.
func (s *Session) MaxAttempts() int {
	if s.Realtime.MaxReconnectAttempts == nil {
		return DefaultMaxReconnectAttempts
	}
	return *s.Realtime.MaxReconnectAttempts
}

// Validate reports every problem at once.
func (s *Session) Validate() error {
	var errs []error
	if s.Server.MessagingURL == "" {
		errs = append(errs, errors.New("server.messaging_url is required"))
	} else if err := checkURL(s.Server.MessagingURL, "ws", "wss"); err != nil {
		errs = append(errs, fmt.Errorf("server.messaging_url: %w", err))
	}
	if s.Server.PresenceURL != "" {
		if err := checkURL(s.Server.PresenceURL, "ws", "wss"); err != nil {
			errs = append(errs, fmt.Errorf("server.presence_url: %w", err))
		}
	}
	if s.Server.RESTURL != "" {
		if err := checkURL(s.Server.RESTURL, "http", "https"); err != nil {
			errs = append(errs, fmt.Errorf("server.rest_url: %w", err))
		}
	}
	if s.Server.UserID == "" {
		errs = append(errs, errors.New("server.user_id is required"))
	}
	if s.Realtime.MaxReconnectAttempts != nil && *s.Realtime.MaxReconnectAttempts < 0 {
		errs = append(errs, errors.New("realtime.max_reconnect_attempts must be >= 0"))
	}
	if s.Realtime.HeartbeatTimeout.Duration > 0 && s.Realtime.HeartbeatTimeout.Duration < s.Realtime.HeartbeatInterval.Duration {
		errs = append(errs, errors.New("realtime.heartbeat_timeout must not be shorter than heartbeat_interval"))
	}
	return errors.Join(errs...)
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%q: want a %s URL", raw, schemes[0])
}

// LoadSession reads a session file, applies defaults and validates it.
func LoadSession(path string) (*Session, error) {
	var s Session
	if _, err := toml.DecodeFile(path, &s); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("session config %s not found: run `rentchatctl session init`", path)
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &s, nil
}

// SaveSession writes s with 0600 permissions; it holds the API token.
func SaveSession(path string, s *Session) error {
	return writeTOML(path, s)
}
