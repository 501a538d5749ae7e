package config

import "time"

// LobbyConfig holds the lobby defaults shared by the server and
// in-process controllers.
type LobbyConfig struct {
	MaxPlayers  int           // capacity requested for hosted rooms
	CodeLength  int           // characters in generated room codes
	CodeRetries int           // extra codes to try after a collision
	CallTimeout time.Duration // per store call
	Policy      string        // "open" or "owner"
	ReapAfter   time.Duration // delay before an empty new room is reaped
}

func LoadLobbyConfig() LobbyConfig {
	cfg := LobbyConfig{
		MaxPlayers:  envInt("LOBBY_MAX_PLAYERS", 5),
		CodeLength:  envInt("LOBBY_CODE_LENGTH", 6),
		CodeRetries: envInt("LOBBY_CODE_RETRIES", 0),
		CallTimeout: envDur("LOBBY_CALL_TIMEOUT", 5*time.Second),
		Policy:      getenv("LOBBY_POLICY", "open"),
		ReapAfter:   envDur("LOBBY_REAP_AFTER", 30*time.Second),
	}
	if cfg.MaxPlayers < 1 {
		cfg.MaxPlayers = 5
	}
	if cfg.CodeLength < 4 {
		cfg.CodeLength = 6
	}
	if cfg.CodeRetries < 0 {
		cfg.CodeRetries = 0
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	return cfg
}
