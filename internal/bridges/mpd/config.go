package mpd

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// reservedPIDKey is injected by some configuration stores and is ignored.
const reservedPIDKey = "service.pid"

var playerKeyPattern = regexp.MustCompile(`^(.*?)\.(host|port|password)$`)

// ParsePlayerConfig turns a flat key/value map into player configurations.
//
// Keys follow <playerId>.(host|port|password). Unknown keys and bad values
// are reported as *ConfigError values joined into the returned error; the
// remaining keys are still applied. Missing host and port default to
// localhost:6600.
func ParsePlayerConfig(flat map[string]string) (map[string]PlayerConfig, error) {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	players := make(map[string]PlayerConfig)
	var errs []error

	for _, key := range keys {
		if key == reservedPIDKey {
			continue
		}

		m := playerKeyPattern.FindStringSubmatch(key)
		if m == nil || m[1] == "" {
			errs = append(errs, &ConfigError{Key: key, Err: ErrUnknownConfigKey})
			continue
		}
		id, field := m[1], m[2]
		value := strings.TrimSpace(flat[key])

		cfg, ok := players[id]
		if !ok {
			cfg = PlayerConfig{ID: id, Host: DefaultHost, Port: DefaultPort}
		}

		switch field {
		case "host":
			if value != "" {
				cfg.Host = value
			}
		case "port":
			port, err := strconv.Atoi(value)
			if err != nil || port < 1 || port > 65535 {
				errs = append(errs, &ConfigError{
					Key: key,
					Err: fmt.Errorf("%w: port %q", ErrInvalidConfigValue, value),
				})
				break
			}
			cfg.Port = port
		case "password":
			cfg.Password = flat[key]
		}
		players[id] = cfg
	}

	return players, errors.Join(errs...)
}
