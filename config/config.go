// Package config resolves the IPC endpoint the bridge talks to and loads the
// optional configuration file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Environment variables read once when an endpoint is resolved.
const (
	EnvHost      = "ONEC_IPC_HOST"
	EnvPort      = "ONEC_IPC_PORT"
	EnvToken     = "ONEC_IPC_TOKEN"
	EnvTimeoutMs = "ONEC_IPC_TIMEOUT_MS"
	EnvVersion   = "MCP_1C_SERVER_VERSION"
)

// Defaults used when neither an override nor the environment provides a value.
const (
	DefaultHost    = "127.0.0.1"
	DefaultPort    = 40241
	DefaultTimeout = 60 * time.Second
	DefaultVersion = "0.0.0"
)

// Endpoint is the resolved, immutable connection configuration shared by all
// calls of one IPC client.
type Endpoint struct {
	Host    string
	Port    int
	Token   string // empty means no token is attached to requests
	Timeout time.Duration
}

// Address returns host:port suitable for net.Dial.
func (e Endpoint) Address() string {
	return fmt.Sprintf("%s:%d", formatHost(e.Host), e.Port)
}

func formatHost(host string) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		return "[" + host + "]"
	}
	return host
}

// Validate checks that the endpoint can be dialed.
func (e Endpoint) Validate() error {
	var errs []error
	if strings.TrimSpace(e.Host) == "" {
		errs = append(errs, errors.New("host is empty"))
	}
	if !validPort(e.Port) {
		errs = append(errs, fmt.Errorf("port %d out of range 1-65535", e.Port))
	}
	if e.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout %s must be positive", e.Timeout))
	}
	return errors.Join(errs...)
}

// Overrides are explicit values that take precedence over the environment.
// Zero values mean "not set". Token is a pointer so that an explicit empty
// token can disable a token present in the environment.
type Overrides struct {
	Host    string
	Port    int
	Token   *string
	Timeout time.Duration
}

// ResolveEndpoint merges overrides, environment and defaults, in that order of
// precedence. Invalid environment values are ignored.
func ResolveEndpoint(o Overrides, getenv func(string) string) Endpoint {
	e := Endpoint{
		Host:    DefaultHost,
		Port:    DefaultPort,
		Timeout: DefaultTimeout,
	}

	switch {
	case o.Host != "":
		e.Host = o.Host
	case getenv(EnvHost) != "":
		e.Host = getenv(EnvHost)
	}

	if validPort(o.Port) {
		e.Port = o.Port
	} else if port, ok := parsePositive(getenv(EnvPort)); ok && validPort(port) {
		e.Port = port
	}

	if o.Token != nil {
		e.Token = *o.Token
	} else {
		e.Token = getenv(EnvToken)
	}

	if o.Timeout > 0 {
		e.Timeout = o.Timeout
	} else if ms, ok := parsePositive(getenv(EnvTimeoutMs)); ok {
		e.Timeout = time.Duration(ms) * time.Millisecond
	}

	return e
}

// ServerVersion returns the version reported to MCP clients.
func ServerVersion(getenv func(string) string) string {
	if v := strings.TrimSpace(getenv(EnvVersion)); v != "" {
		return v
	}
	return DefaultVersion
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}

func parsePositive(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
