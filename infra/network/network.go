// Package network blocks start-up until the host can reach the broker.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/kilianp07/trena/core/logger"
)

// DefaultPollInterval is the delay between readiness checks.
const DefaultPollInterval = 500 * time.Millisecond

// Config selects what "ready" means. With Interface set the link must be up
// with a non-loopback address; otherwise the broker host must resolve.
type Config struct {
	Interface      string `json:"interface"`
	PollIntervalMS int    `json:"poll_interval_ms"`
}

// SetDefaults applies the default poll interval.
func (c *Config) SetDefaults() {
	if c.PollIntervalMS <= 0 {
		c.PollIntervalMS = int(DefaultPollInterval / time.Millisecond)
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.PollIntervalMS < 0 {
		return fmt.Errorf("poll_interval_ms must be positive")
	}
	return nil
}

var errNoAddress = errors.New("no usable address")

var (
	lookupHost     = net.DefaultResolver.LookupHost
	interfaceAddrs = func(name string) (bool, []net.Addr, error) {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return false, nil, err
		}
		addrs, err := iface.Addrs()
		return iface.Flags&net.FlagUp != 0, addrs, err
	}
)

// WaitReady polls until the network is usable or ctx is done. There is no
// attempt limit.
func WaitReady(ctx context.Context, cfg Config, host string, log logger.Logger) error {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NopLogger{}
	}
	interval := time.Duration(cfg.PollIntervalMS) * time.Millisecond
	for attempt := 1; ; attempt++ {
		addr, err := check(ctx, cfg, host)
		if err == nil {
			log.Infow("network ready", map[string]any{"address": addr, "checks": attempt})
			return nil
		}
		if attempt == 1 {
			log.Infof("waiting for network: %v", err)
		} else {
			log.Debugf("network not ready (check %d): %v", attempt, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for network: %w", ctx.Err())
		case <-time.After(interval):
		}
	}
}

func check(ctx context.Context, cfg Config, host string) (string, error) {
	if cfg.Interface != "" {
		return checkInterface(cfg.Interface)
	}
	if host == "" {
		return "", nil
	}
	addrs, err := lookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("%s: %w", host, errNoAddress)
	}
	return addrs[0], nil
}

func checkInterface(name string) (string, error) {
	up, addrs, err := interfaceAddrs(name)
	if err != nil {
		return "", err
	}
	if !up {
		return "", fmt.Errorf("interface %s is down", name)
	}
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok || ipn.IP.IsLoopback() || ipn.IP.IsLinkLocalUnicast() {
			continue
		}
		return ipn.IP.String(), nil
	}
	return "", fmt.Errorf("interface %s: %w", name, errNoAddress)
}
