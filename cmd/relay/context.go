package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"relay/internal/client"
	"relay/internal/config"
	"relay/internal/daemonctl"
)

type commandContext struct {
	httpFlag   *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(httpFlag, configFlag *string) *commandContext {
	return &commandContext{
		httpFlag:   httpFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// httpBind prefers the --http flag over broker.http_bind.
func (c *commandContext) httpBind() string {
	if c.httpFlag != nil {
		if bind := strings.TrimSpace(*c.httpFlag); bind != "" {
			return bind
		}
	}
	if cfg, err := c.ensureConfig(); err == nil && cfg != nil {
		return cfg.Broker.HTTPBind
	}
	return ""
}

func (c *commandContext) withClient(fn func(*client.Client) error) error {
	cl, err := client.New(c.httpBind())
	if err != nil {
		return err
	}
	return wrapUnavailable(fn(cl), c.httpBind())
}

// launchOptions forwards the resolved config file to a background daemon.
func (c *commandContext) launchOptions(logLevel string) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{ConfigPath: c.configPath, LogLevel: logLevel}
}

func wrapUnavailable(err error, bind string) error {
	if err != nil && errors.Is(err, client.ErrUnavailable) {
		return fmt.Errorf("connect to daemon at %s: not reachable; start it with `relay run`: %w", bind, err)
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
