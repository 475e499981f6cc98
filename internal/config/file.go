package config

import (
	"fmt"
	"time"
)

// fileConfig is the on disk representation, only the set fields override the defaults.
type fileConfig struct {
	Server *struct {
		ListenAddress string `yaml:"listenAddress" toml:"listenAddress"`
	} `yaml:"server" toml:"server"`

	Database *struct {
		Driver string `yaml:"driver" toml:"driver"`
		Path   string `yaml:"path" toml:"path"`
	} `yaml:"database" toml:"database"`

	Sandbox *struct {
		Enabled       *bool  `yaml:"enabled" toml:"enabled"`
		Gateway       string `yaml:"gateway" toml:"gateway"`
		AgentEndpoint string `yaml:"agentEndpoint" toml:"agentEndpoint"`
		ReadyTimeout  string `yaml:"readyTimeout" toml:"readyTimeout"`
		PollInterval  string `yaml:"pollInterval" toml:"pollInterval"`
		Docker        *struct {
			Image     string            `yaml:"image" toml:"image"`
			PullImage bool              `yaml:"pullImage" toml:"pullImage"`
			Network   string            `yaml:"network" toml:"network"`
			AgentPort int               `yaml:"agentPort" toml:"agentPort"`
			Env       map[string]string `yaml:"env" toml:"env"`
		} `yaml:"docker" toml:"docker"`
		Remote *struct {
			BaseURL string `yaml:"baseURL" toml:"baseURL"`
			Token   string `yaml:"token" toml:"token"`
			Timeout string `yaml:"timeout" toml:"timeout"`
		} `yaml:"remote" toml:"remote"`
	} `yaml:"sandbox" toml:"sandbox"`

	Agent *struct {
		Mode             string `yaml:"mode" toml:"mode"`
		ConnectTimeout   string `yaml:"connectTimeout" toml:"connectTimeout"`
		InitTimeout      string `yaml:"initTimeout" toml:"initTimeout"`
		ChatTimeout      string `yaml:"chatTimeout" toml:"chatTimeout"`
		ReceiveTimeout   string `yaml:"receiveTimeout" toml:"receiveTimeout"`
		TaskTimeout      string `yaml:"taskTimeout" toml:"taskTimeout"`
		InterruptTimeout string `yaml:"interruptTimeout" toml:"interruptTimeout"`
		ReadLimit        int64  `yaml:"readLimit" toml:"readLimit"`
	} `yaml:"agent" toml:"agent"`

	Limits *struct {
		MaxRunningTasksPerUser int  `yaml:"maxRunningTasksPerUser" toml:"maxRunningTasksPerUser"`
		OpenMode               bool `yaml:"openMode" toml:"openMode"`
	} `yaml:"limits" toml:"limits"`

	Delivery *struct {
		LockTTL        string `yaml:"lockTTL" toml:"lockTTL"`
		AcquireTimeout string `yaml:"acquireTimeout" toml:"acquireTimeout"`
		QueueCapacity  int    `yaml:"queueCapacity" toml:"queueCapacity"`
		DedupeTTL      string `yaml:"dedupeTTL" toml:"dedupeTTL"`
		DedupeSize     int    `yaml:"dedupeSize" toml:"dedupeSize"`
	} `yaml:"delivery" toml:"delivery"`

	ObjectStore *struct {
		Driver          string `yaml:"driver" toml:"driver"`
		Bucket          string `yaml:"bucket" toml:"bucket"`
		Region          string `yaml:"region" toml:"region"`
		Endpoint        string `yaml:"endpoint" toml:"endpoint"`
		AccessKeyID     string `yaml:"accessKeyID" toml:"accessKeyID"`
		SecretAccessKey string `yaml:"secretAccessKey" toml:"secretAccessKey"`
		ForcePathStyle  bool   `yaml:"forcePathStyle" toml:"forcePathStyle"`
		BaseURL         string `yaml:"baseURL" toml:"baseURL"`
		URLExpiry       string `yaml:"urlExpiry" toml:"urlExpiry"`
		MaxObjectSize   int64  `yaml:"maxObjectSize" toml:"maxObjectSize"`
	} `yaml:"objectStore" toml:"objectStore"`

	Credentials *struct {
		Driver      string `yaml:"driver" toml:"driver"`
		RoleARN     string `yaml:"roleARN" toml:"roleARN"`
		STSEndpoint string `yaml:"stsEndpoint" toml:"stsEndpoint"`
		DirPrefix   string `yaml:"dirPrefix" toml:"dirPrefix"`
		Duration    string `yaml:"duration" toml:"duration"`
	} `yaml:"credentials" toml:"credentials"`

	Notify *struct {
		Transport  string            `yaml:"transport" toml:"transport"`
		WebhookURL string            `yaml:"webhookURL" toml:"webhookURL"`
		Headers    map[string]string `yaml:"headers" toml:"headers"`
	} `yaml:"notify" toml:"notify"`

	Logging *struct {
		Debug bool `yaml:"debug" toml:"debug"`
		JSON  bool `yaml:"json" toml:"json"`
	} `yaml:"logging" toml:"logging"`
}

func (f fileConfig) apply(cfg *Config) error {
	var err error
	dur := func(name, v string, dst *time.Duration) {
		if err != nil || v == "" {
			return
		}
		d, perr := time.ParseDuration(v)
		if perr != nil {
			err = fmt.Errorf("invalid %s duration %q: %w", name, v, perr)
			return
		}
		*dst = d
	}
	str := func(v string, dst *string) {
		if v != "" {
			*dst = v
		}
	}
	num := func(v int, dst *int) {
		if v != 0 {
			*dst = v
		}
	}

	if s := f.Server; s != nil {
		str(s.ListenAddress, &cfg.Server.ListenAddress)
	}

	if d := f.Database; d != nil {
		str(d.Driver, &cfg.Database.Driver)
		str(d.Path, &cfg.Database.Path)
	}

	if s := f.Sandbox; s != nil {
		if s.Enabled != nil {
			cfg.Sandbox.Enabled = *s.Enabled
		}
		str(s.Gateway, &cfg.Sandbox.Gateway)
		str(s.AgentEndpoint, &cfg.Sandbox.AgentEndpoint)
		dur("sandbox ready timeout", s.ReadyTimeout, &cfg.Sandbox.ReadyTimeout)
		dur("sandbox poll interval", s.PollInterval, &cfg.Sandbox.PollInterval)
		if d := s.Docker; d != nil {
			str(d.Image, &cfg.Sandbox.Docker.Image)
			str(d.Network, &cfg.Sandbox.Docker.Network)
			num(d.AgentPort, &cfg.Sandbox.Docker.AgentPort)
			cfg.Sandbox.Docker.PullImage = d.PullImage
			if len(d.Env) > 0 {
				cfg.Sandbox.Docker.Env = d.Env
			}
		}
		if r := s.Remote; r != nil {
			str(r.BaseURL, &cfg.Sandbox.Remote.BaseURL)
			str(r.Token, &cfg.Sandbox.Remote.Token)
			dur("remote gateway timeout", r.Timeout, &cfg.Sandbox.Remote.Timeout)
		}
	}

	if a := f.Agent; a != nil {
		str(a.Mode, &cfg.Agent.Mode)
		dur("agent connect timeout", a.ConnectTimeout, &cfg.Agent.ConnectTimeout)
		dur("agent init timeout", a.InitTimeout, &cfg.Agent.InitTimeout)
		dur("agent chat timeout", a.ChatTimeout, &cfg.Agent.ChatTimeout)
		dur("agent receive timeout", a.ReceiveTimeout, &cfg.Agent.ReceiveTimeout)
		dur("agent task timeout", a.TaskTimeout, &cfg.Agent.TaskTimeout)
		dur("agent interrupt timeout", a.InterruptTimeout, &cfg.Agent.InterruptTimeout)
		if a.ReadLimit != 0 {
			cfg.Agent.ReadLimit = a.ReadLimit
		}
	}

	if l := f.Limits; l != nil {
		num(l.MaxRunningTasksPerUser, &cfg.Limits.MaxRunningTasksPerUser)
		cfg.Limits.OpenMode = l.OpenMode
	}

	if d := f.Delivery; d != nil {
		dur("delivery lock ttl", d.LockTTL, &cfg.Delivery.LockTTL)
		dur("delivery acquire timeout", d.AcquireTimeout, &cfg.Delivery.AcquireTimeout)
		num(d.QueueCapacity, &cfg.Delivery.QueueCapacity)
		dur("delivery dedupe ttl", d.DedupeTTL, &cfg.Delivery.DedupeTTL)
		num(d.DedupeSize, &cfg.Delivery.DedupeSize)
	}

	if o := f.ObjectStore; o != nil {
		str(o.Driver, &cfg.ObjectStore.Driver)
		str(o.Bucket, &cfg.ObjectStore.Bucket)
		str(o.Region, &cfg.ObjectStore.Region)
		str(o.Endpoint, &cfg.ObjectStore.Endpoint)
		str(o.AccessKeyID, &cfg.ObjectStore.AccessKeyID)
		str(o.SecretAccessKey, &cfg.ObjectStore.SecretAccessKey)
		str(o.BaseURL, &cfg.ObjectStore.BaseURL)
		cfg.ObjectStore.ForcePathStyle = o.ForcePathStyle
		dur("object store url expiry", o.URLExpiry, &cfg.ObjectStore.URLExpiry)
		if o.MaxObjectSize != 0 {
			cfg.ObjectStore.MaxObjectSize = o.MaxObjectSize
		}
	}

	if c := f.Credentials; c != nil {
		str(c.Driver, &cfg.Credentials.Driver)
		str(c.RoleARN, &cfg.Credentials.RoleARN)
		str(c.STSEndpoint, &cfg.Credentials.STSEndpoint)
		str(c.DirPrefix, &cfg.Credentials.DirPrefix)
		dur("credentials duration", c.Duration, &cfg.Credentials.Duration)
	}

	if n := f.Notify; n != nil {
		str(n.Transport, &cfg.Notify.Transport)
		str(n.WebhookURL, &cfg.Notify.WebhookURL)
		if len(n.Headers) > 0 {
			cfg.Notify.Headers = n.Headers
		}
	}

	if l := f.Logging; l != nil {
		cfg.Logging.Debug = l.Debug
		cfg.Logging.JSON = l.JSON
	}

	return err
}
